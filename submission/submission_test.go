// Copyright (c) 2024 The AMS Project and its Contributors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// These tests must be run serially, since they exercise one submission
// workflow whose steps build on one another.

package submission

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ams-project/ams/amstest"
	"github.com/ams-project/ams/config"
	"github.com/ams-project/ams/lifecycle"
	"github.com/ams-project/ams/metadata"
	"github.com/ams-project/ams/schemas"
	"github.com/ams-project/ams/store"
	"github.com/ams-project/ams/validation"
)

// temporary testing directory
var TESTING_DIR string

// the store, object store fixture, and service under test
var store_ *store.Store
var objects_ *amstest.ObjectStore
var service_ *Service

// the analysis minted for the canned payload, recorded by the first
// successful submission for use by the lifecycle tests
var analysisId_ string

// configuration
const submissionConfig string = `
service:
  name: test
  port: 8080
  maxConnections: 100
  dataDirectory: TESTING_DIR/data
database:
  path: ams.db
storage:
  provider: local
  root: TESTING_DIR/objects
  maxRetries: 3
`

// runs all tests serially
func TestRunner(t *testing.T) {
	tester := SerialTests{Test: t}
	tester.TestStudies()
	tester.TestRegisterSchema()
	tester.TestSubmitRejectsBadRequests()
	tester.TestSubmitWithViolations()
	tester.TestSubmitAndResubmit()
	tester.TestPublish()
	tester.TestUnpublishAndSuppress()
	tester.TestPublishWithoutChecksums()
}

// This runs setup, runs all tests, and does breakdown.
func TestMain(m *testing.M) {
	var status int
	setup()
	status = m.Run()
	breakdown()
	os.Exit(status)
}

// this function gets called at the beginning of a test session
func setup() {
	amstest.EnableDebugLogging()

	log.Print("Creating testing directory...\n")
	var err error
	TESTING_DIR, err = os.MkdirTemp(os.TempDir(), "ams-submission-tests-")
	if err != nil {
		log.Panicf("Couldn't create testing directory: %s", err)
	}

	myConfig := strings.ReplaceAll(submissionConfig, "TESTING_DIR", TESTING_DIR)
	if err := config.Init([]byte(myConfig)); err != nil {
		log.Panicf("Couldn't initialize configuration: %s", err)
	}
	for _, dir := range []string{config.Service.DataDirectory, config.Storage.Root} {
		if err := os.Mkdir(dir, 0755); err != nil {
			log.Panicf("Couldn't create directory %s: %s", dir, err)
		}
	}

	store_, err = store.Open(filepath.Join(config.Service.DataDirectory, config.Database.Path))
	if err != nil {
		log.Panicf("Couldn't open metadata database: %s", err)
	}
	objects_ = &amstest.ObjectStore{Objects: make(map[string]bool)}
	service_ = NewService(store_, objects_)
}

// this function gets called after all tests have been run
func breakdown() {
	if store_ != nil {
		store_.Close()
	}
	if TESTING_DIR != "" {
		log.Printf("Deleting testing directory %s...\n", TESTING_DIR)
		os.RemoveAll(TESTING_DIR)
	}
}

// To run the tests serially, we attach them to a SerialTests type and
// have them run by a single test runner.
type SerialTests struct{ Test *testing.T }

func (t *SerialTests) TestStudies() {
	assert := assert.New(t.Test)
	ctx := context.Background()

	err := service_.CreateStudy(ctx, metadata.Study{
		StudyId: "ABC123",
		Name:    "Test study",
	})
	assert.Nil(err)

	study, err := service_.GetStudy(ctx, "ABC123")
	assert.Nil(err)
	assert.Equal("Test study", study.Name)

	// creating the same study again is a conflict, not a silent no-op
	err = service_.CreateStudy(ctx, metadata.Study{StudyId: "ABC123"})
	assert.NotNil(err)
	assert.IsType(&StudyExistsError{}, err)

	_, err = service_.GetStudy(ctx, "NOPE")
	assert.IsType(&NotFoundError{}, err)
}

func (t *SerialTests) TestRegisterSchema() {
	assert := assert.New(t.Test)

	version, err := service_.RegisterSchema("sequencingRead", []byte(amstest.SequencingReadSchema))
	assert.Nil(err)
	assert.Equal(1, version)

	// the same document again is refused
	_, err = service_.RegisterSchema("sequencingRead", []byte(amstest.SequencingReadSchema))
	assert.IsType(&schemas.SchemaConflictError{}, err)
}

func (t *SerialTests) TestSubmitRejectsBadRequests() {
	assert := assert.New(t.Test)
	ctx := context.Background()

	// not JSON
	_, err := service_.Submit(ctx, "ABC123", []byte(`{"studyId": `))
	assert.IsType(&validation.MalformedPayloadError{}, err)

	// payload addressed to a different study than the request
	_, err = service_.Submit(ctx, "ABC123", amstest.SequencingReadPayload("XYZ789"))
	assert.IsType(&StudyMismatchError{}, err)

	// unknown study
	_, err = service_.Submit(ctx, "NOPE", amstest.SequencingReadPayload("NOPE"))
	assert.IsType(&NotFoundError{}, err)

	// unregistered analysis type
	payload := strings.ReplaceAll(string(amstest.SequencingReadPayload("ABC123")),
		"sequencingRead", "variantCall")
	_, err = service_.Submit(ctx, "ABC123", []byte(payload))
	assert.IsType(&schemas.UnknownAnalysisTypeError{}, err)
}

func (t *SerialTests) TestSubmitWithViolations() {
	assert := assert.New(t.Test)
	ctx := context.Background()

	// libraryStrategy omitted: the submission is recorded and rejected
	payload := []byte(`{
		"studyId": "ABC123",
		"analysisType": {"name": "sequencingRead"},
		"samples": [{
			"submitterSampleId": "S1",
			"donor": {"submitterDonorId": "D1"},
			"specimen": {"submitterSpecimenId": "SP1"}
		}],
		"files": [{"fileName": "reads.bam", "fileSize": 1024}],
		"sequencingRead": {"pairedEnd": true}
	}`)
	result, err := service_.Submit(ctx, "ABC123", payload)
	assert.Nil(err) // rejection is an outcome, not a fault
	assert.Equal(metadata.UploadValidationError, result.State)
	assert.Empty(result.AnalysisId)
	assert.Equal(1, len(result.Violations))
	assert.Equal("/sequencingRead/libraryStrategy", result.Violations[0].Path)

	// the upload record holds the violations for later inspection
	upload, err := service_.GetUpload(ctx, "ABC123", result.UploadId)
	assert.Nil(err)
	assert.Equal(metadata.UploadValidationError, upload.State)
	assert.Equal(1, len(upload.Errors))
	assert.Contains(upload.Errors[0], "/sequencingRead/libraryStrategy")

	// a rejected payload reconciles nothing
	err = store_.WithTx(ctx, func(tx *store.Tx) error {
		_, found, err := tx.FindByBusinessKey(metadata.KindDonor, "ABC123", "D1")
		assert.Nil(err)
		assert.False(found)
		return nil
	})
	assert.Nil(err)
}

func (t *SerialTests) TestSubmitAndResubmit() {
	assert := assert.New(t.Test)
	ctx := context.Background()

	result, err := service_.Submit(ctx, "ABC123", amstest.SequencingReadPayload("ABC123"))
	assert.Nil(err)
	assert.Equal(metadata.UploadUploaded, result.State)
	assert.Equal(1, result.AnalysisTypeVersion)
	assert.True(strings.HasPrefix(result.AnalysisId, "AN-"))
	assert.Empty(result.Violations)

	detail, err := service_.GetAnalysis(ctx, "ABC123", result.AnalysisId)
	assert.Nil(err)
	assert.Equal(metadata.AnalysisValidated, detail.State)
	assert.Equal("sequencingRead", detail.TypeName)
	assert.Equal(1, len(detail.SampleIds))
	assert.Equal(1, len(detail.Files))
	assert.Equal("reads.bam", detail.Files[0].Name)

	// uploads are scoped to their study
	_, err = service_.GetUpload(ctx, "XYZ789", result.UploadId)
	assert.IsType(&NotFoundError{}, err)

	// resubmitting the payload reproduces the same analysis under a new
	// upload record
	again, err := service_.Submit(ctx, "ABC123", amstest.SequencingReadPayload("ABC123"))
	assert.Nil(err)
	assert.Equal(result.AnalysisId, again.AnalysisId)
	assert.NotEqual(result.UploadId, again.UploadId)

	analysisId_ = result.AnalysisId
}

func (t *SerialTests) TestPublish() {
	assert := assert.New(t.Test)
	ctx := context.Background()

	detail, err := service_.GetAnalysis(ctx, "ABC123", analysisId_)
	assert.Nil(err)

	// no manifest until the analysis is published
	_, err = service_.Manifest(ctx, "ABC123", detail.AnalysisId)
	assert.IsType(&NotFoundError{}, err)

	// the file's bytes aren't in the object store yet
	err = service_.Publish(ctx, "ABC123", detail.AnalysisId, false)
	assert.NotNil(err)
	missing, ok := err.(*MissingObjectsError)
	assert.True(ok)
	assert.Equal([]string{detail.Files[0].FileId}, missing.ObjectIds)

	// the failed check left the analysis untouched
	detail, err = service_.GetAnalysis(ctx, "ABC123", detail.AnalysisId)
	assert.Nil(err)
	assert.Equal(metadata.AnalysisValidated, detail.State)

	// with no objectId on record, the file's generated id addresses it
	objects_.Add(detail.Files[0].FileId)
	err = service_.Publish(ctx, "ABC123", detail.AnalysisId, false)
	assert.Nil(err)

	detail, err = service_.GetAnalysis(ctx, "ABC123", detail.AnalysisId)
	assert.Nil(err)
	assert.Equal(metadata.AnalysisPublished, detail.State)

	// the analysis's uploads were committed along with it
	err = store_.WithTx(ctx, func(tx *store.Tx) error {
		uploads, err := tx.UploadsForAnalysis(detail.AnalysisId)
		assert.Nil(err)
		assert.NotEmpty(uploads)
		for _, upload := range uploads {
			assert.Equal(metadata.UploadPublished, upload.State)
		}
		return nil
	})
	assert.Nil(err)

	// a published analysis has a manifest
	manifest, err := service_.Manifest(ctx, "ABC123", detail.AnalysisId)
	assert.Nil(err)
	assert.Contains(string(manifest), "reads.bam")

	// publishing again is an illegal transition
	err = service_.Publish(ctx, "ABC123", detail.AnalysisId, false)
	assert.IsType(&lifecycle.IllegalStateTransitionError{}, err)
}

func (t *SerialTests) TestUnpublishAndSuppress() {
	assert := assert.New(t.Test)
	ctx := context.Background()
	id := analysisId_

	err := service_.Unpublish(ctx, "ABC123", id)
	assert.Nil(err)
	detail, err := service_.GetAnalysis(ctx, "ABC123", id)
	assert.Nil(err)
	assert.Equal(metadata.AnalysisUnpublished, detail.State)

	// only a published analysis may be suppressed
	err = service_.Suppress(ctx, "ABC123", id)
	assert.IsType(&lifecycle.IllegalStateTransitionError{}, err)

	// publication is re-entrant
	err = service_.Publish(ctx, "ABC123", id, false)
	assert.Nil(err)

	err = service_.Suppress(ctx, "ABC123", id)
	assert.Nil(err)
	detail, err = service_.GetAnalysis(ctx, "ABC123", id)
	assert.Nil(err)
	assert.Equal(metadata.AnalysisSuppressed, detail.State)

	// SUPPRESSED is terminal
	err = service_.Unpublish(ctx, "ABC123", id)
	assert.IsType(&lifecycle.IllegalStateTransitionError{}, err)
	err = service_.Publish(ctx, "ABC123", id, false)
	assert.IsType(&lifecycle.IllegalStateTransitionError{}, err)
}

func (t *SerialTests) TestPublishWithoutChecksums() {
	assert := assert.New(t.Test)
	ctx := context.Background()

	// a second analysis whose file carries no checksum
	payload := []byte(`{
		"studyId": "ABC123",
		"analysisType": {"name": "sequencingRead"},
		"samples": [{
			"submitterSampleId": "S2",
			"donor": {"submitterDonorId": "D2"},
			"specimen": {"submitterSpecimenId": "SP2"}
		}],
		"files": [{"fileName": "variants.vcf", "fileSize": 256}],
		"sequencingRead": {"libraryStrategy": "WXS"}
	}`)
	result, err := service_.Submit(ctx, "ABC123", payload)
	assert.Nil(err)
	assert.Equal(metadata.UploadUploaded, result.State)

	err = service_.Publish(ctx, "ABC123", result.AnalysisId, false)
	assert.NotNil(err)
	unhashed, ok := err.(*MissingChecksumsError)
	assert.True(ok)
	assert.Equal([]string{"variants.vcf"}, unhashed.FileNames)

	// the caller may waive the checksum requirement explicitly
	detail, err := service_.GetAnalysis(ctx, "ABC123", result.AnalysisId)
	assert.Nil(err)
	objects_.Add(detail.Files[0].FileId)
	err = service_.Publish(ctx, "ABC123", result.AnalysisId, true)
	assert.Nil(err)
}
