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

// These tests must be run serially, since they share one database whose
// records build on one another.

package reconcile

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ams-project/ams/amstest"
	"github.com/ams-project/ams/metadata"
	"github.com/ams-project/ams/store"
)

// temporary testing directory
var TESTING_DIR string

// the store backing the engine under test
var store_ *store.Store

// runs all tests serially
func TestRunner(t *testing.T) {
	tester := SerialTests{Test: t}
	tester.TestUnknownStudy()
	tester.TestFirstSubmission()
	tester.TestIdempotentResubmission()
	tester.TestLineageCollisionRollsBackEverything()
	tester.TestAnalysisNotReplaceableOncePublished()
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
	TESTING_DIR, err = os.MkdirTemp(os.TempDir(), "ams-reconcile-tests-")
	if err != nil {
		log.Panicf("Couldn't create testing directory: %s", err)
	}
	store_, err = store.Open(filepath.Join(TESTING_DIR, "ams.db"))
	if err != nil {
		log.Panicf("Couldn't open metadata database: %s", err)
	}

	// submission targets only studies that already exist
	err = store_.WithTx(context.Background(), func(tx *store.Tx) error {
		return tx.InsertStudy(metadata.Study{StudyId: "ABC123", Name: "Test study"})
	})
	if err != nil {
		log.Panicf("Couldn't create test study: %s", err)
	}
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

// parses the canned sequencingRead payload for the given study
func parsePayload(t *testing.T, raw []byte) *metadata.Payload {
	payload, err := metadata.ParsePayload(raw)
	if err != nil {
		t.Fatalf("Couldn't parse test payload: %s", err)
	}
	return payload
}

// To run the tests serially, we attach them to a SerialTests type and
// have them run by a single test runner.
type SerialTests struct{ Test *testing.T }

func (t *SerialTests) TestUnknownStudy() {
	assert := assert.New(t.Test)
	engine := NewEngine(store_)

	payload := parsePayload(t.Test, amstest.SequencingReadPayload("NOPE"))
	_, err := engine.Reconcile(context.Background(), payload, 1)
	assert.NotNil(err)
	assert.IsType(&UnknownStudyError{}, err)
}

func (t *SerialTests) TestFirstSubmission() {
	assert := assert.New(t.Test)
	ctx := context.Background()
	engine := NewEngine(store_)

	payload := parsePayload(t.Test, amstest.SequencingReadPayload("ABC123"))
	result, err := engine.Reconcile(ctx, payload, 1)
	assert.Nil(err)
	assert.True(result.Created)
	assert.True(strings.HasPrefix(result.AnalysisId, "AN-"))
	assert.Equal(1, len(result.SampleIds))
	assert.True(strings.HasPrefix(result.SampleIds[0], "SA-"))
	assert.Equal(1, len(result.FileIds))
	assert.True(strings.HasPrefix(result.FileIds[0], "FI-"))

	// the whole hierarchy is persisted and linked together
	err = store_.WithTx(ctx, func(tx *store.Tx) error {
		donorId, found, err := tx.FindByBusinessKey(metadata.KindDonor, "ABC123", "D1")
		assert.Nil(err)
		assert.True(found)
		assert.True(strings.HasPrefix(donorId, "DO-"))

		sample, found, err := tx.GetSample(result.SampleIds[0])
		assert.Nil(err)
		assert.True(found)
		assert.Equal("S1", sample.SubmitterId)

		specimen, found, err := tx.GetSpecimen(sample.SpecimenId)
		assert.Nil(err)
		assert.True(found)
		assert.Equal(donorId, specimen.DonorId)

		analysis, found, err := tx.GetAnalysis(result.AnalysisId)
		assert.Nil(err)
		assert.True(found)
		assert.Equal(metadata.AnalysisValidated, analysis.State)
		assert.Equal("sequencingRead", analysis.TypeName)
		assert.Equal(1, analysis.TypeVersion)

		sampleIds, err := tx.AnalysisSamples(result.AnalysisId)
		assert.Nil(err)
		assert.Equal(result.SampleIds, sampleIds)

		files, err := tx.AnalysisFiles(result.AnalysisId)
		assert.Nil(err)
		assert.Equal(1, len(files))
		assert.Equal(result.FileIds[0], files[0].FileId)
		return nil
	})
	assert.Nil(err)
}

func (t *SerialTests) TestIdempotentResubmission() {
	assert := assert.New(t.Test)
	ctx := context.Background()
	engine := NewEngine(store_)

	first := parsePayload(t.Test, amstest.SequencingReadPayload("ABC123"))
	firstResult, err := engine.Reconcile(ctx, first, 1)
	assert.Nil(err)

	// the same payload with only the sample's info changed: same
	// identifiers, updated info, no new entities
	second := parsePayload(t.Test, amstest.SequencingReadPayload("ABC123"))
	second.Samples[0].Info = metadata.Info{"prep": "corrected"}
	secondResult, err := engine.Reconcile(ctx, second, 1)
	assert.Nil(err)
	assert.False(secondResult.Created)
	assert.Equal(firstResult.AnalysisId, secondResult.AnalysisId)
	assert.Equal(firstResult.SampleIds, secondResult.SampleIds)
	assert.Equal(firstResult.FileIds, secondResult.FileIds)

	err = store_.WithTx(ctx, func(tx *store.Tx) error {
		sample, found, err := tx.GetSample(secondResult.SampleIds[0])
		assert.Nil(err)
		assert.True(found)
		assert.Equal("corrected", sample.Info["prep"])
		return nil
	})
	assert.Nil(err)
}

func (t *SerialTests) TestLineageCollisionRollsBackEverything() {
	assert := assert.New(t.Test)
	ctx := context.Background()
	engine := NewEngine(store_)

	// specimen SP1 already belongs to donor D1; a payload claiming it for a
	// new donor D9 is a business-key collision, and nothing it mentions
	// survives--not even the new donor inserted before the collision
	payload := parsePayload(t.Test, amstest.SequencingReadPayload("ABC123"))
	payload.Samples[0].Donor.SubmitterId = "D9"
	_, err := engine.Reconcile(ctx, payload, 1)
	assert.NotNil(err)
	assert.IsType(&BusinessKeyCollisionError{}, err)

	err = store_.WithTx(ctx, func(tx *store.Tx) error {
		_, found, err := tx.FindByBusinessKey(metadata.KindDonor, "ABC123", "D9")
		assert.Nil(err)
		assert.False(found)
		return nil
	})
	assert.Nil(err)
}

func (t *SerialTests) TestAnalysisNotReplaceableOncePublished() {
	assert := assert.New(t.Test)
	ctx := context.Background()
	engine := NewEngine(store_)

	payload := parsePayload(t.Test, amstest.SequencingReadPayload("ABC123"))
	result, err := engine.Reconcile(ctx, payload, 1)
	assert.Nil(err)

	err = store_.WithTx(ctx, func(tx *store.Tx) error {
		return tx.SetAnalysisState(result.AnalysisId, metadata.AnalysisPublished)
	})
	assert.Nil(err)

	// resubmitting the same payload now targets a published analysis
	_, err = engine.Reconcile(ctx, payload, 1)
	assert.NotNil(err)
	assert.IsType(&AnalysisConflictError{}, err)

	// put it back for any later tests
	err = store_.WithTx(ctx, func(tx *store.Tx) error {
		return tx.SetAnalysisState(result.AnalysisId, metadata.AnalysisValidated)
	})
	assert.Nil(err)
}
