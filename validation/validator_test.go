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

package validation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ams-project/ams/amstest"
	"github.com/ams-project/ams/schemas"
)

// an in-memory schema storage for validator tests
type memoryStorage struct {
	schemas map[string][]schemas.AnalysisTypeSchema
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{schemas: make(map[string][]schemas.AnalysisTypeSchema)}
}

func (m *memoryStorage) InsertSchema(name string, document json.RawMessage) (int, error) {
	version := len(m.schemas[name]) + 1
	m.schemas[name] = append(m.schemas[name], schemas.AnalysisTypeSchema{
		Name:      name,
		Version:   version,
		Document:  document,
		CreatedAt: time.Now(),
	})
	return version, nil
}

func (m *memoryStorage) GetSchema(name string, version int) (schemas.AnalysisTypeSchema, bool, error) {
	versions := m.schemas[name]
	if version < 1 || version > len(versions) {
		return schemas.AnalysisTypeSchema{}, false, nil
	}
	return versions[version-1], true, nil
}

func (m *memoryStorage) LatestSchema(name string) (schemas.AnalysisTypeSchema, bool, error) {
	versions := m.schemas[name]
	if len(versions) == 0 {
		return schemas.AnalysisTypeSchema{}, false, nil
	}
	return versions[len(versions)-1], true, nil
}

func (m *memoryStorage) ListSchemas(filter string, offset, limit int) ([]schemas.AnalysisTypeSchema, error) {
	listed := make([]schemas.AnalysisTypeSchema, 0)
	for _, versions := range m.schemas {
		for i := len(versions) - 1; i >= 0; i-- {
			listed = append(listed, versions[i])
		}
	}
	return listed, nil
}

// creates a validator whose registry holds sequencingRead v1
func sequencingReadValidator(t *testing.T) *Validator {
	registry := schemas.NewRegistry(newMemoryStorage())
	if _, err := registry.Register("sequencingRead", []byte(amstest.SequencingReadSchema)); err != nil {
		t.Fatalf("Couldn't register test schema: %s", err)
	}
	return NewValidator(registry)
}

func TestValidPayloadIsAccepted(t *testing.T) {
	assert := assert.New(t)
	validator := sequencingReadValidator(t)

	result, err := validator.Validate(amstest.SequencingReadPayload("ABC123"), "sequencingRead", 0)
	assert.Nil(err)
	assert.True(result.Accepted())
	assert.Equal("sequencingRead", result.TypeName)
	assert.Equal(1, result.TypeVersion)
}

func TestMissingRequiredFieldIsFlaggedAtItsPath(t *testing.T) {
	assert := assert.New(t)
	validator := sequencingReadValidator(t)

	// libraryStrategy omitted from the experiment document
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
	result, err := validator.Validate(payload, "sequencingRead", 0)
	assert.Nil(err)
	assert.False(result.Accepted())
	assert.Equal(1, len(result.Violations))
	assert.Equal("/sequencingRead/libraryStrategy", result.Violations[0].Path)
}

func TestEnvelopeViolations(t *testing.T) {
	assert := assert.New(t)
	validator := sequencingReadValidator(t)

	// no studyId, no files
	payload := []byte(`{
		"analysisType": {"name": "sequencingRead"},
		"samples": [{
			"submitterSampleId": "S1",
			"donor": {"submitterDonorId": "D1"},
			"specimen": {"submitterSpecimenId": "SP1"}
		}],
		"sequencingRead": {"libraryStrategy": "WGS"}
	}`)
	result, err := validator.Validate(payload, "sequencingRead", 0)
	assert.Nil(err)
	assert.False(result.Accepted())

	paths := make([]string, len(result.Violations))
	for i, violation := range result.Violations {
		paths[i] = violation.Path
	}
	assert.Contains(paths, "/studyId")
	assert.Contains(paths, "/files")
}

func TestExperimentFieldViolation(t *testing.T) {
	assert := assert.New(t)
	validator := sequencingReadValidator(t)

	// a libraryStrategy outside the schema's enumeration
	payload := []byte(`{
		"studyId": "ABC123",
		"analysisType": {"name": "sequencingRead"},
		"samples": [{
			"submitterSampleId": "S1",
			"donor": {"submitterDonorId": "D1"},
			"specimen": {"submitterSpecimenId": "SP1"}
		}],
		"files": [{"fileName": "reads.bam", "fileSize": 1024}],
		"sequencingRead": {"libraryStrategy": "SONAR"}
	}`)
	result, err := validator.Validate(payload, "sequencingRead", 0)
	assert.Nil(err)
	assert.False(result.Accepted())
	assert.Equal("/sequencingRead/libraryStrategy", result.Violations[0].Path)
}

func TestMalformedPayload(t *testing.T) {
	assert := assert.New(t)
	validator := sequencingReadValidator(t)

	_, err := validator.Validate([]byte(`{"studyId": `), "sequencingRead", 0)
	assert.NotNil(err)
	assert.IsType(&MalformedPayloadError{}, err)
}

func TestUnknownAnalysisType(t *testing.T) {
	assert := assert.New(t)
	validator := sequencingReadValidator(t)

	_, err := validator.Validate(amstest.SequencingReadPayload("ABC123"), "variantCall", 0)
	assert.NotNil(err)
	assert.IsType(&schemas.UnknownAnalysisTypeError{}, err)
}

func TestViolationString(t *testing.T) {
	assert := assert.New(t)

	violation := Violation{Path: "/sequencingRead/libraryStrategy", Message: "a required field is missing"}
	assert.Equal("/sequencingRead/libraryStrategy: a required field is missing", violation.String())
}
