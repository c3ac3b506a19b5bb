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

package schemas

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// an in-memory Storage for registry tests
type memoryStorage struct {
	schemas map[string][]AnalysisTypeSchema
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{schemas: make(map[string][]AnalysisTypeSchema)}
}

func (m *memoryStorage) InsertSchema(name string, document json.RawMessage) (int, error) {
	version := len(m.schemas[name]) + 1
	m.schemas[name] = append(m.schemas[name], AnalysisTypeSchema{
		Name:      name,
		Version:   version,
		Document:  document,
		CreatedAt: time.Now(),
	})
	return version, nil
}

func (m *memoryStorage) GetSchema(name string, version int) (AnalysisTypeSchema, bool, error) {
	versions := m.schemas[name]
	if version < 1 || version > len(versions) {
		return AnalysisTypeSchema{}, false, nil
	}
	return versions[version-1], true, nil
}

func (m *memoryStorage) LatestSchema(name string) (AnalysisTypeSchema, bool, error) {
	versions := m.schemas[name]
	if len(versions) == 0 {
		return AnalysisTypeSchema{}, false, nil
	}
	return versions[len(versions)-1], true, nil
}

func (m *memoryStorage) ListSchemas(filter string, offset, limit int) ([]AnalysisTypeSchema, error) {
	listed := make([]AnalysisTypeSchema, 0)
	for name, versions := range m.schemas {
		if filter != "" && !strings.Contains(name, filter) {
			continue
		}
		for i := len(versions) - 1; i >= 0; i-- {
			listed = append(listed, versions[i])
		}
	}
	return listed, nil
}

const sequencingReadV1 = `{
	"title": "Sequencing read experiment",
	"type": "object",
	"properties": {
		"libraryStrategy": {"type": "string"}
	},
	"required": ["libraryStrategy"]
}`

const sequencingReadV2 = `{
	"title": "Sequencing read experiment",
	"type": "object",
	"properties": {
		"libraryStrategy": {"type": "string"},
		"pairedEnd": {"type": "boolean"}
	},
	"required": ["libraryStrategy"]
}`

func TestRegisterAssignsMonotonicVersions(t *testing.T) {
	assert := assert.New(t)
	registry := NewRegistry(newMemoryStorage())

	version, err := registry.Register("sequencingRead", []byte(sequencingReadV1))
	assert.Nil(err)
	assert.Equal(1, version)

	version, err = registry.Register("sequencingRead", []byte(sequencingReadV2))
	assert.Nil(err)
	assert.Equal(2, version)

	// "latest" means the highest version
	latest, err := registry.Get("sequencingRead", 0)
	assert.Nil(err)
	assert.Equal(2, latest.Version)

	// earlier versions remain readable
	first, err := registry.Get("sequencingRead", 1)
	assert.Nil(err)
	assert.Equal(1, first.Version)
}

func TestRegisterRefusesVerbatimDuplicate(t *testing.T) {
	assert := assert.New(t)
	registry := NewRegistry(newMemoryStorage())

	_, err := registry.Register("sequencingRead", []byte(sequencingReadV1))
	assert.Nil(err)

	// same document again, modulo whitespace and field order
	reordered := `{"type": "object", "required": ["libraryStrategy"],
		"properties": {"libraryStrategy": {"type": "string"}},
		"title": "Sequencing read experiment"}`
	_, err = registry.Register("sequencingRead", []byte(reordered))
	assert.NotNil(err)
	assert.IsType(&SchemaConflictError{}, err)

	// a duplicate of an OLDER version is a legitimate new version
	_, err = registry.Register("sequencingRead", []byte(sequencingReadV2))
	assert.Nil(err)
	version, err := registry.Register("sequencingRead", []byte(sequencingReadV1))
	assert.Nil(err)
	assert.Equal(3, version)
}

func TestRegisterRejectsBadNames(t *testing.T) {
	assert := assert.New(t)
	registry := NewRegistry(newMemoryStorage())

	for _, name := range []string{"", "sequencing read", "foo/bar", "foo$"} {
		_, err := registry.Register(name, []byte(sequencingReadV1))
		assert.NotNil(err)
		assert.IsType(&InvalidSchemaError{}, err)
	}
}

func TestGuardRejectsBadSchemas(t *testing.T) {
	assert := assert.New(t)

	// not JSON at all
	err := GuardSchema("bad", []byte(`{not json`))
	assert.IsType(&InvalidSchemaError{}, err)

	// missing required meta-schema fields (no title)
	err = GuardSchema("bad", []byte(`{"type": "object", "properties": {"x": {}}}`))
	assert.IsType(&InvalidSchemaError{}, err)

	// wrong top-level type
	err = GuardSchema("bad", []byte(`{"title": "Bad", "type": "array", "properties": {"x": {}}}`))
	assert.IsType(&InvalidSchemaError{}, err)

	// redefines an envelope field owned by the base payload schema
	err = GuardSchema("bad", []byte(`{
		"title": "Bad",
		"type": "object",
		"properties": {"studyId": {"type": "string"}}
	}`))
	assert.NotNil(err)
	assert.Contains(err.Error(), "studyId")
}

func TestGetUnknownAnalysisType(t *testing.T) {
	assert := assert.New(t)
	registry := NewRegistry(newMemoryStorage())

	_, err := registry.Get("variantCall", 0)
	assert.IsType(&UnknownAnalysisTypeError{}, err)

	// a registered name with a nonexistent version is just as unknown
	_, err = registry.Register("variantCall", []byte(sequencingReadV1))
	assert.Nil(err)
	_, err = registry.Get("variantCall", 7)
	assert.IsType(&UnknownAnalysisTypeError{}, err)
}

func TestList(t *testing.T) {
	assert := assert.New(t)
	registry := NewRegistry(newMemoryStorage())

	_, err := registry.Register("sequencingRead", []byte(sequencingReadV1))
	assert.Nil(err)
	_, err = registry.Register("variantCall", []byte(sequencingReadV1))
	assert.Nil(err)

	all, err := registry.List("", 0, 10)
	assert.Nil(err)
	assert.Equal(2, len(all))

	filtered, err := registry.List("variant", 0, 10)
	assert.Nil(err)
	assert.Equal(1, len(filtered))
	assert.Equal("variantCall", filtered[0].Name)
}

func TestResolve(t *testing.T) {
	assert := assert.New(t)
	registry := NewRegistry(newMemoryStorage())

	_, err := registry.Register("sequencingRead", []byte(sequencingReadV1))
	assert.Nil(err)
	_, err = registry.Register("sequencingRead", []byte(sequencingReadV2))
	assert.Nil(err)

	// resolving "latest" pins the concrete version
	resolved, err := registry.Resolve("sequencingRead", 0)
	assert.Nil(err)
	assert.Equal("sequencingRead", resolved.TypeName)
	assert.Equal(2, resolved.TypeVersion)

	// the experiment document lands under the type's name, and becomes
	// required alongside the envelope fields
	properties := resolved.Document["properties"].(map[string]any)
	assert.Contains(properties, "sequencingRead")
	assert.Contains(properties, "studyId")
	required := resolved.Document["required"].([]any)
	assert.Contains(required, "sequencingRead")
	assert.Contains(required, "studyId")

	resolved, err = registry.Resolve("sequencingRead", 1)
	assert.Nil(err)
	assert.Equal(1, resolved.TypeVersion)

	_, err = registry.Resolve("variantCall", 0)
	assert.IsType(&UnknownAnalysisTypeError{}, err)
}

func TestDeepMergeReportsCollisions(t *testing.T) {
	assert := assert.New(t)

	base := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"samples": map[string]any{"type": "array"},
		},
	}
	overlay := map[string]any{
		"properties": map[string]any{
			"samples": map[string]any{"type": "object"},
		},
	}
	_, err := deepMerge(base, overlay, "samples", "")
	assert.NotNil(err)
	assert.IsType(&SchemaCompositionError{}, err)
	assert.Contains(err.Error(), "/properties/samples/type")
}

func TestDeepMergeUnionsRequired(t *testing.T) {
	assert := assert.New(t)

	base := map[string]any{"required": []any{"studyId", "files"}}
	overlay := map[string]any{"required": []any{"files", "sequencingRead"}}
	merged, err := deepMerge(base, overlay, "sequencingRead", "")
	assert.Nil(err)
	assert.Equal([]any{"studyId", "files", "sequencingRead"}, merged["required"])
}
