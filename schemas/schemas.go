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

// This package maintains the registry of analysis type schemas: named,
// versioned JSON Schema documents describing the experiment-specific portion
// of a submission payload. Registration is append-only and gated by a
// meta-schema; a change to a schema always produces a new version.
package schemas

import (
	"encoding/json"
	"reflect"
	"regexp"
	"time"
)

// One registered version of an analysis type schema. The document is
// immutable once created.
type AnalysisTypeSchema struct {
	// the analysis type name (e.g. "sequencingRead")
	Name string `json:"name"`
	// the version, assigned monotonically per name starting at 1
	Version int `json:"version"`
	// the JSON Schema document for the experiment-specific payload portion
	Document json.RawMessage `json:"schema"`
	// time at which this version was registered
	CreatedAt time.Time `json:"createdAt"`
}

// Storage is the persistence collaborator for the registry. Versions for a
// name must form a gap-free increasing sequence assigned at insert time.
type Storage interface {
	// appends a new version for the named type, returning the assigned version
	InsertSchema(name string, document json.RawMessage) (int, error)
	// fetches a specific version (version > 0)
	GetSchema(name string, version int) (AnalysisTypeSchema, bool, error)
	// fetches the latest version of the named type
	LatestSchema(name string) (AnalysisTypeSchema, bool, error)
	// lists registered schemas (latest versions first within a name),
	// filtered by a substring match on the name
	ListSchemas(filter string, offset, limit int) ([]AnalysisTypeSchema, error)
}

// analysis type names must look like identifiers
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// The Registry provides versioned access to analysis type schemas, and
// meta-schema-guarded registration of new ones.
type Registry struct {
	storage Storage
}

// creates a registry backed by the given storage
func NewRegistry(storage Storage) *Registry {
	return &Registry{storage: storage}
}

// Registers a new schema document for the named analysis type, returning the
// assigned version. Fails with an InvalidSchemaError if the meta-schema
// guard rejects the document, or with a SchemaConflictError if the document
// is identical to the latest registered version (resubmitting a schema is
// not silently accepted--the caller must know).
func (r *Registry) Register(name string, document json.RawMessage) (int, error) {
	if !namePattern.MatchString(name) {
		return 0, &InvalidSchemaError{
			Name:    name,
			Message: "analysis type names may contain only letters, digits, '.', '_', and '-'",
		}
	}
	if err := GuardSchema(name, document); err != nil {
		return 0, err
	}

	// refuse a verbatim duplicate of the latest version
	latest, found, err := r.storage.LatestSchema(name)
	if err != nil {
		return 0, err
	}
	if found && jsonEqual(latest.Document, document) {
		return 0, &SchemaConflictError{Name: name, Version: latest.Version}
	}

	return r.storage.InsertSchema(name, document)
}

// Fetches the named analysis type schema. A version of 0 selects the latest
// registered version. Fails with an UnknownAnalysisTypeError if the name is
// unregistered or the specific version does not exist.
func (r *Registry) Get(name string, version int) (AnalysisTypeSchema, error) {
	var schema AnalysisTypeSchema
	var found bool
	var err error
	if version > 0 {
		schema, found, err = r.storage.GetSchema(name, version)
	} else {
		schema, found, err = r.storage.LatestSchema(name)
	}
	if err != nil {
		return AnalysisTypeSchema{}, err
	}
	if !found {
		return AnalysisTypeSchema{}, &UnknownAnalysisTypeError{Name: name, Version: version}
	}
	return schema, nil
}

// Lists registered analysis type schemas whose names contain the given
// filter substring (all names if the filter is empty), with offset/limit
// pagination. Within a name, newer versions come first.
func (r *Registry) List(filter string, offset, limit int) ([]AnalysisTypeSchema, error) {
	return r.storage.ListSchemas(filter, offset, limit)
}

// compares two JSON documents for semantic equality (field order and
// whitespace are irrelevant)
func jsonEqual(a, b json.RawMessage) bool {
	var aVal, bVal any
	if err := json.Unmarshal(a, &aVal); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bVal); err != nil {
		return false
	}
	return reflect.DeepEqual(aVal, bVal)
}
