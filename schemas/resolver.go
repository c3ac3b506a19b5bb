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
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// A ResolvedSchema is the effective validation schema for one analysis type
// version: the base payload schema with the experiment schema attached under
// the type's name. It is a transient value--resolution pins the version at
// the time of the call, so concurrent registration of a new version cannot
// change the outcome of a validation already in flight.
type ResolvedSchema struct {
	// the analysis type this schema validates
	TypeName string
	// the concrete version resolved (never 0, even when "latest" was asked for)
	TypeVersion int
	// the merged schema document
	Document map[string]any

	compiled *jsonschema.Schema
}

// validates a parsed JSON document against the resolved schema
func (rs *ResolvedSchema) Validate(document any) error {
	return rs.compiled.Validate(document)
}

// Resolves the effective validation schema for the named analysis type. A
// version of 0 selects the latest registered version. The experiment schema
// becomes a required property named after the analysis type; a collision
// with a base schema field fails with a SchemaCompositionError rather than
// silently overriding either side.
func (r *Registry) Resolve(name string, version int) (*ResolvedSchema, error) {
	schema, err := r.Get(name, version)
	if err != nil {
		return nil, err
	}

	var base map[string]any
	if err := json.Unmarshal(basePayloadDocument, &base); err != nil {
		return nil, fmt.Errorf("parsing base payload schema: %s", err.Error())
	}
	var experiment map[string]any
	if err := json.Unmarshal(schema.Document, &experiment); err != nil {
		return nil, &InvalidSchemaError{Name: name, Message: err.Error()}
	}

	// the experiment document enters the envelope as a required property
	// named after the analysis type
	fragment := map[string]any{
		"properties": map[string]any{
			schema.Name: experiment,
		},
		"required": []any{schema.Name},
	}
	merged, err := deepMerge(base, fragment, schema.Name, "")
	if err != nil {
		return nil, err
	}

	mergedBytes, err := json.Marshal(merged)
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("resolved.json", bytes.NewReader(mergedBytes)); err != nil {
		return nil, err
	}
	compiled, err := compiler.Compile("resolved.json")
	if err != nil {
		return nil, &InvalidSchemaError{Name: name, Message: err.Error()}
	}

	return &ResolvedSchema{
		TypeName:    schema.Name,
		TypeVersion: schema.Version,
		Document:    merged,
		compiled:    compiled,
	}, nil
}

// This helper deep-merges the overlay map into the base map. Maps merge
// recursively and the "required" arrays union; any other key present in both
// maps is a collision, reported as a SchemaCompositionError naming the
// colliding field.
func deepMerge(base, overlay map[string]any, typeName, path string) (map[string]any, error) {
	merged := make(map[string]any, len(base)+len(overlay))
	for key, value := range base {
		merged[key] = value
	}
	for key, value := range overlay {
		existing, found := merged[key]
		if !found {
			merged[key] = value
			continue
		}
		fieldPath := path + "/" + key
		switch existingVal := existing.(type) {
		case map[string]any:
			overlayMap, ok := value.(map[string]any)
			if !ok {
				return nil, &SchemaCompositionError{Name: typeName, Field: fieldPath}
			}
			mergedChild, err := deepMerge(existingVal, overlayMap, typeName, fieldPath)
			if err != nil {
				return nil, err
			}
			merged[key] = mergedChild
		case []any:
			if key != "required" {
				return nil, &SchemaCompositionError{Name: typeName, Field: fieldPath}
			}
			overlaySlice, ok := value.([]any)
			if !ok {
				return nil, &SchemaCompositionError{Name: typeName, Field: fieldPath}
			}
			merged[key] = unionStrings(existingVal, overlaySlice)
		default:
			return nil, &SchemaCompositionError{Name: typeName, Field: fieldPath}
		}
	}
	return merged, nil
}

// unions two JSON string arrays, preserving first-seen order
func unionStrings(a, b []any) []any {
	seen := make(map[any]bool, len(a)+len(b))
	union := make([]any, 0, len(a)+len(b))
	for _, values := range [][]any{a, b} {
		for _, value := range values {
			if !seen[value] {
				seen[value] = true
				union = append(union, value)
			}
		}
	}
	return union
}
