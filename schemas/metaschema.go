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
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// The meta-schema gates dynamic registration: a candidate analysis type
// schema must validate against it before it may enter the registry.
//
//go:embed meta_schema.json
var metaSchemaDocument []byte

// The base payload schema describes the common submission envelope (study,
// analysis type discriminator, samples, files). Experiment schemas are
// composed with it at resolution time.
//
//go:embed base_payload.json
var basePayloadDocument []byte

// top-level payload fields owned by the base schema; an experiment schema
// may not redefine them
var reservedFields = []string{
	"studyId",
	"analysisId",
	"analysisType",
	"samples",
	"files",
	"info",
}

// the compiled meta-schema (compiled once at startup; the document is
// embedded, so a failure here is a build defect)
var metaSchema = mustCompile("meta_schema.json", metaSchemaDocument)

func mustCompile(url string, document []byte) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(url, bytes.NewReader(document)); err != nil {
		panic(fmt.Sprintf("adding embedded schema %s: %s", url, err.Error()))
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("compiling embedded schema %s: %s", url, err.Error()))
	}
	return schema
}

// GuardSchema checks a candidate analysis type schema document before it may
// be registered:
//   - the document is a JSON object and validates against the meta-schema
//     (title, type, properties present; type is "object")
//   - the document compiles as a JSON Schema
//   - the document does not redefine reserved envelope fields owned by the
//     base payload schema
//
// A rejected document produces an InvalidSchemaError naming the first
// problem found.
func GuardSchema(name string, document json.RawMessage) error {
	var doc any
	if err := json.Unmarshal(document, &doc); err != nil {
		return &InvalidSchemaError{Name: name, Message: fmt.Sprintf("not valid JSON: %s", err.Error())}
	}

	if err := metaSchema.Validate(doc); err != nil {
		return &InvalidSchemaError{Name: name, Message: metaSchemaMessage(err)}
	}

	// does the document compile as a JSON Schema?
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("candidate.json", bytes.NewReader(document)); err != nil {
		return &InvalidSchemaError{Name: name, Message: err.Error()}
	}
	if _, err := compiler.Compile("candidate.json"); err != nil {
		return &InvalidSchemaError{Name: name, Message: fmt.Sprintf("not a valid JSON Schema: %s", err.Error())}
	}

	// reserved envelope fields belong to the base schema
	docMap := doc.(map[string]any) // meta-schema guarantees an object
	if properties, ok := docMap["properties"].(map[string]any); ok {
		for _, reserved := range reservedFields {
			if _, found := properties[reserved]; found {
				return &InvalidSchemaError{
					Name:    name,
					Message: fmt.Sprintf("the field '%s' is owned by the base payload schema", reserved),
				}
			}
		}
	}
	return nil
}

// summarizes a meta-schema validation failure in a single line
func metaSchemaMessage(err error) string {
	if verr, ok := err.(*jsonschema.ValidationError); ok {
		messages := make([]string, 0)
		for _, leaf := range leafCauses(verr) {
			if leaf.InstanceLocation != "" {
				messages = append(messages, fmt.Sprintf("%s: %s", leaf.InstanceLocation, leaf.Message))
			} else {
				messages = append(messages, leaf.Message)
			}
		}
		return strings.Join(messages, "; ")
	}
	return err.Error()
}

// returns the leaf causes of a validation error in document order
func leafCauses(err *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(err.Causes) == 0 {
		return []*jsonschema.ValidationError{err}
	}
	leaves := make([]*jsonschema.ValidationError, 0)
	for _, cause := range err.Causes {
		leaves = append(leaves, leafCauses(cause)...)
	}
	return leaves
}
