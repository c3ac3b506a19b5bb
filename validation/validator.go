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

// This package validates raw submission payloads against the resolved schema
// for their declared analysis type. Validation is stateless and side-effect
// free: it never mutates the schema registry or the metadata store, and all
// violations are collected into one list rather than failing on the first.
package validation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ams-project/ams/schemas"
)

// one schema violation found in a payload
type Violation struct {
	// a JSON-pointer-style path identifying the offending location
	Path string `json:"path"`
	// a human-readable description of the problem
	Message string `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// the outcome of validating one payload against one pinned schema version
type Result struct {
	// the analysis type name and the concrete version the payload was
	// validated against (pinned at the start of validation)
	TypeName    string `json:"analysisTypeName"`
	TypeVersion int    `json:"analysisTypeVersion"`
	// all violations found; an empty list means the payload is accepted
	Violations []Violation `json:"violations"`
}

// returns true if the payload was accepted
func (r Result) Accepted() bool {
	return len(r.Violations) == 0
}

// The Validator checks raw submitted documents against resolved schemas.
type Validator struct {
	registry *schemas.Registry
}

// creates a validator backed by the given schema registry
func NewValidator(registry *schemas.Registry) *Validator {
	return &Validator{registry: registry}
}

// Validates a raw submitted document against the resolved schema for the
// named analysis type (version 0 pins the latest version at the time of the
// call). A document that cannot be parsed as JSON fails with a
// MalformedPayloadError, which is distinct from schema violations; an
// unregistered analysis type fails with schemas.UnknownAnalysisTypeError.
func (v *Validator) Validate(raw []byte, name string, version int) (Result, error) {
	var document any
	if err := json.Unmarshal(raw, &document); err != nil {
		return Result{}, &MalformedPayloadError{Message: err.Error()}
	}

	resolved, err := v.registry.Resolve(name, version)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		TypeName:    resolved.TypeName,
		TypeVersion: resolved.TypeVersion,
		Violations:  make([]Violation, 0),
	}
	if err := resolved.Validate(document); err != nil {
		verr, ok := err.(*jsonschema.ValidationError)
		if !ok {
			return Result{}, err
		}
		result.Violations = flatten(verr)
	}
	return result, nil
}

// matches the quoted property names in the validator's "missing properties"
// message
var missingProperties = regexp.MustCompile(`'([^']+)'`)

// This helper flattens a validation error tree into a sorted list of
// violations. A failed "required" keyword is reported once per missing
// property, with the property appended to the instance path, so a payload
// missing /sequencingRead/libraryStrategy is flagged at exactly that path.
func flatten(err *jsonschema.ValidationError) []Violation {
	violations := make([]Violation, 0)
	for _, leaf := range leafCauses(err) {
		if isRequiredKeyword(leaf.KeywordLocation) {
			for _, match := range missingProperties.FindAllStringSubmatch(leaf.Message, -1) {
				violations = append(violations, Violation{
					Path:    leaf.InstanceLocation + "/" + match[1],
					Message: "a required field is missing",
				})
			}
			continue
		}
		path := leaf.InstanceLocation
		if path == "" {
			path = "/"
		}
		violations = append(violations, Violation{
			Path:    path,
			Message: leaf.Message,
		})
	}
	sort.Slice(violations, func(i, j int) bool { // deterministic ordering
		if violations[i].Path != violations[j].Path {
			return violations[i].Path < violations[j].Path
		}
		return violations[i].Message < violations[j].Message
	})
	return violations
}

var requiredKeyword = regexp.MustCompile(`/required$`)

func isRequiredKeyword(keywordLocation string) bool {
	return requiredKeyword.MatchString(keywordLocation)
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
