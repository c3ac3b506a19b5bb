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
	"fmt"
)

// This error type is returned when an analysis type is sought but not
// registered, or a specific version of it does not exist.
type UnknownAnalysisTypeError struct {
	Name    string
	Version int
}

func (e UnknownAnalysisTypeError) Error() string {
	if e.Version > 0 {
		return fmt.Sprintf("The analysis type '%s' has no version %d", e.Name, e.Version)
	}
	return fmt.Sprintf("The analysis type '%s' is not registered", e.Name)
}

// indicates that a candidate schema document was rejected by the meta-schema
// guard (bad name, bad structure, or redefined envelope fields)
type InvalidSchemaError struct {
	Name, Message string
}

func (e InvalidSchemaError) Error() string {
	return fmt.Sprintf("Invalid schema for analysis type '%s': %s", e.Name, e.Message)
}

// indicates that a registration would duplicate the latest version of an
// analysis type verbatim; the caller must know the no-op was refused
type SchemaConflictError struct {
	Name    string
	Version int
}

func (e SchemaConflictError) Error() string {
	return fmt.Sprintf("The analysis type '%s' already has this schema at version %d",
		e.Name, e.Version)
}

// indicates that composing the base payload schema with an experiment schema
// produced a field collision; this is a configuration error, never silently
// resolved in either schema's favor
type SchemaCompositionError struct {
	Name, Field string
}

func (e SchemaCompositionError) Error() string {
	return fmt.Sprintf("Composing schema for analysis type '%s': field '%s' collides with the base payload schema",
		e.Name, e.Field)
}
