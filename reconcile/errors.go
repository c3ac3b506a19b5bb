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

package reconcile

import (
	"fmt"

	"github.com/ams-project/ams/metadata"
)

// This error type is returned when a payload is submitted to a study that
// has not been created.
type UnknownStudyError struct {
	StudyId string
}

func (e UnknownStudyError) Error() string {
	return fmt.Sprintf("The study '%s' does not exist.", e.StudyId)
}

// This error type is returned when a submitted entity's business key matches
// an existing entity whose position in the hierarchy disagrees with the
// payload (e.g. a sample resubmitted under a different specimen).
type BusinessKeyCollisionError struct {
	Kind    metadata.EntityKind
	StudyId string
	Key     string
	Detail  string
}

func (e BusinessKeyCollisionError) Error() string {
	return fmt.Sprintf("The %s '%s' in study '%s' collides with an existing record: %s",
		e.Kind, e.Key, e.StudyId, e.Detail)
}

// This error type is returned when a submitted analysis identifier belongs
// to an analysis that can no longer be replaced.
type AnalysisConflictError struct {
	AnalysisId string
	Detail     string
}

func (e AnalysisConflictError) Error() string {
	return fmt.Sprintf("The analysis '%s' cannot be replaced: %s",
		e.AnalysisId, e.Detail)
}
