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

package submission

import (
	"fmt"
	"strings"
)

// This error type is returned when a requested record does not exist.
type NotFoundError struct {
	Record string // "study", "upload", or "analysis"
	Id     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("No %s was found with ID %s.", e.Record, e.Id)
}

// This error type is returned when a study is created with an ID that is
// already taken.
type StudyExistsError struct {
	StudyId string
}

func (e StudyExistsError) Error() string {
	return fmt.Sprintf("The study '%s' already exists.", e.StudyId)
}

// This error type is returned when a payload is submitted to a study other
// than the one it names.
type StudyMismatchError struct {
	PathStudyId    string
	PayloadStudyId string
}

func (e StudyMismatchError) Error() string {
	return fmt.Sprintf("The payload names study '%s', but was submitted to study '%s'.",
		e.PayloadStudyId, e.PathStudyId)
}

// This error type is returned when an analysis is published while some of
// its files have no MD5 checksum on record.
type MissingChecksumsError struct {
	FileNames []string
}

func (e MissingChecksumsError) Error() string {
	return fmt.Sprintf("These files have no MD5 checksum on record: %s",
		strings.Join(e.FileNames, ", "))
}

// This error type is returned when an analysis is published while some of
// its files are absent from the object store.
type MissingObjectsError struct {
	ObjectIds []string
}

func (e MissingObjectsError) Error() string {
	return fmt.Sprintf("These objects are absent from the object store: %s",
		strings.Join(e.ObjectIds, ", "))
}
