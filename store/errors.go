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

package store

import (
	"fmt"

	"zombiezen.com/go/sqlite"

	"github.com/ams-project/ams/metadata"
)

// This error type is returned when an insert or update trips a uniqueness
// constraint--usually the per-study business-key index. The constraint is
// the final arbiter for concurrent submissions sharing a business key, so
// callers catch this and retry the write as an update.
type ConflictError struct {
	Kind   metadata.EntityKind
	Detail string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("Uniqueness conflict on %s record: %s", e.Kind, e.Detail)
}

// indicates an unexpected fault in the database itself, as opposed to a
// constraint violation or a missing record
type DatabaseError struct {
	Message string
}

func (e DatabaseError) Error() string {
	return fmt.Sprintf("Metadata database error: %s", e.Message)
}

// returns true if the given error is a sqlite uniqueness violation
func isUniqueViolation(err error) bool {
	code := sqlite.ErrCode(err)
	return code == sqlite.ResultConstraintUnique ||
		code == sqlite.ResultConstraintPrimaryKey
}

// wraps a sqlite error as a typed conflict or database error for the caller
func wrapError(kind metadata.EntityKind, err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return &ConflictError{Kind: kind, Detail: err.Error()}
	}
	return &DatabaseError{Message: err.Error()}
}
