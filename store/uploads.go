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
	"encoding/json"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/ams-project/ams/metadata"
)

// Uploads are audit records, one per submitted payload. Unlike the entity
// tables they are written both inside and outside submission transactions,
// so the methods live on Tx and the caller picks the transaction scope.

func errorsToText(errs []string) string {
	if len(errs) == 0 {
		return ""
	}
	text, _ := json.Marshal(errs)
	return string(text)
}

func errorsFromText(text string) []string {
	if text == "" {
		return nil
	}
	var errs []string
	json.Unmarshal([]byte(text), &errs)
	return errs
}

func (tx *Tx) InsertUpload(upload metadata.Upload) error {
	err := sqlitex.Execute(tx.conn,
		`INSERT INTO uploads (upload_id, study_id, analysis_id, state, errors, payload, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{upload.UploadId, upload.StudyId, upload.AnalysisId,
				upload.State, errorsToText(upload.Errors), string(upload.Payload),
				upload.CreatedAt.UTC().Format(time.RFC3339),
				upload.UpdatedAt.UTC().Format(time.RFC3339)},
		})
	return wrapError("upload", err)
}

// overwrites an upload's mutable attributes and stamps the update time
func (tx *Tx) UpdateUpload(upload metadata.Upload) error {
	err := sqlitex.Execute(tx.conn,
		`UPDATE uploads SET analysis_id = ?, state = ?, errors = ?, updated_at = ?
		 WHERE upload_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{upload.AnalysisId, upload.State,
				errorsToText(upload.Errors),
				time.Now().UTC().Format(time.RFC3339), upload.UploadId},
		})
	return wrapError("upload", err)
}

func scanUpload(stmt *sqlite.Stmt) metadata.Upload {
	var upload metadata.Upload
	upload.UploadId = stmt.ColumnText(0)
	upload.StudyId = stmt.ColumnText(1)
	upload.AnalysisId = stmt.ColumnText(2)
	upload.State = stmt.ColumnText(3)
	upload.Errors = errorsFromText(stmt.ColumnText(4))
	if payload := stmt.ColumnText(5); payload != "" {
		upload.Payload = []byte(payload)
	}
	upload.CreatedAt, _ = time.Parse(time.RFC3339, stmt.ColumnText(6))
	upload.UpdatedAt, _ = time.Parse(time.RFC3339, stmt.ColumnText(7))
	return upload
}

func (tx *Tx) GetUpload(uploadId string) (metadata.Upload, bool, error) {
	var upload metadata.Upload
	found := false
	err := sqlitex.Execute(tx.conn,
		`SELECT upload_id, study_id, analysis_id, state, errors, payload, created_at, updated_at
		 FROM uploads WHERE upload_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{uploadId},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				upload = scanUpload(stmt)
				return nil
			},
		})
	if err != nil {
		return metadata.Upload{}, false, &DatabaseError{Message: err.Error()}
	}
	return upload, found, nil
}

// fetches the uploads that produced the given analysis, oldest first
func (tx *Tx) UploadsForAnalysis(analysisId string) ([]metadata.Upload, error) {
	uploads := make([]metadata.Upload, 0)
	err := sqlitex.Execute(tx.conn,
		`SELECT upload_id, study_id, analysis_id, state, errors, payload, created_at, updated_at
		 FROM uploads WHERE analysis_id = ? ORDER BY created_at`,
		&sqlitex.ExecOptions{
			Args: []any{analysisId},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				uploads = append(uploads, scanUpload(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, &DatabaseError{Message: err.Error()}
	}
	return uploads, nil
}
