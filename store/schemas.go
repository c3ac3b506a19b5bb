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
	"context"
	"encoding/json"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/ams-project/ams/schemas"
)

// The Store satisfies schemas.Storage, so the schema registry persists its
// documents alongside the entities they govern. Schema operations run on
// their own connections outside any submission transaction: a registered
// schema stays registered even if a concurrent submission rolls back.

// Appends a new version for the named analysis type and returns it. The
// version is assigned inside a savepoint so that concurrent registrations
// of the same name cannot both claim the same number.
func (store *Store) InsertSchema(name string, document json.RawMessage) (version int, err error) {
	conn, err := store.pool.Take(context.Background())
	if err != nil {
		return 0, &DatabaseError{Message: err.Error()}
	}
	defer store.pool.Put(conn)
	defer sqlitex.Save(conn)(&err)

	err = sqlitex.Execute(conn,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM analysis_schemas WHERE name = ?`,
		&sqlitex.ExecOptions{
			Args: []any{name},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				version = int(stmt.ColumnInt64(0))
				return nil
			},
		})
	if err != nil {
		return 0, &DatabaseError{Message: err.Error()}
	}

	err = sqlitex.Execute(conn,
		`INSERT INTO analysis_schemas (name, version, document, created_at)
		 VALUES (?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{name, version, string(document),
				time.Now().UTC().Format(time.RFC3339)},
		})
	if err != nil {
		return 0, &DatabaseError{Message: err.Error()}
	}
	return version, nil
}

func scanSchema(stmt *sqlite.Stmt) schemas.AnalysisTypeSchema {
	schema := schemas.AnalysisTypeSchema{
		Name:     stmt.ColumnText(0),
		Version:  int(stmt.ColumnInt64(1)),
		Document: json.RawMessage(stmt.ColumnText(2)),
	}
	schema.CreatedAt, _ = time.Parse(time.RFC3339, stmt.ColumnText(3))
	return schema
}

// fetches one specific registered version
func (store *Store) GetSchema(name string, version int) (schemas.AnalysisTypeSchema, bool, error) {
	conn, err := store.pool.Take(context.Background())
	if err != nil {
		return schemas.AnalysisTypeSchema{}, false, &DatabaseError{Message: err.Error()}
	}
	defer store.pool.Put(conn)

	var schema schemas.AnalysisTypeSchema
	found := false
	err = sqlitex.Execute(conn,
		`SELECT name, version, document, created_at FROM analysis_schemas
		 WHERE name = ? AND version = ?`,
		&sqlitex.ExecOptions{
			Args: []any{name, version},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				schema = scanSchema(stmt)
				return nil
			},
		})
	if err != nil {
		return schemas.AnalysisTypeSchema{}, false, &DatabaseError{Message: err.Error()}
	}
	return schema, found, nil
}

// fetches the latest registered version of the named type
func (store *Store) LatestSchema(name string) (schemas.AnalysisTypeSchema, bool, error) {
	conn, err := store.pool.Take(context.Background())
	if err != nil {
		return schemas.AnalysisTypeSchema{}, false, &DatabaseError{Message: err.Error()}
	}
	defer store.pool.Put(conn)

	var schema schemas.AnalysisTypeSchema
	found := false
	err = sqlitex.Execute(conn,
		`SELECT name, version, document, created_at FROM analysis_schemas
		 WHERE name = ? ORDER BY version DESC LIMIT 1`,
		&sqlitex.ExecOptions{
			Args: []any{name},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				schema = scanSchema(stmt)
				return nil
			},
		})
	if err != nil {
		return schemas.AnalysisTypeSchema{}, false, &DatabaseError{Message: err.Error()}
	}
	return schema, found, nil
}

// lists registered schemas whose names contain the filter substring,
// paginated, with newer versions first within a name
func (store *Store) ListSchemas(filter string, offset, limit int) ([]schemas.AnalysisTypeSchema, error) {
	conn, err := store.pool.Take(context.Background())
	if err != nil {
		return nil, &DatabaseError{Message: err.Error()}
	}
	defer store.pool.Put(conn)

	if limit <= 0 {
		limit = 100
	}
	results := make([]schemas.AnalysisTypeSchema, 0)
	err = sqlitex.Execute(conn,
		`SELECT name, version, document, created_at FROM analysis_schemas
		 WHERE name LIKE '%' || ? || '%'
		 ORDER BY name, version DESC LIMIT ? OFFSET ?`,
		&sqlitex.ExecOptions{
			Args: []any{filter, limit, offset},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				results = append(results, scanSchema(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, &DatabaseError{Message: err.Error()}
	}
	return results, nil
}
