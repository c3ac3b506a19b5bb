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

// This package is the relational persistence layer for the analysis metadata
// service: entity tables keyed by generated identifier with per-study unique
// business-key indexes, the analysis type schema table, and the upload audit
// table. All mutation happens inside request-scoped transactions so that a
// payload's reconciliation commits entirely or not at all.
package store

import (
	"context"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// the database schema, applied at open time; uniqueness constraints on
// business-key columns are the final arbiter for concurrent submissions
const databaseSchema = `
CREATE TABLE IF NOT EXISTS studies (
	study_id     TEXT PRIMARY KEY,
	name         TEXT,
	description  TEXT,
	organization TEXT,
	info         TEXT
);
CREATE TABLE IF NOT EXISTS donors (
	donor_id     TEXT PRIMARY KEY,
	study_id     TEXT NOT NULL REFERENCES studies(study_id),
	submitter_id TEXT NOT NULL,
	gender       TEXT,
	info         TEXT,
	UNIQUE (study_id, submitter_id)
);
CREATE TABLE IF NOT EXISTS specimens (
	specimen_id  TEXT PRIMARY KEY,
	donor_id     TEXT NOT NULL REFERENCES donors(donor_id),
	study_id     TEXT NOT NULL,
	submitter_id TEXT NOT NULL,
	class        TEXT,
	type         TEXT,
	info         TEXT,
	UNIQUE (study_id, submitter_id)
);
CREATE TABLE IF NOT EXISTS samples (
	sample_id    TEXT PRIMARY KEY,
	specimen_id  TEXT NOT NULL REFERENCES specimens(specimen_id),
	study_id     TEXT NOT NULL,
	submitter_id TEXT NOT NULL,
	type         TEXT,
	info         TEXT,
	UNIQUE (study_id, submitter_id)
);
CREATE TABLE IF NOT EXISTS files (
	file_id     TEXT PRIMARY KEY,
	analysis_id TEXT,
	study_id    TEXT NOT NULL,
	name        TEXT NOT NULL,
	size        INTEGER NOT NULL DEFAULT 0,
	md5         TEXT,
	type        TEXT,
	object_id   TEXT,
	info        TEXT,
	UNIQUE (study_id, name)
);
CREATE TABLE IF NOT EXISTS analyses (
	analysis_id  TEXT PRIMARY KEY,
	study_id     TEXT NOT NULL REFERENCES studies(study_id),
	type_name    TEXT NOT NULL,
	type_version INTEGER NOT NULL,
	state        TEXT NOT NULL,
	experiment   TEXT,
	info         TEXT
);
CREATE TABLE IF NOT EXISTS analysis_samples (
	analysis_id TEXT NOT NULL REFERENCES analyses(analysis_id),
	sample_id   TEXT NOT NULL REFERENCES samples(sample_id),
	UNIQUE (analysis_id, sample_id)
);
CREATE TABLE IF NOT EXISTS analysis_schemas (
	name       TEXT NOT NULL,
	version    INTEGER NOT NULL,
	document   TEXT NOT NULL,
	created_at TEXT NOT NULL,
	PRIMARY KEY (name, version)
);
CREATE TABLE IF NOT EXISTS uploads (
	upload_id   TEXT PRIMARY KEY,
	study_id    TEXT NOT NULL,
	analysis_id TEXT,
	state       TEXT NOT NULL,
	errors      TEXT,
	payload     TEXT,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
`

// The Store wraps a pool of connections to the metadata database.
type Store struct {
	pool *sqlitex.Pool
}

// Opens (creating if necessary) the metadata database at the given path.
func Open(path string) (*Store, error) {
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		Flags:    sqlite.OpenReadWrite | sqlite.OpenCreate | sqlite.OpenWAL,
		PoolSize: 10,
	})
	if err != nil {
		return nil, &DatabaseError{Message: err.Error()}
	}
	store := &Store{pool: pool}

	// bootstrap the schema
	conn, err := pool.Take(context.Background())
	if err != nil {
		pool.Close()
		return nil, &DatabaseError{Message: err.Error()}
	}
	defer pool.Put(conn)
	if err := sqlitex.ExecuteScript(conn, databaseSchema, nil); err != nil {
		pool.Close()
		return nil, &DatabaseError{Message: err.Error()}
	}
	return store, nil
}

// closes the store, releasing all connections
func (s *Store) Close() error {
	return s.pool.Close()
}

// A Tx is a handle to the database within one transaction. All entity and
// upload operations hang off it so that callers decide transaction
// boundaries.
type Tx struct {
	conn *sqlite.Conn
}

// Runs the given function inside a SAVEPOINT transaction: if it returns an
// error the transaction rolls back entirely, otherwise it commits. Reads
// inside the transaction observe a consistent snapshot.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) (err error) {
	conn, takeErr := s.pool.Take(ctx)
	if takeErr != nil {
		return &DatabaseError{Message: takeErr.Error()}
	}
	defer s.pool.Put(conn)

	defer sqlitex.Save(conn)(&err)
	err = fn(&Tx{conn: conn})
	return err
}
