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

// This package mints generated identifiers for submission entities. Ids are
// deterministic: the same (kind, seed) pair always produces the same id, so
// repeated generation requests under at-least-once retry are idempotent.
package idgen

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/ams-project/ams/metadata"
)

// the UUIDv5 namespace under which all entity ids are minted
var namespace = uuid.MustParse("c0ffee00-9eec-46c5-8a3b-2b6f0e5c9f21")

// human-readable prefixes per entity kind, matched to the identifiers
// submitters see in responses
var prefixes = map[metadata.EntityKind]string{
	metadata.KindDonor:    "DO",
	metadata.KindSpecimen: "SP",
	metadata.KindSample:   "SA",
	metadata.KindFile:     "FI",
	metadata.KindAnalysis: "AN",
}

// Generates a deterministic identifier for an entity of the given kind from
// the given seed. Callers derive the seed from the entity's business key,
// so equal business keys always map to equal identifiers.
func Generate(kind metadata.EntityKind, seed string) string {
	prefix, found := prefixes[kind]
	if !found {
		prefix = "ID"
	}
	id := uuid.NewSHA1(namespace, []byte(fmt.Sprintf("%s:%s", kind, seed)))
	return fmt.Sprintf("%s-%s", prefix, id.String())
}

// Generates a random (non-deterministic) identifier with the given prefix.
// Used for upload records, which have no business key.
func Random(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.New().String())
}
