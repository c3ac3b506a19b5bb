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

// This package contains testing utilities for the Analysis Metadata Service.
package amstest

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ams-project/ams/storage"
)

// Enables DEBUG log messages for AMS's structured log (slog).
func EnableDebugLogging() {
	logLevel := new(slog.LevelVar)
	logLevel.Set(slog.LevelDebug)
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(h))
}

// a canned experiment schema for the "sequencingRead" analysis type, used
// throughout the tests
const SequencingReadSchema = `{
	"title": "Sequencing read experiment",
	"type": "object",
	"properties": {
		"libraryStrategy": {
			"type": "string",
			"enum": ["WGS", "WXS", "RNA-Seq", "AMPLICON", "Other"]
		},
		"pairedEnd": {"type": "boolean"},
		"insertSize": {"type": "integer", "minimum": 0},
		"aligned": {"type": "boolean"},
		"referenceGenome": {"type": "string"}
	},
	"required": ["libraryStrategy"]
}`

// Builds a minimal valid sequencingRead payload for the given study with one
// sample and one file. Callers needing an invalid payload can start from
// this and break it.
func SequencingReadPayload(studyId string) []byte {
	return []byte(fmt.Sprintf(`{
		"studyId": "%s",
		"analysisType": {"name": "sequencingRead"},
		"samples": [{
			"submitterSampleId": "S1",
			"sampleType": "Total DNA",
			"donor": {"submitterDonorId": "D1", "gender": "Female"},
			"specimen": {
				"submitterSpecimenId": "SP1",
				"specimenClass": "Tumour",
				"specimenType": "Primary tumour"
			}
		}],
		"files": [{
			"fileName": "reads.bam",
			"fileSize": 1024,
			"fileMd5sum": "9a3e6de7bd935a1a5b9cb9064aa2f295",
			"fileType": "BAM"
		}],
		"sequencingRead": {
			"libraryStrategy": "WGS",
			"pairedEnd": true,
			"insertSize": 350
		}
	}`, studyId))
}

//----------------------------
// Object Store Test Fixtures
//----------------------------

// This type implements a storage.Provider test fixture holding a fixed set
// of object ids.
type ObjectStore struct {
	Objects map[string]bool
}

// Registers an object store test fixture as the provider with the given
// name, pre-populated with the given object ids.
func RegisterObjectStore(providerName string, objectIds []string) *ObjectStore {
	fixture := &ObjectStore{Objects: make(map[string]bool)}
	for _, objectId := range objectIds {
		fixture.Objects[objectId] = true
	}
	storage.RegisterProvider(providerName, func() (storage.Provider, error) {
		return fixture, nil
	})
	return fixture
}

// adds an object to the fixture after the fact
func (store *ObjectStore) Add(objectId string) {
	store.Objects[objectId] = true
}

func (store *ObjectStore) Exists(ctx context.Context, objectId string) (bool, error) {
	return store.Objects[objectId], nil
}
