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

package metadata

import (
	"encoding/json"
	"fmt"
)

// a reference to a registered analysis type; a zero Version selects the
// latest registered version
type TypeRef struct {
	Name    string `json:"name"`
	Version int    `json:"version,omitempty"`
}

// one sample entry in a submitted payload, with its donor and specimen
// context embedded the way submitters send them
type PayloadSample struct {
	SubmitterId string `json:"submitterSampleId"`
	Type        string `json:"sampleType,omitempty"`
	Info        Info   `json:"info,omitempty"`
	Donor       struct {
		SubmitterId string `json:"submitterDonorId"`
		Gender      string `json:"gender,omitempty"`
		Info        Info   `json:"info,omitempty"`
	} `json:"donor"`
	Specimen struct {
		SubmitterId string `json:"submitterSpecimenId"`
		Class       string `json:"specimenClass,omitempty"`
		Type        string `json:"specimenType,omitempty"`
		Info        Info   `json:"info,omitempty"`
	} `json:"specimen"`
}

// one file entry in a submitted payload
type PayloadFile struct {
	Name     string `json:"fileName"`
	Size     int64  `json:"fileSize"`
	Md5      string `json:"fileMd5sum,omitempty"`
	Type     string `json:"fileType,omitempty"`
	ObjectId string `json:"objectId,omitempty"`
	Info     Info   `json:"info,omitempty"`
}

// a parsed submission payload: the common envelope plus the raw
// experiment-specific document found under the analysis type's name
type Payload struct {
	StudyId      string          `json:"studyId"`
	AnalysisId   string          `json:"analysisId,omitempty"`
	AnalysisType TypeRef         `json:"analysisType"`
	Samples      []PayloadSample `json:"samples"`
	Files        []PayloadFile   `json:"files"`
	Info         Info            `json:"info,omitempty"`

	// the document found under the key named after the analysis type
	// (e.g. "sequencingRead"), untouched by the core
	Experiment json.RawMessage `json:"-"`
}

// Parses a raw submitted document into a Payload. This performs only
// structural decoding--schema validation is the validation package's job.
// A document that cannot be decoded, or whose analysisType block is missing
// or ill-typed, produces a non-nil error describing the problem.
func ParsePayload(raw []byte) (*Payload, error) {
	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	if payload.AnalysisType.Name == "" {
		return nil, fmt.Errorf("the payload has no analysisType.name field")
	}

	// fish the experiment document out of the raw payload by its type name
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	if experiment, found := fields[payload.AnalysisType.Name]; found {
		payload.Experiment = experiment
	}
	return &payload, nil
}
