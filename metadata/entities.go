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

// This package defines the entity model for genomic analysis submissions:
// a Study owns Donors, which own Specimens, which own Samples; an Analysis
// groups Samples and Files under a versioned analysis type.
package metadata

import (
	"encoding/json"
	"time"
)

// Every entity carries an open-ended bag of submitter-supplied metadata.
// Info is never part of an entity's business key and is overwritten wholesale
// whenever the entity is updated.
type Info map[string]any

// returns a deep-enough copy for JSON-shaped values (maps, slices, scalars)
func (info Info) Clone() Info {
	if info == nil {
		return nil
	}
	data, _ := json.Marshal(info)
	var clone Info
	json.Unmarshal(data, &clone)
	return clone
}

// EntityKind identifies one level of the submission hierarchy. It selects
// the table and business-key column used for reconciliation lookups.
type EntityKind string

const (
	KindStudy    EntityKind = "study"
	KindDonor    EntityKind = "donor"
	KindSpecimen EntityKind = "specimen"
	KindSample   EntityKind = "sample"
	KindFile     EntityKind = "file"
	KindAnalysis EntityKind = "analysis"
)

// a research study under which all other entities are registered; studies
// are created explicitly and never by submission
type Study struct {
	StudyId      string `json:"studyId"`
	Name         string `json:"name,omitempty"`
	Description  string `json:"description,omitempty"`
	Organization string `json:"organization,omitempty"`
	Info         Info   `json:"info,omitempty"`
}

// a donor, identified within a study by its submitter-supplied ID
type Donor struct {
	DonorId     string `json:"donorId"`
	StudyId     string `json:"studyId"`
	SubmitterId string `json:"submitterDonorId"`
	Gender      string `json:"gender,omitempty"`
	Info        Info   `json:"info,omitempty"`
}

// a specimen taken from a donor
type Specimen struct {
	SpecimenId  string `json:"specimenId"`
	DonorId     string `json:"donorId"`
	StudyId     string `json:"studyId"`
	SubmitterId string `json:"submitterSpecimenId"`
	Class       string `json:"specimenClass,omitempty"`
	Type        string `json:"specimenType,omitempty"`
	Info        Info   `json:"info,omitempty"`
}

// a sample prepared from a specimen
type Sample struct {
	SampleId    string `json:"sampleId"`
	SpecimenId  string `json:"specimenId"`
	StudyId     string `json:"studyId"`
	SubmitterId string `json:"submitterSampleId"`
	Type        string `json:"sampleType,omitempty"`
	Info        Info   `json:"info,omitempty"`
}

// a data file produced by an analysis; the actual bytes live in an external
// object store, addressed by ObjectId
type File struct {
	FileId     string `json:"fileId"`
	AnalysisId string `json:"analysisId,omitempty"`
	StudyId    string `json:"studyId"`
	Name       string `json:"fileName"`
	Size       int64  `json:"fileSize"`
	Md5        string `json:"fileMd5sum,omitempty"`
	Type       string `json:"fileType,omitempty"`
	ObjectId   string `json:"objectId,omitempty"`
	Info       Info   `json:"info,omitempty"`
}

// analysis lifecycle states (see the lifecycle package for transitions)
const (
	AnalysisReceived    = "RECEIVED"
	AnalysisValidated   = "VALIDATED"
	AnalysisPublished   = "PUBLISHED"
	AnalysisSuppressed  = "SUPPRESSED"
	AnalysisUnpublished = "UNPUBLISHED"
	AnalysisSystemError = "SYSTEM_ERROR"
)

// an analysis record: the schema-governed portion of a submission, tied to
// a named, versioned analysis type
type Analysis struct {
	AnalysisId  string `json:"analysisId"`
	StudyId     string `json:"studyId"`
	TypeName    string `json:"analysisTypeName"`
	TypeVersion int    `json:"analysisTypeVersion"`
	State       string `json:"analysisState"`
	// the experiment-specific portion of the payload, opaque to the core
	Experiment json.RawMessage `json:"experiment,omitempty"`
	Info       Info            `json:"info,omitempty"`
}

// upload lifecycle states (see the lifecycle package for transitions)
const (
	UploadReceived        = "RECEIVED"
	UploadValidated       = "VALIDATED"
	UploadValidationError = "VALIDATION_ERROR"
	UploadUploaded        = "UPLOADED"
	UploadPublished       = "PUBLISHED"
)

// an audit record for one submitted payload
type Upload struct {
	UploadId   string          `json:"uploadId"`
	StudyId    string          `json:"studyId"`
	AnalysisId string          `json:"analysisId,omitempty"`
	State      string          `json:"state"`
	Errors     []string        `json:"errors,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}
