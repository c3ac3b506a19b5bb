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
	"sort"
	"strings"

	"github.com/ams-project/ams/metadata"
)

// Identifier generation must be a pure function of an entity's business key,
// so that resubmitting a payload reproduces the identifiers of the first
// submission. The seeds below feed the idgen package's name-based UUIDs.

// the seed for an entity identified by (studyId, submitterId) or, for files,
// (studyId, fileName)
func entitySeed(studyId, key string) string {
	return studyId + "|" + key
}

// An analysis has no submitter-supplied key, so its seed is derived from the
// payload's identity-bearing content: the study, the analysis type name, and
// the business keys of the samples and files it groups. Info attachments and
// the experiment document are deliberately excluded--correcting metadata on
// resubmission must reproduce the same analysis, not mint a new one.
func analysisSeed(payload *metadata.Payload) string {
	sampleKeys := make([]string, len(payload.Samples))
	for i, sample := range payload.Samples {
		sampleKeys[i] = sample.SubmitterId
	}
	sort.Strings(sampleKeys)

	fileKeys := make([]string, len(payload.Files))
	for i, file := range payload.Files {
		fileKeys[i] = file.Name
	}
	sort.Strings(fileKeys)

	parts := []string{
		payload.StudyId,
		payload.AnalysisType.Name,
		strings.Join(sampleKeys, ","),
		strings.Join(fileKeys, ","),
	}
	return strings.Join(parts, "|")
}
