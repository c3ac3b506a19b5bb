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

// This package defines the submission lifecycle state machines: one for
// uploaded payloads and one for persisted analyses. Transitions are checked,
// never inferred--an operation requesting an unlisted transition fails with
// an IllegalStateTransitionError and leaves the record unchanged.
package lifecycle

import (
	"github.com/ams-project/ams/metadata"
)

// an event that drives a state machine forward
type Event string

const (
	// upload events
	EventValidateSuccess Event = "validate success"
	EventValidateFailure Event = "validate failure"
	EventReconcile       Event = "reconcile success"
	EventCommit          Event = "commit"

	// analysis events
	EventReconciled Event = "reconciled"
	EventPublish    Event = "publish"
	EventUnpublish  Event = "unpublish"
	EventSuppress   Event = "suppress"
)

// the allowed upload transitions: RECEIVED branches on the validation
// outcome, and a validated upload becomes UPLOADED once its payload has been
// reconciled; PUBLISHED is terminal for the upload record
var uploadTransitions = map[string]map[Event]string{
	metadata.UploadReceived: {
		EventValidateSuccess: metadata.UploadValidated,
		EventValidateFailure: metadata.UploadValidationError,
	},
	metadata.UploadValidated: {
		EventReconcile: metadata.UploadUploaded,
	},
	metadata.UploadUploaded: {
		EventCommit: metadata.UploadPublished,
	},
}

// the allowed analysis transitions: publish is re-entrant through
// UNPUBLISHED, and SUPPRESSED is terminal
var analysisTransitions = map[string]map[Event]string{
	metadata.AnalysisReceived: {
		EventReconciled: metadata.AnalysisValidated,
	},
	metadata.AnalysisValidated: {
		EventPublish: metadata.AnalysisPublished,
	},
	metadata.AnalysisPublished: {
		EventUnpublish: metadata.AnalysisUnpublished,
		EventSuppress:  metadata.AnalysisSuppressed,
	},
	metadata.AnalysisUnpublished: {
		EventPublish: metadata.AnalysisPublished,
	},
}

// Given the current state of an upload record and an event, returns the
// successor state, or an IllegalStateTransitionError if the transition is
// not listed.
func NextUploadState(current string, event Event) (string, error) {
	if next, found := uploadTransitions[current][event]; found {
		return next, nil
	}
	return current, &IllegalStateTransitionError{
		Record: "upload",
		State:  current,
		Event:  event,
	}
}

// Given the current state of an analysis record and an event, returns the
// successor state, or an IllegalStateTransitionError if the transition is
// not listed.
func NextAnalysisState(current string, event Event) (string, error) {
	if next, found := analysisTransitions[current][event]; found {
		return next, nil
	}
	return current, &IllegalStateTransitionError{
		Record: "analysis",
		State:  current,
		Event:  event,
	}
}
