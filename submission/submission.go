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

// This package orchestrates the submission workflow: a payload arrives,
// becomes an upload record, is validated against its analysis type's schema,
// and--if accepted--is reconciled into the entity tables. It also drives the
// later analysis lifecycle (publish, unpublish, suppress) and answers status
// queries. Every completed operation is recorded in the submission journal.
package submission

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/ams-project/ams/idgen"
	"github.com/ams-project/ams/journal"
	"github.com/ams-project/ams/lifecycle"
	"github.com/ams-project/ams/manifest"
	"github.com/ams-project/ams/metadata"
	"github.com/ams-project/ams/reconcile"
	"github.com/ams-project/ams/schemas"
	"github.com/ams-project/ams/storage"
	"github.com/ams-project/ams/store"
	"github.com/ams-project/ams/validation"
)

// The Service ties the schema registry, the validator, the reconciliation
// engine, and the object store together into the operations the API exposes.
type Service struct {
	store     *store.Store
	registry  *schemas.Registry
	validator *validation.Validator
	engine    *reconcile.Engine
	provider  storage.Provider
}

// Creates a submission service on the given store and object store provider.
func NewService(st *store.Store, provider storage.Provider) *Service {
	registry := schemas.NewRegistry(st)
	return &Service{
		store:     st,
		registry:  registry,
		validator: validation.NewValidator(registry),
		engine:    reconcile.NewEngine(st),
		provider:  provider,
	}
}

// the registry backing this service (schema endpoints talk to it directly)
func (s *Service) Registry() *schemas.Registry {
	return s.registry
}

//---------
// Studies
//---------

// Creates a study. Studies are created explicitly--submitting a payload to a
// study that doesn't exist is an error, never an implicit creation.
func (s *Service) CreateStudy(ctx context.Context, study metadata.Study) error {
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		return tx.InsertStudy(study)
	})
	if err != nil {
		if lostInsertRace(err) {
			return &StudyExistsError{StudyId: study.StudyId}
		}
		return err
	}
	return nil
}

func (s *Service) GetStudy(ctx context.Context, studyId string) (metadata.Study, error) {
	var study metadata.Study
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		var found bool
		var err error
		study, found, err = tx.GetStudy(studyId)
		if err != nil {
			return err
		}
		if !found {
			return &NotFoundError{Record: "study", Id: studyId}
		}
		return nil
	})
	return study, err
}

//---------
// Schemas
//---------

// Registers an analysis type schema through the registry, journaling the
// outcome.
func (s *Service) RegisterSchema(name string, document json.RawMessage) (int, error) {
	version, err := s.registry.Register(name, document)
	outcome, message := "succeeded", ""
	if err != nil {
		outcome, message = "failed", err.Error()
	}
	s.journalEvent(journal.Event{
		Operation: "register-schema",
		Outcome:   outcome,
		Message:   name + ": " + message,
	})
	return version, err
}

//------------
// Submission
//------------

// the outcome of a submission, successful or not
type SubmitResult struct {
	// the upload record tracking this submission
	UploadId string `json:"uploadId"`
	// the analysis registered by this submission (empty if it was rejected)
	AnalysisId string `json:"analysisId,omitempty"`
	// the upload's state after the submission was processed
	State string `json:"state"`
	// the analysis type version the payload was validated against
	AnalysisTypeVersion int `json:"analysisTypeVersion,omitempty"`
	// schema violations, present when the payload was rejected
	Violations []validation.Violation `json:"violations,omitempty"`
}

// Submits a raw payload to the given study. A payload that fails schema
// validation produces a SubmitResult in the VALIDATION_ERROR state carrying
// the violations, with a nil error--rejection is a recorded outcome, not a
// fault. A payload that validates is reconciled atomically; on success the
// result carries the analysis id and the UPLOADED state.
func (s *Service) Submit(ctx context.Context, studyId string, raw []byte) (SubmitResult, error) {
	payload, err := metadata.ParsePayload(raw)
	if err != nil {
		return SubmitResult{}, &validation.MalformedPayloadError{Message: err.Error()}
	}
	if payload.StudyId != studyId {
		return SubmitResult{}, &StudyMismatchError{
			PathStudyId:    studyId,
			PayloadStudyId: payload.StudyId,
		}
	}
	if _, err := s.GetStudy(ctx, studyId); err != nil {
		return SubmitResult{}, err
	}

	// open an upload record for the submission
	now := time.Now()
	upload := metadata.Upload{
		UploadId:  idgen.Random("UP"),
		StudyId:   studyId,
		State:     metadata.UploadReceived,
		Payload:   raw,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		return tx.InsertUpload(upload)
	}); err != nil {
		return SubmitResult{}, err
	}

	// validate against the schema version pinned at this moment
	result, err := s.validator.Validate(raw, payload.AnalysisType.Name,
		payload.AnalysisType.Version)
	if err != nil {
		s.failUpload(ctx, &upload, []string{err.Error()})
		s.journalSubmit(upload, "failed", err.Error())
		return SubmitResult{}, err
	}
	if !result.Accepted() {
		messages := make([]string, len(result.Violations))
		for i, violation := range result.Violations {
			messages[i] = violation.String()
		}
		s.failUpload(ctx, &upload, messages)
		s.journalSubmit(upload, "failed", "payload rejected by schema validation")
		return SubmitResult{
			UploadId:            upload.UploadId,
			State:               upload.State,
			AnalysisTypeVersion: result.TypeVersion,
			Violations:          result.Violations,
		}, nil
	}

	upload.State, _ = lifecycle.NextUploadState(upload.State, lifecycle.EventValidateSuccess)
	if err := s.updateUpload(ctx, upload); err != nil {
		return SubmitResult{}, err
	}

	// reconcile the payload into the entity tables, all or nothing
	outcome, err := s.engine.Reconcile(ctx, payload, result.TypeVersion)
	if err != nil {
		s.journalSubmit(upload, "failed", err.Error())
		return SubmitResult{}, err
	}

	upload.AnalysisId = outcome.AnalysisId
	upload.State, _ = lifecycle.NextUploadState(upload.State, lifecycle.EventReconcile)
	if err := s.updateUpload(ctx, upload); err != nil {
		return SubmitResult{}, err
	}
	s.journalSubmit(upload, "succeeded", "")

	return SubmitResult{
		UploadId:            upload.UploadId,
		AnalysisId:          outcome.AnalysisId,
		State:               upload.State,
		AnalysisTypeVersion: result.TypeVersion,
	}, nil
}

// fetches the upload record with the given ID within the given study
func (s *Service) GetUpload(ctx context.Context, studyId, uploadId string) (metadata.Upload, error) {
	var upload metadata.Upload
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		var found bool
		var err error
		upload, found, err = tx.GetUpload(uploadId)
		if err != nil {
			return err
		}
		if !found || upload.StudyId != studyId {
			return &NotFoundError{Record: "upload", Id: uploadId}
		}
		return nil
	})
	return upload, err
}

//----------
// Analyses
//----------

// an analysis together with the samples and files registered under it
type AnalysisDetail struct {
	metadata.Analysis
	SampleIds []string        `json:"sampleIds"`
	Files     []metadata.File `json:"files"`
}

// fetches the analysis with the given ID within the given study
func (s *Service) GetAnalysis(ctx context.Context, studyId, analysisId string) (AnalysisDetail, error) {
	var detail AnalysisDetail
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		analysis, found, err := tx.GetAnalysis(analysisId)
		if err != nil {
			return err
		}
		if !found || analysis.StudyId != studyId {
			return &NotFoundError{Record: "analysis", Id: analysisId}
		}
		detail.Analysis = analysis
		if detail.SampleIds, err = tx.AnalysisSamples(analysisId); err != nil {
			return err
		}
		detail.Files, err = tx.AnalysisFiles(analysisId)
		return err
	})
	return detail, err
}

// Publishes an analysis, making its metadata part of the study's public
// record. Before the state changes, every file must have an MD5 checksum on
// record (unless ignoreUndefinedChecksum is set) and every file's object
// must be present in the object store. The checks and the state change are
// ordered so that a failed check leaves the analysis untouched.
func (s *Service) Publish(ctx context.Context, studyId, analysisId string,
	ignoreUndefinedChecksum bool) error {
	detail, err := s.GetAnalysis(ctx, studyId, analysisId)
	if err != nil {
		return err
	}
	next, err := lifecycle.NextAnalysisState(detail.State, lifecycle.EventPublish)
	if err != nil {
		return err
	}

	// every file needs a checksum on record
	if !ignoreUndefinedChecksum {
		var unhashed []string
		for _, file := range detail.Files {
			if file.Md5 == "" {
				unhashed = append(unhashed, file.Name)
			}
		}
		if len(unhashed) > 0 {
			s.journalPublication(detail, "publish", "failed", "files without checksums")
			return &MissingChecksumsError{FileNames: unhashed}
		}
	}

	// every file's bytes must actually be in the object store
	var missing []string
	for _, file := range detail.Files {
		objectId := file.ObjectId
		if objectId == "" {
			objectId = file.FileId
		}
		exists, err := storage.ExistsWithRetry(ctx, s.provider, objectId)
		if err != nil {
			s.recordSystemError(ctx, analysisId, err)
			return err
		}
		if !exists {
			missing = append(missing, objectId)
		}
	}
	if len(missing) > 0 {
		s.journalPublication(detail, "publish", "failed", "objects missing from store")
		return &MissingObjectsError{ObjectIds: missing}
	}

	// commit: the analysis and its uploads advance together
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.SetAnalysisState(analysisId, next); err != nil {
			return err
		}
		uploads, err := tx.UploadsForAnalysis(analysisId)
		if err != nil {
			return err
		}
		for _, upload := range uploads {
			if upload.State != metadata.UploadUploaded {
				continue
			}
			upload.State, _ = lifecycle.NextUploadState(upload.State, lifecycle.EventCommit)
			if err := tx.UpdateUpload(upload); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.recordSystemError(ctx, analysisId, err)
		return err
	}
	s.journalPublication(detail, "publish", "succeeded", "")
	return nil
}

// Unpublishes a published analysis, returning it to the UNPUBLISHED state
// (from which it may be published again).
func (s *Service) Unpublish(ctx context.Context, studyId, analysisId string) error {
	return s.transition(ctx, studyId, analysisId, lifecycle.EventUnpublish, "unpublish")
}

// Suppresses a published analysis, hiding it permanently. Suppression is
// terminal--there is no transition out of SUPPRESSED.
func (s *Service) Suppress(ctx context.Context, studyId, analysisId string) error {
	return s.transition(ctx, studyId, analysisId, lifecycle.EventSuppress, "suppress")
}

// Builds the download manifest for a published analysis. Analyses in any
// other state have no manifest.
func (s *Service) Manifest(ctx context.Context, studyId, analysisId string) (json.RawMessage, error) {
	detail, err := s.GetAnalysis(ctx, studyId, analysisId)
	if err != nil {
		return nil, err
	}
	if detail.State != metadata.AnalysisPublished {
		return nil, &NotFoundError{Record: "manifest for analysis", Id: analysisId}
	}
	pkg, err := manifest.ForAnalysis(detail.Analysis, detail.Files)
	if err != nil {
		return nil, err
	}
	return json.Marshal(pkg.Descriptor())
}

//-----------
// Internals
//-----------

func lostInsertRace(err error) bool {
	var conflict *store.ConflictError
	return errors.As(err, &conflict)
}

// drives one checked analysis state transition and journals it
func (s *Service) transition(ctx context.Context, studyId, analysisId string,
	event lifecycle.Event, operation string) error {
	detail, err := s.GetAnalysis(ctx, studyId, analysisId)
	if err != nil {
		return err
	}
	next, err := lifecycle.NextAnalysisState(detail.State, event)
	if err != nil {
		return err
	}
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		return tx.SetAnalysisState(analysisId, next)
	})
	if err != nil {
		s.recordSystemError(ctx, analysisId, err)
		return err
	}
	s.journalPublication(detail, operation, "succeeded", "")
	return nil
}

// marks an upload as rejected, storing the validation messages
func (s *Service) failUpload(ctx context.Context, upload *metadata.Upload, messages []string) {
	upload.State, _ = lifecycle.NextUploadState(upload.State, lifecycle.EventValidateFailure)
	upload.Errors = messages
	if err := s.updateUpload(ctx, *upload); err != nil {
		slog.Error("Couldn't record upload rejection", "upload", upload.UploadId,
			"error", err.Error())
	}
}

func (s *Service) updateUpload(ctx context.Context, upload metadata.Upload) error {
	return s.store.WithTx(ctx, func(tx *store.Tx) error {
		return tx.UpdateUpload(upload)
	})
}

// An interrupted transition leaves the analysis in SYSTEM_ERROR so operators
// can find it. This is a best-effort write outside the failed transaction.
func (s *Service) recordSystemError(ctx context.Context, analysisId string, cause error) {
	slog.Error("Persistence fault during analysis transition",
		"analysis", analysisId, "error", cause.Error())
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		return tx.SetAnalysisState(analysisId, metadata.AnalysisSystemError)
	})
	if err != nil {
		slog.Error("Couldn't record SYSTEM_ERROR state", "analysis", analysisId,
			"error", err.Error())
	}
}

// The journal is advisory: a journaling failure is logged and otherwise
// ignored, and a closed journal (as in most tests) is skipped entirely.
func (s *Service) journalEvent(event journal.Event) {
	if !journal.IsOpen() {
		return
	}
	if err := journal.RecordEvent(event); err != nil {
		slog.Warn("Couldn't record journal event", "operation", event.Operation,
			"error", err.Error())
	}
}

func (s *Service) journalSubmit(upload metadata.Upload, outcome, message string) {
	s.journalEvent(journal.Event{
		StudyId:    upload.StudyId,
		UploadId:   upload.UploadId,
		AnalysisId: upload.AnalysisId,
		Operation:  "submit",
		Outcome:    outcome,
		Message:    message,
	})
}

func (s *Service) journalPublication(detail AnalysisDetail, operation, outcome, message string) {
	s.journalEvent(journal.Event{
		StudyId:    detail.StudyId,
		AnalysisId: detail.AnalysisId,
		Operation:  operation,
		Outcome:    outcome,
		Message:    message,
	})
}
