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

// This package reconciles validated payloads against the entity tables: each
// entity in a payload is matched to an existing record by its business key
// and updated, or inserted with a freshly generated identifier. The whole
// payload lands in one transaction--a collision anywhere rolls back
// everything, and resubmitting the same payload reproduces the same
// identifiers and the same final state.
package reconcile

import (
	"context"
	"log/slog"

	"github.com/ams-project/ams/idgen"
	"github.com/ams-project/ams/lifecycle"
	"github.com/ams-project/ams/metadata"
	"github.com/ams-project/ams/store"
)

// The Engine applies payloads to the metadata store.
type Engine struct {
	store *store.Store
}

func NewEngine(store *store.Store) *Engine {
	return &Engine{store: store}
}

// the outcome of a successful reconciliation
type Result struct {
	// the analysis under which the payload's entities were registered
	AnalysisId string
	// true if the analysis was created by this reconciliation, false if an
	// existing analysis was replaced
	Created bool
	// generated sample identifiers, in payload order
	SampleIds []string
	// generated file identifiers, in payload order
	FileIds []string
}

// Reconciles a validated payload at the given analysis type version. On
// success the analysis is VALIDATED and every entity the payload names
// exists with its attributes overwritten; on error nothing has changed.
func (e *Engine) Reconcile(ctx context.Context, payload *metadata.Payload,
	typeVersion int) (Result, error) {
	var result Result
	err := e.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, found, err := tx.GetStudy(payload.StudyId); err != nil {
			return err
		} else if !found {
			return &UnknownStudyError{StudyId: payload.StudyId}
		}

		r := &resolver{tx: tx}

		// walk the hierarchy top-down so every child references a resolved
		// parent
		for _, entry := range payload.Samples {
			donorId, err := r.resolveDonor(payload.StudyId, entry)
			if err != nil {
				return err
			}
			specimenId, err := r.resolveSpecimen(payload.StudyId, donorId, entry)
			if err != nil {
				return err
			}
			sampleId, err := r.resolveSample(payload.StudyId, specimenId, entry)
			if err != nil {
				return err
			}
			result.SampleIds = append(result.SampleIds, sampleId)
		}

		for _, entry := range payload.Files {
			fileId, err := r.resolveFile(payload.StudyId, entry)
			if err != nil {
				return err
			}
			result.FileIds = append(result.FileIds, fileId)
		}

		analysisId, created, err := e.applyAnalysis(tx, payload, typeVersion)
		if err != nil {
			return err
		}
		result.AnalysisId = analysisId
		result.Created = created

		// record the analysis's groupings
		for _, sampleId := range result.SampleIds {
			if err := tx.LinkAnalysisSample(analysisId, sampleId); err != nil {
				return err
			}
		}
		for _, fileId := range result.FileIds {
			if err := tx.SetFileAnalysis(fileId, analysisId); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	slog.Debug("Reconciled payload", "study", payload.StudyId,
		"analysis", result.AnalysisId, "created", result.Created)
	return result, nil
}

// Inserts or replaces the payload's analysis record. A payload may carry its
// own analysisId; otherwise one is generated deterministically from the
// payload's identity-bearing content. An existing analysis is replaceable
// only while it has never been published or suppressed.
func (e *Engine) applyAnalysis(tx *store.Tx, payload *metadata.Payload,
	typeVersion int) (string, bool, error) {
	analysisId := payload.AnalysisId
	if analysisId == "" {
		analysisId = idgen.Generate(metadata.KindAnalysis, analysisSeed(payload))
	}

	analysis := metadata.Analysis{
		AnalysisId:  analysisId,
		StudyId:     payload.StudyId,
		TypeName:    payload.AnalysisType.Name,
		TypeVersion: typeVersion,
		Experiment:  payload.Experiment,
		Info:        payload.Info,
	}

	existing, found, err := tx.GetAnalysis(analysisId)
	if err != nil {
		return "", false, err
	}
	if found {
		if existing.StudyId != payload.StudyId {
			return "", false, &AnalysisConflictError{
				AnalysisId: analysisId,
				Detail:     "the identifier belongs to an analysis in another study",
			}
		}
		switch existing.State {
		case metadata.AnalysisReceived, metadata.AnalysisValidated:
			if err := tx.UpdateAnalysis(analysis); err != nil {
				return "", false, err
			}
			if existing.State == metadata.AnalysisReceived {
				if err := e.advance(tx, analysisId, existing.State); err != nil {
					return "", false, err
				}
			}
			return analysisId, false, nil
		default:
			return "", false, &AnalysisConflictError{
				AnalysisId: analysisId,
				Detail:     "its state is " + existing.State,
			}
		}
	}

	analysis.State = metadata.AnalysisReceived
	if err := tx.InsertAnalysis(analysis); err != nil {
		if lostInsertRace(err) {
			return "", false, &AnalysisConflictError{
				AnalysisId: analysisId,
				Detail:     "a concurrent submission created it first",
			}
		}
		return "", false, err
	}
	if err := e.advance(tx, analysisId, metadata.AnalysisReceived); err != nil {
		return "", false, err
	}
	return analysisId, true, nil
}

// moves an analysis from RECEIVED to VALIDATED through the lifecycle tables
func (e *Engine) advance(tx *store.Tx, analysisId, current string) error {
	next, err := lifecycle.NextAnalysisState(current, lifecycle.EventReconciled)
	if err != nil {
		return err
	}
	return tx.SetAnalysisState(analysisId, next)
}
