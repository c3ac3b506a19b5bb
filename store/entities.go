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
	"encoding/json"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/ams-project/ams/metadata"
)

// serializes an info attachment for storage ("" means none)
func infoToText(info metadata.Info) string {
	if len(info) == 0 {
		return ""
	}
	text, _ := json.Marshal(info)
	return string(text)
}

// deserializes an info attachment from storage
func infoFromText(text string) metadata.Info {
	if text == "" {
		return nil
	}
	var info metadata.Info
	json.Unmarshal([]byte(text), &info)
	return info
}

//---------
// Studies
//---------

// inserts a new study record
func (tx *Tx) InsertStudy(study metadata.Study) error {
	err := sqlitex.Execute(tx.conn,
		`INSERT INTO studies (study_id, name, description, organization, info)
		 VALUES (?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{study.StudyId, study.Name, study.Description,
				study.Organization, infoToText(study.Info)},
		})
	return wrapError(metadata.KindStudy, err)
}

// fetches a study by its identifier
func (tx *Tx) GetStudy(studyId string) (metadata.Study, bool, error) {
	var study metadata.Study
	found := false
	err := sqlitex.Execute(tx.conn,
		`SELECT study_id, name, description, organization, info
		 FROM studies WHERE study_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{studyId},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				study.StudyId = stmt.ColumnText(0)
				study.Name = stmt.ColumnText(1)
				study.Description = stmt.ColumnText(2)
				study.Organization = stmt.ColumnText(3)
				study.Info = infoFromText(stmt.ColumnText(4))
				return nil
			},
		})
	if err != nil {
		return metadata.Study{}, false, &DatabaseError{Message: err.Error()}
	}
	return study, found, nil
}

//----------------------
// Business-key lookups
//----------------------

// maps each entity kind to the table and column holding its business key
// within a study
var businessKeyQueries = map[metadata.EntityKind]string{
	metadata.KindDonor:    `SELECT donor_id FROM donors WHERE study_id = ? AND submitter_id = ?`,
	metadata.KindSpecimen: `SELECT specimen_id FROM specimens WHERE study_id = ? AND submitter_id = ?`,
	metadata.KindSample:   `SELECT sample_id FROM samples WHERE study_id = ? AND submitter_id = ?`,
	metadata.KindFile:     `SELECT file_id FROM files WHERE study_id = ? AND name = ?`,
}

// Looks up the generated identifier for the entity of the given kind whose
// business-key value matches within the given study. This is a pure read:
// it takes no locks, relying on the caller's transaction for snapshot
// consistency.
func (tx *Tx) FindByBusinessKey(kind metadata.EntityKind, studyId, value string) (string, bool, error) {
	query, ok := businessKeyQueries[kind]
	if !ok {
		return "", false, &DatabaseError{
			Message: fmt.Sprintf("no business key defined for entity kind '%s'", kind),
		}
	}
	var id string
	found := false
	err := sqlitex.Execute(tx.conn, query, &sqlitex.ExecOptions{
		Args: []any{studyId, value},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			found = true
			id = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		return "", false, &DatabaseError{Message: err.Error()}
	}
	return id, found, nil
}

//--------
// Donors
//--------

func (tx *Tx) InsertDonor(donor metadata.Donor) error {
	err := sqlitex.Execute(tx.conn,
		`INSERT INTO donors (donor_id, study_id, submitter_id, gender, info)
		 VALUES (?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{donor.DonorId, donor.StudyId, donor.SubmitterId,
				donor.Gender, infoToText(donor.Info)},
		})
	return wrapError(metadata.KindDonor, err)
}

// updates all non-key attributes of an existing donor; the generated
// identifier and business key never change
func (tx *Tx) UpdateDonor(donor metadata.Donor) error {
	err := sqlitex.Execute(tx.conn,
		`UPDATE donors SET gender = ?, info = ? WHERE donor_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{donor.Gender, infoToText(donor.Info), donor.DonorId},
		})
	return wrapError(metadata.KindDonor, err)
}

func (tx *Tx) GetDonor(donorId string) (metadata.Donor, bool, error) {
	var donor metadata.Donor
	found := false
	err := sqlitex.Execute(tx.conn,
		`SELECT donor_id, study_id, submitter_id, gender, info
		 FROM donors WHERE donor_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{donorId},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				donor.DonorId = stmt.ColumnText(0)
				donor.StudyId = stmt.ColumnText(1)
				donor.SubmitterId = stmt.ColumnText(2)
				donor.Gender = stmt.ColumnText(3)
				donor.Info = infoFromText(stmt.ColumnText(4))
				return nil
			},
		})
	if err != nil {
		return metadata.Donor{}, false, &DatabaseError{Message: err.Error()}
	}
	return donor, found, nil
}

//-----------
// Specimens
//-----------

func (tx *Tx) InsertSpecimen(specimen metadata.Specimen) error {
	err := sqlitex.Execute(tx.conn,
		`INSERT INTO specimens (specimen_id, donor_id, study_id, submitter_id, class, type, info)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{specimen.SpecimenId, specimen.DonorId, specimen.StudyId,
				specimen.SubmitterId, specimen.Class, specimen.Type,
				infoToText(specimen.Info)},
		})
	return wrapError(metadata.KindSpecimen, err)
}

func (tx *Tx) UpdateSpecimen(specimen metadata.Specimen) error {
	err := sqlitex.Execute(tx.conn,
		`UPDATE specimens SET class = ?, type = ?, info = ? WHERE specimen_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{specimen.Class, specimen.Type, infoToText(specimen.Info),
				specimen.SpecimenId},
		})
	return wrapError(metadata.KindSpecimen, err)
}

func (tx *Tx) GetSpecimen(specimenId string) (metadata.Specimen, bool, error) {
	var specimen metadata.Specimen
	found := false
	err := sqlitex.Execute(tx.conn,
		`SELECT specimen_id, donor_id, study_id, submitter_id, class, type, info
		 FROM specimens WHERE specimen_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{specimenId},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				specimen.SpecimenId = stmt.ColumnText(0)
				specimen.DonorId = stmt.ColumnText(1)
				specimen.StudyId = stmt.ColumnText(2)
				specimen.SubmitterId = stmt.ColumnText(3)
				specimen.Class = stmt.ColumnText(4)
				specimen.Type = stmt.ColumnText(5)
				specimen.Info = infoFromText(stmt.ColumnText(6))
				return nil
			},
		})
	if err != nil {
		return metadata.Specimen{}, false, &DatabaseError{Message: err.Error()}
	}
	return specimen, found, nil
}

//---------
// Samples
//---------

func (tx *Tx) InsertSample(sample metadata.Sample) error {
	err := sqlitex.Execute(tx.conn,
		`INSERT INTO samples (sample_id, specimen_id, study_id, submitter_id, type, info)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{sample.SampleId, sample.SpecimenId, sample.StudyId,
				sample.SubmitterId, sample.Type, infoToText(sample.Info)},
		})
	return wrapError(metadata.KindSample, err)
}

func (tx *Tx) UpdateSample(sample metadata.Sample) error {
	err := sqlitex.Execute(tx.conn,
		`UPDATE samples SET type = ?, info = ? WHERE sample_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{sample.Type, infoToText(sample.Info), sample.SampleId},
		})
	return wrapError(metadata.KindSample, err)
}

func (tx *Tx) GetSample(sampleId string) (metadata.Sample, bool, error) {
	var sample metadata.Sample
	found := false
	err := sqlitex.Execute(tx.conn,
		`SELECT sample_id, specimen_id, study_id, submitter_id, type, info
		 FROM samples WHERE sample_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{sampleId},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				sample.SampleId = stmt.ColumnText(0)
				sample.SpecimenId = stmt.ColumnText(1)
				sample.StudyId = stmt.ColumnText(2)
				sample.SubmitterId = stmt.ColumnText(3)
				sample.Type = stmt.ColumnText(4)
				sample.Info = infoFromText(stmt.ColumnText(5))
				return nil
			},
		})
	if err != nil {
		return metadata.Sample{}, false, &DatabaseError{Message: err.Error()}
	}
	return sample, found, nil
}

//-------
// Files
//-------

func (tx *Tx) InsertFile(file metadata.File) error {
	err := sqlitex.Execute(tx.conn,
		`INSERT INTO files (file_id, analysis_id, study_id, name, size, md5, type, object_id, info)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{file.FileId, file.AnalysisId, file.StudyId, file.Name,
				file.Size, file.Md5, file.Type, file.ObjectId, infoToText(file.Info)},
		})
	return wrapError(metadata.KindFile, err)
}

func (tx *Tx) UpdateFile(file metadata.File) error {
	err := sqlitex.Execute(tx.conn,
		`UPDATE files SET size = ?, md5 = ?, type = ?, object_id = ?, info = ?
		 WHERE file_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{file.Size, file.Md5, file.Type, file.ObjectId,
				infoToText(file.Info), file.FileId},
		})
	return wrapError(metadata.KindFile, err)
}

// attaches a file to an analysis (the association pass of reconciliation)
func (tx *Tx) SetFileAnalysis(fileId, analysisId string) error {
	err := sqlitex.Execute(tx.conn,
		`UPDATE files SET analysis_id = ? WHERE file_id = ?`,
		&sqlitex.ExecOptions{Args: []any{analysisId, fileId}})
	return wrapError(metadata.KindFile, err)
}

func scanFile(stmt *sqlite.Stmt) metadata.File {
	return metadata.File{
		FileId:     stmt.ColumnText(0),
		AnalysisId: stmt.ColumnText(1),
		StudyId:    stmt.ColumnText(2),
		Name:       stmt.ColumnText(3),
		Size:       stmt.ColumnInt64(4),
		Md5:        stmt.ColumnText(5),
		Type:       stmt.ColumnText(6),
		ObjectId:   stmt.ColumnText(7),
		Info:       infoFromText(stmt.ColumnText(8)),
	}
}

func (tx *Tx) GetFile(fileId string) (metadata.File, bool, error) {
	var file metadata.File
	found := false
	err := sqlitex.Execute(tx.conn,
		`SELECT file_id, analysis_id, study_id, name, size, md5, type, object_id, info
		 FROM files WHERE file_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{fileId},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				file = scanFile(stmt)
				return nil
			},
		})
	if err != nil {
		return metadata.File{}, false, &DatabaseError{Message: err.Error()}
	}
	return file, found, nil
}

// fetches all files attached to an analysis, ordered by name
func (tx *Tx) AnalysisFiles(analysisId string) ([]metadata.File, error) {
	files := make([]metadata.File, 0)
	err := sqlitex.Execute(tx.conn,
		`SELECT file_id, analysis_id, study_id, name, size, md5, type, object_id, info
		 FROM files WHERE analysis_id = ? ORDER BY name`,
		&sqlitex.ExecOptions{
			Args: []any{analysisId},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				files = append(files, scanFile(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, &DatabaseError{Message: err.Error()}
	}
	return files, nil
}

//----------
// Analyses
//----------

func (tx *Tx) InsertAnalysis(analysis metadata.Analysis) error {
	err := sqlitex.Execute(tx.conn,
		`INSERT INTO analyses (analysis_id, study_id, type_name, type_version, state, experiment, info)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{analysis.AnalysisId, analysis.StudyId, analysis.TypeName,
				analysis.TypeVersion, analysis.State, string(analysis.Experiment),
				infoToText(analysis.Info)},
		})
	return wrapError(metadata.KindAnalysis, err)
}

// overwrites an analysis's experiment document, type version, and info; the
// state is managed separately through SetAnalysisState
func (tx *Tx) UpdateAnalysis(analysis metadata.Analysis) error {
	err := sqlitex.Execute(tx.conn,
		`UPDATE analyses SET type_name = ?, type_version = ?, experiment = ?, info = ?
		 WHERE analysis_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{analysis.TypeName, analysis.TypeVersion,
				string(analysis.Experiment), infoToText(analysis.Info),
				analysis.AnalysisId},
		})
	return wrapError(metadata.KindAnalysis, err)
}

func (tx *Tx) SetAnalysisState(analysisId, state string) error {
	err := sqlitex.Execute(tx.conn,
		`UPDATE analyses SET state = ? WHERE analysis_id = ?`,
		&sqlitex.ExecOptions{Args: []any{state, analysisId}})
	return wrapError(metadata.KindAnalysis, err)
}

func (tx *Tx) GetAnalysis(analysisId string) (metadata.Analysis, bool, error) {
	var analysis metadata.Analysis
	found := false
	err := sqlitex.Execute(tx.conn,
		`SELECT analysis_id, study_id, type_name, type_version, state, experiment, info
		 FROM analyses WHERE analysis_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{analysisId},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				analysis.AnalysisId = stmt.ColumnText(0)
				analysis.StudyId = stmt.ColumnText(1)
				analysis.TypeName = stmt.ColumnText(2)
				analysis.TypeVersion = int(stmt.ColumnInt64(3))
				analysis.State = stmt.ColumnText(4)
				if experiment := stmt.ColumnText(5); experiment != "" {
					analysis.Experiment = []byte(experiment)
				}
				analysis.Info = infoFromText(stmt.ColumnText(6))
				return nil
			},
		})
	if err != nil {
		return metadata.Analysis{}, false, &DatabaseError{Message: err.Error()}
	}
	return analysis, found, nil
}

// records that a sample belongs to an analysis; recording the same pair
// twice is a no-op
func (tx *Tx) LinkAnalysisSample(analysisId, sampleId string) error {
	err := sqlitex.Execute(tx.conn,
		`INSERT OR IGNORE INTO analysis_samples (analysis_id, sample_id) VALUES (?, ?)`,
		&sqlitex.ExecOptions{Args: []any{analysisId, sampleId}})
	return wrapError(metadata.KindAnalysis, err)
}

// fetches the identifiers of all samples linked to an analysis
func (tx *Tx) AnalysisSamples(analysisId string) ([]string, error) {
	sampleIds := make([]string, 0)
	err := sqlitex.Execute(tx.conn,
		`SELECT sample_id FROM analysis_samples WHERE analysis_id = ? ORDER BY sample_id`,
		&sqlitex.ExecOptions{
			Args: []any{analysisId},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				sampleIds = append(sampleIds, stmt.ColumnText(0))
				return nil
			},
		})
	if err != nil {
		return nil, &DatabaseError{Message: err.Error()}
	}
	return sampleIds, nil
}
