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
	"errors"

	"github.com/ams-project/ams/idgen"
	"github.com/ams-project/ams/metadata"
	"github.com/ams-project/ams/store"
)

// A resolver turns business keys into generated identifiers within one
// transaction, inserting entities that don't exist and updating those that
// do. An insert that loses a race to a concurrent writer surfaces as a
// unique violation; the resolver retries it exactly once as an update, since
// the business key is then known to exist.
type resolver struct {
	tx *store.Tx
}

// does err indicate a lost insert race on a business key?
func lostInsertRace(err error) bool {
	var conflict *store.ConflictError
	return errors.As(err, &conflict)
}

// Resolves a donor from its payload form, returning its generated id. The
// donor's attributes are overwritten on update; its identity never changes.
func (r *resolver) resolveDonor(studyId string, entry metadata.PayloadSample) (string, error) {
	donor := metadata.Donor{
		StudyId:     studyId,
		SubmitterId: entry.Donor.SubmitterId,
		Gender:      entry.Donor.Gender,
		Info:        entry.Donor.Info,
	}

	donorId, found, err := r.tx.FindByBusinessKey(metadata.KindDonor, studyId, donor.SubmitterId)
	if err != nil {
		return "", err
	}
	if found {
		donor.DonorId = donorId
		return donorId, r.tx.UpdateDonor(donor)
	}

	donor.DonorId = idgen.Generate(metadata.KindDonor, entitySeed(studyId, donor.SubmitterId))
	if err := r.tx.InsertDonor(donor); err != nil {
		if lostInsertRace(err) {
			return donor.DonorId, r.tx.UpdateDonor(donor)
		}
		return "", err
	}
	return donor.DonorId, nil
}

// Resolves a specimen under the given donor. A specimen whose business key
// already exists under a different donor is a collision, not an update.
func (r *resolver) resolveSpecimen(studyId, donorId string, entry metadata.PayloadSample) (string, error) {
	specimen := metadata.Specimen{
		DonorId:     donorId,
		StudyId:     studyId,
		SubmitterId: entry.Specimen.SubmitterId,
		Class:       entry.Specimen.Class,
		Type:        entry.Specimen.Type,
		Info:        entry.Specimen.Info,
	}

	specimenId, found, err := r.tx.FindByBusinessKey(metadata.KindSpecimen, studyId, specimen.SubmitterId)
	if err != nil {
		return "", err
	}
	if found {
		existing, _, err := r.tx.GetSpecimen(specimenId)
		if err != nil {
			return "", err
		}
		if existing.DonorId != donorId {
			return "", &BusinessKeyCollisionError{
				Kind:    metadata.KindSpecimen,
				StudyId: studyId,
				Key:     specimen.SubmitterId,
				Detail:  "the specimen is already registered under a different donor",
			}
		}
		specimen.SpecimenId = specimenId
		return specimenId, r.tx.UpdateSpecimen(specimen)
	}

	specimen.SpecimenId = idgen.Generate(metadata.KindSpecimen,
		entitySeed(studyId, specimen.SubmitterId))
	if err := r.tx.InsertSpecimen(specimen); err != nil {
		if lostInsertRace(err) {
			return specimen.SpecimenId, r.tx.UpdateSpecimen(specimen)
		}
		return "", err
	}
	return specimen.SpecimenId, nil
}

// resolves a sample under the given specimen, with the same lineage rule as
// specimens under donors
func (r *resolver) resolveSample(studyId, specimenId string, entry metadata.PayloadSample) (string, error) {
	sample := metadata.Sample{
		SpecimenId:  specimenId,
		StudyId:     studyId,
		SubmitterId: entry.SubmitterId,
		Type:        entry.Type,
		Info:        entry.Info,
	}

	sampleId, found, err := r.tx.FindByBusinessKey(metadata.KindSample, studyId, sample.SubmitterId)
	if err != nil {
		return "", err
	}
	if found {
		existing, _, err := r.tx.GetSample(sampleId)
		if err != nil {
			return "", err
		}
		if existing.SpecimenId != specimenId {
			return "", &BusinessKeyCollisionError{
				Kind:    metadata.KindSample,
				StudyId: studyId,
				Key:     sample.SubmitterId,
				Detail:  "the sample is already registered under a different specimen",
			}
		}
		sample.SampleId = sampleId
		return sampleId, r.tx.UpdateSample(sample)
	}

	sample.SampleId = idgen.Generate(metadata.KindSample, entitySeed(studyId, sample.SubmitterId))
	if err := r.tx.InsertSample(sample); err != nil {
		if lostInsertRace(err) {
			return sample.SampleId, r.tx.UpdateSample(sample)
		}
		return "", err
	}
	return sample.SampleId, nil
}

// resolves a file from its payload form; files are keyed by name within
// their study
func (r *resolver) resolveFile(studyId string, entry metadata.PayloadFile) (string, error) {
	file := metadata.File{
		StudyId:  studyId,
		Name:     entry.Name,
		Size:     entry.Size,
		Md5:      entry.Md5,
		Type:     entry.Type,
		ObjectId: entry.ObjectId,
		Info:     entry.Info,
	}

	fileId, found, err := r.tx.FindByBusinessKey(metadata.KindFile, studyId, file.Name)
	if err != nil {
		return "", err
	}
	if found {
		file.FileId = fileId
		return fileId, r.tx.UpdateFile(file)
	}

	file.FileId = idgen.Generate(metadata.KindFile, entitySeed(studyId, file.Name))
	if err := r.tx.InsertFile(file); err != nil {
		if lostInsertRace(err) {
			return file.FileId, r.tx.UpdateFile(file)
		}
		return "", err
	}
	return file.FileId, nil
}
