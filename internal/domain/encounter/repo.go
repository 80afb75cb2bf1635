package encounter

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

type Repository interface {
	CreateEncounter(ctx context.Context, e *Encounter) error
	GetEncounter(ctx context.Context, id uuid.UUID) (*Encounter, error)
	// ListByPatient orders by startedAt, newest first.
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Encounter, error)
	EncounterExists(ctx context.Context, id uuid.UUID) (bool, error)

	CreateDiagnosis(ctx context.Context, d *Diagnosis) error
	ListDiagnoses(ctx context.Context, encounterID uuid.UUID) ([]*Diagnosis, error)

	// CreatePrediction upserts the (name, version) model and inserts p in
	// one transaction. p.ModelID and p.Model are filled in.
	CreatePrediction(ctx context.Context, p *Prediction, name, version string) error
	ListPredictions(ctx context.Context, encounterID uuid.UUID) ([]*Prediction, error)
	ListModels(ctx context.Context) ([]*Model, error)

	CreateAttachment(ctx context.Context, a *Attachment) error
	GetAttachment(ctx context.Context, id uuid.UUID) (*Attachment, error)
	ListAttachments(ctx context.Context, encounterID uuid.UUID) ([]*Attachment, error)

	// ListDetails returns a patient's encounters newest first by createdAt,
	// each with diagnoses, predictions and attachments oldest first.
	ListDetails(ctx context.Context, patientID uuid.UUID) ([]Detail, error)
}

// assemble groups children under their encounters, keeping the order of
// each input slice.
func assemble(encs []*Encounter, diagnoses []*Diagnosis, predictions []*Prediction, attachments []*Attachment) []Detail {
	out := make([]Detail, len(encs))
	idx := make(map[uuid.UUID]int, len(encs))
	for i, e := range encs {
		out[i] = newDetail(*e)
		idx[e.ID] = i
	}
	for _, d := range diagnoses {
		if i, ok := idx[d.EncounterID]; ok {
			out[i].Diagnoses = append(out[i].Diagnoses, *d)
		}
	}
	for _, p := range predictions {
		if i, ok := idx[p.EncounterID]; ok {
			out[i].Predictions = append(out[i].Predictions, *p)
		}
	}
	for _, a := range attachments {
		if i, ok := idx[a.EncounterID]; ok {
			out[i].Attachments = append(out[i].Attachments, *a)
		}
	}
	return out
}
