package encounter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medrec/medrec/internal/platform/apierr"
	"github.com/medrec/medrec/internal/platform/blobstore"
	"github.com/medrec/medrec/internal/platform/events"
)

// PatientChecker reports whether a patient exists. Implemented by
// patient.Service.
type PatientChecker interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type Service struct {
	repo     Repository
	patients PatientChecker
	blobs    blobstore.BlobStore
	events   *events.Emitter
	now      func() time.Time
}

func NewService(repo Repository, patients PatientChecker, blobs blobstore.BlobStore, emitter *events.Emitter) *Service {
	return &Service{
		repo:     repo,
		patients: patients,
		blobs:    blobs,
		events:   emitter,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// -- Encounter --

func (s *Service) CreateEncounter(ctx context.Context, e *Encounter) error {
	if e.PatientID == uuid.Nil {
		return apierr.BadRequest("patientId is required")
	}
	if e.Type == "" {
		e.Type = TypeOutpatient
	}
	if !validTypes[e.Type] {
		return apierr.BadRequest(fmt.Sprintf("invalid encounter type: %s", e.Type))
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = s.now()
	}

	ok, err := s.patients.Exists(ctx, e.PatientID)
	if err != nil {
		return apierr.Internal(err)
	}
	if !ok {
		return apierr.NotFound("patient")
	}

	if err := s.repo.CreateEncounter(ctx, e); err != nil {
		return mapErr(err, "patient")
	}

	s.events.Emit(ctx, events.EncounterCreated, e.ID.String(), map[string]interface{}{
		"encounterId": e.ID,
		"patientId":   e.PatientID,
		"type":        e.Type,
		"startedAt":   e.StartedAt,
	})
	return nil
}

func (s *Service) GetEncounter(ctx context.Context, id uuid.UUID) (*Detail, error) {
	e, err := s.repo.GetEncounter(ctx, id)
	if err != nil {
		return nil, mapErr(err, "encounter")
	}
	diagnoses, err := s.repo.ListDiagnoses(ctx, id)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	predictions, err := s.repo.ListPredictions(ctx, id)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	attachments, err := s.repo.ListAttachments(ctx, id)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	d := assemble([]*Encounter{e}, diagnoses, predictions, attachments)[0]
	return &d, nil
}

func (s *Service) ListEncounters(ctx context.Context, patientID uuid.UUID) ([]*Encounter, error) {
	encs, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return encs, nil
}

// ListDetails returns the patient's encounters, newest first, with children.
func (s *Service) ListDetails(ctx context.Context, patientID uuid.UUID) ([]Detail, error) {
	details, err := s.repo.ListDetails(ctx, patientID)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return details, nil
}

// -- Diagnosis --

func (s *Service) AddDiagnosis(ctx context.Context, d *Diagnosis) error {
	if d.Label == "" {
		return apierr.BadRequest("label is required")
	}
	if err := s.requireEncounter(ctx, d.EncounterID); err != nil {
		return err
	}
	if err := s.repo.CreateDiagnosis(ctx, d); err != nil {
		return mapErr(err, "encounter")
	}
	return nil
}

func (s *Service) ListDiagnoses(ctx context.Context, encounterID uuid.UUID) ([]*Diagnosis, error) {
	if err := s.requireEncounter(ctx, encounterID); err != nil {
		return nil, err
	}
	out, err := s.repo.ListDiagnoses(ctx, encounterID)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return out, nil
}

// -- Prediction --

// RecordPrediction stores a model output. The model is registered on first
// use; an omitted top label defaults to the most probable one.
func (s *Service) RecordPrediction(ctx context.Context, req *CreatePredictionRequest) (*Prediction, error) {
	encounterID, err := uuid.Parse(req.EncounterID)
	if err != nil {
		return nil, apierr.BadRequest("invalid encounterId")
	}
	if req.Model.Name == "" || req.Model.Version == "" {
		return nil, apierr.BadRequest("model name and version are required")
	}
	if err := req.Probabilities.Validate(); err != nil {
		return nil, apierr.Validation([]apierr.Detail{{Field: "probabilities", Rule: "distribution", Param: err.Error()}})
	}

	p := &Prediction{EncounterID: encounterID, Probabilities: req.Probabilities}
	if req.TopLabel != nil && *req.TopLabel != "" {
		p.TopLabel = *req.TopLabel
	} else {
		p.TopLabel, _ = req.Probabilities.TopLabel()
	}

	if err := s.requireEncounter(ctx, encounterID); err != nil {
		return nil, err
	}
	if err := s.repo.CreatePrediction(ctx, p, req.Model.Name, req.Model.Version); err != nil {
		return nil, mapErr(err, "encounter")
	}

	s.events.Emit(ctx, events.PredictionCreated, p.ID.String(), map[string]interface{}{
		"predictionId": p.ID,
		"encounterId":  p.EncounterID,
		"model":        map[string]string{"name": req.Model.Name, "version": req.Model.Version},
		"topLabel":     p.TopLabel,
		"confidence":   p.Probabilities.ConfidencePercent(),
	})
	return p, nil
}

func (s *Service) ListPredictions(ctx context.Context, encounterID uuid.UUID) ([]*Prediction, error) {
	if err := s.requireEncounter(ctx, encounterID); err != nil {
		return nil, err
	}
	out, err := s.repo.ListPredictions(ctx, encounterID)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return out, nil
}

func (s *Service) ListModels(ctx context.Context) ([]*Model, error) {
	out, err := s.repo.ListModels(ctx)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return out, nil
}

// -- Attachment --

// Upload stores content in the blob store and records its metadata. The
// blob is removed again if the metadata insert fails.
func (s *Service) Upload(ctx context.Context, encounterID uuid.UUID, fileName, contentType string, content io.Reader) (*Attachment, error) {
	if err := s.requireEncounter(ctx, encounterID); err != nil {
		return nil, err
	}

	id := uuid.New()
	obj, err := s.blobs.Put(ctx, blobstore.Object{
		Key:         encounterID.String() + "/" + id.String(),
		FileName:    fileName,
		ContentType: contentType,
	}, content)
	if err != nil {
		return nil, blobErr(err)
	}

	a := &Attachment{
		ID:          id,
		EncounterID: encounterID,
		Kind:        KindFor(obj.ContentType),
		URL:         ContentURL(id),
		MimeType:    obj.ContentType,
		FileName:    obj.FileName,
		Size:        obj.Size,
		SHA256:      obj.Hash,
		StorageKey:  obj.Key,
	}
	if err := s.repo.CreateAttachment(ctx, a); err != nil {
		if derr := s.blobs.Delete(ctx, obj.Key); derr != nil {
			zerolog.Ctx(ctx).Warn().Err(derr).Str("key", obj.Key).Msg("remove orphaned blob")
		}
		return nil, mapErr(err, "encounter")
	}

	s.events.Emit(ctx, events.AttachmentUploaded, a.ID.String(), map[string]interface{}{
		"attachmentId": a.ID,
		"encounterId":  a.EncounterID,
		"kind":         a.Kind,
		"mimeType":     a.MimeType,
		"size":         a.Size,
		"sha256":       a.SHA256,
	})
	return a, nil
}

func (s *Service) ListAttachments(ctx context.Context, encounterID uuid.UUID) ([]*Attachment, error) {
	if err := s.requireEncounter(ctx, encounterID); err != nil {
		return nil, err
	}
	out, err := s.repo.ListAttachments(ctx, encounterID)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return out, nil
}

// OpenAttachment returns the stored bytes. The caller closes the reader.
func (s *Service) OpenAttachment(ctx context.Context, id uuid.UUID) (io.ReadCloser, *Attachment, error) {
	a, err := s.repo.GetAttachment(ctx, id)
	if err != nil {
		return nil, nil, mapErr(err, "attachment")
	}
	rc, _, err := s.blobs.Get(ctx, a.StorageKey)
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, nil, apierr.NotFound("attachment content")
	}
	if err != nil {
		return nil, nil, apierr.Internal(err)
	}
	return rc, a, nil
}

func (s *Service) requireEncounter(ctx context.Context, id uuid.UUID) error {
	ok, err := s.repo.EncounterExists(ctx, id)
	if err != nil {
		return apierr.Internal(err)
	}
	if !ok {
		return apierr.NotFound("encounter")
	}
	return nil
}

func mapErr(err error, resource string) error {
	if errors.Is(err, ErrNotFound) {
		return apierr.NotFound(resource)
	}
	return apierr.Internal(err)
}

func blobErr(err error) error {
	switch {
	case errors.Is(err, blobstore.ErrFileTooLarge):
		return apierr.New(http.StatusRequestEntityTooLarge, apierr.CodePayloadTooLarge, err.Error())
	case errors.Is(err, blobstore.ErrInvalidContentType),
		errors.Is(err, blobstore.ErrMissingFileName),
		errors.Is(err, blobstore.ErrEmptyFile):
		return apierr.BadRequest(err.Error())
	default:
		return apierr.Internal(err)
	}
}
