package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/medrec/medrec/internal/platform/apierr"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	p.Email = NormalizeEmail(p.Email)
	if p.FirstName == "" || p.LastName == "" {
		return apierr.BadRequest("firstName and lastName are required")
	}
	if p.Email == "" {
		return apierr.BadRequest("email is required")
	}
	return mapErr(s.repo.Create(ctx, p))
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapErr(err)
	}
	return p, nil
}

func (s *Service) UpdatePatient(ctx context.Context, id uuid.UUID, req *UpdateRequest) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapErr(err)
	}
	req.Apply(p)
	if p.FirstName == "" || p.LastName == "" {
		return nil, apierr.BadRequest("firstName and lastName cannot be empty")
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, mapErr(err)
	}
	return p, nil
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	patients, total, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, apierr.Internal(err)
	}
	return patients, total, nil
}

// EnsurePatient creates p unless its email is already registered. The
// boolean reports whether a row was inserted. Used by the seed command.
func (s *Service) EnsurePatient(ctx context.Context, p *Patient) (*Patient, bool, error) {
	p.Email = NormalizeEmail(p.Email)
	stored, created, err := s.repo.UpsertByEmail(ctx, p)
	if err != nil {
		return nil, false, mapErr(err)
	}
	return stored, created, nil
}

// Exists lets other domains check a patient reference without loading it.
func (s *Service) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.repo.Exists(ctx, id)
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return apierr.NotFound("patient")
	case errors.Is(err, ErrDuplicate):
		return apierr.Conflict("a patient with this email already exists")
	default:
		return apierr.Internal(err)
	}
}
