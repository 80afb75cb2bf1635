package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("patient not found")
	ErrDuplicate = errors.New("patient email already registered")
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByEmail(ctx context.Context, email string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	// List returns patients newest first together with the total count.
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	// UpsertByEmail inserts p unless a patient with the same email exists,
	// in which case the stored row is returned unchanged.
	UpsertByEmail(ctx context.Context, p *Patient) (*Patient, bool, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}
