package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medrec/medrec/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const accountCols = `id, email, password_hash, role, created_at`

func (r *repoPG) Create(ctx context.Context, a *Account) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now().UTC()

	_, err := db.Conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO account (`+accountCols+`) VALUES ($1,$2,$3,$4,$5)`,
		a.ID, a.Email, a.PasswordHash, a.Role, a.CreatedAt)
	if db.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return r.getOne(ctx, `SELECT `+accountCols+` FROM account WHERE id = $1`, id)
}

func (r *repoPG) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return r.getOne(ctx, `SELECT `+accountCols+` FROM account WHERE email = $1`, email)
}

func (r *repoPG) getOne(ctx context.Context, query string, arg interface{}) (*Account, error) {
	var a Account
	err := db.Conn(ctx, r.pool).QueryRow(ctx, query, arg).
		Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Role, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select account: %w", err)
	}
	return &a, nil
}
