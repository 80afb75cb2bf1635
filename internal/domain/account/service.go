package account

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/medrec/medrec/internal/platform/apierr"
	"github.com/medrec/medrec/internal/platform/auth"
)

const invalidCredentials = "invalid email or password"

type Service struct {
	repo        Repository
	issuer      *auth.Issuer
	revocations auth.RevocationStore
	cost        int

	dummyOnce sync.Once
	dummyHash string
}

func NewService(repo Repository, issuer *auth.Issuer, revocations auth.RevocationStore, bcryptCost int) *Service {
	return &Service{repo: repo, issuer: issuer, revocations: revocations, cost: bcryptCost}
}

// Signup registers a self-service account. Admin cannot be self-assigned.
func (s *Service) Signup(ctx context.Context, email, password, role string) (*Account, error) {
	if role == "" {
		role = auth.RolePatient
	}
	if role == auth.RoleAdmin {
		return nil, apierr.Forbidden("the admin role cannot be self-assigned")
	}
	return s.CreateAccount(ctx, email, password, role)
}

// CreateAccount registers an account with any known role. Used by Signup
// and by the account create command.
func (s *Service) CreateAccount(ctx context.Context, email, password, role string) (*Account, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, apierr.BadRequest("email is required")
	}
	if len(password) < 8 {
		return nil, apierr.BadRequest("password must be at least 8 characters")
	}
	if len(password) > auth.MaxPasswordBytes {
		return nil, apierr.BadRequest("password must be at most 72 bytes")
	}
	if !auth.ValidRole(role) {
		return nil, apierr.BadRequest("unknown role: " + role)
	}

	hash, err := auth.HashPassword(password, s.cost)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return nil, apierr.BadRequest("password must be at most 72 bytes")
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	a := &Account{Email: email, PasswordHash: hash, Role: role}
	if err := s.repo.Create(ctx, a); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, apierr.Conflict("an account with this email already exists")
		}
		return nil, apierr.Internal(err)
	}
	return a, nil
}

// Login checks credentials and issues an access token. Unknown email and
// wrong password produce the same error.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	a, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		// Spend the same bcrypt time as a real comparison.
		_ = auth.CheckPassword(s.dummy(), password)
		return nil, apierr.Unauthorized(invalidCredentials)
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}

	if err := auth.CheckPassword(a.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apierr.Unauthorized(invalidCredentials)
		}
		return nil, apierr.Internal(err)
	}

	token, claims, err := s.issuer.Issue(a.ID.String(), a.Email, []string{a.Role})
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return &LoginResponse{Token: token, ExpiresAt: claims.ExpiresAt.Time, Account: a}, nil
}

// Logout revokes the token carried by ctx until it would have expired.
func (s *Service) Logout(ctx context.Context) error {
	ti, ok := auth.TokenFromContext(ctx)
	if !ok || ti.ID == "" {
		return apierr.Unauthorized("no token to revoke")
	}
	if err := s.revocations.Revoke(ctx, ti.ID, ti.ExpiresAt); err != nil {
		return apierr.Internal(err)
	}
	return nil
}

func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	a, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apierr.NotFound("account")
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return a, nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = auth.HashPassword(uuid.NewString(), s.cost)
	})
	return s.dummyHash
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
