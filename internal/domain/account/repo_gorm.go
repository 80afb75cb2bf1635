package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type accountRow struct {
	ID           uuid.UUID `gorm:"type:char(36);primaryKey"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	Role         string    `gorm:"not null"`
	CreatedAt    time.Time
}

func (accountRow) TableName() string { return "account" }

// GormModels lists the tables this package owns for AutoMigrate.
func GormModels() []interface{} {
	return []interface{}{&accountRow{}}
}

type repoGorm struct {
	db *gorm.DB
}

func NewGormRepo(db *gorm.DB) Repository {
	return &repoGorm{db: db}
}

func (r *repoGorm) Create(ctx context.Context, a *Account) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now().UTC()
	row := accountRow(*a)

	err := r.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *repoGorm) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *repoGorm) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *repoGorm) first(ctx context.Context, cond string, arg interface{}) (*Account, error) {
	var row accountRow
	err := r.db.WithContext(ctx).Where(cond, arg).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select account: %w", err)
	}
	a := Account(row)
	return &a, nil
}
