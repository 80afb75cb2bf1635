package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type patientRow struct {
	ID          uuid.UUID `gorm:"type:char(36);primaryKey"`
	FirstName   string    `gorm:"not null"`
	LastName    string    `gorm:"not null"`
	Email       string    `gorm:"uniqueIndex;not null"`
	Phone       *string
	DateOfBirth *time.Time
	Address     *string
	BloodType   *string
	Height      *float64
	Weight      *float64
	Allergies   *string
	CreatedAt   time.Time `gorm:"index"`
	UpdatedAt   time.Time
}

func (patientRow) TableName() string { return "patient" }

func toRow(p *Patient) *patientRow {
	return &patientRow{
		ID: p.ID, FirstName: p.FirstName, LastName: p.LastName, Email: p.Email,
		Phone: p.Phone, DateOfBirth: p.DateOfBirth, Address: p.Address, BloodType: p.BloodType,
		Height: p.Height, Weight: p.Weight, Allergies: p.Allergies,
		CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
}

func (r *patientRow) toPatient() *Patient {
	return &Patient{
		ID: r.ID, FirstName: r.FirstName, LastName: r.LastName, Email: r.Email,
		Phone: r.Phone, DateOfBirth: r.DateOfBirth, Address: r.Address, BloodType: r.BloodType,
		Height: r.Height, Weight: r.Weight, Allergies: r.Allergies,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

// GormModels lists the tables this package owns for AutoMigrate.
func GormModels() []interface{} {
	return []interface{}{&patientRow{}}
}

type repoGorm struct {
	db *gorm.DB
}

// NewGormRepo expects a *gorm.DB opened with TranslateError so unique
// violations surface as gorm.ErrDuplicatedKey.
func NewGormRepo(db *gorm.DB) Repository {
	return &repoGorm{db: db}
}

func (r *repoGorm) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	err := r.db.WithContext(ctx).Create(toRow(p)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *repoGorm) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *repoGorm) GetByEmail(ctx context.Context, email string) (*Patient, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *repoGorm) first(ctx context.Context, cond string, arg interface{}) (*Patient, error) {
	var row patientRow
	err := r.db.WithContext(ctx).Where(cond, arg).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select patient: %w", err)
	}
	return row.toPatient(), nil
}

func (r *repoGorm) Update(ctx context.Context, p *Patient) error {
	p.UpdatedAt = time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&patientRow{ID: p.ID}).
		Select("first_name", "last_name", "phone", "date_of_birth", "address",
			"blood_type", "height", "weight", "allergies", "updated_at").
		Updates(toRow(p))
	if res.Error != nil {
		return fmt.Errorf("update patient: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoGorm) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	q := r.db.WithContext(ctx).Model(&patientRow{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	var rows []patientRow
	err := r.db.WithContext(ctx).
		Order("created_at DESC").Order("id").
		Limit(limit).Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}

	patients := make([]*Patient, 0, len(rows))
	for i := range rows {
		patients = append(patients, rows[i].toPatient())
	}
	return patients, int(total), nil
}

func (r *repoGorm) UpsertByEmail(ctx context.Context, p *Patient) (*Patient, bool, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "email"}}, DoNothing: true}).
		Create(toRow(p))
	if res.Error != nil {
		return nil, false, fmt.Errorf("upsert patient: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return p, true, nil
	}
	existing, err := r.GetByEmail(ctx, p.Email)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *repoGorm) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&patientRow{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, fmt.Errorf("patient exists: %w", err)
	}
	return n > 0, nil
}
