package patient

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medrec/medrec/internal/platform/validate"
)

type Patient struct {
	ID          uuid.UUID  `json:"id"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	Email       string     `json:"email"`
	Phone       *string    `json:"phone"`
	DateOfBirth *time.Time `json:"dateOfBirth"`
	Address     *string    `json:"address"`
	BloodType   *string    `json:"bloodType"`
	Height      *float64   `json:"height"`
	Weight      *float64   `json:"weight"`
	Allergies   *string    `json:"allergies"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// NormalizeEmail trims and lower-cases an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type CreateRequest struct {
	FirstName   string   `json:"firstName" validate:"required"`
	LastName    string   `json:"lastName" validate:"required"`
	Email       string   `json:"email" validate:"required,email"`
	Phone       *string  `json:"phone"`
	DateOfBirth *string  `json:"dateOfBirth" validate:"omitnil,date_or_datetime"`
	Address     *string  `json:"address"`
	BloodType   *string  `json:"bloodType"`
	Height      *float64 `json:"height" validate:"omitnil,gt=0"`
	Weight      *float64 `json:"weight" validate:"omitnil,gt=0"`
	Allergies   *string  `json:"allergies"`
}

func (r *CreateRequest) ToPatient() *Patient {
	return &Patient{
		FirstName:   strings.TrimSpace(r.FirstName),
		LastName:    strings.TrimSpace(r.LastName),
		Email:       NormalizeEmail(r.Email),
		Phone:       r.Phone,
		DateOfBirth: parseDOB(r.DateOfBirth),
		Address:     r.Address,
		BloodType:   r.BloodType,
		Height:      r.Height,
		Weight:      r.Weight,
		Allergies:   r.Allergies,
	}
}

// UpdateRequest is a partial update; nil fields are left untouched.
// Email is the patient's identity and cannot be changed here.
type UpdateRequest struct {
	FirstName   *string  `json:"firstName" validate:"omitnil,min=1"`
	LastName    *string  `json:"lastName" validate:"omitnil,min=1"`
	Phone       *string  `json:"phone"`
	DateOfBirth *string  `json:"dateOfBirth" validate:"omitnil,date_or_datetime"`
	Address     *string  `json:"address"`
	BloodType   *string  `json:"bloodType"`
	Height      *float64 `json:"height" validate:"omitnil,gt=0"`
	Weight      *float64 `json:"weight" validate:"omitnil,gt=0"`
	Allergies   *string  `json:"allergies"`
}

func (r *UpdateRequest) Apply(p *Patient) {
	if r.FirstName != nil {
		p.FirstName = strings.TrimSpace(*r.FirstName)
	}
	if r.LastName != nil {
		p.LastName = strings.TrimSpace(*r.LastName)
	}
	if r.Phone != nil {
		p.Phone = r.Phone
	}
	if dob := parseDOB(r.DateOfBirth); dob != nil {
		p.DateOfBirth = dob
	}
	if r.Address != nil {
		p.Address = r.Address
	}
	if r.BloodType != nil {
		p.BloodType = r.BloodType
	}
	if r.Height != nil {
		p.Height = r.Height
	}
	if r.Weight != nil {
		p.Weight = r.Weight
	}
	if r.Allergies != nil {
		p.Allergies = r.Allergies
	}
}

func parseDOB(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, ok := validate.ParseDate(*s)
	if !ok {
		return nil
	}
	t = t.UTC()
	return &t
}
