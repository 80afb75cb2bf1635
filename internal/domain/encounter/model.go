package encounter

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	TypeOutpatient = "OUTPATIENT"
	TypeInpatient  = "INPATIENT"
	TypeER         = "ER"
	TypeTelehealth = "TELEHEALTH"
)

var validTypes = map[string]bool{
	TypeOutpatient: true,
	TypeInpatient:  true,
	TypeER:         true,
	TypeTelehealth: true,
}

// Attachment kinds.
const (
	KindImage  = "image"
	KindReport = "report"
)

type Encounter struct {
	ID        uuid.UUID       `json:"id"`
	PatientID uuid.UUID       `json:"patientId"`
	Type      string          `json:"type"`
	StartedAt time.Time       `json:"startedAt"`
	Notes     *string         `json:"notes"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"createdAt"`
}

type Diagnosis struct {
	ID          uuid.UUID `json:"id"`
	EncounterID uuid.UUID `json:"encounterId"`
	Label       string    `json:"label"`
	Code        *string   `json:"code"`
	Confirmed   bool      `json:"confirmed"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Model identifies the classifier that produced a prediction. (Name,
// Version) is unique.
type Model struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
}

type Prediction struct {
	ID            uuid.UUID     `json:"id"`
	EncounterID   uuid.UUID     `json:"encounterId"`
	ModelID       uuid.UUID     `json:"modelId"`
	Model         *Model        `json:"model,omitempty"`
	TopLabel      string        `json:"topLabel"`
	Probabilities Probabilities `json:"probabilities"`
	CreatedAt     time.Time     `json:"createdAt"`
}

type Attachment struct {
	ID          uuid.UUID `json:"id"`
	EncounterID uuid.UUID `json:"encounterId"`
	Kind        string    `json:"kind"`
	URL         string    `json:"url"`
	MimeType    string    `json:"mimeType"`
	FileName    string    `json:"fileName"`
	Size        int64     `json:"size"`
	SHA256      string    `json:"sha256"`
	StorageKey  string    `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Detail is an encounter with its children, each ordered oldest first.
type Detail struct {
	Encounter
	Diagnoses   []Diagnosis  `json:"diagnoses"`
	Predictions []Prediction `json:"predictions"`
	Attachments []Attachment `json:"attachments"`
}

func newDetail(e Encounter) Detail {
	return Detail{
		Encounter:   e,
		Diagnoses:   []Diagnosis{},
		Predictions: []Prediction{},
		Attachments: []Attachment{},
	}
}

// ContentURL is where an attachment's bytes are served.
func ContentURL(id uuid.UUID) string {
	return "/api/attachments/" + id.String() + "/content"
}

// KindFor classifies an upload by its MIME type.
func KindFor(mimeType string) string {
	if len(mimeType) >= 6 && mimeType[:6] == "image/" {
		return KindImage
	}
	return KindReport
}

// -- Requests --

type CreateEncounterRequest struct {
	PatientID string          `json:"patientId" validate:"required,uuid"`
	Type      *string         `json:"type" validate:"omitnil,oneof=OUTPATIENT INPATIENT ER TELEHEALTH"`
	StartedAt *string         `json:"startedAt" validate:"omitnil,date_or_datetime"`
	Notes     *string         `json:"notes"`
	Data      json.RawMessage `json:"data"`
}

type CreateDiagnosisRequest struct {
	EncounterID string  `json:"encounterId" validate:"required,uuid"`
	Label       string  `json:"label" validate:"required"`
	Code        *string `json:"code"`
	Confirmed   *bool   `json:"confirmed"`
}

type ModelRef struct {
	Name    string `json:"name" validate:"required"`
	Version string `json:"version" validate:"required"`
}

type CreatePredictionRequest struct {
	EncounterID   string        `json:"encounterId" validate:"required,uuid"`
	Model         ModelRef      `json:"model" validate:"required"`
	TopLabel      *string       `json:"topLabel" validate:"omitnil,min=1"`
	Probabilities Probabilities `json:"probabilities" validate:"required,min=1,dive,keys,required,endkeys,gte=0,lte=1"`
}
