package client

import (
	"encoding/json"
	"time"
)

// These mirror the server's JSON payloads.

type Patient struct {
	ID          string     `json:"id"`
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

// PatientDetail is a patient with its encounters, newest first.
type PatientDetail struct {
	Patient
	Encounters []Encounter `json:"encounters"`
}

type Encounter struct {
	ID          string          `json:"id"`
	PatientID   string          `json:"patientId"`
	Type        string          `json:"type"`
	StartedAt   time.Time       `json:"startedAt"`
	Notes       *string         `json:"notes"`
	Data        json.RawMessage `json:"data"`
	CreatedAt   time.Time       `json:"createdAt"`
	Diagnoses   []Diagnosis     `json:"diagnoses"`
	Predictions []Prediction    `json:"predictions"`
	Attachments []Attachment    `json:"attachments"`
}

type Diagnosis struct {
	ID          string    `json:"id"`
	EncounterID string    `json:"encounterId"`
	Label       string    `json:"label"`
	Code        *string   `json:"code"`
	Confirmed   bool      `json:"confirmed"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Model struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

type Prediction struct {
	ID            string             `json:"id"`
	EncounterID   string             `json:"encounterId"`
	ModelID       string             `json:"modelId"`
	Model         *Model             `json:"model,omitempty"`
	TopLabel      string             `json:"topLabel"`
	Probabilities map[string]float64 `json:"probabilities"`
	CreatedAt     time.Time          `json:"createdAt"`
}

type Attachment struct {
	ID          string    `json:"id"`
	EncounterID string    `json:"encounterId"`
	Kind        string    `json:"kind"`
	URL         string    `json:"url"`
	MimeType    string    `json:"mimeType"`
	FileName    string    `json:"fileName"`
	Size        int64     `json:"size"`
	SHA256      string    `json:"sha256"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Report struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Date        string       `json:"date"`
	Type        string       `json:"type"`
	Status      string       `json:"status"`
	Confidence  float64      `json:"confidence"`
	Diagnosis   string       `json:"diagnosis"`
	Attachments []Attachment `json:"attachments"`
}

type Stats struct {
	PatientID     string `json:"patientId"`
	Name          string `json:"name"`
	Age           *int   `json:"age"`
	RecentReports int    `json:"recentReports"`
	HealthScore   int    `json:"healthScore"`
	AIDiagnoses   int    `json:"aiDiagnoses"`
	LastCheckup   string `json:"lastCheckup"`
}

// PredictionInput is what an inference producer posts for an encounter.
type PredictionInput struct {
	EncounterID   string             `json:"encounterId"`
	Model         Model              `json:"model"`
	TopLabel      string             `json:"topLabel,omitempty"`
	Probabilities map[string]float64 `json:"probabilities"`
}
