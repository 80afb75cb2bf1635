// Package report derives read-only views from stored encounters: the
// per-encounter medical report list and the patient dashboard figures.
package report

import (
	"github.com/google/uuid"

	"github.com/medrec/medrec/internal/domain/encounter"
)

const (
	ReportType     = "Medical Report"
	StatusComplete = "Completed"
	StatusPending  = "Pending"
	dateLayout     = "2006-01-02"
)

type Report struct {
	ID          uuid.UUID              `json:"id"`
	Title       string                 `json:"title"`
	Date        string                 `json:"date"`
	Type        string                 `json:"type"`
	Status      string                 `json:"status"`
	Confidence  float64                `json:"confidence"`
	Diagnosis   string                 `json:"diagnosis"`
	Attachments []encounter.Attachment `json:"attachments"`
}

// FromEncounters builds one report per encounter, keeping the input order.
// Each report is driven by the encounter's first diagnosis and first
// prediction.
func FromEncounters(details []encounter.Detail) []Report {
	out := make([]Report, 0, len(details))
	for _, d := range details {
		r := Report{
			ID:          d.ID,
			Title:       ReportType,
			Date:        d.CreatedAt.UTC().Format(dateLayout),
			Type:        ReportType,
			Status:      StatusPending,
			Diagnosis:   StatusPending,
			Attachments: d.Attachments,
		}
		if len(d.Diagnoses) > 0 {
			first := d.Diagnoses[0]
			r.Title = first.Label
			r.Diagnosis = first.Label
			if first.Confirmed {
				r.Status = StatusComplete
			}
		}
		if len(d.Predictions) > 0 {
			r.Confidence = d.Predictions[0].Probabilities.ConfidencePercent()
		}
		if r.Attachments == nil {
			r.Attachments = []encounter.Attachment{}
		}
		out = append(out, r)
	}
	return out
}
