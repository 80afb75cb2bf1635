package report

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medrec/medrec/internal/domain/encounter"
	"github.com/medrec/medrec/internal/domain/patient"
	"github.com/medrec/medrec/internal/platform/validate"
)

const (
	NoRecords     = "No records"
	NoCondition   = "—"
	RosterActive  = "active"
	checkupLayout = "1/2/2006"
)

// Stats are the dashboard cards for one patient.
type Stats struct {
	PatientID     uuid.UUID `json:"patientId"`
	Name          string    `json:"name"`
	Age           *int      `json:"age"`
	RecentReports int       `json:"recentReports"`
	HealthScore   int       `json:"healthScore"`
	AIDiagnoses   int       `json:"aiDiagnoses"`
	LastCheckup   string    `json:"lastCheckup"`
}

// Row is one line of the clinician's patient roster.
type Row struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Age       *int      `json:"age"`
	Email     string    `json:"email"`
	LastVisit time.Time `json:"lastVisit"`
	Condition string    `json:"condition"`
	Status    string    `json:"status"`
	Reports   int       `json:"reports"`
}

// Age returns whole years between dob and now, or nil when dob is unknown
// or in the future.
func Age(dob *time.Time, now time.Time) *int {
	if dob == nil {
		return nil
	}
	d, n := dob.UTC(), now.UTC()
	if d.After(n) {
		return nil
	}
	years := n.Year() - d.Year()
	if n.Month() < d.Month() || (n.Month() == d.Month() && n.Day() < d.Day()) {
		years--
	}
	return &years
}

// ParseAge is Age over an RFC 3339 or YYYY-MM-DD string.
func ParseAge(dob string, now time.Time) *int {
	t, ok := validate.ParseDate(dob)
	if !ok {
		return nil
	}
	return Age(&t, now)
}

// HealthScore is a display placeholder, not a clinical measure.
func HealthScore(encounters int) int {
	if encounters == 0 {
		return 75
	}
	score := 60 + encounters*5
	if score > 100 {
		return 100
	}
	return score
}

// AIDiagnosisCount counts encounters with at least one prediction.
func AIDiagnosisCount(details []encounter.Detail) int {
	n := 0
	for _, d := range details {
		if len(d.Predictions) > 0 {
			n++
		}
	}
	return n
}

// LastCheckup formats the creation date of the first (most recent)
// encounter.
func LastCheckup(details []encounter.Detail) string {
	if len(details) == 0 {
		return NoRecords
	}
	return details[0].CreatedAt.UTC().Format(checkupLayout)
}

// Dashboard bundles the stat cards. details must be newest first.
func Dashboard(p *patient.Patient, details []encounter.Detail, now time.Time) Stats {
	return Stats{
		PatientID:     p.ID,
		Name:          p.FullName(),
		Age:           Age(p.DateOfBirth, now),
		RecentReports: len(details),
		HealthScore:   HealthScore(len(details)),
		AIDiagnoses:   AIDiagnosisCount(details),
		LastCheckup:   LastCheckup(details),
	}
}

func Roster(patients []*patient.Patient, now time.Time) []Row {
	rows := make([]Row, 0, len(patients))
	for _, p := range patients {
		condition := NoCondition
		if p.Allergies != nil && *p.Allergies != "" {
			condition = "Allergies: " + *p.Allergies
		}
		rows = append(rows, Row{
			ID:        p.ID,
			Name:      p.FirstName + " " + p.LastName,
			Age:       Age(p.DateOfBirth, now),
			Email:     p.Email,
			LastVisit: p.UpdatedAt,
			Condition: condition,
			Status:    RosterActive,
		})
	}
	return rows
}

// FilterRoster keeps rows whose name or email contains query, ignoring
// case. An empty query keeps everything.
func FilterRoster(rows []Row, query string) []Row {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return rows
	}
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if strings.Contains(strings.ToLower(r.Name), q) || strings.Contains(strings.ToLower(r.Email), q) {
			out = append(out, r)
		}
	}
	return out
}

// FilterStatus keeps rows with the given status; "" and "all" keep all.
func FilterStatus(rows []Row, status string) []Row {
	if status == "" || status == "all" {
		return rows
	}
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out
}
