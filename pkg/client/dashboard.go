package client

import "context"

// DemoStats is shown when the real figures cannot be fetched.
var DemoStats = Stats{
	Name:          "Patient",
	RecentReports: 12,
	HealthScore:   85,
	AIDiagnoses:   8,
	LastCheckup:   "3 days ago",
}

type DashboardView struct {
	Stats Stats
	// Demo is true when Stats is DemoStats because the fetch failed.
	Demo bool
}

// LoadDashboard fetches the patient's dashboard figures. Any fetch error is
// logged and replaced by DemoStats. If ctx is done by the time the fetch
// returns, the result is dropped and ctx.Err() is returned.
func (c *Client) LoadDashboard(ctx context.Context, s *Session, patientID string) (*DashboardView, error) {
	stats, err := c.Dashboard(ctx, s, patientID)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("patient_id", patientID).Msg("dashboard fetch failed, using demo data")
		demo := DemoStats
		demo.PatientID = patientID
		return &DashboardView{Stats: demo, Demo: true}, nil
	}
	return &DashboardView{Stats: *stats}, nil
}
