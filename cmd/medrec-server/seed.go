package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/medrec/medrec/internal/domain/encounter"
	"github.com/medrec/medrec/internal/domain/patient"
)

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the demo patient and first encounter",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()
			a, err := openApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			p, enc, err := seed(ctx, a)
			if err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			if enc == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Patient %s (%s) already present, nothing to do.\n", p.Email, p.ID)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded patient %s (%s) with encounter %s.\n", p.Email, p.ID, enc.ID)
			return nil
		},
	}
}

func demoPatient() *patient.Patient {
	str := func(s string) *string { return &s }
	num := func(f float64) *float64 { return &f }
	dob := time.Date(1989, 2, 10, 0, 0, 0, 0, time.UTC)
	return &patient.Patient{
		FirstName:   "Ava",
		LastName:    "Patel",
		Email:       "ava.patel@example.com",
		Phone:       str("9876543210"),
		DateOfBirth: &dob,
		Address:     str("Pune, India"),
		BloodType:   str("O+"),
		Height:      num(165.5),
		Weight:      num(60.0),
		Allergies:   str("None"),
	}
}

// seed upserts the demo patient by email. The first encounter is only
// created together with the patient, so running seed again changes nothing.
// The returned encounter is nil when the patient already existed.
func seed(ctx context.Context, a *app) (*patient.Patient, *encounter.Encounter, error) {
	p, created, err := a.patients.EnsurePatient(ctx, demoPatient())
	if err != nil {
		return nil, nil, err
	}
	if !created {
		return p, nil, nil
	}

	data, err := json.Marshal(map[string]interface{}{
		"notes":  "Initial visit for cough and fever",
		"vitals": map[string]float64{"temp": 101.2, "pulse": 88},
	})
	if err != nil {
		return nil, nil, err
	}
	enc := &encounter.Encounter{PatientID: p.ID, Data: data}
	if err := a.encounters.CreateEncounter(ctx, enc); err != nil {
		return nil, nil, err
	}
	a.logger.Info().Str("patient_id", p.ID.String()).Str("encounter_id", enc.ID.String()).Msg("seeded demo data")
	return p, enc, nil
}
