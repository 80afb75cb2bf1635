package encounter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medrec/medrec/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const (
	encounterCols  = `id, patient_id, type, started_at, notes, data, created_at`
	diagnosisCols  = `id, encounter_id, label, code, confirmed, created_at`
	attachmentCols = `id, encounter_id, kind, url, mime_type, file_name, size, sha256, storage_key, created_at`
	predictionCols = `p.id, p.encounter_id, p.model_id, p.top_label, p.probabilities, p.created_at,
	m.id, m.name, m.version, m.created_at`
)

// -- Encounter --

func (r *repoPG) CreateEncounter(ctx context.Context, e *Encounter) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = time.Now().UTC()

	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO encounter (`+encounterCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.PatientID, e.Type, e.StartedAt, e.Notes, rawJSON(e.Data), e.CreatedAt,
	)
	if db.IsForeignKeyViolation(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert encounter: %w", err)
	}
	return nil
}

func (r *repoPG) GetEncounter(ctx context.Context, id uuid.UUID) (*Encounter, error) {
	e, err := scanEncounter(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+encounterCols+` FROM encounter WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select encounter: %w", err)
	}
	return e, nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Encounter, error) {
	return r.listEncounters(ctx, `
		SELECT `+encounterCols+` FROM encounter
		WHERE patient_id = $1
		ORDER BY started_at DESC, id`, patientID)
}

func (r *repoPG) listEncounters(ctx context.Context, query string, args ...interface{}) ([]*Encounter, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list encounters: %w", err)
	}
	defer rows.Close()

	out := []*Encounter{}
	for rows.Next() {
		e, err := scanEncounter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan encounter: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repoPG) EncounterExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM encounter WHERE id = $1)`, id).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("encounter exists: %w", err)
	}
	return ok, nil
}

// -- Diagnosis --

func (r *repoPG) CreateDiagnosis(ctx context.Context, d *Diagnosis) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt = time.Now().UTC()

	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO diagnosis (`+diagnosisCols+`)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		d.ID, d.EncounterID, d.Label, d.Code, d.Confirmed, d.CreatedAt,
	)
	if db.IsForeignKeyViolation(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert diagnosis: %w", err)
	}
	return nil
}

func (r *repoPG) ListDiagnoses(ctx context.Context, encounterID uuid.UUID) ([]*Diagnosis, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+diagnosisCols+` FROM diagnosis
		WHERE encounter_id = $1
		ORDER BY created_at, id`, encounterID)
	if err != nil {
		return nil, fmt.Errorf("list diagnoses: %w", err)
	}
	defer rows.Close()

	out := []*Diagnosis{}
	for rows.Next() {
		d, err := scanDiagnosis(rows)
		if err != nil {
			return nil, fmt.Errorf("scan diagnosis: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// -- Prediction / Model --

func (r *repoPG) CreatePrediction(ctx context.Context, p *Prediction, name, version string) error {
	probs, err := json.Marshal(p.Probabilities)
	if err != nil {
		return fmt.Errorf("encode probabilities: %w", err)
	}

	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		conn := db.Conn(ctx, r.pool)

		var m Model
		err := conn.QueryRow(ctx, `
			INSERT INTO model (id, name, version, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (name, version) DO UPDATE SET name = EXCLUDED.name
			RETURNING id, name, version, created_at`,
			uuid.New(), name, version, time.Now().UTC(),
		).Scan(&m.ID, &m.Name, &m.Version, &m.CreatedAt)
		if err != nil {
			return fmt.Errorf("upsert model: %w", err)
		}

		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		p.ModelID = m.ID
		p.Model = &m
		p.CreatedAt = time.Now().UTC()

		_, err = conn.Exec(ctx, `
			INSERT INTO prediction (id, encounter_id, model_id, top_label, probabilities, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			p.ID, p.EncounterID, p.ModelID, p.TopLabel, probs, p.CreatedAt,
		)
		if db.IsForeignKeyViolation(err) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("insert prediction: %w", err)
		}
		return nil
	})
}

func (r *repoPG) ListPredictions(ctx context.Context, encounterID uuid.UUID) ([]*Prediction, error) {
	return r.listPredictions(ctx, `
		SELECT `+predictionCols+`
		FROM prediction p JOIN model m ON m.id = p.model_id
		WHERE p.encounter_id = $1
		ORDER BY p.created_at, p.id`, encounterID)
}

func (r *repoPG) listPredictions(ctx context.Context, query string, args ...interface{}) ([]*Prediction, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	defer rows.Close()

	out := []*Prediction{}
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repoPG) ListModels(ctx context.Context) ([]*Model, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT id, name, version, created_at FROM model ORDER BY name, version`)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	out := []*Model{}
	for rows.Next() {
		var m Model
		if err := rows.Scan(&m.ID, &m.Name, &m.Version, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// -- Attachment --

func (r *repoPG) CreateAttachment(ctx context.Context, a *Attachment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now().UTC()

	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO attachment (`+attachmentCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		a.ID, a.EncounterID, a.Kind, a.URL, a.MimeType, a.FileName, a.Size, a.SHA256, a.StorageKey, a.CreatedAt,
	)
	if db.IsForeignKeyViolation(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

func (r *repoPG) GetAttachment(ctx context.Context, id uuid.UUID) (*Attachment, error) {
	a, err := scanAttachment(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+attachmentCols+` FROM attachment WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select attachment: %w", err)
	}
	return a, nil
}

func (r *repoPG) ListAttachments(ctx context.Context, encounterID uuid.UUID) ([]*Attachment, error) {
	return r.listAttachments(ctx, `
		SELECT `+attachmentCols+` FROM attachment
		WHERE encounter_id = $1
		ORDER BY created_at, id`, encounterID)
}

func (r *repoPG) listAttachments(ctx context.Context, query string, args ...interface{}) ([]*Attachment, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	out := []*Attachment{}
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// -- Details --

func (r *repoPG) ListDetails(ctx context.Context, patientID uuid.UUID) ([]Detail, error) {
	encs, err := r.listEncounters(ctx, `
		SELECT `+encounterCols+` FROM encounter
		WHERE patient_id = $1
		ORDER BY created_at DESC, id`, patientID)
	if err != nil {
		return nil, err
	}
	if len(encs) == 0 {
		return []Detail{}, nil
	}

	ids := make([]uuid.UUID, len(encs))
	for i, e := range encs {
		ids[i] = e.ID
	}

	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+diagnosisCols+` FROM diagnosis
		WHERE encounter_id = ANY($1)
		ORDER BY created_at, id`, ids)
	if err != nil {
		return nil, fmt.Errorf("list diagnoses: %w", err)
	}
	var diagnoses []*Diagnosis
	for rows.Next() {
		d, err := scanDiagnosis(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan diagnosis: %w", err)
		}
		diagnoses = append(diagnoses, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	predictions, err := r.listPredictions(ctx, `
		SELECT `+predictionCols+`
		FROM prediction p JOIN model m ON m.id = p.model_id
		WHERE p.encounter_id = ANY($1)
		ORDER BY p.created_at, p.id`, ids)
	if err != nil {
		return nil, err
	}
	attachments, err := r.listAttachments(ctx, `
		SELECT `+attachmentCols+` FROM attachment
		WHERE encounter_id = ANY($1)
		ORDER BY created_at, id`, ids)
	if err != nil {
		return nil, err
	}

	return assemble(encs, diagnoses, predictions, attachments), nil
}

// -- Scanners --

func scanEncounter(row pgx.Row) (*Encounter, error) {
	var e Encounter
	var data []byte
	if err := row.Scan(&e.ID, &e.PatientID, &e.Type, &e.StartedAt, &e.Notes, &data, &e.CreatedAt); err != nil {
		return nil, err
	}
	if len(data) > 0 {
		e.Data = json.RawMessage(data)
	}
	return &e, nil
}

func scanDiagnosis(row pgx.Row) (*Diagnosis, error) {
	var d Diagnosis
	if err := row.Scan(&d.ID, &d.EncounterID, &d.Label, &d.Code, &d.Confirmed, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func scanPrediction(row pgx.Row) (*Prediction, error) {
	var p Prediction
	var m Model
	var probs []byte
	err := row.Scan(&p.ID, &p.EncounterID, &p.ModelID, &p.TopLabel, &probs, &p.CreatedAt,
		&m.ID, &m.Name, &m.Version, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(probs, &p.Probabilities); err != nil {
		return nil, fmt.Errorf("decode probabilities: %w", err)
	}
	p.Model = &m
	return &p, nil
}

func scanAttachment(row pgx.Row) (*Attachment, error) {
	var a Attachment
	err := row.Scan(&a.ID, &a.EncounterID, &a.Kind, &a.URL, &a.MimeType, &a.FileName,
		&a.Size, &a.SHA256, &a.StorageKey, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func rawJSON(data json.RawMessage) []byte {
	if len(data) == 0 {
		return nil
	}
	return []byte(data)
}
