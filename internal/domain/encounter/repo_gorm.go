package encounter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type encounterRow struct {
	ID        uuid.UUID `gorm:"type:char(36);primaryKey"`
	PatientID uuid.UUID `gorm:"type:char(36);index;not null"`
	Type      string    `gorm:"not null"`
	StartedAt time.Time `gorm:"index"`
	Notes     *string
	Data      datatypes.JSON
	CreatedAt time.Time `gorm:"index"`
}

func (encounterRow) TableName() string { return "encounter" }

type diagnosisRow struct {
	ID          uuid.UUID `gorm:"type:char(36);primaryKey"`
	EncounterID uuid.UUID `gorm:"type:char(36);index;not null"`
	Label       string    `gorm:"not null"`
	Code        *string
	Confirmed   bool
	CreatedAt   time.Time
}

func (diagnosisRow) TableName() string { return "diagnosis" }

type modelRow struct {
	ID        uuid.UUID `gorm:"type:char(36);primaryKey"`
	Name      string    `gorm:"uniqueIndex:idx_model_name_version;not null"`
	Version   string    `gorm:"uniqueIndex:idx_model_name_version;not null"`
	CreatedAt time.Time
}

func (modelRow) TableName() string { return "model" }

type predictionRow struct {
	ID            uuid.UUID     `gorm:"type:char(36);primaryKey"`
	EncounterID   uuid.UUID     `gorm:"type:char(36);index;not null"`
	ModelID       uuid.UUID     `gorm:"type:char(36);index;not null"`
	TopLabel      string        `gorm:"not null"`
	Probabilities Probabilities `gorm:"serializer:json;not null"`
	CreatedAt     time.Time
}

func (predictionRow) TableName() string { return "prediction" }

type attachmentRow struct {
	ID          uuid.UUID `gorm:"type:char(36);primaryKey"`
	EncounterID uuid.UUID `gorm:"type:char(36);index;not null"`
	Kind        string
	URL         string
	MimeType    string
	FileName    string
	Size        int64
	SHA256      string `gorm:"column:sha256"`
	StorageKey  string
	CreatedAt   time.Time
}

func (attachmentRow) TableName() string { return "attachment" }

// GormModels lists the tables this package owns for AutoMigrate.
func GormModels() []interface{} {
	return []interface{}{&encounterRow{}, &diagnosisRow{}, &modelRow{}, &predictionRow{}, &attachmentRow{}}
}

type repoGorm struct {
	db *gorm.DB
}

func NewGormRepo(db *gorm.DB) Repository {
	return &repoGorm{db: db}
}

// -- Encounter --

func (r *repoGorm) CreateEncounter(ctx context.Context, e *Encounter) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = time.Now().UTC()
	row := encounterRow{
		ID: e.ID, PatientID: e.PatientID, Type: e.Type, StartedAt: e.StartedAt,
		Notes: e.Notes, Data: datatypes.JSON(rawJSON(e.Data)), CreatedAt: e.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert encounter: %w", err)
	}
	return nil
}

func (r *repoGorm) GetEncounter(ctx context.Context, id uuid.UUID) (*Encounter, error) {
	var row encounterRow
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select encounter: %w", err)
	}
	return row.toEncounter(), nil
}

func (r *repoGorm) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Encounter, error) {
	return r.listEncounters(ctx, patientID, "started_at DESC")
}

func (r *repoGorm) listEncounters(ctx context.Context, patientID uuid.UUID, order string) ([]*Encounter, error) {
	var rows []encounterRow
	err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order(order).Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list encounters: %w", err)
	}
	out := make([]*Encounter, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toEncounter())
	}
	return out, nil
}

func (r *repoGorm) EncounterExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&encounterRow{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, fmt.Errorf("encounter exists: %w", err)
	}
	return n > 0, nil
}

func (row *encounterRow) toEncounter() *Encounter {
	e := &Encounter{
		ID: row.ID, PatientID: row.PatientID, Type: row.Type, StartedAt: row.StartedAt,
		Notes: row.Notes, CreatedAt: row.CreatedAt,
	}
	if len(row.Data) > 0 && string(row.Data) != "null" {
		e.Data = json.RawMessage(row.Data)
	}
	return e
}

// -- Diagnosis --

func (r *repoGorm) CreateDiagnosis(ctx context.Context, d *Diagnosis) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt = time.Now().UTC()
	row := diagnosisRow(*d)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert diagnosis: %w", err)
	}
	return nil
}

func (r *repoGorm) ListDiagnoses(ctx context.Context, encounterID uuid.UUID) ([]*Diagnosis, error) {
	return r.diagnosesWhere(ctx, "encounter_id = ?", encounterID)
}

func (r *repoGorm) diagnosesWhere(ctx context.Context, cond string, arg interface{}) ([]*Diagnosis, error) {
	var rows []diagnosisRow
	if err := r.db.WithContext(ctx).Where(cond, arg).Order("created_at").Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list diagnoses: %w", err)
	}
	out := make([]*Diagnosis, 0, len(rows))
	for i := range rows {
		d := Diagnosis(rows[i])
		out = append(out, &d)
	}
	return out, nil
}

// -- Prediction / Model --

func (r *repoGorm) CreatePrediction(ctx context.Context, p *Prediction, name, version string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m := modelRow{ID: uuid.New(), Name: name, Version: version, CreatedAt: time.Now().UTC()}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}, {Name: "version"}},
			DoNothing: true,
		}).Create(&m).Error
		if err != nil {
			return fmt.Errorf("upsert model: %w", err)
		}
		var stored modelRow
		if err := tx.Where("name = ? AND version = ?", name, version).First(&stored).Error; err != nil {
			return fmt.Errorf("load model: %w", err)
		}

		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		p.ModelID = stored.ID
		p.Model = stored.toModel()
		p.CreatedAt = time.Now().UTC()

		row := predictionRow{
			ID: p.ID, EncounterID: p.EncounterID, ModelID: p.ModelID,
			TopLabel: p.TopLabel, Probabilities: p.Probabilities, CreatedAt: p.CreatedAt,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert prediction: %w", err)
		}
		return nil
	})
}

func (r *repoGorm) ListPredictions(ctx context.Context, encounterID uuid.UUID) ([]*Prediction, error) {
	return r.predictionsWhere(ctx, "encounter_id = ?", encounterID)
}

func (r *repoGorm) predictionsWhere(ctx context.Context, cond string, arg interface{}) ([]*Prediction, error) {
	var rows []predictionRow
	if err := r.db.WithContext(ctx).Where(cond, arg).Order("created_at").Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	if len(rows) == 0 {
		return []*Prediction{}, nil
	}

	modelIDs := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		modelIDs = append(modelIDs, row.ModelID)
	}
	var models []modelRow
	if err := r.db.WithContext(ctx).Where("id IN ?", modelIDs).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("load models: %w", err)
	}
	byID := make(map[uuid.UUID]*Model, len(models))
	for i := range models {
		byID[models[i].ID] = models[i].toModel()
	}

	out := make([]*Prediction, 0, len(rows))
	for _, row := range rows {
		out = append(out, &Prediction{
			ID: row.ID, EncounterID: row.EncounterID, ModelID: row.ModelID, Model: byID[row.ModelID],
			TopLabel: row.TopLabel, Probabilities: row.Probabilities, CreatedAt: row.CreatedAt,
		})
	}
	return out, nil
}

func (r *repoGorm) ListModels(ctx context.Context) ([]*Model, error) {
	var rows []modelRow
	if err := r.db.WithContext(ctx).Order("name").Order("version").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	out := make([]*Model, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

func (row *modelRow) toModel() *Model {
	return &Model{ID: row.ID, Name: row.Name, Version: row.Version, CreatedAt: row.CreatedAt}
}

// -- Attachment --

func (r *repoGorm) CreateAttachment(ctx context.Context, a *Attachment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now().UTC()
	row := attachmentRow(*a)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

func (r *repoGorm) GetAttachment(ctx context.Context, id uuid.UUID) (*Attachment, error) {
	var row attachmentRow
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select attachment: %w", err)
	}
	a := Attachment(row)
	return &a, nil
}

func (r *repoGorm) ListAttachments(ctx context.Context, encounterID uuid.UUID) ([]*Attachment, error) {
	return r.attachmentsWhere(ctx, "encounter_id = ?", encounterID)
}

func (r *repoGorm) attachmentsWhere(ctx context.Context, cond string, arg interface{}) ([]*Attachment, error) {
	var rows []attachmentRow
	if err := r.db.WithContext(ctx).Where(cond, arg).Order("created_at").Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	out := make([]*Attachment, 0, len(rows))
	for i := range rows {
		a := Attachment(rows[i])
		out = append(out, &a)
	}
	return out, nil
}

// -- Details --

func (r *repoGorm) ListDetails(ctx context.Context, patientID uuid.UUID) ([]Detail, error) {
	encs, err := r.listEncounters(ctx, patientID, "created_at DESC")
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

	diagnoses, err := r.diagnosesWhere(ctx, "encounter_id IN ?", ids)
	if err != nil {
		return nil, err
	}
	predictions, err := r.predictionsWhere(ctx, "encounter_id IN ?", ids)
	if err != nil {
		return nil, err
	}
	attachments, err := r.attachmentsWhere(ctx, "encounter_id IN ?", ids)
	if err != nil {
		return nil, err
	}
	return assemble(encs, diagnoses, predictions, attachments), nil
}
