package report

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medrec/medrec/internal/domain/encounter"
	"github.com/medrec/medrec/internal/domain/patient"
	"github.com/medrec/medrec/pkg/pagination"
)

type PatientSource interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
	ListPatients(ctx context.Context, limit, offset int) ([]*patient.Patient, int, error)
}

type DetailLister interface {
	ListDetails(ctx context.Context, patientID uuid.UUID) ([]encounter.Detail, error)
}

type Handler struct {
	patients   PatientSource
	encounters DetailLister
	now        func() time.Time
}

func NewHandler(patients PatientSource, encounters DetailLister) *Handler {
	return &Handler{patients: patients, encounters: encounters, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients/roster", h.Roster)
	api.GET("/patients/:id/reports", h.Reports)
	api.GET("/patients/:id/dashboard", h.Dashboard)
}

func (h *Handler) Reports(c echo.Context) error {
	_, details, err := h.load(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, FromEncounters(details))
}

func (h *Handler) Dashboard(c echo.Context) error {
	p, details, err := h.load(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Dashboard(p, details, h.now()))
}

// Roster lists a page of patients as roster rows. The q and status
// filters apply to the fetched page.
func (h *Handler) Roster(c echo.Context) error {
	pg := pagination.FromContext(c)
	patients, total, err := h.patients.ListPatients(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	rows := Roster(patients, h.now())
	rows = FilterRoster(rows, c.QueryParam("q"))
	rows = FilterStatus(rows, c.QueryParam("status"))

	pg.SetHeaders(c, total)
	return c.JSON(http.StatusOK, rows)
}

func (h *Handler) load(c echo.Context) (*patient.Patient, []encounter.Detail, error) {
	id, err := patient.ParseID(c.Param("id"))
	if err != nil {
		return nil, nil, err
	}
	ctx := c.Request().Context()
	p, err := h.patients.GetPatient(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	details, err := h.encounters.ListDetails(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return p, details, nil
}
