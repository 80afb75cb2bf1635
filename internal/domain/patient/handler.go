package patient

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medrec/medrec/internal/domain/encounter"
	"github.com/medrec/medrec/internal/platform/apierr"
	"github.com/medrec/medrec/pkg/pagination"
)

// DetailLister loads a patient's encounters with their children.
type DetailLister interface {
	ListDetails(ctx context.Context, patientID uuid.UUID) ([]encounter.Detail, error)
}

// Detail is the GET /patients/:id body: the patient plus its encounters,
// newest first.
type Detail struct {
	*Patient
	Encounters []encounter.Detail `json:"encounters"`
}

type Handler struct {
	svc        *Service
	encounters DetailLister
}

func NewHandler(svc *Service, encounters DetailLister) *Handler {
	return &Handler{svc: svc, encounters: encounters}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients", h.ListPatients)
	api.POST("/patients", h.CreatePatient)
	api.GET("/patients/:id", h.GetPatient)
	api.PUT("/patients/:id", h.UpdatePatient)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	patients, total, err := h.svc.ListPatients(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	pg.SetHeaders(c, total)
	return c.JSON(http.StatusOK, patients)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return apierr.BadRequest("invalid request body")
	}
	req.Email = NormalizeEmail(req.Email)
	if err := c.Validate(&req); err != nil {
		return err
	}

	p := req.ToPatient()
	if err := h.svc.CreatePatient(c.Request().Context(), p); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := ParseID(c.Param("id"))
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	p, err := h.svc.GetPatient(ctx, id)
	if err != nil {
		return err
	}
	details, err := h.encounters.ListDetails(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Detail{Patient: p, Encounters: details})
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := ParseID(c.Param("id"))
	if err != nil {
		return err
	}
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return apierr.BadRequest("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	p, err := h.svc.UpdatePatient(c.Request().Context(), id, &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// ParseID parses a patient path parameter.
func ParseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apierr.BadRequest("invalid patient id")
	}
	return id, nil
}
