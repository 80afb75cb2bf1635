package encounter

import (
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medrec/medrec/internal/platform/apierr"
	"github.com/medrec/medrec/internal/platform/auth"
	"github.com/medrec/medrec/internal/platform/validate"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Writes need a clinician (admin passes every role check).
	write := auth.RequireRole(auth.RoleClinician)

	api.GET("/patients/:id/encounters", h.ListPatientEncounters)
	api.POST("/patients/:id/encounters", h.CreatePatientEncounter, write)
	api.POST("/encounters", h.CreateEncounter, write)
	api.GET("/encounters/:id", h.GetEncounter)

	api.GET("/encounters/:id/diagnoses", h.ListDiagnoses)
	api.POST("/encounters/:id/diagnoses", h.CreateEncounterDiagnosis, write)
	api.POST("/diagnoses", h.CreateDiagnosis, write)

	api.GET("/encounters/:id/predictions", h.ListPredictions)
	api.POST("/predictions", h.CreatePrediction, write)
	api.GET("/models", h.ListModels)

	api.GET("/encounters/:id/attachments", h.ListAttachments)
	api.POST("/encounters/:id/attachments", h.UploadAttachment)
	api.GET("/attachments/:id/content", h.DownloadAttachment)
}

// -- Encounters --

func (h *Handler) ListPatientEncounters(c echo.Context) error {
	patientID, err := pathID(c, "patient")
	if err != nil {
		return err
	}
	encs, err := h.svc.ListEncounters(c.Request().Context(), patientID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, encs)
}

func (h *Handler) CreatePatientEncounter(c echo.Context) error {
	var req CreateEncounterRequest
	if err := c.Bind(&req); err != nil {
		return apierr.BadRequest("invalid request body")
	}
	req.PatientID = c.Param("id")
	return h.createEncounter(c, &req)
}

func (h *Handler) CreateEncounter(c echo.Context) error {
	var req CreateEncounterRequest
	if err := c.Bind(&req); err != nil {
		return apierr.BadRequest("invalid request body")
	}
	return h.createEncounter(c, &req)
}

func (h *Handler) createEncounter(c echo.Context, req *CreateEncounterRequest) error {
	if err := c.Validate(req); err != nil {
		return err
	}

	e := &Encounter{
		PatientID: uuid.MustParse(req.PatientID),
		Notes:     req.Notes,
		Data:      req.Data,
	}
	if req.Type != nil {
		e.Type = *req.Type
	}
	if req.StartedAt != nil {
		t, _ := validate.ParseDate(*req.StartedAt)
		e.StartedAt = t.UTC()
	}
	if string(e.Data) == "null" {
		e.Data = nil
	}

	if err := h.svc.CreateEncounter(c.Request().Context(), e); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) GetEncounter(c echo.Context) error {
	id, err := pathID(c, "encounter")
	if err != nil {
		return err
	}
	d, err := h.svc.GetEncounter(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

// -- Diagnoses --

func (h *Handler) ListDiagnoses(c echo.Context) error {
	id, err := pathID(c, "encounter")
	if err != nil {
		return err
	}
	out, err := h.svc.ListDiagnoses(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) CreateEncounterDiagnosis(c echo.Context) error {
	var req CreateDiagnosisRequest
	if err := c.Bind(&req); err != nil {
		return apierr.BadRequest("invalid request body")
	}
	req.EncounterID = c.Param("id")
	return h.createDiagnosis(c, &req)
}

func (h *Handler) CreateDiagnosis(c echo.Context) error {
	var req CreateDiagnosisRequest
	if err := c.Bind(&req); err != nil {
		return apierr.BadRequest("invalid request body")
	}
	return h.createDiagnosis(c, &req)
}

func (h *Handler) createDiagnosis(c echo.Context, req *CreateDiagnosisRequest) error {
	if err := c.Validate(req); err != nil {
		return err
	}
	d := &Diagnosis{
		EncounterID: uuid.MustParse(req.EncounterID),
		Label:       req.Label,
		Code:        req.Code,
	}
	if req.Confirmed != nil {
		d.Confirmed = *req.Confirmed
	}
	if err := h.svc.AddDiagnosis(c.Request().Context(), d); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, d)
}

// -- Predictions --

func (h *Handler) CreatePrediction(c echo.Context) error {
	var req CreatePredictionRequest
	if err := c.Bind(&req); err != nil {
		return apierr.BadRequest("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	p, err := h.svc.RecordPrediction(c.Request().Context(), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) ListPredictions(c echo.Context) error {
	id, err := pathID(c, "encounter")
	if err != nil {
		return err
	}
	out, err := h.svc.ListPredictions(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) ListModels(c echo.Context) error {
	out, err := h.svc.ListModels(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

// -- Attachments --

func (h *Handler) ListAttachments(c echo.Context) error {
	id, err := pathID(c, "encounter")
	if err != nil {
		return err
	}
	out, err := h.svc.ListAttachments(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) UploadAttachment(c echo.Context) error {
	id, err := pathID(c, "encounter")
	if err != nil {
		return err
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return apierr.BadRequest("multipart field \"file\" is required")
	}
	f, err := fh.Open()
	if err != nil {
		return apierr.BadRequest("unreadable upload")
	}
	defer f.Close()

	a, err := h.svc.Upload(c.Request().Context(), id, fh.Filename, uploadContentType(fh.Filename, fh.Header.Get(echo.HeaderContentType)), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) DownloadAttachment(c echo.Context) error {
	id, err := pathID(c, "attachment")
	if err != nil {
		return err
	}
	rc, a, err := h.svc.OpenAttachment(c.Request().Context(), id)
	if err != nil {
		return err
	}
	defer rc.Close()

	hdr := c.Response().Header()
	hdr.Set(echo.HeaderContentDisposition, mime.FormatMediaType("inline", map[string]string{"filename": a.FileName}))
	hdr.Set(echo.HeaderContentLength, strconv.FormatInt(a.Size, 10))
	hdr.Set("X-Content-SHA256", a.SHA256)
	return c.Stream(http.StatusOK, a.MimeType, rc)
}

// uploadContentType prefers the part's declared type and falls back to the
// file extension when the client sent none.
func uploadContentType(fileName, declared string) string {
	if declared != "" && declared != echo.MIMEOctetStream {
		return declared
	}
	if byExt := mime.TypeByExtension(filepath.Ext(fileName)); byExt != "" {
		return byExt
	}
	return declared
}

func pathID(c echo.Context, resource string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apierr.BadRequest("invalid " + resource + " id")
	}
	return id, nil
}
