package assessment

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/astrozeta/psicoapp/internal/platform/auth"
	"github.com/astrozeta/psicoapp/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// scoring and submission, any signed-in role
	g := api.Group("", auth.RequireRole(auth.RolePatient, auth.RolePsychologist))
	g.POST("/assessments/mental-health/score", h.ScoreMentalHealth)
	g.POST("/assessments/bdi/score", h.ScoreBDI)
	g.GET("/assessments/instruments/:code", h.GetInstrument)
	g.POST("/patients/:patient_id/assessments/:instrument", h.Submit)

	// clinical review
	review := api.Group("", auth.RequireRole(auth.RolePsychologist))
	review.GET("/patients/:patient_id/assessments", h.ListByPatient)
	review.GET("/assessments/:id", h.GetRecord)
}

type scoreRequest struct {
	Responses []Response `json:"responses"`
}

func (h *Handler) ScoreMentalHealth(c echo.Context) error {
	var req scoreRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, ScoreMentalHealth(req.Responses))
}

func (h *Handler) ScoreBDI(c echo.Context) error {
	var req scoreRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, ScoreBDI(req.Responses))
}

func (h *Handler) GetInstrument(c echo.Context) error {
	in, err := LookupInstrument(c.Param("code"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, in)
}

func (h *Handler) Submit(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	var req scoreRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec, err := h.svc.Submit(c.Request().Context(), patientID, c.Param("instrument"), req.Responses)
	if err != nil {
		if errors.Is(err, ErrUnknownInstrument) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) GetRecord(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rec, err := h.svc.GetRecord(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "assessment record not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListRecordsByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
