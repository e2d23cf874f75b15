package scheduling

import (
	"errors"
	"net/http"
	"time"

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
	g := api.Group("", auth.RequireRole(auth.RolePatient, auth.RolePsychologist))
	g.GET("/psychologists/:psychologist_id/availability", h.GetAvailability)
	g.POST("/psychologists/:psychologist_id/bookings", h.Book)
	g.DELETE("/slots/:id", h.Cancel)
	g.GET("/patients/:patient_id/appointments", h.ListAppointments)

	p := api.Group("", auth.RequireRole(auth.RolePsychologist))
	p.POST("/psychologists/:psychologist_id/blocks", h.Block)
	p.GET("/psychologists/:psychologist_id/slots", h.ListSlots)
}

// Times cross the HTTP boundary as epoch milliseconds.

type slotResponse struct {
	ID             uuid.UUID  `json:"id"`
	PsychologistID uuid.UUID  `json:"psychologist_id"`
	PatientID      *uuid.UUID `json:"patient_id,omitempty"`
	Status         string     `json:"status"`
	StartTime      int64      `json:"start_time"`
	EndTime        int64      `json:"end_time"`
	CreatedAt      int64      `json:"created_at"`
}

func toSlotResponse(sl *Slot) slotResponse {
	return slotResponse{
		ID:             sl.ID,
		PsychologistID: sl.PsychologistID,
		PatientID:      sl.PatientID,
		Status:         sl.Status,
		StartTime:      sl.StartTime.UnixMilli(),
		EndTime:        sl.EndTime.UnixMilli(),
		CreatedAt:      sl.CreatedAt.UnixMilli(),
	}
}

func toSlotResponses(items []*Slot) []slotResponse {
	out := make([]slotResponse, len(items))
	for i, sl := range items {
		out[i] = toSlotResponse(sl)
	}
	return out
}

type dayResponse struct {
	Date   string  `json:"date"`
	Starts []int64 `json:"starts"`
}

type availabilityResponse struct {
	PsychologistID uuid.UUID     `json:"psychologist_id"`
	TimeZone       string        `json:"time_zone"`
	Days           []dayResponse `json:"days"`
}

type bookRequest struct {
	PatientID string `json:"patient_id"`
	StartTime int64  `json:"start_time"`
}

type blockRequest struct {
	StartTime int64 `json:"start_time"`
}

type blockResponse struct {
	Slot            slotResponse `json:"slot"`
	AlreadyOccupied bool         `json:"already_occupied"`
}

func parseUUIDParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func slotError(err error) error {
	switch {
	case errors.Is(err, ErrSlotUnavailable):
		return echo.NewHTTPError(http.StatusConflict, ErrSlotUnavailable.Error())
	case errors.Is(err, ErrSlotNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidStart):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) GetAvailability(c echo.Context) error {
	psychologistID, err := parseUUIDParam(c, "psychologist_id")
	if err != nil {
		return err
	}
	days, err := h.svc.AvailabilityByDay(c.Request().Context(), psychologistID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := availabilityResponse{
		PsychologistID: psychologistID,
		TimeZone:       h.svc.Location().String(),
		Days:           make([]dayResponse, len(days)),
	}
	for i, d := range days {
		starts := make([]int64, len(d.Starts))
		for j, s := range d.Starts {
			starts[j] = s.UnixMilli()
		}
		resp.Days[i] = dayResponse{Date: d.Date, Starts: starts}
	}
	return c.JSON(http.StatusOK, resp)
}

// Book books a start for a patient. Without patient_id in the body the
// caller's own identity is used.
func (h *Handler) Book(c echo.Context) error {
	psychologistID, err := parseUUIDParam(c, "psychologist_id")
	if err != nil {
		return err
	}
	var req bookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	patientID := auth.UserUUIDFromContext(c.Request().Context())
	if req.PatientID != "" {
		if patientID, err = uuid.Parse(req.PatientID); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
	}
	if patientID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	if req.StartTime == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "start_time is required")
	}

	sl, err := h.svc.Book(c.Request().Context(), patientID, psychologistID, fromMillis(req.StartTime))
	if err != nil {
		return slotError(err)
	}
	return c.JSON(http.StatusCreated, toSlotResponse(sl))
}

func (h *Handler) Block(c echo.Context) error {
	psychologistID, err := parseUUIDParam(c, "psychologist_id")
	if err != nil {
		return err
	}
	var req blockRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.StartTime == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "start_time is required")
	}

	sl, occupied, err := h.svc.Block(c.Request().Context(), psychologistID, fromMillis(req.StartTime))
	if err != nil {
		return slotError(err)
	}
	return c.JSON(http.StatusCreated, blockResponse{Slot: toSlotResponse(sl), AlreadyOccupied: occupied})
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.Cancel(c.Request().Context(), id); err != nil {
		return slotError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListSlots(c echo.Context) error {
	psychologistID, err := parseUUIDParam(c, "psychologist_id")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListSlotsByPsychologist(c.Request().Context(), psychologistID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(toSlotResponses(items), total, pg.Limit, pg.Offset))
}

func (h *Handler) ListAppointments(c echo.Context) error {
	patientID, err := parseUUIDParam(c, "patient_id")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAppointmentsByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(toSlotResponses(items), total, pg.Limit, pg.Offset))
}
