package scheduling

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/astrozeta/psicoapp/internal/platform/auth"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()
	return h, e
}

func jsonRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func httpCode(err error) int {
	if he, ok := err.(*echo.HTTPError); ok {
		return he.Code
	}
	return 0
}

func TestHandler_GetAvailability(t *testing.T) {
	h, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("psychologist_id")
	c.SetParamValues(uuid.New().String())

	if err := h.GetAvailability(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp availabilityResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Days) != 10 {
		t.Fatalf("expected 10 days, got %d", len(resp.Days))
	}
	if resp.Days[0].Starts[0] != at(16, 9).UnixMilli() {
		t.Errorf("expected first start in epoch ms, got %d", resp.Days[0].Starts[0])
	}
	if resp.TimeZone != "UTC" {
		t.Errorf("expected UTC, got %s", resp.TimeZone)
	}
}

func TestHandler_GetAvailability_InvalidID(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("psychologist_id")
	c.SetParamValues("not-a-uuid")

	if code := httpCode(h.GetAvailability(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_Book(t *testing.T) {
	h, e := newTestHandler()
	patient := uuid.New()
	body := fmt.Sprintf(`{"patient_id":%q,"start_time":%d}`, patient, at(16, 10).UnixMilli())
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, body), rec)
	c.SetParamNames("psychologist_id")
	c.SetParamValues(uuid.New().String())

	if err := h.Book(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var resp slotResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != StatusBooked || resp.EndTime-resp.StartTime != SlotDuration.Milliseconds() {
		t.Errorf("unexpected slot %+v", resp)
	}
}

func TestHandler_Book_PatientFromToken(t *testing.T) {
	h, e := newTestHandler()
	patient := uuid.New()
	req := jsonRequest(http.MethodPost, fmt.Sprintf(`{"start_time":%d}`, at(16, 10).UnixMilli()))
	req = req.WithContext(context.WithValue(req.Context(), auth.UserIDKey, patient.String()))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("psychologist_id")
	c.SetParamValues(uuid.New().String())

	if err := h.Book(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), patient.String()) {
		t.Error("expected token subject to be used as patient")
	}
}

func TestHandler_Book_MissingFields(t *testing.T) {
	h, e := newTestHandler()
	for _, body := range []string{
		`{"start_time":1715850000000}`,
		fmt.Sprintf(`{"patient_id":%q}`, uuid.New()),
		`{"patient_id":"nope","start_time":1715850000000}`,
	} {
		c := e.NewContext(jsonRequest(http.MethodPost, body), httptest.NewRecorder())
		c.SetParamNames("psychologist_id")
		c.SetParamValues(uuid.New().String())

		if code := httpCode(h.Book(c)); code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, code)
		}
	}
}

func TestHandler_Book_Conflict(t *testing.T) {
	h, e := newTestHandler()
	psych := uuid.New()
	h.svc.Book(context.Background(), uuid.New(), psych, at(16, 10))

	body := fmt.Sprintf(`{"patient_id":%q,"start_time":%d}`, uuid.New(), at(16, 10).UnixMilli())
	c := e.NewContext(jsonRequest(http.MethodPost, body), httptest.NewRecorder())
	c.SetParamNames("psychologist_id")
	c.SetParamValues(psych.String())

	err := h.Book(c)
	if code := httpCode(err); code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", code)
	}
	if msg := err.(*echo.HTTPError).Message; msg != ErrSlotUnavailable.Error() {
		t.Errorf("unexpected message %v", msg)
	}
}

func TestHandler_Block(t *testing.T) {
	h, e := newTestHandler()
	psych := uuid.New()
	h.svc.Book(context.Background(), uuid.New(), psych, at(16, 10))

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, fmt.Sprintf(`{"start_time":%d}`, at(16, 11).UnixMilli())), rec)
	c.SetParamNames("psychologist_id")
	c.SetParamValues(psych.String())

	if err := h.Block(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp blockResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AlreadyOccupied {
		t.Error("expected 11:00 to be free next to a 10:00 booking")
	}
	if resp.Slot.Status != StatusBlocked {
		t.Errorf("expected blocked, got %s", resp.Slot.Status)
	}
}

func TestHandler_Cancel(t *testing.T) {
	h, e := newTestHandler()
	sl, _ := h.svc.Book(context.Background(), uuid.New(), uuid.New(), at(16, 10))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), rec)
		c.SetParamNames("id")
		c.SetParamValues(sl.ID.String())

		if err := h.Cancel(c); err != nil {
			t.Fatalf("cancel %d: unexpected error: %v", i, err)
		}
		if rec.Code != http.StatusNoContent {
			t.Errorf("cancel %d: expected 204, got %d", i, rec.Code)
		}
	}
}

func TestHandler_ListSlots(t *testing.T) {
	h, e := newTestHandler()
	psych := uuid.New()
	h.svc.Book(context.Background(), uuid.New(), psych, at(16, 10))
	h.svc.Block(context.Background(), psych, at(16, 12))

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("psychologist_id")
	c.SetParamValues(psych.String())

	if err := h.ListSlots(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"total":2`) {
		t.Errorf("expected total 2 in %s", rec.Body.String())
	}
}

func TestHandler_ListAppointments(t *testing.T) {
	h, e := newTestHandler()
	patient := uuid.New()
	h.svc.Book(context.Background(), patient, uuid.New(), at(16, 10))

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("patient_id")
	c.SetParamValues(patient.String())

	if err := h.ListAppointments(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"total":1`) {
		t.Errorf("expected total 1 in %s", rec.Body.String())
	}
}

func TestHandler_Book_OffHourStart(t *testing.T) {
	h, e := newTestHandler()
	body := fmt.Sprintf(`{"patient_id":%q,"start_time":%d}`, uuid.New(), at(16, 10).Add(30*time.Minute).UnixMilli())
	c := e.NewContext(jsonRequest(http.MethodPost, body), httptest.NewRecorder())
	c.SetParamNames("psychologist_id")
	c.SetParamValues(uuid.New().String())

	if code := httpCode(h.Book(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}
