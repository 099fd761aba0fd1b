package patient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ehr/clinic/internal/platform/apperr"
)

func newTestHandler() (*Handler, *Service, *echo.Echo) {
	svc, _, _ := newTestService()
	return NewHandler(svc), svc, echo.New()
}

func TestHandler_Create(t *testing.T) {
	h, _, e := newTestHandler()

	body := `{"first_name":"Asha","last_name":"Rao","gender":"female"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var p Patient
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.FirstName != "Asha" || p.Gender != GenderFemale {
		t.Errorf("unexpected patient %+v", p)
	}
}

func TestHandler_Create_BadRequest(t *testing.T) {
	h, _, e := newTestHandler()

	body := `{"last_name":"Rao"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	if err := h.Create(c); !apperr.Is(err, apperr.KindInvalidState) {
		t.Errorf("expected invalid state, got %v", err)
	}
}

func TestHandler_GetAndDelete(t *testing.T) {
	h, svc, e := newTestHandler()
	p := createPatient(t, svc, "Asha", "Rao")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())
	if err := h.Get(c); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())
	if err := h.Delete(c); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	c = e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())
	if err := h.Get(c); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found after delete, got %v", err)
	}
}

func TestHandler_List(t *testing.T) {
	h, svc, e := newTestHandler()
	createPatient(t, svc, "Asha", "Rao")
	createPatient(t, svc, "Ravi", "Kumar")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients?search=rao", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.List(c); err != nil {
		t.Fatalf("List: %v", err)
	}
	var body struct {
		Data []Patient `json:"data"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if len(body.Data) != 1 {
		t.Errorf("expected 1 match, got %d", len(body.Data))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/patients?sort=email", nil)
	c = e.NewContext(req, httptest.NewRecorder())
	if err := h.List(c); !apperr.Is(err, apperr.KindInvalidState) {
		t.Errorf("expected invalid state for unknown sort, got %v", err)
	}
}
