package order

import (
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/clinic/internal/platform/apperr"
	"github.com/ehr/clinic/internal/platform/auth"
	"github.com/ehr/clinic/pkg/pagination"
)

var sortSpec = pagination.SortSpec{
	Allowed: []string{"issue_date", "created_at", "status"},
	Default: "issue_date",
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	create := api.Group("/prescriptions", auth.RequireOperation(auth.OpOrderCreate))
	create.POST("", h.Create)

	read := api.Group("/prescriptions", auth.RequireOperation(auth.OpOrderRead))
	read.GET("", h.List)
	read.GET("/:id", h.Get)

	update := api.Group("/prescriptions", auth.RequireOperation(auth.OpOrderUpdate))
	update.PUT("/:id", h.Update)

	records := api.Group("/patients", auth.RequireOperation(auth.OpPatientRecords))
	records.GET("/:id/records", h.PatientRecords)
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	actor, _ := auth.ActorFromContext(c.Request().Context())
	o, err := h.svc.Create(c.Request().Context(), actor, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	o, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var p Patch
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	actor, _ := auth.ActorFromContext(c.Request().Context())
	o, err := h.svc.UpdateOrder(c.Request().Context(), actor, id, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) List(c echo.Context) error {
	p, err := pagination.FromContext(c, sortSpec)
	if err != nil {
		return err
	}
	f, err := parseFilter(c.QueryParams())
	if err != nil {
		return err
	}
	items, total, err := h.svc.List(c.Request().Context(), f, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p))
}

func (h *Handler) PatientRecords(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	r, err := h.svc.PatientRecords(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func parseFilter(q url.Values) (ListFilter, error) {
	f := ListFilter{Search: q.Get("search")}
	if v := q.Get("status"); v != "" {
		st, err := ParseStatus(v)
		if err != nil {
			return f, err
		}
		f.Status = st
	}
	for name, dst := range map[string]**uuid.UUID{"patient_id": &f.PatientID, "clinician_id": &f.ClinicianID} {
		if v := q.Get(name); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				return f, apperr.InvalidState("%s must be a UUID", name)
			}
			*dst = &id
		}
	}
	if v := q.Get("date_from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return f, apperr.InvalidState("date_from must be YYYY-MM-DD")
		}
		f.DateFrom = &t
	}
	if v := q.Get("date_to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return f, apperr.InvalidState("date_to must be YYYY-MM-DD")
		}
		t = t.Add(24*time.Hour - time.Nanosecond)
		f.DateTo = &t
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateTo.Before(*f.DateFrom) {
		return f, apperr.InvalidState("date_to is before date_from")
	}
	return f, nil
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.InvalidState("invalid id")
	}
	return id, nil
}
