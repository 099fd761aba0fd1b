package audit

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/clinic/internal/platform/apperr"
	"github.com/ehr/clinic/internal/platform/auth"
	"github.com/ehr/clinic/pkg/pagination"
)

var sortSpec = pagination.SortSpec{Allowed: []string{"created_at"}, Default: "created_at"}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/audit", auth.RequireOperation(auth.OpAuditRead))
	g.GET("/logs", h.ListLogs)
}

func (h *Handler) ListLogs(c echo.Context) error {
	p, err := pagination.FromContext(c, sortSpec)
	if err != nil {
		return err
	}
	f, err := parseFilter(c.QueryParams())
	if err != nil {
		return err
	}
	records, total, err := h.svc.ListLogs(c.Request().Context(), f, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(records, total, p))
}

func parseFilter(q url.Values) (Filter, error) {
	var f Filter
	if v := q.Get("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, apperr.InvalidState("user_id must be a UUID")
		}
		f.ActorID = &id
	}
	if v := q.Get("action"); v != "" {
		a := Action(strings.ToUpper(v))
		if !a.Valid() {
			return f, apperr.InvalidState("action must be one of CREATE, UPDATE, DELETE")
		}
		f.Action = a
	}
	f.ObjectType = q.Get("object_type")

	if v := q.Get("start_date"); v != "" {
		t, _, err := parseTime(v)
		if err != nil {
			return f, apperr.InvalidState("start_date must be a date or RFC 3339 timestamp")
		}
		f.Start = &t
	}
	if v := q.Get("end_date"); v != "" {
		t, dateOnly, err := parseTime(v)
		if err != nil {
			return f, apperr.InvalidState("end_date must be a date or RFC 3339 timestamp")
		}
		if dateOnly {
			// A bare date covers the whole day.
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		f.End = &t
	}
	if f.Start != nil && f.End != nil && f.End.Before(*f.Start) {
		return f, apperr.InvalidState("end_date is before start_date")
	}
	return f, nil
}

func parseTime(v string) (time.Time, bool, error) {
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	return t, false, err
}
