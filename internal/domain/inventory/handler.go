package inventory

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/clinic/internal/platform/apperr"
	"github.com/ehr/clinic/internal/platform/auth"
	"github.com/ehr/clinic/pkg/pagination"
)

var sortSpec = pagination.SortSpec{
	Allowed: []string{"name", "sku", "quantity", "expiry_date", "created_at"},
	Default: "created_at",
}

type Handler struct {
	svc    *Service
	ledger *Ledger
}

func NewHandler(svc *Service, ledger *Ledger) *Handler {
	return &Handler{svc: svc, ledger: ledger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("/inventory", auth.RequireOperation(auth.OpInventoryRead))
	read.GET("", h.List)
	read.GET("/:id", h.Get)
	read.GET("/:id/availability", h.Availability)

	write := api.Group("/inventory", auth.RequireOperation(auth.OpInventoryWrite))
	write.POST("", h.Create)
	write.PUT("/:id", h.Update)

	del := api.Group("/inventory", auth.RequireOperation(auth.OpInventoryDelete))
	del.DELETE("/:id", h.Delete)
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	item, err := h.svc.Create(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, item)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	item, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) Availability(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.ledger.GetAvailability(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	item, err := h.svc.Update(c.Request().Context(), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Inventory item deleted successfully"})
}

func (h *Handler) List(c echo.Context) error {
	p, err := pagination.FromContext(c, sortSpec)
	if err != nil {
		return err
	}
	q := ListQuery{Search: c.QueryParam("search")}
	if q.LowStock, err = boolParam(c, "low_stock"); err != nil {
		return err
	}
	if q.ExpiringSoon, err = boolParam(c, "expiring_soon"); err != nil {
		return err
	}
	items, total, err := h.svc.List(c.Request().Context(), q, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p))
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.InvalidState("invalid id")
	}
	return id, nil
}

func boolParam(c echo.Context, name string) (bool, error) {
	v := c.QueryParam(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, apperr.InvalidState("%s must be true or false", name)
	}
	return b, nil
}
