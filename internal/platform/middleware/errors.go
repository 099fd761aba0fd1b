package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/clinic/internal/platform/apperr"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Status  string      `json:"status"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// StockDetails describes which line could not be covered.
type StockDetails struct {
	InventoryID string `json:"inventory_id"`
	SKU         string `json:"sku,omitempty"`
	Name        string `json:"name,omitempty"`
	Available   int    `json:"available"`
	Required    int    `json:"required"`
	Shortfall   int    `json:"shortfall"`
}

// RetryAfterSeconds is advertised on 503 responses for retryable failures.
const RetryAfterSeconds = "1"

// StatusForKind maps an error kind onto its HTTP status.
func StatusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidState:
		return http.StatusBadRequest
	case apperr.KindInsufficientStock, apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorHandler renders classified errors with their message and hides
// everything else behind a generic 500 after logging the full chain.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := renderError(err)
		if status >= 500 {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}
		if status == http.StatusServiceUnavailable {
			c.Response().Header().Set("Retry-After", RetryAfterSeconds)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}

func renderError(err error) (int, ErrorBody) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok && m != "" {
			msg = m
		}
		return he.Code, ErrorBody{
			Status:  statusWord(he.Code),
			Code:    codeForStatus(he.Code),
			Message: msg,
		}
	}

	kind := apperr.KindOf(err)
	status := StatusForKind(kind)
	body := ErrorBody{
		Status:  statusWord(status),
		Code:    string(kind),
		Message: apperr.PublicMessage(err),
	}

	var se *apperr.StockError
	if errors.As(err, &se) {
		body.Details = StockDetails{
			InventoryID: se.InventoryID.String(),
			SKU:         se.SKU,
			Name:        se.Name,
			Available:   se.Available,
			Required:    se.Required,
			Shortfall:   se.Shortfall(),
		}
	}
	return status, body
}

func statusWord(status int) string {
	if status >= 500 {
		return "error"
	}
	return "fail"
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return string(apperr.KindNotFound)
	case http.StatusForbidden:
		return string(apperr.KindForbidden)
	case http.StatusConflict:
		return string(apperr.KindConflict)
	case http.StatusBadRequest:
		return string(apperr.KindInvalidState)
	case http.StatusServiceUnavailable:
		return string(apperr.KindUnavailable)
	case http.StatusInternalServerError:
		return string(apperr.KindInternal)
	}
	return strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "_")
}
