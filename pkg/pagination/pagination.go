package pagination

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ehr/clinic/internal/platform/apperr"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100

	// MaxPage keeps Offset well inside int range for any accepted limit.
	MaxPage = 100000
)

// SortSpec lists the sortable columns of a resource. Only names in Allowed
// ever reach SQL, so callers may interpolate Params.Sort directly.
type SortSpec struct {
	Allowed []string
	Default string
	// Ascending flips the default order to asc when the request names none.
	Ascending bool
}

func (s SortSpec) allows(field string) bool {
	for _, a := range s.Allowed {
		if a == field {
			return true
		}
	}
	return false
}

// Params holds pagination and ordering extracted from a request.
type Params struct {
	Page  int
	Limit int
	Sort  string
	Desc  bool
}

// Offset is the number of rows skipped before the current page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Direction returns the SQL keyword for the sort order.
func (p Params) Direction() string {
	if p.Desc {
		return "DESC"
	}
	return "ASC"
}

// OrderBy returns "<sort> <direction>" for use after ORDER BY.
func (p Params) OrderBy() string {
	return p.Sort + " " + p.Direction()
}

// FromContext extracts pagination parameters from the echo context.
func FromContext(c echo.Context, spec SortSpec) (Params, error) {
	return Parse(c.QueryParams(), spec)
}

// Parse validates page, limit, sort and order. Malformed or out-of-range
// values and sort fields outside the allow-list are InvalidState errors.
func Parse(q url.Values, spec SortSpec) (Params, error) {
	p := Params{Page: 1, Limit: DefaultLimit, Sort: spec.Default, Desc: !spec.Ascending}

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > MaxPage {
			return Params{}, apperr.InvalidState("page must be between 1 and %d", MaxPage)
		}
		p.Page = n
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > MaxLimit {
			return Params{}, apperr.InvalidState("limit must be between 1 and %d", MaxLimit)
		}
		p.Limit = n
	}

	if v := q.Get("sort"); v != "" {
		if !spec.allows(v) {
			return Params{}, apperr.InvalidState("sort must be one of: %s", strings.Join(spec.Allowed, ", "))
		}
		p.Sort = v
	}

	switch strings.ToLower(q.Get("order")) {
	case "":
	case "desc":
		p.Desc = true
	case "asc":
		p.Desc = false
	default:
		return Params{}, apperr.InvalidState("order must be asc or desc")
	}

	return p, nil
}

// Meta describes the returned page.
type Meta struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// Response wraps a paginated API response.
type Response[T any] struct {
	Data       []T  `json:"data"`
	Pagination Meta `json:"pagination"`
}

func NewResponse[T any](data []T, total int, p Params) *Response[T] {
	if data == nil {
		data = []T{}
	}
	pages := 0
	if p.Limit > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return &Response[T]{
		Data: data,
		Pagination: Meta{
			Page:  p.Page,
			Limit: p.Limit,
			Total: total,
			Pages: pages,
		},
	}
}
