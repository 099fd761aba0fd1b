package inventory

import (
	"time"

	"github.com/google/uuid"
)

// Item is a stocked medication or supply. Quantity never drops below zero.
type Item struct {
	ID          uuid.UUID  `json:"id"`
	SKU         string     `json:"sku"`
	Name        string     `json:"name"`
	Description *string    `json:"description,omitempty"`
	BatchNumber *string    `json:"batch_number,omitempty"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`
	Unit        *string    `json:"unit,omitempty"`
	Quantity    int        `json:"quantity"`
	Location    *string    `json:"location,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Reservation is the outcome of one stock decrement.
type Reservation struct {
	ItemID uuid.UUID `json:"item_id"`
	SKU    string    `json:"sku"`
	Name   string    `json:"name"`
	Prior  int       `json:"prior"`
	New    int       `json:"new"`
}

// Availability is a point-in-time stock reading.
type Availability struct {
	ItemID     uuid.UUID  `json:"item_id"`
	SKU        string     `json:"sku"`
	Name       string     `json:"name"`
	Quantity   int        `json:"quantity"`
	ExpiryDate *time.Time `json:"expiry_date,omitempty"`
	LowStock   bool       `json:"low_stock"`
	Expired    bool       `json:"expired"`
}

// Filter narrows an inventory listing. Zero values disable a criterion.
type Filter struct {
	Search             string
	LowStockBelow      int
	ExpiringWithinDays int
}

// CreateRequest is the payload for a new item. ExpiryDate accepts
// YYYY-MM-DD or an RFC 3339 timestamp.
type CreateRequest struct {
	SKU         string  `json:"sku"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	BatchNumber *string `json:"batch_number"`
	ExpiryDate  *string `json:"expiry_date"`
	Unit        *string `json:"unit"`
	Quantity    int     `json:"quantity"`
	Location    *string `json:"location"`
}

// UpdateRequest is a partial update; nil fields are left unchanged.
type UpdateRequest struct {
	SKU         *string `json:"sku"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
	BatchNumber *string `json:"batch_number"`
	ExpiryDate  *string `json:"expiry_date"`
	Unit        *string `json:"unit"`
	Quantity    *int    `json:"quantity"`
	Location    *string `json:"location"`
}

// Changes is a validated partial update. Only non-nil fields are written.
type Changes struct {
	SKU         *string
	Name        *string
	Description *string
	BatchNumber *string
	ExpiryDate  *time.Time
	Unit        *string
	Quantity    *int
	Location    *string
}

func (r UpdateRequest) empty() bool {
	return r.SKU == nil && r.Name == nil && r.Description == nil && r.BatchNumber == nil &&
		r.ExpiryDate == nil && r.Unit == nil && r.Quantity == nil && r.Location == nil
}

// ParseDate accepts YYYY-MM-DD or RFC 3339 and returns the UTC calendar date.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}
