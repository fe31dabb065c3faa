// Package testfixtures holds in-memory collaborators and deterministic
// builders shared by the service and handler tests.
package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/iliyamo/table-reservation/internal/model"
)

var (
	tableCounter       uint64
	reservationCounter uint64
)

// referenceTime is a Sunday evening so that reservation windows of a few
// hours stay on the same calendar day.
var referenceTime = time.Date(2026, time.May, 10, 12, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// TableOption configures a generated table.
type TableOption func(*model.Table)

// NewTable returns a FREE four-seat table of venueID with a unique id and code.
func NewTable(venueID string, opts ...TableOption) model.Table {
	idx := atomic.AddUint64(&tableCounter, 1)
	t := model.Table{
		ID:        fmt.Sprintf("table-%03d", idx),
		VenueID:   venueID,
		Code:      fmt.Sprintf("T%d", idx),
		Capacity:  4,
		Sector:    "main",
		Status:    model.TableFree,
		CreatedAt: referenceTime.Add(-24 * time.Hour),
		UpdatedAt: referenceTime.Add(-24 * time.Hour),
	}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

// WithCode overrides the table code.
func WithCode(code string) TableOption {
	return func(t *model.Table) { t.Code = code }
}

// WithCapacity overrides the seat count.
func WithCapacity(n int) TableOption {
	return func(t *model.Table) { t.Capacity = n }
}

// WithStatus overrides the table status.
func WithStatus(s model.TableStatus) TableOption {
	return func(t *model.Table) { t.Status = s }
}

// ReservationOption configures a generated reservation.
type ReservationOption func(*model.Reservation)

// NewReservation returns a PENDING reservation for a party of two on the
// given tables.
func NewReservation(venueID string, start, end time.Time, tableIDs []string, opts ...ReservationOption) model.Reservation {
	idx := atomic.AddUint64(&reservationCounter, 1)
	r := model.Reservation{
		ID:           fmt.Sprintf("res-%03d", idx),
		VenueID:      venueID,
		TableIDs:     append([]string(nil), tableIDs...),
		CustomerName: fmt.Sprintf("Guest %03d", idx),
		Contact:      "+1 555 0100",
		Document:     fmt.Sprintf("DOC-%03d", idx),
		StartsAt:     start,
		EndsAt:       end,
		PartySize:    2,
		Status:       model.ReservationPending,
		CreatedBy:    "user-fixture",
		CreatedAt:    referenceTime,
		UpdatedAt:    referenceTime,
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// WithReservationStatus overrides the lifecycle status.
func WithReservationStatus(s model.ReservationStatus) ReservationOption {
	return func(r *model.Reservation) { r.Status = s }
}

// WithPartySize overrides the party size.
func WithPartySize(n int) ReservationOption {
	return func(r *model.Reservation) { r.PartySize = n }
}
