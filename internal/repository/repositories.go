package repository

import (
	"context"
	"time"

	"github.com/iliyamo/table-reservation/internal/model"
)

// TableRepository stores the tables of every venue.
type TableRepository interface {
	FindByID(ctx context.Context, id string) (model.Table, error)
	// FindByVenue returns the venue's tables ordered by code.
	FindByVenue(ctx context.Context, venueID string) ([]model.Table, error)
	// FindByStatus returns tables in the given status across all venues.
	FindByStatus(ctx context.Context, status model.TableStatus) ([]model.Table, error)
	// LockByIDs loads the tables and holds a row lock on each of them until
	// the surrounding transaction ends. Rows are locked in id order so that
	// two transactions claiming overlapping sets cannot deadlock on ordering.
	// Missing ids are simply absent from the result.
	LockByIDs(ctx context.Context, ids []string) ([]model.Table, error)
	ExistsByVenueAndCode(ctx context.Context, venueID, code string) (bool, error)
	// Save inserts the table or updates every mutable column.
	Save(ctx context.Context, t model.Table) error
	UpdateStatus(ctx context.Context, id string, status model.TableStatus, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// ReservationRepository stores reservations and their table assignments.
type ReservationRepository interface {
	FindByID(ctx context.Context, id string) (model.Reservation, error)
	// FindOverlappingForTable returns PENDING and IN_PROGRESS reservations on
	// the table whose nominal interval intersects [windowStart, windowEnd).
	// A non-empty excludeID leaves that reservation out.
	FindOverlappingForTable(ctx context.Context, tableID string, windowStart, windowEnd time.Time, excludeID string) ([]model.Reservation, error)
	// FindUpcomingForTable returns PENDING reservations on the table that
	// start strictly after from and strictly before to, earliest first.
	FindUpcomingForTable(ctx context.Context, tableID string, from, to time.Time) ([]model.Reservation, error)
	// FindByVenueAndDateRange returns the venue's reservations whose start
	// lies in [from, to), ordered by start.
	FindByVenueAndDateRange(ctx context.Context, venueID string, from, to time.Time) ([]model.Reservation, error)
	// FindByVenueOverlapping returns every reservation of the venue whose
	// interval intersects [from, to), ordered by start.
	FindByVenueOverlapping(ctx context.Context, venueID string, from, to time.Time) ([]model.Reservation, error)
	// FindActiveByVenueEndingAfter returns PENDING and IN_PROGRESS
	// reservations with end >= at, ordered by start.
	FindActiveByVenueEndingAfter(ctx context.Context, venueID string, at time.Time) ([]model.Reservation, error)
	// FindPastByVenue returns reservations that ended before at or reached a
	// terminal status, newest first.
	FindPastByVenue(ctx context.Context, venueID string, at time.Time, limit int) ([]model.Reservation, error)
	// CountForTable reports how many reservations ever referenced the table.
	CountForTable(ctx context.Context, tableID string) (int, error)
	// HasActiveEndingAfter reports whether the table has a PENDING or
	// IN_PROGRESS reservation ending after at.
	HasActiveEndingAfter(ctx context.Context, tableID string, at time.Time) (bool, error)
	// Save inserts the reservation or updates it, replacing its table set.
	Save(ctx context.Context, r model.Reservation) error
	Delete(ctx context.Context, id string) error
}

// Repositories groups the repositories bound to one unit of work.
type Repositories struct {
	Tables       TableRepository
	Reservations ReservationRepository
}

// Store hands out repositories, either bound to the connection pool or to
// a single transaction.
type Store interface {
	// Repositories returns repositories running outside any transaction.
	Repositories() Repositories
	// InTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(Repositories) error) error
}

// UserRepository resolves staff accounts.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (model.User, error)
}

// MembershipRepository resolves venue memberships.
type MembershipRepository interface {
	FindByVenueAndEmail(ctx context.Context, venueID, email string) (model.Member, error)
}
