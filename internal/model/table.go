package model

import (
	"errors"
	"fmt"
	"time"
)

// TableStatus is the live occupancy state of a table.
type TableStatus string

const (
	TableFree     TableStatus = "FREE"
	TableReserved TableStatus = "RESERVED"
	TableOccupied TableStatus = "OCCUPIED"
	// TableInactive marks a soft-deleted table. Inactive tables take no part
	// in allocation or reconciliation.
	TableInactive TableStatus = "INACTIVE"
)

// Valid reports whether s is one of the known statuses.
func (s TableStatus) Valid() bool {
	switch s {
	case TableFree, TableReserved, TableOccupied, TableInactive:
		return true
	}
	return false
}

// Table represents a physical table of a venue. It corresponds to a row in
// the `venue_tables` table.
//
// Fields:
//
//	ID        – opaque identifier (uuid).
//	VenueID   – venue owning the table.
//	Code      – short label, unique per venue (e.g. "T4").
//	Capacity  – number of seats, always positive.
//	Sector    – free text area label ("terrace", "bar").
//	Status    – current occupancy status.
type Table struct {
	ID        string      // venue_tables.id
	VenueID   string      // venue_tables.venue_id
	Code      string      // venue_tables.code
	Capacity  int         // venue_tables.capacity
	Sector    string      // venue_tables.sector
	Status    TableStatus // venue_tables.status
	CreatedAt time.Time   // venue_tables.created_at
	UpdatedAt time.Time   // venue_tables.updated_at
}

// ErrSchedulerOnly is returned for a manual FREE→RESERVED request. Only the
// reconciliation scheduler moves a table into RESERVED.
var ErrSchedulerOnly = errors.New("reserved state is scheduler-assigned")

// TransitionError reports a manual status change that is not in the
// transition table.
type TransitionError struct {
	From TableStatus
	To   TableStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid table status transition from %s to %s", e.From, e.To)
}

type transitionKey struct{ from, to TableStatus }

// manualTransitions lists the staff-driven status changes. A nil value
// allows the transition; a non-nil value is the reason it is refused.
var manualTransitions = map[transitionKey]error{
	{TableFree, TableOccupied}:     nil, // walk-in
	{TableOccupied, TableFree}:     nil, // checkout
	{TableReserved, TableOccupied}: nil, // guest arrives
	{TableReserved, TableFree}:     nil, // reservation cancelled or moved away
	{TableFree, TableReserved}:     ErrSchedulerOnly,
}

// CheckManualTransition validates a staff-requested status change. It returns
// ErrSchedulerOnly for FREE→RESERVED and a *TransitionError for every pair
// missing from the transition table, self transitions included.
func CheckManualTransition(from, to TableStatus) error {
	reason, ok := manualTransitions[transitionKey{from, to}]
	if !ok {
		return &TransitionError{From: from, To: to}
	}
	return reason
}
