package model

import "time"

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	ReservationPending    ReservationStatus = "PENDING"
	ReservationInProgress ReservationStatus = "IN_PROGRESS"
	ReservationCompleted  ReservationStatus = "COMPLETED"
	ReservationCancelled  ReservationStatus = "CANCELLED"
	ReservationNoShow     ReservationStatus = "NO_SHOW"
)

// Active reports whether reservations in this status block their tables.
// Terminal reservations never conflict with new bookings.
func (s ReservationStatus) Active() bool {
	return s == ReservationPending || s == ReservationInProgress
}

// Terminal reports whether no further transition is possible.
func (s ReservationStatus) Terminal() bool {
	return s == ReservationCompleted || s == ReservationCancelled || s == ReservationNoShow
}

// ActiveReservationStatuses lists the statuses considered by the overlap check.
var ActiveReservationStatuses = []ReservationStatus{ReservationPending, ReservationInProgress}

// reservationTransitions is the lifecycle graph. Time bounds on each edge
// are enforced by the allocator.
var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationPending:    {ReservationInProgress, ReservationCancelled, ReservationNoShow},
	ReservationInProgress: {ReservationCompleted, ReservationCancelled},
}

// CanTransitionTo reports whether the lifecycle graph has an edge from s to next.
func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	for _, allowed := range reservationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Reservation books one or more tables of a venue for a time interval.
// Table membership is stored in `reservation_tables`; the reservation row
// itself lives in `reservations`.
//
// Fields:
//
//	ID           – opaque identifier (uuid).
//	VenueID      – venue the reservation belongs to.
//	TableIDs     – assigned tables, non-empty and unique.
//	CustomerName – guest name.
//	Contact      – phone or e-mail of the guest.
//	Document     – stable customer identity key.
//	StartsAt     – nominal start, UTC.
//	EndsAt       – nominal end, UTC.
//	PartySize    – number of guests.
//	Status       – lifecycle state.
//	Forced       – capacity check was bypassed.
//	CreatedBy    – user id of the staff member who booked it.
//	Notes        – free text.
type Reservation struct {
	ID           string            // reservations.id
	VenueID      string            // reservations.venue_id
	TableIDs     []string          // reservation_tables.table_id
	CustomerName string            // reservations.customer_name
	Contact      string            // reservations.contact
	Document     string            // reservations.document
	StartsAt     time.Time         // reservations.starts_at
	EndsAt       time.Time         // reservations.ends_at
	PartySize    int               // reservations.party_size
	Status       ReservationStatus // reservations.status
	Forced       bool              // reservations.forced
	CreatedBy    string            // reservations.created_by
	Notes        string            // reservations.notes
	CreatedAt    time.Time         // reservations.created_at
	UpdatedAt    time.Time         // reservations.updated_at
}

// Interval returns the nominal [StartsAt, EndsAt) range.
func (r Reservation) Interval() Interval {
	return Interval{Start: r.StartsAt, End: r.EndsAt}
}

// CheckInWindow is the closed range in which a guest may be checked in.
func (r Reservation) CheckInWindow() Interval {
	return Interval{Start: r.StartsAt.Add(-CheckInLead), End: r.EndsAt}
}

// HasTable reports whether tableID is assigned to the reservation.
func (r Reservation) HasTable(tableID string) bool {
	for _, id := range r.TableIDs {
		if id == tableID {
			return true
		}
	}
	return false
}
