// Package queue carries reservation lifecycle events over RabbitMQ.
package queue

// ReservationQueue is the durable queue every lifecycle event is routed to.
const ReservationQueue = "reservations.events"

// Event types published by the allocator.
const (
	EventReservationCreated   = "reservation.created"
	EventReservationUpdated   = "reservation.updated"
	EventReservationStarted   = "reservation.started"
	EventReservationCompleted = "reservation.completed"
	EventReservationCancelled = "reservation.cancelled"
	EventReservationNoShow    = "reservation.no_show"
)

// ReservationEvent is published after a reservation transaction commits. It
// carries enough context for the audit consumer to write a log line without
// querying the database. Timestamps are RFC 3339 in UTC.
type ReservationEvent struct {
	Type          string   `json:"type"`
	ReservationID string   `json:"reservation_id"`
	VenueID       string   `json:"venue_id"`
	TableIDs      []string `json:"table_ids"`
	Status        string   `json:"status"`
	CustomerName  string   `json:"customer_name"`
	PartySize     int      `json:"party_size"`
	StartsAt      string   `json:"starts_at"`
	EndsAt        string   `json:"ends_at"`
	Actor         string   `json:"actor"`
	OccurredAt    string   `json:"occurred_at"`
}
