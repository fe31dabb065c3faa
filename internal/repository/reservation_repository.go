package repository

import (
	"context"
	"strings"
	"time"

	"github.com/iliyamo/table-reservation/internal/model"
)

// ReservationRepo provides CRUD operations for reservations and their
// tables. Reservations group together one or more tables for a time
// interval; the tables assigned to a reservation are stored in the
// reservation_tables table. All timestamps are stored in UTC.
type ReservationRepo struct {
	db dbtx
}

// NewReservationRepo returns a ReservationRepo bound to db (pool or tx).
func NewReservationRepo(db dbtx) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `r.id, r.venue_id, r.customer_name, r.contact, r.document, r.starts_at, r.ends_at,
	r.party_size, r.status, r.forced, r.created_by, r.notes, r.created_at, r.updated_at`

func scanReservation(s rowScanner) (model.Reservation, error) {
	var res model.Reservation
	var status string
	err := s.Scan(&res.ID, &res.VenueID, &res.CustomerName, &res.Contact, &res.Document,
		&res.StartsAt, &res.EndsAt, &res.PartySize, &status, &res.Forced,
		&res.CreatedBy, &res.Notes, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return model.Reservation{}, err
	}
	res.Status = model.ReservationStatus(status)
	res.StartsAt = res.StartsAt.UTC()
	res.EndsAt = res.EndsAt.UTC()
	return res, nil
}

// queryReservations runs q, then populates the table ids of every returned
// reservation with a single follow-up query.
func (r *ReservationRepo) queryReservations(ctx context.Context, q string, args ...any) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	out := make([]model.Reservation, 0)
	index := make(map[string]int)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		res.TableIDs = []string{}
		index[res.ID] = len(out)
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	if len(out) == 0 {
		return out, nil
	}
	ids := make([]any, 0, len(out))
	placeholders := make([]string, 0, len(out))
	for _, res := range out {
		ids = append(ids, res.ID)
		placeholders = append(placeholders, "?")
	}
	tq := `SELECT reservation_id, table_id FROM reservation_tables
	       WHERE reservation_id IN (` + strings.Join(placeholders, ",") + `)
	       ORDER BY reservation_id, table_id`
	trows, err := r.db.QueryContext(ctx, tq, ids...)
	if err != nil {
		return nil, translate(err)
	}
	defer trows.Close()
	for trows.Next() {
		var resID, tableID string
		if err := trows.Scan(&resID, &tableID); err != nil {
			return nil, err
		}
		idx, ok := index[resID]
		if !ok {
			continue
		}
		out[idx].TableIDs = append(out[idx].TableIDs, tableID)
	}
	if err := trows.Err(); err != nil {
		return nil, translate(err)
	}
	return out, nil
}

// FindByID returns ErrNotFound when the reservation does not exist.
func (r *ReservationRepo) FindByID(ctx context.Context, id string) (model.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations r WHERE r.id = ?`
	list, err := r.queryReservations(ctx, q, id)
	if err != nil {
		return model.Reservation{}, err
	}
	if len(list) == 0 {
		return model.Reservation{}, ErrNotFound
	}
	return list[0], nil
}

// FindOverlappingForTable lists active reservations on the table whose
// nominal interval intersects [windowStart, windowEnd). The overlap checker
// passes the candidate widened by the larger buffer on each side so rows
// whose own buffers reach the candidate come back too.
func (r *ReservationRepo) FindOverlappingForTable(ctx context.Context, tableID string, windowStart, windowEnd time.Time, excludeID string) ([]model.Reservation, error) {
	q := `SELECT ` + reservationColumns + `
	      FROM reservations r
	      JOIN reservation_tables rt ON rt.reservation_id = r.id
	      WHERE rt.table_id = ?
	        AND r.status IN (?, ?)
	        AND r.starts_at < ?
	        AND r.ends_at > ?
	        AND r.id <> ?
	      ORDER BY r.starts_at`
	return r.queryReservations(ctx, q, tableID,
		string(model.ReservationPending), string(model.ReservationInProgress),
		windowEnd.UTC(), windowStart.UTC(), excludeID)
}

// FindUpcomingForTable lists PENDING reservations starting in (from, to).
func (r *ReservationRepo) FindUpcomingForTable(ctx context.Context, tableID string, from, to time.Time) ([]model.Reservation, error) {
	q := `SELECT ` + reservationColumns + `
	      FROM reservations r
	      JOIN reservation_tables rt ON rt.reservation_id = r.id
	      WHERE rt.table_id = ?
	        AND r.status = ?
	        AND r.starts_at > ?
	        AND r.starts_at < ?
	      ORDER BY r.starts_at`
	return r.queryReservations(ctx, q, tableID, string(model.ReservationPending), from.UTC(), to.UTC())
}

// FindByVenueAndDateRange lists reservations starting in [from, to).
func (r *ReservationRepo) FindByVenueAndDateRange(ctx context.Context, venueID string, from, to time.Time) ([]model.Reservation, error) {
	q := `SELECT ` + reservationColumns + `
	      FROM reservations r
	      WHERE r.venue_id = ? AND r.starts_at >= ? AND r.starts_at < ?
	      ORDER BY r.starts_at, r.id`
	return r.queryReservations(ctx, q, venueID, from.UTC(), to.UTC())
}

// FindByVenueOverlapping lists reservations intersecting [from, to).
func (r *ReservationRepo) FindByVenueOverlapping(ctx context.Context, venueID string, from, to time.Time) ([]model.Reservation, error) {
	q := `SELECT ` + reservationColumns + `
	      FROM reservations r
	      WHERE r.venue_id = ? AND r.starts_at < ? AND r.ends_at > ?
	      ORDER BY r.starts_at, r.id`
	return r.queryReservations(ctx, q, venueID, to.UTC(), from.UTC())
}

// FindActiveByVenueEndingAfter lists the venue's upcoming and running reservations.
func (r *ReservationRepo) FindActiveByVenueEndingAfter(ctx context.Context, venueID string, at time.Time) ([]model.Reservation, error) {
	q := `SELECT ` + reservationColumns + `
	      FROM reservations r
	      WHERE r.venue_id = ? AND r.status IN (?, ?) AND r.ends_at >= ?
	      ORDER BY r.starts_at, r.id`
	return r.queryReservations(ctx, q, venueID,
		string(model.ReservationPending), string(model.ReservationInProgress), at.UTC())
}

// FindPastByVenue lists finished reservations, newest first.
func (r *ReservationRepo) FindPastByVenue(ctx context.Context, venueID string, at time.Time, limit int) ([]model.Reservation, error) {
	q := `SELECT ` + reservationColumns + `
	      FROM reservations r
	      WHERE r.venue_id = ? AND (r.ends_at < ? OR r.status IN (?, ?, ?))
	      ORDER BY r.starts_at DESC, r.id
	      LIMIT ?`
	return r.queryReservations(ctx, q, venueID, at.UTC(),
		string(model.ReservationCompleted), string(model.ReservationCancelled), string(model.ReservationNoShow),
		limit)
}

// CountForTable counts reservation_tables rows referencing the table.
func (r *ReservationRepo) CountForTable(ctx context.Context, tableID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reservation_tables WHERE table_id = ?`, tableID).Scan(&n)
	if err != nil {
		return 0, translate(err)
	}
	return n, nil
}

// HasActiveEndingAfter reports whether an active reservation still holds the table after at.
func (r *ReservationRepo) HasActiveEndingAfter(ctx context.Context, tableID string, at time.Time) (bool, error) {
	const q = `SELECT EXISTS(
	               SELECT 1 FROM reservations r
	               JOIN reservation_tables rt ON rt.reservation_id = r.id
	               WHERE rt.table_id = ? AND r.status IN (?, ?) AND r.ends_at > ?)`
	var exists bool
	err := r.db.QueryRowContext(ctx, q, tableID,
		string(model.ReservationPending), string(model.ReservationInProgress), at.UTC()).Scan(&exists)
	if err != nil {
		return false, translate(err)
	}
	return exists, nil
}

// Save upserts the reservation row and rewrites its reservation_tables
// rows. Callers run it inside a transaction so both writes land together.
func (r *ReservationRepo) Save(ctx context.Context, res model.Reservation) error {
	const q = `INSERT INTO reservations (id, venue_id, customer_name, contact, document, starts_at, ends_at,
	               party_size, status, forced, created_by, notes, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	           ON DUPLICATE KEY UPDATE customer_name = VALUES(customer_name), contact = VALUES(contact),
	               document = VALUES(document), starts_at = VALUES(starts_at), ends_at = VALUES(ends_at),
	               party_size = VALUES(party_size), status = VALUES(status), forced = VALUES(forced),
	               notes = VALUES(notes), updated_at = VALUES(updated_at)`
	if _, err := r.db.ExecContext(ctx, q,
		res.ID, res.VenueID, res.CustomerName, res.Contact, res.Document, res.StartsAt.UTC(), res.EndsAt.UTC(),
		res.PartySize, string(res.Status), res.Forced, res.CreatedBy, res.Notes, res.CreatedAt.UTC(), res.UpdatedAt.UTC(),
	); err != nil {
		return translate(err)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM reservation_tables WHERE reservation_id = ?`, res.ID); err != nil {
		return translate(err)
	}
	if len(res.TableIDs) == 0 {
		return nil
	}
	query := `INSERT INTO reservation_tables (reservation_id, table_id) VALUES `
	args := make([]any, 0, len(res.TableIDs)*2)
	for i, tableID := range res.TableIDs {
		if i > 0 {
			query += ","
		}
		query += "(?, ?)"
		args = append(args, res.ID, tableID)
	}
	_, err := r.db.ExecContext(ctx, query, args...)
	return translate(err)
}

// Delete removes the reservation; reservation_tables rows cascade.
func (r *ReservationRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id)
	if err != nil {
		return translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
