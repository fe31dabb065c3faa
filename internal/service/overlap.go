package service

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/table-reservation/internal/model"
)

// OverlapQuery is the slice of the reservation repository the overlap
// checker needs.
type OverlapQuery interface {
	FindOverlappingForTable(ctx context.Context, tableID string, windowStart, windowEnd time.Time, excludeID string) ([]model.Reservation, error)
}

// CheckOverlap reports a *ConflictError when an active reservation on table
// clashes with [start, end): either buffered window reaches into the other
// reservation's nominal interval. excludeID, when set, leaves the
// reservation being edited out of the comparison.
func CheckOverlap(ctx context.Context, q OverlapQuery, table model.Table, start, end time.Time, excludeID string) error {
	candidate := model.Interval{Start: start, End: end}
	search := model.ClashSearchWindow(start, end)
	existing, err := q.FindOverlappingForTable(ctx, table.ID, search.Start, search.End, excludeID)
	if err != nil {
		return fmt.Errorf("query reservations on table %s: %w", table.Code, err)
	}
	for _, other := range existing {
		if other.ID == excludeID || !other.Status.Active() {
			continue
		}
		if !model.Clash(candidate, other.Interval()) {
			continue
		}
		return &ConflictError{
			TableID:       table.ID,
			TableCode:     table.Code,
			ReservationID: other.ID,
			Message: fmt.Sprintf("table %s is taken by reservation %s from %s to %s",
				table.Code, other.ID,
				other.StartsAt.UTC().Format(time.RFC3339), other.EndsAt.UTC().Format(time.RFC3339)),
		}
	}
	return nil
}

// checkTablesAvailable runs CheckOverlap on every table and fails on the
// first conflict, so a reservation gets all of its tables or none.
func checkTablesAvailable(ctx context.Context, q OverlapQuery, tables []model.Table, start, end time.Time, excludeID string) error {
	for _, t := range tables {
		if err := CheckOverlap(ctx, q, t, start, end, excludeID); err != nil {
			return err
		}
	}
	return nil
}
