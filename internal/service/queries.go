package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/table-reservation/internal/model"
)

const (
	// maxListRange bounds date-range listings.
	maxListRange     = 31 * 24 * time.Hour
	defaultPastLimit = 50
	maxPastLimit     = 200
)

// GanttRow is one table line of the day view.
type GanttRow struct {
	Table        model.Table
	Reservations []model.Reservation
}

// GanttDay lays out one calendar day of a venue, table by table.
type GanttDay struct {
	Date     string
	TimeZone string
	From     time.Time
	To       time.Time
	Rows     []GanttRow
}

// Get returns one reservation of the venue.
func (s *ReservationService) Get(ctx context.Context, caller Caller, venueID, reservationID string) (model.Reservation, error) {
	const op = "get_reservation"
	log := s.logger(op, venueID, reservationID)
	if _, err := s.authz.EnsureActiveMember(ctx, caller.Email, venueID); err != nil {
		return model.Reservation{}, observe(log, op, err)
	}
	res, err := loadReservation(ctx, s.store.Repositories(), venueID, reservationID)
	return res, observe(log, op, err)
}

// List returns reservations whose start lies in [from, to).
func (s *ReservationService) List(ctx context.Context, caller Caller, venueID string, from, to time.Time) ([]model.Reservation, error) {
	const op = "list_reservations"
	log := s.logger(op, venueID, "")
	if _, err := s.authz.EnsureActiveMember(ctx, caller.Email, venueID); err != nil {
		return nil, observe(log, op, err)
	}
	if from.IsZero() || to.IsZero() || !from.Before(to) {
		return nil, observe(log, op, invalidf("from must be before to"))
	}
	if to.Sub(from) > maxListRange {
		return nil, observe(log, op, invalidf("date range longer than %d days", int(maxListRange/(24*time.Hour))))
	}
	list, err := s.store.Repositories().Reservations.FindByVenueAndDateRange(ctx, venueID, from, to)
	if err != nil {
		return nil, observe(log, op, fmt.Errorf("list reservations: %w", err))
	}
	return list, observe(log, op, nil)
}

// Gantt returns every active table of the venue with the reservations
// intersecting the calendar day in zone tz (IANA name, default UTC).
func (s *ReservationService) Gantt(ctx context.Context, caller Caller, venueID, day, tz string) (GanttDay, error) {
	const op = "gantt"
	log := s.logger(op, venueID, "")
	if _, err := s.authz.EnsureActiveMember(ctx, caller.Email, venueID); err != nil {
		return GanttDay{}, observe(log, op, err)
	}
	tz = strings.TrimSpace(tz)
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return GanttDay{}, observe(log, op, invalidf("unknown time zone %q", tz))
	}
	date, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return GanttDay{}, observe(log, op, invalidf("date %q is not in YYYY-MM-DD form", day))
	}
	from := date
	to := date.AddDate(0, 0, 1)

	repos := s.store.Repositories()
	tables, err := repos.Tables.FindByVenue(ctx, venueID)
	if err != nil {
		return GanttDay{}, observe(log, op, fmt.Errorf("list tables: %w", err))
	}
	list, err := repos.Reservations.FindByVenueOverlapping(ctx, venueID, from.UTC(), to.UTC())
	if err != nil {
		return GanttDay{}, observe(log, op, fmt.Errorf("list reservations: %w", err))
	}

	out := GanttDay{Date: day, TimeZone: tz, From: from, To: to, Rows: []GanttRow{}}
	index := make(map[string]int)
	for _, t := range tables {
		if t.Status == model.TableInactive {
			continue
		}
		index[t.ID] = len(out.Rows)
		out.Rows = append(out.Rows, GanttRow{Table: t, Reservations: []model.Reservation{}})
	}
	for _, r := range list {
		for _, id := range r.TableIDs {
			if i, ok := index[id]; ok {
				out.Rows[i].Reservations = append(out.Rows[i].Reservations, r)
			}
		}
	}
	return out, observe(log, op, nil)
}

// Upcoming lists PENDING and IN_PROGRESS reservations that have not ended.
func (s *ReservationService) Upcoming(ctx context.Context, caller Caller, venueID string) ([]model.Reservation, error) {
	const op = "upcoming_reservations"
	now := s.clock.Now()
	log := s.logger(op, venueID, "")
	if _, err := s.authz.EnsureActiveMember(ctx, caller.Email, venueID); err != nil {
		return nil, observe(log, op, err)
	}
	list, err := s.store.Repositories().Reservations.FindActiveByVenueEndingAfter(ctx, venueID, now)
	if err != nil {
		return nil, observe(log, op, fmt.Errorf("list upcoming reservations: %w", err))
	}
	return list, observe(log, op, nil)
}

// Past lists ended or terminal reservations, newest first. limit defaults
// to 50 and is capped at 200.
func (s *ReservationService) Past(ctx context.Context, caller Caller, venueID string, limit int) ([]model.Reservation, error) {
	const op = "past_reservations"
	now := s.clock.Now()
	log := s.logger(op, venueID, "")
	if _, err := s.authz.EnsureActiveMember(ctx, caller.Email, venueID); err != nil {
		return nil, observe(log, op, err)
	}
	if limit <= 0 {
		limit = defaultPastLimit
	}
	if limit > maxPastLimit {
		limit = maxPastLimit
	}
	list, err := s.store.Repositories().Reservations.FindPastByVenue(ctx, venueID, now, limit)
	if err != nil {
		return nil, observe(log, op, fmt.Errorf("list past reservations: %w", err))
	}
	return list, observe(log, op, nil)
}
