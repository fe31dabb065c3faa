package handler

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/service"
)

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func tableView(t model.Table) echo.Map {
	return echo.Map{
		"id":         t.ID,
		"venue_id":   t.VenueID,
		"code":       t.Code,
		"capacity":   t.Capacity,
		"sector":     t.Sector,
		"status":     t.Status,
		"created_at": formatTime(t.CreatedAt),
		"updated_at": formatTime(t.UpdatedAt),
	}
}

func tablesView(list []model.Table) []echo.Map {
	out := make([]echo.Map, 0, len(list))
	for _, t := range list {
		out = append(out, tableView(t))
	}
	return out
}

func reservationView(r model.Reservation) echo.Map {
	tableIDs := r.TableIDs
	if tableIDs == nil {
		tableIDs = []string{}
	}
	return echo.Map{
		"id":            r.ID,
		"venue_id":      r.VenueID,
		"table_ids":     tableIDs,
		"customer_name": r.CustomerName,
		"contact":       r.Contact,
		"document":      r.Document,
		"starts_at":     formatTime(r.StartsAt),
		"ends_at":       formatTime(r.EndsAt),
		"party_size":    r.PartySize,
		"status":        r.Status,
		"forced":        r.Forced,
		"created_by":    r.CreatedBy,
		"notes":         r.Notes,
		"created_at":    formatTime(r.CreatedAt),
		"updated_at":    formatTime(r.UpdatedAt),
	}
}

func reservationsView(list []model.Reservation) []echo.Map {
	out := make([]echo.Map, 0, len(list))
	for _, r := range list {
		out = append(out, reservationView(r))
	}
	return out
}

// ganttView renders times in the requested zone so the client can draw
// the day without converting.
func ganttView(day service.GanttDay) echo.Map {
	loc := day.From.Location()
	rows := make([]echo.Map, 0, len(day.Rows))
	for _, row := range day.Rows {
		bars := make([]echo.Map, 0, len(row.Reservations))
		for _, r := range row.Reservations {
			bars = append(bars, echo.Map{
				"id":            r.ID,
				"customer_name": r.CustomerName,
				"party_size":    r.PartySize,
				"status":        r.Status,
				"starts_at":     r.StartsAt.In(loc).Format(time.RFC3339),
				"ends_at":       r.EndsAt.In(loc).Format(time.RFC3339),
			})
		}
		rows = append(rows, echo.Map{
			"table":        tableView(row.Table),
			"reservations": bars,
		})
	}
	return echo.Map{
		"date":     day.Date,
		"timezone": day.TimeZone,
		"from":     day.From.Format(time.RFC3339),
		"to":       day.To.Format(time.RFC3339),
		"rows":     rows,
	}
}
