package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/service"
)

// ReservationHandler serves /v1/venues/:venueID/reservations.
type ReservationHandler struct {
	Reservations *service.ReservationService
	Log          logrus.FieldLogger
}

// NewReservationHandler panics if a dependency is nil.
func NewReservationHandler(reservations *service.ReservationService, log logrus.FieldLogger) *ReservationHandler {
	if reservations == nil || log == nil {
		panic("nil dependency passed to NewReservationHandler")
	}
	return &ReservationHandler{Reservations: reservations, Log: log.WithField("component", "http")}
}

// Create handles POST /v1/venues/:venueID/reservations.
func (h *ReservationHandler) Create(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return fail(c, h.Log, err)
	}
	var req service.CreateReservationRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	res, err := h.Reservations.Create(ctx, who, c.Param("venueID"), req)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, reservationView(res))
}

// Update handles PATCH /v1/venues/:venueID/reservations/:id.
func (h *ReservationHandler) Update(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return fail(c, h.Log, err)
	}
	var req service.UpdateReservationRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	res, err := h.Reservations.Update(ctx, who, c.Param("venueID"), c.Param("id"), req)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, reservationView(res))
}

// Get handles GET /v1/venues/:venueID/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return fail(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	res, err := h.Reservations.Get(ctx, who, c.Param("venueID"), c.Param("id"))
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, reservationView(res))
}

// lifecycleAction is one of the allocator's status transitions.
type lifecycleAction func(ctx context.Context, who service.Caller, venueID, reservationID string) (model.Reservation, error)

func (h *ReservationHandler) lifecycle(c echo.Context, action lifecycleAction) error {
	who, err := caller(c)
	if err != nil {
		return fail(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	res, err := action(ctx, who, c.Param("venueID"), c.Param("id"))
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, reservationView(res))
}

// Start handles POST /v1/venues/:venueID/reservations/:id/start (check-in).
func (h *ReservationHandler) Start(c echo.Context) error {
	return h.lifecycle(c, h.Reservations.Start)
}

// Complete handles POST /v1/venues/:venueID/reservations/:id/complete.
func (h *ReservationHandler) Complete(c echo.Context) error {
	return h.lifecycle(c, h.Reservations.Complete)
}

// Cancel handles POST /v1/venues/:venueID/reservations/:id/cancel.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	return h.lifecycle(c, h.Reservations.Cancel)
}

// NoShow handles POST /v1/venues/:venueID/reservations/:id/no-show.
func (h *ReservationHandler) NoShow(c echo.Context) error {
	return h.lifecycle(c, h.Reservations.NoShow)
}

// parseInstant accepts RFC 3339 timestamps or plain dates (midnight UTC).
func parseInstant(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// List handles GET /v1/venues/:venueID/reservations?from=&to=.
func (h *ReservationHandler) List(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return fail(c, h.Log, err)
	}
	from, ok := parseInstant(c.QueryParam("from"))
	if !ok {
		return badRequest(c, "from must be an RFC 3339 time or a YYYY-MM-DD date")
	}
	to, ok := parseInstant(c.QueryParam("to"))
	if !ok {
		return badRequest(c, "to must be an RFC 3339 time or a YYYY-MM-DD date")
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	list, err := h.Reservations.List(ctx, who, c.Param("venueID"), from, to)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": reservationsView(list)})
}

// Gantt handles GET /v1/venues/:venueID/reservations/gantt?date=&tz=.
func (h *ReservationHandler) Gantt(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return fail(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	day, err := h.Reservations.Gantt(ctx, who, c.Param("venueID"), c.QueryParam("date"), c.QueryParam("tz"))
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, ganttView(day))
}

// Upcoming handles GET /v1/venues/:venueID/reservations/upcoming.
func (h *ReservationHandler) Upcoming(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return fail(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	list, err := h.Reservations.Upcoming(ctx, who, c.Param("venueID"))
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": reservationsView(list)})
}

// Past handles GET /v1/venues/:venueID/reservations/past?limit=.
func (h *ReservationHandler) Past(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return fail(c, h.Log, err)
	}
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return badRequest(c, "limit must be a positive integer")
		}
		limit = n
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	list, err := h.Reservations.Past(ctx, who, c.Param("venueID"), limit)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": reservationsView(list)})
}
