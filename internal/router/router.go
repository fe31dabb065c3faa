package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/table-reservation/internal/handler"
	"github.com/iliyamo/table-reservation/internal/metrics"
	"github.com/iliyamo/table-reservation/internal/middleware"
)

// RegisterRoutes registers the unauthenticated endpoints: liveness,
// readiness and the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}

// RegisterVenue registers the venue-scoped API under /v1/venues/:venueID.
// Every route needs a valid bearer token; venue membership and role are
// checked by the services.
func RegisterVenue(e *echo.Echo, r *handler.ReservationHandler, t *handler.TableHandler, jwtSecret string, extra ...echo.MiddlewareFunc) {
	mws := append([]echo.MiddlewareFunc{middleware.JWTAuth(jwtSecret)}, extra...)
	g := e.Group("/v1/venues/:venueID", mws...)

	// ---- Tables ----
	g.GET("/tables", t.List)
	g.POST("/tables", t.Create)
	g.GET("/tables/:id", t.Get)
	g.PATCH("/tables/:id", t.Update)
	g.DELETE("/tables/:id", t.Delete)
	g.PUT("/tables/:id/status", t.ChangeStatus)
	g.POST("/tables/:id/reconcile", t.Reconcile)

	// ---- Reservations ----
	g.GET("/reservations", r.List)
	g.POST("/reservations", r.Create)
	g.GET("/reservations/upcoming", r.Upcoming)
	g.GET("/reservations/past", r.Past)
	g.GET("/reservations/gantt", r.Gantt)
	g.GET("/reservations/:id", r.Get)
	g.PATCH("/reservations/:id", r.Update)
	g.POST("/reservations/:id/start", r.Start)
	g.POST("/reservations/:id/complete", r.Complete)
	g.POST("/reservations/:id/cancel", r.Cancel)
	g.POST("/reservations/:id/no-show", r.NoShow)
}
