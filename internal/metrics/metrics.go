// Package metrics owns the Prometheus registry of the reservation engine.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector exported on /metrics.
var Registry = prometheus.NewRegistry()

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "table_reservation",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests processed.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "table_reservation",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	allocatorOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "table_reservation",
			Subsystem: "allocator",
			Name:      "operations_total",
			Help:      "Reservation and table operations by outcome.",
		},
		[]string{"operation", "outcome"},
	)

	schedulerPromotions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "table_reservation",
			Subsystem: "scheduler",
			Name:      "promotions_total",
			Help:      "Tables promoted from FREE to RESERVED.",
		},
		[]string{"trigger"},
	)

	schedulerTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "table_reservation",
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Global reconciliation ticks by result.",
		},
		[]string{"result"},
	)

	schedulerTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "table_reservation",
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Duration of global reconciliation ticks.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)

	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "table_reservation",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Reservation lifecycle events handed to the broker.",
		},
		[]string{"type", "result"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		allocatorOperations,
		schedulerPromotions,
		schedulerTicks,
		schedulerTickDuration,
		eventsPublished,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latencies labelled by route
// template, so /venues/:venueID/... does not explode label cardinality.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Path() == "/metrics" {
				return next(c)
			}
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			method := strings.ToUpper(c.Request().Method)
			status := strconv.Itoa(c.Response().Status)
			httpRequests.WithLabelValues(method, path, status).Inc()
			httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// RecordOperation counts one allocator or table operation. outcome is "ok"
// or the error kind reported by the service layer.
func RecordOperation(operation, outcome string) {
	allocatorOperations.WithLabelValues(operation, outcome).Inc()
}

// RecordPromotion counts one FREE→RESERVED promotion.
func RecordPromotion(trigger string) {
	schedulerPromotions.WithLabelValues(trigger).Inc()
}

// RecordTick records the duration and result of a global tick.
func RecordTick(duration time.Duration, success bool) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	result := "ok"
	if !success {
		result = "error"
	}
	schedulerTicks.WithLabelValues(result).Inc()
	schedulerTickDuration.Observe(duration.Seconds())
}

// RecordEvent counts a publish attempt for an event type.
func RecordEvent(eventType string, success bool) {
	result := "ok"
	if !success {
		result = "error"
	}
	eventsPublished.WithLabelValues(eventType, result).Inc()
}
