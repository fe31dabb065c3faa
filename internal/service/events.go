package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/metrics"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/queue"
)

// EventPublisher delivers lifecycle events after a mutation committed.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.ReservationEvent) error
}

// NopPublisher drops every event. It is used when EVENTS_ENABLED=false.
type NopPublisher struct{}

// Publish does nothing.
func (NopPublisher) Publish(context.Context, queue.ReservationEvent) error { return nil }

const publishTimeout = 5 * time.Second

func newEvent(eventType string, r model.Reservation, actor string, at time.Time) queue.ReservationEvent {
	return queue.ReservationEvent{
		Type:          eventType,
		ReservationID: r.ID,
		VenueID:       r.VenueID,
		TableIDs:      append([]string(nil), r.TableIDs...),
		Status:        string(r.Status),
		CustomerName:  r.CustomerName,
		PartySize:     r.PartySize,
		StartsAt:      r.StartsAt.UTC().Format(time.RFC3339),
		EndsAt:        r.EndsAt.UTC().Format(time.RFC3339),
		Actor:         actor,
		OccurredAt:    at.UTC().Format(time.RFC3339),
	}
}

// publish is best effort: the mutation has already committed, so a broker
// failure is logged and counted but never returned.
func publish(ctx context.Context, p EventPublisher, log logrus.FieldLogger, ev queue.ReservationEvent) {
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	err := p.Publish(ctx, ev)
	metrics.RecordEvent(ev.Type, err == nil)
	if err != nil {
		log.WithError(err).WithField("event_type", ev.Type).Warn("publish reservation event failed")
	}
}

// observe records the outcome of an operation and returns err unchanged.
func observe(log logrus.FieldLogger, op string, err error) error {
	kind := ErrorKind(err)
	metrics.RecordOperation(op, kind)
	switch {
	case err == nil:
		log.Debug(op + " succeeded")
	case kind == "infrastructure":
		log.WithError(err).WithField("error_kind", kind).Error(op + " failed")
	default:
		log.WithError(err).WithField("error_kind", kind).Warn(op + " rejected")
	}
	return err
}
