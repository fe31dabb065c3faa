package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/queue"
	"github.com/iliyamo/table-reservation/internal/repository"
)

// transitionFunc validates a lifecycle step against now and applies it to r
// and its locked tables. It must not save r; the caller does.
type transitionFunc func(ctx context.Context, repos repository.Repositories, r *model.Reservation, tables []model.Table, now time.Time) error

// transition runs one lifecycle step: lock the reservation's tables,
// re-read it, apply fn, save, reconcile, commit, then publish.
func (s *ReservationService) transition(ctx context.Context, caller Caller, venueID, reservationID, op, eventType string, fn transitionFunc) (model.Reservation, error) {
	now := s.clock.Now()
	log := s.logger(op, venueID, reservationID)

	member, err := s.authz.EnsureActiveMember(ctx, caller.Email, venueID)
	if err != nil {
		return model.Reservation{}, observe(log, op, err)
	}

	var out model.Reservation
	var promoted []string
	err = s.store.InTx(ctx, func(repos repository.Repositories) error {
		snapshot, err := loadReservation(ctx, repos, venueID, reservationID)
		if err != nil {
			return err
		}
		locked, err := repos.Tables.LockByIDs(ctx, snapshot.TableIDs)
		if err != nil {
			return fmt.Errorf("lock tables: %w", err)
		}
		res, err := loadReservation(ctx, repos, venueID, reservationID)
		if err != nil {
			return err
		}
		if !sameSet(res.TableIDs, snapshot.TableIDs) {
			return conflictf("reservation %s was modified concurrently, retry the request", reservationID)
		}
		byID := indexTables(locked)
		tables := make([]model.Table, 0, len(res.TableIDs))
		for _, id := range res.TableIDs {
			if t, ok := byID[id]; ok {
				tables = append(tables, t)
			}
		}

		if err := fn(ctx, repos, &res, tables, now); err != nil {
			return err
		}
		res.UpdatedAt = now
		if err := repos.Reservations.Save(ctx, res); err != nil {
			return fmt.Errorf("save reservation: %w", err)
		}
		promoted, err = s.scheduler.reconcileInTx(ctx, repos, res.TableIDs, now)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return model.Reservation{}, observe(log, op, fromStore(err, "reservation "+reservationID))
	}
	s.scheduler.notePromotions(promoted, triggerReservation, logrus.Fields{"reservation_id": reservationID})
	publish(ctx, s.events, log, newEvent(eventType, out, member.Email, now))
	log.WithField("status", out.Status).Info("reservation status changed")
	return out, observe(log, op, nil)
}

func setTableStatus(ctx context.Context, repos repository.Repositories, t model.Table, to model.TableStatus, now time.Time) error {
	if t.Status == to {
		return nil
	}
	if err := repos.Tables.UpdateStatus(ctx, t.ID, to, now); err != nil {
		return fmt.Errorf("set table %s %s: %w", t.Code, to, err)
	}
	return nil
}

func formatInstant(t time.Time) string { return t.UTC().Format(time.RFC3339) }

// Start checks the party in. It is allowed while PENDING and now lies in
// [start-15m, end]; every table becomes OCCUPIED.
func (s *ReservationService) Start(ctx context.Context, caller Caller, venueID, reservationID string) (model.Reservation, error) {
	return s.transition(ctx, caller, venueID, reservationID, "start_reservation", queue.EventReservationStarted,
		func(ctx context.Context, repos repository.Repositories, r *model.Reservation, tables []model.Table, now time.Time) error {
			if r.Status != model.ReservationPending {
				return invalidf("reservation %s is %s; only PENDING reservations can be started", r.ID, r.Status)
			}
			w := r.CheckInWindow()
			if now.Before(w.Start) {
				return invalidf("check-in for reservation %s opens at %s", r.ID, formatInstant(w.Start))
			}
			if now.After(w.End) {
				return invalidf("check-in for reservation %s closed at %s", r.ID, formatInstant(w.End))
			}
			r.Status = model.ReservationInProgress
			for _, t := range tables {
				if err := setTableStatus(ctx, repos, t, model.TableOccupied, now); err != nil {
					return err
				}
			}
			return nil
		})
}

// Complete checks the party out. Every table is freed regardless of other
// claims; the reconcile that follows may reserve it again.
func (s *ReservationService) Complete(ctx context.Context, caller Caller, venueID, reservationID string) (model.Reservation, error) {
	return s.transition(ctx, caller, venueID, reservationID, "complete_reservation", queue.EventReservationCompleted,
		func(ctx context.Context, repos repository.Repositories, r *model.Reservation, tables []model.Table, now time.Time) error {
			if r.Status != model.ReservationInProgress {
				return invalidf("reservation %s is %s; only IN_PROGRESS reservations can be completed", r.ID, r.Status)
			}
			r.Status = model.ReservationCompleted
			for _, t := range tables {
				if err := setTableStatus(ctx, repos, t, model.TableFree, now); err != nil {
					return err
				}
			}
			return nil
		})
}

// Cancel is refused once the reservation is COMPLETED, already terminal, or
// past its end. RESERVED tables are freed. OCCUPIED tables are freed only
// when the cancelled party was the one seated; a PENDING reservation leaves
// another party's OCCUPIED table alone.
func (s *ReservationService) Cancel(ctx context.Context, caller Caller, venueID, reservationID string) (model.Reservation, error) {
	return s.transition(ctx, caller, venueID, reservationID, "cancel_reservation", queue.EventReservationCancelled,
		func(ctx context.Context, repos repository.Repositories, r *model.Reservation, tables []model.Table, now time.Time) error {
			if !r.Status.CanTransitionTo(model.ReservationCancelled) {
				return invalidf("reservation %s is already %s and cannot be cancelled", r.ID, r.Status)
			}
			if now.After(r.EndsAt) {
				return invalidf("reservation %s cannot be cancelled after finalization time %s", r.ID, formatInstant(r.EndsAt))
			}
			seated := r.Status == model.ReservationInProgress
			r.Status = model.ReservationCancelled
			for _, t := range tables {
				if t.Status == model.TableReserved || (seated && t.Status == model.TableOccupied) {
					if err := setTableStatus(ctx, repos, t, model.TableFree, now); err != nil {
						return err
					}
				}
			}
			return nil
		})
}

// NoShow records that the party never arrived. It is allowed while PENDING
// and now lies in [start, end]; RESERVED tables are freed.
func (s *ReservationService) NoShow(ctx context.Context, caller Caller, venueID, reservationID string) (model.Reservation, error) {
	return s.transition(ctx, caller, venueID, reservationID, "no_show_reservation", queue.EventReservationNoShow,
		func(ctx context.Context, repos repository.Repositories, r *model.Reservation, tables []model.Table, now time.Time) error {
			if r.Status != model.ReservationPending {
				return invalidf("reservation %s is %s; only PENDING reservations can be marked no-show", r.ID, r.Status)
			}
			if now.Before(r.StartsAt) {
				return invalidf("reservation %s cannot be marked no-show before its start %s", r.ID, formatInstant(r.StartsAt))
			}
			if now.After(r.EndsAt) {
				return invalidf("reservation %s cannot be marked no-show after its end %s", r.ID, formatInstant(r.EndsAt))
			}
			r.Status = model.ReservationNoShow
			for _, t := range tables {
				if t.Status == model.TableReserved {
					if err := setTableStatus(ctx, repos, t, model.TableFree, now); err != nil {
						return err
					}
				}
			}
			return nil
		})
}
