package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/clock"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/queue"
	"github.com/iliyamo/table-reservation/internal/repository"
)

// ReservationService is the reservation allocator. Every mutation runs in
// one transaction that locks the affected tables, validates, writes and
// then runs the targeted reconcile before committing.
type ReservationService struct {
	store     repository.Store
	authz     Authorizer
	scheduler *Scheduler
	events    EventPublisher
	clock     clock.Clock
	log       logrus.FieldLogger
	newID     func() string
}

// NewReservationService wires the allocator. events may be nil.
func NewReservationService(store repository.Store, authz Authorizer, scheduler *Scheduler, events EventPublisher, clk clock.Clock, log logrus.FieldLogger) *ReservationService {
	if store == nil || authz == nil || scheduler == nil || clk == nil || log == nil {
		panic("service: nil dependency passed to NewReservationService")
	}
	return &ReservationService{
		store:     store,
		authz:     authz,
		scheduler: scheduler,
		events:    events,
		clock:     clk,
		log:       log.WithField("component", "reservations"),
		newID:     uuid.NewString,
	}
}

func (s *ReservationService) logger(op, venueID, reservationID string) logrus.FieldLogger {
	fields := logrus.Fields{"operation": op, "venue_id": venueID}
	if reservationID != "" {
		fields["reservation_id"] = reservationID
	}
	return s.log.WithFields(fields)
}

// Create books the requested tables for a new PENDING reservation.
func (s *ReservationService) Create(ctx context.Context, caller Caller, venueID string, req CreateReservationRequest) (model.Reservation, error) {
	const op = "create_reservation"
	now := s.clock.Now()
	log := s.logger(op, venueID, "")

	member, err := s.authz.EnsureActiveMember(ctx, caller.Email, venueID)
	if err != nil {
		return model.Reservation{}, observe(log, op, err)
	}
	if err := validateRequest(req); err != nil {
		return model.Reservation{}, observe(log, op, err)
	}
	if err := validateWindow(req.StartsAt, req.EndsAt, now); err != nil {
		return model.Reservation{}, observe(log, op, err)
	}

	res := model.Reservation{
		ID:           s.newID(),
		VenueID:      venueID,
		TableIDs:     append([]string(nil), req.TableIDs...),
		CustomerName: strings.TrimSpace(req.CustomerName),
		Contact:      strings.TrimSpace(req.Contact),
		Document:     strings.TrimSpace(req.Document),
		StartsAt:     req.StartsAt.UTC(),
		EndsAt:       req.EndsAt.UTC(),
		PartySize:    req.PartySize,
		Status:       model.ReservationPending,
		Forced:       req.Forced,
		CreatedBy:    member.UserID,
		Notes:        req.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	log = log.WithField("reservation_id", res.ID)

	var promoted []string
	err = s.store.InTx(ctx, func(repos repository.Repositories) error {
		locked, err := repos.Tables.LockByIDs(ctx, res.TableIDs)
		if err != nil {
			return fmt.Errorf("lock tables: %w", err)
		}
		tables, err := resolveTables(locked, res.TableIDs, venueID)
		if err != nil {
			return err
		}
		if err := checkCapacity(tables, res.PartySize, res.Forced); err != nil {
			return err
		}
		if err := checkTablesAvailable(ctx, repos.Reservations, tables, res.StartsAt, res.EndsAt, ""); err != nil {
			return err
		}
		if err := repos.Reservations.Save(ctx, res); err != nil {
			return fmt.Errorf("save reservation: %w", err)
		}
		promoted, err = s.scheduler.reconcileInTx(ctx, repos, res.TableIDs, now)
		return err
	})
	if err != nil {
		return model.Reservation{}, observe(log, op, fromStore(err, "reservation"))
	}
	s.scheduler.notePromotions(promoted, triggerReservation, logrus.Fields{"reservation_id": res.ID})
	publish(ctx, s.events, log, newEvent(queue.EventReservationCreated, res, member.Email, now))
	log.WithField("tables", res.TableIDs).Info("reservation created")
	return res, observe(log, op, nil)
}

// Update edits a PENDING reservation. Changing dates or tables re-runs the
// temporal checks and the overlap check against every other reservation.
// Tables dropped from the reservation, and kept tables when the dates moved,
// are released from RESERVED when no other reservation claims them.
func (s *ReservationService) Update(ctx context.Context, caller Caller, venueID, reservationID string, req UpdateReservationRequest) (model.Reservation, error) {
	const op = "update_reservation"
	now := s.clock.Now()
	log := s.logger(op, venueID, reservationID)

	member, err := s.authz.EnsureActiveMember(ctx, caller.Email, venueID)
	if err != nil {
		return model.Reservation{}, observe(log, op, err)
	}
	if err := validateRequest(req); err != nil {
		return model.Reservation{}, observe(log, op, err)
	}

	var out model.Reservation
	var promoted []string
	err = s.store.InTx(ctx, func(repos repository.Repositories) error {
		snapshot, err := loadReservation(ctx, repos, venueID, reservationID)
		if err != nil {
			return err
		}
		locked, err := repos.Tables.LockByIDs(ctx, union(snapshot.TableIDs, req.TableIDs))
		if err != nil {
			return fmt.Errorf("lock tables: %w", err)
		}
		// re-read under the table locks so a concurrent edit is not lost
		current, err := loadReservation(ctx, repos, venueID, reservationID)
		if err != nil {
			return err
		}
		if current.Status != model.ReservationPending {
			return invalidf("reservation %s is %s; only PENDING reservations can be edited", reservationID, current.Status)
		}
		if !subset(current.TableIDs, ids(locked)) {
			return conflictf("reservation %s was modified concurrently, retry the request", reservationID)
		}

		next := applyUpdate(current, req)
		tablesChanged := !sameSet(current.TableIDs, next.TableIDs)
		datesChanged := !current.StartsAt.Equal(next.StartsAt) || !current.EndsAt.Equal(next.EndsAt)
		seatingChanged := tablesChanged || current.PartySize != next.PartySize || current.Forced != next.Forced

		tables, err := resolveTables(locked, next.TableIDs, venueID)
		if err != nil {
			return err
		}
		if tablesChanged || datesChanged {
			if err := validateWindow(next.StartsAt, next.EndsAt, now); err != nil {
				return err
			}
			if err := checkTablesAvailable(ctx, repos.Reservations, tables, next.StartsAt, next.EndsAt, next.ID); err != nil {
				return err
			}
		}
		if seatingChanged {
			if err := checkCapacity(tables, next.PartySize, next.Forced); err != nil {
				return err
			}
		}

		next.UpdatedAt = now
		if err := repos.Reservations.Save(ctx, next); err != nil {
			return fmt.Errorf("save reservation: %w", err)
		}

		byID := indexTables(locked)
		for _, id := range difference(current.TableIDs, next.TableIDs) {
			if err := releaseIfUnclaimed(ctx, repos, byID[id], next.ID, now); err != nil {
				return err
			}
		}
		if datesChanged {
			for _, id := range intersection(current.TableIDs, next.TableIDs) {
				if err := releaseIfUnclaimed(ctx, repos, byID[id], "", now); err != nil {
					return err
				}
			}
		}

		promoted, err = s.scheduler.reconcileInTx(ctx, repos, next.TableIDs, now)
		if err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return model.Reservation{}, observe(log, op, fromStore(err, "reservation "+reservationID))
	}
	s.scheduler.notePromotions(promoted, triggerReservation, logrus.Fields{"reservation_id": reservationID})
	publish(ctx, s.events, log, newEvent(queue.EventReservationUpdated, out, member.Email, now))
	log.Info("reservation updated")
	return out, observe(log, op, nil)
}

func applyUpdate(cur model.Reservation, req UpdateReservationRequest) model.Reservation {
	next := cur
	next.TableIDs = append([]string(nil), cur.TableIDs...)
	if len(req.TableIDs) > 0 {
		next.TableIDs = append([]string(nil), req.TableIDs...)
	}
	if req.CustomerName != nil {
		next.CustomerName = strings.TrimSpace(*req.CustomerName)
	}
	if req.Contact != nil {
		next.Contact = strings.TrimSpace(*req.Contact)
	}
	if req.Document != nil {
		next.Document = strings.TrimSpace(*req.Document)
	}
	if req.StartsAt != nil {
		next.StartsAt = req.StartsAt.UTC()
	}
	if req.EndsAt != nil {
		next.EndsAt = req.EndsAt.UTC()
	}
	if req.PartySize != nil {
		next.PartySize = *req.PartySize
	}
	if req.Forced != nil {
		next.Forced = *req.Forced
	}
	if req.Notes != nil {
		next.Notes = *req.Notes
	}
	return next
}

// releaseIfUnclaimed frees a RESERVED table unless a PENDING reservation
// other than excludeID still starts inside the lock window or is already
// running late on it.
func releaseIfUnclaimed(ctx context.Context, repos repository.Repositories, t model.Table, excludeID string, now time.Time) error {
	if t.ID == "" || t.Status != model.TableReserved {
		return nil
	}
	claims, err := repos.Reservations.FindOverlappingForTable(ctx, t.ID, now, now.Add(model.LockWindow), excludeID)
	if err != nil {
		return fmt.Errorf("find claims on table %s: %w", t.Code, err)
	}
	for _, r := range claims {
		if r.Status == model.ReservationPending {
			return nil
		}
	}
	if err := repos.Tables.UpdateStatus(ctx, t.ID, model.TableFree, now); err != nil {
		return fmt.Errorf("release table %s: %w", t.Code, err)
	}
	return nil
}

// loadReservation fetches a reservation and hides ones of other venues.
func loadReservation(ctx context.Context, repos repository.Repositories, venueID, id string) (model.Reservation, error) {
	res, err := repos.Reservations.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && res.VenueID != venueID) {
		return model.Reservation{}, notFoundf("reservation %s not found in venue %s", id, venueID)
	}
	if err != nil {
		return model.Reservation{}, fmt.Errorf("load reservation %s: %w", id, err)
	}
	return res, nil
}

// resolveTables returns the locked tables in request order, rejecting ids
// that are missing, belong to another venue or are inactive.
func resolveTables(locked []model.Table, want []string, venueID string) ([]model.Table, error) {
	byID := indexTables(locked)
	out := make([]model.Table, 0, len(want))
	for _, id := range want {
		t, ok := byID[id]
		if !ok || t.VenueID != venueID {
			return nil, notFoundf("table %s not found in venue %s", id, venueID)
		}
		if t.Status == model.TableInactive {
			return nil, invalidf("table %s is inactive", t.Code)
		}
		out = append(out, t)
	}
	return out, nil
}

// checkCapacity rejects a party larger than the seats of its tables unless
// the reservation is forced.
func checkCapacity(tables []model.Table, partySize int, forced bool) error {
	if forced {
		return nil
	}
	total := 0
	codes := make([]string, 0, len(tables))
	for _, t := range tables {
		total += t.Capacity
		codes = append(codes, t.Code)
	}
	if total >= partySize {
		return nil
	}
	return invalidf("insufficient capacity on tables %s: capacity %d, required %d (short by %d)",
		strings.Join(codes, ", "), total, partySize, partySize-total)
}

func indexTables(tables []model.Table) map[string]model.Table {
	m := make(map[string]model.Table, len(tables))
	for _, t := range tables {
		m[t.ID] = t
	}
	return m
}

func ids(tables []model.Table) []string {
	out := make([]string, 0, len(tables))
	for _, t := range tables {
		out = append(out, t.ID)
	}
	return out
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	return subset(a, b)
}

func subset(a, b []string) bool {
	in := make(map[string]struct{}, len(b))
	for _, v := range b {
		in[v] = struct{}{}
	}
	for _, v := range a {
		if _, ok := in[v]; !ok {
			return false
		}
	}
	return true
}

func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, v := range append(append([]string(nil), a...), b...) {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// difference returns the members of a missing from b.
func difference(a, b []string) []string {
	var out []string
	for _, v := range a {
		if !subset([]string{v}, b) {
			out = append(out, v)
		}
	}
	return out
}

func intersection(a, b []string) []string {
	var out []string
	for _, v := range a {
		if subset([]string{v}, b) {
			out = append(out, v)
		}
	}
	return out
}
