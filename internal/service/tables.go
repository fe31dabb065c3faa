package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/clock"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/repository"
)

// TableService manages the tables of a venue and their manual status
// changes.
type TableService struct {
	store     repository.Store
	authz     Authorizer
	scheduler *Scheduler
	clock     clock.Clock
	log       logrus.FieldLogger
	newID     func() string
}

// NewTableService wires the table service.
func NewTableService(store repository.Store, authz Authorizer, scheduler *Scheduler, clk clock.Clock, log logrus.FieldLogger) *TableService {
	if store == nil || authz == nil || scheduler == nil || clk == nil || log == nil {
		panic("service: nil dependency passed to NewTableService")
	}
	return &TableService{
		store:     store,
		authz:     authz,
		scheduler: scheduler,
		clock:     clk,
		log:       log.WithField("component", "tables"),
		newID:     uuid.NewString,
	}
}

func (s *TableService) logger(op, venueID, tableID string) logrus.FieldLogger {
	fields := logrus.Fields{"operation": op, "venue_id": venueID}
	if tableID != "" {
		fields["table_id"] = tableID
	}
	return s.log.WithFields(fields)
}

// manager returns the membership when the caller may edit tables.
func (s *TableService) manager(ctx context.Context, caller Caller, venueID string) (model.Member, error) {
	m, err := s.authz.EnsureActiveMember(ctx, caller.Email, venueID)
	if err != nil {
		return model.Member{}, err
	}
	if !m.CanManageTables() {
		return model.Member{}, forbiddenf("role %s of %s cannot manage tables of venue %s", m.Role, m.Email, venueID)
	}
	return m, nil
}

// List returns the venue's tables ordered by code, inactive ones included.
func (s *TableService) List(ctx context.Context, caller Caller, venueID string) ([]model.Table, error) {
	const op = "list_tables"
	log := s.logger(op, venueID, "")
	if _, err := s.authz.EnsureActiveMember(ctx, caller.Email, venueID); err != nil {
		return nil, observe(log, op, err)
	}
	tables, err := s.store.Repositories().Tables.FindByVenue(ctx, venueID)
	if err != nil {
		return nil, observe(log, op, fmt.Errorf("list tables: %w", err))
	}
	return tables, observe(log, op, nil)
}

// Get returns one table of the venue.
func (s *TableService) Get(ctx context.Context, caller Caller, venueID, tableID string) (model.Table, error) {
	const op = "get_table"
	log := s.logger(op, venueID, tableID)
	if _, err := s.authz.EnsureActiveMember(ctx, caller.Email, venueID); err != nil {
		return model.Table{}, observe(log, op, err)
	}
	t, err := s.store.Repositories().Tables.FindByID(ctx, tableID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && t.VenueID != venueID) {
		return model.Table{}, observe(log, op, notFoundf("table %s not found in venue %s", tableID, venueID))
	}
	if err != nil {
		return model.Table{}, observe(log, op, fmt.Errorf("load table %s: %w", tableID, err))
	}
	return t, observe(log, op, nil)
}

// lockVenueTable locks one table row and checks it belongs to the venue.
func lockVenueTable(ctx context.Context, repos repository.Repositories, venueID, tableID string) (model.Table, error) {
	locked, err := repos.Tables.LockByIDs(ctx, []string{tableID})
	if err != nil {
		return model.Table{}, fmt.Errorf("lock table: %w", err)
	}
	for _, t := range locked {
		if t.ID == tableID && t.VenueID == venueID {
			return t, nil
		}
	}
	return model.Table{}, notFoundf("table %s not found in venue %s", tableID, venueID)
}

// imminentReservation returns the first PENDING reservation on the table
// starting inside the lock window.
func imminentReservation(ctx context.Context, repos repository.Repositories, t model.Table, now time.Time) (model.Reservation, bool, error) {
	upcoming, err := repos.Reservations.FindUpcomingForTable(ctx, t.ID, now, now.Add(model.LockWindow))
	if err != nil {
		return model.Reservation{}, false, fmt.Errorf("find upcoming reservations for table %s: %w", t.Code, err)
	}
	for _, r := range upcoming {
		if r.Status == model.ReservationPending && model.StartsWithinLockWindow(r.StartsAt, now) {
			return r, true, nil
		}
	}
	return model.Reservation{}, false, nil
}

// Create adds a FREE table. Codes are unique per venue.
func (s *TableService) Create(ctx context.Context, caller Caller, venueID string, req CreateTableRequest) (model.Table, error) {
	const op = "create_table"
	now := s.clock.Now()
	log := s.logger(op, venueID, "")
	if _, err := s.manager(ctx, caller, venueID); err != nil {
		return model.Table{}, observe(log, op, err)
	}
	req.Code = strings.TrimSpace(req.Code)
	if err := validateRequest(req); err != nil {
		return model.Table{}, observe(log, op, err)
	}

	t := model.Table{
		ID:        s.newID(),
		VenueID:   venueID,
		Code:      req.Code,
		Capacity:  req.Capacity,
		Sector:    strings.TrimSpace(req.Sector),
		Status:    model.TableFree,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.store.InTx(ctx, func(repos repository.Repositories) error {
		exists, err := repos.Tables.ExistsByVenueAndCode(ctx, venueID, t.Code)
		if err != nil {
			return fmt.Errorf("check table code: %w", err)
		}
		if exists {
			return invalidf("table code %s already exists in venue %s", t.Code, venueID)
		}
		return repos.Tables.Save(ctx, t)
	})
	if err != nil {
		return model.Table{}, observe(log, op, fromStore(err, "table "+t.Code))
	}
	log.WithField("table_id", t.ID).Info("table created")
	return t, observe(log, op, nil)
}

// Update edits code, capacity or sector. Only FREE tables with no
// reservation starting inside the lock window can be edited.
func (s *TableService) Update(ctx context.Context, caller Caller, venueID, tableID string, req UpdateTableRequest) (model.Table, error) {
	const op = "update_table"
	now := s.clock.Now()
	log := s.logger(op, venueID, tableID)
	if _, err := s.manager(ctx, caller, venueID); err != nil {
		return model.Table{}, observe(log, op, err)
	}
	if err := validateRequest(req); err != nil {
		return model.Table{}, observe(log, op, err)
	}

	var out model.Table
	err := s.store.InTx(ctx, func(repos repository.Repositories) error {
		t, err := lockVenueTable(ctx, repos, venueID, tableID)
		if err != nil {
			return err
		}
		if t.Status != model.TableFree {
			return invalidf("table %s is %s; tables can only be edited while FREE", t.Code, t.Status)
		}
		if r, ok, err := imminentReservation(ctx, repos, t, now); err != nil {
			return err
		} else if ok {
			return invalidf("table %s is held for reservation %s starting at %s", t.Code, r.ID, formatInstant(r.StartsAt))
		}
		if req.Code != nil {
			code := strings.TrimSpace(*req.Code)
			if code != t.Code {
				exists, err := repos.Tables.ExistsByVenueAndCode(ctx, venueID, code)
				if err != nil {
					return fmt.Errorf("check table code: %w", err)
				}
				if exists {
					return invalidf("table code %s already exists in venue %s", code, venueID)
				}
				t.Code = code
			}
		}
		if req.Capacity != nil {
			t.Capacity = *req.Capacity
		}
		if req.Sector != nil {
			t.Sector = strings.TrimSpace(*req.Sector)
		}
		t.UpdatedAt = now
		if err := repos.Tables.Save(ctx, t); err != nil {
			return fmt.Errorf("save table: %w", err)
		}
		out = t
		return nil
	})
	if err != nil {
		return model.Table{}, observe(log, op, fromStore(err, "table "+tableID))
	}
	log.Info("table updated")
	return out, observe(log, op, nil)
}

// Delete removes a FREE table with no active reservation ending after now.
// Tables that were ever booked are kept as INACTIVE so history stays
// readable; others are deleted outright. It reports whether the row was
// removed.
func (s *TableService) Delete(ctx context.Context, caller Caller, venueID, tableID string) (bool, error) {
	const op = "delete_table"
	now := s.clock.Now()
	log := s.logger(op, venueID, tableID)
	if _, err := s.manager(ctx, caller, venueID); err != nil {
		return false, observe(log, op, err)
	}

	hard := false
	err := s.store.InTx(ctx, func(repos repository.Repositories) error {
		t, err := lockVenueTable(ctx, repos, venueID, tableID)
		if err != nil {
			return err
		}
		if t.Status != model.TableFree {
			return invalidf("table %s is %s; only FREE tables can be deleted", t.Code, t.Status)
		}
		busy, err := repos.Reservations.HasActiveEndingAfter(ctx, t.ID, now)
		if err != nil {
			return fmt.Errorf("check reservations on table %s: %w", t.Code, err)
		}
		if busy {
			return invalidf("table %s still has active reservations", t.Code)
		}
		n, err := repos.Reservations.CountForTable(ctx, t.ID)
		if err != nil {
			return fmt.Errorf("count reservations on table %s: %w", t.Code, err)
		}
		if n == 0 {
			hard = true
			return repos.Tables.Delete(ctx, t.ID)
		}
		return repos.Tables.UpdateStatus(ctx, t.ID, model.TableInactive, now)
	})
	if err != nil {
		return false, observe(log, op, fromStore(err, "table "+tableID))
	}
	log.WithField("hard_delete", hard).Info("table deleted")
	return hard, observe(log, op, nil)
}

// ChangeStatus applies a manual status transition. FREE→OCCUPIED is also
// refused while a reservation on the table starts inside the lock window,
// so a walk-in cannot take a table the scheduler is about to reserve.
// RESERVED→FREE is refused for the same reservation, since the reconcile
// would reserve the table again. The table is reconciled in the same
// transaction.
func (s *TableService) ChangeStatus(ctx context.Context, caller Caller, venueID, tableID string, req ChangeTableStatusRequest) (model.Table, error) {
	const op = "change_table_status"
	now := s.clock.Now()
	log := s.logger(op, venueID, tableID)
	if _, err := s.authz.EnsureActiveMember(ctx, caller.Email, venueID); err != nil {
		return model.Table{}, observe(log, op, err)
	}
	if err := validateRequest(req); err != nil {
		return model.Table{}, observe(log, op, err)
	}

	var out model.Table
	var promoted []string
	err := s.store.InTx(ctx, func(repos repository.Repositories) error {
		t, err := lockVenueTable(ctx, repos, venueID, tableID)
		if err != nil {
			return err
		}
		if err := model.CheckManualTransition(t.Status, req.Status); err != nil {
			if errors.Is(err, model.ErrSchedulerOnly) {
				return invalidf("table %s cannot be set to RESERVED manually: %v", t.Code, err)
			}
			return invalidf("table %s: %v", t.Code, err)
		}
		walkIn := t.Status == model.TableFree && req.Status == model.TableOccupied
		release := t.Status == model.TableReserved && req.Status == model.TableFree
		if walkIn || release {
			if r, ok, err := imminentReservation(ctx, repos, t, now); err != nil {
				return err
			} else if ok {
				return invalidf("table %s is held for reservation %s starting at %s", t.Code, r.ID, formatInstant(r.StartsAt))
			}
		}
		if err := repos.Tables.UpdateStatus(ctx, t.ID, req.Status, now); err != nil {
			return fmt.Errorf("update table %s: %w", t.Code, err)
		}
		promoted, err = s.scheduler.reconcileInTx(ctx, repos, []string{t.ID}, now)
		if err != nil {
			return err
		}
		out, err = repos.Tables.FindByID(ctx, t.ID)
		return err
	})
	if err != nil {
		return model.Table{}, observe(log, op, fromStore(err, "table "+tableID))
	}
	s.scheduler.notePromotions(promoted, triggerTable, logrus.Fields{"venue_id": venueID})
	log.WithField("status", out.Status).Info("table status changed")
	return out, observe(log, op, nil)
}
