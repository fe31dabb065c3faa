package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/clock"
	"github.com/iliyamo/table-reservation/internal/metrics"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/repository"
)

// Reconcile triggers, used as metric and log labels.
const (
	triggerTick        = "tick"
	triggerReservation = "reservation"
	triggerTable       = "table"
)

// LeaderLock elects the replica that runs the global tick.
type LeaderLock interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// SchedulerOptions tunes the global tick.
type SchedulerOptions struct {
	Interval time.Duration // default one minute
	Leader   LeaderLock    // nil runs the tick on every replica
}

// Scheduler keeps table status in step with upcoming reservations. The
// global tick and the targeted triggers run the same reconcileTable
// routine.
type Scheduler struct {
	store    repository.Store
	clock    clock.Clock
	log      logrus.FieldLogger
	interval time.Duration
	leader   LeaderLock

	mu   sync.Mutex
	cron *cron.Cron
	stop context.CancelFunc
}

// NewScheduler wires a scheduler. It does not start the tick.
func NewScheduler(store repository.Store, clk clock.Clock, log logrus.FieldLogger, opts SchedulerOptions) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	return &Scheduler{
		store:    store,
		clock:    clk,
		log:      log.WithField("component", "scheduler"),
		interval: opts.Interval,
		leader:   opts.Leader,
	}
}

// reconcileTable promotes a FREE table to RESERVED when a PENDING
// reservation on it starts within the lock window. It never demotes, and it
// is a no-op for tables in any other status. The caller holds the row lock.
func reconcileTable(ctx context.Context, repos repository.Repositories, table model.Table, now time.Time) (bool, error) {
	if table.Status != model.TableFree {
		return false, nil
	}
	upcoming, err := repos.Reservations.FindUpcomingForTable(ctx, table.ID, now, now.Add(model.LockWindow))
	if err != nil {
		return false, fmt.Errorf("find upcoming reservations for table %s: %w", table.Code, err)
	}
	claimed := false
	for _, r := range upcoming {
		if r.Status == model.ReservationPending && model.StartsWithinLockWindow(r.StartsAt, now) {
			claimed = true
			break
		}
	}
	if !claimed {
		return false, nil
	}
	if err := repos.Tables.UpdateStatus(ctx, table.ID, model.TableReserved, now); err != nil {
		return false, fmt.Errorf("reserve table %s: %w", table.Code, err)
	}
	return true, nil
}

// reconcileInTx locks tableIDs inside the caller's transaction and
// reconciles each of them. It returns the ids of promoted tables.
func (s *Scheduler) reconcileInTx(ctx context.Context, repos repository.Repositories, tableIDs []string, now time.Time) ([]string, error) {
	tables, err := repos.Tables.LockByIDs(ctx, tableIDs)
	if err != nil {
		return nil, fmt.Errorf("lock tables: %w", err)
	}
	var promoted []string
	for _, t := range tables {
		ok, err := reconcileTable(ctx, repos, t, now)
		if err != nil {
			return nil, err
		}
		if ok {
			promoted = append(promoted, t.ID)
		}
	}
	return promoted, nil
}

// notePromotions logs and counts promotions once their transaction committed.
func (s *Scheduler) notePromotions(tableIDs []string, trigger string, fields logrus.Fields) {
	for _, id := range tableIDs {
		metrics.RecordPromotion(trigger)
		s.log.WithFields(fields).WithFields(logrus.Fields{"table_id": id, "trigger": trigger}).
			Info("table reserved ahead of upcoming reservation")
	}
}

// ReconcileTable runs the targeted trigger for one table in its own
// transaction. It reports whether the table was promoted.
func (s *Scheduler) ReconcileTable(ctx context.Context, tableID string) (bool, error) {
	return s.reconcileOne(ctx, tableID, s.clock.Now(), triggerTable)
}

// ReconcileReservation runs the targeted trigger for every table of one
// reservation and returns the promoted table ids.
func (s *Scheduler) ReconcileReservation(ctx context.Context, reservationID string) ([]string, error) {
	now := s.clock.Now()
	var promoted []string
	err := s.store.InTx(ctx, func(repos repository.Repositories) error {
		res, err := repos.Reservations.FindByID(ctx, reservationID)
		if err != nil {
			return err
		}
		promoted, err = s.reconcileInTx(ctx, repos, res.TableIDs, now)
		return err
	})
	if err != nil {
		return nil, fromStore(err, "reservation "+reservationID)
	}
	s.notePromotions(promoted, triggerReservation, logrus.Fields{"reservation_id": reservationID})
	return promoted, nil
}

func (s *Scheduler) reconcileOne(ctx context.Context, tableID string, now time.Time, trigger string) (bool, error) {
	var promoted []string
	err := s.store.InTx(ctx, func(repos repository.Repositories) error {
		var err error
		promoted, err = s.reconcileInTx(ctx, repos, []string{tableID}, now)
		return err
	})
	if err != nil {
		return false, fromStore(err, "table "+tableID)
	}
	s.notePromotions(promoted, trigger, nil)
	return len(promoted) > 0, nil
}

// Tick scans every FREE table and reconciles them one at a time, each in
// its own short transaction, so no lock is held across the scan. All tables
// are judged against the same now. Per-table failures are collected and
// the scan continues.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	now := s.clock.Now()
	free, err := s.store.Repositories().Tables.FindByStatus(ctx, model.TableFree)
	if err != nil {
		return 0, fmt.Errorf("list free tables: %w", err)
	}
	sort.Slice(free, func(i, j int) bool { return free[i].ID < free[j].ID })

	promoted := 0
	var errs []error
	for _, t := range free {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		ok, err := s.reconcileOne(ctx, t.ID, now, triggerTick)
		if err != nil {
			errs = append(errs, fmt.Errorf("table %s: %w", t.Code, err))
			continue
		}
		if ok {
			promoted++
		}
	}
	return promoted, errors.Join(errs...)
}

// runTick is the cron job body: leader election, bounded runtime, metrics.
func (s *Scheduler) runTick(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	if s.leader != nil {
		ok, err := s.leader.TryAcquire(ctx)
		if err != nil {
			s.log.WithError(err).Warn("leader lock unavailable; skipping tick")
			return
		}
		if !ok {
			s.log.Debug("another replica holds the scheduler lock")
			return
		}
	}

	start := time.Now()
	promoted, err := s.Tick(ctx)
	metrics.RecordTick(time.Since(start), err == nil)
	entry := s.log.WithFields(logrus.Fields{"promoted": promoted, "duration": time.Since(start).String()})
	if err != nil {
		entry.WithError(err).Error("reconciliation tick finished with errors")
		return
	}
	entry.Debug("reconciliation tick finished")
}

// Start schedules the global tick. Overlapping runs are skipped rather than
// queued.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("scheduler already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	logger := cron.PrintfLogger(s.log)
	c := cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), func() { s.runTick(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule tick: %w", err)
	}
	c.Start()
	s.cron = c
	s.stop = cancel
	s.log.WithField("interval", s.interval.String()).Info("reconciliation scheduler started")
	return nil
}

// Stop cancels the running tick, waits for it and releases the leader lock.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	c, cancel := s.cron, s.stop
	s.cron, s.stop = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	cancel()
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	if s.leader != nil {
		if err := s.leader.Release(ctx); err != nil {
			s.log.WithError(err).Warn("release scheduler lock")
		}
	}
	s.log.Info("reconciliation scheduler stopped")
}
