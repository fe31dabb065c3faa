package testfixtures

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/repository"
)

// MemoryStore is an in-memory repository.Store. Transactions are fully
// serialised, which models the row locks the MySQL store takes, and a
// failed transaction restores the state captured when it began.
type MemoryStore struct {
	txMu sync.Mutex

	mu           sync.RWMutex
	tables       map[string]model.Table
	reservations map[string]model.Reservation
	failures     map[string]error
	locked       [][]string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables:       make(map[string]model.Table),
		reservations: make(map[string]model.Reservation),
		failures:     make(map[string]error),
	}
}

// Repositories returns repositories working directly on the store.
func (s *MemoryStore) Repositories() repository.Repositories {
	return repository.Repositories{Tables: memTables{s}, Reservations: memReservations{s}}
}

// InTx runs fn while holding the store-wide transaction lock.
func (s *MemoryStore) InTx(ctx context.Context, fn func(repository.Repositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tables, reservations := s.snapshot()
	if err := fn(s.Repositories()); err != nil {
		s.restore(tables, reservations)
		return err
	}
	return nil
}

// FailNext makes the next call of op return err. op names a repository
// method, e.g. "Reservations.Save" or "Tables.UpdateStatus".
func (s *MemoryStore) FailNext(op string, err error) {
	s.mu.Lock()
	s.failures[op] = err
	s.mu.Unlock()
}

// PutTable stores t as-is, bypassing every service rule.
func (s *MemoryStore) PutTable(t model.Table) {
	s.mu.Lock()
	s.tables[t.ID] = t
	s.mu.Unlock()
}

// PutReservation stores r as-is.
func (s *MemoryStore) PutReservation(r model.Reservation) {
	s.mu.Lock()
	s.reservations[r.ID] = cloneReservation(r)
	s.mu.Unlock()
}

// Table returns the stored table; ok is false when it does not exist.
func (s *MemoryStore) Table(id string) (model.Table, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[id]
	return t, ok
}

// TableStatus is a shortcut for tests asserting on a single status.
func (s *MemoryStore) TableStatus(id string) model.TableStatus {
	t, _ := s.Table(id)
	return t.Status
}

// Reservation returns the stored reservation.
func (s *MemoryStore) Reservation(id string) (model.Reservation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reservations[id]
	return cloneReservation(r), ok
}

// ReservationCount returns the number of stored reservations.
func (s *MemoryStore) ReservationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reservations)
}

// LockedSets returns the id sets passed to Tables.LockByIDs, in call order.
func (s *MemoryStore) LockedSets() [][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([][]string, len(s.locked))
	copy(out, s.locked)
	return out
}

func (s *MemoryStore) fail(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err, ok := s.failures[op]
	if !ok {
		return nil
	}
	delete(s.failures, op)
	return err
}

func (s *MemoryStore) snapshot() (map[string]model.Table, map[string]model.Reservation) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tables := make(map[string]model.Table, len(s.tables))
	for k, v := range s.tables {
		tables[k] = v
	}
	reservations := make(map[string]model.Reservation, len(s.reservations))
	for k, v := range s.reservations {
		reservations[k] = cloneReservation(v)
	}
	return tables, reservations
}

func (s *MemoryStore) restore(tables map[string]model.Table, reservations map[string]model.Reservation) {
	s.mu.Lock()
	s.tables = tables
	s.reservations = reservations
	s.mu.Unlock()
}

func cloneReservation(r model.Reservation) model.Reservation {
	if r.TableIDs != nil {
		r.TableIDs = append([]string(nil), r.TableIDs...)
	}
	return r
}

type memTables struct{ s *MemoryStore }

func (m memTables) FindByID(_ context.Context, id string) (model.Table, error) {
	if err := m.s.fail("Tables.FindByID"); err != nil {
		return model.Table{}, err
	}
	t, ok := m.s.Table(id)
	if !ok {
		return model.Table{}, repository.ErrNotFound
	}
	return t, nil
}

func (m memTables) filter(keep func(model.Table) bool) []model.Table {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := make([]model.Table, 0)
	for _, t := range m.s.tables {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].VenueID != out[j].VenueID {
			return out[i].VenueID < out[j].VenueID
		}
		return out[i].Code < out[j].Code
	})
	return out
}

func (m memTables) FindByVenue(_ context.Context, venueID string) ([]model.Table, error) {
	return m.filter(func(t model.Table) bool { return t.VenueID == venueID }), nil
}

func (m memTables) FindByStatus(_ context.Context, status model.TableStatus) ([]model.Table, error) {
	if err := m.s.fail("Tables.FindByStatus"); err != nil {
		return nil, err
	}
	return m.filter(func(t model.Table) bool { return t.Status == status }), nil
}

func (m memTables) LockByIDs(_ context.Context, ids []string) ([]model.Table, error) {
	if err := m.s.fail("Tables.LockByIDs"); err != nil {
		return nil, err
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	m.s.mu.Lock()
	m.s.locked = append(m.s.locked, sorted)
	m.s.mu.Unlock()

	out := make([]model.Table, 0, len(sorted))
	for _, id := range sorted {
		if t, ok := m.s.Table(id); ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m memTables) ExistsByVenueAndCode(_ context.Context, venueID, code string) (bool, error) {
	return len(m.filter(func(t model.Table) bool { return t.VenueID == venueID && t.Code == code })) > 0, nil
}

func (m memTables) Save(_ context.Context, t model.Table) error {
	if err := m.s.fail("Tables.Save"); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, other := range m.s.tables {
		if other.ID != t.ID && other.VenueID == t.VenueID && other.Code == t.Code {
			return repository.ErrDuplicate
		}
	}
	m.s.tables[t.ID] = t
	return nil
}

func (m memTables) UpdateStatus(_ context.Context, id string, status model.TableStatus, at time.Time) error {
	if err := m.s.fail("Tables.UpdateStatus"); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	t, ok := m.s.tables[id]
	if !ok {
		return repository.ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = at
	m.s.tables[id] = t
	return nil
}

func (m memTables) Delete(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.tables[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.s.tables, id)
	return nil
}

type memReservations struct{ s *MemoryStore }

func (m memReservations) FindByID(_ context.Context, id string) (model.Reservation, error) {
	r, ok := m.s.Reservation(id)
	if !ok {
		return model.Reservation{}, repository.ErrNotFound
	}
	return r, nil
}

func (m memReservations) filter(keep func(model.Reservation) bool) []model.Reservation {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := make([]model.Reservation, 0)
	for _, r := range m.s.reservations {
		if keep(r) {
			out = append(out, cloneReservation(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m memReservations) FindOverlappingForTable(_ context.Context, tableID string, windowStart, windowEnd time.Time, excludeID string) ([]model.Reservation, error) {
	if err := m.s.fail("Reservations.FindOverlappingForTable"); err != nil {
		return nil, err
	}
	return m.filter(func(r model.Reservation) bool {
		return r.ID != excludeID && r.Status.Active() && r.HasTable(tableID) &&
			r.StartsAt.Before(windowEnd) && r.EndsAt.After(windowStart)
	}), nil
}

func (m memReservations) FindUpcomingForTable(_ context.Context, tableID string, from, to time.Time) ([]model.Reservation, error) {
	if err := m.s.fail("Reservations.FindUpcomingForTable"); err != nil {
		return nil, err
	}
	return m.filter(func(r model.Reservation) bool {
		return r.Status == model.ReservationPending && r.HasTable(tableID) &&
			r.StartsAt.After(from) && r.StartsAt.Before(to)
	}), nil
}

func (m memReservations) FindByVenueAndDateRange(_ context.Context, venueID string, from, to time.Time) ([]model.Reservation, error) {
	return m.filter(func(r model.Reservation) bool {
		return r.VenueID == venueID && !r.StartsAt.Before(from) && r.StartsAt.Before(to)
	}), nil
}

func (m memReservations) FindByVenueOverlapping(_ context.Context, venueID string, from, to time.Time) ([]model.Reservation, error) {
	return m.filter(func(r model.Reservation) bool {
		return r.VenueID == venueID && r.StartsAt.Before(to) && r.EndsAt.After(from)
	}), nil
}

func (m memReservations) FindActiveByVenueEndingAfter(_ context.Context, venueID string, at time.Time) ([]model.Reservation, error) {
	return m.filter(func(r model.Reservation) bool {
		return r.VenueID == venueID && r.Status.Active() && !r.EndsAt.Before(at)
	}), nil
}

func (m memReservations) FindPastByVenue(_ context.Context, venueID string, at time.Time, limit int) ([]model.Reservation, error) {
	out := m.filter(func(r model.Reservation) bool {
		return r.VenueID == venueID && (r.EndsAt.Before(at) || r.Status.Terminal())
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartsAt.After(out[j].StartsAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m memReservations) CountForTable(_ context.Context, tableID string) (int, error) {
	return len(m.filter(func(r model.Reservation) bool { return r.HasTable(tableID) })), nil
}

func (m memReservations) HasActiveEndingAfter(_ context.Context, tableID string, at time.Time) (bool, error) {
	return len(m.filter(func(r model.Reservation) bool {
		return r.Status.Active() && r.HasTable(tableID) && r.EndsAt.After(at)
	})) > 0, nil
}

func (m memReservations) Save(_ context.Context, r model.Reservation) error {
	if err := m.s.fail("Reservations.Save"); err != nil {
		return err
	}
	m.s.PutReservation(r)
	return nil
}

func (m memReservations) Delete(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.reservations[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.s.reservations, id)
	return nil
}
