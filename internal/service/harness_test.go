package service

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/table-reservation/internal/logging"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/testfixtures"
)

const venueID = "venue-1"

type harness struct {
	t            *testing.T
	ctx          context.Context
	store        *testfixtures.MemoryStore
	dir          *testfixtures.Directory
	clock        *testfixtures.Clock
	events       *testfixtures.Publisher
	scheduler    *Scheduler
	reservations *ReservationService
	tables       *TableService
	staff        Caller
	manager      Caller
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logging.Discard()
	h := &harness{
		t:       t,
		ctx:     context.Background(),
		store:   testfixtures.NewMemoryStore(),
		dir:     testfixtures.NewDirectory(),
		clock:   testfixtures.NewClock(time.Time{}),
		events:  &testfixtures.Publisher{},
		staff:   Caller{Email: "staff@example.com"},
		manager: Caller{Email: "manager@example.com"},
	}
	h.dir.AddMember(venueID, model.User{ID: "u-staff", Email: h.staff.Email, Name: "Sam"}, model.RoleStaff, model.MemberActive)
	h.dir.AddMember(venueID, model.User{ID: "u-manager", Email: h.manager.Email, Name: "Max"}, model.RoleManager, model.MemberActive)

	authz := NewMembershipAuthorizer(h.dir, h.dir)
	h.scheduler = NewScheduler(h.store, h.clock, log, SchedulerOptions{Interval: time.Second})
	h.reservations = NewReservationService(h.store, authz, h.scheduler, h.events, h.clock, log)
	h.tables = NewTableService(h.store, authz, h.scheduler, h.clock, log)
	return h
}

func testLogger() *logrus.Logger { return logging.Discard() }

func (h *harness) now() time.Time { return h.clock.Now() }

// table stores a FREE table of the test venue.
func (h *harness) table(opts ...testfixtures.TableOption) model.Table {
	t := testfixtures.NewTable(venueID, opts...)
	h.store.PutTable(t)
	return t
}

func (h *harness) create(req CreateReservationRequest) (model.Reservation, error) {
	return h.reservations.Create(h.ctx, h.staff, venueID, req)
}

// mustCreate books tables for [start, end) relative to now.
func (h *harness) mustCreate(start, end time.Duration, party int, tables ...model.Table) model.Reservation {
	h.t.Helper()
	res, err := h.create(h.request(start, end, party, tables...))
	require.NoError(h.t, err)
	return res
}

func (h *harness) request(start, end time.Duration, party int, tables ...model.Table) CreateReservationRequest {
	ids := make([]string, 0, len(tables))
	for _, t := range tables {
		ids = append(ids, t.ID)
	}
	return CreateReservationRequest{
		TableIDs:     ids,
		CustomerName: "Ada Lovelace",
		Contact:      "+1 555 0100",
		Document:     "DOC-1",
		StartsAt:     h.now().Add(start),
		EndsAt:       h.now().Add(end),
		PartySize:    party,
	}
}

func (h *harness) status(t model.Table) model.TableStatus {
	return h.store.TableStatus(t.ID)
}
