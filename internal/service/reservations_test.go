package service

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/queue"
	"github.com/iliyamo/table-reservation/internal/testfixtures"
)

func TestCreateImminentReservationReservesTable(t *testing.T) {
	h := newHarness(t)
	table := h.table(testfixtures.WithCode("T"), testfixtures.WithCapacity(4))

	res, err := h.create(h.request(10*time.Minute, time.Hour, 4, table))
	require.NoError(t, err)
	assert.Equal(t, model.ReservationPending, res.Status)
	assert.Equal(t, "u-staff", res.CreatedBy)
	assert.Equal(t, model.TableReserved, h.status(table), "targeted trigger reserves the table immediately")

	stored, ok := h.store.Reservation(res.ID)
	require.True(t, ok)
	assert.Equal(t, []string{table.ID}, stored.TableIDs)
	assert.Equal(t, []string{queue.EventReservationCreated}, h.events.Types())
}

func TestCreateDistantReservationLeavesTableFree(t *testing.T) {
	h := newHarness(t)
	table := h.table()

	h.mustCreate(3*time.Hour, 4*time.Hour, 2, table)
	assert.Equal(t, model.TableFree, h.status(table))
}

func TestCreateConflictNamesTable(t *testing.T) {
	h := newHarness(t)
	table := h.table(testfixtures.WithCode("T"), testfixtures.WithCapacity(4))
	first := h.mustCreate(10*time.Minute, time.Hour, 4, table)

	_, err := h.create(h.request(40*time.Minute, 2*time.Hour, 2, table))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)

	var ce *ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "T", ce.TableCode)
	assert.Equal(t, first.ID, ce.ReservationID)
	assert.Contains(t, err.Error(), "table T")
	assert.Equal(t, 1, h.store.ReservationCount())
}

func TestCreateBufferBoundaries(t *testing.T) {
	// existing [+3h, +4h)
	cases := []struct {
		name       string
		start, end time.Duration
		conflict   bool
	}{
		{"front buffer ends exactly at existing end", 4*time.Hour + 20*time.Minute, 5 * time.Hour, false},
		{"front buffer reaches into existing", 4*time.Hour + 19*time.Minute, 5 * time.Hour, true},
		{"ends exactly where existing front buffer begins", time.Hour, 2*time.Hour + 40*time.Minute, false},
		{"reaches into existing front buffer", time.Hour, 2*time.Hour + 41*time.Minute, true},
		{"own back buffer clear but existing front buffer hit", time.Hour, 2*time.Hour + 55*time.Minute, true},
		{"inside", 3*time.Hour + 10*time.Minute, 3*time.Hour + 20*time.Minute, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			table := h.table()
			h.mustCreate(3*time.Hour, 4*time.Hour, 2, table)

			_, err := h.create(h.request(tc.start, tc.end, 2, table))
			if tc.conflict {
				assert.ErrorIs(t, err, ErrConflict)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestCreateConflictDoesNotDependOnBookingOrder(t *testing.T) {
	late := [2]time.Duration{10 * time.Hour, 11 * time.Hour}
	early := [2]time.Duration{8*time.Hour + 40*time.Minute, 9*time.Hour + 55*time.Minute}

	for _, order := range [][2][2]time.Duration{{late, early}, {early, late}} {
		h := newHarness(t)
		table := h.table(testfixtures.WithCode("T2"))
		first := h.mustCreate(order[0][0], order[0][1], 2, table)

		_, err := h.create(h.request(order[1][0], order[1][1], 2, table))
		require.Error(t, err, "first booked at %s", order[0][0])
		assert.ErrorIs(t, err, ErrConflict)
		var ce *ConflictError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, first.ID, ce.ReservationID)
		assert.Equal(t, 1, h.store.ReservationCount())
	}
}

func TestCreateIgnoresTerminalReservations(t *testing.T) {
	h := newHarness(t)
	table := h.table()
	start := h.now().Add(2 * time.Hour)
	h.store.PutReservation(testfixtures.NewReservation(venueID, start, start.Add(time.Hour), []string{table.ID},
		testfixtures.WithReservationStatus(model.ReservationCancelled)))

	_, err := h.create(h.request(2*time.Hour, 3*time.Hour, 2, table))
	assert.NoError(t, err)
}

func TestCreateCapacity(t *testing.T) {
	h := newHarness(t)
	table := h.table(testfixtures.WithCode("T"), testfixtures.WithCapacity(4))

	req := h.request(2*time.Hour, 3*time.Hour, 6, table)
	_, err := h.create(req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "capacity 4, required 6")
	assert.Contains(t, err.Error(), "T")

	req.Forced = true
	res, err := h.create(req)
	require.NoError(t, err)
	assert.True(t, res.Forced)
}

func TestCreateCapacitySumsAcrossTables(t *testing.T) {
	h := newHarness(t)
	a := h.table(testfixtures.WithCapacity(4))
	b := h.table(testfixtures.WithCapacity(2))

	_, err := h.create(h.request(2*time.Hour, 3*time.Hour, 6, a, b))
	assert.NoError(t, err)
}

func TestCreateIsAllOrNothing(t *testing.T) {
	h := newHarness(t)
	free := h.table()
	busy := h.table()
	h.mustCreate(2*time.Hour, 3*time.Hour, 2, busy)

	_, err := h.create(h.request(10*time.Minute, 3*time.Hour, 2, free, busy))
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 1, h.store.ReservationCount())
	assert.Equal(t, model.TableFree, h.status(free), "no partial assignment")
}

func TestCreateTemporalValidation(t *testing.T) {
	h := newHarness(t)
	table := h.table()

	cases := []struct {
		name       string
		start, end time.Duration
		msg        string
	}{
		{"past start", -time.Minute, time.Hour, "in the past"},
		{"start equals end", time.Hour, time.Hour, "must be before end"},
		{"end before start", 2 * time.Hour, time.Hour, "must be before end"},
		{"too long", time.Hour, 13*time.Hour + time.Second, "maximum"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.create(h.request(tc.start, tc.end, 2, table))
			require.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), tc.msg)
		})
	}

	_, err := h.create(h.request(time.Hour, 13*time.Hour, 2, table))
	assert.NoError(t, err, "exactly twelve hours is allowed")
}

func TestCreateRequestValidation(t *testing.T) {
	h := newHarness(t)
	table := h.table()

	req := h.request(time.Hour, 2*time.Hour, 0, table)
	req.CustomerName = ""
	_, err := h.create(req)
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "customer_name is required")
	assert.Contains(t, err.Error(), "party_size must be at least 1")

	req = h.request(time.Hour, 2*time.Hour, 2, table, table)
	_, err = h.create(req)
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "table_ids must not contain duplicates")

	req = h.request(time.Hour, 2*time.Hour, 2)
	_, err = h.create(req)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateRejectsForeignAndInactiveTables(t *testing.T) {
	h := newHarness(t)
	foreign := testfixtures.NewTable("venue-2")
	h.store.PutTable(foreign)
	inactive := h.table(testfixtures.WithStatus(model.TableInactive))

	_, err := h.create(h.request(time.Hour, 2*time.Hour, 2, foreign))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = h.create(CreateReservationRequest{
		TableIDs: []string{"missing"}, CustomerName: "x", PartySize: 1,
		StartsAt: h.now().Add(time.Hour), EndsAt: h.now().Add(2 * time.Hour),
	})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = h.create(h.request(time.Hour, 2*time.Hour, 2, inactive))
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), inactive.Code)
}

func TestCreateRequiresActiveMembership(t *testing.T) {
	h := newHarness(t)
	table := h.table()
	h.dir.AddMember(venueID, model.User{ID: "u-s", Email: "suspended@example.com"}, model.RoleStaff, model.MemberSuspended)
	h.dir.AddUser(model.User{ID: "u-o", Email: "outsider@example.com"})

	req := h.request(time.Hour, 2*time.Hour, 2, table)
	_, err := h.reservations.Create(h.ctx, Caller{Email: "suspended@example.com"}, venueID, req)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = h.reservations.Create(h.ctx, Caller{Email: "outsider@example.com"}, venueID, req)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = h.reservations.Create(h.ctx, Caller{Email: "ghost@example.com"}, venueID, req)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Zero(t, h.store.ReservationCount())
}

func TestCreateInfrastructureFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	table := h.table()
	boom := errors.New("connection reset")
	h.store.FailNext("Tables.UpdateStatus", boom)

	_, err := h.create(h.request(10*time.Minute, time.Hour, 2, table))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "infrastructure", ErrorKind(err))
	assert.Zero(t, h.store.ReservationCount(), "reservation write rolled back with the failed promotion")
	assert.Equal(t, model.TableFree, h.status(table))
	assert.Empty(t, h.events.Events())
}

func TestConcurrentCreatesOnlyOneWins(t *testing.T) {
	h := newHarness(t)
	table := h.table()
	req := h.request(2*time.Hour, 3*time.Hour, 2, table)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.create(req)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrConflict)
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, h.store.ReservationCount())
}

func TestActiveReservationsNeverOverlap(t *testing.T) {
	h := newHarness(t)
	tables := []model.Table{h.table(), h.table(), h.table()}
	rng := rand.New(rand.NewSource(42))

	var created []model.Reservation
	for i := 0; i < 200; i++ {
		start := time.Duration(rng.Intn(48*4)) * 15 * time.Minute
		length := time.Duration(1+rng.Intn(12)) * 15 * time.Minute
		picked := []model.Table{tables[rng.Intn(len(tables))]}
		if rng.Intn(3) == 0 {
			other := tables[rng.Intn(len(tables))]
			if other.ID != picked[0].ID {
				picked = append(picked, other)
			}
		}
		res, err := h.create(h.request(start, start+length, 1, picked...))
		if err != nil {
			require.ErrorIs(t, err, ErrConflict)
			continue
		}
		created = append(created, res)
	}
	require.NotEmpty(t, created)

	for i, a := range created {
		for _, b := range created[i+1:] {
			for _, id := range a.TableIDs {
				if !b.HasTable(id) {
					continue
				}
				assert.False(t, model.BufferedWindow(a.StartsAt, a.EndsAt).Overlaps(b.Interval()), "%s and %s clash on %s", a.ID, b.ID, id)
				assert.False(t, model.BufferedWindow(b.StartsAt, b.EndsAt).Overlaps(a.Interval()), "%s and %s clash on %s", b.ID, a.ID, id)
			}
		}
	}
}

func TestUpdateRoundTrip(t *testing.T) {
	h := newHarness(t)
	table := h.table()
	created := h.mustCreate(2*time.Hour, 3*time.Hour, 2, table)
	h.clock.Advance(time.Minute)

	name, contact, doc, notes := created.CustomerName, created.Contact, created.Document, created.Notes
	party, forced := created.PartySize, created.Forced
	start, end := created.StartsAt, created.EndsAt
	updated, err := h.reservations.Update(h.ctx, h.staff, venueID, created.ID, UpdateReservationRequest{
		TableIDs: created.TableIDs, CustomerName: &name, Contact: &contact, Document: &doc,
		StartsAt: &start, EndsAt: &end, PartySize: &party, Forced: &forced, Notes: &notes,
	})
	require.NoError(t, err)

	read, ok := h.store.Reservation(created.ID)
	require.True(t, ok)
	assert.Equal(t, updated, read)
	assert.True(t, read.UpdatedAt.After(created.UpdatedAt))

	read.UpdatedAt = created.UpdatedAt
	assert.Equal(t, created, read)
}

func TestUpdateExcludesItself(t *testing.T) {
	h := newHarness(t)
	table := h.table()
	res := h.mustCreate(2*time.Hour, 3*time.Hour, 2, table)

	start := res.StartsAt.Add(10 * time.Minute)
	end := res.EndsAt.Add(10 * time.Minute)
	updated, err := h.reservations.Update(h.ctx, h.staff, venueID, res.ID, UpdateReservationRequest{StartsAt: &start, EndsAt: &end})
	require.NoError(t, err)
	assert.Equal(t, start, updated.StartsAt)
}

func TestUpdateDetectsConflictWithOthers(t *testing.T) {
	h := newHarness(t)
	table := h.table()
	h.mustCreate(4*time.Hour, 5*time.Hour, 2, table)
	res := h.mustCreate(time.Hour, 2*time.Hour, 2, table)

	// ends inside the preparation buffer before the reservation at 4h
	end := h.now().Add(3*time.Hour + 56*time.Minute)
	_, err := h.reservations.Update(h.ctx, h.staff, venueID, res.ID, UpdateReservationRequest{EndsAt: &end})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestUpdateMovesTablesAndReleasesOldOne(t *testing.T) {
	h := newHarness(t)
	oldTable := h.table()
	newTable := h.table()
	res := h.mustCreate(20*time.Minute, time.Hour, 2, oldTable)
	require.Equal(t, model.TableReserved, h.status(oldTable))

	_, err := h.reservations.Update(h.ctx, h.staff, venueID, res.ID, UpdateReservationRequest{TableIDs: []string{newTable.ID}})
	require.NoError(t, err)
	assert.Equal(t, model.TableFree, h.status(oldTable), "dropped table released")
	assert.Equal(t, model.TableReserved, h.status(newTable), "scheduler claims the new table for the imminent start")
}

func TestUpdateDoesNotReserveDistantNewTable(t *testing.T) {
	h := newHarness(t)
	oldTable := h.table()
	newTable := h.table()
	res := h.mustCreate(3*time.Hour, 4*time.Hour, 2, oldTable)

	_, err := h.reservations.Update(h.ctx, h.staff, venueID, res.ID, UpdateReservationRequest{TableIDs: []string{newTable.ID}})
	require.NoError(t, err)
	assert.Equal(t, model.TableFree, h.status(newTable))
}

func TestUpdateKeepsTableClaimedByAnotherReservation(t *testing.T) {
	h := newHarness(t)
	shared := h.table()
	other := h.table()
	// a reservation claiming shared inside the lock window
	h.mustCreate(30*time.Minute, time.Hour, 2, shared)
	res := h.mustCreate(3*time.Hour, 4*time.Hour, 2, shared)
	require.Equal(t, model.TableReserved, h.status(shared))

	_, err := h.reservations.Update(h.ctx, h.staff, venueID, res.ID, UpdateReservationRequest{TableIDs: []string{other.ID}})
	require.NoError(t, err)
	assert.Equal(t, model.TableReserved, h.status(shared))
}

func TestUpdatePostponingReleasesKeptTable(t *testing.T) {
	h := newHarness(t)
	table := h.table()
	res := h.mustCreate(30*time.Minute, time.Hour, 2, table)
	require.Equal(t, model.TableReserved, h.status(table))

	start := h.now().Add(3 * time.Hour)
	end := h.now().Add(4 * time.Hour)
	_, err := h.reservations.Update(h.ctx, h.staff, venueID, res.ID, UpdateReservationRequest{StartsAt: &start, EndsAt: &end})
	require.NoError(t, err)
	assert.Equal(t, model.TableFree, h.status(table))
}

func TestUpdateRechecksCapacity(t *testing.T) {
	h := newHarness(t)
	table := h.table(testfixtures.WithCapacity(4))
	res := h.mustCreate(2*time.Hour, 3*time.Hour, 4, table)

	party := 5
	_, err := h.reservations.Update(h.ctx, h.staff, venueID, res.ID, UpdateReservationRequest{PartySize: &party})
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "capacity 4, required 5")
}

func TestUpdateOnlyWhilePending(t *testing.T) {
	h := newHarness(t)
	table := h.table()
	res := h.mustCreate(10*time.Minute, time.Hour, 2, table)
	_, err := h.reservations.Start(h.ctx, h.staff, venueID, res.ID)
	require.NoError(t, err)

	name := "Grace"
	_, err = h.reservations.Update(h.ctx, h.staff, venueID, res.ID, UpdateReservationRequest{CustomerName: &name})
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), res.ID)
}

func TestUpdateUnknownReservation(t *testing.T) {
	h := newHarness(t)
	_, err := h.reservations.Update(h.ctx, h.staff, venueID, "nope", UpdateReservationRequest{})
	assert.ErrorIs(t, err, ErrNotFound)
}
