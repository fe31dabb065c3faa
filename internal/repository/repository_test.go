package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/table-reservation/internal/model"
)

var testNow = time.Date(2026, 5, 10, 18, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(db), mock
}

var tableCols = []string{"id", "venue_id", "code", "capacity", "sector", "status", "created_at", "updated_at"}

var reservationCols = []string{"id", "venue_id", "customer_name", "contact", "document", "starts_at", "ends_at",
	"party_size", "status", "forced", "created_by", "notes", "created_at", "updated_at"}

func TestTableRepo_FindByIDNotFound(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM venue_tables WHERE id = ?")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(tableCols))

	_, err := store.Repositories().Tables.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTableRepo_LockByIDsSortsAndLocks(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery(`WHERE id IN \(\?,\?\)\s+ORDER BY id FOR UPDATE`).
		WithArgs("t-a", "t-b").
		WillReturnRows(sqlmock.NewRows(tableCols).
			AddRow("t-a", "v1", "A1", 2, "bar", "FREE", testNow, testNow).
			AddRow("t-b", "v1", "B1", 4, "terrace", "RESERVED", testNow, testNow))

	tables, err := store.Repositories().Tables.LockByIDs(context.Background(), []string{"t-b", "t-a"})
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, model.TableFree, tables[0].Status)
	assert.Equal(t, model.TableReserved, tables[1].Status)
	assert.Equal(t, 4, tables[1].Capacity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTableRepo_UpdateStatusMissingRow(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE venue_tables SET status = ?")).
		WithArgs("OCCUPIED", sqlmock.AnyArg(), "t-x").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Repositories().Tables.UpdateStatus(context.Background(), "t-x", model.TableOccupied, testNow)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReservationRepo_FindOverlappingLoadsTables(t *testing.T) {
	store, mock := newMock(t)
	start := testNow.Add(time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("JOIN reservation_tables rt ON rt.reservation_id = r.id")).
		WithArgs("t-1", "PENDING", "IN_PROGRESS", sqlmock.AnyArg(), sqlmock.AnyArg(), "r-self").
		WillReturnRows(sqlmock.NewRows(reservationCols).
			AddRow("r-1", "v1", "Ada", "555", "DOC1", start, start.Add(time.Hour), 4, "PENDING", false, "u1", "", testNow, testNow))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT reservation_id, table_id FROM reservation_tables")).
		WithArgs("r-1").
		WillReturnRows(sqlmock.NewRows([]string{"reservation_id", "table_id"}).
			AddRow("r-1", "t-1").
			AddRow("r-1", "t-2"))

	list, err := store.Repositories().Reservations.FindOverlappingForTable(context.Background(), "t-1",
		start.Add(-20*time.Minute), start.Add(65*time.Minute), "r-self")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []string{"t-1", "t-2"}, list[0].TableIDs)
	assert.Equal(t, model.ReservationPending, list[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepo_FindByIDNotFound(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM reservations r WHERE r.id = ?")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(reservationCols))

	_, err := store.Repositories().Reservations.FindByID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReservationRepo_SaveRewritesTables(t *testing.T) {
	store, mock := newMock(t)
	res := model.Reservation{
		ID: "r-1", VenueID: "v1", TableIDs: []string{"t-1", "t-2"},
		CustomerName: "Ada", StartsAt: testNow, EndsAt: testNow.Add(time.Hour),
		PartySize: 6, Status: model.ReservationPending, CreatedBy: "u1",
		CreatedAt: testNow, UpdatedAt: testNow,
	}
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reservations")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM reservation_tables WHERE reservation_id = ?")).
		WithArgs("r-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reservation_tables (reservation_id, table_id) VALUES (?, ?),(?, ?)")).
		WithArgs("r-1", "t-1", "r-1", "t-2").
		WillReturnResult(sqlmock.NewResult(2, 2))
	mock.ExpectCommit()

	err := store.InTx(context.Background(), func(r Repositories) error {
		return r.Reservations.Save(context.Background(), res)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_InTxRollsBackOnError(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := store.InTx(context.Background(), func(Repositories) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTranslateLockErrors(t *testing.T) {
	deadlock := &mysql.MySQLError{Number: 1213, Message: "Deadlock found"}
	assert.ErrorIs(t, translate(deadlock), ErrLockConflict)

	timeout := &mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"}
	assert.ErrorIs(t, translate(timeout), ErrLockConflict)

	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
	assert.ErrorIs(t, translate(dup), ErrDuplicate)

	other := errors.New("connection refused")
	assert.Equal(t, other, translate(other))
}

func TestUserRepo_FindByVenueAndEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM venue_members m")).
		WithArgs("v1", "staff@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"venue_id", "id", "email", "name", "role", "status"}).
			AddRow("v1", "u1", "staff@example.com", "Sam", "STAFF", "ACTIVE"))

	m, err := NewUserRepo(db).FindByVenueAndEmail(context.Background(), "v1", "  Staff@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, model.RoleStaff, m.Role)
	assert.Equal(t, model.MemberActive, m.Status)
	assert.Equal(t, "u1", m.UserID)
}
