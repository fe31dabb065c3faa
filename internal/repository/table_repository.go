package repository

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/iliyamo/table-reservation/internal/model"
)

// TableRepo provides data access to the venue_tables table.
type TableRepo struct {
	db dbtx
}

// NewTableRepo returns a TableRepo running its statements on db, which may
// be a pool or a transaction.
func NewTableRepo(db dbtx) *TableRepo { return &TableRepo{db: db} }

const tableColumns = `id, venue_id, code, capacity, sector, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTable(s rowScanner) (model.Table, error) {
	var t model.Table
	var status string
	if err := s.Scan(&t.ID, &t.VenueID, &t.Code, &t.Capacity, &t.Sector, &status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return model.Table{}, err
	}
	t.Status = model.TableStatus(status)
	return t, nil
}

func (r *TableRepo) queryTables(ctx context.Context, q string, args ...any) ([]model.Table, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	out := make([]model.Table, 0)
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	return out, nil
}

// FindByID returns ErrNotFound when no table has the id.
func (r *TableRepo) FindByID(ctx context.Context, id string) (model.Table, error) {
	const q = `SELECT ` + tableColumns + ` FROM venue_tables WHERE id = ?`
	t, err := scanTable(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Table{}, ErrNotFound
		}
		return model.Table{}, translate(err)
	}
	return t, nil
}

// FindByVenue lists the venue's tables, inactive ones included, ordered by code.
func (r *TableRepo) FindByVenue(ctx context.Context, venueID string) ([]model.Table, error) {
	const q = `SELECT ` + tableColumns + ` FROM venue_tables WHERE venue_id = ? ORDER BY code`
	return r.queryTables(ctx, q, venueID)
}

// FindByStatus lists tables of every venue in the given status. The global
// scheduler tick uses it to collect FREE tables.
func (r *TableRepo) FindByStatus(ctx context.Context, status model.TableStatus) ([]model.Table, error) {
	const q = `SELECT ` + tableColumns + ` FROM venue_tables WHERE status = ? ORDER BY venue_id, code`
	return r.queryTables(ctx, q, string(status))
}

// LockByIDs selects the tables FOR UPDATE. It must run inside a
// transaction; on a plain pool the lock is released immediately.
func (r *TableRepo) LockByIDs(ctx context.Context, ids []string) ([]model.Table, error) {
	if len(ids) == 0 {
		return []model.Table{}, nil
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	placeholders := make([]string, 0, len(sorted))
	args := make([]any, 0, len(sorted))
	for _, id := range sorted {
		placeholders = append(placeholders, "?")
		args = append(args, id)
	}
	q := `SELECT ` + tableColumns + ` FROM venue_tables
	      WHERE id IN (` + strings.Join(placeholders, ",") + `)
	      ORDER BY id FOR UPDATE`
	return r.queryTables(ctx, q, args...)
}

// ExistsByVenueAndCode reports whether the venue already uses code.
func (r *TableRepo) ExistsByVenueAndCode(ctx context.Context, venueID, code string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM venue_tables WHERE venue_id = ? AND code = ?)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, q, venueID, code).Scan(&exists); err != nil {
		return false, translate(err)
	}
	return exists, nil
}

// Save upserts the table row.
func (r *TableRepo) Save(ctx context.Context, t model.Table) error {
	const q = `INSERT INTO venue_tables (id, venue_id, code, capacity, sector, status, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	           ON DUPLICATE KEY UPDATE code = VALUES(code), capacity = VALUES(capacity),
	               sector = VALUES(sector), status = VALUES(status), updated_at = VALUES(updated_at)`
	_, err := r.db.ExecContext(ctx, q,
		t.ID, t.VenueID, t.Code, t.Capacity, t.Sector, string(t.Status), t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	return translate(err)
}

// UpdateStatus sets the status column only. It returns ErrNotFound when the
// row does not exist.
func (r *TableRepo) UpdateStatus(ctx context.Context, id string, status model.TableStatus, at time.Time) error {
	const q = `UPDATE venue_tables SET status = ?, updated_at = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, string(status), at.UTC(), id)
	if err != nil {
		return translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the row permanently.
func (r *TableRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM venue_tables WHERE id = ?`, id)
	if err != nil {
		return translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
