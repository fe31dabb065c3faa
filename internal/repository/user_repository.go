package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/table-reservation/internal/model"
)

// UserRepo reads the users and venue_members tables.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// FindByEmail fetches a user by normalized email.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,email,name,created_at FROM users WHERE email=? LIMIT 1",
		email).Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	return u, translate(err)
}

// FindByVenueAndEmail fetches the membership of the user with email in the venue.
func (r *UserRepo) FindByVenueAndEmail(ctx context.Context, venueID, email string) (model.Member, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	const q = `SELECT m.venue_id, u.id, u.email, u.name, m.role, m.status
	           FROM venue_members m
	           JOIN users u ON u.id = m.user_id
	           WHERE m.venue_id = ? AND u.email = ?
	           LIMIT 1`
	var m model.Member
	var role, status string
	err := r.DB.QueryRowContext(ctx, q, venueID, email).Scan(&m.VenueID, &m.UserID, &m.Email, &m.Name, &role, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Member{}, ErrNotFound
	}
	if err != nil {
		return model.Member{}, translate(err)
	}
	m.Role = model.MemberRole(role)
	m.Status = model.MemberStatus(status)
	return m, nil
}
