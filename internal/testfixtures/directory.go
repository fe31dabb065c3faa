package testfixtures

import (
	"context"
	"strings"
	"sync"

	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/repository"
)

// Directory is an in-memory user and membership store.
type Directory struct {
	mu      sync.RWMutex
	users   map[string]model.User
	members map[string]model.Member
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{users: map[string]model.User{}, members: map[string]model.Member{}}
}

// AddMember registers the user (if new) and their membership of venueID.
func (d *Directory) AddMember(venueID string, u model.User, role model.MemberRole, status model.MemberStatus) model.Member {
	d.mu.Lock()
	defer d.mu.Unlock()
	email := strings.ToLower(u.Email)
	u.Email = email
	d.users[email] = u
	m := model.Member{VenueID: venueID, UserID: u.ID, Email: email, Name: u.Name, Role: role, Status: status}
	d.members[venueID+"|"+email] = m
	return m
}

// AddUser registers a user without any membership.
func (d *Directory) AddUser(u model.User) {
	d.mu.Lock()
	u.Email = strings.ToLower(u.Email)
	d.users[u.Email] = u
	d.mu.Unlock()
}

// FindByEmail implements repository.UserRepository.
func (d *Directory) FindByEmail(_ context.Context, email string) (model.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

// FindByVenueAndEmail implements repository.MembershipRepository.
func (d *Directory) FindByVenueAndEmail(_ context.Context, venueID, email string) (model.Member, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.members[venueID+"|"+strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return model.Member{}, repository.ErrNotFound
	}
	return m, nil
}
