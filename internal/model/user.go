package model

import "time"

// User is a staff account as stored in the `users` table. Credentials are
// owned by the identity provider and are not kept here.
type User struct {
	ID        string    // users.id
	Email     string    // users.email
	Name      string    // users.name
	CreatedAt time.Time // users.created_at
}

// MemberRole is the role of a user inside one venue.
type MemberRole string

const (
	RoleOwner   MemberRole = "OWNER"
	RoleManager MemberRole = "MANAGER"
	RoleStaff   MemberRole = "STAFF"
)

// MemberStatus is the state of a venue membership.
type MemberStatus string

const (
	MemberActive    MemberStatus = "ACTIVE"
	MemberInvited   MemberStatus = "INVITED"
	MemberSuspended MemberStatus = "SUSPENDED"
)

// Member links a user to a venue with a role (`venue_members` table).
type Member struct {
	VenueID string       // venue_members.venue_id
	UserID  string       // venue_members.user_id
	Email   string       // users.email
	Name    string       // users.name
	Role    MemberRole   // venue_members.role
	Status  MemberStatus // venue_members.status
}

// CanManageTables reports whether the member may create, edit or delete tables.
func (m Member) CanManageTables() bool {
	return m.Role == RoleOwner || m.Role == RoleManager
}
