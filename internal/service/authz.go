package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/repository"
)

// Authorizer checks that the caller is an active member of the venue.
type Authorizer interface {
	EnsureActiveMember(ctx context.Context, email, venueID string) (model.Member, error)
}

// MembershipAuthorizer resolves the caller through the user directory and
// then looks up their membership of the venue.
type MembershipAuthorizer struct {
	users   repository.UserRepository
	members repository.MembershipRepository
}

// NewMembershipAuthorizer builds an Authorizer over the two directories.
func NewMembershipAuthorizer(users repository.UserRepository, members repository.MembershipRepository) *MembershipAuthorizer {
	return &MembershipAuthorizer{users: users, members: members}
}

// EnsureActiveMember returns the membership when it exists and is ACTIVE.
// Unknown users are NotFound; a missing or inactive membership is Forbidden.
func (a *MembershipAuthorizer) EnsureActiveMember(ctx context.Context, email, venueID string) (model.Member, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return model.Member{}, forbiddenf("caller identity is missing")
	}
	if _, err := a.users.FindByEmail(ctx, email); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Member{}, notFoundf("user %s not found", email)
		}
		return model.Member{}, fmt.Errorf("resolve user %s: %w", email, err)
	}
	m, err := a.members.FindByVenueAndEmail(ctx, venueID, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Member{}, forbiddenf("user %s is not a member of venue %s", email, venueID)
		}
		return model.Member{}, fmt.Errorf("resolve membership of %s in venue %s: %w", email, venueID, err)
	}
	if m.Status != model.MemberActive {
		return model.Member{}, forbiddenf("membership of %s in venue %s is %s", email, venueID, m.Status)
	}
	return m, nil
}
