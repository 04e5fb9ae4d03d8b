package services

import (
	"context"

	"github.com/ispcompare/tariff-agent/internal/agent"
	"github.com/ispcompare/tariff-agent/internal/apiclient"
)

// Users exposes the profile endpoints.
type Users struct {
	client *apiclient.Client
}

// NewUsers constructs a Users service.
func NewUsers(client *apiclient.Client) *Users {
	return &Users{client: client}
}

// Profile fetches the authenticated user's profile.
func (s *Users) Profile(ctx context.Context) (agent.UserProfile, error) {
	var profile agent.UserProfile
	if err := s.client.Get(ctx, "/users/me", nil, &profile); err != nil {
		return agent.UserProfile{}, err
	}
	return profile, nil
}

// UpdateProfile patches the mutable profile fields.
func (s *Users) UpdateProfile(ctx context.Context, update agent.ProfileUpdate) (agent.UserProfile, error) {
	var profile agent.UserProfile
	if err := s.client.Patch(ctx, "/users/profile", update, &profile); err != nil {
		return agent.UserProfile{}, err
	}
	return profile, nil
}

// ChangePassword rotates the account password.
func (s *Users) ChangePassword(ctx context.Context, current, next string) (agent.MessageResponse, error) {
	var msg agent.MessageResponse
	err := s.client.Post(ctx, "/users/change-password", agent.PasswordChange{
		CurrentPassword: current,
		NewPassword:     next,
	}, &msg)
	if err != nil {
		return agent.MessageResponse{}, err
	}
	return msg, nil
}
