package services

import (
	"context"
	"errors"

	"github.com/ispcompare/tariff-agent/internal/agent"
	"github.com/ispcompare/tariff-agent/internal/apiclient"
	"github.com/ispcompare/tariff-agent/internal/credentials"
)

// Auth handles authentication against the platform and keeps the
// credential holder in sync with every token the server hands out.
type Auth struct {
	client *apiclient.Client
	creds  *credentials.Holder
}

// NewAuth constructs an Auth service.
func NewAuth(client *apiclient.Client, creds *credentials.Holder) *Auth {
	return &Auth{client: client, creds: creds}
}

// Login authenticates with username/password and stores the returned
// credential.
func (s *Auth) Login(ctx context.Context, username, password string) (agent.TokenResponse, error) {
	var tok agent.TokenResponse
	err := s.client.Post(ctx, "/auth/login", agent.LoginRequest{
		Username: username,
		Password: password,
	}, &tok)
	if err != nil {
		return agent.TokenResponse{}, err
	}
	if err := s.creds.Set(ctx, tok.AccessToken); err != nil {
		return agent.TokenResponse{}, err
	}
	return tok, nil
}

// Register creates an account and stores the returned credential.
func (s *Auth) Register(ctx context.Context, req agent.RegisterRequest) (agent.TokenResponse, error) {
	var tok agent.TokenResponse
	if err := s.client.Post(ctx, "/auth/register", req, &tok); err != nil {
		return agent.TokenResponse{}, err
	}
	if err := s.creds.Set(ctx, tok.AccessToken); err != nil {
		return agent.TokenResponse{}, err
	}
	return tok, nil
}

// Logout tells the server to revoke the session and always discards the
// local credential, whether or not the call succeeded.
func (s *Auth) Logout(ctx context.Context) (agent.MessageResponse, error) {
	var msg agent.MessageResponse
	callErr := s.client.Post(ctx, "/auth/logout", nil, &msg)
	clearErr := s.creds.Clear(ctx)
	if callErr != nil {
		return agent.MessageResponse{}, errors.Join(callErr, clearErr)
	}
	return msg, clearErr
}

// Refresh forces a credential rotation and stores the result. The
// client also refreshes transparently on 401; this entry point exists
// for callers that want to rotate proactively.
func (s *Auth) Refresh(ctx context.Context) (agent.TokenResponse, error) {
	var tok agent.TokenResponse
	if err := s.client.Post(ctx, "/auth/refresh", nil, &tok); err != nil {
		return agent.TokenResponse{}, err
	}
	if err := s.creds.Set(ctx, tok.AccessToken); err != nil {
		return agent.TokenResponse{}, err
	}
	return tok, nil
}

// IsAuthenticated reports whether a credential is currently stored.
func (s *Auth) IsAuthenticated(ctx context.Context) (bool, error) {
	token, err := s.creds.Token(ctx)
	if err != nil {
		return false, err
	}
	return token != "", nil
}
