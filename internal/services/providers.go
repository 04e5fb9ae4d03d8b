package services

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/ispcompare/tariff-agent/internal/agent"
	"github.com/ispcompare/tariff-agent/internal/apiclient"
)

// Providers exposes the provider catalogue endpoints.
type Providers struct {
	client *apiclient.Client
}

// NewProviders constructs a Providers service.
func NewProviders(client *apiclient.Client) *Providers {
	return &Providers{client: client}
}

// List returns the provider catalogue page.
func (s *Providers) List(ctx context.Context, limit, offset int) ([]agent.Provider, error) {
	var providers []agent.Provider
	if err := s.client.Get(ctx, "/providers", pageQuery(limit, offset), &providers); err != nil {
		return nil, err
	}
	return providers, nil
}

// Get returns one provider by ID.
func (s *Providers) Get(ctx context.Context, providerID string) (agent.Provider, error) {
	var provider agent.Provider
	path := fmt.Sprintf("/providers/%s", url.PathEscape(providerID))
	if err := s.client.Get(ctx, path, nil, &provider); err != nil {
		return agent.Provider{}, err
	}
	return provider, nil
}

// pageQuery builds the shared limit/offset pagination query.
func pageQuery(limit, offset int) url.Values {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	return q
}
