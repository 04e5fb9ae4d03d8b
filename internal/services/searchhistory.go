package services

import (
	"context"
	"fmt"
	"net/url"

	"github.com/ispcompare/tariff-agent/internal/agent"
	"github.com/ispcompare/tariff-agent/internal/apiclient"
)

// SearchHistory exposes the saved-search endpoints.
type SearchHistory struct {
	client *apiclient.Client
}

// NewSearchHistory constructs a SearchHistory service.
func NewSearchHistory(client *apiclient.Client) *SearchHistory {
	return &SearchHistory{client: client}
}

// List returns the user's saved searches.
func (s *SearchHistory) List(ctx context.Context) ([]agent.SearchHistoryEntry, error) {
	var entries []agent.SearchHistoryEntry
	if err := s.client.Get(ctx, "/search-history", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Latest returns the most recent saved search, or nil when there is none
// (the server responds with a JSON null).
func (s *SearchHistory) Latest(ctx context.Context) (*agent.SearchHistoryEntry, error) {
	var entry *agent.SearchHistoryEntry
	if err := s.client.Get(ctx, "/search-history/latest", nil, &entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Delete removes one saved search.
func (s *SearchHistory) Delete(ctx context.Context, entryID string) error {
	path := fmt.Sprintf("/search-history/%s", url.PathEscape(entryID))
	return s.client.Delete(ctx, path)
}

// Clear removes the entire search history.
func (s *SearchHistory) Clear(ctx context.Context) error {
	return s.client.Delete(ctx, "/search-history")
}
