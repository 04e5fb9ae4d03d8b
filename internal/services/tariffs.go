package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/ispcompare/tariff-agent/internal/agent"
	"github.com/ispcompare/tariff-agent/internal/apiclient"
)

// Comparison cardinality accepted by the server.
const (
	minComparisonTariffs = 2
	maxComparisonTariffs = 5
)

// ErrComparisonSize reports a comparison request outside the accepted
// cardinality. Checked before any request is sent.
var ErrComparisonSize = errors.New("invalid comparison size")

// Tariffs exposes the tariff catalogue, search, and comparison endpoints.
type Tariffs struct {
	client *apiclient.Client
}

// NewTariffs constructs a Tariffs service.
func NewTariffs(client *apiclient.Client) *Tariffs {
	return &Tariffs{client: client}
}

// List returns the tariff catalogue page.
func (s *Tariffs) List(ctx context.Context, limit, offset int) ([]agent.Tariff, error) {
	var tariffs []agent.Tariff
	if err := s.client.Get(ctx, "/tariffs", pageQuery(limit, offset), &tariffs); err != nil {
		return nil, err
	}
	return tariffs, nil
}

// ForProvider returns one provider's tariffs.
func (s *Tariffs) ForProvider(ctx context.Context, providerID string, limit, offset int) ([]agent.Tariff, error) {
	var tariffs []agent.Tariff
	path := fmt.Sprintf("/providers/%s/tariffs", url.PathEscape(providerID))
	if err := s.client.Get(ctx, path, pageQuery(limit, offset), &tariffs); err != nil {
		return nil, err
	}
	return tariffs, nil
}

// Search returns tariffs matching the filter set.
func (s *Tariffs) Search(ctx context.Context, params agent.TariffSearchParams) ([]agent.Tariff, error) {
	var tariffs []agent.Tariff
	if err := s.client.Get(ctx, "/tariffs/search", searchQuery(params), &tariffs); err != nil {
		return nil, err
	}
	return tariffs, nil
}

// Get returns one tariff by ID.
func (s *Tariffs) Get(ctx context.Context, tariffID string) (agent.Tariff, error) {
	var tariff agent.Tariff
	path := fmt.Sprintf("/tariffs/%s", url.PathEscape(tariffID))
	if err := s.client.Get(ctx, path, nil, &tariff); err != nil {
		return agent.Tariff{}, err
	}
	return tariff, nil
}

// Compare requests a side-by-side comparison of 2 to 5 tariffs.
func (s *Tariffs) Compare(ctx context.Context, tariffIDs []string) (agent.ComparisonResult, error) {
	if len(tariffIDs) < minComparisonTariffs || len(tariffIDs) > maxComparisonTariffs {
		return agent.ComparisonResult{}, fmt.Errorf(
			"%w: between %d and %d tariffs required, got %d",
			ErrComparisonSize, minComparisonTariffs, maxComparisonTariffs, len(tariffIDs),
		)
	}
	var result agent.ComparisonResult
	body := map[string][]string{"tariff_ids": tariffIDs}
	if err := s.client.Post(ctx, "/tariffs/comparison", body, &result); err != nil {
		return agent.ComparisonResult{}, err
	}
	return result, nil
}

// searchQuery encodes only the filters the caller actually set.
func searchQuery(params agent.TariffSearchParams) url.Values {
	q := url.Values{}
	setFloat := func(key string, v *float64) {
		if v != nil {
			q.Set(key, strconv.FormatFloat(*v, 'f', -1, 64))
		}
	}
	setInt := func(key string, v *int) {
		if v != nil {
			q.Set(key, strconv.Itoa(*v))
		}
	}
	setBool := func(key string, v *bool) {
		if v != nil {
			q.Set(key, strconv.FormatBool(*v))
		}
	}
	setFloat("min_price", params.MinPrice)
	setFloat("max_price", params.MaxPrice)
	setInt("min_speed", params.MinSpeed)
	setInt("max_speed", params.MaxSpeed)
	setBool("has_tv", params.HasTV)
	setBool("has_phone", params.HasPhone)
	setInt("limit", params.Limit)
	setInt("offset", params.Offset)
	return q
}
