package services

import (
	"context"
	"fmt"
	"net/url"

	"github.com/ispcompare/tariff-agent/internal/agent"
	"github.com/ispcompare/tariff-agent/internal/apiclient"
)

// Reviews exposes the provider review endpoints.
type Reviews struct {
	client *apiclient.Client
}

// NewReviews constructs a Reviews service.
func NewReviews(client *apiclient.Client) *Reviews {
	return &Reviews{client: client}
}

// Create posts a new review for a provider.
func (s *Reviews) Create(ctx context.Context, providerID string, review agent.ReviewCreate) (agent.Review, error) {
	var created agent.Review
	path := fmt.Sprintf("/providers/%s/reviews", url.PathEscape(providerID))
	if err := s.client.Post(ctx, path, review, &created); err != nil {
		return agent.Review{}, err
	}
	return created, nil
}

// ForProvider returns a provider's reviews page.
func (s *Reviews) ForProvider(ctx context.Context, providerID string, limit, offset int) ([]agent.Review, error) {
	var reviews []agent.Review
	path := fmt.Sprintf("/providers/%s/reviews", url.PathEscape(providerID))
	if err := s.client.Get(ctx, path, pageQuery(limit, offset), &reviews); err != nil {
		return nil, err
	}
	return reviews, nil
}

// Get returns one review by ID.
func (s *Reviews) Get(ctx context.Context, reviewID string) (agent.Review, error) {
	var review agent.Review
	path := fmt.Sprintf("/reviews/%s", url.PathEscape(reviewID))
	if err := s.client.Get(ctx, path, nil, &review); err != nil {
		return agent.Review{}, err
	}
	return review, nil
}

// Update patches a review's rating and/or comment.
func (s *Reviews) Update(ctx context.Context, reviewID string, update agent.ReviewUpdate) (agent.Review, error) {
	var updated agent.Review
	path := fmt.Sprintf("/reviews/%s", url.PathEscape(reviewID))
	if err := s.client.Patch(ctx, path, update, &updated); err != nil {
		return agent.Review{}, err
	}
	return updated, nil
}

// Delete removes a review.
func (s *Reviews) Delete(ctx context.Context, reviewID string) error {
	path := fmt.Sprintf("/reviews/%s", url.PathEscape(reviewID))
	return s.client.Delete(ctx, path)
}
