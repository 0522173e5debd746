package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/cybertron15/review-booster/internal/domain"
)

// ReviewRepository writes and reads the responses table through PostgREST.
type ReviewRepository struct {
	client *Client
}

// NewReviewRepository creates a PostgREST-backed review repository.
func NewReviewRepository(client *Client) *ReviewRepository {
	return &ReviewRepository{client: client}
}

type responseRow struct {
	BusinessID     string `json:"business_id"`
	Rating         int    `json:"rating"`
	Review         string `json:"review"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	GoogleReviewed bool   `json:"google_reviewed"`
}

// Create inserts a review with google_reviewed set to false.
func (r *ReviewRepository) Create(ctx context.Context, input domain.ReviewInput) error {
	rows := []responseRow{{
		BusinessID:     input.BusinessID,
		Rating:         input.Rating,
		Review:         input.Review,
		Name:           input.Name,
		Email:          input.Email,
		GoogleReviewed: false,
	}}

	req, err := r.client.NewRequest(ctx, http.MethodPost, "/rest/v1/responses", nil, rows)
	if err != nil {
		return err
	}
	req.Header.Set("Prefer", "return=minimal")

	if err := r.client.Send(ctx, req, nil); err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

// List returns reviews newest first. Row level security usually requires
// an admin access token on ctx (see WithAccessToken).
func (r *ReviewRepository) List(ctx context.Context) ([]domain.Review, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "created_at.desc")

	req, err := r.client.NewRequest(ctx, http.MethodGet, "/rest/v1/responses", q, nil)
	if err != nil {
		return nil, err
	}

	var reviews []domain.Review
	if err := r.client.Send(ctx, req, &reviews); err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	if reviews == nil {
		reviews = []domain.Review{}
	}
	return reviews, nil
}
