package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/cybertron15/review-booster/internal/domain"
	apperrors "github.com/cybertron15/review-booster/pkg/errors"
	"github.com/cybertron15/review-booster/pkg/httpclient"
)

// PostgREST reports a malformed uuid literal with this SQLSTATE.
const invalidTextRepresentation = "22P02"

// BusinessRepository reads the businesses table through PostgREST.
type BusinessRepository struct {
	client *Client
}

// NewBusinessRepository creates a PostgREST-backed business repository.
func NewBusinessRepository(client *Client) *BusinessRepository {
	return &BusinessRepository{client: client}
}

// ListActive returns active businesses ordered by name.
func (r *BusinessRepository) ListActive(ctx context.Context) ([]domain.Business, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("active", "eq.true")
	q.Set("order", "name.asc")

	req, err := r.client.NewRequest(ctx, http.MethodGet, "/rest/v1/businesses", q, nil)
	if err != nil {
		return nil, err
	}

	var businesses []domain.Business
	if err := r.client.Send(ctx, req, &businesses); err != nil {
		return nil, fmt.Errorf("list businesses: %w", err)
	}
	if businesses == nil {
		businesses = []domain.Business{}
	}
	return businesses, nil
}

// GetActiveByID returns the active business with id. A missing row or an id
// the database cannot parse is reported as not found.
func (r *BusinessRepository) GetActiveByID(ctx context.Context, id string) (*domain.Business, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("id", "eq."+id)
	q.Set("active", "eq.true")
	q.Set("limit", "1")

	req, err := r.client.NewRequest(ctx, http.MethodGet, "/rest/v1/businesses", q, nil)
	if err != nil {
		return nil, err
	}

	var rows []domain.Business
	if err := r.client.Send(ctx, req, &rows); err != nil {
		if httpclient.DownstreamCode(err) == invalidTextRepresentation {
			return nil, apperrors.NotFound("business", id)
		}
		return nil, fmt.Errorf("get business %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, apperrors.NotFound("business", id)
	}
	return &rows[0], nil
}

// Ping issues the smallest possible businesses query.
func (r *BusinessRepository) Ping(ctx context.Context) error {
	q := url.Values{}
	q.Set("select", "id")
	q.Set("limit", "1")

	req, err := r.client.NewRequest(ctx, http.MethodGet, "/rest/v1/businesses", q, nil)
	if err != nil {
		return err
	}
	return r.client.Send(ctx, req, nil)
}
