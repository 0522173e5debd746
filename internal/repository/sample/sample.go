// Package sample serves a fixed review dataset for demo dashboards.
package sample

import (
	"context"
	"time"

	"github.com/cybertron15/review-booster/internal/domain"
)

// ReviewSource returns a fixed list of reviews.
type ReviewSource struct {
	reviews []domain.Review
}

// NewReviewSource serves reviews, or the built-in demo set when none are
// given.
func NewReviewSource(reviews ...domain.Review) *ReviewSource {
	if len(reviews) == 0 {
		reviews = DemoReviews()
	}
	return &ReviewSource{reviews: reviews}
}

// List returns a copy of the dataset.
func (s *ReviewSource) List(context.Context) ([]domain.Review, error) {
	out := make([]domain.Review, len(s.reviews))
	copy(out, s.reviews)
	return out, nil
}

// DemoReviews is the demo dataset, newest first.
func DemoReviews() []domain.Review {
	ts := func(v string) time.Time {
		t, _ := time.Parse(time.RFC3339, v)
		return t
	}
	return []domain.Review{
		{ID: "1", BusinessID: "rest1", Rating: 5, Review: "Amazing food and service! Will definitely be back.", Name: "John Doe", Email: "john.doe@example.com", GoogleReviewed: true, CreatedAt: ts("2025-04-01T15:23:11Z")},
		{ID: "2", BusinessID: "rest1", Rating: 4, Review: "Great food but service was a bit slow.", Name: "Jane Smith", Email: "jane.smith@example.com", CreatedAt: ts("2025-04-01T14:15:22Z")},
		{ID: "3", BusinessID: "rest2", Rating: 5, Review: "Best sushi in town! Loved everything about it.", Name: "Mike Johnson", Email: "mike.j@example.com", GoogleReviewed: true, CreatedAt: ts("2025-04-01T12:05:18Z")},
		{ID: "4", BusinessID: "rest3", Rating: 3, Review: "Decent burgers but a bit overpriced.", Name: "Sarah Wilson", Email: "sarah.w@example.com", CreatedAt: ts("2025-03-31T19:42:33Z")},
		{ID: "5", BusinessID: "rest2", Rating: 5, Review: "Fresh fish and amazing rolls! Service was impeccable.", Name: "David Brown", Email: "david.b@example.com", GoogleReviewed: true, CreatedAt: ts("2025-03-31T18:30:10Z")},
		{ID: "6", BusinessID: "rest1", Rating: 2, Review: "Disappointing experience. Food was cold when it arrived.", Name: "Laura Miller", Email: "laura.m@example.com", CreatedAt: ts("2025-03-30T20:15:45Z")},
	}
}
