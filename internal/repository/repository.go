package repository

import (
	"context"

	"github.com/cybertron15/review-booster/internal/domain"
)

// BusinessRepository reads the business directory.
type BusinessRepository interface {
	// ListActive returns every active business ordered by name.
	ListActive(ctx context.Context) ([]domain.Business, error)

	// GetActiveByID returns the active business with the given id, or an
	// apperrors not-found error when there is none.
	GetActiveByID(ctx context.Context, id string) (*domain.Business, error)
}

// ReviewRepository persists and reads customer submissions.
type ReviewRepository interface {
	// Create inserts a review. google_reviewed is always stored as false.
	Create(ctx context.Context, input domain.ReviewInput) error

	// List returns all reviews, newest first.
	List(ctx context.Context) ([]domain.Review, error)
}
