package postgres

import (
	"context"
	"fmt"

	"github.com/cybertron15/review-booster/internal/domain"
	"github.com/cybertron15/review-booster/pkg/database"
)

// ReviewRepository stores reviews in the responses table.
type ReviewRepository struct {
	pool database.DBTX
}

// NewReviewRepository creates a new PostgreSQL-backed review repository.
func NewReviewRepository(pool database.DBTX) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

// Create inserts a review. id and created_at are assigned by the database.
func (r *ReviewRepository) Create(ctx context.Context, input domain.ReviewInput) (err error) {
	query := `
		INSERT INTO responses (business_id, rating, review, name, email, google_reviewed)
		VALUES ($1, $2, $3, $4, $5, FALSE)`

	ctx, end := database.TraceQuery(ctx, "InsertReview", query)
	defer func() { end(err) }()

	_, err = r.pool.Exec(ctx, query,
		input.BusinessID,
		input.Rating,
		input.Review,
		input.Name,
		input.Email,
	)
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}

	return nil
}

// List returns every review, newest first.
func (r *ReviewRepository) List(ctx context.Context) (_ []domain.Review, err error) {
	query := `
		SELECT id, business_id, rating, COALESCE(review, ''), name, email, google_reviewed, created_at
		FROM responses
		ORDER BY created_at DESC`

	ctx, end := database.TraceQuery(ctx, "ListReviews", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	reviews := []domain.Review{}
	for rows.Next() {
		var rv domain.Review
		if err := rows.Scan(
			&rv.ID,
			&rv.BusinessID,
			&rv.Rating,
			&rv.Review,
			&rv.Name,
			&rv.Email,
			&rv.GoogleReviewed,
			&rv.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan review row: %w", err)
		}
		reviews = append(reviews, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review rows: %w", err)
	}

	return reviews, nil
}
