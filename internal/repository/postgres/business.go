package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/cybertron15/review-booster/internal/domain"
	"github.com/cybertron15/review-booster/pkg/database"
	apperrors "github.com/cybertron15/review-booster/pkg/errors"
)

// BusinessRepository reads businesses from PostgreSQL.
type BusinessRepository struct {
	pool database.DBTX
}

// NewBusinessRepository creates a new PostgreSQL-backed business repository.
func NewBusinessRepository(pool database.DBTX) *BusinessRepository {
	return &BusinessRepository{pool: pool}
}

// ListActive returns active businesses ordered by name.
func (r *BusinessRepository) ListActive(ctx context.Context) (_ []domain.Business, err error) {
	query := `
		SELECT id, name, active, created_at
		FROM businesses
		WHERE active = TRUE
		ORDER BY name ASC`

	ctx, end := database.TraceQuery(ctx, "ListActiveBusinesses", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list businesses: %w", err)
	}
	defer rows.Close()

	businesses := []domain.Business{}
	for rows.Next() {
		var b domain.Business
		if err := rows.Scan(&b.ID, &b.Name, &b.Active, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan business row: %w", err)
		}
		businesses = append(businesses, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate business rows: %w", err)
	}

	return businesses, nil
}

// GetActiveByID returns the active business with id. Ids that are not valid
// uuids are reported as not found.
func (r *BusinessRepository) GetActiveByID(ctx context.Context, id string) (_ *domain.Business, err error) {
	query := `
		SELECT id, name, active, created_at
		FROM businesses
		WHERE id = $1 AND active = TRUE
		LIMIT 1`

	ctx, end := database.TraceQuery(ctx, "GetActiveBusiness", query)
	defer func() { end(err) }()

	var b domain.Business
	err = r.pool.QueryRow(ctx, query, id).Scan(&b.ID, &b.Name, &b.Active, &b.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.Is(err, pgx.ErrNoRows) || (errors.As(err, &pgErr) && pgErr.Code == "22P02") {
			return nil, apperrors.NotFound("business", id)
		}
		return nil, fmt.Errorf("get business %s: %w", id, err)
	}

	return &b, nil
}
