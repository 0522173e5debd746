package service

import (
	"context"
	"fmt"

	"github.com/cybertron15/review-booster/internal/domain"
)

// ReviewLister reads every stored review.
type ReviewLister interface {
	List(ctx context.Context) ([]domain.Review, error)
}

// BusinessDirectory lists the businesses an admin can filter by.
type BusinessDirectory interface {
	ListActiveBusinesses(ctx context.Context) []domain.Business
}

// ReviewRow is a review with the display name of its business.
type ReviewRow struct {
	domain.Review
	BusinessName string
}

// Dashboard is everything the admin statistics page renders.
type Dashboard struct {
	Businesses []domain.Business
	Selected   string
	Stats      domain.Stats
	Reviews    []ReviewRow
}

// DashboardService aggregates reviews for the admin dashboard.
type DashboardService struct {
	reviews   ReviewLister
	directory BusinessDirectory
}

// NewDashboardService creates a dashboard service.
func NewDashboardService(reviews ReviewLister, directory BusinessDirectory) *DashboardService {
	return &DashboardService{reviews: reviews, directory: directory}
}

// Dashboard builds the dashboard for businessID, or every business when
// it is empty or "all".
func (s *DashboardService) Dashboard(ctx context.Context, businessID string) (*Dashboard, error) {
	if businessID == "" {
		businessID = domain.AllBusinesses
	}

	all, err := s.reviews.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}

	businesses := s.directory.ListActiveBusinesses(ctx)
	names := make(map[string]string, len(businesses))
	for _, b := range businesses {
		names[b.ID] = b.Name
	}

	filtered := domain.FilterByBusiness(all, businessID)
	rows := make([]ReviewRow, 0, len(filtered))
	for _, r := range filtered {
		name, ok := names[r.BusinessID]
		if !ok {
			name = r.BusinessID
		}
		rows = append(rows, ReviewRow{Review: r, BusinessName: name})
	}

	return &Dashboard{
		Businesses: businesses,
		Selected:   businessID,
		Stats:      domain.ComputeStats(filtered),
		Reviews:    rows,
	}, nil
}
