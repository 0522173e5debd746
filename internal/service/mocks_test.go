package service

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/cybertron15/review-booster/internal/auth"
	"github.com/cybertron15/review-booster/internal/domain"
)

// --- Mock Repositories ---

type mockBusinessRepository struct {
	mock.Mock
}

func (m *mockBusinessRepository) ListActive(ctx context.Context) ([]domain.Business, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Business), args.Error(1)
}

func (m *mockBusinessRepository) GetActiveByID(ctx context.Context, id string) (*domain.Business, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Business), args.Error(1)
}

type mockReviewRepository struct {
	mock.Mock
}

func (m *mockReviewRepository) Create(ctx context.Context, input domain.ReviewInput) error {
	args := m.Called(ctx, input)
	return args.Error(0)
}

func (m *mockReviewRepository) List(ctx context.Context) ([]domain.Review, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Review), args.Error(1)
}

// --- Mock Collaborators ---

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishReviewSubmitted(ctx context.Context, b domain.Business, in domain.ReviewInput, at time.Time) error {
	args := m.Called(ctx, b, in, at)
	return args.Error(0)
}

type mockSubmissionStore struct {
	mock.Mock
}

func (m *mockSubmissionStore) ClaimSubmission(ctx context.Context, token string) (bool, error) {
	args := m.Called(ctx, token)
	return args.Bool(0), args.Error(1)
}

func (m *mockSubmissionStore) ReleaseSubmission(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *mockSubmissionStore) SetLastReview(ctx context.Context, sid string, lr domain.LastReview) error {
	args := m.Called(ctx, sid, lr)
	return args.Error(0)
}

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) SignIn(ctx context.Context, email, password string) (*auth.Session, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Session), args.Error(1)
}

func (m *mockProvider) SignUp(ctx context.Context, email, password string) error {
	return m.Called(ctx, email, password).Error(0)
}

func (m *mockProvider) ResetPassword(ctx context.Context, email, redirectTo string) error {
	return m.Called(ctx, email, redirectTo).Error(0)
}

func (m *mockProvider) SignOut(ctx context.Context, accessToken string) error {
	return m.Called(ctx, accessToken).Error(0)
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

var fixedNow = time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

func newTestReviewService(b *mockBusinessRepository, r *mockReviewRepository, p *mockPublisher) *ReviewService {
	svc := NewReviewService(b, r, p, newTestLogger())
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func testBusiness() *domain.Business {
	return &domain.Business{ID: "b1", Name: "Cafe Uno", Active: true}
}

func testInput() domain.ReviewInput {
	return domain.ReviewInput{
		BusinessID: "b1",
		Rating:     5,
		Review:     "Lovely",
		Name:       "Ana",
		Email:      "ana@example.com",
	}
}
