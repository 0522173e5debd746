package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/cybertron15/review-booster/internal/domain"
	"github.com/cybertron15/review-booster/internal/repository"
	apperrors "github.com/cybertron15/review-booster/pkg/errors"
	"github.com/cybertron15/review-booster/pkg/logger"
)

// ReviewPublisher announces stored reviews.
type ReviewPublisher interface {
	PublishReviewSubmitted(ctx context.Context, b domain.Business, in domain.ReviewInput, at time.Time) error
}

// ReviewService owns the cached business directory and the review
// submission path.
type ReviewService struct {
	businesses repository.BusinessRepository
	reviews    repository.ReviewRepository
	events     ReviewPublisher
	logger     *slog.Logger
	now        func() time.Time

	loadMu sync.Mutex // serializes directory fetches

	mu        sync.RWMutex
	directory []domain.Business
	loaded    bool
	loading   bool
	loadErr   error
}

// NewReviewService creates a review service.
func NewReviewService(
	businesses repository.BusinessRepository,
	reviews repository.ReviewRepository,
	events ReviewPublisher,
	logger *slog.Logger,
) *ReviewService {
	return &ReviewService{
		businesses: businesses,
		reviews:    reviews,
		events:     events,
		logger:     logger,
		now:        time.Now,
	}
}

// Load fetches the active business directory and caches it until
// Invalidate. A failed load leaves an empty directory, records the error
// for LoadErr, and is retried by the next caller.
func (s *ReviewService) Load(ctx context.Context) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	return s.load(ctx)
}

func (s *ReviewService) load(ctx context.Context) error {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	list, err := s.businesses.ListActive(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.directory = []domain.Business{}
		s.loaded = false
		s.loadErr = err
		directoryLoads.WithLabelValues("error").Inc()
		logger.FromContext(ctx).ErrorContext(ctx, "failed to load business directory",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("load business directory: %w", err)
	}

	s.directory = list
	s.loaded = true
	s.loadErr = nil
	directoryLoads.WithLabelValues("ok").Inc()
	s.logger.InfoContext(ctx, "business directory loaded", slog.Int("count", len(list)))
	return nil
}

// Invalidate drops the cached directory so the next read reloads it.
func (s *ReviewService) Invalidate() {
	s.mu.Lock()
	s.loaded = false
	s.directory = nil
	s.loadErr = nil
	s.mu.Unlock()
}

func (s *ReviewService) isLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// ListActiveBusinesses returns the cached directory, loading it first if
// needed. On a failed load it returns an empty list; check LoadErr.
func (s *ReviewService) ListActiveBusinesses(ctx context.Context) []domain.Business {
	if !s.isLoaded() {
		s.loadMu.Lock()
		if !s.isLoaded() {
			_ = s.load(ctx)
		}
		s.loadMu.Unlock()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Business, len(s.directory))
	copy(out, s.directory)
	return out
}

// IsLoading reports whether a directory fetch is in flight.
func (s *ReviewService) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// LoadErr returns the error of the last failed directory load, if the
// directory is not loaded.
func (s *ReviewService) LoadErr() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadErr
}

// CachedBusiness returns business id from the loaded directory, or nil when
// the directory is not loaded or does not list it. It never calls the
// backend.
func (s *ReviewService) CachedBusiness(id string) *domain.Business {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded {
		return nil
	}
	if b := domain.FindBusiness(s.directory, id); b != nil {
		found := *b
		return &found
	}
	return nil
}

// GetBusinessByID looks up an active business. Not found and backend
// failure are reported separately.
func (s *ReviewService) GetBusinessByID(ctx context.Context, id string) domain.BusinessLookup {
	if id == "" {
		businessLookups.WithLabelValues(domain.LookupNotFound.String()).Inc()
		return domain.BusinessLookup{Status: domain.LookupNotFound}
	}

	b, err := s.businesses.GetActiveByID(ctx, id)
	var res domain.BusinessLookup
	switch {
	case err == nil:
		res = domain.BusinessLookup{Status: domain.LookupFound, Business: b}
	case apperrors.IsNotFound(err):
		res = domain.BusinessLookup{Status: domain.LookupNotFound, Err: err}
	default:
		logger.FromContext(ctx).ErrorContext(ctx, "business lookup failed",
			slog.String("business_id", id),
			slog.String("error", err.Error()),
		)
		res = domain.BusinessLookup{Status: domain.LookupUnavailable, Err: err}
	}

	businessLookups.WithLabelValues(res.Status.String()).Inc()
	return res
}

// ValidateReview checks a submission before anything is sent to the
// backend.
func ValidateReview(in domain.ReviewInput) error {
	switch {
	case !domain.ValidRating(in.Rating):
		return apperrors.InvalidInput("Please select a rating")
	case in.Name == "":
		return apperrors.InvalidInput("name is required")
	case in.Email == "":
		return apperrors.InvalidInput("email is required")
	}
	return nil
}

// SubmitReview stores a review for b. The business id always comes from b.
// A failed event publish is logged and does not fail the submission.
func (s *ReviewService) SubmitReview(ctx context.Context, b domain.Business, in domain.ReviewInput) error {
	in.BusinessID = b.ID
	if err := ValidateReview(in); err != nil {
		return err
	}

	log := logger.FromContext(ctx)
	if err := s.reviews.Create(ctx, in); err != nil {
		reviewSubmitFailures.Inc()
		log.ErrorContext(ctx, "failed to submit review",
			slog.String("business_id", b.ID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("submit review: %w", err)
	}
	reviewsSubmitted.WithLabelValues(strconv.Itoa(in.Rating)).Inc()

	log.InfoContext(ctx, "review submitted",
		slog.String("business_id", b.ID),
		slog.Int("rating", in.Rating),
	)

	if err := s.events.PublishReviewSubmitted(ctx, b, in, s.now()); err != nil && !errors.Is(err, context.Canceled) {
		log.WarnContext(ctx, "failed to publish review event",
			slog.String("business_id", b.ID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
