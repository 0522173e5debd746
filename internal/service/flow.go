package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cybertron15/review-booster/internal/domain"
	apperrors "github.com/cybertron15/review-booster/pkg/errors"
	"github.com/cybertron15/review-booster/pkg/logger"
)

// SubmissionStore remembers claimed form tokens and the review a browser
// session just submitted.
type SubmissionStore interface {
	ClaimSubmission(ctx context.Context, token string) (bool, error)
	ReleaseSubmission(ctx context.Context, token string) error
	SetLastReview(ctx context.Context, sid string, lr domain.LastReview) error
}

// ErrBusinessUnavailable marks a submission that could not be checked
// against the backend. It is joined with a 503 application error and is a
// failed submission, not a missing business.
var ErrBusinessUnavailable = errors.New("business unavailable")

// SubmitOutcome is the result of a submission attempt that did not fail.
type SubmitOutcome int

const (
	// SubmitAccepted means the review was stored.
	SubmitAccepted SubmitOutcome = iota
	// SubmitDuplicate means the form token was already used and nothing
	// was stored.
	SubmitDuplicate
)

// SubmitRequest is one posted review form.
type SubmitRequest struct {
	SessionID string
	Token     string
	Input     domain.ReviewInput
}

// SubmitResult describes a handled submission.
type SubmitResult struct {
	Outcome    SubmitOutcome
	Business   domain.Business
	LastReview *domain.LastReview
}

// ReviewFlow runs the public submission path: validate, look up the
// business, claim the form token, store the review, and record it in the
// browser session for the thank-you page.
type ReviewFlow struct {
	reviews *ReviewService
	store   SubmissionStore
}

// NewReviewFlow creates a review flow.
func NewReviewFlow(reviews *ReviewService, store SubmissionStore) *ReviewFlow {
	return &ReviewFlow{reviews: reviews, store: store}
}

// Lookup resolves the business a form is rendered for.
func (f *ReviewFlow) Lookup(ctx context.Context, id string) domain.BusinessLookup {
	return f.reviews.GetBusinessByID(ctx, id)
}

// resolve finds the business a review is for. The cached directory answers
// first; a point lookup covers businesses added since it was loaded.
func (f *ReviewFlow) resolve(ctx context.Context, id string) (domain.Business, error) {
	if b := f.reviews.CachedBusiness(id); b != nil {
		return *b, nil
	}

	lookup := f.reviews.GetBusinessByID(ctx, id)
	switch lookup.Status {
	case domain.LookupNotFound:
		return domain.Business{}, apperrors.NotFound("business", id)
	case domain.LookupUnavailable:
		return domain.Business{}, fmt.Errorf("%w: %w", ErrBusinessUnavailable,
			apperrors.ServiceUnavailable("business lookup failed", lookup.Err))
	}
	return *lookup.Business, nil
}

// Submit handles a posted form. Invalid input is rejected before any
// backend call. An empty token skips duplicate detection and an empty
// session id skips the session record.
func (f *ReviewFlow) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if err := ValidateReview(req.Input); err != nil {
		return nil, err
	}

	b, err := f.resolve(ctx, req.Input.BusinessID)
	if err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx)
	if req.Token != "" {
		claimed, err := f.store.ClaimSubmission(ctx, req.Token)
		if err != nil {
			return nil, fmt.Errorf("claim submission token: %w", err)
		}
		if !claimed {
			duplicateSubmissions.Inc()
			log.InfoContext(ctx, "duplicate review submission ignored",
				slog.String("business_id", b.ID),
			)
			return &SubmitResult{Outcome: SubmitDuplicate, Business: b}, nil
		}
	}

	if err := f.reviews.SubmitReview(ctx, b, req.Input); err != nil {
		if req.Token != "" {
			if relErr := f.store.ReleaseSubmission(ctx, req.Token); relErr != nil {
				log.WarnContext(ctx, "failed to release submission token",
					slog.String("error", relErr.Error()),
				)
			}
		}
		return nil, err
	}

	lr := domain.NewLastReview(b, req.Input)
	if req.SessionID != "" {
		if err := f.store.SetLastReview(ctx, req.SessionID, lr); err != nil {
			log.ErrorContext(ctx, "failed to store last review in session",
				slog.String("error", err.Error()),
			)
		}
	}

	return &SubmitResult{Outcome: SubmitAccepted, Business: b, LastReview: &lr}, nil
}
