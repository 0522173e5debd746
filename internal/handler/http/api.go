package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cybertron15/review-booster/internal/domain"
	"github.com/cybertron15/review-booster/internal/repository/supabase"
	"github.com/cybertron15/review-booster/internal/service"
	apperrors "github.com/cybertron15/review-booster/pkg/errors"
	"github.com/cybertron15/review-booster/pkg/httputil"
	"github.com/cybertron15/review-booster/pkg/middleware"
	"github.com/cybertron15/review-booster/pkg/pagination"
	"github.com/cybertron15/review-booster/pkg/validator"
)

// APIHandler handles the JSON API.
type APIHandler struct {
	reviews   *service.ReviewService
	flow      *service.ReviewFlow
	dashboard *service.DashboardService
	logger    *slog.Logger
}

// NewAPIHandler creates a new JSON API handler.
func NewAPIHandler(
	reviews *service.ReviewService,
	flow *service.ReviewFlow,
	dashboard *service.DashboardService,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		reviews:   reviews,
		flow:      flow,
		dashboard: dashboard,
		logger:    logger,
	}
}

// --- Request DTOs ---

// CreateReviewRequest is the JSON request body for submitting a review.
type CreateReviewRequest struct {
	Rating int    `json:"rating" validate:"stars"`
	Review string `json:"review" validate:"max=5000"`
	Name   string `json:"name" validate:"required,max=200"`
	Email  string `json:"email" validate:"required,max=320"`
}

type createReviewResponse struct {
	BusinessID string `json:"business_id"`
	Rating     int    `json:"rating"`
}

type statsResponse struct {
	Business string       `json:"business"`
	Stats    domain.Stats `json:"stats"`
}

type reviewRowResponse struct {
	domain.Review
	BusinessName string `json:"business_name"`
}

// --- Handlers ---

// ListBusinesses handles GET /api/v1/businesses
func (h *APIHandler) ListBusinesses(w http.ResponseWriter, r *http.Request) {
	list := h.reviews.ListActiveBusinesses(r.Context())
	if err := h.reviews.LoadErr(); err != nil {
		httputil.WriteError(w, r, apperrors.ServiceUnavailable("business directory unavailable", err), h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, list)
}

// GetBusiness handles GET /api/v1/businesses/{businessID}
func (h *APIHandler) GetBusiness(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "businessID")
	lookup := h.flow.Lookup(r.Context(), id)
	switch lookup.Status {
	case domain.LookupFound:
		httputil.WriteData(w, http.StatusOK, lookup.Business)
	case domain.LookupNotFound:
		httputil.WriteError(w, r, apperrors.NotFound("business", id), h.logger)
	default:
		httputil.WriteError(w, r, apperrors.ServiceUnavailable("business lookup failed", lookup.Err), h.logger)
	}
}

// CreateReview handles POST /api/v1/businesses/{businessID}/reviews.
// An Idempotency-Key header makes retries safe: a repeated key stores
// nothing and answers 409.
func (h *APIHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	var req CreateReviewRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	id := chi.URLParam(r, "businessID")
	res, err := h.flow.Submit(r.Context(), service.SubmitRequest{
		Token: r.Header.Get("Idempotency-Key"),
		Input: domain.ReviewInput{
			BusinessID: id,
			Rating:     req.Rating,
			Review:     req.Review,
			Name:       req.Name,
			Email:      req.Email,
		},
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if res.Outcome == service.SubmitDuplicate {
		httputil.WriteError(w, r, apperrors.Conflict("review already submitted for this idempotency key"), h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, createReviewResponse{
		BusinessID: res.Business.ID,
		Rating:     req.Rating,
	})
}

// Stats handles GET /api/v1/admin/stats?business=
func (h *APIHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if tok := middleware.BearerTokenFromContext(ctx); tok != "" {
		ctx = supabase.WithAccessToken(ctx, tok)
	}

	d, err := h.dashboard.Dashboard(ctx, r.URL.Query().Get("business"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, statsResponse{Business: d.Selected, Stats: d.Stats})
}

// ListReviews handles GET /api/v1/admin/reviews?business=&page=&per_page=
func (h *APIHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if tok := middleware.BearerTokenFromContext(ctx); tok != "" {
		ctx = supabase.WithAccessToken(ctx, tok)
	}

	d, err := h.dashboard.Dashboard(ctx, r.URL.Query().Get("business"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	rows := make([]reviewRowResponse, len(d.Reviews))
	for i, row := range d.Reviews {
		rows[i] = reviewRowResponse{Review: row.Review, BusinessName: row.BusinessName}
	}
	httputil.WriteData(w, http.StatusOK, pagination.Slice(rows, pagination.FromRequest(r)))
}
