package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cybertron15/review-booster/internal/domain"
	"github.com/cybertron15/review-booster/internal/service"
	"github.com/cybertron15/review-booster/internal/session"
	apperrors "github.com/cybertron15/review-booster/pkg/errors"
	"github.com/cybertron15/review-booster/pkg/logger"
	"github.com/cybertron15/review-booster/pkg/validator"
)

// Customer-facing notices.
const (
	msgLoadFailed     = "Failed to load restaurants"
	msgSubmitted      = "Thank you for your feedback!"
	msgSubmitFailed   = "Failed to submit review. Please try again."
	msgSelectRating   = "Please select a rating"
	titleReviewSystem = "Restaurant Review System"
)

// PageOptions tunes the public pages.
type PageOptions struct {
	// GoogleReviewURL is a format string taking the business id.
	GoogleReviewURL string
	// SeparateUnavailable renders a 503 page for failed lookups instead
	// of redirecting to the not-found page.
	SeparateUnavailable bool
}

// PageHandler serves the public review pages.
type PageHandler struct {
	reviews  *service.ReviewService
	flow     *service.ReviewFlow
	sessions *session.Store
	cookie   session.Cookie
	render   *renderer
	opts     PageOptions
	logger   *slog.Logger
}

// NewPageHandler creates the public page handler.
func NewPageHandler(
	reviews *service.ReviewService,
	flow *service.ReviewFlow,
	sessions *session.Store,
	rd *renderer,
	opts PageOptions,
	logger *slog.Logger,
) *PageHandler {
	return &PageHandler{
		reviews:  reviews,
		flow:     flow,
		sessions: sessions,
		cookie:   rd.cookie,
		render:   rd,
		opts:     opts,
		logger:   logger,
	}
}

// --- Form ---

// reviewForm is the posted review form.
type reviewForm struct {
	Token        string `form:"token"`
	BusinessName string `form:"business_name"`
	Rating       int    `form:"rating" validate:"stars"`
	Review       string `form:"review" validate:"max=5000"`
	Name         string `form:"name" validate:"required,max=200"`
	Email        string `form:"email" validate:"required,max=320"`
}

func parseReviewForm(r *http.Request) reviewForm {
	rating, _ := strconv.Atoi(r.PostFormValue("rating"))
	return reviewForm{
		Token:        r.PostFormValue("token"),
		BusinessName: strings.TrimSpace(r.PostFormValue("business_name")),
		Rating:       rating,
		Review:       strings.TrimSpace(r.PostFormValue("review")),
		Name:         strings.TrimSpace(r.PostFormValue("name")),
		Email:        strings.TrimSpace(r.PostFormValue("email")),
	}
}

type reviewView struct {
	Business domain.Business
	Token    string
	Form     reviewForm
	Fields   map[string]string
	Error    string
}

type thankYouView struct {
	Review    domain.LastReview
	GoogleURL string
}

// --- Handlers ---

// Home handles GET /
func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	h.cookie.Ensure(w, r)

	businesses := h.reviews.ListActiveBusinesses(r.Context())
	var notices []session.Flash
	if h.reviews.LoadErr() != nil {
		notices = append(notices, session.Flash{Kind: session.FlashError, Message: msgLoadFailed})
	}

	h.render.render(w, r, http.StatusOK, pageHome, titleReviewSystem, struct {
		Businesses []domain.Business
	}{businesses}, notices...)
}

// ReviewForm handles GET /business/{businessID}
func (h *PageHandler) ReviewForm(w http.ResponseWriter, r *http.Request) {
	h.cookie.Ensure(w, r)

	lookup := h.flow.Lookup(r.Context(), chi.URLParam(r, "businessID"))
	if !lookup.Found() {
		h.lookupMiss(w, r, lookup.Status)
		return
	}

	h.render.render(w, r, http.StatusOK, pageReview, "Review "+lookup.Business.Name, reviewView{
		Business: *lookup.Business,
		Token:    uuid.NewString(),
	})
}

// SubmitReview handles POST /business/{businessID}
func (h *PageHandler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid := h.cookie.Ensure(w, r)
	businessID := chi.URLParam(r, "businessID")

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	form := parseReviewForm(r)
	if form.Token == "" {
		form.Token = uuid.NewString()
	}

	if err := validator.Validate(form); err != nil {
		b := h.formBusiness(businessID, form)
		view := reviewView{Business: b, Token: form.Token, Form: form}
		var valErr *validator.ValidationError
		if errors.As(err, &valErr) {
			view.Fields = valErr.Fields()
			if valErr.Has("rating") {
				view.Error = msgSelectRating
			}
		}
		h.render.render(w, r, http.StatusUnprocessableEntity, pageReview, "Review "+b.Name, view)
		return
	}

	res, err := h.flow.Submit(ctx, service.SubmitRequest{
		SessionID: sid,
		Token:     form.Token,
		Input: domain.ReviewInput{
			BusinessID: businessID,
			Rating:     form.Rating,
			Review:     form.Review,
			Name:       form.Name,
			Email:      form.Email,
		},
	})
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrNotFound):
		h.lookupMiss(w, r, domain.LookupNotFound)
		return
	default:
		h.submitFailed(w, r, businessID, form, err)
		return
	}

	if res.Outcome == service.SubmitAccepted {
		h.render.flash(w, r, session.FlashSuccess, msgSubmitted)
	}
	http.Redirect(w, r, "/thank-you", http.StatusSeeOther)
}

func (h *PageHandler) submitFailed(w http.ResponseWriter, r *http.Request, businessID string, form reviewForm, err error) {
	logger.FromContext(r.Context()).ErrorContext(r.Context(), "review submission failed",
		slog.String("business_id", businessID),
		slog.String("error", err.Error()),
	)

	b := h.formBusiness(businessID, form)
	status := apperrors.HTTPStatus(err)
	if status < http.StatusInternalServerError {
		status = http.StatusBadGateway
	}
	h.render.render(w, r, status, pageReview, "Review "+b.Name,
		reviewView{Business: b, Token: form.Token, Form: form},
		session.Flash{Kind: session.FlashError, Message: msgSubmitFailed},
	)
}

// formBusiness is the business a re-rendered form shows. It comes from the
// cached directory, or from the form's own hidden fields, so showing a
// rejected form never calls the backend.
func (h *PageHandler) formBusiness(businessID string, form reviewForm) domain.Business {
	if b := h.reviews.CachedBusiness(businessID); b != nil {
		return *b
	}
	return domain.Business{ID: businessID, Name: form.BusinessName, Active: true}
}

// ThankYou handles GET /thank-you
func (h *PageHandler) ThankYou(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid := h.cookie.ID(r)
	if sid == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	lr, err := h.sessions.LastReview(ctx, sid)
	if err != nil {
		logger.FromContext(ctx).ErrorContext(ctx, "failed to read last review", slog.String("error", err.Error()))
	}
	if lr == nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	view := thankYouView{Review: *lr}
	if lr.IsPerfect() {
		view.GoogleURL = googleReviewURL(h.opts.GoogleReviewURL, lr.BusinessID)
	}
	h.render.render(w, r, http.StatusOK, pageThankYou, "Thank You", view)
}

// NotFound handles GET /not-found and unmatched paths.
func (h *PageHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.render.notFound(w, r)
}

// ResetPassword handles GET /reset-password
func (h *PageHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	h.render.render(w, r, http.StatusOK, pageResetPassword, "Reset Password", nil)
}

// lookupMiss sends the browser away from a business page it cannot show.
func (h *PageHandler) lookupMiss(w http.ResponseWriter, r *http.Request, status domain.LookupStatus) {
	if status == domain.LookupUnavailable && h.opts.SeparateUnavailable {
		h.render.render(w, r, http.StatusServiceUnavailable, pageUnavailable, "Temporarily Unavailable", r.URL.Path)
		return
	}
	http.Redirect(w, r, "/not-found", http.StatusFound)
}

func googleReviewURL(format, businessID string) string {
	if format == "" {
		return ""
	}
	return fmt.Sprintf(format, url.PathEscape(businessID))
}
