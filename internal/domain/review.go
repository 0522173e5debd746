package domain

import "time"

// MinRating and MaxRating bound a star rating.
const (
	MinRating = 1
	MaxRating = 5
)

// Review is a stored customer submission.
type Review struct {
	ID             string    `json:"id"`
	BusinessID     string    `json:"business_id"`
	Rating         int       `json:"rating"`
	Review         string    `json:"review"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	GoogleReviewed bool      `json:"google_reviewed"`
	CreatedAt      time.Time `json:"created_at"`
}

// ReviewInput is what a customer submits. google_reviewed is not part of it:
// new reviews always start with it false.
type ReviewInput struct {
	BusinessID string `json:"business_id"`
	Rating     int    `json:"rating"`
	Review     string `json:"review"`
	Name       string `json:"name"`
	Email      string `json:"email"`
}

// ValidRating reports whether r is a star value between 1 and 5.
func ValidRating(r int) bool {
	return r >= MinRating && r <= MaxRating
}

// LastReview is the copy of the just-submitted review kept in the browser
// session for the thank-you page.
type LastReview struct {
	BusinessID   string `json:"businessId"`
	BusinessName string `json:"businessName"`
	Rating       int    `json:"rating"`
	Review       string `json:"review"`
	Name         string `json:"name"`
	Email        string `json:"email"`
}

// NewLastReview builds the session copy of a submission.
func NewLastReview(b Business, in ReviewInput) LastReview {
	return LastReview{
		BusinessID:   b.ID,
		BusinessName: b.Name,
		Rating:       in.Rating,
		Review:       in.Review,
		Name:         in.Name,
		Email:        in.Email,
	}
}

// IsPerfect reports whether the review earned the public-review prompt.
func (l LastReview) IsPerfect() bool {
	return l.Rating == MaxRating
}
