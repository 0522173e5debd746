package domain

import "math"

// AllBusinesses selects every business in the dashboard filter.
const AllBusinesses = "all"

// RatingBucket is one row of the rating histogram.
type RatingBucket struct {
	Stars   int `json:"stars"`
	Count   int `json:"count"`
	Percent int `json:"percent"`
}

// Stats are the dashboard aggregates over a set of reviews.
type Stats struct {
	TotalReviews  int            `json:"total_reviews"`
	AverageRating float64        `json:"average_rating"`
	GoogleReviews int            `json:"google_reviews"`
	GooglePercent int            `json:"google_percent"`
	Histogram     []RatingBucket `json:"histogram"`
}

// FilterByBusiness returns the reviews for businessID. An empty id or
// AllBusinesses returns reviews unchanged.
func FilterByBusiness(reviews []Review, businessID string) []Review {
	if businessID == "" || businessID == AllBusinesses {
		return reviews
	}
	out := make([]Review, 0, len(reviews))
	for _, r := range reviews {
		if r.BusinessID == businessID {
			out = append(out, r)
		}
	}
	return out
}

// ComputeStats aggregates reviews. Ratings outside 1..5 are ignored, so the
// histogram always sums to TotalReviews. The histogram runs from 5 stars
// down to 1.
func ComputeStats(reviews []Review) Stats {
	var counts [MaxRating + 1]int
	var sum, total, google int

	for _, r := range reviews {
		if !ValidRating(r.Rating) {
			continue
		}
		counts[r.Rating]++
		sum += r.Rating
		total++
		if r.GoogleReviewed {
			google++
		}
	}

	s := Stats{
		TotalReviews:  total,
		GoogleReviews: google,
		GooglePercent: percent(google, total),
		Histogram:     make([]RatingBucket, 0, MaxRating),
	}
	if total > 0 {
		s.AverageRating = math.Round(float64(sum)/float64(total)*10) / 10
	}
	for stars := MaxRating; stars >= MinRating; stars-- {
		s.Histogram = append(s.Histogram, RatingBucket{
			Stars:   stars,
			Count:   counts[stars],
			Percent: percent(counts[stars], total),
		})
	}
	return s
}

// percent rounds half up, so 2.5% shows as 3%.
func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Floor(float64(part)/float64(total)*100 + 0.5))
}
