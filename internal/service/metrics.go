package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reviewsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewbooster_reviews_submitted_total",
			Help: "Reviews stored, by star rating",
		},
		[]string{"rating"},
	)

	reviewSubmitFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reviewbooster_review_submit_failures_total",
			Help: "Review inserts rejected or failed by the backend",
		},
	)

	duplicateSubmissions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reviewbooster_duplicate_submissions_total",
			Help: "Repeat submissions of an already claimed form token",
		},
	)

	businessLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewbooster_business_lookups_total",
			Help: "Business lookups by outcome (found, not_found, unavailable)",
		},
		[]string{"outcome"},
	)

	directoryLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewbooster_business_directory_loads_total",
			Help: "Loads of the active business directory by result",
		},
		[]string{"result"},
	)
)
