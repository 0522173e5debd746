package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cybertron15/review-booster/internal/domain"
	pkgkafka "github.com/cybertron15/review-booster/pkg/kafka"
	"github.com/cybertron15/review-booster/pkg/logger"
)

// Topic and envelope constants for review events.
const (
	DefaultTopicReviewSubmitted = "reviewbooster.review.submitted"
	EventTypeReviewSubmitted    = "review.submitted"
	Source                      = "reviewbooster"
)

// ReviewSubmittedData is the payload of a review.submitted event. Consumers
// use it to send the discount coupon.
type ReviewSubmittedData struct {
	BusinessID   string    `json:"business_id"`
	BusinessName string    `json:"business_name"`
	Rating       int       `json:"rating"`
	Review       string    `json:"review,omitempty"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

type publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes review events to Kafka.
type Producer struct {
	kafka  publisher
	topic  string
	logger *slog.Logger
}

// NewProducer creates a review event producer writing to topic.
func NewProducer(kafka *pkgkafka.Producer, topic string, logger *slog.Logger) *Producer {
	return newProducer(kafka, topic, logger)
}

func newProducer(kafka publisher, topic string, logger *slog.Logger) *Producer {
	if topic == "" {
		topic = DefaultTopicReviewSubmitted
	}
	return &Producer{kafka: kafka, topic: topic, logger: logger}
}

// PublishReviewSubmitted publishes a review.submitted event keyed by
// business id.
func (p *Producer) PublishReviewSubmitted(ctx context.Context, b domain.Business, in domain.ReviewInput, at time.Time) error {
	data := ReviewSubmittedData{
		BusinessID:   b.ID,
		BusinessName: b.Name,
		Rating:       in.Rating,
		Review:       in.Review,
		Name:         in.Name,
		Email:        in.Email,
		SubmittedAt:  at.UTC(),
	}

	opts := []pkgkafka.Option{pkgkafka.WithOccurredAt(at)}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		opts = append(opts, pkgkafka.WithCorrelationID(id))
	}
	evt, err := pkgkafka.NewEvent(EventTypeReviewSubmitted, b.ID, Source, data, opts...)
	if err != nil {
		return fmt.Errorf("create review.submitted event: %w", err)
	}

	if err := p.kafka.Publish(ctx, p.topic, evt); err != nil {
		return fmt.Errorf("publish review.submitted event: %w", err)
	}

	p.logger.DebugContext(ctx, "published review.submitted event",
		slog.String("business_id", b.ID),
		slog.Int("rating", in.Rating),
	)
	return nil
}

// Noop drops events. It is used when Kafka is disabled.
type Noop struct{}

// PublishReviewSubmitted does nothing.
func (Noop) PublishReviewSubmitted(context.Context, domain.Business, domain.ReviewInput, time.Time) error {
	return nil
}
