package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func newTestProducer(w *fakeWriter) *Producer {
	return &Producer{
		writer:  w,
		brokers: []string{"localhost:19092"},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// --- Event tests ---

func TestNewEvent_Fields(t *testing.T) {
	type reviewData struct {
		BusinessID string `json:"business_id"`
		Rating     int    `json:"rating"`
	}

	data := reviewData{BusinessID: "biz-1", Rating: 5}
	event, err := NewEvent("review.submitted", "biz-1", "reviewbooster", data)
	require.NoError(t, err)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "review.submitted", event.Type)
	assert.Equal(t, "biz-1", event.Key)
	assert.Equal(t, "reviewbooster", event.Source)
	assert.Equal(t, SchemaVersion, event.SchemaVersion)
	assert.WithinDuration(t, time.Now().UTC(), event.OccurredAt, 2*time.Second)
	assert.Empty(t, event.CorrelationID)
	assert.Nil(t, event.Attributes)

	var got reviewData
	require.NoError(t, event.DecodeData(&got))
	assert.Equal(t, data, got)
}

func TestNewEvent_Options(t *testing.T) {
	at := time.Date(2025, 4, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))

	event, err := NewEvent("review.submitted", "biz-1", "reviewbooster", nil,
		WithCorrelationID("corr-9"),
		WithOccurredAt(at),
		WithAttribute("channel", "web"),
		WithAttribute("form", "qr"),
	)
	require.NoError(t, err)

	assert.Equal(t, "corr-9", event.CorrelationID)
	assert.Equal(t, at.UTC(), event.OccurredAt)
	assert.Equal(t, map[string]string{"channel": "web", "form": "qr"}, event.Attributes)
}

func TestNewEvent_InvalidData(t *testing.T) {
	_, err := NewEvent("review.submitted", "biz-1", "reviewbooster", make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encode review.submitted payload")
}

func TestEvent_EncodeDecodeKeepsEnvelope(t *testing.T) {
	ev, err := NewEvent("review.submitted", "biz-9", "reviewbooster", map[string]int{"rating": 3},
		WithCorrelationID("corr-abc"), WithAttribute("channel", "web"))
	require.NoError(t, err)

	b, err := ev.Encode()
	require.NoError(t, err)

	restored, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, restored.ID)
	assert.Equal(t, "biz-9", restored.Key)
	assert.Equal(t, "corr-abc", restored.CorrelationID)
	assert.Equal(t, "web", restored.Attributes["channel"])
	assert.JSONEq(t, `{"rating":3}`, string(restored.Data))
}

func TestEvent_DecodeData_Invalid(t *testing.T) {
	event := &Event{Data: json.RawMessage(`not valid json`)}
	var target map[string]string
	require.Error(t, event.DecodeData(&target))
}

func TestDecode_InvalidJSON(t *testing.T) {
	_, err := Decode([]byte(`{broken json`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode event")
}

// --- Producer tests ---

func TestDefaultProducerConfig(t *testing.T) {
	brokers := []string{"broker1:9092", "broker2:9092"}
	cfg := DefaultProducerConfig(brokers)

	assert.Equal(t, brokers, cfg.Brokers)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 10*time.Millisecond, cfg.BatchTimeout)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
	assert.False(t, cfg.Async)
}

func TestNewProducer_CreatesInstance(t *testing.T) {
	p := NewProducer(DefaultProducerConfig([]string{"localhost:19092"}), nil)
	require.NotNil(t, p)
	assert.Equal(t, []string{"localhost:19092"}, p.brokers)
	assert.NoError(t, p.Close())
}

func TestProducer_Publish_WritesKeyedMessage(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator()) })

	w := &fakeWriter{}
	p := newTestProducer(w)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))

	event, err := NewEvent("review.submitted", "biz-1", "reviewbooster", map[string]int{"rating": 4},
		WithCorrelationID("corr-1"))
	require.NoError(t, err)

	topic := "test-publish-topic"
	before := getCounterValue(t, "reviewbooster_kafka_events_published_total", topic)

	require.NoError(t, p.Publish(ctx, topic, event))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, topic, msg.Topic)
	assert.Equal(t, "biz-1", string(msg.Key))

	carrier := NewHeaderCarrier(&msg.Headers)
	assert.Equal(t, "review.submitted", carrier.Get("event_type"))
	assert.Equal(t, "reviewbooster", carrier.Get("source"))
	assert.Equal(t, "corr-1", carrier.Get("correlation_id"))
	assert.Contains(t, carrier.Get("traceparent"), "4bf92f3577b34da6a3ce929d0e0e4736")

	decoded, err := Decode(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, event.ID, decoded.ID)

	assert.InDelta(t, before+1, getCounterValue(t, "reviewbooster_kafka_events_published_total", topic), 0.001)
}

func TestProducer_Publish_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := newTestProducer(w)

	event, err := NewEvent("review.submitted", "biz-1", "reviewbooster", nil)
	require.NoError(t, err)

	topic := "test-publish-error-topic"
	before := getCounterValue(t, "reviewbooster_kafka_publish_errors_total", topic)

	err = p.Publish(context.Background(), topic, event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Contains(t, err.Error(), topic)
	assert.InDelta(t, before+1, getCounterValue(t, "reviewbooster_kafka_publish_errors_total", topic), 0.001)
}

func TestProducer_Close(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, newTestProducer(w).Close())
	assert.True(t, w.closed)
}

func TestPingBrokers_NoBrokers(t *testing.T) {
	err := PingBrokers(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers configured")
}

func TestPingBrokers_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := PingBrokers(ctx, []string{"127.0.0.1:1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all brokers unreachable")
}
