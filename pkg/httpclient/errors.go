package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sony/gobreaker/v2"

	apperrors "github.com/cybertron15/review-booster/pkg/errors"
)

const maxErrorBody = 1 << 20

// errorBody covers the error shapes of the services we call: the envelope
// of our own API, PostgREST ({code, message, details, hint}) and GoTrue
// ({msg} or OAuth style {error, error_description}).
type errorBody struct {
	Code             json.RawMessage `json:"code"`
	Message          string          `json:"message"`
	Msg              string          `json:"msg"`
	ErrorCode        string          `json:"error_code"`
	ErrorField       json.RawMessage `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

// DownstreamError describes a non-2xx response from a downstream service.
type DownstreamError struct {
	Service    string
	StatusCode int
	Code       string
	Message    string
}

func (e *DownstreamError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s returned status %d (%s): %s", e.Service, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Message)
}

// ParseResponseError reads the body of a non-2xx response and translates it
// into an *apperrors.AppError whose Message is the downstream message,
// unmodified. The body is consumed and closed.
func ParseResponseError(resp *http.Response, service string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", service, resp.StatusCode, err)
	}
	return errorFromBody(service, resp.StatusCode, body)
}

func errorFromBody(service string, status int, body []byte) error {
	code, message := decodeErrorBody(body)
	if message == "" {
		message = strings.TrimSpace(string(body))
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return mapDownstreamError(&DownstreamError{
		Service:    service,
		StatusCode: status,
		Code:       code,
		Message:    message,
	})
}

func decodeErrorBody(body []byte) (code, message string) {
	var b errorBody
	if json.Unmarshal(body, &b) != nil {
		return "", ""
	}

	code = b.ErrorCode
	if code == "" {
		code = rawString(b.Code)
	}

	// {"error": {"code": ..., "message": ...}}
	var envelope struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if len(b.ErrorField) > 0 && b.ErrorField[0] == '{' && json.Unmarshal(b.ErrorField, &envelope) == nil {
		return envelope.Code, envelope.Message
	}

	errorString := rawString(b.ErrorField)
	switch {
	case b.Msg != "":
		message = b.Msg
	case b.ErrorDescription != "":
		message = b.ErrorDescription
		if code == "" {
			code = errorString
		}
	case b.Message != "":
		message = b.Message
	case errorString != "":
		message = errorString
	}
	return code, message
}

// rawString returns a JSON string or number as text.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	if raw[0] >= '0' && raw[0] <= '9' {
		return string(raw)
	}
	return ""
}

func mapDownstreamError(d *DownstreamError) error {
	status := d.StatusCode
	appCode := d.Code

	var sentinel error
	switch {
	case status == http.StatusNotFound:
		sentinel = apperrors.ErrNotFound
		appCode = "NOT_FOUND"
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		sentinel = apperrors.ErrInvalidInput
		appCode = "INVALID_INPUT"
	case status == http.StatusConflict:
		sentinel = apperrors.ErrConflict
		appCode = "CONFLICT"
	case status == http.StatusUnauthorized:
		sentinel = apperrors.ErrUnauthorized
		appCode = "UNAUTHORIZED"
	case status == http.StatusForbidden:
		sentinel = apperrors.ErrForbidden
		appCode = "FORBIDDEN"
	case status == http.StatusTooManyRequests, status >= 500:
		sentinel = apperrors.ErrServiceUnavail
		appCode = "SERVICE_UNAVAILABLE"
		status = http.StatusServiceUnavailable
	default:
		sentinel = apperrors.ErrInternal
		if appCode == "" {
			appCode = "DOWNSTREAM_ERROR"
		}
	}

	return &apperrors.AppError{
		Code:    appCode,
		Message: d.Message,
		Status:  status,
		Err:     fmt.Errorf("%w: %w", sentinel, d),
	}
}

// Classify converts a transport-level error (breaker open, timeout, refused
// connection, 5xx) into a 503 AppError. Errors that already carry an
// AppError are returned unchanged.
func Classify(err error, service string) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}

	var se *ServerError
	if errors.As(err, &se) {
		return errorFromBody(service, se.StatusCode, se.Body)
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return apperrors.ServiceUnavailable(service+" temporarily unavailable", err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return apperrors.ServiceUnavailable(service+" unreachable", err)
	}
}

// DownstreamCode returns the downstream error code carried by err, if any.
func DownstreamCode(err error) string {
	var d *DownstreamError
	if errors.As(err, &d) {
		return d.Code
	}
	return ""
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
