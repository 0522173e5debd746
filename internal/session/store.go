// Package session keeps per-browser state in Redis: the last submitted
// review, the admin session, one-shot flash notices, and claimed
// submission tokens.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cybertron15/review-booster/internal/auth"
	"github.com/cybertron15/review-booster/internal/domain"
)

const (
	keyPrefix        = "session:"
	submissionPrefix = "submission:"

	fieldLastReview = "lastReview"
	fieldAuth       = "auth"
	fieldFlash      = "flash"
)

// Flash kinds.
const (
	FlashSuccess = "success"
	FlashError   = "error"
)

// Flash is a notice shown once on the next rendered page.
type Flash struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Store persists sessions as Redis hashes that expire after ttl of
// inactivity.
type Store struct {
	client   redis.UniversalClient
	ttl      time.Duration
	tokenTTL time.Duration
}

// NewStore creates a session store. tokenTTL bounds how long a claimed
// submission token is remembered.
func NewStore(client redis.UniversalClient, ttl, tokenTTL time.Duration) *Store {
	return &Store{client: client, ttl: ttl, tokenTTL: tokenTTL}
}

func sessionKey(sid string) string {
	return keyPrefix + sid
}

func (s *Store) setField(ctx context.Context, sid, field string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", field, err)
	}
	key := sessionKey(sid)
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, field, data)
		p.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set session %s: %w", field, err)
	}
	return nil
}

// getField decodes field into v. It reports false when the field is unset.
func (s *Store) getField(ctx context.Context, sid, field string, v any) (bool, error) {
	data, err := s.client.HGet(ctx, sessionKey(sid), field).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis get session %s: %w", field, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal session %s: %w", field, err)
	}
	return true, nil
}

// SetLastReview replaces the stored last review.
func (s *Store) SetLastReview(ctx context.Context, sid string, lr domain.LastReview) error {
	return s.setField(ctx, sid, fieldLastReview, lr)
}

// LastReview returns the stored last review, or nil when the session has
// none.
func (s *Store) LastReview(ctx context.Context, sid string) (*domain.LastReview, error) {
	var lr domain.LastReview
	ok, err := s.getField(ctx, sid, fieldLastReview, &lr)
	if err != nil || !ok {
		return nil, err
	}
	return &lr, nil
}

// SetAuth stores the admin session.
func (s *Store) SetAuth(ctx context.Context, sid string, as auth.Session) error {
	return s.setField(ctx, sid, fieldAuth, as)
}

// Auth returns the admin session, or nil when signed out.
func (s *Store) Auth(ctx context.Context, sid string) (*auth.Session, error) {
	var as auth.Session
	ok, err := s.getField(ctx, sid, fieldAuth, &as)
	if err != nil || !ok {
		return nil, err
	}
	return &as, nil
}

// ClearAuth signs the browser session out.
func (s *Store) ClearAuth(ctx context.Context, sid string) error {
	if err := s.client.HDel(ctx, sessionKey(sid), fieldAuth).Err(); err != nil {
		return fmt.Errorf("redis clear session auth: %w", err)
	}
	return nil
}

// AddFlash queues a notice for the next page.
func (s *Store) AddFlash(ctx context.Context, sid string, f Flash) error {
	var flashes []Flash
	if _, err := s.getField(ctx, sid, fieldFlash, &flashes); err != nil {
		return err
	}
	return s.setField(ctx, sid, fieldFlash, append(flashes, f))
}

// PopFlashes returns and removes the queued notices.
func (s *Store) PopFlashes(ctx context.Context, sid string) ([]Flash, error) {
	key := sessionKey(sid)

	var get *redis.StringCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		get = p.HGet(ctx, key, fieldFlash)
		p.HDel(ctx, key, fieldFlash)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis pop flashes: %w", err)
	}

	data, err := get.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis pop flashes: %w", err)
	}

	var flashes []Flash
	if err := json.Unmarshal(data, &flashes); err != nil {
		return nil, fmt.Errorf("unmarshal flashes: %w", err)
	}
	return flashes, nil
}

// ClaimSubmission marks token as used. It reports false when the token
// was already claimed, which means the submission is a repeat.
func (s *Store) ClaimSubmission(ctx context.Context, token string) (bool, error) {
	ok, err := s.client.SetNX(ctx, submissionPrefix+token, time.Now().UTC().Format(time.RFC3339), s.tokenTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis claim submission: %w", err)
	}
	return ok, nil
}

// ReleaseSubmission forgets a claimed token so the submission can be
// retried.
func (s *Store) ReleaseSubmission(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, submissionPrefix+token).Err(); err != nil {
		return fmt.Errorf("redis release submission: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
