// Package session remembers the most recent prediction made for a browser
// session so it can be fetched again without re-uploading.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/skin-check/internal/logging"
	"github.com/example/skin-check/internal/retry"
)

// ErrNoPrediction is returned when the session has no stored prediction.
var ErrNoPrediction = errors.New("no prediction for session")

// DefaultTTL is how long a session keeps its last prediction.
const DefaultTTL = 24 * time.Hour

// Cache is the subset of redis operations the store needs.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// Prediction is the remembered outcome of an admitted upload.
type Prediction struct {
	RequestID  string    `json:"request_id"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Degraded   bool      `json:"degraded"`
	Red        int       `json:"red"`
	Green      int       `json:"green"`
	ImageURL   string    `json:"image_url"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store keeps one Prediction per session id.
type Store struct {
	cache  Cache
	ttl    time.Duration
	policy retry.Policy
	logger *zap.Logger
}

// NewStore creates a store. A non-positive ttl selects DefaultTTL.
func NewStore(cache Cache, ttl time.Duration, logger *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		cache:  cache,
		ttl:    ttl,
		policy: retry.DefaultPolicy(),
		logger: logger.Named("session_store"),
	}
}

func key(sessionID string) string {
	return fmt.Sprintf("session:%s:last_prediction", sessionID)
}

// SetLast replaces the stored prediction for sessionID.
func (s *Store) SetLast(ctx context.Context, sessionID string, p Prediction) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return logging.NewOperationError("session.encode", p.RequestID, err)
	}
	return retry.Do(ctx, s.logger, s.policy, "session.set", p.RequestID, func() error {
		return s.cache.Set(ctx, key(sessionID), string(payload), s.ttl)
	})
}

// Last returns the stored prediction or ErrNoPrediction.
func (s *Store) Last(ctx context.Context, sessionID string) (*Prediction, error) {
	var raw string
	policy := s.policy.WithExpected(func(err error) bool { return errors.Is(err, redis.Nil) })
	err := retry.Do(ctx, s.logger, policy, "session.get", "", func() error {
		value, err := s.cache.Get(ctx, key(sessionID))
		if err != nil {
			return err
		}
		raw = value
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoPrediction
	}
	if err != nil {
		return nil, err
	}

	var p Prediction
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		s.logger.Warn("discarding undecodable session entry", zap.Error(err))
		return nil, ErrNoPrediction
	}
	return &p, nil
}

// Clear forgets the prediction for sessionID.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	return retry.Do(ctx, s.logger, s.policy, "session.clear", "", func() error {
		return s.cache.Del(ctx, key(sessionID))
	})
}
