// Package session is the fast key/value store for per-user conversation
// state, flow sessions and login keys. Keys are namespaced per feature and
// values carry an envelope so a key collision across features reads as a
// miss instead of leaking state.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Feature namespaces. Cross-namespace reads are not permitted.
type Feature string

const (
	FeatureOnboarding    Feature = "onboarding"
	FeatureTransfer      Feature = "transfer"
	FeatureDataPurchase  Feature = "data_purchase"
	FeatureAirtime       Feature = "airtime"
	FeatureBills         Feature = "bills"
	FeatureLogin         Feature = "login"
	FeaturePINManagement Feature = "pin_management"
	FeatureWallet        Feature = "wallet"
	FeatureVirtualCard   Feature = "virtual_card"
	FeatureFlow          Feature = "flow"
)

// KV is the raw key/value backend. Redis in production, an in-memory fake in
// tests.
type KV interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Del(ctx context.Context, key string) error
}

type envelope struct {
	Feature   string          `json:"feature"`
	Namespace string          `json:"namespace"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
	Payload   json.RawMessage `json:"payload"`
}

// Store wraps the backend with feature-scoped envelopes.
type Store struct {
	kv KV
}

// NewStore creates a session store over redis.
func NewStore(rdb *redis.Client) *Store {
	return &Store{kv: &redisKV{rdb: rdb}}
}

// NewStoreWithKV creates a session store over an arbitrary backend.
func NewStoreWithKV(kv KV) *Store {
	return &Store{kv: kv}
}

// Set stores value under "<feature>:<identifier>" with the given TTL.
func (s *Store) Set(ctx context.Context, feature Feature, identifier string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("session set %s:%s: %w", feature, identifier, err)
	}
	now := time.Now().UTC()
	env := envelope{
		Feature:   string(feature),
		Namespace: string(feature),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Payload:   payload,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("session set %s:%s: %w", feature, identifier, err)
	}
	return s.kv.Set(ctx, key(feature, identifier), string(raw), ttl)
}

// Get reads a value into out. Returns false when the key is absent, expired,
// or stored by a different feature.
func (s *Store) Get(ctx context.Context, feature Feature, identifier string, out any) (bool, error) {
	raw, found, err := s.kv.Get(ctx, key(feature, identifier))
	if err != nil || !found {
		return false, err
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return false, fmt.Errorf("session get %s:%s: %w", feature, identifier, err)
	}
	if env.Feature != string(feature) {
		// Defense against accidental key collision across features.
		log.Warn().
			Str("key", key(feature, identifier)).
			Str("stored_feature", env.Feature).
			Str("requested_feature", string(feature)).
			Msg("Session envelope feature mismatch, treating as miss")
		return false, nil
	}
	if !env.ExpiresAt.IsZero() && time.Now().After(env.ExpiresAt) {
		return false, nil
	}

	if out == nil {
		return true, nil
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		return false, fmt.Errorf("session get %s:%s: %w", feature, identifier, err)
	}
	return true, nil
}

// Delete removes a key.
func (s *Store) Delete(ctx context.Context, feature Feature, identifier string) error {
	return s.kv.Del(ctx, key(feature, identifier))
}

func key(feature Feature, identifier string) string {
	return string(feature) + ":" + identifier
}

// NewRedisKV exposes the redis backend for callers that need raw keys
// outside the feature namespaces.
func NewRedisKV(rdb *redis.Client) KV {
	return &redisKV{rdb: rdb}
}

type redisKV struct {
	rdb *redis.Client
}

func (r *redisKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

func (r *redisKV) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (r *redisKV) Del(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}
