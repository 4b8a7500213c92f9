// Package provider holds the pieces shared by all external provider
// adapters: the error taxonomy the handlers translate from, the retry
// classification, and the bearer-token cache.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrUnavailable: circuit open, timeout after retries, or 5xx. Mutating
	// operations stay pending for reconciliation.
	ErrUnavailable = errors.New("provider unavailable")
	// ErrRejected: definitive business error from the provider. Never retried.
	ErrRejected = errors.New("provider rejected request")
	// ErrAuth: credentials invalid or token expired beyond refresh.
	ErrAuth = errors.New("provider authentication failed")
	// ErrUnknownOutcome: the call timed out with no response code; the effect
	// on the provider side is unknown and must be resolved via GetStatus.
	ErrUnknownOutcome = errors.New("provider outcome unknown")
)

// APIError carries a provider HTTP failure with enough context to classify.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider api error: status=%d code=%s %s", e.Status, e.Code, e.Message)
}

// Retryable reports whether an error is safe to retry: network errors, 5xx,
// 408 and 429. Auth failures, validation errors and business rejections are
// not retried.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 || apiErr.Status == 408 || apiErr.Status == 429
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

// TokenCache caches provider bearer tokens in redis until shortly before
// expiry, so concurrent workers share one token per provider.
type TokenCache struct {
	rdb    *redis.Client
	prefix string
}

const tokenExpirySlack = 60 * time.Second

func NewTokenCache(rdb *redis.Client, providerName string) *TokenCache {
	return &TokenCache{rdb: rdb, prefix: "provider_token:" + providerName}
}

// Get returns the cached token, or empty when missing or expired.
func (c *TokenCache) Get(ctx context.Context) (string, error) {
	if c.rdb == nil {
		return "", nil
	}
	token, err := c.rdb.Get(ctx, c.prefix).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return token, err
}

// Put stores a token with a TTL of expiresIn minus a safety slack.
func (c *TokenCache) Put(ctx context.Context, token string, expiresIn time.Duration) error {
	if c.rdb == nil {
		return nil
	}
	ttl := expiresIn - tokenExpirySlack
	if ttl <= 0 {
		ttl = expiresIn
	}
	return c.rdb.Set(ctx, c.prefix, token, ttl).Err()
}

// Invalidate drops the cached token, forcing re-authentication.
func (c *TokenCache) Invalidate(ctx context.Context) error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, c.prefix).Err()
}
