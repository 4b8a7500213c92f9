package flow

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/owopay/owo-api/internal/domain/session"
)

// TokenTTL bounds how long a structured-form session may stay open.
const TokenTTL = 30 * time.Minute

var ErrTokenNotFound = errors.New("flow token unknown or expired")

// Type identifies which published flow a token belongs to.
type Type string

const (
	TypeOnboarding   Type = "onboarding"
	TypeLogin        Type = "login"
	TypeDataPurchase Type = "data_purchase"
)

// Session binds a flow token to exactly one user and flow type. It lives in
// the session store under the flow namespace for the token's lifetime.
type Session struct {
	Token         string    `json:"token"`
	UserID        uuid.UUID `json:"user_id"`
	Type          Type      `json:"type"`
	Phone         string    `json:"phone"`
	InitialScreen string    `json:"initial_screen"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// TokenService mints, binds and revokes flow tokens.
type TokenService struct {
	store *session.Store
}

func NewTokenService(store *session.Store) *TokenService {
	return &TokenService{store: store}
}

// Mint creates an unpredictable token bound to (user, flowType, phone) and
// persists the binding for TokenTTL.
func (s *TokenService) Mint(ctx context.Context, userID uuid.UUID, flowType Type, phone string) (*Session, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("mint flow token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	now := time.Now().UTC()
	sess := &Session{
		Token:         token,
		UserID:        userID,
		Type:          flowType,
		Phone:         phone,
		InitialScreen: InitialScreen(flowType),
		CreatedAt:     now,
		ExpiresAt:     now.Add(TokenTTL),
	}
	if err := s.store.Set(ctx, session.FeatureFlow, token, sess, TokenTTL); err != nil {
		return nil, fmt.Errorf("mint flow token: %w", err)
	}
	return sess, nil
}

// Bind resolves a token to its session. The token is not consumed; a flow
// exchanges several screens against the same binding.
func (s *TokenService) Bind(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrTokenNotFound
	}
	var sess Session
	found, err := s.store.Get(ctx, session.FeatureFlow, token, &sess)
	if err != nil {
		return nil, err
	}
	if !found || time.Now().After(sess.ExpiresAt) {
		return nil, ErrTokenNotFound
	}
	return &sess, nil
}

// Revoke deletes a token on terminal submission or cancellation.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	return s.store.Delete(ctx, session.FeatureFlow, token)
}
