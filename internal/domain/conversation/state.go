// Package conversation is the per-user state machine and command dispatch
// core. Each inbound event either continues a pending multi-turn
// interaction or is classified into a fresh intent.
package conversation

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/owopay/owo-api/internal/domain/session"
)

// State names. Absence of a stored state is Idle.
const (
	StateTransferAwaitingDetails = "transfer.awaiting_details"
	StateTransferAwaitingConfirm = "transfer.awaiting_confirm"
	StateTransferAwaitingPIN     = "transfer.awaiting_pin"
	StateAirtimeAwaitingDetails  = "airtime.awaiting_details"
	StateAirtimeAwaitingConfirm  = "airtime.awaiting_confirm"
	StateAirtimeAwaitingPIN      = "airtime.awaiting_pin"
	StateBillAwaitingDetails     = "bill.awaiting_details"
	StateBillAwaitingConfirm     = "bill.awaiting_confirm"
	StateBillAwaitingPIN         = "bill.awaiting_pin"
	StateDataInFlow              = "data_purchase.in_flow"
	StateOnboardingInFlow        = "onboarding.in_flow"
)

const (
	// StateTTL bounds any pending interaction.
	StateTTL = 30 * time.Minute
	// PINStateTTL is shorter: a PIN prompt should not linger.
	PINStateTTL = 10 * time.Minute
)

// State is the persisted conversation position for one user.
type State struct {
	Name      string          `json:"name"`
	Data      json.RawMessage `json:"data,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func awaitsPIN(name string) bool {
	return strings.HasSuffix(name, ".awaiting_pin")
}

func stateTTL(name string) time.Duration {
	if awaitsPIN(name) {
		return PINStateTTL
	}
	return StateTTL
}

// StateStore persists conversation states keyed by user id, separate from
// the feature-namespaced session drafts.
type StateStore struct {
	kv session.KV
}

func NewStateStore(rdb *redis.Client) *StateStore {
	return &StateStore{kv: session.NewRedisKV(rdb)}
}

func NewStateStoreWithKV(kv session.KV) *StateStore {
	return &StateStore{kv: kv}
}

func stateKey(userID string) string {
	return "conversation_state:" + userID
}

// Get returns the user's pending state, or nil when idle. States older than
// their TTL are treated as idle even if the backend kept them.
func (s *StateStore) Get(ctx context.Context, userID string) (*State, error) {
	raw, found, err := s.kv.Get(ctx, stateKey(userID))
	if err != nil || !found {
		return nil, err
	}
	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Corrupt conversation state, resetting")
		return nil, nil
	}
	if time.Since(st.UpdatedAt) > stateTTL(st.Name) {
		return nil, nil
	}
	return &st, nil
}

// Set replaces the user's pending state.
func (s *StateStore) Set(ctx context.Context, userID, name string, data any) error {
	var payload json.RawMessage
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		payload = raw
	}
	st := State{Name: name, Data: payload, UpdatedAt: time.Now().UTC()}
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, stateKey(userID), string(raw), stateTTL(name))
}

// Clear returns the user to Idle.
func (s *StateStore) Clear(ctx context.Context, userID string) error {
	return s.kv.Del(ctx, stateKey(userID))
}
