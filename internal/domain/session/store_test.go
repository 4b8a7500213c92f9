package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

type memoryKV struct {
	data map[string]string
}

func newMemoryKV() *memoryKV {
	return &memoryKV{data: make(map[string]string)}
}

func (m *memoryKV) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.data[key] = value
	return nil
}

func (m *memoryKV) Get(_ context.Context, key string) (string, bool, error) {
	val, ok := m.data[key]
	return val, ok, nil
}

func (m *memoryKV) Del(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

type transferDraft struct {
	Amount  int64  `json:"amount"`
	Account string `json:"account"`
}

func TestStoreRoundTrip(t *testing.T) {
	kv := newMemoryKV()
	store := NewStoreWithKV(kv)
	ctx := context.Background()

	in := transferDraft{Amount: 500000, Account: "0123456789"}
	if err := store.Set(ctx, FeatureTransfer, "user-1", in, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	var out transferDraft
	found, err := store.Get(ctx, FeatureTransfer, "user-1", &out)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found {
		t.Fatal("expected hit")
	}
	if out != in {
		t.Errorf("got %+v, want %+v", out, in)
	}
}

func TestStoreMiss(t *testing.T) {
	store := NewStoreWithKV(newMemoryKV())

	var out transferDraft
	found, err := store.Get(context.Background(), FeatureTransfer, "absent", &out)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found {
		t.Error("expected miss for absent key")
	}
}

func TestStoreFeatureMismatchIsMiss(t *testing.T) {
	kv := newMemoryKV()
	store := NewStoreWithKV(kv)
	ctx := context.Background()

	if err := store.Set(ctx, FeatureAirtime, "user-1", transferDraft{Amount: 100}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	// Force the stored envelope onto the transfer key, simulating a collision.
	kv.data["transfer:user-1"] = kv.data["airtime:user-1"]

	var out transferDraft
	found, err := store.Get(ctx, FeatureTransfer, "user-1", &out)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found {
		t.Error("cross-feature read must be a miss")
	}
}

func TestStoreExpiredEnvelopeIsMiss(t *testing.T) {
	kv := newMemoryKV()
	store := NewStoreWithKV(kv)
	ctx := context.Background()

	// The backend TTL is ignored by the fake, so only the envelope guards
	// against stale reads here.
	if err := store.Set(ctx, FeatureLogin, "user-1", "session-key", -time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}

	var out string
	found, err := store.Get(ctx, FeatureLogin, "user-1", &out)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found {
		t.Error("expired envelope must be a miss")
	}
}

func TestStoreDelete(t *testing.T) {
	kv := newMemoryKV()
	store := NewStoreWithKV(kv)
	ctx := context.Background()

	if err := store.Set(ctx, FeatureOnboarding, "user-1", "greeting", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Delete(ctx, FeatureOnboarding, "user-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	found, err := store.Get(ctx, FeatureOnboarding, "user-1", nil)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found {
		t.Error("expected miss after delete")
	}
}

func TestStoreEnvelopeShape(t *testing.T) {
	kv := newMemoryKV()
	store := NewStoreWithKV(kv)

	if err := store.Set(context.Background(), FeatureBills, "user-9", transferDraft{Amount: 1}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal([]byte(kv.data["bills:user-9"]), &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	for _, field := range []string{"feature", "namespace", "created_at", "expires_at", "payload"} {
		if _, ok := env[field]; !ok {
			t.Errorf("envelope missing field %q", field)
		}
	}
}
