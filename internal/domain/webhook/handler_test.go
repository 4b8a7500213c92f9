package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/owopay/owo-api/internal/pkg/whatsapp"
)

type recordingProcessor struct {
	events chan whatsapp.InboundEvent
}

func (p *recordingProcessor) HandleEvent(_ context.Context, ev whatsapp.InboundEvent) {
	p.events <- ev
}

func newTestHandler(t *testing.T) (*Handler, *recordingProcessor) {
	t.Helper()
	proc := &recordingProcessor{events: make(chan whatsapp.InboundEvent, 16)}
	h := NewHandler("verify-me", proc, 2)
	t.Cleanup(h.Close)
	return h, proc
}

func TestVerifyEchoesChallenge(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	h.Verify(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "12345" {
		t.Errorf("body = %q, want the challenge echoed back", rec.Body.String())
	}
}

func TestVerifyRejectsBadToken(t *testing.T) {
	h, _ := newTestHandler(t)

	cases := []string{
		"/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345",
		"/webhook?hub.mode=unsubscribe&hub.verify_token=verify-me&hub.challenge=12345",
		"/webhook",
	}
	for _, target := range cases {
		rec := httptest.NewRecorder()
		h.Verify(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s: status = %d, want 403", target, rec.Code)
		}
		if strings.Contains(rec.Body.String(), "12345") {
			t.Errorf("%s: challenge must not leak on rejection", target)
		}
	}
}

func TestReceiveAcknowledgesAndDispatches(t *testing.T) {
	h, proc := newTestHandler(t)

	payload := `{
	  "object": "whatsapp_business_account",
	  "entry": [{"changes": [{"value": {
	    "contacts": [{"profile": {"name": "Ada"}, "wa_id": "2348012345678"}],
	    "messages": [{"from": "2348012345678", "id": "wamid.t1", "timestamp": "1700000000",
	      "type": "text", "text": {"body": "balance"}}]
	  }}]}]
	}`
	rec := httptest.NewRecorder()
	h.Receive(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	select {
	case ev := <-proc.events:
		if ev.Type != whatsapp.EventText || ev.Text != "balance" {
			t.Errorf("dispatched event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event never reached the processor")
	}
}

func TestReceiveFullQueueRequestsRedelivery(t *testing.T) {
	oldWait := enqueueWait
	enqueueWait = 20 * time.Millisecond
	defer func() { enqueueWait = oldWait }()

	// No workers: the single queue slot fills and stays full.
	h := &Handler{
		verifyToken: "verify-me",
		queue:       make(chan whatsapp.InboundEvent, 1),
	}

	payload := `{
	  "object": "whatsapp_business_account",
	  "entry": [{"changes": [{"value": {
	    "contacts": [{"profile": {"name": "Ada"}, "wa_id": "2348012345678"}],
	    "messages": [
	      {"from": "2348012345678", "id": "wamid.q1", "timestamp": "1700000000",
	        "type": "text", "text": {"body": "balance"}},
	      {"from": "2348012345678", "id": "wamid.q2", "timestamp": "1700000001",
	        "type": "text", "text": {"body": "help"}}
	    ]
	  }}]}]
	}`
	rec := httptest.NewRecorder()
	h.Receive(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload)))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 so the platform redelivers", rec.Code)
	}
}

func TestReceiveSwallowsGarbage(t *testing.T) {
	h, proc := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Receive(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("not json")))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; malformed payloads still get a 200", rec.Code)
	}
	select {
	case ev := <-proc.events:
		t.Fatalf("garbage produced an event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
