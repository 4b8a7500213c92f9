package notification

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/owopay/owo-api/internal/pkg/whatsapp"
)

type fakeSender struct {
	sent    []string
	failAll bool
}

func (f *fakeSender) respond() (*whatsapp.SendResponse, error) {
	if f.failAll {
		return nil, errors.New("platform unreachable")
	}
	resp := &whatsapp.SendResponse{}
	resp.Messages = append(resp.Messages, struct {
		ID string `json:"id"`
	}{ID: "wamid.test"})
	return resp, nil
}

func (f *fakeSender) SendText(_ context.Context, _, body string) (*whatsapp.SendResponse, error) {
	f.sent = append(f.sent, body)
	return f.respond()
}

func (f *fakeSender) SendButtons(_ context.Context, _, body string, _ []whatsapp.Button) (*whatsapp.SendResponse, error) {
	f.sent = append(f.sent, body)
	return f.respond()
}

func (f *fakeSender) SendList(_ context.Context, _, body, _ string, _ []whatsapp.ListSection) (*whatsapp.SendResponse, error) {
	f.sent = append(f.sent, body)
	return f.respond()
}

func (f *fakeSender) SendFlow(_ context.Context, _ string, inv whatsapp.FlowInvitation) (*whatsapp.SendResponse, error) {
	f.sent = append(f.sent, inv.Body)
	return f.respond()
}

func (f *fakeSender) SendDocument(_ context.Context, _, _, _ string) (*whatsapp.SendResponse, error) {
	return f.respond()
}

func (f *fakeSender) MarkRead(_ context.Context, _ string) error {
	if f.failAll {
		return errors.New("platform unreachable")
	}
	return nil
}

func (f *fakeSender) UploadMedia(_ context.Context, _ []byte, _, _ string) (string, error) {
	return "media-1", nil
}

type recordingRepo struct {
	created []Notification
	fail    bool
}

func (r *recordingRepo) Create(_ context.Context, n *Notification) error {
	if r.fail {
		return errors.New("db down")
	}
	r.created = append(r.created, *n)
	return nil
}

func (r *recordingRepo) ListRecent(_ context.Context, _ uuid.UUID, _ int) ([]Notification, error) {
	return r.created, nil
}

func TestEmitterRecordsSends(t *testing.T) {
	sender := &fakeSender{}
	repo := &recordingRepo{}
	e := NewEmitter(sender, repo)
	userID := uuid.New()

	e.Text(context.Background(), userID, "2348012345678", "hello")

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}
	if len(repo.created) != 1 {
		t.Fatalf("recorded %d notifications, want 1", len(repo.created))
	}
	n := repo.created[0]
	if n.Status != StatusSent || n.MessageID != "wamid.test" || n.Kind != KindText {
		t.Errorf("unexpected record: %+v", n)
	}
}

func TestEmitterSendFailureIsRecordedNotRaised(t *testing.T) {
	sender := &fakeSender{failAll: true}
	repo := &recordingRepo{}
	e := NewEmitter(sender, repo)

	// Must not panic or propagate; status recorded as failed.
	e.Text(context.Background(), uuid.New(), "2348012345678", "hello")

	if len(repo.created) != 1 {
		t.Fatalf("recorded %d notifications, want 1", len(repo.created))
	}
	if repo.created[0].Status != StatusFailed {
		t.Errorf("status = %s, want %s", repo.created[0].Status, StatusFailed)
	}
}

func TestEmitterRecordFailureIsSwallowed(t *testing.T) {
	sender := &fakeSender{}
	repo := &recordingRepo{fail: true}
	e := NewEmitter(sender, repo)

	// Log write failing must never affect delivery.
	e.Text(context.Background(), uuid.New(), "2348012345678", "hello")

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}
}

func TestRenderTextReceipt(t *testing.T) {
	r := Receipt{
		Title:       "Transfer Successful",
		Reference:   "TRANSFER_1709913600_a1b2c3",
		Amount:      500000,
		Fee:         5000,
		Recipient:   "ADA OBI - 0123456789 (Zenith Bank)",
		CompletedAt: time.Date(2026, 3, 8, 15, 4, 0, 0, time.UTC),
	}
	out := RenderText(r)

	for _, want := range []string{"₦5,000", "₦50", "₦5,050", "ADA OBI", "TRANSFER_1709913600_a1b2c3", "Mar 8, 2026"} {
		if !strings.Contains(out, want) {
			t.Errorf("receipt missing %q:\n%s", want, out)
		}
	}
}
