package notification

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/owopay/owo-api/internal/pkg/whatsapp"
)

// platformSender is the slice of the messaging client the emitter uses.
type platformSender interface {
	SendText(ctx context.Context, to, body string) (*whatsapp.SendResponse, error)
	SendButtons(ctx context.Context, to, body string, buttons []whatsapp.Button) (*whatsapp.SendResponse, error)
	SendList(ctx context.Context, to, body, buttonText string, sections []whatsapp.ListSection) (*whatsapp.SendResponse, error)
	SendFlow(ctx context.Context, to string, inv whatsapp.FlowInvitation) (*whatsapp.SendResponse, error)
	SendDocument(ctx context.Context, to, mediaID, filename string) (*whatsapp.SendResponse, error)
	MarkRead(ctx context.Context, messageID string) error
	UploadMedia(ctx context.Context, data []byte, mimeType, filename string) (string, error)
}

// Emitter composes and dispatches outbound messages. Sends are best-effort:
// a failed send is logged and recorded, never propagated to the caller's
// business flow.
type Emitter struct {
	client platformSender
	repo   Repository
}

func NewEmitter(client platformSender, repo Repository) *Emitter {
	return &Emitter{client: client, repo: repo}
}

// Acknowledge marks the inbound message read, which also shows the typing
// indicator while the turn is being processed.
func (e *Emitter) Acknowledge(ctx context.Context, messageID string) {
	if messageID == "" {
		return
	}
	if err := e.client.MarkRead(ctx, messageID); err != nil {
		log.Warn().Err(err).Str("message_id", messageID).Msg("Failed to mark message read")
	}
}

// Text sends a plain text message.
func (e *Emitter) Text(ctx context.Context, userID uuid.UUID, to, body string) {
	resp, err := e.client.SendText(ctx, to, body)
	e.record(ctx, userID, KindText, body, resp, err)
}

// Buttons sends a button prompt with up to three reply buttons.
func (e *Emitter) Buttons(ctx context.Context, userID uuid.UUID, to, body string, buttons []whatsapp.Button) {
	resp, err := e.client.SendButtons(ctx, to, body, buttons)
	e.record(ctx, userID, KindButtons, body, resp, err)
}

// List sends a list prompt.
func (e *Emitter) List(ctx context.Context, userID uuid.UUID, to, body, buttonText string, sections []whatsapp.ListSection) {
	resp, err := e.client.SendList(ctx, to, body, buttonText, sections)
	e.record(ctx, userID, KindList, body, resp, err)
}

// FlowInvitation sends a structured-form invitation.
func (e *Emitter) FlowInvitation(ctx context.Context, userID uuid.UUID, to string, inv whatsapp.FlowInvitation) {
	resp, err := e.client.SendFlow(ctx, to, inv)
	e.record(ctx, userID, KindFlow, inv.Body, resp, err)
}

// Receipt sends a rendered receipt as a text message.
func (e *Emitter) Receipt(ctx context.Context, userID uuid.UUID, to, body string) {
	resp, err := e.client.SendText(ctx, to, body)
	e.record(ctx, userID, KindReceipt, body, resp, err)
}

func (e *Emitter) record(ctx context.Context, userID uuid.UUID, kind Kind, body string, resp *whatsapp.SendResponse, sendErr error) {
	status := StatusSent
	if sendErr != nil {
		status = StatusFailed
		log.Error().Err(sendErr).Str("user_id", userID.String()).Str("kind", string(kind)).Msg("Outbound send failed")
	}

	if e.repo == nil {
		return
	}
	n := &Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Kind:      kind,
		Body:      body,
		MessageID: resp.MessageID(),
		Status:    status,
	}
	if err := e.repo.Create(ctx, n); err != nil {
		// The log is advisory; message delivery is what matters.
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("Failed to record notification")
	}
}
