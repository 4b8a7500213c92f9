package conversation

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/owopay/owo-api/internal/domain/user"
	"github.com/owopay/owo-api/internal/pkg/imaging"
	"github.com/owopay/owo-api/internal/pkg/storage"
	"github.com/owopay/owo-api/internal/pkg/whatsapp"
)

// mediaSource is the slice of the platform client media ingest pulls from.
type mediaSource interface {
	DownloadMedia(ctx context.Context, mediaID string) ([]byte, string, error)
}

// MediaIngest pulls inbound attachments off the platform, validates them and
// keeps them as the user's documents. Images are re-encoded and bounded
// before storage.
type MediaIngest struct {
	source mediaSource
	files  storage.Storage
	images *imaging.Processor
}

func NewMediaIngest(source mediaSource, files storage.Storage, images *imaging.Processor) *MediaIngest {
	return &MediaIngest{source: source, files: files, images: images}
}

// Ingest downloads, validates and stores one attachment. Returns the logical
// storage path.
func (m *MediaIngest) Ingest(ctx context.Context, userID uuid.UUID, ev *whatsapp.MediaEvent) (string, error) {
	data, _, err := m.source.DownloadMedia(ctx, ev.MediaID)
	if err != nil {
		return "", fmt.Errorf("download media %s: %w", ev.MediaID, err)
	}

	buf, mimeType, err := storage.ValidateAndBuffer(bytes.NewReader(data), storage.CategoryDocument)
	if err != nil {
		return "", err
	}

	body := buf.Bytes()
	if ev.Kind == whatsapp.MediaImage && m.images != nil {
		processed, pErr := m.images.Process(bytes.NewReader(body))
		if pErr != nil {
			return "", fmt.Errorf("process image %s: %w", ev.MediaID, pErr)
		}
		body = processed.Original
		mimeType = processed.ContentType
	}

	path := fmt.Sprintf("documents/%s/%s%s", userID, ev.MediaID, storage.GetExtensionForMime(mimeType))
	if err := m.files.Save(ctx, path, bytes.NewReader(body), mimeType); err != nil {
		return "", fmt.Errorf("store document %s: %w", path, err)
	}
	return path, nil
}

// handleMedia accepts images and documents as supporting documents; anything
// else gets a polite refusal.
func (e *Engine) handleMedia(ctx context.Context, u *user.User, ev whatsapp.InboundEvent) {
	if ev.Media == nil {
		return
	}
	if ev.Media.Kind != whatsapp.MediaImage && ev.Media.Kind != whatsapp.MediaDocument {
		e.emitter.Text(ctx, u.ID, u.Phone, "I can't do anything with that yet. Type *help* to see what I can do.")
		return
	}
	if e.media == nil {
		e.emitter.Text(ctx, u.ID, u.Phone, "I can't receive files right now. Please try again later.")
		return
	}

	path, err := e.media.Ingest(ctx, u.ID, ev.Media)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrFileTooLarge):
			e.emitter.Text(ctx, u.ID, u.Phone, "That file is too large. Please send something under 10 MB.")
		case errors.Is(err, storage.ErrInvalidMimeType):
			e.emitter.Text(ctx, u.ID, u.Phone, "I can only accept photos and PDF documents.")
		default:
			e.systemError(ctx, u, err, "Media ingest failed")
		}
		return
	}

	log.Info().Str("user_id", u.ID.String()).Str("path", path).Msg("Stored inbound document")
	e.emitter.Text(ctx, u.ID, u.Phone, "Got it 📎 — your document has been saved securely.")
}
