package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/owopay/owo-api/internal/pkg/money"
	"github.com/owopay/owo-api/internal/pkg/storage"
)

// Receipt carries the fields rendered into a transaction receipt.
type Receipt struct {
	Title       string
	Reference   string
	Amount      int64
	Fee         int64
	Recipient   string
	Detail      string
	Token       string // prepaid meter token, when present
	CompletedAt time.Time
}

// RenderText renders the receipt in the fixed-width style sent over chat.
func RenderText(r Receipt) string {
	var b strings.Builder
	b.WriteString("✅ " + r.Title + "\n\n")
	b.WriteString("Amount: " + money.Format(r.Amount) + "\n")
	if r.Fee > 0 {
		b.WriteString("Fee: " + money.Format(r.Fee) + "\n")
		b.WriteString("Total: " + money.Format(r.Amount+r.Fee) + "\n")
	}
	if r.Recipient != "" {
		b.WriteString("To: " + r.Recipient + "\n")
	}
	if r.Detail != "" {
		b.WriteString(r.Detail + "\n")
	}
	if r.Token != "" {
		b.WriteString("Token: " + r.Token + "\n")
	}
	b.WriteString("Ref: " + r.Reference + "\n")
	b.WriteString("Date: " + r.CompletedAt.Format("Jan 2, 2006 3:04 PM"))
	return b.String()
}

// Archiver keeps a durable copy of every issued receipt in object storage.
type Archiver struct {
	store storage.Storage
}

func NewArchiver(store storage.Storage) *Archiver {
	return &Archiver{store: store}
}

// Archive stores the rendered receipt under receipts/<reference>.txt.
// Best-effort: failures are logged, the receipt is still delivered.
func (a *Archiver) Archive(ctx context.Context, reference, rendered string) {
	if a == nil || a.store == nil {
		return
	}
	key := fmt.Sprintf("receipts/%s.txt", reference)
	if err := a.store.Save(ctx, key, strings.NewReader(rendered), "text/plain; charset=utf-8"); err != nil {
		log.Warn().Err(err).Str("reference", reference).Msg("Failed to archive receipt")
	}
}
