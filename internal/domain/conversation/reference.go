package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// newReference builds the idempotency reference for a ledger entry:
// <CATEGORY>_<unix-ts>_<user-id-suffix>. The same user retrying a fresh
// operation gets a fresh reference; replays of one operation reuse the
// reference stored in the conversation draft.
func newReference(category string, userID uuid.UUID) string {
	id := userID.String()
	return fmt.Sprintf("%s_%d_%s", strings.ToUpper(category), time.Now().Unix(), id[len(id)-6:])
}

// shortCorrelationID tags a user-facing error so support can find the log
// line.
func shortCorrelationID() string {
	return uuid.NewString()[:8]
}
