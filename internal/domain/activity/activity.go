// Package activity is the best-effort audit trail. Writes never fail the
// calling flow; a lost audit row is logged and forgotten.
package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/rs/zerolog/log"
)

// Entry is one audit row (matches activity_logs table)
type Entry struct {
	ID        uuid.UUID      `db:"id"`
	UserID    uuid.UUID      `db:"user_id"`
	Action    string         `db:"action"`
	Detail    types.JSONText `db:"detail"`
	CreatedAt time.Time      `db:"created_at"`
}

type Logger struct {
	db *sqlx.DB
}

func NewLogger(db *sqlx.DB) *Logger {
	return &Logger{db: db}
}

// Record writes an audit entry. Best-effort by contract.
func (l *Logger) Record(ctx context.Context, userID uuid.UUID, action string, detail types.JSONText) {
	if l == nil || l.db == nil {
		return
	}
	if detail == nil {
		detail = types.JSONText(`{}`)
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO activity_logs (id, user_id, action, detail)
		VALUES ($1, $2, $3, $4)
	`, uuid.New(), userID, action, detail)
	if err != nil {
		log.Warn().Err(err).Str("action", action).Msg("Activity log write failed")
	}
}
