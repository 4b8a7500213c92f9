package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Repository defines notification log access
type Repository interface {
	Create(ctx context.Context, n *Notification) error
	ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]Notification, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates new notification repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, n *Notification) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, kind, body, message_id, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, n.ID, n.UserID, n.Kind, n.Body, n.MessageID, n.Status)
	if err != nil {
		return fmt.Errorf("notification repository create: %w", err)
	}
	return nil
}

func (r *repository) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]Notification, error) {
	var items []Notification
	err := r.db.SelectContext(ctx, &items, `
		SELECT id, user_id, kind, body, message_id, status, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	return items, nil
}
