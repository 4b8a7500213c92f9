package dataplan

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("data plan not found")

// Repository defines data plan catalog access
type Repository interface {
	ListByNetwork(ctx context.Context, network Network) ([]Plan, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Plan, error)
	Upsert(ctx context.Context, plan *Plan) error
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates new data plan repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const planColumns = `
	id, network, external_id, name, size_mb, validity_days, selling_price, active, created_at, updated_at
`

func (r *repository) ListByNetwork(ctx context.Context, network Network) ([]Plan, error) {
	var plans []Plan
	err := r.db.SelectContext(ctx, &plans, `
		SELECT `+planColumns+`
		FROM data_plans
		WHERE network = $1 AND active = true
		ORDER BY selling_price ASC
	`, network)
	if err != nil {
		return nil, fmt.Errorf("data plan repository list: %w", err)
	}
	return plans, nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Plan, error) {
	var plan Plan
	err := r.db.GetContext(ctx, &plan, `SELECT `+planColumns+` FROM data_plans WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

// Upsert refreshes a catalog row keyed on the provider's plan code.
func (r *repository) Upsert(ctx context.Context, plan *Plan) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO data_plans (id, network, external_id, name, size_mb, validity_days, selling_price, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (network, external_id) DO UPDATE
		SET name = EXCLUDED.name,
		    size_mb = EXCLUDED.size_mb,
		    validity_days = EXCLUDED.validity_days,
		    selling_price = EXCLUDED.selling_price,
		    active = EXCLUDED.active,
		    updated_at = now()
	`, plan.ID, plan.Network, plan.ExternalID, plan.Name, plan.SizeMB, plan.ValidityDays, plan.SellingPrice, plan.Active)
	if err != nil {
		return fmt.Errorf("data plan repository upsert: %w", err)
	}
	return nil
}
