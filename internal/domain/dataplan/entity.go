// Package dataplan is the catalog of purchasable mobile data bundles.
package dataplan

import (
	"time"

	"github.com/google/uuid"
)

// Network identifies a mobile operator.
type Network string

const (
	NetworkMTN     Network = "mtn"
	NetworkGlo     Network = "glo"
	NetworkAirtel  Network = "airtel"
	Network9Mobile Network = "9mobile"
)

// Plan is one purchasable bundle (matches data_plans table). SellingPrice is
// in kobo and is what the user pays; the provider's own code travels in
// ExternalID.
type Plan struct {
	ID           uuid.UUID `db:"id"`
	Network      Network   `db:"network"`
	ExternalID   string    `db:"external_id"`
	Name         string    `db:"name"`
	SizeMB       int       `db:"size_mb"`
	ValidityDays int       `db:"validity_days"`
	SellingPrice int64     `db:"selling_price"`
	Active       bool      `db:"active"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}
