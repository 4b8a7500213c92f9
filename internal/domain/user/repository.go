package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Repository defines user data access interface
type Repository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByPhone(ctx context.Context, phone string) (*User, error)
	Update(ctx context.Context, user *User) error
	UpdateOnboardingStep(ctx context.Context, id uuid.UUID, step OnboardingStep) error
	UpdateKYC(ctx context.Context, id uuid.UUID, status KYCStatus, bvn, dateOfBirth string) error
	UpdatePIN(ctx context.Context, id uuid.UUID, pinHash string) error
	UpdatePINFailures(ctx context.Context, id uuid.UUID, failures int, lockedUntil *time.Time) error
	SetDisabled(ctx context.Context, id uuid.UUID, disabled bool) error
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates new user repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const userColumns = `
	id, phone, display_name, kyc_status, onboarding_step, bvn, date_of_birth,
	pin_hash, pin_failures, pin_locked_until, disabled, created_at, updated_at
`

func (r *repository) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, phone, display_name, kyc_status, onboarding_step)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Phone,
		user.DisplayName,
		user.KYCStatus,
		user.OnboardingStep,
	)
	if err != nil {
		return fmt.Errorf("user repository create: %w", err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var user User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *repository) GetByPhone(ctx context.Context, phone string) (*User, error) {
	var user User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE phone = $1`, phone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *repository) Update(ctx context.Context, user *User) error {
	query := `
		UPDATE users
		SET display_name = $2, kyc_status = $3, onboarding_step = $4,
		    bvn = $5, date_of_birth = $6, updated_at = now()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.DisplayName,
		user.KYCStatus,
		user.OnboardingStep,
		user.BVN,
		user.DateOfBirth,
	)
	if err != nil {
		return fmt.Errorf("user repository update: %w", err)
	}
	return nil
}

func (r *repository) UpdateOnboardingStep(ctx context.Context, id uuid.UUID, step OnboardingStep) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET onboarding_step = $2, updated_at = now() WHERE id = $1`, id, step)
	if err != nil {
		return fmt.Errorf("user repository update onboarding step: %w", err)
	}
	return nil
}

func (r *repository) UpdateKYC(ctx context.Context, id uuid.UUID, status KYCStatus, bvn, dateOfBirth string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET kyc_status = $2,
		    bvn = NULLIF($3, ''),
		    date_of_birth = NULLIF($4, ''),
		    updated_at = now()
		WHERE id = $1
	`, id, status, bvn, dateOfBirth)
	if err != nil {
		return fmt.Errorf("user repository update kyc: %w", err)
	}
	return nil
}

func (r *repository) UpdatePIN(ctx context.Context, id uuid.UUID, pinHash string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET pin_hash = $2, pin_failures = 0, pin_locked_until = NULL, updated_at = now()
		WHERE id = $1
	`, id, pinHash)
	if err != nil {
		return fmt.Errorf("user repository update pin: %w", err)
	}
	return nil
}

func (r *repository) UpdatePINFailures(ctx context.Context, id uuid.UUID, failures int, lockedUntil *time.Time) error {
	var locked sql.NullTime
	if lockedUntil != nil {
		locked = sql.NullTime{Time: *lockedUntil, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET pin_failures = $2, pin_locked_until = $3, updated_at = now() WHERE id = $1
	`, id, failures, locked)
	if err != nil {
		return fmt.Errorf("user repository update pin failures: %w", err)
	}
	return nil
}

func (r *repository) SetDisabled(ctx context.Context, id uuid.UUID, disabled bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET disabled = $2, updated_at = now() WHERE id = $1`, id, disabled)
	if err != nil {
		return fmt.Errorf("user repository set disabled: %w", err)
	}
	return nil
}
