package user

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// KYCStatus represents KYC verification state (matches kyc_status enum)
type KYCStatus string

const (
	KYCUnverified KYCStatus = "unverified"
	KYCPending    KYCStatus = "pending"
	KYCVerified   KYCStatus = "verified"
	KYCRejected   KYCStatus = "rejected"
)

// OnboardingStep tracks progress through account setup
type OnboardingStep string

const (
	StepInitial             OnboardingStep = "initial"
	StepGreeting            OnboardingStep = "greeting"
	StepKYCCollection       OnboardingStep = "kyc_collection"
	StepKYCVerifying        OnboardingStep = "kyc_verifying"
	StepPINSetup            OnboardingStep = "pin_setup"
	StepAccountProvisioning OnboardingStep = "account_provisioning"
	StepCompleted           OnboardingStep = "completed"
)

// User represents a customer reached over WhatsApp (matches users table)
type User struct {
	ID          uuid.UUID `db:"id"`
	Phone       string    `db:"phone"` // canonical E.164
	DisplayName string    `db:"display_name"`

	KYCStatus      KYCStatus      `db:"kyc_status"`
	OnboardingStep OnboardingStep `db:"onboarding_step"`
	BVN            sql.NullString `db:"bvn"`
	DateOfBirth    sql.NullString `db:"date_of_birth"`

	PINHash         sql.NullString `db:"pin_hash"`
	PINFailures     int            `db:"pin_failures"`
	PINLockedUntil  sql.NullTime   `db:"pin_locked_until"`

	Disabled bool `db:"disabled"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// IsOnboarded returns true once account setup completed
func (u *User) IsOnboarded() bool {
	return u.OnboardingStep == StepCompleted
}

// HasPIN returns true if the user has set a transaction PIN
func (u *User) HasPIN() bool {
	return u.PINHash.Valid && u.PINHash.String != ""
}

// PINLocked reports whether PIN entry is currently locked out
func (u *User) PINLocked(now time.Time) bool {
	return u.PINLockedUntil.Valid && now.Before(u.PINLockedUntil.Time)
}
