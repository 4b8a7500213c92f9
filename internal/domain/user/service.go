package user

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/owopay/owo-api/internal/pkg/password"
)

const (
	maxPINFailures   = 3
	pinLockoutWindow = 15 * time.Minute
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetOrCreate looks the user up by canonical phone, creating a fresh record
// on first contact. The second return value reports whether the user is new.
func (s *Service) GetOrCreate(ctx context.Context, phone, displayName string) (*User, bool, error) {
	existing, err := s.repo.GetByPhone(ctx, phone)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if existing.Disabled {
			return nil, false, ErrDisabled
		}
		return existing, false, nil
	}

	u := &User{
		ID:             uuid.New(),
		Phone:          phone,
		DisplayName:    displayName,
		KYCStatus:      KYCUnverified,
		OnboardingStep: StepInitial,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		// Two first messages can race; the loser re-reads.
		prior, readErr := s.repo.GetByPhone(ctx, phone)
		if readErr == nil && prior != nil {
			return prior, false, nil
		}
		return nil, false, err
	}
	log.Info().Str("user_id", u.ID.String()).Msg("New user registered")
	return u, true, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrNotFound
	}
	return u, nil
}

func (s *Service) GetByPhone(ctx context.Context, phone string) (*User, error) {
	u, err := s.repo.GetByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrNotFound
	}
	return u, nil
}

// VerifyPIN checks a transaction PIN. Three consecutive failures lock PIN
// entry for fifteen minutes; a success resets the counter.
func (s *Service) VerifyPIN(ctx context.Context, u *User, pin string) error {
	if !u.HasPIN() {
		return ErrPINNotSet
	}
	now := time.Now().UTC()
	if u.PINLocked(now) {
		return ErrPINLocked
	}

	if password.VerifyPIN(pin, u.PINHash.String) {
		if u.PINFailures > 0 {
			if err := s.repo.UpdatePINFailures(ctx, u.ID, 0, nil); err != nil {
				return err
			}
			u.PINFailures = 0
		}
		return nil
	}

	failures := u.PINFailures + 1
	var lockedUntil *time.Time
	if failures >= maxPINFailures {
		until := now.Add(pinLockoutWindow)
		lockedUntil = &until
		log.Warn().Str("user_id", u.ID.String()).Msg("PIN entry locked after repeated failures")
	}
	if err := s.repo.UpdatePINFailures(ctx, u.ID, failures, lockedUntil); err != nil {
		return err
	}
	u.PINFailures = failures
	if lockedUntil != nil {
		return ErrPINLocked
	}
	return ErrPINMismatch
}

// SetPIN hashes and stores a new transaction PIN, clearing any lockout.
func (s *Service) SetPIN(ctx context.Context, id uuid.UUID, pin string) error {
	hash, err := password.HashPIN(pin)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePIN(ctx, id, hash); err != nil {
		return fmt.Errorf("set pin: %w", err)
	}
	return nil
}

// SubmitKYC records the user's identity details and moves KYC to pending
// verification.
func (s *Service) SubmitKYC(ctx context.Context, id uuid.UUID, bvn, dateOfBirth string) error {
	return s.repo.UpdateKYC(ctx, id, KYCPending, bvn, dateOfBirth)
}

func (s *Service) AdvanceOnboarding(ctx context.Context, id uuid.UUID, step OnboardingStep) error {
	return s.repo.UpdateOnboardingStep(ctx, id, step)
}

func (s *Service) Update(ctx context.Context, u *User) error {
	return s.repo.Update(ctx, u)
}
