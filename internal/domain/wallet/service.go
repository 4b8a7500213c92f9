package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ProvisionChannel wakes the worker that creates virtual deposit accounts.
const ProvisionChannel = "wallets:provision"

type Service struct {
	repo *Repository
	rdb  *redis.Client
}

func NewService(repo *Repository, rdb *redis.Client) *Service {
	return &Service{repo: repo, rdb: rdb}
}

// Open creates the user's wallet if absent and signals the provisioning
// worker to request a virtual account for it.
func (s *Service) Open(ctx context.Context, userID uuid.UUID) error {
	if err := s.repo.EnsureWallet(ctx, userID); err != nil {
		return err
	}
	if s.rdb != nil {
		if err := s.rdb.Publish(ctx, ProvisionChannel, userID.String()).Err(); err != nil {
			log.Warn().Err(err).Str("user_id", userID.String()).Msg("Failed to wake provisioning worker")
		}
	}
	log.Info().Str("user_id", userID.String()).Msg("Wallet opened")
	return nil
}

func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*Wallet, error) {
	w, err := s.repo.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, ErrNotFound
	}
	return w, nil
}

// Summary returns the balance view for display. Pending funds are never
// folded into the available figure.
func (s *Service) Summary(ctx context.Context, userID uuid.UUID) (*Summary, error) {
	w, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Summary{
		AvailableBalance: w.AvailableBalance,
		PendingBalance:   w.PendingBalance,
		DailyLimit:       w.DailyLimit,
		DailyRemaining:   w.DailyRemaining(time.Now()),
		AccountNumber:    w.VirtualAccountNumber.String,
		BankName:         w.VirtualBankName.String,
		AccountName:      w.VirtualAccountName.String,
	}, nil
}

// Debit moves money out of the wallet and opens a ledger entry. Safe to
// retry with the same reference.
func (s *Service) Debit(ctx context.Context, userID uuid.UUID, params EntryParams) (*Transaction, error) {
	entry, err := s.repo.Debit(ctx, userID, params)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("user_id", userID.String()).
		Str("reference", entry.Reference).
		Int64("total_amount", entry.TotalAmount).
		Str("category", string(entry.Category)).
		Msg("Wallet debit applied")
	return entry, nil
}

// Credit moves money into the wallet. Safe to retry with the same reference.
func (s *Service) Credit(ctx context.Context, userID uuid.UUID, params EntryParams) (*Transaction, error) {
	entry, err := s.repo.Credit(ctx, userID, params)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("user_id", userID.String()).
		Str("reference", entry.Reference).
		Int64("amount", entry.Amount).
		Str("category", string(entry.Category)).
		Msg("Wallet credit applied")
	return entry, nil
}

// Complete marks a ledger entry completed, recording the provider's
// reference.
func (s *Service) Complete(ctx context.Context, reference, providerReference string) error {
	return s.repo.UpdateStatus(ctx, reference, StatusCompleted, providerReference)
}

// MarkPending parks a ledger entry whose provider outcome is unknown. The
// reconciler picks it up later.
func (s *Service) MarkPending(ctx context.Context, reference, providerReference string) error {
	return s.repo.UpdateStatus(ctx, reference, StatusPending, providerReference)
}

// Fail marks a ledger entry failed without moving money. Call Reverse to
// return the debited funds.
func (s *Service) Fail(ctx context.Context, reference string) error {
	return s.repo.UpdateStatus(ctx, reference, StatusFailed, "")
}

// Reverse returns the funds of a failed debit with a compensating credit
// and marks the original entry reversed. The credit reference is derived
// from the original, so replays cannot double-refund.
func (s *Service) Reverse(ctx context.Context, reference string) error {
	original, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		return err
	}
	if original == nil {
		return ErrTransactionNotFound
	}
	if original.Type != TypeDebit {
		return fmt.Errorf("reverse %s: only debits can be reversed", reference)
	}
	if original.Status != StatusFailed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, original.Status, StatusReversed)
	}

	_, err = s.repo.Credit(ctx, original.UserID, EntryParams{
		Reference:   original.Reference + "_rev",
		Amount:      original.TotalAmount,
		Category:    CategoryReversal,
		Description: "Reversal of " + original.Reference,
	})
	if err != nil {
		return fmt.Errorf("reverse %s: %w", reference, err)
	}

	if err := s.repo.UpdateStatus(ctx, reference, StatusReversed, ""); err != nil {
		return err
	}
	log.Info().
		Str("reference", reference).
		Int64("amount", original.TotalAmount).
		Msg("Transaction reversed")
	return nil
}

// Activate records a provisioned virtual account and makes the wallet
// spendable.
func (s *Service) Activate(ctx context.Context, userID uuid.UUID, accountNumber, bankName, accountName string) error {
	if err := s.repo.SetVirtualAccount(ctx, userID, accountNumber, bankName, accountName); err != nil {
		return err
	}
	log.Info().
		Str("user_id", userID.String()).
		Str("account_number", accountNumber).
		Msg("Wallet activated with virtual account")
	return nil
}

func (s *Service) Freeze(ctx context.Context, userID uuid.UUID) error {
	return s.repo.SetStatus(ctx, userID, WalletFrozen)
}

func (s *Service) GetTransaction(ctx context.Context, reference string) (*Transaction, error) {
	return s.repo.GetByReference(ctx, reference)
}

func (s *Service) RecentTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]Transaction, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	return s.repo.ListRecent(ctx, userID, limit)
}
