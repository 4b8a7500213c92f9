package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
)

// DefaultDailyLimit is applied to new wallets (kobo).
const DefaultDailyLimit int64 = 20_000_000 // NGN 200,000

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

const walletColumns = `
	user_id, available_balance, pending_balance, status,
	daily_limit, daily_spent, daily_spent_date,
	virtual_account_number, virtual_bank_name, virtual_account_name,
	created_at, updated_at
`

const transactionColumns = `
	id, user_id, reference, type, category, amount, fee, total_amount,
	status, provider_reference, description, metadata, created_at, updated_at
`

// EntryParams describes one ledger entry to apply.
type EntryParams struct {
	Reference   string
	Amount      int64
	Fee         int64
	Category    TransactionCategory
	Description string
	Metadata    types.JSONText
}

func (p EntryParams) total() int64 { return p.Amount + p.Fee }

func (r *Repository) EnsureWallet(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO wallets (user_id, available_balance, pending_balance, status, daily_limit, daily_spent, daily_spent_date)
		VALUES ($1, 0, 0, $2, $3, 0, current_date)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, WalletProvisioning, DefaultDailyLimit)
	if err != nil {
		return fmt.Errorf("wallet repository ensure: %w", err)
	}
	return nil
}

func (r *Repository) GetWallet(ctx context.Context, userID uuid.UUID) (*Wallet, error) {
	var w Wallet
	err := r.db.GetContext(ctx, &w, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &w, nil
}

func (r *Repository) beginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
}

func (r *Repository) lockWallet(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (*Wallet, error) {
	var w Wallet
	err := tx.GetContext(ctx, &w, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 FOR UPDATE`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *Repository) getByReferenceTx(ctx context.Context, tx *sqlx.Tx, reference string) (*Transaction, error) {
	var t Transaction
	err := tx.GetContext(ctx, &t, `SELECT `+transactionColumns+` FROM transactions WHERE reference = $1`, reference)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) insertTransaction(ctx context.Context, tx *sqlx.Tx, t *Transaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, reference, type, category, amount, fee, total_amount, status, description, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, t.ID, t.UserID, t.Reference, t.Type, t.Category, t.Amount, t.Fee, t.TotalAmount, t.Status, t.Description, t.Metadata)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateReference
		}
		return err
	}
	return nil
}

// matches reports whether an existing ledger entry is the same operation
// being retried.
func matches(existing *Transaction, typ TransactionType, params EntryParams) bool {
	return existing.Type == typ &&
		existing.Category == params.Category &&
		existing.TotalAmount == params.total()
}

// Debit atomically moves params.Amount+params.Fee out of the available
// balance and records the ledger entry as initiated. Replaying the same
// reference returns the already-recorded entry without moving money again.
func (r *Repository) Debit(ctx context.Context, userID uuid.UUID, params EntryParams) (*Transaction, error) {
	if params.Amount <= 0 || params.Fee < 0 || params.Reference == "" {
		return nil, ErrInvalidAmount
	}

	tx, err := r.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	w, err := r.lockWallet(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if w.Status != WalletActive {
		return nil, ErrNotActive
	}

	existing, err := r.getByReferenceTx(ctx, tx, params.Reference)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if !matches(existing, TypeDebit, params) {
			return nil, ErrReferenceConflict
		}
		return existing, nil
	}

	total := params.total()
	if w.AvailableBalance < total {
		return nil, ErrInsufficientFunds
	}

	now := time.Now().UTC()
	spent := w.DailySpent
	if !sameDay(w.DailySpentDate, now) {
		spent = 0
	}
	if spent+total > w.DailyLimit {
		return nil, ErrDailyLimitExceeded
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET available_balance = available_balance - $2,
		    daily_spent = $3,
		    daily_spent_date = current_date,
		    updated_at = now()
		WHERE user_id = $1
	`, userID, total, spent+total); err != nil {
		return nil, err
	}

	entry := &Transaction{
		ID:          uuid.New(),
		UserID:      userID,
		Reference:   params.Reference,
		Type:        TypeDebit,
		Category:    params.Category,
		Amount:      params.Amount,
		Fee:         params.Fee,
		TotalAmount: total,
		Status:      StatusInitiated,
		Description: params.Description,
		Metadata:    params.Metadata,
	}
	if err := r.insertTransaction(ctx, tx, entry); err != nil {
		if errors.Is(err, ErrDuplicateReference) {
			// Lost a race on the unique reference. Re-read and decide.
			prior, checkErr := r.getByReferenceTx(ctx, tx, params.Reference)
			if checkErr != nil {
				return nil, checkErr
			}
			if prior == nil || !matches(prior, TypeDebit, params) {
				return nil, ErrReferenceConflict
			}
			return prior, nil
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return entry, nil
}

// Credit atomically adds params.Amount to the available balance. Credits
// settle immediately, so the entry is recorded as completed. Idempotent on
// reference like Debit.
func (r *Repository) Credit(ctx context.Context, userID uuid.UUID, params EntryParams) (*Transaction, error) {
	if params.Amount <= 0 || params.Fee != 0 || params.Reference == "" {
		return nil, ErrInvalidAmount
	}

	tx, err := r.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	w, err := r.lockWallet(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if w.Status == WalletFrozen {
		return nil, ErrNotActive
	}

	existing, err := r.getByReferenceTx(ctx, tx, params.Reference)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if !matches(existing, TypeCredit, params) {
			return nil, ErrReferenceConflict
		}
		return existing, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET available_balance = available_balance + $2, updated_at = now()
		WHERE user_id = $1
	`, userID, params.Amount); err != nil {
		return nil, err
	}

	entry := &Transaction{
		ID:          uuid.New(),
		UserID:      userID,
		Reference:   params.Reference,
		Type:        TypeCredit,
		Category:    params.Category,
		Amount:      params.Amount,
		TotalAmount: params.Amount,
		Status:      StatusCompleted,
		Description: params.Description,
		Metadata:    params.Metadata,
	}
	if err := r.insertTransaction(ctx, tx, entry); err != nil {
		if errors.Is(err, ErrDuplicateReference) {
			prior, checkErr := r.getByReferenceTx(ctx, tx, params.Reference)
			if checkErr != nil {
				return nil, checkErr
			}
			if prior == nil || !matches(prior, TypeCredit, params) {
				return nil, ErrReferenceConflict
			}
			return prior, nil
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return entry, nil
}

// UpdateStatus moves a ledger entry along the status graph. Disallowed
// transitions return ErrInvalidTransition; repeating an already-applied
// transition is a no-op.
func (r *Repository) UpdateStatus(ctx context.Context, reference string, to TransactionStatus, providerReference string) error {
	tx, err := r.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var t Transaction
	err = tx.GetContext(ctx, &t, `SELECT `+transactionColumns+` FROM transactions WHERE reference = $1 FOR UPDATE`, reference)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrTransactionNotFound
	}
	if err != nil {
		return err
	}

	if t.Status == to {
		return nil
	}
	if !CanTransition(t.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2,
		    provider_reference = COALESCE(NULLIF($3, ''), provider_reference),
		    updated_at = now()
		WHERE reference = $1
	`, reference, to, providerReference); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *Repository) GetByReference(ctx context.Context, reference string) (*Transaction, error) {
	var t Transaction
	err := r.db.GetContext(ctx, &t, `SELECT `+transactionColumns+` FROM transactions WHERE reference = $1`, reference)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// ListPending returns entries stuck in pending longer than olderThan, for
// the reconciler to re-query against the provider.
func (r *Repository) ListPending(ctx context.Context, olderThan time.Duration, limit int) ([]Transaction, error) {
	var entries []Transaction
	err := r.db.SelectContext(ctx, &entries, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE status = $1 AND updated_at < now() - $2::interval
		ORDER BY updated_at ASC
		LIMIT $3
	`, StatusPending, fmt.Sprintf("%d seconds", int(olderThan.Seconds())), limit)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ListRecent returns the user's latest ledger entries, newest first.
func (r *Repository) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]Transaction, error) {
	var entries []Transaction
	err := r.db.SelectContext(ctx, &entries, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// SetVirtualAccount records the provisioned deposit account and activates
// the wallet.
func (r *Repository) SetVirtualAccount(ctx context.Context, userID uuid.UUID, accountNumber, bankName, accountName string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE wallets
		SET virtual_account_number = $2,
		    virtual_bank_name = $3,
		    virtual_account_name = $4,
		    status = $5,
		    updated_at = now()
		WHERE user_id = $1
	`, userID, accountNumber, bankName, accountName, WalletActive)
	if err != nil {
		return fmt.Errorf("wallet repository set virtual account: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) SetStatus(ctx context.Context, userID uuid.UUID, status WalletStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE wallets SET status = $2, updated_at = now() WHERE user_id = $1`, userID, status)
	if err != nil {
		return fmt.Errorf("wallet repository set status: %w", err)
	}
	return nil
}

// ListProvisioning returns user IDs whose wallets still lack a virtual
// account, for the provisioning worker.
func (r *Repository) ListProvisioning(ctx context.Context, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, `
		SELECT user_id FROM wallets
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, WalletProvisioning, limit)
	if err != nil {
		return nil, err
	}
	return ids, nil
}
