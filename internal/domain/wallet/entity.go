package wallet

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
)

// WalletStatus represents wallet lifecycle state (matches wallet_status enum)
type WalletStatus string

const (
	WalletProvisioning WalletStatus = "provisioning"
	WalletActive       WalletStatus = "active"
	WalletFrozen       WalletStatus = "frozen"
)

// TransactionType is the ledger direction
type TransactionType string

const (
	TypeDebit  TransactionType = "debit"
	TypeCredit TransactionType = "credit"
)

// TransactionCategory classifies what the money moved for
type TransactionCategory string

const (
	CategoryTransfer TransactionCategory = "transfer"
	CategoryAirtime  TransactionCategory = "airtime"
	CategoryData     TransactionCategory = "data"
	CategoryBills    TransactionCategory = "bills"
	CategoryDeposit  TransactionCategory = "deposit"
	CategoryReversal TransactionCategory = "reversal"
)

// TransactionStatus tracks a ledger entry through its lifecycle
type TransactionStatus string

const (
	StatusInitiated TransactionStatus = "initiated"
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
	StatusReversed  TransactionStatus = "reversed"
)

// transitions is the allowed status graph. Completed is terminal; a failed
// debit may still be reversed by a compensating credit.
var transitions = map[TransactionStatus][]TransactionStatus{
	StatusInitiated: {StatusPending, StatusCompleted, StatusFailed},
	StatusPending:   {StatusCompleted, StatusFailed},
	StatusFailed:    {StatusReversed},
}

// CanTransition reports whether a status change is allowed.
func CanTransition(from, to TransactionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Wallet represents a user's money account (matches wallets table).
// All amounts are in kobo.
type Wallet struct {
	UserID           uuid.UUID    `db:"user_id"`
	AvailableBalance int64        `db:"available_balance"`
	PendingBalance   int64        `db:"pending_balance"`
	Status           WalletStatus `db:"status"`

	DailyLimit     int64     `db:"daily_limit"`
	DailySpent     int64     `db:"daily_spent"`
	DailySpentDate time.Time `db:"daily_spent_date"`

	VirtualAccountNumber sql.NullString `db:"virtual_account_number"`
	VirtualBankName      sql.NullString `db:"virtual_bank_name"`
	VirtualAccountName   sql.NullString `db:"virtual_account_name"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// DailyRemaining returns how much the user may still spend today.
func (w *Wallet) DailyRemaining(now time.Time) int64 {
	spent := w.DailySpent
	if !sameDay(w.DailySpentDate, now) {
		spent = 0
	}
	remaining := w.DailyLimit - spent
	if remaining < 0 {
		return 0
	}
	return remaining
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// Transaction is one ledger entry (matches transactions table).
type Transaction struct {
	ID        uuid.UUID           `db:"id"`
	UserID    uuid.UUID           `db:"user_id"`
	Reference string              `db:"reference"`
	Type      TransactionType     `db:"type"`
	Category  TransactionCategory `db:"category"`

	Amount      int64 `db:"amount"`
	Fee         int64 `db:"fee"`
	TotalAmount int64 `db:"total_amount"`

	Status            TransactionStatus `db:"status"`
	ProviderReference sql.NullString    `db:"provider_reference"`
	Description       string            `db:"description"`
	Metadata          types.JSONText    `db:"metadata"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Summary is the balance view shown to the user. Pending funds are reported
// separately and never spendable.
type Summary struct {
	AvailableBalance int64
	PendingBalance   int64
	DailyLimit       int64
	DailyRemaining   int64
	AccountNumber    string
	BankName         string
	AccountName      string
}
