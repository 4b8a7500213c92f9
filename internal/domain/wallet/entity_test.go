package wallet

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to TransactionStatus }{
		{StatusInitiated, StatusPending},
		{StatusInitiated, StatusCompleted},
		{StatusInitiated, StatusFailed},
		{StatusPending, StatusCompleted},
		{StatusPending, StatusFailed},
		{StatusFailed, StatusReversed},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to TransactionStatus }{
		{StatusCompleted, StatusFailed},
		{StatusCompleted, StatusReversed},
		{StatusReversed, StatusCompleted},
		{StatusPending, StatusInitiated},
		{StatusFailed, StatusCompleted},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be denied", tc.from, tc.to)
		}
	}
}

func TestDailyRemaining(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	w := &Wallet{DailyLimit: 20_000_000, DailySpent: 5_000_000, DailySpentDate: now}
	if got := w.DailyRemaining(now); got != 15_000_000 {
		t.Errorf("same-day remaining = %d, want 15000000", got)
	}

	// Spend recorded yesterday no longer counts.
	w.DailySpentDate = now.AddDate(0, 0, -1)
	if got := w.DailyRemaining(now); got != 20_000_000 {
		t.Errorf("next-day remaining = %d, want full limit", got)
	}

	// Never negative even if the limit was lowered under the spend.
	w = &Wallet{DailyLimit: 1_000_000, DailySpent: 2_000_000, DailySpentDate: now}
	if got := w.DailyRemaining(now); got != 0 {
		t.Errorf("over-limit remaining = %d, want 0", got)
	}
}

func TestEntryMatches(t *testing.T) {
	existing := &Transaction{
		Type:        TypeDebit,
		Category:    CategoryTransfer,
		Amount:      500_000,
		Fee:         5_000,
		TotalAmount: 505_000,
	}

	same := EntryParams{Amount: 500_000, Fee: 5_000, Category: CategoryTransfer}
	if !matches(existing, TypeDebit, same) {
		t.Error("identical replay should match")
	}

	differentAmount := EntryParams{Amount: 600_000, Fee: 5_000, Category: CategoryTransfer}
	if matches(existing, TypeDebit, differentAmount) {
		t.Error("different amount must not match")
	}

	differentCategory := EntryParams{Amount: 500_000, Fee: 5_000, Category: CategoryAirtime}
	if matches(existing, TypeDebit, differentCategory) {
		t.Error("different category must not match")
	}

	if matches(existing, TypeCredit, same) {
		t.Error("different direction must not match")
	}
}
