package conversation

import (
	"context"

	"github.com/owopay/owo-api/internal/domain/user"
	"github.com/owopay/owo-api/internal/pkg/money"
)

// handleBalance reports spendable money. Pending funds are shown separately
// and never folded into the headline figure.
func (e *Engine) handleBalance(ctx context.Context, u *user.User) {
	summary, err := e.wallets.Summary(ctx, u.ID)
	if err != nil {
		e.systemError(ctx, u, err, "Balance lookup failed")
		return
	}

	body := "💰 Balance: " + money.Format(summary.AvailableBalance)
	if summary.PendingBalance > 0 {
		body += "\nPending: " + money.Format(summary.PendingBalance) + " (not yet spendable)"
	}
	body += "\nLeft to spend today: " + money.Format(summary.DailyRemaining)
	e.emitter.Text(ctx, u.ID, u.Phone, body)
}

// handleAccountDetails shares the user's virtual deposit account.
func (e *Engine) handleAccountDetails(ctx context.Context, u *user.User) {
	summary, err := e.wallets.Summary(ctx, u.ID)
	if err != nil {
		e.systemError(ctx, u, err, "Account lookup failed")
		return
	}
	if summary.AccountNumber == "" {
		e.emitter.Text(ctx, u.ID, u.Phone,
			"Your account number is still being set up. We'll message you the moment it's ready.")
		return
	}
	e.emitter.Text(ctx, u.ID, u.Phone,
		"Send money to your wallet with:\n\n"+
			"Account: "+summary.AccountNumber+"\n"+
			"Bank: "+summary.BankName+"\n"+
			"Name: "+summary.AccountName)
}
