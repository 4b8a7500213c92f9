package conversation

import (
	"context"

	"github.com/owopay/owo-api/internal/domain/user"
)

// dispatch routes a classified intent to its command handler. Callers have
// already passed the onboarding gate.
func (e *Engine) dispatch(ctx context.Context, u *user.User, intent Intent, text string) {
	e.auditIntent(ctx, u, intent)

	switch intent.Kind {
	case IntentGreeting:
		e.handleGreeting(ctx, u)
	case IntentHelp:
		e.handleHelp(ctx, u)
	case IntentBalance:
		e.handleBalance(ctx, u)
	case IntentAccountDetails:
		e.handleAccountDetails(ctx, u)
	case IntentTransfer:
		e.startTransfer(ctx, u, intent)
	case IntentAirtime:
		e.startAirtime(ctx, u, intent)
	case IntentData:
		e.startDataPurchase(ctx, u)
	case IntentBills:
		e.startBill(ctx, u, intent)
	default:
		e.handleUnknown(ctx, u, text)
	}
}

func (e *Engine) auditIntent(ctx context.Context, u *user.User, intent Intent) {
	if e.audit == nil {
		return
	}
	e.audit.Record(ctx, u.ID, "intent."+string(intent.Kind), nil)
}

// handleUnknown asks the user to disambiguate instead of guessing.
func (e *Engine) handleUnknown(ctx context.Context, u *user.User, text string) {
	if len(text) == 0 {
		e.handleHelp(ctx, u)
		return
	}
	e.emitter.Text(ctx, u.ID, u.Phone,
		"I'm not sure what you mean. You can say things like:\n"+
			"• _Send 5000 to 0123456789 Zenith_\n"+
			"• _Buy 500 airtime for 08031234567_\n"+
			"• _Buy data_\n"+
			"• _Balance_\n\n"+
			"Or type *help* for the full menu.")
}
