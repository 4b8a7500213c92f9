package conversation

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/owopay/owo-api/internal/domain/flow"
	"github.com/owopay/owo-api/internal/domain/user"
	"github.com/owopay/owo-api/internal/pkg/whatsapp"
)

// handleFlowSubmission finalizes a structured form after its terminal
// nfm_reply lands on the webhook. The flow endpoint already did the
// screen-by-screen work; this side performs the money movement and cleanup.
func (e *Engine) handleFlowSubmission(ctx context.Context, u *user.User, ev whatsapp.InboundEvent) {
	if ev.Flow == nil {
		return
	}

	sess, err := e.tokens.Bind(ctx, ev.Flow.FlowToken)
	if err != nil {
		e.emitter.Text(ctx, u.ID, u.Phone, "That form has expired. Type *help* to start again.")
		return
	}
	if sess.UserID != u.ID {
		log.Warn().
			Str("token_user", sess.UserID.String()).
			Str("sender_user", u.ID.String()).
			Msg("Flow token bound to a different user, dropping submission")
		return
	}

	switch sess.Type {
	case flow.TypeOnboarding:
		e.finishOnboarding(ctx, u)
	case flow.TypeLogin:
		e.emitter.Text(ctx, u.ID, u.Phone, "You're signed in ✅. Your web session is ready.")
	case flow.TypeDataPurchase:
		e.completeDataPurchase(ctx, u)
	default:
		log.Warn().Str("flow_type", string(sess.Type)).Msg("Unknown flow type on submission")
	}

	if err := e.tokens.Revoke(ctx, sess.Token); err != nil {
		log.Warn().Err(err).Msg("Failed to revoke flow token")
	}
	if err := e.states.Clear(ctx, u.ID.String()); err != nil {
		log.Warn().Err(err).Msg("Failed to clear conversation state")
	}
}

// finishOnboarding runs once the onboarding form completes: open the wallet
// and queue account provisioning. The flow endpoint has already stored the
// KYC details and PIN and moved the user to the provisioning step.
func (e *Engine) finishOnboarding(ctx context.Context, u *user.User) {
	if err := e.wallets.Open(ctx, u.ID); err != nil {
		e.systemError(ctx, u, err, "Wallet open failed")
		return
	}
	e.emitter.Text(ctx, u.ID, u.Phone,
		"All done! 🎉 Your wallet is open and your personal account number is on its way — "+
			"usually under a minute. We'll message you when it lands.")
}
