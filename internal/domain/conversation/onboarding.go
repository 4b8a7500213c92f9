package conversation

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/owopay/owo-api/internal/domain/flow"
	"github.com/owopay/owo-api/internal/domain/user"
	"github.com/owopay/owo-api/internal/pkg/whatsapp"
)

// handleOnboardingEntry owns every message from a user who hasn't finished
// account setup. Free text can't progress onboarding; the structured flow
// collects the KYC details and PIN, so all roads lead back to its invitation.
func (e *Engine) handleOnboardingEntry(ctx context.Context, u *user.User, created bool, text string) {
	if u.OnboardingStep == user.StepAccountProvisioning {
		e.emitter.Text(ctx, u.ID, u.Phone,
			"Almost there! We're setting up your account number now. You'll get a message the moment it's ready.")
		return
	}

	sess, err := e.tokens.Mint(ctx, u.ID, flow.TypeOnboarding, u.Phone)
	if err != nil {
		e.systemError(ctx, u, err, "Onboarding flow token mint failed")
		return
	}

	if created {
		name := firstName(u.DisplayName)
		greeting := "Hi"
		if name != "" {
			greeting += " " + name
		}
		e.emitter.Text(ctx, u.ID, u.Phone,
			greeting+"! 👋 Welcome to Owo — your bank account that lives right here in WhatsApp.\n\n"+
				"Setup takes about two minutes: a few details, then a secure PIN.")
		if err := e.users.AdvanceOnboarding(ctx, u.ID, user.StepKYCCollection); err != nil {
			log.Warn().Err(err).Str("user_id", u.ID.String()).Msg("Failed to advance onboarding step")
		}
	} else {
		e.emitter.Text(ctx, u.ID, u.Phone, "Let's finish setting up your account.")
	}

	if err := e.states.Set(ctx, u.ID.String(), StateOnboardingInFlow, nil); err != nil {
		log.Warn().Err(err).Str("user_id", u.ID.String()).Msg("Failed to save onboarding state")
	}

	e.emitter.FlowInvitation(ctx, u.ID, u.Phone, whatsapp.FlowInvitation{
		FlowID:        e.flowIDs.Onboarding,
		FlowToken:     sess.Token,
		InitialScreen: sess.InitialScreen,
		CTA:           "Open Account",
		Header:        "Account Setup",
		Body:          "Tap below to open your account. Your details are encrypted end to end.",
	})
}
