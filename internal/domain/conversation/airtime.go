package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/owopay/owo-api/internal/domain/notification"
	"github.com/owopay/owo-api/internal/domain/session"
	"github.com/owopay/owo-api/internal/domain/user"
	"github.com/owopay/owo-api/internal/domain/wallet"
	"github.com/owopay/owo-api/internal/pkg/money"
	"github.com/owopay/owo-api/internal/pkg/provider"
	"github.com/owopay/owo-api/internal/pkg/vas"
	"github.com/owopay/owo-api/internal/pkg/whatsapp"
)

type airtimeDraft struct {
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Phone     string `json:"phone"`
	Network   string `json:"network"`
}

// networkByPrefix maps Nigerian mobile prefixes to operators.
var networkByPrefix = map[string]string{
	"0803": "mtn", "0806": "mtn", "0703": "mtn", "0706": "mtn", "0813": "mtn",
	"0816": "mtn", "0810": "mtn", "0814": "mtn", "0903": "mtn", "0906": "mtn",
	"0913": "mtn", "0916": "mtn",
	"0805": "glo", "0807": "glo", "0705": "glo", "0815": "glo", "0811": "glo",
	"0905": "glo", "0915": "glo",
	"0802": "airtel", "0808": "airtel", "0708": "airtel", "0812": "airtel",
	"0701": "airtel", "0902": "airtel", "0901": "airtel", "0904": "airtel",
	"0907": "airtel", "0912": "airtel",
	"0809": "9mobile", "0818": "9mobile", "0817": "9mobile", "0909": "9mobile",
	"0908": "9mobile",
}

// detectNetwork guesses the operator from an E.164 Nigerian number.
func detectNetwork(e164 string) string {
	local := strings.TrimPrefix(e164, "+")
	if strings.HasPrefix(local, "234") {
		local = "0" + local[3:]
	}
	if len(local) >= 4 {
		return networkByPrefix[local[:4]]
	}
	return ""
}

// airtimeRequest is an airtime purchase still missing its amount.
type airtimeRequest struct {
	Amount int64  `json:"amount"`
	Phone  string `json:"phone"`
}

// startAirtime begins the airtime workflow. "Buy 500 airtime" with no phone
// tops up the sender's own number.
func (e *Engine) startAirtime(ctx context.Context, u *user.User, intent Intent) {
	e.advanceAirtime(ctx, u, airtimeRequest{Amount: intent.Amount, Phone: intent.Phone})
}

// airtimeDetails merges a follow-up message, so a bare "500" after "buy
// airtime" completes the request.
func (e *Engine) airtimeDetails(ctx context.Context, u *user.User, state *State, text string) {
	var req airtimeRequest
	if _, err := e.sessions.Get(ctx, session.FeatureAirtime, u.ID.String(), &req); err != nil {
		e.abandonState(ctx, u, state)
		e.systemError(ctx, u, err, "Airtime draft read failed")
		return
	}

	intent, err := e.classifier.Classify(ctx, text)
	if err != nil {
		log.Error().Err(err).Msg("Intent classification failed")
		intent = Intent{}
	}
	if intent.Amount > 0 {
		req.Amount = intent.Amount
	}
	if intent.Phone != "" {
		req.Phone = intent.Phone
	}
	e.advanceAirtime(ctx, u, req)
}

func (e *Engine) advanceAirtime(ctx context.Context, u *user.User, req airtimeRequest) {
	if req.Amount <= 0 {
		if err := e.sessions.Set(ctx, session.FeatureAirtime, u.ID.String(), req, StateTTL); err != nil {
			e.systemError(ctx, u, err, "Airtime draft save failed")
			return
		}
		if err := e.states.Set(ctx, u.ID.String(), StateAirtimeAwaitingDetails, nil); err != nil {
			e.systemError(ctx, u, err, "Airtime state save failed")
			return
		}
		e.emitter.Text(ctx, u.ID, u.Phone,
			"How much airtime? Say e.g. _500_ or _1000 for 08031234567_.")
		return
	}

	target := req.Phone
	if target == "" {
		target = u.Phone
	}
	network := detectNetwork(target)
	if network == "" {
		e.emitter.Text(ctx, u.ID, u.Phone,
			"I couldn't work out the network for "+target+". Check the number and try again.")
		return
	}

	draft := airtimeDraft{
		Reference: newReference(string(wallet.CategoryAirtime), u.ID),
		Amount:    req.Amount,
		Phone:     target,
		Network:   network,
	}
	if err := e.sessions.Set(ctx, session.FeatureAirtime, u.ID.String(), draft, StateTTL); err != nil {
		e.systemError(ctx, u, err, "Airtime draft save failed")
		return
	}
	if err := e.states.Set(ctx, u.ID.String(), StateAirtimeAwaitingConfirm, nil); err != nil {
		e.systemError(ctx, u, err, "Airtime state save failed")
		return
	}

	e.emitter.Buttons(ctx, u.ID, u.Phone,
		money.Format(draft.Amount)+" "+strings.ToUpper(network)+" airtime for "+draft.Phone+". Proceed?",
		[]whatsapp.Button{
			{ID: buttonConfirm, Title: "Confirm"},
			{ID: buttonCancel, Title: "Cancel"},
		})
}

func (e *Engine) airtimeConfirm(ctx context.Context, u *user.User, state *State, text string) {
	if !isAffirmative(text) {
		e.emitter.Text(ctx, u.ID, u.Phone, "Tap *Confirm* to proceed or type *cancel* to stop.")
		return
	}
	if err := e.states.Set(ctx, u.ID.String(), StateAirtimeAwaitingPIN, nil); err != nil {
		e.systemError(ctx, u, err, "Airtime state save failed")
		return
	}
	e.emitter.Text(ctx, u.ID, u.Phone, "Enter your 4-digit PIN to authorize this purchase.")
}

func (e *Engine) airtimePIN(ctx context.Context, u *user.User, state *State, text string) {
	if !e.checkPIN(ctx, u, text) {
		return
	}

	var draft airtimeDraft
	found, err := e.sessions.Get(ctx, session.FeatureAirtime, u.ID.String(), &draft)
	if err != nil || !found {
		e.abandonState(ctx, u, state)
		if err != nil {
			e.systemError(ctx, u, err, "Airtime draft read failed")
		} else {
			e.emitter.Text(ctx, u.ID, u.Phone, "That purchase has expired. Please start again.")
		}
		return
	}

	meta, _ := json.Marshal(map[string]string{"phone": draft.Phone, "network": draft.Network})
	_, err = e.wallets.Debit(ctx, u.ID, wallet.EntryParams{
		Reference:   draft.Reference,
		Amount:      draft.Amount,
		Category:    wallet.CategoryAirtime,
		Description: "Airtime for " + draft.Phone,
		Metadata:    meta,
	})
	if err != nil {
		e.abandonState(ctx, u, state)
		e.reportDebitFailure(ctx, u, err, draft.Amount)
		return
	}

	result, err := e.vas.BuyAirtime(ctx, vas.AirtimeRequest{
		Reference: draft.Reference,
		Phone:     draft.Phone,
		Network:   draft.Network,
		Amount:    draft.Amount,
	})

	e.abandonState(ctx, u, state)
	e.settleVASPurchase(ctx, u, draft.Reference, err, result, notification.Receipt{
		Title:     "Airtime Purchase Successful",
		Reference: draft.Reference,
		Amount:    draft.Amount,
		Recipient: draft.Phone + " (" + strings.ToUpper(draft.Network) + ")",
	})
}

// reportDebitFailure sends the user-facing message for a failed wallet
// debit.
func (e *Engine) reportDebitFailure(ctx context.Context, u *user.User, err error, amount int64) {
	switch {
	case errors.Is(err, wallet.ErrInsufficientFunds):
		e.emitter.Text(ctx, u.ID, u.Phone,
			"You don't have enough for this ("+money.Format(amount)+" needed).")
	case errors.Is(err, wallet.ErrDailyLimitExceeded):
		e.emitter.Text(ctx, u.ID, u.Phone,
			"This would pass your daily spending limit. It resets at midnight.")
	case errors.Is(err, wallet.ErrNotActive):
		e.emitter.Text(ctx, u.ID, u.Phone,
			"Your wallet isn't active yet. Send *help* if this persists.")
	default:
		e.systemError(ctx, u, err, "Wallet debit failed")
	}
}

// settleVASPurchase applies the shared outcome handling for VAS purchases:
// complete + receipt, park as pending, or fail + compensating credit.
func (e *Engine) settleVASPurchase(ctx context.Context, u *user.User, reference string, err error, result *vas.PurchaseResult, receipt notification.Receipt) {
	switch {
	case err == nil:
		if cErr := e.wallets.Complete(ctx, reference, result.ProviderReference); cErr != nil {
			log.Error().Err(cErr).Str("reference", reference).Msg("Failed to mark purchase completed")
		}
		receipt.Token = result.Token
		receipt.CompletedAt = time.Now()
		rendered := notification.RenderText(receipt)
		e.emitter.Receipt(ctx, u.ID, u.Phone, rendered)
		if e.archiver != nil {
			e.archiver.Archive(ctx, reference, rendered)
		}

	case errors.Is(err, provider.ErrUnknownOutcome):
		if pErr := e.wallets.MarkPending(ctx, reference, ""); pErr != nil {
			log.Error().Err(pErr).Str("reference", reference).Msg("Failed to park purchase as pending")
		}
		e.emitter.Text(ctx, u.ID, u.Phone,
			"Your purchase is processing. We'll confirm within a few minutes. Ref: "+reference)

	default:
		e.refundFailedDebit(ctx, u, reference)
		e.emitter.Text(ctx, u.ID, u.Phone,
			"That purchase didn't go through. Your money has been returned. Please try again later.")
	}
}
