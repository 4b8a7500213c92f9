package conversation

import (
	"context"
	"encoding/json"

	"github.com/owopay/owo-api/internal/domain/flow"
	"github.com/owopay/owo-api/internal/domain/notification"
	"github.com/owopay/owo-api/internal/domain/session"
	"github.com/owopay/owo-api/internal/domain/user"
	"github.com/owopay/owo-api/internal/domain/wallet"
	"github.com/owopay/owo-api/internal/pkg/vas"
	"github.com/owopay/owo-api/internal/pkg/whatsapp"
)

// startDataPurchase invites the user into the structured data-purchase
// form. Plan selection, phone entry and PIN all happen inside the flow.
func (e *Engine) startDataPurchase(ctx context.Context, u *user.User) {
	sess, err := e.tokens.Mint(ctx, u.ID, flow.TypeDataPurchase, u.Phone)
	if err != nil {
		e.systemError(ctx, u, err, "Flow token mint failed")
		return
	}
	if err := e.states.Set(ctx, u.ID.String(), StateDataInFlow, nil); err != nil {
		e.systemError(ctx, u, err, "Data purchase state save failed")
		return
	}

	e.emitter.FlowInvitation(ctx, u.ID, u.Phone, whatsapp.FlowInvitation{
		FlowID:        e.flowIDs.DataPurchase,
		FlowToken:     sess.Token,
		InitialScreen: sess.InitialScreen,
		CTA:           "Buy Data",
		Header:        "Data Bundles",
		Body:          "Pick a network and plan, and we'll top you up in seconds.",
	})
}

// completeDataPurchase executes the purchase after the terminal flow
// submission arrives over the webhook. The flow endpoint has already
// verified the PIN and parked the completed form.
func (e *Engine) completeDataPurchase(ctx context.Context, u *user.User) {
	var draft flow.PurchaseDraft
	found, err := e.sessions.Get(ctx, session.FeatureDataPurchase, u.ID.String(), &draft)
	if err != nil {
		e.systemError(ctx, u, err, "Purchase draft read failed")
		return
	}
	if !found || !draft.PINVerified {
		e.emitter.Text(ctx, u.ID, u.Phone, "That form has expired. Type *buy data* to start again.")
		return
	}

	plan, err := e.plans.GetByID(ctx, draft.PlanID)
	if err != nil {
		e.systemError(ctx, u, err, "Plan lookup failed")
		return
	}
	if plan == nil {
		e.emitter.Text(ctx, u.ID, u.Phone, "That plan is no longer available. Type *buy data* to pick another.")
		return
	}

	reference := newReference(string(wallet.CategoryData), u.ID)
	meta, _ := json.Marshal(map[string]string{
		"phone":   draft.Phone,
		"network": draft.Network,
		"plan_id": plan.ID.String(),
	})
	_, err = e.wallets.Debit(ctx, u.ID, wallet.EntryParams{
		Reference:   reference,
		Amount:      plan.SellingPrice,
		Category:    wallet.CategoryData,
		Description: plan.Name + " for " + draft.Phone,
		Metadata:    meta,
	})
	if err != nil {
		e.reportDebitFailure(ctx, u, err, plan.SellingPrice)
		return
	}

	result, err := e.vas.BuyData(ctx, vas.DataRequest{
		Reference: reference,
		Phone:     draft.Phone,
		Network:   draft.Network,
		PlanID:    plan.ExternalID,
	})

	// Drop the draft so a replayed submission cannot purchase twice.
	_ = e.sessions.Delete(ctx, session.FeatureDataPurchase, u.ID.String())
	e.settleVASPurchase(ctx, u, reference, err, result, notification.Receipt{
		Title:     "Data Purchase Successful",
		Reference: reference,
		Amount:    plan.SellingPrice,
		Recipient: draft.Phone,
		Detail:    plan.Name,
	})
}
