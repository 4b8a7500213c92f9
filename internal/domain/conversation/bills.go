package conversation

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/owopay/owo-api/internal/domain/notification"
	"github.com/owopay/owo-api/internal/domain/session"
	"github.com/owopay/owo-api/internal/domain/user"
	"github.com/owopay/owo-api/internal/domain/wallet"
	"github.com/owopay/owo-api/internal/pkg/money"
	"github.com/owopay/owo-api/internal/pkg/vas"
	"github.com/owopay/owo-api/internal/pkg/whatsapp"
)

type billDraft struct {
	Reference    string `json:"reference"`
	Amount       int64  `json:"amount"`
	Disco        string `json:"disco"`
	MeterType    string `json:"meter_type"`
	MeterNumber  string `json:"meter_number"`
	CustomerName string `json:"customer_name"`
}

// discos maps the names users type to biller codes.
var discos = map[string]string{
	"ikeja":        "ikeja-electric",
	"ie":           "ikeja-electric",
	"eko":          "eko-electric",
	"ekedc":        "eko-electric",
	"abuja":        "abuja-electric",
	"aedc":         "abuja-electric",
	"ibadan":       "ibadan-electric",
	"ibedc":        "ibadan-electric",
	"enugu":        "enugu-electric",
	"eedc":         "enugu-electric",
	"kano":         "kano-electric",
	"kedco":        "kano-electric",
	"portharcourt": "ph-electric",
	"ph":           "ph-electric",
	"phed":         "ph-electric",
	"jos":          "jos-electric",
	"kaduna":       "kaduna-electric",
	"benin":        "benin-electric",
}

const billDetailsPrompt = "Tell me the disco, meter number and amount in one line, e.g.\n\n" +
	"_ikeja 04123456789 5000_\n\n" +
	"Add *postpaid* at the end if it's not a prepaid meter."

// startBill begins the bill payment workflow by collecting the details.
func (e *Engine) startBill(ctx context.Context, u *user.User, intent Intent) {
	if err := e.states.Set(ctx, u.ID.String(), StateBillAwaitingDetails, nil); err != nil {
		e.systemError(ctx, u, err, "Bill state save failed")
		return
	}
	e.emitter.Text(ctx, u.ID, u.Phone, billDetailsPrompt)
}

// billDetails parses "<disco> <meter> <amount> [postpaid]".
func (e *Engine) billDetails(ctx context.Context, u *user.User, state *State, text string) {
	tokens := tokenize(strings.ToLower(text))
	disco, ok := findDisco(tokens)
	if !ok {
		e.emitter.Text(ctx, u.ID, u.Phone, "I don't recognize that disco.\n\n"+billDetailsPrompt)
		return
	}

	meterType := "prepaid"
	var meterNumber string
	var amount int64
	for _, tok := range tokens {
		if tok == "postpaid" {
			meterType = "postpaid"
			continue
		}
		if len(tok) >= 11 && len(tok) <= 13 && allDigits(tok) {
			meterNumber = tok
			continue
		}
		if amount == 0 {
			if parsed, err := money.Parse(tok); err == nil {
				amount = parsed
			}
		}
	}
	if meterNumber == "" || amount <= 0 {
		e.emitter.Text(ctx, u.ID, u.Phone, "I couldn't read the meter number or amount.\n\n"+billDetailsPrompt)
		return
	}

	info, err := e.vas.ValidateMeter(ctx, disco, meterType, meterNumber)
	if err != nil {
		e.emitter.Text(ctx, u.ID, u.Phone,
			"I couldn't validate meter "+meterNumber+" with that disco. Check the details and try again.")
		return
	}

	draft := billDraft{
		Reference:    newReference(string(wallet.CategoryBills), u.ID),
		Amount:       amount,
		Disco:        disco,
		MeterType:    meterType,
		MeterNumber:  meterNumber,
		CustomerName: info.CustomerName,
	}
	if err := e.sessions.Set(ctx, session.FeatureBills, u.ID.String(), draft, StateTTL); err != nil {
		e.systemError(ctx, u, err, "Bill draft save failed")
		return
	}
	if err := e.states.Set(ctx, u.ID.String(), StateBillAwaitingConfirm, nil); err != nil {
		e.systemError(ctx, u, err, "Bill state save failed")
		return
	}

	e.emitter.Buttons(ctx, u.ID, u.Phone,
		"Pay "+money.Format(amount)+" for meter "+meterNumber+" ("+meterType+")\n"+
			"Registered to: "+info.CustomerName,
		[]whatsapp.Button{
			{ID: buttonConfirm, Title: "Confirm"},
			{ID: buttonCancel, Title: "Cancel"},
		})
}

func (e *Engine) billConfirm(ctx context.Context, u *user.User, state *State, text string) {
	if !isAffirmative(text) {
		e.emitter.Text(ctx, u.ID, u.Phone, "Tap *Confirm* to proceed or type *cancel* to stop.")
		return
	}
	if err := e.states.Set(ctx, u.ID.String(), StateBillAwaitingPIN, nil); err != nil {
		e.systemError(ctx, u, err, "Bill state save failed")
		return
	}
	e.emitter.Text(ctx, u.ID, u.Phone, "Enter your 4-digit PIN to authorize this payment.")
}

func (e *Engine) billPIN(ctx context.Context, u *user.User, state *State, text string) {
	if !e.checkPIN(ctx, u, text) {
		return
	}

	var draft billDraft
	found, err := e.sessions.Get(ctx, session.FeatureBills, u.ID.String(), &draft)
	if err != nil || !found {
		e.abandonState(ctx, u, state)
		if err != nil {
			e.systemError(ctx, u, err, "Bill draft read failed")
		} else {
			e.emitter.Text(ctx, u.ID, u.Phone, "That payment has expired. Please start again.")
		}
		return
	}

	meta, _ := json.Marshal(map[string]string{
		"disco":        draft.Disco,
		"meter_number": draft.MeterNumber,
		"meter_type":   draft.MeterType,
	})
	_, err = e.wallets.Debit(ctx, u.ID, wallet.EntryParams{
		Reference:   draft.Reference,
		Amount:      draft.Amount,
		Category:    wallet.CategoryBills,
		Description: "Electricity for meter " + draft.MeterNumber,
		Metadata:    meta,
	})
	if err != nil {
		e.abandonState(ctx, u, state)
		e.reportDebitFailure(ctx, u, err, draft.Amount)
		return
	}

	result, err := e.vas.PayBill(ctx, vas.BillRequest{
		Reference:   draft.Reference,
		Disco:       draft.Disco,
		MeterType:   draft.MeterType,
		MeterNumber: draft.MeterNumber,
		Amount:      draft.Amount,
	})

	e.abandonState(ctx, u, state)
	e.settleVASPurchase(ctx, u, draft.Reference, err, result, notification.Receipt{
		Title:     "Bill Payment Successful",
		Reference: draft.Reference,
		Amount:    draft.Amount,
		Recipient: draft.CustomerName,
		Detail:    "Meter: " + draft.MeterNumber + " (" + draft.MeterType + ")",
	})
}

func findDisco(tokens []string) (string, bool) {
	for _, tok := range tokens {
		if code, ok := discos[tok]; ok {
			return code, true
		}
	}
	return "", false
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
