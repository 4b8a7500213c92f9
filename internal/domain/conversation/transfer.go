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
	"github.com/owopay/owo-api/internal/pkg/bank"
	"github.com/owopay/owo-api/internal/pkg/money"
	"github.com/owopay/owo-api/internal/pkg/provider"
	"github.com/owopay/owo-api/internal/pkg/whatsapp"
)

const (
	buttonConfirm = "confirm"
	buttonCancel  = "cancel"
)

// transferDraft is the pending transfer between confirmation and PIN entry.
// The reference is minted once, so retries of any later step reuse it.
type transferDraft struct {
	Reference     string `json:"reference"`
	Amount        int64  `json:"amount"`
	Fee           int64  `json:"fee"`
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
	BankName      string `json:"bank_name"`
	AccountName   string `json:"account_name"`
}

func (d transferDraft) recipient() string {
	return d.AccountName + " - " + d.AccountNumber + " (" + d.BankName + ")"
}

// transferRequest is a transfer still being specified. It accumulates
// entities across turns until amount, account and bank are all known.
type transferRequest struct {
	Amount   int64  `json:"amount"`
	Account  string `json:"account"`
	BankCode string `json:"bank_code"`
	BankName string `json:"bank_name"`
}

func (r transferRequest) complete() bool {
	return r.Amount > 0 && r.Account != "" && r.BankCode != ""
}

// startTransfer begins the transfer workflow from a classified intent.
func (e *Engine) startTransfer(ctx context.Context, u *user.User, intent Intent) {
	e.advanceTransfer(ctx, u, transferRequest{
		Amount:   intent.Amount,
		Account:  intent.Account,
		BankCode: intent.Bank.Code,
		BankName: intent.Bank.Name,
	})
}

// transferDetails merges a follow-up message into the partially specified
// transfer, so "0123456789 zenith" after "send 5000" completes the request.
func (e *Engine) transferDetails(ctx context.Context, u *user.User, state *State, text string) {
	var req transferRequest
	if _, err := e.sessions.Get(ctx, session.FeatureTransfer, u.ID.String(), &req); err != nil {
		e.abandonState(ctx, u, state)
		e.systemError(ctx, u, err, "Transfer draft read failed")
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
	if intent.Account != "" {
		req.Account = intent.Account
	}
	if intent.Bank.Code != "" {
		req.BankCode, req.BankName = intent.Bank.Code, intent.Bank.Name
	}
	e.advanceTransfer(ctx, u, req)
}

// advanceTransfer moves a transfer forward: ask for whatever is still
// missing, or run the name enquiry and put up the confirmation.
func (e *Engine) advanceTransfer(ctx context.Context, u *user.User, req transferRequest) {
	if !req.complete() {
		if err := e.sessions.Set(ctx, session.FeatureTransfer, u.ID.String(), req, StateTTL); err != nil {
			e.systemError(ctx, u, err, "Transfer draft save failed")
			return
		}
		if err := e.states.Set(ctx, u.ID.String(), StateTransferAwaitingDetails, nil); err != nil {
			e.systemError(ctx, u, err, "Transfer state save failed")
			return
		}
		e.emitter.Text(ctx, u.ID, u.Phone, transferDetailsPrompt(req))
		return
	}

	enquiry, err := e.bank.NameEnquiry(ctx, req.Account, req.BankCode)
	if err != nil {
		switch {
		case errors.Is(err, provider.ErrRejected):
			e.emitter.Text(ctx, u.ID, u.Phone,
				"I couldn't find an account with number "+req.Account+" at "+req.BankName+". Check the details and try again.")
		case errors.Is(err, provider.ErrUnavailable):
			e.emitter.Text(ctx, u.ID, u.Phone,
				req.BankName+" is not reachable right now. Please try again in a few minutes.")
		default:
			e.systemError(ctx, u, err, "Name enquiry failed")
		}
		return
	}

	draft := transferDraft{
		Reference:     newReference(string(wallet.CategoryTransfer), u.ID),
		Amount:        req.Amount,
		Fee:           TransferFee(req.Amount),
		AccountNumber: enquiry.AccountNumber,
		BankCode:      req.BankCode,
		BankName:      req.BankName,
		AccountName:   enquiry.AccountName,
	}
	if err := e.sessions.Set(ctx, session.FeatureTransfer, u.ID.String(), draft, StateTTL); err != nil {
		e.systemError(ctx, u, err, "Transfer draft save failed")
		return
	}
	if err := e.states.Set(ctx, u.ID.String(), StateTransferAwaitingConfirm, nil); err != nil {
		e.systemError(ctx, u, err, "Transfer state save failed")
		return
	}

	e.emitter.Buttons(ctx, u.ID, u.Phone,
		"You're sending "+money.Format(draft.Amount)+" to:\n\n"+
			draft.recipient()+"\n\n"+
			"Fee: "+money.Format(draft.Fee)+"\n"+
			"Total: "+money.Format(draft.Amount+draft.Fee),
		[]whatsapp.Button{
			{ID: buttonConfirm, Title: "Confirm"},
			{ID: buttonCancel, Title: "Cancel"},
		})
}

// transferConfirm handles the confirm/cancel tap (or typed equivalent).
func (e *Engine) transferConfirm(ctx context.Context, u *user.User, state *State, text string) {
	if !isAffirmative(text) {
		e.emitter.Text(ctx, u.ID, u.Phone, "Tap *Confirm* to proceed or type *cancel* to stop.")
		return
	}
	if err := e.states.Set(ctx, u.ID.String(), StateTransferAwaitingPIN, nil); err != nil {
		e.systemError(ctx, u, err, "Transfer state save failed")
		return
	}
	e.emitter.Text(ctx, u.ID, u.Phone, "Enter your 4-digit PIN to authorize this transfer.")
}

// transferPIN verifies the PIN and executes the transfer.
func (e *Engine) transferPIN(ctx context.Context, u *user.User, state *State, text string) {
	if !e.checkPIN(ctx, u, text) {
		return
	}

	var draft transferDraft
	found, err := e.sessions.Get(ctx, session.FeatureTransfer, u.ID.String(), &draft)
	if err != nil || !found {
		e.abandonState(ctx, u, state)
		if err != nil {
			e.systemError(ctx, u, err, "Transfer draft read failed")
		} else {
			e.emitter.Text(ctx, u.ID, u.Phone, "That transfer has expired. Please start again.")
		}
		return
	}

	e.executeTransfer(ctx, u, state, draft)
}

// executeTransfer is the transactional boundary: debit first, then the
// provider call, then settle or compensate.
func (e *Engine) executeTransfer(ctx context.Context, u *user.User, state *State, draft transferDraft) {
	meta, _ := json.Marshal(map[string]string{
		"account_number": draft.AccountNumber,
		"bank_code":      draft.BankCode,
		"account_name":   draft.AccountName,
	})
	_, err := e.wallets.Debit(ctx, u.ID, wallet.EntryParams{
		Reference:   draft.Reference,
		Amount:      draft.Amount,
		Fee:         draft.Fee,
		Category:    wallet.CategoryTransfer,
		Description: "Transfer to " + draft.recipient(),
		Metadata:    meta,
	})
	if err != nil {
		e.abandonState(ctx, u, state)
		switch {
		case errors.Is(err, wallet.ErrInsufficientFunds):
			e.emitter.Text(ctx, u.ID, u.Phone,
				"You don't have enough for this transfer ("+money.Format(draft.Amount+draft.Fee)+" including the fee).")
		case errors.Is(err, wallet.ErrDailyLimitExceeded):
			e.emitter.Text(ctx, u.ID, u.Phone,
				"This transfer would pass your daily spending limit. It resets at midnight.")
		case errors.Is(err, wallet.ErrNotActive):
			e.emitter.Text(ctx, u.ID, u.Phone,
				"Your wallet isn't active yet. Send *help* if this persists.")
		default:
			e.systemError(ctx, u, err, "Transfer debit failed")
		}
		return
	}

	result, err := e.bank.Transfer(ctx, bank.TransferRequest{
		Reference:     draft.Reference,
		Amount:        draft.Amount,
		AccountNumber: draft.AccountNumber,
		BankCode:      draft.BankCode,
		Narration:     "Transfer from " + u.DisplayName,
	})

	e.abandonState(ctx, u, state)

	switch {
	case err == nil:
		if cErr := e.wallets.Complete(ctx, draft.Reference, result.ProviderReference); cErr != nil {
			log.Error().Err(cErr).Str("reference", draft.Reference).Msg("Failed to mark transfer completed")
		}
		rendered := notification.RenderText(notification.Receipt{
			Title:       "Transfer Successful",
			Reference:   draft.Reference,
			Amount:      draft.Amount,
			Fee:         draft.Fee,
			Recipient:   draft.recipient(),
			CompletedAt: time.Now(),
		})
		e.emitter.Receipt(ctx, u.ID, u.Phone, rendered)
		if e.archiver != nil {
			e.archiver.Archive(ctx, draft.Reference, rendered)
		}

	case errors.Is(err, provider.ErrUnknownOutcome):
		// Money may have moved; never retry blindly, never refund yet.
		if pErr := e.wallets.MarkPending(ctx, draft.Reference, ""); pErr != nil {
			log.Error().Err(pErr).Str("reference", draft.Reference).Msg("Failed to park transfer as pending")
		}
		e.emitter.Text(ctx, u.ID, u.Phone,
			"Your transfer is processing. We'll confirm within a few minutes. Ref: "+draft.Reference)

	default:
		e.refundFailedDebit(ctx, u, draft.Reference)
		if errors.Is(err, provider.ErrRejected) {
			e.emitter.Text(ctx, u.ID, u.Phone,
				"The bank rejected this transfer. You have not been charged.")
		} else {
			e.emitter.Text(ctx, u.ID, u.Phone,
				"We couldn't complete this transfer. Your money has been returned. Please try again later.")
		}
	}
}

// refundFailedDebit marks the ledger entry failed and issues the
// compensating credit.
func (e *Engine) refundFailedDebit(ctx context.Context, u *user.User, reference string) {
	if err := e.wallets.Fail(ctx, reference); err != nil {
		log.Error().Err(err).Str("reference", reference).Msg("Failed to mark debit failed")
		return
	}
	if err := e.wallets.Reverse(ctx, reference); err != nil {
		log.Error().Err(err).Str("reference", reference).Msg("Compensating credit failed")
	}
}

// checkPIN verifies a PIN entry, handling mismatch and lockout messaging.
// Returns true when the caller may proceed.
func (e *Engine) checkPIN(ctx context.Context, u *user.User, pin string) bool {
	err := e.users.VerifyPIN(ctx, u, pin)
	if err == nil {
		return true
	}
	switch {
	case errors.Is(err, user.ErrPINLocked):
		if cErr := e.states.Clear(ctx, u.ID.String()); cErr != nil {
			log.Warn().Err(cErr).Msg("Failed to clear conversation state")
		}
		e.emitter.Text(ctx, u.ID, u.Phone,
			"Too many wrong PIN attempts. PIN entry is locked for 15 minutes.")
	case errors.Is(err, user.ErrPINMismatch):
		e.emitter.Text(ctx, u.ID, u.Phone, "That PIN isn't correct. Try again, or type *cancel*.")
	case errors.Is(err, user.ErrPINNotSet):
		e.emitter.Text(ctx, u.ID, u.Phone, "You haven't set a transaction PIN yet. Type *help* to finish setting up.")
	default:
		e.systemError(ctx, u, err, "PIN verification failed")
	}
	return false
}

// transferDetailsPrompt asks only for the pieces still missing.
func transferDetailsPrompt(req transferRequest) string {
	var missing []string
	if req.Amount <= 0 {
		missing = append(missing, "the amount")
	}
	if req.Account == "" {
		missing = append(missing, "the 10-digit account number")
	}
	if req.BankCode == "" {
		missing = append(missing, "the bank")
	}
	if len(missing) == 3 {
		return "To send money, tell me the amount, account number and bank in one line, e.g.\n\n" +
			"_Send 5000 to 0123456789 Zenith_"
	}
	return "Almost done. I still need " + joinNatural(missing) +
		".\n\nReply with just that, e.g. _0123456789 Zenith_."
}

func joinNatural(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}

func isAffirmative(text string) bool {
	switch normalizeReply(text) {
	case buttonConfirm, "yes", "y", "ok", "okay", "proceed", "sure":
		return true
	}
	return false
}

func normalizeReply(text string) string {
	out := make([]rune, 0, len(text))
	for _, r := range text {
		if 'A' <= r && r <= 'Z' {
			r += 'a' - 'A'
		}
		if 'a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '_' {
			out = append(out, r)
		}
	}
	return string(out)
}
