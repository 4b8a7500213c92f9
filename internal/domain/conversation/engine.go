package conversation

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/rs/zerolog/log"

	"github.com/owopay/owo-api/internal/domain/dataplan"
	"github.com/owopay/owo-api/internal/domain/flow"
	"github.com/owopay/owo-api/internal/domain/session"
	"github.com/owopay/owo-api/internal/domain/user"
	"github.com/owopay/owo-api/internal/domain/wallet"
	"github.com/owopay/owo-api/internal/pkg/bank"
	"github.com/owopay/owo-api/internal/pkg/phone"
	"github.com/owopay/owo-api/internal/pkg/vas"
	"github.com/owopay/owo-api/internal/pkg/whatsapp"
)

// bankGateway is the slice of the banking provider the engine calls.
type bankGateway interface {
	NameEnquiry(ctx context.Context, accountNumber, bankCode string) (*bank.NameEnquiryResult, error)
	Transfer(ctx context.Context, req bank.TransferRequest) (*bank.TransferResult, error)
}

// vasGateway is the slice of the VAS provider the engine calls.
type vasGateway interface {
	BuyAirtime(ctx context.Context, req vas.AirtimeRequest) (*vas.PurchaseResult, error)
	BuyData(ctx context.Context, req vas.DataRequest) (*vas.PurchaseResult, error)
	PayBill(ctx context.Context, req vas.BillRequest) (*vas.PurchaseResult, error)
	ValidateMeter(ctx context.Context, disco, meterType, meterNumber string) (*vas.MeterInfo, error)
}

// walletLedger is the slice of the wallet service the engine mutates.
type walletLedger interface {
	Open(ctx context.Context, userID uuid.UUID) error
	Summary(ctx context.Context, userID uuid.UUID) (*wallet.Summary, error)
	Debit(ctx context.Context, userID uuid.UUID, params wallet.EntryParams) (*wallet.Transaction, error)
	Complete(ctx context.Context, reference, providerReference string) error
	MarkPending(ctx context.Context, reference, providerReference string) error
	Fail(ctx context.Context, reference string) error
	Reverse(ctx context.Context, reference string) error
}

// outbound is the slice of the notification emitter the engine uses.
type outbound interface {
	Acknowledge(ctx context.Context, messageID string)
	Text(ctx context.Context, userID uuid.UUID, to, body string)
	Buttons(ctx context.Context, userID uuid.UUID, to, body string, buttons []whatsapp.Button)
	List(ctx context.Context, userID uuid.UUID, to, body, buttonText string, sections []whatsapp.ListSection)
	FlowInvitation(ctx context.Context, userID uuid.UUID, to string, inv whatsapp.FlowInvitation)
	Receipt(ctx context.Context, userID uuid.UUID, to, body string)
}

// auditor records best-effort audit entries.
type auditor interface {
	Record(ctx context.Context, userID uuid.UUID, action string, detail types.JSONText)
}

// receiptArchiver keeps durable copies of issued receipts.
type receiptArchiver interface {
	Archive(ctx context.Context, reference, rendered string)
}

// FlowIDs are the published flow ids the engine invites users into.
type FlowIDs struct {
	Onboarding   string
	Login        string
	DataPurchase string
}

// Engine is the per-user conversation state machine and dispatcher. Events
// for the same user are serialized; different users proceed in parallel.
type Engine struct {
	users      *user.Service
	wallets    walletLedger
	bank       bankGateway
	vas        vasGateway
	plans      dataplan.Repository
	states     *StateStore
	sessions   *session.Store
	tokens     *flow.TokenService
	emitter    outbound
	classifier Classifier
	archiver   receiptArchiver
	audit      auditor
	flowIDs    FlowIDs
	media      *MediaIngest

	locks sync.Map // phone -> *sync.Mutex
}

type EngineDeps struct {
	Users      *user.Service
	Wallets    walletLedger
	Bank       bankGateway
	VAS        vasGateway
	Plans      dataplan.Repository
	States     *StateStore
	Sessions   *session.Store
	Tokens     *flow.TokenService
	Emitter    outbound
	Classifier Classifier
	Archiver   receiptArchiver
	Audit      auditor
	FlowIDs    FlowIDs
	Media      *MediaIngest
}

func NewEngine(deps EngineDeps) *Engine {
	classifier := deps.Classifier
	if classifier == nil {
		classifier = NewRuleClassifier()
	}
	return &Engine{
		users:      deps.Users,
		wallets:    deps.Wallets,
		bank:       deps.Bank,
		vas:        deps.VAS,
		plans:      deps.Plans,
		states:     deps.States,
		sessions:   deps.Sessions,
		tokens:     deps.Tokens,
		emitter:    deps.Emitter,
		classifier: classifier,
		archiver:   deps.Archiver,
		audit:      deps.Audit,
		flowIDs:    deps.FlowIDs,
		media:      deps.Media,
	}
}

var cancelRe = regexp.MustCompile(`(?i)^\s*(cancel|stop|no)\s*$`)

// lockFor returns the serialization mutex for one user.
func (e *Engine) lockFor(canonicalPhone string) *sync.Mutex {
	mu, _ := e.locks.LoadOrStore(canonicalPhone, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// HandleEvent processes one normalized inbound event to completion. Called
// from the webhook worker pool; safe for concurrent use.
func (e *Engine) HandleEvent(ctx context.Context, ev whatsapp.InboundEvent) {
	if ev.Type == whatsapp.EventStatusUpdate {
		// Delivery receipts carry nothing actionable.
		return
	}

	canonical, err := phone.Normalize(ev.From)
	if err != nil {
		log.Warn().Str("from", ev.From).Msg("Unparseable sender phone, dropping event")
		return
	}

	mu := e.lockFor(canonical)
	mu.Lock()
	defer mu.Unlock()

	u, created, err := e.users.GetOrCreate(ctx, canonical, ev.ProfileName)
	if err != nil {
		if errors.Is(err, user.ErrDisabled) {
			log.Info().Str("phone", canonical).Msg("Dropping event from disabled user")
			return
		}
		log.Error().Err(err).Str("phone", canonical).Msg("User lookup failed")
		return
	}

	e.emitter.Acknowledge(ctx, ev.MessageID)

	switch ev.Type {
	case whatsapp.EventFlowSubmission:
		e.handleFlowSubmission(ctx, u, ev)
		return
	case whatsapp.EventMedia:
		e.handleMedia(ctx, u, ev)
		return
	case whatsapp.EventUnsupported:
		e.emitter.Text(ctx, u.ID, u.Phone, "I can't read that kind of message yet. Type *help* to see what I can do.")
		return
	}

	text := inputText(ev)

	if !u.IsOnboarded() {
		e.handleOnboardingEntry(ctx, u, created, text)
		return
	}

	state, err := e.states.Get(ctx, u.ID.String())
	if err != nil {
		e.systemError(ctx, u, err, "Conversation state read failed")
		return
	}

	if state != nil {
		if cancelRe.MatchString(text) {
			e.abandonState(ctx, u, state)
			e.emitter.Text(ctx, u.ID, u.Phone, "Okay, cancelled. Nothing was charged.")
			return
		}
		e.continueState(ctx, u, state, ev, text)
		return
	}

	// Menu taps carry their row id and skip classification.
	if kind, ok := menuIntents[text]; ok {
		e.dispatch(ctx, u, Intent{Kind: kind, Confidence: 1}, text)
		return
	}

	intent, err := e.classifier.Classify(ctx, text)
	if err != nil {
		log.Error().Err(err).Msg("Intent classification failed")
		intent = Intent{Kind: IntentUnknown}
	}
	e.dispatch(ctx, u, intent, text)
}

// inputText flattens the event into the text the state machine reasons on.
// Button and list taps carry their reply id.
func inputText(ev whatsapp.InboundEvent) string {
	switch ev.Type {
	case whatsapp.EventButtonReply:
		if ev.Button != nil {
			return ev.Button.ID
		}
	case whatsapp.EventListReply:
		if ev.List != nil {
			return ev.List.ID
		}
	}
	return strings.TrimSpace(ev.Text)
}

// abandonState clears the pending state and its feature draft.
func (e *Engine) abandonState(ctx context.Context, u *user.User, state *State) {
	if err := e.states.Clear(ctx, u.ID.String()); err != nil {
		log.Warn().Err(err).Msg("Failed to clear conversation state")
	}
	if feature, ok := stateFeature(state.Name); ok {
		if err := e.sessions.Delete(ctx, feature, u.ID.String()); err != nil {
			log.Warn().Err(err).Msg("Failed to clear conversation draft")
		}
	}
}

// stateFeature maps a state name to the session namespace holding its draft.
func stateFeature(name string) (session.Feature, bool) {
	switch {
	case strings.HasPrefix(name, "transfer."):
		return session.FeatureTransfer, true
	case strings.HasPrefix(name, "airtime."):
		return session.FeatureAirtime, true
	case strings.HasPrefix(name, "bill."):
		return session.FeatureBills, true
	case strings.HasPrefix(name, "data_purchase."):
		return session.FeatureDataPurchase, true
	case strings.HasPrefix(name, "onboarding."):
		return session.FeatureOnboarding, true
	}
	return "", false
}

// continueState routes an event into the pending multi-turn interaction.
func (e *Engine) continueState(ctx context.Context, u *user.User, state *State, ev whatsapp.InboundEvent, text string) {
	switch state.Name {
	case StateTransferAwaitingDetails:
		e.transferDetails(ctx, u, state, text)
	case StateTransferAwaitingConfirm:
		e.transferConfirm(ctx, u, state, text)
	case StateTransferAwaitingPIN:
		e.transferPIN(ctx, u, state, text)
	case StateAirtimeAwaitingDetails:
		e.airtimeDetails(ctx, u, state, text)
	case StateAirtimeAwaitingConfirm:
		e.airtimeConfirm(ctx, u, state, text)
	case StateAirtimeAwaitingPIN:
		e.airtimePIN(ctx, u, state, text)
	case StateBillAwaitingDetails:
		e.billDetails(ctx, u, state, text)
	case StateBillAwaitingConfirm:
		e.billConfirm(ctx, u, state, text)
	case StateBillAwaitingPIN:
		e.billPIN(ctx, u, state, text)
	case StateDataInFlow, StateOnboardingInFlow:
		// Waiting on a structured form; plain text means the user typed
		// instead of tapping.
		e.emitter.Text(ctx, u.ID, u.Phone, "Please use the form above, or type *cancel* to start over.")
	default:
		log.Warn().Str("state", state.Name).Msg("Unknown conversation state, resetting")
		e.abandonState(ctx, u, state)
		e.dispatchFresh(ctx, u, text)
	}
}

func (e *Engine) dispatchFresh(ctx context.Context, u *user.User, text string) {
	intent, err := e.classifier.Classify(ctx, text)
	if err != nil {
		intent = Intent{Kind: IntentUnknown}
	}
	e.dispatch(ctx, u, intent, text)
}

// systemError hides internals behind a canned message carrying a short
// correlation id that also appears in the log line.
func (e *Engine) systemError(ctx context.Context, u *user.User, err error, what string) {
	cid := shortCorrelationID()
	log.Error().Err(err).Str("correlation_id", cid).Str("user_id", u.ID.String()).Msg(what)
	e.emitter.Text(ctx, u.ID, u.Phone, "Something went wrong on our side. Please try again in a moment. Ref: "+cid)
}
