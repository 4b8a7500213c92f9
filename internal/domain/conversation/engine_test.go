package conversation

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"

	"github.com/owopay/owo-api/internal/domain/dataplan"
	"github.com/owopay/owo-api/internal/domain/flow"
	"github.com/owopay/owo-api/internal/domain/session"
	"github.com/owopay/owo-api/internal/domain/user"
	"github.com/owopay/owo-api/internal/domain/wallet"
	"github.com/owopay/owo-api/internal/pkg/bank"
	"github.com/owopay/owo-api/internal/pkg/provider"
	"github.com/owopay/owo-api/internal/pkg/vas"
	"github.com/owopay/owo-api/internal/pkg/whatsapp"
)

// memKV is an in-memory session.KV for tests.
type memKV struct {
	mu    sync.Mutex
	items map[string]memEntry
}

type memEntry struct {
	value   string
	expires time.Time
}

func newMemKV() *memKV {
	return &memKV{items: make(map[string]memEntry)}
}

func (m *memKV) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = memEntry{value: value, expires: time.Now().Add(ttl)}
	return nil
}

func (m *memKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.items[key]
	if !ok || time.Now().After(entry.expires) {
		return "", false, nil
	}
	return entry.value, true, nil
}

func (m *memKV) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

// fakeUserRepo backs the real user service in tests.
type fakeUserRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*user.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byID: make(map[uuid.UUID]*user.User)}
}

func (r *fakeUserRepo) Create(_ context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *u
	r.byID[u.ID] = &clone
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, nil
}

func (r *fakeUserRepo) GetByPhone(_ context.Context, phone string) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Phone == phone {
			clone := *u
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) Update(_ context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stored, ok := r.byID[u.ID]; ok {
		stored.DisplayName = u.DisplayName
		stored.KYCStatus = u.KYCStatus
		stored.OnboardingStep = u.OnboardingStep
		stored.BVN = u.BVN
		stored.DateOfBirth = u.DateOfBirth
	}
	return nil
}

func (r *fakeUserRepo) UpdateOnboardingStep(_ context.Context, id uuid.UUID, step user.OnboardingStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		u.OnboardingStep = step
	}
	return nil
}

func (r *fakeUserRepo) UpdateKYC(_ context.Context, id uuid.UUID, status user.KYCStatus, bvn, dob string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		u.KYCStatus = status
	}
	return nil
}

func (r *fakeUserRepo) UpdatePIN(_ context.Context, id uuid.UUID, pinHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		u.PINHash.String = pinHash
		u.PINHash.Valid = true
		u.PINFailures = 0
		u.PINLockedUntil.Valid = false
	}
	return nil
}

func (r *fakeUserRepo) UpdatePINFailures(_ context.Context, id uuid.UUID, failures int, lockedUntil *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		u.PINFailures = failures
		if lockedUntil != nil {
			u.PINLockedUntil.Time = *lockedUntil
			u.PINLockedUntil.Valid = true
		} else {
			u.PINLockedUntil.Valid = false
		}
	}
	return nil
}

func (r *fakeUserRepo) SetDisabled(_ context.Context, id uuid.UUID, disabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		u.Disabled = disabled
	}
	return nil
}

// fakeLedger records wallet calls without a database.
type fakeLedger struct {
	mu        sync.Mutex
	summary   wallet.Summary
	debitErr  error
	opened    []uuid.UUID
	debits    []wallet.EntryParams
	completed []string
	pending   []string
	failed    []string
	reversed  []string
}

func (l *fakeLedger) Open(_ context.Context, userID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opened = append(l.opened, userID)
	return nil
}

func (l *fakeLedger) Summary(_ context.Context, _ uuid.UUID) (*wallet.Summary, error) {
	s := l.summary
	return &s, nil
}

func (l *fakeLedger) Debit(_ context.Context, _ uuid.UUID, params wallet.EntryParams) (*wallet.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.debitErr != nil {
		return nil, l.debitErr
	}
	l.debits = append(l.debits, params)
	return &wallet.Transaction{Reference: params.Reference}, nil
}

func (l *fakeLedger) Complete(_ context.Context, reference, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.completed = append(l.completed, reference)
	return nil
}

func (l *fakeLedger) MarkPending(_ context.Context, reference, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append(l.pending, reference)
	return nil
}

func (l *fakeLedger) Fail(_ context.Context, reference string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failed = append(l.failed, reference)
	return nil
}

func (l *fakeLedger) Reverse(_ context.Context, reference string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reversed = append(l.reversed, reference)
	return nil
}

// fakeBank resolves every enquiry to one fixed account.
type fakeBank struct {
	enquiryErr  error
	transferErr error
	transfers   []bank.TransferRequest
}

func (b *fakeBank) NameEnquiry(_ context.Context, accountNumber, bankCode string) (*bank.NameEnquiryResult, error) {
	if b.enquiryErr != nil {
		return nil, b.enquiryErr
	}
	return &bank.NameEnquiryResult{
		AccountName:   "ADA OBI",
		AccountNumber: accountNumber,
		BankCode:      bankCode,
	}, nil
}

func (b *fakeBank) Transfer(_ context.Context, req bank.TransferRequest) (*bank.TransferResult, error) {
	b.transfers = append(b.transfers, req)
	if b.transferErr != nil {
		return nil, b.transferErr
	}
	return &bank.TransferResult{ProviderReference: "prov-1", Status: "success"}, nil
}

type fakeVAS struct {
	purchaseErr error
	airtime     []vas.AirtimeRequest
}

func (v *fakeVAS) BuyAirtime(_ context.Context, req vas.AirtimeRequest) (*vas.PurchaseResult, error) {
	v.airtime = append(v.airtime, req)
	if v.purchaseErr != nil {
		return nil, v.purchaseErr
	}
	return &vas.PurchaseResult{ProviderReference: "vas-1", Status: "success"}, nil
}

func (v *fakeVAS) BuyData(_ context.Context, _ vas.DataRequest) (*vas.PurchaseResult, error) {
	if v.purchaseErr != nil {
		return nil, v.purchaseErr
	}
	return &vas.PurchaseResult{ProviderReference: "vas-2", Status: "success"}, nil
}

func (v *fakeVAS) PayBill(_ context.Context, _ vas.BillRequest) (*vas.PurchaseResult, error) {
	if v.purchaseErr != nil {
		return nil, v.purchaseErr
	}
	return &vas.PurchaseResult{ProviderReference: "vas-3", Status: "success", Token: "1234-5678"}, nil
}

func (v *fakeVAS) ValidateMeter(_ context.Context, _, _, _ string) (*vas.MeterInfo, error) {
	return &vas.MeterInfo{CustomerName: "ADA OBI"}, nil
}

type fakePlans struct {
	plans map[uuid.UUID]*dataplan.Plan
}

func (p *fakePlans) ListByNetwork(_ context.Context, network dataplan.Network) ([]dataplan.Plan, error) {
	var out []dataplan.Plan
	for _, plan := range p.plans {
		if plan.Network == network {
			out = append(out, *plan)
		}
	}
	return out, nil
}

func (p *fakePlans) GetByID(_ context.Context, id uuid.UUID) (*dataplan.Plan, error) {
	if plan, ok := p.plans[id]; ok {
		clone := *plan
		return &clone, nil
	}
	return nil, nil
}

func (p *fakePlans) Upsert(_ context.Context, plan *dataplan.Plan) error {
	p.plans[plan.ID] = plan
	return nil
}

// fakeEmitter records every outbound send.
type fakeEmitter struct {
	mu       sync.Mutex
	acked    []string
	texts    []string
	buttons  []string
	lists    []string
	flows    []whatsapp.FlowInvitation
	receipts []string
}

func (f *fakeEmitter) Acknowledge(_ context.Context, messageID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, messageID)
}

func (f *fakeEmitter) Text(_ context.Context, _ uuid.UUID, _, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, body)
}

func (f *fakeEmitter) Buttons(_ context.Context, _ uuid.UUID, _, body string, _ []whatsapp.Button) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buttons = append(f.buttons, body)
}

func (f *fakeEmitter) List(_ context.Context, _ uuid.UUID, _, body, _ string, _ []whatsapp.ListSection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists = append(f.lists, body)
}

func (f *fakeEmitter) FlowInvitation(_ context.Context, _ uuid.UUID, _ string, inv whatsapp.FlowInvitation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flows = append(f.flows, inv)
}

func (f *fakeEmitter) Receipt(_ context.Context, _ uuid.UUID, _, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts = append(f.receipts, body)
}

func (f *fakeEmitter) lastText(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		t.Fatal("no text messages sent")
	}
	return f.texts[len(f.texts)-1]
}

type fakeAudit struct {
	actions []string
}

func (a *fakeAudit) Record(_ context.Context, _ uuid.UUID, action string, _ types.JSONText) {
	a.actions = append(a.actions, action)
}

// testRig wires the engine over fakes.
type testRig struct {
	engine  *Engine
	users   *user.Service
	repo    *fakeUserRepo
	ledger  *fakeLedger
	bank    *fakeBank
	vas     *fakeVAS
	emitter *fakeEmitter
	states  *StateStore
	store   *session.Store
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	kv := newMemKV()
	store := session.NewStoreWithKV(kv)
	states := NewStateStoreWithKV(kv)
	repo := newFakeUserRepo()
	users := user.NewService(repo)
	ledger := &fakeLedger{summary: wallet.Summary{
		AvailableBalance: 10_000_000,
		DailyRemaining:   20_000_000,
		AccountNumber:    "9912345678",
		BankName:         "Providus Bank",
		AccountName:      "ADA OBI",
	}}
	bk := &fakeBank{}
	vs := &fakeVAS{}
	emitter := &fakeEmitter{}

	engine := NewEngine(EngineDeps{
		Users:    users,
		Wallets:  ledger,
		Bank:     bk,
		VAS:      vs,
		Plans:    &fakePlans{plans: map[uuid.UUID]*dataplan.Plan{}},
		States:   states,
		Sessions: store,
		Tokens:   flow.NewTokenService(store),
		Emitter:  emitter,
		Audit:    &fakeAudit{},
		FlowIDs:  FlowIDs{Onboarding: "flow-onb", Login: "flow-login", DataPurchase: "flow-data"},
	})
	return &testRig{
		engine: engine, users: users, repo: repo, ledger: ledger,
		bank: bk, vas: vs, emitter: emitter, states: states, store: store,
	}
}

const testPhone = "+2348031112222"

// seedOnboardedUser creates a completed user with PIN 1234.
func (r *testRig) seedOnboardedUser(t *testing.T) *user.User {
	t.Helper()
	ctx := context.Background()
	u := &user.User{
		ID:             uuid.New(),
		Phone:          testPhone,
		DisplayName:    "Ada Obi",
		KYCStatus:      user.KYCVerified,
		OnboardingStep: user.StepCompleted,
	}
	if err := r.repo.Create(ctx, u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := r.users.SetPIN(ctx, u.ID, "1234"); err != nil {
		t.Fatalf("seed pin: %v", err)
	}
	return u
}

func textEvent(text string) whatsapp.InboundEvent {
	return whatsapp.InboundEvent{
		Type:      whatsapp.EventText,
		MessageID: "wamid." + text,
		From:      testPhone,
		Text:      text,
	}
}

func buttonEvent(id string) whatsapp.InboundEvent {
	return whatsapp.InboundEvent{
		Type:      whatsapp.EventButtonReply,
		MessageID: "wamid.btn." + id,
		From:      testPhone,
		Button:    &whatsapp.ButtonReply{ID: id, Title: id},
	}
}

func TestNewUserGetsOnboardingInvitation(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	rig.engine.HandleEvent(ctx, textEvent("hi"))

	if len(rig.emitter.flows) != 1 {
		t.Fatalf("expected 1 flow invitation, got %d", len(rig.emitter.flows))
	}
	inv := rig.emitter.flows[0]
	if inv.FlowID != "flow-onb" {
		t.Errorf("invited into flow %q, want flow-onb", inv.FlowID)
	}
	if inv.FlowToken == "" || inv.InitialScreen == "" {
		t.Error("invitation missing token or initial screen")
	}
	if !strings.Contains(rig.emitter.texts[0], "Welcome") {
		t.Errorf("expected welcome text, got %q", rig.emitter.texts[0])
	}

	u, err := rig.users.GetByPhone(ctx, testPhone)
	if err != nil || u == nil {
		t.Fatalf("user not created: %v", err)
	}
	if u.OnboardingStep != user.StepKYCCollection {
		t.Errorf("onboarding step = %s, want %s", u.OnboardingStep, user.StepKYCCollection)
	}
}

func TestProvisioningHoldbackLiftsOnCompletion(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	u := &user.User{
		ID:             uuid.New(),
		Phone:          testPhone,
		DisplayName:    "Ada Obi",
		KYCStatus:      user.KYCPending,
		OnboardingStep: user.StepAccountProvisioning,
	}
	if err := rig.repo.Create(ctx, u); err != nil {
		t.Fatal(err)
	}

	rig.engine.HandleEvent(ctx, textEvent("balance"))
	if got := rig.emitter.lastText(t); !strings.Contains(got, "Almost there") {
		t.Fatalf("expected the provisioning holdback, got %q", got)
	}

	// The reconciler flips the step once the account number lands.
	if err := rig.repo.UpdateOnboardingStep(ctx, u.ID, user.StepCompleted); err != nil {
		t.Fatal(err)
	}

	rig.engine.HandleEvent(ctx, textEvent("balance"))
	if got := rig.emitter.lastText(t); !strings.Contains(got, "₦100,000") {
		t.Errorf("expected the balance once onboarding completes, got %q", got)
	}
}

func TestStatusUpdatesAreIgnored(t *testing.T) {
	rig := newTestRig(t)

	rig.engine.HandleEvent(context.Background(), whatsapp.InboundEvent{
		Type: whatsapp.EventStatusUpdate,
		From: testPhone,
	})

	if len(rig.emitter.acked)+len(rig.emitter.texts) != 0 {
		t.Error("status update should produce no sends")
	}
}

func TestTransferHappyPath(t *testing.T) {
	rig := newTestRig(t)
	u := rig.seedOnboardedUser(t)
	ctx := context.Background()

	rig.engine.HandleEvent(ctx, textEvent("Send 5000 to 0123456789 Zenith"))
	if len(rig.emitter.buttons) != 1 {
		t.Fatalf("expected confirmation buttons, got %d", len(rig.emitter.buttons))
	}
	summary := rig.emitter.buttons[0]
	for _, want := range []string{"ADA OBI", "₦5,000", "₦50", "₦5,050"} {
		if !strings.Contains(summary, want) {
			t.Errorf("confirmation %q missing %q", summary, want)
		}
	}

	rig.engine.HandleEvent(ctx, buttonEvent(buttonConfirm))
	if got := rig.emitter.lastText(t); !strings.Contains(got, "PIN") {
		t.Fatalf("expected PIN prompt, got %q", got)
	}

	rig.engine.HandleEvent(ctx, textEvent("1234"))

	if len(rig.ledger.debits) != 1 {
		t.Fatalf("expected 1 debit, got %d", len(rig.ledger.debits))
	}
	debit := rig.ledger.debits[0]
	if debit.Amount != 500_000 || debit.Fee != 5_000 {
		t.Errorf("debit amount/fee = %d/%d, want 500000/5000", debit.Amount, debit.Fee)
	}
	if debit.Category != wallet.CategoryTransfer {
		t.Errorf("debit category = %s", debit.Category)
	}
	if len(rig.bank.transfers) != 1 {
		t.Fatalf("expected 1 provider transfer, got %d", len(rig.bank.transfers))
	}
	if rig.bank.transfers[0].Reference != debit.Reference {
		t.Error("provider transfer reference does not match debit reference")
	}
	if len(rig.ledger.completed) != 1 || rig.ledger.completed[0] != debit.Reference {
		t.Error("transfer was not marked completed")
	}
	if len(rig.emitter.receipts) != 1 || !strings.Contains(rig.emitter.receipts[0], "Transfer Successful") {
		t.Error("expected a success receipt")
	}

	state, err := rig.states.Get(ctx, u.ID.String())
	if err != nil || state != nil {
		t.Errorf("state after completion = %v, %v; want idle", state, err)
	}
}

func TestTransferFollowUpSuppliesMissingDetails(t *testing.T) {
	rig := newTestRig(t)
	u := rig.seedOnboardedUser(t)
	ctx := context.Background()

	rig.engine.HandleEvent(ctx, textEvent("send 5000"))
	if len(rig.emitter.buttons) != 0 {
		t.Fatal("no confirmation before the recipient is known")
	}
	state, err := rig.states.Get(ctx, u.ID.String())
	if err != nil || state == nil || state.Name != StateTransferAwaitingDetails {
		t.Fatalf("state = %v, want %s", state, StateTransferAwaitingDetails)
	}
	if got := rig.emitter.lastText(t); !strings.Contains(got, "account number") {
		t.Errorf("prompt %q should ask for the account number", got)
	}

	rig.engine.HandleEvent(ctx, textEvent("0123456789 zenith"))
	if len(rig.emitter.buttons) != 1 {
		t.Fatalf("expected confirmation buttons after the follow-up, got %d", len(rig.emitter.buttons))
	}
	summary := rig.emitter.buttons[0]
	for _, want := range []string{"₦5,000", "0123456789", "Zenith"} {
		if !strings.Contains(summary, want) {
			t.Errorf("confirmation %q missing %q", summary, want)
		}
	}

	rig.engine.HandleEvent(ctx, buttonEvent(buttonConfirm))
	rig.engine.HandleEvent(ctx, textEvent("1234"))
	if len(rig.ledger.debits) != 1 || rig.ledger.debits[0].Amount != 500_000 {
		t.Fatalf("debits = %+v, want one 500000-kobo debit", rig.ledger.debits)
	}
}

func TestAirtimeFollowUpSuppliesAmount(t *testing.T) {
	rig := newTestRig(t)
	u := rig.seedOnboardedUser(t)
	ctx := context.Background()

	rig.engine.HandleEvent(ctx, textEvent("buy airtime"))
	state, err := rig.states.Get(ctx, u.ID.String())
	if err != nil || state == nil || state.Name != StateAirtimeAwaitingDetails {
		t.Fatalf("state = %v, want %s", state, StateAirtimeAwaitingDetails)
	}

	rig.engine.HandleEvent(ctx, textEvent("500"))
	if len(rig.emitter.buttons) != 1 {
		t.Fatalf("expected confirmation after the amount follow-up, got %d", len(rig.emitter.buttons))
	}
	if !strings.Contains(rig.emitter.buttons[0], testPhone) {
		t.Errorf("should default to the sender's number, got %q", rig.emitter.buttons[0])
	}
}

func TestTransferUnknownOutcomeParksPending(t *testing.T) {
	rig := newTestRig(t)
	rig.seedOnboardedUser(t)
	rig.bank.transferErr = provider.ErrUnknownOutcome
	ctx := context.Background()

	rig.engine.HandleEvent(ctx, textEvent("Send 5000 to 0123456789 Zenith"))
	rig.engine.HandleEvent(ctx, buttonEvent(buttonConfirm))
	rig.engine.HandleEvent(ctx, textEvent("1234"))

	if len(rig.ledger.pending) != 1 {
		t.Fatalf("expected 1 pending entry, got %d", len(rig.ledger.pending))
	}
	if len(rig.ledger.reversed) != 0 {
		t.Error("ambiguous outcome must never trigger a refund")
	}
	if got := rig.emitter.lastText(t); !strings.Contains(got, "processing") {
		t.Errorf("expected processing notice, got %q", got)
	}
}

func TestTransferRejectionRefunds(t *testing.T) {
	rig := newTestRig(t)
	rig.seedOnboardedUser(t)
	rig.bank.transferErr = provider.ErrRejected
	ctx := context.Background()

	rig.engine.HandleEvent(ctx, textEvent("Send 5000 to 0123456789 Zenith"))
	rig.engine.HandleEvent(ctx, buttonEvent(buttonConfirm))
	rig.engine.HandleEvent(ctx, textEvent("1234"))

	ref := rig.ledger.debits[0].Reference
	if len(rig.ledger.failed) != 1 || rig.ledger.failed[0] != ref {
		t.Error("rejected transfer was not marked failed")
	}
	if len(rig.ledger.reversed) != 1 || rig.ledger.reversed[0] != ref {
		t.Error("rejected transfer was not reversed")
	}
	if got := rig.emitter.lastText(t); !strings.Contains(got, "rejected") {
		t.Errorf("expected rejection message, got %q", got)
	}
}

func TestCancelAbandonsPendingTransfer(t *testing.T) {
	rig := newTestRig(t)
	u := rig.seedOnboardedUser(t)
	ctx := context.Background()

	rig.engine.HandleEvent(ctx, textEvent("Send 5000 to 0123456789 Zenith"))
	rig.engine.HandleEvent(ctx, textEvent("cancel"))

	state, err := rig.states.Get(ctx, u.ID.String())
	if err != nil || state != nil {
		t.Errorf("state after cancel = %v, %v; want idle", state, err)
	}
	if got := rig.emitter.lastText(t); !strings.Contains(got, "cancelled") {
		t.Errorf("expected cancellation confirmation, got %q", got)
	}
	if len(rig.ledger.debits) != 0 {
		t.Error("cancelled transfer must not debit")
	}
}

func TestWrongPINKeepsAwaitingState(t *testing.T) {
	rig := newTestRig(t)
	u := rig.seedOnboardedUser(t)
	ctx := context.Background()

	rig.engine.HandleEvent(ctx, textEvent("Send 5000 to 0123456789 Zenith"))
	rig.engine.HandleEvent(ctx, buttonEvent(buttonConfirm))
	rig.engine.HandleEvent(ctx, textEvent("9999"))

	if len(rig.ledger.debits) != 0 {
		t.Error("wrong PIN must not debit")
	}
	state, err := rig.states.Get(ctx, u.ID.String())
	if err != nil || state == nil || state.Name != StateTransferAwaitingPIN {
		t.Errorf("state after wrong PIN = %v, want %s", state, StateTransferAwaitingPIN)
	}
}

func TestBalanceQuery(t *testing.T) {
	rig := newTestRig(t)
	rig.seedOnboardedUser(t)

	rig.engine.HandleEvent(context.Background(), textEvent("balance"))

	got := rig.emitter.lastText(t)
	if !strings.Contains(got, "₦100,000") {
		t.Errorf("balance message %q missing available balance", got)
	}
}

func TestMenuRowSkipsClassifier(t *testing.T) {
	rig := newTestRig(t)
	rig.seedOnboardedUser(t)

	rig.engine.HandleEvent(context.Background(), whatsapp.InboundEvent{
		Type:      whatsapp.EventListReply,
		MessageID: "wamid.list",
		From:      testPhone,
		List:      &whatsapp.ListReply{ID: menuAccount, Title: "My account details"},
	})

	got := rig.emitter.lastText(t)
	if !strings.Contains(got, "9912345678") {
		t.Errorf("expected account details, got %q", got)
	}
}

func TestAirtimeSelfTopUp(t *testing.T) {
	rig := newTestRig(t)
	rig.seedOnboardedUser(t)
	ctx := context.Background()

	rig.engine.HandleEvent(ctx, textEvent("buy 500 airtime"))
	if len(rig.emitter.buttons) != 1 {
		t.Fatalf("expected confirmation buttons, got %d", len(rig.emitter.buttons))
	}
	if !strings.Contains(rig.emitter.buttons[0], testPhone) {
		t.Errorf("airtime should default to sender's number, got %q", rig.emitter.buttons[0])
	}

	rig.engine.HandleEvent(ctx, buttonEvent(buttonConfirm))
	rig.engine.HandleEvent(ctx, textEvent("1234"))

	if len(rig.vas.airtime) != 1 {
		t.Fatalf("expected 1 airtime purchase, got %d", len(rig.vas.airtime))
	}
	if rig.vas.airtime[0].Amount != 50_000 {
		t.Errorf("airtime amount = %d, want 50000", rig.vas.airtime[0].Amount)
	}
	if rig.vas.airtime[0].Network != "mtn" {
		t.Errorf("airtime network = %q, want mtn", rig.vas.airtime[0].Network)
	}
}

func TestDisabledUserIsDropped(t *testing.T) {
	rig := newTestRig(t)
	u := rig.seedOnboardedUser(t)
	if err := rig.repo.SetDisabled(context.Background(), u.ID, true); err != nil {
		t.Fatal(err)
	}

	rig.engine.HandleEvent(context.Background(), textEvent("balance"))

	if len(rig.emitter.texts)+len(rig.emitter.acked) != 0 {
		t.Error("disabled users must be dropped silently")
	}
}
