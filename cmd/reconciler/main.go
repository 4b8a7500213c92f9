package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/owopay/owo-api/internal/config"
	"github.com/owopay/owo-api/internal/domain/notification"
	"github.com/owopay/owo-api/internal/domain/user"
	"github.com/owopay/owo-api/internal/domain/wallet"
	"github.com/owopay/owo-api/internal/pkg/bank"
	"github.com/owopay/owo-api/internal/pkg/database"
	"github.com/owopay/owo-api/internal/pkg/money"
	"github.com/owopay/owo-api/internal/pkg/vas"
	"github.com/owopay/owo-api/internal/pkg/whatsapp"
)

const (
	pollInterval = 5 * time.Second
	batchSize    = 50

	// pendingGrace keeps the reconciler off entries the API is still
	// actively settling.
	pendingGrace = 2 * time.Minute
)

// Narrow views of the worker's collaborators; main wires the real ones.
type userStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	UpdateOnboardingStep(ctx context.Context, id uuid.UUID, step user.OnboardingStep) error
}

type ledgerLister interface {
	ListProvisioning(ctx context.Context, limit int) ([]uuid.UUID, error)
	ListPending(ctx context.Context, olderThan time.Duration, limit int) ([]wallet.Transaction, error)
}

type walletSettler interface {
	Activate(ctx context.Context, userID uuid.UUID, accountNumber, bankName, accountName string) error
	Complete(ctx context.Context, reference, providerReference string) error
	Fail(ctx context.Context, reference string) error
	Reverse(ctx context.Context, reference string) error
}

type bankGateway interface {
	CreateVirtualAccount(ctx context.Context, req bank.VirtualAccountRequest) (*bank.VirtualAccount, error)
	GetStatus(ctx context.Context, reference string) (*bank.TransferStatus, error)
}

type vasGateway interface {
	GetStatus(ctx context.Context, reference string) (*vas.PurchaseResult, error)
}

type notifier interface {
	Text(ctx context.Context, userID uuid.UUID, to, body string)
}

type worker struct {
	users   userStore
	wallets walletSettler
	ledger  ledgerLister
	bank    bankGateway
	vas     vasGateway
	emitter notifier
}

func main() {
	cfg := config.Load()
	setupLogger(cfg)

	log.Info().Msg("Starting reconciler")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	rdb, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(rdb)

	walletRepo := wallet.NewRepository(db)
	w := &worker{
		users:   user.NewRepository(db),
		wallets: wallet.NewService(walletRepo, rdb),
		ledger:  walletRepo,
		bank: bank.NewClient(bank.Config{
			BaseURL:      cfg.BankBaseURL,
			ClientID:     cfg.BankClientID,
			ClientSecret: cfg.BankClientSecret,
		}, rdb),
		vas: vas.NewClient(vas.Config{
			BaseURL:   cfg.VASBaseURL,
			APIKey:    cfg.VASAPIKey,
			SecretKey: cfg.VASSecretKey,
		}),
		emitter: notification.NewEmitter(whatsapp.NewClient(whatsapp.Config{
			BaseURL:       cfg.WhatsAppAPIBaseURL,
			AccessToken:   cfg.WhatsAppAccessToken,
			PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		}), notification.NewRepository(db)),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Pub/sub wake-up on wallet creation; polling still runs regardless.
	wake := make(chan struct{}, 1)
	go subscribeWakeups(ctx, rdb, wake)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigChan
		log.Info().Msg("Shutdown signal received")
		cancel()
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	lastIdleLog := time.Time{}
	idleLogEvery := 1 * time.Minute

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("reconciler stopped")
			return
		case <-wake:
			// immediate poll
		case <-ticker.C:
		}

		provisioned := w.provisionWallets(ctx)
		resolved := w.reconcilePending(ctx)

		if provisioned == 0 && resolved == 0 {
			now := time.Now()
			if lastIdleLog.IsZero() || now.Sub(lastIdleLog) >= idleLogEvery {
				log.Info().Msg("Idle: nothing to provision or reconcile")
				lastIdleLog = now
			}
		}
	}
}

// provisionWallets requests a virtual deposit account for every wallet still
// waiting on one, then tells the user their account number.
func (w *worker) provisionWallets(ctx context.Context) int {
	ids, err := w.ledger.ListProvisioning(ctx, batchSize)
	if err != nil {
		log.Error().Err(err).Msg("DB error while listing provisioning wallets")
		return 0
	}

	done := 0
	for _, userID := range ids {
		if ctx.Err() != nil {
			return done
		}
		if err := w.provisionOne(ctx, userID); err != nil {
			// Leave the wallet in provisioning; the next poll retries it.
			log.Error().Err(err).Str("user_id", userID.String()).Msg("Wallet provisioning failed")
			continue
		}
		done++
	}
	return done
}

func (w *worker) provisionOne(ctx context.Context, userID uuid.UUID) error {
	u, err := w.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if u == nil {
		return fmt.Errorf("user %s not found", userID)
	}
	if !u.BVN.Valid || u.BVN.String == "" {
		// KYC not finished yet; nothing to send to the provider.
		return nil
	}

	acct, err := w.bank.CreateVirtualAccount(ctx, bank.VirtualAccountRequest{
		Reference:   "VA_" + userID.String(),
		AccountName: u.DisplayName,
		BVN:         u.BVN.String,
		Phone:       u.Phone,
	})
	if err != nil {
		return fmt.Errorf("create virtual account: %w", err)
	}

	// The onboarding step flips before activation: activating removes the
	// wallet from the work queue, so anything that must be retryable has to
	// land first. Both updates are idempotent.
	if err := w.users.UpdateOnboardingStep(ctx, userID, user.StepCompleted); err != nil {
		return fmt.Errorf("complete onboarding: %w", err)
	}
	if err := w.wallets.Activate(ctx, userID, acct.AccountNumber, acct.BankName, acct.AccountName); err != nil {
		return fmt.Errorf("activate wallet: %w", err)
	}

	w.emitter.Text(ctx, u.ID, u.Phone, fmt.Sprintf(
		"Your account is ready 🎉\n\n"+
			"Account: %s\nBank: %s\nName: %s\n\n"+
			"Share these details with anyone to receive money instantly.",
		acct.AccountNumber, acct.BankName, acct.AccountName))

	log.Info().
		Str("user_id", userID.String()).
		Str("account_number", acct.AccountNumber).
		Msg("Virtual account provisioned")
	return nil
}

// reconcilePending re-queries the provider for every ledger entry parked in
// pending and settles it in whichever direction the provider reports.
func (w *worker) reconcilePending(ctx context.Context) int {
	entries, err := w.ledger.ListPending(ctx, pendingGrace, batchSize)
	if err != nil {
		log.Error().Err(err).Msg("DB error while listing pending transactions")
		return 0
	}

	resolved := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return resolved
		}
		ok, err := w.reconcileOne(ctx, entry)
		if err != nil {
			log.Error().Err(err).Str("reference", entry.Reference).Msg("Reconciliation failed")
			continue
		}
		if ok {
			resolved++
		}
	}
	return resolved
}

func (w *worker) reconcileOne(ctx context.Context, entry wallet.Transaction) (bool, error) {
	status, providerRef, err := w.providerStatus(ctx, entry)
	if err != nil {
		return false, err
	}

	switch status {
	case "completed":
		if err := w.wallets.Complete(ctx, entry.Reference, providerRef); err != nil {
			return false, err
		}
		w.notify(ctx, entry,
			"Good news ✅ Your %s of %s has been confirmed.\nRef: %s")

	case "failed":
		if err := w.wallets.Fail(ctx, entry.Reference); err != nil {
			return false, err
		}
		if err := w.wallets.Reverse(ctx, entry.Reference); err != nil {
			return false, err
		}
		w.notify(ctx, entry,
			"Your %s of %s could not be completed, so we've returned the money to your wallet.\nRef: %s")

	default:
		// Still pending on the provider side; try again next poll.
		return false, nil
	}

	log.Info().
		Str("reference", entry.Reference).
		Str("status", status).
		Msg("Pending transaction reconciled")
	return true, nil
}

// providerStatus asks whichever provider executed the entry how it ended up.
func (w *worker) providerStatus(ctx context.Context, entry wallet.Transaction) (string, string, error) {
	switch entry.Category {
	case wallet.CategoryTransfer:
		st, err := w.bank.GetStatus(ctx, entry.Reference)
		if err != nil {
			return "", "", err
		}
		return st.Status, st.ProviderReference, nil
	case wallet.CategoryAirtime, wallet.CategoryData, wallet.CategoryBills:
		res, err := w.vas.GetStatus(ctx, entry.Reference)
		if err != nil {
			return "", "", err
		}
		return res.Status, res.ProviderReference, nil
	default:
		return "", "", fmt.Errorf("no provider for category %s", entry.Category)
	}
}

func (w *worker) notify(ctx context.Context, entry wallet.Transaction, format string) {
	u, err := w.users.GetByID(ctx, entry.UserID)
	if err != nil || u == nil {
		log.Warn().Err(err).Str("reference", entry.Reference).Msg("Could not load user for notification")
		return
	}
	w.emitter.Text(ctx, u.ID, u.Phone,
		fmt.Sprintf(format, entry.Category, money.Format(entry.Amount), entry.Reference))
}

func subscribeWakeups(ctx context.Context, rdb *redis.Client, wake chan<- struct{}) {
	sub := rdb.Subscribe(ctx, wallet.ProvisionChannel)
	defer func() { _ = sub.Close() }()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Channel():
			// non-blocking wake-up
			select {
			case wake <- struct{}{}:
			default:
			}
		}
	}
}

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		})
	}
}
