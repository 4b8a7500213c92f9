package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/owopay/owo-api/internal/config"
	"github.com/owopay/owo-api/internal/domain/activity"
	"github.com/owopay/owo-api/internal/domain/conversation"
	"github.com/owopay/owo-api/internal/domain/dataplan"
	"github.com/owopay/owo-api/internal/domain/flow"
	"github.com/owopay/owo-api/internal/domain/notification"
	"github.com/owopay/owo-api/internal/domain/session"
	"github.com/owopay/owo-api/internal/domain/user"
	"github.com/owopay/owo-api/internal/domain/wallet"
	"github.com/owopay/owo-api/internal/domain/webhook"
	"github.com/owopay/owo-api/internal/middleware"
	"github.com/owopay/owo-api/internal/pkg/bank"
	"github.com/owopay/owo-api/internal/pkg/database"
	"github.com/owopay/owo-api/internal/pkg/flowcrypto"
	"github.com/owopay/owo-api/internal/pkg/imaging"
	"github.com/owopay/owo-api/internal/pkg/jwt"
	pkgresponse "github.com/owopay/owo-api/internal/pkg/response"
	"github.com/owopay/owo-api/internal/pkg/storage"
	"github.com/owopay/owo-api/internal/pkg/vas"
	"github.com/owopay/owo-api/internal/pkg/whatsapp"
)

const webhookWorkers = 16

func main() {
	cfg := config.Load()
	setupLogger(cfg)

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting Owo API")

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

	var store storage.Storage
	if cfg.R2AccountID != "" {
		r2, err := storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			AccessKeySecret: cfg.R2AccessKeySecret,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create R2 storage")
		}
		store = r2
	} else {
		if cfg.IsProduction() {
			log.Fatal().Msg("R2 storage must be configured in production")
		}
		local, err := storage.NewLocalStorage(cfg.LocalStoragePath, "")
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create local storage")
		}
		log.Warn().Str("path", cfg.LocalStoragePath).Msg("R2 not configured, archiving to local disk")
		store = local
	}

	waClient := whatsapp.NewClient(whatsapp.Config{
		BaseURL:       cfg.WhatsAppAPIBaseURL,
		AccessToken:   cfg.WhatsAppAccessToken,
		PhoneNumberID: cfg.WhatsAppPhoneNumberID,
	})
	bankClient := bank.NewClient(bank.Config{
		BaseURL:      cfg.BankBaseURL,
		ClientID:     cfg.BankClientID,
		ClientSecret: cfg.BankClientSecret,
	}, rdb)
	vasClient := vas.NewClient(vas.Config{
		BaseURL:   cfg.VASBaseURL,
		APIKey:    cfg.VASAPIKey,
		SecretKey: cfg.VASSecretKey,
	})

	// ---------- Repositories ----------
	userRepo := user.NewRepository(db)
	walletRepo := wallet.NewRepository(db)
	planRepo := dataplan.NewRepository(db)
	notificationRepo := notification.NewRepository(db)

	// ---------- Services ----------
	sessions := session.NewStore(rdb)
	states := conversation.NewStateStore(rdb)
	tokens := flow.NewTokenService(sessions)
	users := user.NewService(userRepo)
	wallets := wallet.NewService(walletRepo, rdb)
	jwtService := jwt.NewService(cfg.SessionSecret, cfg.SessionTTL)
	emitter := notification.NewEmitter(waClient, notificationRepo)
	archiver := notification.NewArchiver(store)
	audit := activity.NewLogger(db)
	media := conversation.NewMediaIngest(waClient, store, imaging.NewProcessor(imaging.DefaultConfig()))

	engine := conversation.NewEngine(conversation.EngineDeps{
		Users:    users,
		Wallets:  wallets,
		Bank:     bankClient,
		VAS:      vasClient,
		Plans:    planRepo,
		States:   states,
		Sessions: sessions,
		Tokens:   tokens,
		Emitter:  emitter,
		Archiver: archiver,
		Audit:    audit,
		Media:    media,
		FlowIDs: conversation.FlowIDs{
			Onboarding:   cfg.OnboardingFlowID,
			Login:        cfg.LoginFlowID,
			DataPurchase: cfg.DataPurchaseFlowID,
		},
	})

	// ---------- Handlers ----------
	webhookHandler := webhook.NewHandler(cfg.WebhookVerifyToken, engine, webhookWorkers)
	defer webhookHandler.Close()

	var flowHandler *flow.Handler
	if cfg.FlowPrivateKeyPath != "" {
		envelope, err := flowcrypto.NewFromFiles(cfg.FlowPrivateKeyPath, cfg.FlowPrivateKeyPrevPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load flow private keys")
		}
		flowHandler = flow.NewHandler(envelope, tokens, users, planRepo, sessions, jwtService)

		// Re-upload the public key on every boot; the call is idempotent and
		// covers key rotation.
		pem, err := envelope.PublicKeyPEM()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to encode flow public key")
		}
		if err := waClient.UploadPublicKey(context.Background(), pem); err != nil {
			log.Error().Err(err).Msg("Flow public key upload failed, encrypted flows may not work")
		}
	} else {
		log.Warn().Msg("No flow private key configured, /flow endpoint disabled")
	}

	// ---------- Router ----------
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})

	webhookHandler.RegisterRoutes(r)
	if flowHandler != nil {
		flowHandler.RegisterRoutes(r)
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		})
	}
}
