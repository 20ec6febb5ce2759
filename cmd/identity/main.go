package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/xi-effect/xi.back-2-sub001/internal/capability"
	"github.com/xi-effect/xi.back-2-sub001/internal/config"
	"github.com/xi-effect/xi.back-2-sub001/internal/domain"
	"github.com/xi-effect/xi.back-2-sub001/internal/observability/logging"
	"github.com/xi-effect/xi.back-2-sub001/internal/observability/metrics"
	impl "github.com/xi-effect/xi.back-2-sub001/internal/service/impl"
	"github.com/xi-effect/xi.back-2-sub001/internal/store"
	"github.com/xi-effect/xi.back-2-sub001/internal/token"
	httpx "github.com/xi-effect/xi.back-2-sub001/internal/transport/http"
	"github.com/xi-effect/xi.back-2-sub001/pkg/db"
)

func main() {
	_ = godotenv.Load()

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}

	logger := logging.NewLogger(logging.Config{
		ServiceName: "identity",
		Environment: env,
		Level:       os.Getenv("LOG_LEVEL"),
	})
	slog.SetDefault(logger)

	logger.Info("starting service")

	cfg := config.Load()
	metrics.MustRegister("identity")

	gdb, err := db.OpenGorm(db.Config{DSN: cfg.DatabaseURL, LogSQL: cfg.LogSQL})
	if err != nil {
		logger.Error("gorm open", "error", err)
		os.Exit(1)
	}
	if err := gdb.AutoMigrate(&domain.User{}, &domain.PasswordCredential{}, &domain.Session{}); err != nil {
		logger.Error("automigrate", "error", err)
		os.Exit(1)
	}
	st := store.New(gdb)

	// Token providers are built once here and passed by reference; nothing
	// re-reads mutable global state afterwards.
	resetTokens, err := token.NewSealedProvider(cfg.ResetTokenKeys, cfg.ResetTokenTTL)
	if err != nil {
		logger.Error("reset token provider", "error", err)
		os.Exit(1)
	}
	confirmTokens, err := token.NewSealedProvider(cfg.ConfirmTokenKeys, cfg.ConfirmTokenTTL)
	if err != nil {
		logger.Error("confirm token provider", "error", err)
		os.Exit(1)
	}
	storageTokens, err := capability.NewVerifier(cfg.StorageTokenKeys, cfg.StorageTokenTTL)
	if err != nil {
		logger.Error("storage token verifier", "error", err)
		os.Exit(1)
	}

	sessions := impl.NewSessionService(impl.SessionConfig{
		ExpiryTimeout:         cfg.SessionExpiryTimeout,
		RenewPeriod:           cfg.SessionRenewPeriod,
		MaxConcurrentSessions: cfg.MaxConcurrentSessions,
		MaxHistorySessions:    cfg.MaxHistorySessions,
		MaxHistoryTimedelta:   cfg.MaxHistoryTimedelta,
	}, st)

	accounts := impl.NewAccountService(
		st,
		impl.NewPasswordServiceArgon2id(),
		sessions,
		resetTokens,
		confirmTokens,
		impl.LogNotifier{},
	)

	gateway := &httpx.Gateway{
		Sessions:     sessions,
		Store:        st,
		CookieDomain: cfg.CookieDomain,
	}
	handler := &httpx.Handler{
		Accounts:  accounts,
		Sessions:  sessions,
		Storage:   storageTokens,
		Gateway:   gateway,
		MubAPIKey: cfg.MubAPIKey,
	}

	router := httpx.NewRouter(handler, gateway, httpx.RouterConfig{
		CORSOrigins:     cfg.CORSOrigins,
		SignInRateLimit: cfg.SignInRateLimit,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("identity service listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
