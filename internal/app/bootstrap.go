package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"subscription-backend/internal/auth"
	"subscription-backend/internal/config"
	"subscription-backend/internal/db"
	"subscription-backend/internal/mail"
	"subscription-backend/internal/maintenance"
	"subscription-backend/internal/observability"
)

// Version is stamped at build time and reported to Sentry.
var Version = "dev"

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Config  config.Config
	Logger  *observability.Logger
	Close   func() error
}

func Build(ctx context.Context, options Options) (*Runtime, error) {
	cfg := config.Load(options.LoadDotEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := observability.NewLogger()

	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv, Version); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := db.Open(ctx, cfg.DatabaseURL, poolConfig(cfg))
	if err != nil {
		return nil, err
	}

	if options.RunMigrations || cfg.RunMigrationsOnStartup {
		if err := db.RunMigrations(ctx, database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	users := auth.NewUserRepository(database)
	refreshTokens := auth.NewRefreshTokenRepository(database)
	resetTokens := auth.NewResetTokenRepository(database)

	signer, err := auth.NewJWTSigner(cfg.JWTSecret, cfg.AccessTokenTTL)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init jwt signer: %w", err)
	}

	notifier, err := newNotifier(cfg.Mail, logger)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init mail notifier: %w", err)
	}

	authService, err := auth.NewService(auth.Dependencies{
		Users:         users,
		RefreshTokens: refreshTokens,
		ResetTokens:   resetTokens,
		Hasher:        auth.NewBcryptHasher(cfg.BcryptCost),
		Signer:        signer,
		Notifier:      notifier,
		Logger:        logger,
	}, auth.Config{
		AccessTTL:                      cfg.AccessTokenTTL,
		RefreshTTL:                     cfg.RefreshTokenTTL,
		ResetTTL:                       cfg.ResetTokenTTL,
		RevokeSessionsOnPasswordChange: cfg.RevokeSessionsOnPasswordChange,
	})
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init auth service: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	limiter := auth.NewLoginRateLimiter(cfg.LoginRateLimitPerMinute, cfg.LoginRateLimitBurst, cfg.TrustedProxyHops)
	cleaner := maintenance.NewCleaner(refreshTokens, resetTokens, cfg.CleanupBatchSize)

	handler := NewRouter(Router{
		Auth:    auth.NewHandler(authService, metrics),
		Signer:  signer,
		Limiter: limiter,
		Cleanup: maintenance.NewCleanupHandler(cleaner, logger, cfg.CronSecret),
		Metrics: metrics,
		Logger:  logger,
		DB:      database,
	})

	return &Runtime{
		Handler: handler,
		Config:  cfg,
		Logger:  logger,
		Close: func() error {
			limiter.Close()
			observability.FlushSentry()
			return database.Close()
		},
	}, nil
}

func newNotifier(cfg config.Mail, logger *observability.Logger) (auth.Notifier, error) {
	if cfg.Host == "" {
		logger.Info("mail_disabled", map[string]any{"reason": "MAIL_HOST not set"})
		return mail.NewLogNotifier(logger), nil
	}

	return mail.NewSMTPNotifier(mail.SMTPConfig{
		Host:         cfg.Host,
		Port:         cfg.Port,
		User:         cfg.User,
		Pass:         cfg.Pass,
		From:         cfg.From,
		ResetPageURL: cfg.ResetPageURL,
		Timeout:      cfg.Timeout,
	})
}

func poolConfig(cfg config.Config) db.PoolConfig {
	return db.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	}
}
