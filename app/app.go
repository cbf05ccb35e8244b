package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/afrobirthday/storefront/internal/alert"
	"github.com/afrobirthday/storefront/internal/cache"
	"github.com/afrobirthday/storefront/internal/config"
	"github.com/afrobirthday/storefront/internal/crypto"
	"github.com/afrobirthday/storefront/internal/db"
	"github.com/afrobirthday/storefront/internal/email"
	"github.com/afrobirthday/storefront/internal/handlers"
	"github.com/afrobirthday/storefront/internal/logging"
	"github.com/afrobirthday/storefront/internal/observability"
	"github.com/afrobirthday/storefront/internal/payments"
	"github.com/afrobirthday/storefront/internal/payments/paypal"
	stripepay "github.com/afrobirthday/storefront/internal/payments/stripe"
	"github.com/afrobirthday/storefront/internal/services"
)

const (
	outboundAPITimeout = 30 * time.Second
	sentryFlushTimeout = 2 * time.Second
	emailCheckTimeout  = 10 * time.Second
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	DB            *pgxpool.Pool
	CacheProvider cache.Provider
	Handlers      *handlers.Handlers
	sentryEnabled bool
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	sentryEnabled, err := initSentry(cfg)
	if err != nil {
		return nil, err
	}

	logger := logging.New(os.Stdout, logging.Options{
		Level:        cfg.LogLevel,
		Format:       cfg.LogFormat,
		ReportErrors: sentryEnabled,
	})

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	database, err := db.Connect(startupCtx, cfg.DatabaseURL)
	if err != nil {
		flushSentry(sentryEnabled)
		return nil, err
	}

	cacheProvider, err := cache.NewProvider(cache.Config{
		Provider:              cfg.CacheProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		database.Close()
		flushSentry(sentryEnabled)
		return nil, fmt.Errorf("failed to initialize cache provider: %w", err)
	}

	var sealer crypto.Sealer
	if strings.TrimSpace(cfg.EncryptionKey) != "" {
		sealer, err = crypto.NewSealer(cfg.EncryptionKey)
		if err != nil {
			closeCacheProvider(logger, cacheProvider)
			database.Close()
			flushSentry(sentryEnabled)
			return nil, fmt.Errorf("failed to initialize sealer: %w", err)
		}
	} else {
		logger.Warn("ENCRYPTION_KEY not set; stored Stripe keys cannot be updated")
	}

	httpClient := observability.NewHTTPClient(outboundAPITimeout)
	orderStore := db.NewOrderStore(database)
	settingsStore := db.NewSettingsStore(database, sealer)

	notifier, err := newNotifier(cfg, httpClient, logger)
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		flushSentry(sentryEnabled)
		return nil, err
	}

	registry, stripeMode := newPaymentRegistry(cfg, httpClient, logger)
	reconciler := services.NewReconciler(orderStore, notifier, logger.With("component", "reconciler"))
	paymentService := services.NewPaymentService(
		orderStore,
		settingsStore,
		registry,
		reconciler,
		services.PaymentServiceConfig{
			BaseURL:    cfg.BaseURL,
			StripeMode: stripeMode,
		},
		logger.With("component", "payment_service"),
	)
	adminService := services.NewAdminService(orderStore, settingsStore, logger.With("component", "admin_service"))
	authService := services.NewAuthService(services.AuthConfig{
		Username:    cfg.AdminUsername,
		Password:    cfg.AdminPassword,
		TokenSecret: cfg.AdminTokenSecret,
	}, logger.With("component", "auth_service"))

	var stripeRouter *handlers.StripeEventRouter
	if cfg.StripeEnabled() {
		stripeRouter = handlers.NewStripeEventRouter(paymentService, logger.With("component", "stripe_router"))
	}

	h, err := handlers.New(handlers.Dependencies{
		Config:         cfg,
		DB:             database,
		PaymentService: paymentService,
		AdminService:   adminService,
		AuthService:    authService,
		CacheProvider:  cacheProvider,
		StripeRouter:   stripeRouter,
		Logger:         logger,
	})
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		flushSentry(sentryEnabled)
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	logger.Info("storefront initialized",
		"providers", registry.Providers(),
		"stripe_mode", stripeMode,
		"cache_provider", cfg.CacheProvider,
		"admin_enabled", cfg.AdminEnabled(),
	)

	return &App{
		Config:        cfg,
		Logger:        logger,
		DB:            database,
		CacheProvider: cacheProvider,
		Handlers:      h,
		sentryEnabled: sentryEnabled,
	}, nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.CacheProvider != nil {
		closeCacheProvider(a.Logger, a.CacheProvider)
	}
	if a.DB != nil {
		a.DB.Close()
	}
	flushSentry(a.sentryEnabled)
}

func initSentry(cfg *config.Config) (bool, error) {
	if strings.TrimSpace(cfg.SentryDSN) == "" {
		return false, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.SentryEnvironment,
		TracesSampleRate: cfg.SentryTracesSampleRate,
	})
	if err != nil {
		return false, fmt.Errorf("failed to initialize sentry: %w", err)
	}
	return true, nil
}

func flushSentry(enabled bool) {
	if enabled {
		sentry.Flush(sentryFlushTimeout)
	}
}

// newNotifier wires the order fan-out. Missing email or alert configuration
// disables that channel; it never blocks startup.
func newNotifier(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) (*services.NotificationFanOut, error) {
	renderer, err := email.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("failed to load email templates: %w", err)
	}

	emailProvider, err := email.NewProvider(email.Config{
		Provider:   cfg.EmailProvider,
		APIKey:     cfg.EmailAPIKey,
		From:       cfg.EmailFrom,
		HTTPClient: httpClient,
	})
	switch {
	case errors.Is(err, email.ErrNotConfigured):
		logger.Warn("EMAIL_PROVIDER not set; order emails are disabled")
	case err != nil:
		return nil, fmt.Errorf("failed to initialize email provider: %w", err)
	default:
		checkEmailProvider(emailProvider, cfg.EmailProvider, logger)
	}

	var discord *alert.DiscordClient
	if strings.TrimSpace(cfg.DiscordWebhookURL) != "" {
		discord = alert.NewDiscordClient(cfg.DiscordWebhookURL, httpClient)
	} else {
		logger.Warn("DISCORD_WEBHOOK_URL not set; order alerts are disabled")
	}

	return services.NewNotificationFanOut(
		emailProvider,
		renderer,
		discord,
		cfg.BaseURL,
		logger.With("component", "notifications"),
	), nil
}

// checkEmailProvider verifies the API key at startup. A rejected key is
// logged rather than fatal since it only costs confirmation emails.
func checkEmailProvider(provider email.Provider, name string, logger *slog.Logger) bool {
	ctx, cancel := context.WithTimeout(context.Background(), emailCheckTimeout)
	defer cancel()

	if err := provider.ValidateAPIKey(ctx); err != nil {
		logger.Warn("email provider rejected the API key; order emails will fail", "provider", name, "error", err)
		return false
	}
	logger.Info("email provider ready", "provider", name)
	return true
}

func newPaymentRegistry(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) (*payments.Registry, stripepay.Mode) {
	var adapters []payments.Adapter
	stripeMode := stripepay.Mode(cfg.StripeCheckoutMode)

	if cfg.StripeEnabled() {
		adapters = append(adapters, stripepay.NewAdapter(cfg.StripeSecretKey, stripeMode, httpClient))
	}
	if cfg.PayPalEnabled() {
		baseURL := paypal.BaseURLForEnv(cfg.PayPalEnv)
		client := paypal.NewClient(baseURL, cfg.PayPalClientID, cfg.PayPalClientSecret, httpClient)
		adapters = append(adapters, paypal.NewAdapter(client))
		logger.Info("paypal enabled", "env", cfg.PayPalEnv)
	}

	return payments.NewRegistry(adapters...), stripeMode
}

func closeCacheProvider(logger *slog.Logger, provider cache.Provider) {
	if provider == nil {
		return
	}
	if err := provider.Close(); err != nil && logger != nil {
		logger.Warn("failed to close cache provider", "error", err)
	}
}
