package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lmittmann/tint"

	"github.com/threadlane/threadlane/internal/auth"
	"github.com/threadlane/threadlane/internal/cache"
	"github.com/threadlane/threadlane/internal/catalog"
	"github.com/threadlane/threadlane/internal/config"
	"github.com/threadlane/threadlane/internal/db"
	"github.com/threadlane/threadlane/internal/email"
	"github.com/threadlane/threadlane/internal/handlers"
	"github.com/threadlane/threadlane/internal/logging"
	"github.com/threadlane/threadlane/internal/payments"
	"github.com/threadlane/threadlane/internal/pricing"
	"github.com/threadlane/threadlane/internal/services"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	DB            *pgxpool.Pool
	CacheProvider cache.Provider
	Handlers      *handlers.Handlers

	logFile *os.File
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, logFile, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	database, err := db.Connect(startupCtx, cfg.DatabaseURL)
	if err != nil {
		closeLogFile(logFile)
		return nil, err
	}

	shopCatalog, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		database.Close()
		closeLogFile(logFile)
		return nil, err
	}

	cacheProvider, err := cache.NewProvider(cache.Config{
		Provider:              cfg.CacheProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		database.Close()
		closeLogFile(logFile)
		return nil, fmt.Errorf("failed to initialize cache provider: %w", err)
	}

	verifier, err := auth.NewVerifier(cfg.AuthSecret)
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		closeLogFile(logFile)
		return nil, fmt.Errorf("failed to initialize token verifier: %w", err)
	}

	emailProvider, err := email.NewProvider(email.Config{
		Provider: cfg.EmailProvider,
		APIKey:   cfg.EmailAPIKey,
		From:     cfg.EmailFrom,
	})
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		closeLogFile(logFile)
		return nil, fmt.Errorf("failed to initialize email provider: %w", err)
	}

	orderStore := db.NewOrderStore(database)
	refundStore := db.NewRefundStore(database)
	voucherStore := db.NewVoucherStore(database)

	gateway := payments.NewClient(cfg.GatewaySecretKey, cfg.BaseURL, shopCatalog.Shop.Currency)
	emailSender := services.NewProviderOrderEmailSender(emailProvider)
	catalogSource := catalog.NewStaticSource(shopCatalog)
	pricer := pricing.NewPricer()

	checkoutService := services.NewCheckoutService(
		orderStore, voucherStore, catalogSource, pricer, gateway, emailSender,
		logger.With("component", "checkout_service"),
	)
	orderService := services.NewOrderService(orderStore, emailSender, logger.With("component", "order_service"))
	refundService := services.NewRefundService(refundStore, orderStore, emailSender, logger.With("component", "refund_service"))
	paymentService := services.NewPaymentService(orderStore, gateway, cacheProvider, emailSender, logger.With("component", "payment_service"))
	voucherService := services.NewVoucherService(voucherStore, logger.With("component", "voucher_service"))

	h, err := handlers.New(handlers.Dependencies{
		Config:          cfg,
		DB:              database,
		Verifier:        verifier,
		CheckoutService: checkoutService,
		OrderService:    orderService,
		RefundService:   refundService,
		PaymentService:  paymentService,
		VoucherService:  voucherService,
		Logger:          logger,
	})
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		closeLogFile(logFile)
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	return &App{
		Config:        cfg,
		Logger:        logger,
		DB:            database,
		CacheProvider: cacheProvider,
		Handlers:      h,
		logFile:       logFile,
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
	closeLogFile(a.logFile)
}

// loadCatalog parses and validates the catalog once at startup. A broken
// catalog is a deploy error, not something to discover at checkout time.
func loadCatalog(path string) (*catalog.ShopCatalog, error) {
	shopCatalog, err := catalog.NewParser().ParseFile(path)
	if err != nil {
		return nil, err
	}
	if err := catalog.NewValidator().Validate(shopCatalog); err != nil {
		return nil, fmt.Errorf("invalid catalog %s: %w", path, err)
	}
	return shopCatalog, nil
}

func newLogger(cfg *config.Config) (*slog.Logger, *os.File, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var console slog.Handler
	format := strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	if format == "json" {
		console = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		console = tint.NewHandler(os.Stdout, &tint.Options{
			Level: cfg.LogLevel,
		})
	}

	if strings.TrimSpace(cfg.LogFile) == "" {
		return slog.New(console), nil, nil
	}

	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	fileHandler := slog.NewJSONHandler(logFile, opts)
	return slog.New(logging.MultiHandler(console, fileHandler)), logFile, nil
}

func closeLogFile(logFile *os.File) {
	if logFile == nil {
		return
	}
	_ = logFile.Close()
}

func closeCacheProvider(logger *slog.Logger, provider cache.Provider) {
	if provider == nil {
		return
	}
	if err := provider.Close(); err != nil && logger != nil {
		logger.Warn("failed to close cache provider", "error", err)
	}
}
