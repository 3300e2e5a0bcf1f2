package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pressplay/payments/internal/config"
	"github.com/pressplay/payments/internal/event"
	"github.com/pressplay/payments/internal/gateway"
	"github.com/pressplay/payments/internal/gateway/fakegw"
	"github.com/pressplay/payments/internal/gateway/stripegw"
	"github.com/pressplay/payments/internal/handler"
	"github.com/pressplay/payments/internal/logging"
	"github.com/pressplay/payments/internal/middleware"
	"github.com/pressplay/payments/internal/money"
	"github.com/pressplay/payments/internal/repository"
	"github.com/pressplay/payments/internal/service/discount"
	"github.com/pressplay/payments/internal/service/intent"
	paymentsvc "github.com/pressplay/payments/internal/service/payment"
	"github.com/pressplay/payments/internal/service/subscription"
	"github.com/pressplay/payments/internal/service/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("payments-api", cfg.LogLevel, cfg.AppEnv)

	currencies := make([]money.Currency, len(cfg.SupportedCurrencies))
	for i, c := range cfg.SupportedCurrencies {
		currencies[i] = money.Currency(c)
	}
	money.SetSupported(currencies)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	intents := repository.NewIntentRepository(db)
	payments := repository.NewPaymentRepository(db)
	refunds := repository.NewRefundRepository(db)
	ledger := repository.NewLedgerRepository(db)
	subs := repository.NewSubscriptionRepository(db)
	hooks := repository.NewWebhookRepository(db)
	discounts := repository.NewDiscountRepository(db)

	manager := gateway.NewManager(cfg.DefaultGateway)
	if cfg.StripeAPIKey != "" {
		manager.Register(stripegw.New(cfg.StripeAPIKey))
	}
	if cfg.FakeGatewayEnabled {
		manager.Register(fakegw.New())
	}

	bus := event.NewBus(logger)

	intentSvc := intent.NewService(intents, manager, bus, cfg)
	paymentSvc := paymentsvc.NewService(db, intents, payments, refunds, ledger, manager, bus, cfg)
	subscriptionSvc := subscription.NewService(db, subs, manager, bus, cfg)
	discountSvc := discount.NewService(discounts)
	ingestor := webhook.NewIngestor(hooks, intentSvc, paymentSvc, subscriptionSvc, cfg)
	replayer := webhook.NewReplayer(db, ingestor, time.Minute)

	go replayer.Start(logging.WithLogger(ctx, logger))

	healthHandler := handler.NewHealthHandler(db)
	intentHandler := handler.NewIntentHandler(intentSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc)
	subscriptionHandler := handler.NewSubscriptionHandler(subscriptionSvc)
	discountHandler := handler.NewDiscountHandler(discountSvc)
	ledgerHandler := handler.NewLedgerHandler(ledger)
	webhookHandler := handler.NewWebhookHandler(ingestor)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)

	mux.HandleFunc("POST /api/v1/intents", intentHandler.Create)
	mux.HandleFunc("GET /api/v1/intents/{id}", intentHandler.Get)
	mux.HandleFunc("POST /api/v1/intents/{id}/confirm", intentHandler.Confirm)
	mux.HandleFunc("POST /api/v1/intents/{id}/cancel", intentHandler.Cancel)
	mux.HandleFunc("POST /api/v1/intents/{id}/capture", paymentHandler.Capture)

	mux.HandleFunc("GET /api/v1/payments/{id}", paymentHandler.Get)
	mux.HandleFunc("POST /api/v1/payments/{id}/refund", paymentHandler.Refund)

	mux.HandleFunc("POST /api/v1/subscriptions", subscriptionHandler.Create)
	mux.HandleFunc("GET /api/v1/subscriptions/{id}", subscriptionHandler.Get)
	mux.HandleFunc("POST /api/v1/subscriptions/{id}/swap", subscriptionHandler.Swap)
	mux.HandleFunc("POST /api/v1/subscriptions/{id}/cancel", subscriptionHandler.Cancel)
	mux.HandleFunc("POST /api/v1/subscriptions/{id}/resume", subscriptionHandler.Resume)

	mux.HandleFunc("POST /api/v1/discounts/apply", discountHandler.Apply)
	mux.HandleFunc("GET /api/v1/ledgers/{kind}/{id}/entries", ledgerHandler.Entries)

	mux.HandleFunc("POST /api/v1/webhooks/{provider}", webhookHandler.Receive)

	var root http.Handler = mux
	root = middleware.Logging(root)
	root = middleware.Recovery(root)
	root = middleware.Tracing(root)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr, "default_gateway", cfg.DefaultGateway)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
