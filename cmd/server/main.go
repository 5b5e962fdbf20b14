package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/stripe/stripe-go/v81"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/craftisan/marketplace/internal/auth"
	"github.com/craftisan/marketplace/internal/catalog"
	"github.com/craftisan/marketplace/internal/checkout"
	"github.com/craftisan/marketplace/internal/config"
	"github.com/craftisan/marketplace/internal/earnings"
	"github.com/craftisan/marketplace/internal/messaging"
	"github.com/craftisan/marketplace/internal/notification"
	"github.com/craftisan/marketplace/internal/orders"
	"github.com/craftisan/marketplace/internal/telemetry"
)

const serviceName = "marketplace-api"

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, serviceName, "1.0.0")
	if err != nil {
		logger.Error("failed to initialize tracer provider", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, "1.0.0")
	if err != nil {
		logger.Error("failed to initialize meter provider", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	db, err := telemetry.OpenDB("postgres", cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	stripe.Key = cfg.StripeSecretKey

	var producer *messaging.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = messaging.NewProducer(cfg.KafkaBrokers, messaging.TopicOrderPlaced)
		defer func() { _ = producer.Close() }()
	}

	catalogRepo := catalog.NewRepository(db)
	orderRepo := orders.NewOrderRepository(db)
	earningsRepo := earnings.NewRepository(db)

	mailer := notification.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom)
	dispatcher := notification.NewDispatcher(mailer, logger)

	sessionCreator := checkout.NewStripeSessionCreator(catalogRepo, cfg.CheckoutSuccessURL, cfg.CheckoutCancelURL, cfg.CheckoutCurrency)

	// A typed nil *Producer must not become a non-nil EventPublisher.
	var publisher checkout.EventPublisher
	if producer != nil {
		publisher = producer
	}
	processor := checkout.NewProcessor(cfg.StripeWebhookSecret, orderRepo, catalogRepo, dispatcher, publisher, logger)

	checkoutHandler := checkout.NewHandler(sessionCreator, processor, logger)
	orderHandler := orders.NewHandler(orderRepo, logger)
	earningsHandler := earnings.NewHandler(earningsRepo, logger)

	requireUser := func(h http.HandlerFunc) http.HandlerFunc {
		return auth.RequireUser(cfg.JWTSecret, telemetry.WithHTTPRoute(h))
	}
	requireAdmin := func(h http.HandlerFunc) http.HandlerFunc {
		return auth.RequireAdmin(cfg.JWTSecret, telemetry.WithHTTPRoute(h))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/create-checkout-session", requireUser(checkoutHandler.HandleCreateSession))
	mux.HandleFunc("POST /api/webhook", telemetry.WithHTTPRoute(checkoutHandler.HandleWebhook))
	mux.HandleFunc("POST /api/orders", requireUser(orderHandler.HandleCreate))
	mux.HandleFunc("GET /api/orders", requireUser(orderHandler.HandleListMine))
	mux.HandleFunc("GET /api/admin/orders", requireAdmin(orderHandler.HandleListAll))
	mux.HandleFunc("GET /api/artists/me/earnings", requireUser(earningsHandler.HandleMine))
	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: otelhttp.NewHandler(mux, serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting marketplace api", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
