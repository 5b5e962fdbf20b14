package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds everything the services read from the environment. Stripe
// secrets are mandatory: starting without the webhook signing secret would
// mean accepting unverified payment callbacks.
type Config struct {
	Port        string
	PostgresURL string

	KafkaBrokers []string

	StripeSecretKey     string
	StripeWebhookSecret string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string
	CheckoutCurrency    string

	JWTSecret string

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	MailFrom     string
}

func Load() (*Config, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		Port:                envOr("PORT", "8080"),
		PostgresURL:         os.Getenv("POSTGRES_URL"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		CheckoutSuccessURL:  envOr("CHECKOUT_SUCCESS_URL", "http://localhost:3000/success"),
		CheckoutCancelURL:   envOr("CHECKOUT_CANCEL_URL", "http://localhost:3000/cancel"),
		CheckoutCurrency:    envOr("CHECKOUT_CURRENCY", "usd"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		SMTPHost:            os.Getenv("SMTP_HOST"),
		SMTPPort:            envOr("SMTP_PORT", "587"),
		SMTPUsername:        os.Getenv("SMTP_USERNAME"),
		SMTPPassword:        os.Getenv("SMTP_PASSWORD"),
		MailFrom:            envOr("MAIL_FROM", "no-reply@craftisan.example"),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	for name, value := range map[string]string{
		"POSTGRES_URL":          cfg.PostgresURL,
		"STRIPE_SECRET_KEY":     cfg.StripeSecretKey,
		"STRIPE_WEBHOOK_SECRET": cfg.StripeWebhookSecret,
		"JWT_SECRET":            cfg.JWTSecret,
	} {
		if value == "" {
			return nil, fmt.Errorf("%s environment variable is required", name)
		}
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
