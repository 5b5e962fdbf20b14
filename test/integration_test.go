//go:build integration

package test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/craftisan/marketplace/internal/catalog"
	"github.com/craftisan/marketplace/internal/checkout"
	"github.com/craftisan/marketplace/internal/domain"
	"github.com/craftisan/marketplace/internal/earnings"
	"github.com/craftisan/marketplace/internal/messaging"
	"github.com/craftisan/marketplace/internal/orders"
)

const signingSecret = "whsec_integration_secret"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type noopNotifier struct{}

func (noopNotifier) SendOrderConfirmation(context.Context, *domain.Order, string) error {
	return nil
}

func orderCount(ctx context.Context, t *testing.T, connStr string) int {
	t.Helper()
	db := OpenDB(t, connStr)
	defer func() { _ = db.Close() }()

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders").Scan(&count); err != nil {
		t.Fatalf("count orders: %v", err)
	}
	return count
}

func sampleOrder(sessionID string) *domain.Order {
	commission := decimal.RequireFromString("7.50")
	designID := int64(1)
	return &domain.Order{
		OrderNumber:       orders.NewOrderNumber(),
		UserID:            42,
		TotalAmount:       decimal.RequireFromString("45.00"),
		ShippingAddress:   domain.Address{Name: "Ada", Line1: "1 Main St", City: "Lisbon", PostalCode: "1000-001", Country: "PT"},
		PaymentStatus:     domain.PaymentStatusProcessed,
		CheckoutSessionID: sessionID,
		Items: []domain.OrderItem{
			{ProductID: 1, Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
			{
				ProductID:        2,
				DesignID:         &designID,
				Quantity:         1,
				UnitPrice:        decimal.RequireFromString("25.00"),
				Customization:    map[string]string{"color": "red"},
				ArtistCommission: decimal.NullDecimal{Decimal: commission, Valid: true},
			},
		},
	}
}

func TestOrderLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db := OpenDB(t, pg.ConnStr)
	defer func() { _ = db.Close() }()

	repo := orders.NewOrderRepository(db)

	order := sampleOrder("")
	order.CheckoutSessionID = ""
	order.PaymentStatus = domain.PaymentStatusPending
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.ID == 0 {
		t.Fatal("expected order id to be set")
	}

	fetched, err := repo.GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("fetch order: %v", err)
	}
	if fetched == nil {
		t.Fatal("order not found")
	}
	if fetched.TotalAmount.StringFixed(2) != "45.00" {
		t.Errorf("expected total 45.00, got %s", fetched.TotalAmount)
	}
	if len(fetched.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(fetched.Items))
	}
	if fetched.Items[1].Customization["color"] != "red" {
		t.Errorf("expected customization to survive persistence, got %v", fetched.Items[1].Customization)
	}
	if !fetched.Items[1].ArtistCommission.Valid || fetched.Items[1].ArtistCommission.Decimal.StringFixed(2) != "7.50" {
		t.Errorf("expected commission 7.50, got %+v", fetched.Items[1].ArtistCommission)
	}

	mine, err := repo.ListByUser(ctx, 42)
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(mine) != 1 {
		t.Errorf("expected 1 order for user 42, got %d", len(mine))
	}
}

func TestOrderCreateIsAtomic(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db := OpenDB(t, pg.ConnStr)
	defer func() { _ = db.Close() }()

	repo := orders.NewOrderRepository(db)

	// The second item violates the quantity check; the whole order must
	// roll back, header row included.
	order := sampleOrder("")
	order.Items[1].Quantity = 0
	if err := repo.Create(ctx, order); err == nil {
		t.Fatal("expected an error for an invalid item")
	}

	if got := orderCount(ctx, t, pg.ConnStr); got != 0 {
		t.Errorf("expected 0 orders after rollback, got %d", got)
	}
}

func TestCheckoutSessionIdempotency(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db := OpenDB(t, pg.ConnStr)
	defer func() { _ = db.Close() }()

	repo := orders.NewOrderRepository(db)

	if err := repo.Create(ctx, sampleOrder("cs_int_1")); err != nil {
		t.Fatalf("first create: %v", err)
	}
	err := repo.Create(ctx, sampleOrder("cs_int_1"))
	if !errors.Is(err, orders.ErrSessionAlreadyProcessed) {
		t.Fatalf("expected ErrSessionAlreadyProcessed, got %v", err)
	}

	if got := orderCount(ctx, t, pg.ConnStr); got != 1 {
		t.Errorf("expected exactly 1 order, got %d", got)
	}
}

func signedWebhookPayload(t *testing.T, sessionID string) ([]byte, string) {
	t.Helper()

	cartMeta := `[{"product_id":1,"quantity":2,"unit_price":"10.00"},{"product_id":2,"design_id":1,"quantity":1,"unit_price":"25.00","customization":{"color":"red"}}]`
	event := map[string]any{
		"id":          "evt_int_1",
		"object":      "event",
		"api_version": stripe.APIVersion,
		"type":        "checkout.session.completed",
		"data": map[string]any{
			"object": map[string]any{
				"id":           sessionID,
				"object":       "checkout.session",
				"amount_total": 4500,
				"metadata":     map[string]string{"user_id": "42", "cart": cartMeta},
				"customer_details": map[string]any{
					"name":  "Ada Lovelace",
					"email": "ada@example.com",
					"address": map[string]string{
						"line1":       "1 Main St",
						"city":        "Lisbon",
						"postal_code": "1000-001",
						"country":     "PT",
					},
				},
			},
		},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}

	now := time.Now()
	sig := webhook.ComputeSignature(now, payload, signingSecret)
	header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig))
	return payload, header
}

func TestWebhookFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db := OpenDB(t, pg.ConnStr)
	defer func() { _ = db.Close() }()

	repo := orders.NewOrderRepository(db)
	processor := checkout.NewProcessor(signingSecret, repo, catalog.NewRepository(db), noopNotifier{}, nil, testLogger())

	payload, header := signedWebhookPayload(t, "cs_int_flow")

	result, err := processor.Process(ctx, payload, header)
	if err != nil {
		t.Fatalf("process webhook: %v", err)
	}
	if result.Outcome != checkout.OutcomeOrderCreated {
		t.Fatalf("expected outcome %s, got %s", checkout.OutcomeOrderCreated, result.Outcome)
	}

	fetched, err := repo.GetByID(ctx, result.Order.ID)
	if err != nil {
		t.Fatalf("fetch order: %v", err)
	}
	if fetched == nil {
		t.Fatal("order not persisted")
	}
	if fetched.TotalAmount.StringFixed(2) != "45.00" {
		t.Errorf("expected total 45.00, got %s", fetched.TotalAmount)
	}
	if !fetched.Items[1].ArtistCommission.Valid || fetched.Items[1].ArtistCommission.Decimal.StringFixed(2) != "7.50" {
		t.Errorf("expected commission 7.50, got %+v", fetched.Items[1].ArtistCommission)
	}

	// Redelivery of the same event must not create a second order.
	result, err = processor.Process(ctx, payload, header)
	if err != nil {
		t.Fatalf("redeliver webhook: %v", err)
	}
	if result.Outcome != checkout.OutcomeAlreadyProcessed {
		t.Errorf("expected outcome %s, got %s", checkout.OutcomeAlreadyProcessed, result.Outcome)
	}
	if got := orderCount(ctx, t, pg.ConnStr); got != 1 {
		t.Errorf("expected exactly 1 order, got %d", got)
	}

	// A tampered delivery must be rejected without touching the database.
	tampered := append([]byte{}, payload...)
	tampered[len(tampered)-2] = ' '
	if _, err := processor.Process(ctx, tampered, header); !errors.Is(err, checkout.ErrInvalidSignature) {
		t.Errorf("expected ErrInvalidSignature, got %v", err)
	}
	if got := orderCount(ctx, t, pg.ConnStr); got != 1 {
		t.Errorf("expected order count unchanged, got %d", got)
	}
}

func TestEarningsFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	brokers, cleanupKafka := SetupKafka(ctx, t)
	defer cleanupKafka()

	db := OpenDB(t, pg.ConnStr)
	defer func() { _ = db.Close() }()

	orderRepo := orders.NewOrderRepository(db)
	order := sampleOrder("cs_int_earnings")
	if err := orderRepo.Create(ctx, order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	producer := messaging.NewProducer(brokers, messaging.TopicOrderPlaced)
	defer func() { _ = producer.Close() }()

	designID := int64(1)
	artistID := int64(1)
	event := domain.OrderPlacedEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		TotalAmount: "45.00",
		Items: []domain.OrderPlacedItem{
			{ProductID: 1, Quantity: 2, UnitPrice: "10.00"},
			{ProductID: 2, DesignID: &designID, ArtistID: &artistID, Quantity: 1, UnitPrice: "25.00", ArtistCommission: "7.50"},
		},
		Timestamp: time.Now().UTC(),
	}
	if err := producer.Publish(ctx, order.OrderNumber, event); err != nil {
		t.Fatalf("publish event: %v", err)
	}

	earningsRepo := earnings.NewRepository(db)
	worker := earnings.NewWorker(earningsRepo, testLogger())

	consumer := messaging.NewConsumer(brokers, messaging.TopicOrderPlaced, "earnings-worker-test",
		messaging.WithStartOffset(kafkago.FirstOffset),
	)
	defer func() { _ = consumer.Close() }()

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	go func() {
		_ = consumer.Run(consumerCtx, worker.Handle)
	}()

	deadline := time.Now().Add(90 * time.Second)
	for {
		summary, err := earningsRepo.SummaryForArtist(ctx, artistID)
		if err != nil {
			t.Fatalf("summarize earnings: %v", err)
		}
		if summary.EntryCount > 0 {
			if summary.TotalEarned.StringFixed(2) != "7.50" {
				t.Errorf("expected total earned 7.50, got %s", summary.TotalEarned)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the earnings entry")
		}
		time.Sleep(time.Second)
	}

	entries, err := earningsRepo.ListForArtist(ctx, artistID)
	if err != nil {
		t.Fatalf("list earnings: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].OrderID != order.ID || entries[0].DesignID != designID {
		t.Errorf("unexpected entry: %+v", entries[0])
	}
}
