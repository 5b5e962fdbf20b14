package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/craftisan/marketplace/internal/domain"
	"github.com/craftisan/marketplace/internal/orders"
)

const eventCheckoutCompleted = "checkout.session.completed"

var ErrInvalidSignature = errors.New("invalid webhook signature")

type Outcome string

const (
	// OutcomeOrderCreated: the event produced a new durable order.
	OutcomeOrderCreated Outcome = "order_created"
	// OutcomeAlreadyProcessed: a redelivery of a session that already has an order.
	OutcomeAlreadyProcessed Outcome = "already_processed"
	// OutcomeIgnored: an event type this handler does not act on.
	OutcomeIgnored Outcome = "ignored"
)

type Result struct {
	Outcome Outcome
	Order   *domain.Order
}

// OrderStore is the single write path for orders created from webhooks.
type OrderStore interface {
	Create(ctx context.Context, order *domain.Order) error
}

// Notifier dispatches the confirmation message. Its failures never fail the
// webhook: by the time it runs the order is already durable.
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, order *domain.Order, recipient string) error
}

// EventPublisher fans the placed order out to downstream consumers
// (earnings worker). Best effort, like the notifier.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Processor converts verified payment-provider callbacks into orders. It is
// deliberately independent of net/http: Process takes the raw body bytes and
// the signature header and nothing else.
type Processor struct {
	signingSecret string
	store         OrderStore
	designs       CatalogReader
	notifier      Notifier
	publisher     EventPublisher
	logger        *slog.Logger
}

// NewProcessor wires the callback pipeline. publisher may be nil when no
// broker is configured.
func NewProcessor(signingSecret string, store OrderStore, designs CatalogReader, notifier Notifier, publisher EventPublisher, logger *slog.Logger) *Processor {
	return &Processor{
		signingSecret: signingSecret,
		store:         store,
		designs:       designs,
		notifier:      notifier,
		publisher:     publisher,
		logger:        logger,
	}
}

// Process verifies the signature over the exact raw bytes, then either
// converts a completed checkout into an order or acknowledges the event as
// not-for-us. A session already converted to an order is acknowledged
// without side effects.
func (p *Processor) Process(ctx context.Context, payload []byte, sigHeader string) (Result, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, p.signingSecret)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}

	if string(event.Type) != eventCheckoutCompleted {
		p.logger.Info("ignoring webhook event", "type", event.Type)
		return Result{Outcome: OutcomeIgnored}, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return Result{}, fmt.Errorf("unmarshal checkout session: %w", err)
	}

	order, artistIDs, err := p.buildOrder(ctx, &sess)
	if err != nil {
		return Result{}, err
	}

	if err := p.store.Create(ctx, order); err != nil {
		if errors.Is(err, orders.ErrSessionAlreadyProcessed) {
			p.logger.Info("checkout session already converted to an order", "session_id", sess.ID)
			return Result{Outcome: OutcomeAlreadyProcessed}, nil
		}
		return Result{}, fmt.Errorf("persist order: %w", err)
	}

	p.logger.Info("order created from checkout session",
		"order_number", order.OrderNumber, "session_id", sess.ID, "total", order.TotalAmount)

	// The order is durable from here on; everything below is best effort.
	if email := customerEmail(&sess); email != "" {
		if err := p.notifier.SendOrderConfirmation(ctx, order, email); err != nil {
			p.logger.Error("failed to send order confirmation", "error", err, "order_number", order.OrderNumber)
		}
	} else {
		p.logger.Warn("session has no customer email, skipping confirmation", "session_id", sess.ID)
	}

	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, order.OrderNumber, placedEvent(order, artistIDs)); err != nil {
			p.logger.Error("failed to publish order placed event", "error", err, "order_number", order.OrderNumber)
		}
	}

	return Result{Outcome: OutcomeOrderCreated, Order: order}, nil
}

// buildOrder reconstructs the order from the session metadata. The charged
// amount_total is authoritative for the order total; the metadata prices are
// kept per line. Returns the artist id per item (nil for plain products) for
// the placed event.
func (p *Processor) buildOrder(ctx context.Context, sess *stripe.CheckoutSession) (*domain.Order, []*int64, error) {
	userID, err := strconv.ParseInt(sess.Metadata[metadataUserIDKey], 10, 64)
	if err != nil {
		return nil, nil, fmt.Errorf("session %s has no valid user_id metadata: %w", sess.ID, err)
	}

	var metaLines []metadataLine
	if err := json.Unmarshal([]byte(sess.Metadata[metadataCartKey]), &metaLines); err != nil {
		return nil, nil, fmt.Errorf("session %s has no valid cart metadata: %w", sess.ID, err)
	}
	if len(metaLines) == 0 {
		return nil, nil, fmt.Errorf("session %s has an empty cart", sess.ID)
	}

	order := &domain.Order{
		OrderNumber:       orders.NewOrderNumber(),
		UserID:            userID,
		TotalAmount:       decimal.New(sess.AmountTotal, -2),
		ShippingAddress:   sessionAddress(sess),
		PaymentStatus:     domain.PaymentStatusProcessed,
		CheckoutSessionID: sess.ID,
	}

	artistIDs := make([]*int64, 0, len(metaLines))
	for _, line := range metaLines {
		unitPrice, err := decimal.NewFromString(line.UnitPrice)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid unit price %q in session %s: %w", line.UnitPrice, sess.ID, err)
		}

		item := domain.OrderItem{
			ProductID:     line.ProductID,
			DesignID:      line.DesignID,
			Quantity:      line.Quantity,
			UnitPrice:     unitPrice,
			Customization: line.Customization,
		}

		var artistID *int64
		if line.DesignID != nil {
			design, err := p.designs.GetDesign(ctx, *line.DesignID)
			if err != nil {
				return nil, nil, fmt.Errorf("look up design %d: %w", *line.DesignID, err)
			}
			if design == nil {
				p.logger.Warn("design no longer exists, no commission recorded",
					"design_id", *line.DesignID, "session_id", sess.ID)
			} else {
				// Commission is fixed at order time; later rate changes must
				// not rewrite history.
				commission := unitPrice.
					Mul(decimal.NewFromInt(int64(line.Quantity))).
					Mul(design.CommissionRate).
					Round(2)
				item.ArtistCommission = decimal.NullDecimal{Decimal: commission, Valid: true}
				id := design.ArtistID
				artistID = &id
			}
		}

		order.Items = append(order.Items, item)
		artistIDs = append(artistIDs, artistID)
	}

	return order, artistIDs, nil
}

func sessionAddress(sess *stripe.CheckoutSession) domain.Address {
	cd := sess.CustomerDetails
	if cd == nil {
		return domain.Address{}
	}
	addr := domain.Address{Name: cd.Name}
	if cd.Address != nil {
		addr.Line1 = cd.Address.Line1
		addr.Line2 = cd.Address.Line2
		addr.City = cd.Address.City
		addr.PostalCode = cd.Address.PostalCode
		addr.Country = cd.Address.Country
	}
	return addr
}

func customerEmail(sess *stripe.CheckoutSession) string {
	if sess.CustomerDetails == nil {
		return ""
	}
	return sess.CustomerDetails.Email
}

func placedEvent(order *domain.Order, artistIDs []*int64) domain.OrderPlacedEvent {
	event := domain.OrderPlacedEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount.StringFixed(2),
		Timestamp:   time.Now().UTC(),
	}
	for i, item := range order.Items {
		placed := domain.OrderPlacedItem{
			ProductID: item.ProductID,
			DesignID:  item.DesignID,
			ArtistID:  artistIDs[i],
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.StringFixed(2),
		}
		if item.ArtistCommission.Valid {
			placed.ArtistCommission = item.ArtistCommission.Decimal.StringFixed(2)
		}
		event.Items = append(event.Items, placed)
	}
	return event
}
