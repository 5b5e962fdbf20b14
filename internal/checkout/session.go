package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"

	"github.com/craftisan/marketplace/internal/cart"
	"github.com/craftisan/marketplace/internal/catalog"
)

var (
	ErrEmptyCart           = errors.New("cart is empty")
	ErrUnknownProduct      = errors.New("unknown or inactive product in cart")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
)

// SessionCreator turns a cart snapshot into a hosted payment session and
// returns its opaque id for the client redirect.
type SessionCreator interface {
	Create(ctx context.Context, userID int64, c *cart.Cart) (string, error)
}

// CatalogReader resolves display data and validates references at checkout.
type CatalogReader interface {
	GetProduct(ctx context.Context, id int64) (*catalog.Product, error)
	GetDesign(ctx context.Context, id int64) (*catalog.Design, error)
}

// metadataLine is one cart line serialized into the session metadata. The
// session id alone cannot rebuild the order after payment, so the whole
// snapshot rides along with the session.
type metadataLine struct {
	ProductID     int64             `json:"product_id"`
	DesignID      *int64            `json:"design_id,omitempty"`
	Quantity      int               `json:"quantity"`
	UnitPrice     string            `json:"unit_price"`
	Customization map[string]string `json:"customization,omitempty"`
}

const (
	metadataUserIDKey = "user_id"
	metadataCartKey   = "cart"
)

type StripeSessionCreator struct {
	catalog    CatalogReader
	successURL string
	cancelURL  string
	currency   string
}

func NewStripeSessionCreator(catalog CatalogReader, successURL, cancelURL, currency string) *StripeSessionCreator {
	return &StripeSessionCreator{
		catalog:    catalog,
		successURL: successURL,
		cancelURL:  cancelURL,
		currency:   currency,
	}
}

func (s *StripeSessionCreator) Create(ctx context.Context, userID int64, c *cart.Cart) (string, error) {
	if c.IsEmpty() {
		return "", ErrEmptyCart
	}

	params, err := s.sessionParams(ctx, userID, c.Lines())
	if err != nil {
		return "", err
	}

	sess, err := session.New(params)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrProviderUnavailable, err)
	}

	return sess.ID, nil
}

// sessionParams resolves the cart against the catalog and builds the provider
// request. The context rides on the params so the provider call is bounded by
// the request's deadline.
func (s *StripeSessionCreator) sessionParams(ctx context.Context, userID int64, lines []cart.Line) (*stripe.CheckoutSessionParams, error) {
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(lines))
	metaLines := make([]metadataLine, 0, len(lines))

	for _, line := range lines {
		product, err := s.catalog.GetProduct(ctx, line.ProductID)
		if err != nil {
			return nil, fmt.Errorf("look up product %d: %w", line.ProductID, err)
		}
		if product == nil || !product.IsActive {
			return nil, fmt.Errorf("%w: product %d", ErrUnknownProduct, line.ProductID)
		}

		name := product.Name
		if line.DesignID != nil {
			design, err := s.catalog.GetDesign(ctx, *line.DesignID)
			if err != nil {
				return nil, fmt.Errorf("look up design %d: %w", *line.DesignID, err)
			}
			if design != nil {
				name = fmt.Sprintf("%s / %s", product.Name, design.Title)
			}
		}

		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(int64(line.Quantity)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(s.currency),
				UnitAmount: stripe.Int64(minorUnits(line.UnitPrice)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(name),
				},
			},
		})
		metaLines = append(metaLines, metadataLine{
			ProductID:     line.ProductID,
			DesignID:      line.DesignID,
			Quantity:      line.Quantity,
			UnitPrice:     line.UnitPrice.StringFixed(2),
			Customization: line.Customization,
		})
	}

	serialized, err := json.Marshal(metaLines)
	if err != nil {
		return nil, fmt.Errorf("serialize cart metadata: %w", err)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:                     stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:               stripe.String(s.successURL),
		CancelURL:                stripe.String(s.cancelURL),
		BillingAddressCollection: stripe.String("required"),
		LineItems:                lineItems,
	}
	params.Context = ctx
	params.Metadata = map[string]string{
		metadataUserIDKey: fmt.Sprintf("%d", userID),
		metadataCartKey:   string(serialized),
	}

	return params, nil
}

// minorUnits converts a currency amount to integer minor units, exact for
// two-decimal currencies.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
