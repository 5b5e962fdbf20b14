package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusProcessed PaymentStatus = "processed"
)

// Address is the structured shipping address captured at checkout.
type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Validate reports the first missing required field by name so handlers can
// surface a field-level message.
func (a Address) Validate() error {
	for _, field := range []struct {
		name  string
		value string
	}{
		{"name", a.Name},
		{"line1", a.Line1},
		{"city", a.City},
		{"postal_code", a.PostalCode},
		{"country", a.Country},
	} {
		if strings.TrimSpace(field.value) == "" {
			return fmt.Errorf("shipping_address.%s is required", field.name)
		}
	}
	return nil
}

type OrderItem struct {
	ID               int64               `json:"id"`
	OrderID          int64               `json:"order_id"`
	ProductID        int64               `json:"product_id"`
	DesignID         *int64              `json:"design_id,omitempty"`
	Quantity         int                 `json:"quantity"`
	UnitPrice        decimal.Decimal     `json:"unit_price"`
	Customization    map[string]string   `json:"customization,omitempty"`
	ArtistCommission decimal.NullDecimal `json:"artist_commission,omitempty"`
}

// Order is the durable record of a purchase. CheckoutSessionID is set only
// for orders created from the hosted payment callback; its uniqueness is what
// makes webhook redelivery idempotent.
type Order struct {
	ID                int64           `json:"id"`
	OrderNumber       string          `json:"order_number"`
	UserID            int64           `json:"user_id"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	ShippingAddress   Address         `json:"shipping_address"`
	PaymentStatus     PaymentStatus   `json:"payment_status"`
	CheckoutSessionID string          `json:"checkout_session_id,omitempty"`
	Notes             string          `json:"notes,omitempty"`
	Items             []OrderItem     `json:"items"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}
