package cart

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrInvalidPrice    = errors.New("unit price must not be negative")
	ErrLineNotFound    = errors.New("cart line not found")
)

// Line is a single cart entry: a product, optionally tied to an artist
// design, with a customization snapshot and a currency-exact unit price.
type Line struct {
	ID            string            `json:"id"`
	ProductID     int64             `json:"product_id"`
	DesignID      *int64            `json:"design_id,omitempty"`
	Quantity      int               `json:"quantity"`
	UnitPrice     decimal.Decimal   `json:"unit_price"`
	Customization map[string]string `json:"customization,omitempty"`
}

// Cart aggregates lines and computes totals. It is a plain value object:
// the client keeps its own copy across page loads, and the server rebuilds
// one from the submitted snapshot whenever money is involved.
type Cart struct {
	lines []Line
}

func New() *Cart {
	return &Cart{}
}

// FromLines builds a validated cart from a request snapshot. Lines that
// reference the same product, design and customization are merged.
func FromLines(lines []Line) (*Cart, error) {
	c := New()
	for _, l := range lines {
		if _, err := c.AddItem(l); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// AddItem appends a line, or merges it into an existing line keyed by
// (product, design, customization). Returns the resulting line.
func (c *Cart) AddItem(l Line) (Line, error) {
	if l.Quantity < 1 {
		return Line{}, ErrInvalidQuantity
	}
	if l.UnitPrice.IsNegative() {
		return Line{}, ErrInvalidPrice
	}

	for i := range c.lines {
		if c.lines[i].mergeKeyEqual(l) {
			c.lines[i].Quantity += l.Quantity
			return c.lines[i], nil
		}
	}

	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	c.lines = append(c.lines, l)
	return l, nil
}

// UpdateQuantity sets the quantity of an existing line. Quantities below 1
// are rejected and the line is left unchanged.
func (c *Cart) UpdateQuantity(lineID string, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	for i := range c.lines {
		if c.lines[i].ID == lineID {
			c.lines[i].Quantity = quantity
			return nil
		}
	}
	return ErrLineNotFound
}

func (c *Cart) RemoveItem(lineID string) {
	for i := range c.lines {
		if c.lines[i].ID == lineID {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return
		}
	}
}

func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

// Total is Σ(quantity × unitPrice), exact to the currency's precision.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.lines {
		total = total.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

func (l Line) mergeKeyEqual(other Line) bool {
	if l.ProductID != other.ProductID {
		return false
	}
	if (l.DesignID == nil) != (other.DesignID == nil) {
		return false
	}
	if l.DesignID != nil && *l.DesignID != *other.DesignID {
		return false
	}
	return sameCustomization(l.Customization, other.Customization)
}

func sameCustomization(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
