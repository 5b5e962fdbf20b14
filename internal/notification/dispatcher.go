package notification

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/craftisan/marketplace/internal/domain"
)

var confirmationTemplate = template.Must(template.New("order_confirmation").Parse(
	`Hi {{.Name}},

Thanks for your order!

Order number: {{.OrderNumber}}
Total: {{.Total}}
Payment status: {{.PaymentStatus}}

Items:
{{- range .Items}}
  - {{.Quantity}} x product {{.ProductID}} at {{.UnitPrice}}
{{- end}}

We will let you know when it ships.
`))

type confirmationData struct {
	Name          string
	OrderNumber   string
	Total         string
	PaymentStatus string
	Items         []confirmationItem
}

type confirmationItem struct {
	ProductID int64
	Quantity  int
	UnitPrice string
}

// Dispatcher renders and sends customer-facing order messages.
type Dispatcher struct {
	mailer Mailer
	logger *slog.Logger
}

func NewDispatcher(mailer Mailer, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		mailer: mailer,
		logger: logger,
	}
}

// SendOrderConfirmation mails the order summary to recipient. The caller
// decides whether a failure here matters.
func (d *Dispatcher) SendOrderConfirmation(ctx context.Context, order *domain.Order, recipient string) error {
	data := confirmationData{
		Name:          order.ShippingAddress.Name,
		OrderNumber:   order.OrderNumber,
		Total:         order.TotalAmount.StringFixed(2),
		PaymentStatus: string(order.PaymentStatus),
	}
	if data.Name == "" {
		data.Name = "there"
	}
	for _, item := range order.Items {
		data.Items = append(data.Items, confirmationItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.StringFixed(2),
		})
	}

	var body strings.Builder
	if err := confirmationTemplate.Execute(&body, data); err != nil {
		return fmt.Errorf("render confirmation: %w", err)
	}

	subject := fmt.Sprintf("Order confirmation %s", order.OrderNumber)
	if err := d.mailer.Send(ctx, recipient, subject, body.String()); err != nil {
		return err
	}

	d.logger.Info("order confirmation sent", "order_number", order.OrderNumber, "to", recipient)
	return nil
}
