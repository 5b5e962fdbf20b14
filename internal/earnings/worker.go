package earnings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/craftisan/marketplace/internal/domain"
)

// Ledger is the write side of the earnings store the worker needs.
type Ledger interface {
	Record(ctx context.Context, entry *Entry) (bool, error)
}

// Worker turns order placed events into earnings entries. It runs behind the
// Kafka consumer and must stay idempotent: the broker delivers at least once.
type Worker struct {
	ledger Ledger
	logger *slog.Logger
}

func NewWorker(ledger Ledger, logger *slog.Logger) *Worker {
	return &Worker{
		ledger: ledger,
		logger: logger,
	}
}

// Handle processes one order placed event. Items without a design or without
// a recorded commission carry no earnings and are skipped.
func (w *Worker) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderPlacedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order placed event: %w", err)
	}

	w.logger.Info("processing order placed event", "order_number", event.OrderNumber, "items", len(event.Items))

	for _, item := range event.Items {
		if item.ArtistID == nil || item.DesignID == nil || item.ArtistCommission == "" {
			continue
		}

		amount, err := decimal.NewFromString(item.ArtistCommission)
		if err != nil {
			return fmt.Errorf("invalid commission %q on order %s: %w", item.ArtistCommission, event.OrderNumber, err)
		}

		inserted, err := w.ledger.Record(ctx, &Entry{
			ArtistID: *item.ArtistID,
			OrderID:  event.OrderID,
			DesignID: *item.DesignID,
			Amount:   amount,
		})
		if err != nil {
			return fmt.Errorf("record earnings for artist %d: %w", *item.ArtistID, err)
		}
		if !inserted {
			w.logger.Info("earnings entry already recorded",
				"order_id", event.OrderID, "design_id", *item.DesignID)
			continue
		}

		w.logger.Info("earnings recorded",
			"artist_id", *item.ArtistID, "order_id", event.OrderID, "amount", amount)
	}

	return nil
}
