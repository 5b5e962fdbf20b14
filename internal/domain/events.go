package domain

import "time"

// OrderPlacedEvent is published after an order is durably persisted.
// Consumers must tolerate redelivery; OrderID is the dedup key.
type OrderPlacedEvent struct {
	OrderID     int64             `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	UserID      int64             `json:"user_id"`
	TotalAmount string            `json:"total_amount"`
	Items       []OrderPlacedItem `json:"items"`
	Timestamp   time.Time         `json:"timestamp"`
}

type OrderPlacedItem struct {
	ProductID        int64  `json:"product_id"`
	DesignID         *int64 `json:"design_id,omitempty"`
	ArtistID         *int64 `json:"artist_id,omitempty"`
	Quantity         int    `json:"quantity"`
	UnitPrice        string `json:"unit_price"`
	ArtistCommission string `json:"artist_commission,omitempty"`
}
