package orders

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/craftisan/marketplace/internal/auth"
	"github.com/craftisan/marketplace/internal/cart"
	"github.com/craftisan/marketplace/internal/domain"
)

// Store is the persistence surface the handlers need. *OrderRepository
// implements it; tests substitute an in-memory version.
type Store interface {
	Create(ctx context.Context, order *domain.Order) error
	ListByUser(ctx context.Context, userID int64) ([]domain.Order, error)
	ListAll(ctx context.Context) ([]domain.Order, error)
}

type Handler struct {
	store  Store
	logger *slog.Logger
}

func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger,
	}
}

type createOrderRequest struct {
	ShippingAddress domain.Address `json:"shipping_address"`
	CartItems       []cart.Line    `json:"cart_items"`
	// Part of the documented body; accepted but never trusted, the server
	// recomputes the total from the lines.
	TotalAmount decimal.Decimal `json:"total_amount"`
	Notes       string          `json:"notes"`
}

// HandleCreate is the direct order path used when checkout bypasses the
// hosted payment flow. The total is recomputed from the submitted lines; a
// client-supplied total is never trusted.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req createOrderRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := cart.FromLines(req.CartItems)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if c.IsEmpty() {
		h.writeError(w, http.StatusBadRequest, "cart is empty")
		return
	}

	if err := req.ShippingAddress.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	order := &domain.Order{
		OrderNumber:     NewOrderNumber(),
		UserID:          user.ID,
		TotalAmount:     c.Total(),
		ShippingAddress: req.ShippingAddress,
		PaymentStatus:   domain.PaymentStatusPending,
		Notes:           req.Notes,
	}
	for _, line := range c.Lines() {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID:     line.ProductID,
			DesignID:      line.DesignID,
			Quantity:      line.Quantity,
			UnitPrice:     line.UnitPrice,
			Customization: line.Customization,
		})
	}

	if err := h.store.Create(r.Context(), order); err != nil {
		h.logger.Error("failed to create order", "error", err, "user_id", user.ID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("order created", "order_number", order.OrderNumber, "user_id", user.ID)
	h.writeJSON(w, http.StatusCreated, order)
}

// HandleListMine returns the authenticated caller's orders.
func (h *Handler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	orders, err := h.store.ListByUser(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("failed to list orders", "error", err, "user_id", user.ID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

// HandleListAll returns every order; admin only (enforced by middleware).
func (h *Handler) HandleListAll(w http.ResponseWriter, r *http.Request) {
	orders, err := h.store.ListAll(r.Context())
	if err != nil {
		h.logger.Error("failed to list all orders", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
