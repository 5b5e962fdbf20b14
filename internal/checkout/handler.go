package checkout

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/craftisan/marketplace/internal/auth"
	"github.com/craftisan/marketplace/internal/cart"
)

// maxWebhookBody caps the callback payload. Real checkout events are a few
// kilobytes.
const maxWebhookBody = 65536

type Handler struct {
	creator   SessionCreator
	processor *Processor
	logger    *slog.Logger
}

func NewHandler(creator SessionCreator, processor *Processor, logger *slog.Logger) *Handler {
	return &Handler{
		creator:   creator,
		processor: processor,
		logger:    logger,
	}
}

type createSessionRequest struct {
	CartItems []cart.Line `json:"cart_items"`
}

// HandleCreateSession validates the submitted cart and opens a hosted payment
// session for it.
func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req createSessionRequest
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

	sessionID, err := h.creator.Create(r.Context(), user.ID, c)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyCart), errors.Is(err, ErrUnknownProduct):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrProviderUnavailable):
			h.logger.Error("payment provider unavailable", "error", err, "user_id", user.ID)
			h.writeError(w, http.StatusBadGateway, "payment provider unavailable, try again")
		default:
			h.logger.Error("failed to create checkout session", "error", err, "user_id", user.ID)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.logger.Info("checkout session created", "session_id", sessionID, "user_id", user.ID)
	h.writeJSON(w, http.StatusOK, map[string]string{"id": sessionID})
}

// HandleWebhook receives payment provider callbacks. A 400 tells the provider
// the delivery is unusable; a 500 asks it to retry.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	result, err := h.processor.Process(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, ErrInvalidSignature) {
			h.logger.Warn("rejected webhook with invalid signature", "error", err)
			h.writeError(w, http.StatusBadRequest, "invalid signature")
			return
		}
		h.logger.Error("failed to process webhook", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("webhook processed", "outcome", result.Outcome)
	h.writeJSON(w, http.StatusOK, map[string]bool{"received": true})
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
