package earnings

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/craftisan/marketplace/internal/auth"
)

// Store is the read side the HTTP handler needs.
type Store interface {
	SummaryForArtist(ctx context.Context, artistID int64) (*Summary, error)
	ListForArtist(ctx context.Context, artistID int64) ([]Entry, error)
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

type earningsResponse struct {
	Summary *Summary `json:"summary"`
	Entries []Entry  `json:"entries"`
}

// HandleMine returns the authenticated artist's ledger.
func (h *Handler) HandleMine(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if user.Type != auth.UserTypeArtist {
		h.writeError(w, http.StatusForbidden, "artist account required")
		return
	}

	summary, err := h.store.SummaryForArtist(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("failed to summarize earnings", "error", err, "artist_id", user.ID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	entries, err := h.store.ListForArtist(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("failed to list earnings", "error", err, "artist_id", user.ID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if entries == nil {
		entries = []Entry{}
	}

	h.writeJSON(w, http.StatusOK, earningsResponse{Summary: summary, Entries: entries})
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
