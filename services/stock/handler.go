package stock

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"clinicsync-backend/lib/clinicstore"

	"github.com/go-chi/chi/v5"
)

// Handler serves the stock read interface from the authoritative
// store. The snapshot document is a byproduct for external consumers;
// the endpoint always computes from live data.
type Handler struct {
	store *clinicstore.Store
}

func NewHandler(store *clinicstore.Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.getStock)
	return r
}

type stockResponse struct {
	Status      string         `json:"status"`
	Items       []SnapshotItem `json:"items"`
	Summary     Summary        `json:"summary"`
	LastUpdated string         `json:"last_updated"`
}

func (h *Handler) getStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	vaccines, err := h.store.ListVaccines(ctx)
	if err != nil {
		slog.WarnContext(ctx, "failed to list vaccines", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status":  "error",
			"message": "failed to load stock data",
		})
		return
	}

	items := make([]SnapshotItem, 0, len(vaccines))
	var lastUpdated time.Time
	for _, v := range vaccines {
		items = append(items, itemFromVaccine(v))
		if v.UpdatedAt.After(lastUpdated) {
			lastUpdated = v.UpdatedAt
		}
	}

	resp := stockResponse{
		Status:  "success",
		Items:   items,
		Summary: summarize(items),
	}
	if !lastUpdated.IsZero() {
		resp.LastUpdated = lastUpdated.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed to encode response", "err", err)
	}
}
