package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/DoyleJ11/wavesync/internal/resource"
	"github.com/DoyleJ11/wavesync/pkg/types"
)

// Directory is the read side of the coordinator.
type Directory interface {
	Clients() []types.Client
	TerminalClients(terminal string) []types.Client
	Locks() []types.Lock
}

func ListClients(d Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clients := d.Clients()
		writeJSON(w, http.StatusOK, struct {
			Success bool           `json:"success"`
			Clients []types.Client `json:"clients"`
			Count   int            `json:"count"`
		}{true, clients, len(clients)})
	}
}

func ListTerminalClients(d Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		terminal := chi.URLParam(r, "terminalID")
		clients := d.TerminalClients(terminal)
		writeJSON(w, http.StatusOK, struct {
			Success    bool           `json:"success"`
			TerminalID string         `json:"terminal_id"`
			Clients    []types.Client `json:"clients"`
			Count      int            `json:"count"`
		}{true, terminal, clients, len(clients)})
	}
}

func ListLocks(d Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		held := d.Locks()
		writeJSON(w, http.StatusOK, struct {
			Success bool         `json:"success"`
			Locks   []types.Lock `json:"locks"`
			Count   int          `json:"count"`
		}{true, held, len(held)})
	}
}

// Unlocker clears a lock on an operator's behalf.
type Unlocker interface {
	ForceUnlock(ctx context.Context, key resource.Key) (bool, error)
}

// ForceUnlock releases the lock named by the rest of the path, whoever holds it.
func ForceUnlock(u Unlocker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := resource.Parse(chi.URLParam(r, "*"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, types.ErrorPayload{Code: types.ErrCodeBadResourceID, Message: err.Error()})
			return
		}
		released, err := u.ForceUnlock(r.Context(), key)
		if err != nil {
			http.Error(w, "coordinator unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Success    bool   `json:"success"`
			ResourceID string `json:"resource_id"`
			Released   bool   `json:"released"`
		}{true, key.String(), released})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
