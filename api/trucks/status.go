// Package trucks exposes truck status and ecological KPIs over HTTP.
package trucks

import (
	"encoding/json"
	"net/http"

	"github.com/kilianp07/fleetsim/core/vehiclestatus"
)

// NewStatusHandler returns an HTTP handler exposing truck status via
// GET /api/trucks/status. fleet_id and status filter the result.
func NewStatusHandler(store vehiclestatus.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		f := vehiclestatus.Filter{
			FleetID: r.URL.Query().Get("fleet_id"),
			Status:  r.URL.Query().Get("status"),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(store.List(f)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
