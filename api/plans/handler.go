// Package plans exposes stored solver plans and partitions over HTTP.
package plans

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kilianp07/fleetsim/core/planstore"
)

// NewHandler serves, under /api/experiments/:
//
//	GET {experiment}/partitions      partition summaries
//	GET {experiment}/plans/{truck}   the raw solver plan of a truck
//
// Requests must carry "Authorization: Bearer <token>" when token is set.
func NewHandler(store planstore.Store, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/experiments/"), "/")
		var (
			out any
			err error
		)
		switch {
		case len(parts) == 2 && parts[0] != "" && parts[1] == "partitions":
			var list []planstore.PartitionSummary
			list, err = store.ListPartitions(r.Context(), parts[0])
			if list == nil {
				list = []planstore.PartitionSummary{}
			}
			out = list
		case len(parts) == 3 && parts[0] != "" && parts[1] == "plans" && parts[2] != "":
			out, err = store.LoadPlan(r.Context(), parts[0], parts[2])
		default:
			http.NotFound(w, r)
			return
		}
		if errors.Is(err, planstore.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	})
}
