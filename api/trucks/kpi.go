package trucks

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/kilianp07/fleetsim/core/metrics/eco"
)

type kpiOut struct {
	Date         string  `json:"date"`
	DistanceKm   float64 `json:"distance_km"`
	CO2Kg        float64 `json:"co2_kg"`
	Pickups      int     `json:"pickups"`
	CO2PerPickup float64 `json:"co2_per_pickup"`
	KmPerPickup  float64 `json:"km_per_pickup"`
}

// NewKPIHandler exposes daily ecological KPIs via GET /api/trucks/{id}/kpis.
// start and end are RFC3339 timestamps; end defaults to now.
func NewKPIHandler(store eco.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		path := strings.TrimPrefix(r.URL.Path, "/api/trucks/")
		parts := strings.Split(path, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] != "kpis" {
			http.NotFound(w, r)
			return
		}
		var start, end time.Time
		if s := r.URL.Query().Get("start"); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				http.Error(w, "invalid start", http.StatusBadRequest)
				return
			}
			start = t
		}
		if s := r.URL.Query().Get("end"); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				http.Error(w, "invalid end", http.StatusBadRequest)
				return
			}
			end = t
		}
		if end.IsZero() {
			end = time.Now()
		}
		recs, err := store.Query(parts[0], start, end)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		out := make([]kpiOut, len(recs))
		for i, rec := range recs {
			out[i] = kpiOut{
				Date:         rec.Date.Format("2006-01-02"),
				DistanceKm:   rec.DistanceKm,
				CO2Kg:        rec.CO2Kg,
				Pickups:      rec.Pickups,
				CO2PerPickup: rec.CO2PerPickup(),
				KmPerPickup:  rec.KmPerPickup(),
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	})
}
