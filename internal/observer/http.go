package observer

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/world"
)

// HeightResponse answers GET /height. Height is null where no chunk is
// resident.
type HeightResponse struct {
	X        float64  `json:"x"`
	Z        float64  `json:"z"`
	Height   *float64 `json:"height"`
	Resident bool     `json:"resident"`
}

// HeightHandler serves point height queries against q.
func HeightHandler(q world.HeightQuery) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		x, errX := strconv.ParseFloat(r.URL.Query().Get("x"), 64)
		z, errZ := strconv.ParseFloat(r.URL.Query().Get("z"), 64)
		if errX != nil || errZ != nil || !finite(x) || !finite(z) {
			http.Error(rw, "x and z must be numbers", http.StatusBadRequest)
			return
		}

		resp := HeightResponse{X: x, Z: z}
		if h := q.Query(x, z); h != world.HeightUnknown {
			resp.Height = &h
			resp.Resident = true
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Mux routes /ws to the hub and /height to q.
func (h *Hub) Mux(q world.HeightQuery) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.Handler())
	mux.HandleFunc("/height", HeightHandler(q))
	return mux
}
