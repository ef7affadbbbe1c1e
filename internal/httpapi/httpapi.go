// Package httpapi serves the population API over HTTP.
//
//	GET /api/population/state/{state}/city/{city}
//	PUT /api/population/state/{state}/city/{city}
//	GET /healthz
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"go.mercari.io/popcache"
)

var log = logging.Logger("popcache/httpapi")

// MaxBodySize is the largest PUT body accepted.
const MaxBodySize = 64

// Populations is the part of popcache.Manager the API uses.
type Populations interface {
	Get(ctx context.Context, locality, region string) (int64, bool, error)
	Set(ctx context.Context, locality, region string, value int64) (*popcache.Pending, error)
}

// Handler is the http.Handler of the API.
type Handler struct {
	pop Populations
	mux *http.ServeMux
}

// New returns the API handler serving pop.
func New(pop Populations) *Handler {
	h := &Handler{
		pop: pop,
		mux: http.NewServeMux(),
	}

	h.mux.HandleFunc("GET /api/population/state/{state}/city/{city}", h.getPopulation)
	h.mux.HandleFunc("PUT /api/population/state/{state}/city/{city}", h.putPopulation)
	h.mux.HandleFunc("GET /healthz", h.healthz)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	h.mux.ServeHTTP(rw, r)

	log.Debugw("Served request", "method", r.Method, "path", r.URL.Path, "status", rw.status, "elapsed", time.Since(start))
}

type populationResponse struct {
	Population int64 `json:"population"`
}

func (h *Handler) getPopulation(w http.ResponseWriter, r *http.Request) {
	state, city := r.PathValue("state"), r.PathValue("city")

	population, ok, err := h.pop.Get(r.Context(), city, state)
	if err != nil {
		log.Errorw("Failed to get population", "err", err, "state", state, "city", city)
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, newError(http.StatusNotFound, "%s, %s could not be found.", city, state))
		return
	}

	body, err := json.Marshal(&populationResponse{Population: population})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) putPopulation(w http.ResponseWriter, r *http.Request) {
	state, city := r.PathValue("state"), r.PathValue("city")

	raw, err := io.ReadAll(io.LimitReader(r.Body, MaxBodySize+1))
	if err != nil {
		writeError(w, newError(http.StatusBadRequest, "Could not read request body: %s", err.Error()))
		return
	}
	if len(raw) > MaxBodySize {
		writeError(w, newError(http.StatusBadRequest, "Request body is larger than %d bytes.", MaxBodySize))
		return
	}

	population, err := popcache.ParseValue(string(bytes.TrimSpace(raw)))
	if err != nil {
		writeError(w, newError(http.StatusBadRequest, "Could not parse request body %q as a non-negative integer.", string(raw)))
		return
	}

	_, exists, err := h.pop.Get(r.Context(), city, state)
	if err != nil {
		log.Errorw("Failed to get population", "err", err, "state", state, "city", city)
		writeError(w, err)
		return
	}

	// the durable write is not awaited, the response only reflects the cache.
	if _, err := h.pop.Set(r.Context(), city, state, population); err != nil {
		log.Errorw("Failed to set population", "err", err, "state", state, "city", city)
		writeError(w, err)
		return
	}

	if exists {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusCreated)
	}
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}
