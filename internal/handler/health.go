package handler

import (
	"net/http"
	"time"

	"trainfinder/internal/store"
)

// ReadinessChecker reports whether the first departure refresh has completed
type ReadinessChecker interface {
	IsReady() bool
}

type HealthHandler struct {
	ready  ReadinessChecker
	trains *store.TrainStore
}

func NewHealthHandler(ready ReadinessChecker, trains *store.TrainStore) *HealthHandler {
	return &HealthHandler{
		ready:  ready,
		trains: trains,
	}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ReadyResponse struct {
	Ready      bool      `json:"ready"`
	TrainCount int       `json:"trainCount"`
	ServerTime time.Time `json:"serverTime"`
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ready := h.ready.IsReady()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, ReadyResponse{
		Ready:      ready,
		TrainCount: h.trains.Count(),
		ServerTime: time.Now(),
	})
}
