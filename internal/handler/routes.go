package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Handlers groups the endpoint handlers mounted by NewRouter
type Handlers struct {
	Trains    *TrainHandler
	Stations  *StationHandler
	Railways  *RailwayHandler
	Stats     *StatsHandler
	Health    *HealthHandler
	WebSocket *WSHandler
	// Metrics serves /metrics when set
	Metrics http.Handler
	// RateLimit wraps the API routes when set
	RateLimit func(http.Handler) http.Handler
}

// NewRouter mounts the REST, websocket, health and metrics endpoints.
// Health, readiness and metrics bypass the rate limit.
func NewRouter(h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "If-None-Match", "X-Request-ID"},
		ExposedHeaders: []string{"ETag", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Health.Healthz)
	r.Get("/readyz", h.Health.Readyz)
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics)
	}

	r.Group(func(r chi.Router) {
		if h.RateLimit != nil {
			r.Use(h.RateLimit)
		}

		if h.WebSocket != nil {
			r.Get("/v1/ws", h.WebSocket.ServeWS)
		}

		r.Group(func(r chi.Router) {
			r.Use(GzipMiddleware)
			r.Use(CacheControl(0))

			r.Get("/v1/trains", h.Trains.ListTrains)
			r.Get("/v1/trains/nearest", h.Trains.NearestTrains)
			r.Get("/v1/trains/{date}/{number}", h.Trains.GetTrain)

			r.Get("/v1/stations", h.Stations.ListStations)
			r.Get("/v1/stations/nearest", h.Stations.NearestStations)
			r.Get("/v1/stations/{code}", h.Stations.GetStation)

			r.Get("/v1/railways/{from}/{to}", h.Railways.GetRailway)

			r.Get("/v1/stats", h.Stats.GetStats)
		})
	})

	return r
}
