package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"trainfinder/internal/domain"
	"trainfinder/internal/store"
)

const (
	defaultNearestStations = 5
	maxNearestStations     = 100
)

type StationHandler struct {
	stations *store.StationStore
	logger   *slog.Logger
}

func NewStationHandler(stations *store.StationStore, logger *slog.Logger) *StationHandler {
	return &StationHandler{
		stations: stations,
		logger:   logger.With("handler", "stations"),
	}
}

type StationsResponse struct {
	Stations   []*domain.Station `json:"stations"`
	Count      int               `json:"count"`
	LastUpdate time.Time         `json:"lastUpdate"`
	ServerTime time.Time         `json:"serverTime"`
}

func (h *StationHandler) ListStations(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var stations []*domain.Station
	if bboxStr := r.URL.Query().Get("bbox"); bboxStr != "" {
		bbox, err := parseBBox(bboxStr)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		stations = h.stations.InBounds(*bbox)
	} else {
		stations = h.stations.All()
	}

	h.logger.Debug("ListStations response",
		"count", len(stations),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	respondStations(w, stations, h.stations.LastUpdate())
}

func (h *StationHandler) NearestStations(w http.ResponseWriter, r *http.Request) {
	pos, err := parsePosition(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseLimit(r, defaultNearestStations, maxNearestStations)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondStations(w, h.stations.Nearest(pos, limit), h.stations.LastUpdate())
}

func (h *StationHandler) GetStation(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(pathParam(r, "code"))
	if code == "" {
		respondError(w, http.StatusBadRequest, "missing station code")
		return
	}

	station, ok := h.stations.ByCode(code)
	if !ok {
		h.logger.Debug("GetStation not found", "code", code)
		respondError(w, http.StatusNotFound, "station not found")
		return
	}

	respondJSON(w, http.StatusOK, station)
}

func respondStations(w http.ResponseWriter, stations []*domain.Station, lastUpdate time.Time) {
	if stations == nil {
		stations = []*domain.Station{}
	}
	respondJSON(w, http.StatusOK, StationsResponse{
		Stations:   stations,
		Count:      len(stations),
		LastUpdate: lastUpdate,
		ServerTime: time.Now(),
	})
}
