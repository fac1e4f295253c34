package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/twpayne/go-polyline"

	"trainfinder/internal/domain"
	"trainfinder/internal/railgraph"
	"trainfinder/internal/routing"
)

// RailwayFinder connects two stations over the railway graph
type RailwayFinder interface {
	Railway(ctx context.Context, from, to *domain.Station) (*railgraph.Railway, error)
}

// StationLookup resolves station codes
type StationLookup interface {
	ByCode(code string) (*domain.Station, bool)
}

type RailwayHandler struct {
	router   RailwayFinder
	stations StationLookup
	logger   *slog.Logger
}

func NewRailwayHandler(router RailwayFinder, stations StationLookup, logger *slog.Logger) *RailwayHandler {
	return &RailwayHandler{
		router:   router,
		stations: stations,
		logger:   logger.With("handler", "railways"),
	}
}

type RailwayResponse struct {
	From         string              `json:"from"`
	To           string              `json:"to"`
	LengthMeters float64             `json:"lengthMeters"`
	Polyline     string              `json:"polyline"`
	Points       []domain.Coordinate `json:"points,omitempty"`
}

func (h *RailwayHandler) GetRailway(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	fromCode := strings.ToUpper(pathParam(r, "from"))
	toCode := strings.ToUpper(pathParam(r, "to"))

	from, ok := h.stations.ByCode(fromCode)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown station "+fromCode)
		return
	}
	to, ok := h.stations.ByCode(toCode)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown station "+toCode)
		return
	}

	railway, err := h.router.Railway(r.Context(), from, to)
	if errors.Is(err, routing.ErrPathNotFound) {
		respondError(w, http.StatusNotFound, "no railway between "+fromCode+" and "+toCode)
		return
	}
	if err != nil {
		h.logger.Error("railway lookup failed", "request_id", RequestID(r.Context()), "from", fromCode, "to", toCode, "error", err)
		respondError(w, http.StatusInternalServerError, "railway lookup failed")
		return
	}

	points := railway.Points()
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Lat, p.Lon}
	}

	resp := RailwayResponse{
		From:         fromCode,
		To:           toCode,
		LengthMeters: railway.Length(),
		Polyline:     string(polyline.EncodeCoords(coords)),
	}
	if r.URL.Query().Get("points") == "true" {
		resp.Points = points
	}

	h.logger.Debug("GetRailway response",
		"from", fromCode,
		"to", toCode,
		"points", len(points),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	w.Header().Set("Cache-Control", "public, max-age=3600")
	respondJSON(w, http.StatusOK, resp)
}
