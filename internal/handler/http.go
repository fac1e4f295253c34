package handler

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"trainfinder/internal/domain"
	"trainfinder/internal/hub"
	"trainfinder/internal/store"
	"trainfinder/internal/tracking"
)

const (
	defaultNearestLimit = 5
	maxNearestLimit     = 50
)

// TrainTracker estimates live train positions
type TrainTracker interface {
	CurrentTrains(ctx context.Context) []*domain.Train
	CurrentTrainsInBounds(ctx context.Context, bb domain.BoundingBox) []*domain.Train
	NearestTrains(ctx context.Context, pos domain.Coordinate, bearing float64, limit int) []tracking.ScoredTrain
}

type TrainHandler struct {
	tracker TrainTracker
	store   *store.TrainStore
}

func NewTrainHandler(tracker TrainTracker, trains *store.TrainStore) *TrainHandler {
	return &TrainHandler{tracker: tracker, store: trains}
}

type TrainsResponse struct {
	Trains     []*domain.Train `json:"trains"`
	Count      int             `json:"count"`
	ServerTime time.Time       `json:"serverTime"`
}

// ListTrains estimates the current trains. A tile parameter answers from the
// last published snapshot instead.
func (h *TrainHandler) ListTrains(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	carrier := q.Get("carrier")
	trainType := q.Get("type")

	if tileID := q.Get("tile"); tileID != "" {
		zoom, x, y, ok := hub.ParseTileID(tileID)
		if !ok {
			respondError(w, http.StatusBadRequest, "invalid tile: expected zoom/x/y")
			return
		}
		bounds := hub.TileBounds(zoom, x, y)
		trains := h.store.List(store.ListOptions{Carrier: carrier, Type: trainType, BBox: &bounds})
		respondTrains(w, trains)
		return
	}

	var trains []*domain.Train
	if bboxStr := q.Get("bbox"); bboxStr != "" {
		bbox, err := parseBBox(bboxStr)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		trains = h.tracker.CurrentTrainsInBounds(r.Context(), *bbox)
	} else {
		trains = h.tracker.CurrentTrains(r.Context())
	}

	respondTrains(w, filterTrains(trains, carrier, trainType))
}

func respondTrains(w http.ResponseWriter, trains []*domain.Train) {
	if trains == nil {
		trains = []*domain.Train{}
	}
	respondJSON(w, http.StatusOK, TrainsResponse{
		Trains:     trains,
		Count:      len(trains),
		ServerTime: time.Now(),
	})
}

func filterTrains(trains []*domain.Train, carrier, trainType string) []*domain.Train {
	if carrier == "" && trainType == "" {
		return trains
	}
	result := make([]*domain.Train, 0, len(trains))
	for _, t := range trains {
		if carrier != "" && !strings.EqualFold(t.Carrier, carrier) {
			continue
		}
		if trainType != "" && !strings.EqualFold(t.TrainType, trainType) {
			continue
		}
		result = append(result, t)
	}
	return result
}

// GetTrain returns the last published state of the ride "date/number"
func (h *TrainHandler) GetTrain(w http.ResponseWriter, r *http.Request) {
	date, number := pathParam(r, "date"), pathParam(r, "number")
	if date == "" || number == "" {
		respondError(w, http.StatusBadRequest, "missing train key")
		return
	}
	key := date + "/" + number

	train, ok := h.store.Get(key)
	if !ok {
		respondError(w, http.StatusNotFound, "train not found")
		return
	}

	respondJSON(w, http.StatusOK, train)
}

type NearestTrainsResponse struct {
	Trains     []tracking.ScoredTrain `json:"trains"`
	Count      int                    `json:"count"`
	ServerTime time.Time              `json:"serverTime"`
}

// NearestTrains ranks the current trains by how plausible it is that a
// traveller at lat/lon, optionally heading along bearing, is on board
func (h *TrainHandler) NearestTrains(w http.ResponseWriter, r *http.Request) {
	pos, err := parsePosition(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	bearing := math.NaN()
	if v := r.URL.Query().Get("bearing"); v != "" {
		bearing, err = strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(bearing) || math.IsInf(bearing, 0) {
			respondError(w, http.StatusBadRequest, "invalid bearing parameter")
			return
		}
	}

	limit, err := parseLimit(r, defaultNearestLimit, maxNearestLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	scored := h.tracker.NearestTrains(r.Context(), pos, bearing, limit)
	if scored == nil {
		scored = []tracking.ScoredTrain{}
	}

	respondJSON(w, http.StatusOK, NearestTrainsResponse{
		Trains:     scored,
		Count:      len(scored),
		ServerTime: time.Now(),
	})
}

// parseBBox reads "minLat,minLon,maxLat,maxLon"
func parseBBox(s string) (*domain.BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, errors.New("invalid bbox format: expected minLat,minLon,maxLat,maxLon")
	}

	values := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, errors.New("invalid bbox values: " + err.Error())
		}
		values[i] = v
	}

	bb := &domain.BoundingBox{
		MinLat: values[0], MinLon: values[1],
		MaxLat: values[2], MaxLon: values[3],
	}
	if bb.MinLat > bb.MaxLat || bb.MinLon > bb.MaxLon {
		return nil, errors.New("invalid bbox values: minimum exceeds maximum")
	}
	return bb, nil
}

func parsePosition(r *http.Request) (domain.Coordinate, error) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil || lat < -90 || lat > 90 {
		return domain.Coordinate{}, errors.New("invalid or missing lat parameter")
	}
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil || lon < -180 || lon > 180 {
		return domain.Coordinate{}, errors.New("invalid or missing lon parameter")
	}
	return domain.Coordinate{Lat: lat, Lon: lon}, nil
}

func parseLimit(r *http.Request, defaultVal, maxVal int) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultVal, nil
	}
	limit, err := strconv.Atoi(v)
	if err != nil || limit <= 0 {
		return 0, errors.New("invalid limit parameter")
	}
	return min(limit, maxVal), nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
