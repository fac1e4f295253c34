package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-polyline"

	"trainfinder/internal/domain"
	"trainfinder/internal/hub"
	"trainfinder/internal/railgraph"
	"trainfinder/internal/routing"
	"trainfinder/internal/store"
	"trainfinder/internal/tracking"
)

const testZoom = 10

var (
	utrecht     = &domain.Station{Code: "UT", ShortName: "Utrecht C", LongName: "Utrecht Centraal", Country: "NL", Position: domain.Coordinate{Lat: 52.089, Lon: 5.110}}
	amsterdam   = &domain.Station{Code: "ASD", ShortName: "Amsterdam C", LongName: "Amsterdam Centraal", Country: "NL", Position: domain.Coordinate{Lat: 52.379, Lon: 4.900}}
	amersfoort  = &domain.Station{Code: "AMF", ShortName: "Amersfoort C", LongName: "Amersfoort Centraal", Country: "NL", Position: domain.Coordinate{Lat: 52.153, Lon: 5.371}}
	allStations = []*domain.Station{utrecht, amsterdam, amersfoort}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeTracker struct {
	trains  []*domain.Train
	bounds  *domain.BoundingBox
	bearing float64
	limit   int
}

func (f *fakeTracker) CurrentTrains(context.Context) []*domain.Train {
	return f.trains
}

func (f *fakeTracker) CurrentTrainsInBounds(_ context.Context, bb domain.BoundingBox) []*domain.Train {
	f.bounds = &bb
	var result []*domain.Train
	for _, t := range f.trains {
		if bb.ContainsCoordinate(t.Position) {
			result = append(result, t)
		}
	}
	return result
}

func (f *fakeTracker) NearestTrains(_ context.Context, _ domain.Coordinate, bearing float64, limit int) []tracking.ScoredTrain {
	f.bearing = bearing
	f.limit = limit
	var result []tracking.ScoredTrain
	for i, t := range f.trains {
		if i == limit {
			break
		}
		result = append(result, tracking.ScoredTrain{Train: t, Score: 1 / float64(i+1)})
	}
	return result
}

type fakeRailways struct {
	railways map[string]*railgraph.Railway
	errs     map[string]error
}

func (f *fakeRailways) Railway(_ context.Context, from, to *domain.Station) (*railgraph.Railway, error) {
	key := from.Code + "/" + to.Code
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	if r, ok := f.railways[key]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("routing %s: %w", key, routing.ErrPathNotFound)
}

func (f *fakeRailways) CacheStats() routing.CacheStats {
	return routing.CacheStats{Hits: 3, Reversed: 1, Misses: 4}
}

func (f *fakeRailways) ProjectedStations() int { return 2 }

type fakeReady struct{ ready bool }

func (f *fakeReady) IsReady() bool { return f.ready }

type fakeGraph struct{}

func (fakeGraph) NodeCount() int { return 120 }
func (fakeGraph) EdgeCount() int { return 119 }

type fixture struct {
	tracker  *fakeTracker
	trains   *store.TrainStore
	stations *store.StationStore
	ready    *fakeReady
	hub      *hub.Hub
	handlers Handlers
}

func trainAt(number, carrier, trainType string, pos domain.Coordinate) *domain.Train {
	return &domain.Train{
		Key:       "2024-01-01/" + number,
		RideCode:  number,
		Carrier:   carrier,
		TrainType: trainType,
		Position:  pos,
		TileID:    hub.TileID(pos.Lat, pos.Lon, testZoom),
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	trains := []*domain.Train{
		trainAt("500", "NS", "IC", domain.Coordinate{Lat: 52.09, Lon: 5.11}),
		trainAt("7400", "Arriva", "SPR", domain.Coordinate{Lat: 52.37, Lon: 4.9}),
	}

	trainStore := store.NewTrainStore()
	trainStore.Replace(trains, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	stationStore := store.NewStationStore()
	stationStore.Replace(allStations)

	railway, err := railgraph.NewRailway("UT", "AMF",
		[]domain.Coordinate{utrecht.Position, {Lat: 52.12, Lon: 5.25}, amersfoort.Position},
		[]float64{0, 11000, 20000},
	)
	require.NoError(t, err)
	railways := &fakeRailways{
		railways: map[string]*railgraph.Railway{"UT/AMF": railway},
		errs:     map[string]error{"AMF/ASD": errors.New("graph unavailable")},
	}

	f := &fixture{
		tracker:  &fakeTracker{trains: trains},
		trains:   trainStore,
		stations: stationStore,
		ready:    &fakeReady{},
		hub:      hub.NewHub(discardLogger()),
	}
	f.handlers = Handlers{
		Trains:   NewTrainHandler(f.tracker, trainStore),
		Stations: NewStationHandler(stationStore, discardLogger()),
		Railways: NewRailwayHandler(railways, stationStore, discardLogger()),
		Stats: NewStatsHandler(StatsSources{
			Trains:   trainStore,
			Stations: stationStore,
			Graph:    fakeGraph{},
			Router:   railways,
			Hub:      f.hub,
		}),
		Health:    NewHealthHandler(f.ready, trainStore),
		WebSocket: NewWSHandler(f.hub, trainStore, testZoom, discardLogger()),
	}
	return f
}

func serve(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func trainKeys(trains []*domain.Train) []string {
	keys := make([]string, len(trains))
	for i, t := range trains {
		keys[i] = t.Key
	}
	return keys
}

func TestTrainHandler_ListTrains(t *testing.T) {
	f := newFixture(t)
	router := NewRouter(f.handlers)

	tests := []struct {
		name   string
		target string
		status int
		keys   []string
	}{
		{name: "all current trains", target: "/v1/trains", status: http.StatusOK, keys: []string{"2024-01-01/500", "2024-01-01/7400"}},
		{name: "carrier filter ignores case", target: "/v1/trains?carrier=arriva", status: http.StatusOK, keys: []string{"2024-01-01/7400"}},
		{name: "type filter", target: "/v1/trains?type=IC", status: http.StatusOK, keys: []string{"2024-01-01/500"}},
		{name: "no match", target: "/v1/trains?carrier=NS&type=SPR", status: http.StatusOK, keys: []string{}},
		{name: "bounding box", target: "/v1/trains?bbox=52.0,5.0,52.2,5.3", status: http.StatusOK, keys: []string{"2024-01-01/500"}},
		{name: "published tile", target: "/v1/trains?tile=10/526/337", status: http.StatusOK, keys: []string{"2024-01-01/500"}},
		{name: "bbox with three values", target: "/v1/trains?bbox=52.0,5.0,52.2", status: http.StatusBadRequest},
		{name: "bbox with inverted corners", target: "/v1/trains?bbox=52.2,5.3,52.0,5.0", status: http.StatusBadRequest},
		{name: "bbox with text", target: "/v1/trains?bbox=a,b,c,d", status: http.StatusBadRequest},
		{name: "invalid tile", target: "/v1/trains?tile=10/526", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, router, tt.target)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status != http.StatusOK {
				assert.NotEmpty(t, decode[errorResponse](t, rec).Error)
				return
			}
			resp := decode[TrainsResponse](t, rec)
			assert.Equal(t, tt.keys, trainKeys(resp.Trains))
			assert.Equal(t, len(tt.keys), resp.Count)
		})
	}

	serve(t, router, "/v1/trains?bbox=52.0,5.0,52.2,5.3")
	require.NotNil(t, f.tracker.bounds)
	assert.Equal(t, domain.BoundingBox{MinLat: 52.0, MinLon: 5.0, MaxLat: 52.2, MaxLon: 5.3}, *f.tracker.bounds)
}

func TestTrainHandler_GetTrain(t *testing.T) {
	router := NewRouter(newFixture(t).handlers)

	rec := serve(t, router, "/v1/trains/2024-01-01/500")
	require.Equal(t, http.StatusOK, rec.Code)
	train := decode[domain.Train](t, rec)
	assert.Equal(t, "500", train.RideCode)
	assert.Equal(t, "10/526/337", train.TileID)

	rec = serve(t, router, "/v1/trains/2024-01-01/999")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTrainHandler_NearestTrains(t *testing.T) {
	f := newFixture(t)
	router := NewRouter(f.handlers)

	t.Run("without bearing", func(t *testing.T) {
		rec := serve(t, router, "/v1/trains/nearest?lat=52.09&lon=5.11")
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[NearestTrainsResponse](t, rec)
		assert.Equal(t, 2, resp.Count)
		assert.True(t, math.IsNaN(f.tracker.bearing))
		assert.Equal(t, defaultNearestLimit, f.tracker.limit)
	})

	t.Run("with bearing and capped limit", func(t *testing.T) {
		rec := serve(t, router, "/v1/trains/nearest?lat=52.09&lon=5.11&bearing=90&limit=1000")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 90.0, f.tracker.bearing)
		assert.Equal(t, maxNearestLimit, f.tracker.limit)
	})

	t.Run("limit", func(t *testing.T) {
		rec := serve(t, router, "/v1/trains/nearest?lat=52.09&lon=5.11&limit=1")
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[NearestTrainsResponse](t, rec)
		require.Len(t, resp.Trains, 1)
		assert.Equal(t, "2024-01-01/500", resp.Trains[0].Train.Key)
	})

	bad := []string{
		"/v1/trains/nearest?lon=5.11",
		"/v1/trains/nearest?lat=95&lon=5.11",
		"/v1/trains/nearest?lat=52.09&lon=5.11&bearing=north",
		"/v1/trains/nearest?lat=52.09&lon=5.11&limit=0",
	}
	for _, target := range bad {
		t.Run(target, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, serve(t, router, target).Code)
		})
	}
}

func stationCodes(stations []*domain.Station) []string {
	codes := make([]string, len(stations))
	for i, s := range stations {
		codes[i] = s.Code
	}
	return codes
}

func TestStationHandler(t *testing.T) {
	router := NewRouter(newFixture(t).handlers)

	tests := []struct {
		name   string
		target string
		codes  []string
	}{
		{name: "all stations by code", target: "/v1/stations", codes: []string{"AMF", "ASD", "UT"}},
		{name: "bounding box", target: "/v1/stations?bbox=52.0,5.0,52.2,5.5", codes: []string{"AMF", "UT"}},
		{name: "nearest", target: "/v1/stations/nearest?lat=52.09&lon=5.11&limit=2", codes: []string{"UT", "AMF"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, router, tt.target)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			resp := decode[StationsResponse](t, rec)
			assert.Equal(t, tt.codes, stationCodes(resp.Stations))
			assert.False(t, resp.LastUpdate.IsZero())
		})
	}

	t.Run("by code ignores case", func(t *testing.T) {
		rec := serve(t, router, "/v1/stations/ut")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Utrecht Centraal", decode[domain.Station](t, rec).LongName)
	})

	t.Run("unknown code", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, serve(t, router, "/v1/stations/XYZ").Code)
	})

	t.Run("nearest without position", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, serve(t, router, "/v1/stations/nearest?lat=52").Code)
	})
}

func TestRailwayHandler(t *testing.T) {
	router := NewRouter(newFixture(t).handlers)

	t.Run("encodes the railway", func(t *testing.T) {
		rec := serve(t, router, "/v1/railways/ut/amf")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))

		resp := decode[RailwayResponse](t, rec)
		assert.Equal(t, "UT", resp.From)
		assert.Equal(t, "AMF", resp.To)
		assert.Equal(t, 20000.0, resp.LengthMeters)
		assert.Empty(t, resp.Points)

		coords, _, err := polyline.DecodeCoords([]byte(resp.Polyline))
		require.NoError(t, err)
		require.Len(t, coords, 3)
		assert.InDelta(t, 52.089, coords[0][0], 1e-5)
		assert.InDelta(t, 5.371, coords[2][1], 1e-5)
	})

	t.Run("points on request", func(t *testing.T) {
		rec := serve(t, router, "/v1/railways/UT/AMF?points=true")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[RailwayResponse](t, rec).Points, 3)
	})

	tests := []struct {
		name   string
		target string
		status int
	}{
		{name: "unknown origin", target: "/v1/railways/XX/UT", status: http.StatusNotFound},
		{name: "unknown destination", target: "/v1/railways/UT/XX", status: http.StatusNotFound},
		{name: "no path", target: "/v1/railways/ASD/UT", status: http.StatusNotFound},
		{name: "lookup failure", target: "/v1/railways/AMF/ASD", status: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, serve(t, router, tt.target).Code)
		})
	}
}

func TestHealthHandler(t *testing.T) {
	f := newFixture(t)
	router := NewRouter(f.handlers)

	rec := serve(t, router, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = serve(t, router, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, decode[ReadyResponse](t, rec).Ready)

	f.ready.ready = true
	rec = serve(t, router, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ReadyResponse](t, rec)
	assert.True(t, resp.Ready)
	assert.Equal(t, 2, resp.TrainCount)
}

func TestStatsHandler(t *testing.T) {
	router := NewRouter(newFixture(t).handlers)

	rec := serve(t, router, "/v1/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	resp := decode[StatsResponse](t, rec)
	assert.Equal(t, 2, resp.Tracking.ActiveTrains)
	assert.Equal(t, 3, resp.Tracking.Stations)
	assert.Equal(t, 120, resp.Graph.Nodes)
	assert.Equal(t, 119, resp.Graph.Edges)
	assert.Equal(t, 2, resp.Graph.ProjectedStations)
	assert.Equal(t, int64(3), resp.Cache.Hits)
	assert.InDelta(t, 0.5, resp.Cache.Ratio, 1e-9)
	assert.Positive(t, resp.Server.RequestCount)
	assert.NotEmpty(t, resp.Go.GoVersion)
}

func TestRouter_Middleware(t *testing.T) {
	f := newFixture(t)

	t.Run("request id is generated", func(t *testing.T) {
		rec := serve(t, NewRouter(f.handlers), "/v1/stations")
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
	})

	t.Run("request id is propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set("X-Request-ID", "abc-123")
		rec := httptest.NewRecorder()
		NewRouter(f.handlers).ServeHTTP(rec, req)
		assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
	})

	t.Run("cors", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/stations", nil)
		req.Header.Set("Origin", "https://example.org")
		rec := httptest.NewRecorder()
		NewRouter(f.handlers).ServeHTTP(rec, req)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("rate limit skips health and readiness", func(t *testing.T) {
		handlers := f.handlers
		handlers.RateLimit = func(http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			})
		}
		router := NewRouter(handlers)

		assert.Equal(t, http.StatusOK, serve(t, router, "/healthz").Code)
		assert.Equal(t, http.StatusServiceUnavailable, serve(t, router, "/readyz").Code)
		assert.Equal(t, http.StatusTooManyRequests, serve(t, router, "/v1/stations").Code)
		assert.Equal(t, http.StatusTooManyRequests, serve(t, router, "/v1/trains").Code)
	})
}
