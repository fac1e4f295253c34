package handler

import (
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"trainfinder/internal/hub"
	"trainfinder/internal/routing"
	"trainfinder/internal/store"
)

// Stats tracks server-wide counters
type Stats struct {
	startTime     time.Time
	requestCount  atomic.Int64
	wsConnections atomic.Int64
	wsMessagesIn  atomic.Int64
	wsMessagesOut atomic.Int64
}

// Global stats instance
var ServerStats = &Stats{
	startTime: time.Now(),
}

func (s *Stats) IncRequests()      { s.requestCount.Add(1) }
func (s *Stats) IncWSConnections() { s.wsConnections.Add(1) }
func (s *Stats) DecWSConnections() { s.wsConnections.Add(-1) }
func (s *Stats) IncWSMessagesIn()  { s.wsMessagesIn.Add(1) }
func (s *Stats) IncWSMessagesOut() { s.wsMessagesOut.Add(1) }

type RideCounter interface {
	Len() int
}

type GraphCounter interface {
	NodeCount() int
	EdgeCount() int
}

type RailwayCacheStats interface {
	CacheStats() routing.CacheStats
	ProjectedStations() int
}

type HubStats interface {
	Stats() hub.Stats
}

type CycleCounter interface {
	Cycles() int64
}

type BlockedCounter interface {
	Blocked() int64
}

// StatsSources groups what the stats endpoint reports on. Nil fields are
// reported as zero.
type StatsSources struct {
	Rides       RideCounter
	Trains      *store.TrainStore
	Stations    *store.StationStore
	Graph       GraphCounter
	Router      RailwayCacheStats
	Hub         HubStats
	Coordinator CycleCounter
	RateLimiter BlockedCounter
}

type StatsHandler struct {
	src StatsSources
}

func NewStatsHandler(src StatsSources) *StatsHandler {
	return &StatsHandler{src: src}
}

type StatsResponse struct {
	Server    ServerStatsResponse    `json:"server"`
	Tracking  TrackingStatsResponse  `json:"tracking"`
	Graph     GraphStatsResponse     `json:"graph"`
	Cache     CacheStatsResponse     `json:"cache"`
	WebSocket WebSocketStatsResponse `json:"websocket"`
	Go        GoStatsResponse        `json:"go"`
}

type ServerStatsResponse struct {
	Uptime        string    `json:"uptime"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	StartTime     time.Time `json:"start_time"`
	RequestCount  int64     `json:"request_count"`
	RateLimited   int64     `json:"rate_limited"`
}

type TrackingStatsResponse struct {
	Rides          int       `json:"rides"`
	ActiveTrains   int       `json:"active_trains"`
	Stations       int       `json:"stations"`
	RefreshCycles  int64     `json:"refresh_cycles"`
	LastPublish    time.Time `json:"last_publish"`
	StationsLoaded time.Time `json:"stations_loaded"`
}

type GraphStatsResponse struct {
	Nodes             int `json:"nodes"`
	Edges             int `json:"edges"`
	ProjectedStations int `json:"projected_stations"`
}

type CacheStatsResponse struct {
	Hits     int64   `json:"hits"`
	Reversed int64   `json:"reversed"`
	Misses   int64   `json:"misses"`
	Ratio    float64 `json:"hit_ratio"`
}

type WebSocketStatsResponse struct {
	Connections int64 `json:"connections"`
	MessagesIn  int64 `json:"messages_in"`
	MessagesOut int64 `json:"messages_out"`
	Subscribed  int   `json:"subscribed_tiles"`
	Dropped     int64 `json:"dropped"`
}

type GoStatsResponse struct {
	Goroutines  int     `json:"goroutines"`
	HeapAlloc   uint64  `json:"heap_alloc_bytes"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	NumGC       uint32  `json:"num_gc"`
	GoVersion   string  `json:"go_version"`
}

func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(ServerStats.startTime)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	response := StatsResponse{
		Server: ServerStatsResponse{
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			StartTime:     ServerStats.startTime,
			RequestCount:  ServerStats.requestCount.Load(),
		},
		WebSocket: WebSocketStatsResponse{
			Connections: ServerStats.wsConnections.Load(),
			MessagesIn:  ServerStats.wsMessagesIn.Load(),
			MessagesOut: ServerStats.wsMessagesOut.Load(),
		},
		Go: GoStatsResponse{
			Goroutines:  runtime.NumGoroutine(),
			HeapAlloc:   mem.HeapAlloc,
			HeapAllocMB: float64(mem.HeapAlloc) / 1024 / 1024,
			NumGC:       mem.NumGC,
			GoVersion:   runtime.Version(),
		},
	}

	if h.src.RateLimiter != nil {
		response.Server.RateLimited = h.src.RateLimiter.Blocked()
	}
	if h.src.Rides != nil {
		response.Tracking.Rides = h.src.Rides.Len()
	}
	if h.src.Trains != nil {
		response.Tracking.ActiveTrains = h.src.Trains.Count()
		response.Tracking.LastPublish = h.src.Trains.LastUpdate()
	}
	if h.src.Stations != nil {
		response.Tracking.Stations = h.src.Stations.Count()
		response.Tracking.StationsLoaded = h.src.Stations.LastUpdate()
	}
	if h.src.Coordinator != nil {
		response.Tracking.RefreshCycles = h.src.Coordinator.Cycles()
	}
	if h.src.Graph != nil {
		response.Graph.Nodes = h.src.Graph.NodeCount()
		response.Graph.Edges = h.src.Graph.EdgeCount()
	}
	if h.src.Router != nil {
		cs := h.src.Router.CacheStats()
		response.Graph.ProjectedStations = h.src.Router.ProjectedStations()
		response.Cache = CacheStatsResponse{
			Hits:     cs.Hits,
			Reversed: cs.Reversed,
			Misses:   cs.Misses,
			Ratio:    cs.HitRatio(),
		}
	}
	if h.src.Hub != nil {
		hs := h.src.Hub.Stats()
		response.WebSocket.Subscribed = hs.Tiles
		response.WebSocket.Dropped = hs.Dropped
	}

	w.Header().Set("Cache-Control", "no-cache")
	respondJSON(w, http.StatusOK, response)
}
