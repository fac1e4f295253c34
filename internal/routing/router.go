// Package routing finds and caches the railway between two stations.
package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"trainfinder/internal/cache"
	"trainfinder/internal/domain"
	"trainfinder/internal/metrics"
	"trainfinder/internal/railgraph"
)

// DefaultProjectionRadius is the distance in metres within which track is
// considered part of a station
const DefaultProjectionRadius = 250.0

// ErrPathNotFound is returned when two stations cannot be connected over the graph
var ErrPathNotFound = errors.New("path not found")

// CacheStats counts railway cache lookups
type CacheStats struct {
	Hits     int64 `json:"hits"`
	Reversed int64 `json:"reversed"`
	Misses   int64 `json:"misses"`
}

func (s CacheStats) HitRatio() float64 {
	total := s.Hits + s.Reversed + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits+s.Reversed) / float64(total)
}

// Router connects stations over the railway graph. Stations are projected
// onto the graph the first time they are routed.
type Router struct {
	graph            *railgraph.Graph
	cache            cache.Cache[string, *railgraph.Railway]
	projectionRadius float64
	metrics          *metrics.Metrics
	logger           *slog.Logger

	mu        sync.Mutex
	projected map[string][]int64

	hits, reversed, misses atomic.Int64
}

func NewRouter(
	graph *railgraph.Graph,
	railways cache.Cache[string, *railgraph.Railway],
	projectionRadius float64,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Router {
	if projectionRadius <= 0 {
		projectionRadius = DefaultProjectionRadius
	}
	if railways == nil {
		railways = cache.NewMemory[string, *railgraph.Railway]()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Router{
		graph:            graph,
		cache:            railways,
		projectionRadius: projectionRadius,
		metrics:          m,
		logger:           logger.With("component", "router"),
		projected:        make(map[string][]int64),
	}
}

// Railway returns the railway from one station to another
func (r *Router) Railway(ctx context.Context, from, to *domain.Station) (*railgraph.Railway, error) {
	fromNodes := r.stationNodes(from)
	toNodes := r.stationNodes(to)

	if railway, ok := r.cache.Get(ctx, cache.KeyRailway(from.Code, to.Code)); ok {
		r.hits.Add(1)
		r.metrics.RailwayCacheRequests.WithLabelValues(metrics.CacheHit).Inc()
		return railway, nil
	}
	if railway, ok := r.cache.Get(ctx, cache.KeyRailway(to.Code, from.Code)); ok {
		r.reversed.Add(1)
		r.metrics.RailwayCacheRequests.WithLabelValues(metrics.CacheReverse).Inc()
		return railway.Reversed(), nil
	}
	r.misses.Add(1)
	r.metrics.RailwayCacheRequests.WithLabelValues(metrics.CacheMiss).Inc()

	if len(fromNodes) == 0 {
		r.metrics.PathNotFound.Inc()
		return nil, fmt.Errorf("no track near %s: %w", from.Code, ErrPathNotFound)
	}
	if len(toNodes) == 0 {
		r.metrics.PathNotFound.Inc()
		return nil, fmt.Errorf("no track near %s: %w", to.Code, ErrPathNotFound)
	}

	for _, source := range fromNodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path, err := r.graph.ShortestPath(source, toNodes)
		if errors.Is(err, railgraph.ErrNoPath) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("shortest path from %s: %w", from.Code, err)
		}

		railway, err := r.graph.Railway(from.Code, to.Code, path)
		if err != nil {
			return nil, fmt.Errorf("assemble railway %s-%s: %w", from.Code, to.Code, err)
		}
		r.cache.Put(ctx, cache.KeyRailway(from.Code, to.Code), railway)
		r.logger.Debug("railway computed",
			"from", from.Code,
			"to", to.Code,
			"nodes", railway.Len(),
			"length_m", int(railway.Length()),
		)
		return railway, nil
	}

	r.metrics.PathNotFound.Inc()
	return nil, fmt.Errorf("%s to %s: %w", from.Code, to.Code, ErrPathNotFound)
}

// stationNodes returns the graph nodes of station, projecting it on first use.
// When no track passes close enough to split, existing nodes within the
// projection radius are used.
func (r *Router) stationNodes(station *domain.Station) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if nodes, ok := r.projected[station.Code]; ok {
		return nodes
	}

	nodes := r.graph.ProjectNear(station.Position, r.projectionRadius)
	if len(nodes) == 0 {
		nodes = r.graph.FindNodesNear(station.Position, r.projectionRadius)
	}
	r.projected[station.Code] = nodes

	if len(nodes) == 0 {
		r.logger.Warn("no track near station", "station", station.Code, "position", station.Position.String())
	}
	return nodes
}

// ProjectedStations returns how many stations have been placed on the graph
func (r *Router) ProjectedStations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.projected)
}

func (r *Router) CacheStats() CacheStats {
	return CacheStats{
		Hits:     r.hits.Load(),
		Reversed: r.reversed.Load(),
		Misses:   r.misses.Load(),
	}
}
