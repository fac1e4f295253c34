package ingestor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"trainfinder/internal/domain"
	"trainfinder/internal/metrics"
	"trainfinder/internal/repository"
	"trainfinder/internal/rides"
	"trainfinder/internal/scheduler"
)

const (
	DefaultRefreshInterval        = 5 * time.Minute
	DefaultFetchConcurrency       = 4
	DefaultFinalDestinationWindow = 10 * time.Minute
)

type CoordinatorConfig struct {
	RefreshInterval        time.Duration
	FetchConcurrency       int
	FinalDestinationWindow time.Duration
	Filter                 repository.StationFilter
}

// RailwayWarmer precomputes railways once the ride set has been refreshed
type RailwayWarmer interface {
	WarmRides(ctx context.Context) error
}

type Sources struct {
	Stations   repository.StationRepository
	Departures repository.DeparturesRepository
	Advice     repository.TravelAdviceRepository
}

// Coordinator runs the departure refresh cycle: pick stations, fetch their
// boards, fold the departures into the ride tracker, resolve final stops and
// clean up.
type Coordinator struct {
	sources   Sources
	tracker   *rides.Tracker
	scheduler *scheduler.RefreshScheduler
	warmer    RailwayWarmer
	metrics   *metrics.Metrics
	cfg       CoordinatorConfig
	logger    *slog.Logger
	now       func() time.Time

	running atomic.Bool
	cycles  atomic.Int64

	ready   bool
	readyMu sync.RWMutex
}

func NewCoordinator(
	sources Sources,
	tracker *rides.Tracker,
	sched *scheduler.RefreshScheduler,
	warmer RailwayWarmer,
	m *metrics.Metrics,
	cfg CoordinatorConfig,
	logger *slog.Logger,
) *Coordinator {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = DefaultFetchConcurrency
	}
	if cfg.FinalDestinationWindow <= 0 {
		cfg.FinalDestinationWindow = DefaultFinalDestinationWindow
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Coordinator{
		sources:   sources,
		tracker:   tracker,
		scheduler: sched,
		warmer:    warmer,
		metrics:   m,
		cfg:       cfg,
		logger:    logger.With("component", "coordinator"),
		now:       time.Now,
	}
}

// Run refreshes immediately and then on every tick until ctx is cancelled.
// A tick that arrives while a cycle is still running is skipped.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.RefreshInterval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	c.Refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.Refresh(ctx)
			}()
		}
	}
}

// Refresh runs one cycle and reports whether it ran
func (c *Coordinator) Refresh(ctx context.Context) bool {
	if !c.running.CompareAndSwap(false, true) {
		c.metrics.RefreshSkipped.Inc()
		c.logger.Warn("refresh still running, skipping tick")
		return false
	}
	defer c.running.Store(false)

	c.refresh(ctx)
	return true
}

type pollResult struct {
	station    *domain.Station
	departures []domain.Departure
	err        error
}

func (c *Coordinator) refresh(ctx context.Context) {
	start := time.Now()
	now := c.now()

	candidates := c.cfg.Filter.Apply(c.sources.Stations.Stations())
	selected := c.scheduler.Select(candidates, now)

	results := c.fetchAll(ctx, selected)
	if ctx.Err() != nil {
		return
	}

	departures, failed := 0, 0
	for _, r := range results {
		c.metrics.StationsPolled.Inc()
		if r.err != nil {
			failed++
			c.metrics.DepartureFetchErrors.Inc()
			c.logger.Warn("failed to fetch departures", "station", r.station.Code, "error", r.err)
		}
		for _, d := range r.departures {
			ride := c.tracker.FindOrCreateRide(d)
			ride.AddStop(d.Stop())
		}
		departures += len(r.departures)
		c.scheduler.RecordPoll(r.station, now, len(r.departures))
	}

	resolved := c.resolveFinalStops(ctx, now)

	if c.warmer != nil {
		if err := c.warmer.WarmRides(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error("railway warm-up failed", "error", err)
		}
	}

	removedRides := c.tracker.Cleanup(now)
	c.scheduler.Cleanup(now)

	c.metrics.RidesTracked.Set(float64(c.tracker.Len()))
	c.metrics.RefreshDuration.Observe(time.Since(start).Seconds())
	c.cycles.Add(1)

	if !c.IsReady() {
		c.setReady(true)
		c.logger.Info("coordinator ready", "stations", len(candidates), "rides", c.tracker.Len())
	}

	c.logger.Debug("refresh completed",
		"stations", len(candidates),
		"polled", len(selected),
		"failed", failed,
		"departures", departures,
		"final_stops", resolved,
		"rides_removed", removedRides,
		"rides", c.tracker.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// fetchAll fetches the departure boards of stations with bounded parallelism.
// Results keep the order of stations.
func (c *Coordinator) fetchAll(ctx context.Context, stations []*domain.Station) []pollResult {
	results := make([]pollResult, len(stations))
	sem := make(chan struct{}, c.cfg.FetchConcurrency)

	var wg sync.WaitGroup
	for i, st := range stations {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = pollResult{station: st, err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			deps, err := c.sources.Departures.DeparturesAt(ctx, st)
			results[i] = pollResult{station: st, departures: deps, err: err}
		}()
	}
	wg.Wait()
	return results
}

// resolveFinalStops asks the travel planner for the remaining stops of rides
// that are about to leave their last known stop. The departures feed never
// shows the arrival at the destination.
func (c *Coordinator) resolveFinalStops(ctx context.Context, now time.Time) int {
	if c.sources.Advice == nil {
		return 0
	}
	horizon := now.Add(c.cfg.FinalDestinationWindow)

	resolved := 0
	for _, ride := range c.tracker.Rides() {
		if ctx.Err() != nil {
			break
		}
		last, ok := ride.LastStop()
		if !ok || ride.Destination() == nil || ride.FinalStopResolved() {
			continue
		}
		actual := last.ActualDeparture()
		if !actual.After(now) || actual.After(horizon) {
			continue
		}
		if c.resolveFinalStop(ctx, ride) {
			resolved++
		}
	}
	return resolved
}

func (c *Coordinator) resolveFinalStop(ctx context.Context, ride *rides.Ride) bool {
	destination := ride.Destination()
	last, _ := ride.LastStop()

	from := last
	if domain.SameStation(last.Station, destination) {
		before, ok := ride.StopBefore(last.Station)
		if !ok {
			c.logger.Warn("no stop to plan the final leg from", "ride", ride.Key().String())
			return false
		}
		from = before
	}

	advice, err := c.sources.Advice.Advice(ctx, from.Station, destination, from.ScheduledDeparture(), domain.TimeTypeDeparture)
	if err != nil {
		c.metrics.FinalStopLookups.WithLabelValues(metrics.FinalStopError).Inc()
		c.logger.Error("travel advice failed", "ride", ride.Key().String(), "from", from.Station.Code, "error", err)
		return false
	}

	part, ok := matchingPart(advice, ride.Number(), destination)
	if !ok {
		c.metrics.FinalStopLookups.WithLabelValues(metrics.FinalStopUnmatched).Inc()
		c.logger.Warn("no travel advice option for ride",
			"ride", ride.Key().String(),
			"from", from.Station.Code,
			"to", destination.Code,
			"at", from.ScheduledDeparture(),
		)
		return false
	}

	for _, s := range part.Stops {
		if s.Station == nil {
			continue
		}
		ride.AddStop(domain.RideStop{
			Station:       s.Station,
			DepartureTime: s.Time,
			Delay:         s.DepartureDelay,
			Track:         s.Track,
		})
	}
	ride.MarkFinalStopResolved()
	c.metrics.FinalStopLookups.WithLabelValues(metrics.FinalStopResolved).Inc()
	return true
}

// matchingPart finds an option without transfers ridden on the given ride
// number and ending at destination
func matchingPart(advice *domain.TravelAdvice, rideNumber string, destination *domain.Station) (domain.TravelPart, bool) {
	if advice == nil {
		return domain.TravelPart{}, false
	}
	for _, opt := range advice.Options {
		if len(opt.Parts) != 1 {
			continue
		}
		part := opt.Parts[0]
		if part.RideNumber != rideNumber {
			continue
		}
		if last, ok := part.LastStop(); ok && domain.SameStation(last.Station, destination) {
			return part, true
		}
	}
	return domain.TravelPart{}, false
}

func (c *Coordinator) IsReady() bool {
	c.readyMu.RLock()
	defer c.readyMu.RUnlock()
	return c.ready
}

func (c *Coordinator) setReady(ready bool) {
	c.readyMu.Lock()
	defer c.readyMu.Unlock()
	c.ready = ready
}

// Cycles returns the number of completed refresh cycles
func (c *Coordinator) Cycles() int64 {
	return c.cycles.Load()
}
