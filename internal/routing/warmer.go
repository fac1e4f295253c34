package routing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"trainfinder/internal/domain"
	"trainfinder/internal/rides"
)

// RideSource provides the currently tracked rides
type RideSource interface {
	Rides() []*rides.Ride
}

// Reloader refreshes reference data, typically the station list
type Reloader interface {
	Reload(ctx context.Context) error
}

// Warmer computes railways ahead of the position queries that need them
type Warmer struct {
	router    *Router
	rides     RideSource
	stations  Reloader
	lookAhead time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

func NewWarmer(router *Router, source RideSource, stations Reloader, lookAhead time.Duration, logger *slog.Logger) *Warmer {
	return &Warmer{
		router:    router,
		rides:     source,
		stations:  stations,
		lookAhead: lookAhead,
		now:       time.Now,
		logger:    logger.With("component", "railway_warmer"),
	}
}

type stationPair struct {
	from, to *domain.Station
}

// WarmRides computes the railway between every pair of consecutive stops of
// rides that are running or start within the look-ahead window
func (w *Warmer) WarmRides(ctx context.Context) error {
	start := time.Now()
	now := w.now()
	horizon := now.Add(w.lookAhead)

	seen := make(map[string]struct{})
	var pairs []stationPair
	for _, ride := range w.rides.Rides() {
		stops := ride.Stops()
		if len(stops) < 2 {
			continue
		}
		if stops[0].ActualDeparture().After(horizon) || !stops[len(stops)-1].ActualDeparture().After(now) {
			continue
		}
		for i := 1; i < len(stops); i++ {
			from, to := stops[i-1].Station, stops[i].Station
			key := from.Code + ":" + to.Code
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			pairs = append(pairs, stationPair{from: from, to: to})
		}
	}

	warmed, failed := 0, 0
	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := w.router.Railway(ctx, p.from, p.to); err != nil {
			if !errors.Is(err, ErrPathNotFound) {
				return err
			}
			failed++
			continue
		}
		warmed++
	}

	w.logger.Debug("warmed railways",
		"pairs", len(pairs),
		"warmed", warmed,
		"not_found", failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// ScheduleMidnightRefresh reloads the station list shortly after every midnight
// until ctx is cancelled
func (w *Warmer) ScheduleMidnightRefresh(ctx context.Context) {
	if w.stations == nil {
		return
	}
	for {
		now := w.now()
		midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 5, 0, 0, now.Location())
		waitDuration := midnight.Sub(now)

		w.logger.Info("scheduled next station refresh", "at", midnight, "in", waitDuration)

		select {
		case <-ctx.Done():
			return
		case <-time.After(waitDuration):
			w.logger.Info("midnight station refresh starting")
			if err := w.stations.Reload(ctx); err != nil {
				w.logger.Error("midnight station refresh failed", "error", err)
			}
		}
	}
}
