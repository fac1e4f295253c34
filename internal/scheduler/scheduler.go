// Package scheduler decides which stations are worth polling for departures.
package scheduler

import (
	"log/slog"
	"sync"
	"time"

	"trainfinder/internal/domain"
	"trainfinder/internal/rides"
)

const (
	DefaultSkipDuration = 60 * time.Minute
	DefaultMaxStaleness = 60 * time.Minute
	DefaultLookAhead    = 5 * time.Minute
)

// RideSource provides the currently tracked rides
type RideSource interface {
	Rides() []*rides.Ride
}

type Config struct {
	// SkipDuration is how long a station that returned no departures is left alone
	SkipDuration time.Duration
	// MaxStaleness forces a poll when a station was last polled longer ago
	MaxStaleness time.Duration
	// LookAhead is how soon a train must reach the previous stop for a station to be polled
	LookAhead time.Duration
}

type refreshState struct {
	lastUpdate time.Time
	skipUntil  time.Time
}

// RefreshScheduler keeps the refresh state per station
type RefreshScheduler struct {
	mu     sync.Mutex
	states map[string]*refreshState

	rides  RideSource
	cfg    Config
	logger *slog.Logger
}

func New(source RideSource, cfg Config, logger *slog.Logger) *RefreshScheduler {
	if cfg.SkipDuration <= 0 {
		cfg.SkipDuration = DefaultSkipDuration
	}
	if cfg.MaxStaleness <= 0 {
		cfg.MaxStaleness = DefaultMaxStaleness
	}
	if cfg.LookAhead <= 0 {
		cfg.LookAhead = DefaultLookAhead
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RefreshScheduler{
		states: make(map[string]*refreshState),
		rides:  source,
		cfg:    cfg,
		logger: logger.With("component", "scheduler"),
	}
}

// IsWorthUpdating reports whether station should be polled at now
func (s *RefreshScheduler) IsWorthUpdating(station *domain.Station, now time.Time) bool {
	return s.worthUpdating(station, now, func() map[string]string {
		return s.demand(now)
	})
}

// Select filters stations down to those worth polling at now
func (s *RefreshScheduler) Select(stations []*domain.Station, now time.Time) []*domain.Station {
	var demand map[string]string
	lazyDemand := func() map[string]string {
		if demand == nil {
			demand = s.demand(now)
		}
		return demand
	}

	var selected []*domain.Station
	for _, station := range stations {
		if s.worthUpdating(station, now, lazyDemand) {
			selected = append(selected, station)
		}
	}
	return selected
}

func (s *RefreshScheduler) worthUpdating(station *domain.Station, now time.Time, demand func() map[string]string) bool {
	s.mu.Lock()
	st, ok := s.states[station.Code]
	var lastUpdate, skipUntil time.Time
	if ok {
		lastUpdate, skipUntil = st.lastUpdate, st.skipUntil
	}
	s.mu.Unlock()

	if !ok || lastUpdate.Before(now.Add(-s.cfg.MaxStaleness)) {
		return true
	}
	if !skipUntil.IsZero() && !skipUntil.Before(now) {
		return false
	}

	ride, ok := demand()[station.Code]
	if ok {
		s.logger.Debug("station worth updating", "station", station.Code, "ride", ride)
	}
	return ok
}

// demand maps the codes of stations a train is about to reach to the ride
// number of that train
func (s *RefreshScheduler) demand(now time.Time) map[string]string {
	horizon := now.Add(s.cfg.LookAhead)
	result := make(map[string]string)

	for _, ride := range s.rides.Rides() {
		stops := ride.Stops()
		for i, stop := range stops {
			if domain.SameStation(stop.Station, ride.Destination()) {
				continue
			}
			if !stop.ActualDeparture().After(now) {
				continue
			}
			approaching := stop.ActualDeparture()
			if i > 0 {
				approaching = stops[i-1].ActualDeparture()
			}
			if approaching.Before(horizon) {
				result[stop.Station.Code] = ride.Number()
			}
		}
	}
	return result
}

// RecordPoll stores the outcome of polling station. A poll that returned no
// departures, or failed, disables the station for the skip duration.
func (s *RefreshScheduler) RecordPoll(station *domain.Station, now time.Time, departures int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[station.Code]
	if !ok {
		st = &refreshState{}
		s.states[station.Code] = st
	}
	st.lastUpdate = now

	if departures == 0 {
		until := now.Add(s.cfg.SkipDuration)
		if until.After(st.skipUntil) {
			st.skipUntil = until
		}
	}
}

// LastUpdate returns when station was last polled
func (s *RefreshScheduler) LastUpdate(station *domain.Station) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[station.Code]
	if !ok {
		return time.Time{}, false
	}
	return st.lastUpdate, true
}

// SkippedUntil returns the time before which station is not polled
func (s *RefreshScheduler) SkippedUntil(station *domain.Station) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[station.Code]
	if !ok || st.skipUntil.IsZero() {
		return time.Time{}, false
	}
	return st.skipUntil, true
}

// Cleanup clears skip windows that have passed and returns how many were cleared
func (s *RefreshScheduler) Cleanup(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleared := 0
	for _, st := range s.states {
		if !st.skipUntil.IsZero() && st.skipUntil.Before(now) {
			st.skipUntil = time.Time{}
			cleared++
		}
	}
	return cleared
}
