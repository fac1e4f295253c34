package rides

import (
	"log/slog"
	"sync"
	"time"

	"trainfinder/internal/domain"
)

const (
	DefaultMaxRideDuration = 8 * time.Hour
	DefaultCleanupInterval = 10 * time.Minute
)

// Tracker maps departures to rides. It is safe for concurrent use.
type Tracker struct {
	mu    sync.RWMutex
	rides map[Key]*Ride

	maxRideDuration time.Duration
	cleanupInterval time.Duration
	lastCleanup     time.Time

	logger *slog.Logger
}

func NewTracker(maxRideDuration, cleanupInterval time.Duration, logger *slog.Logger) *Tracker {
	if maxRideDuration <= 0 {
		maxRideDuration = DefaultMaxRideDuration
	}
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		rides:           make(map[Key]*Ride),
		maxRideDuration: maxRideDuration,
		cleanupInterval: cleanupInterval,
		logger:          logger.With("component", "ride_tracker"),
	}
}

// MaxRideDuration returns the longest journey the tracker assumes
func (t *Tracker) MaxRideDuration() time.Duration {
	return t.maxRideDuration
}

// FindOrCreateRide returns the ride d belongs to, creating it when needed.
//
// A ride that started before midnight is filed under the previous day, and a
// departure seen first from a station after midnight may have filed the ride
// under the next day. Both cases are resolved here.
func (t *Tracker) FindOrCreateRide(d domain.Departure) *Ride {
	t.mu.Lock()
	defer t.mu.Unlock()

	departure := d.DepartureTime
	key := NewKey(departure, d.RideNumber)
	ride := t.rides[key]

	if ride == nil {
		earliestStart := departure.Add(-t.maxRideDuration)
		if earliestKey := NewKey(earliestStart, d.RideNumber); earliestKey.Date != key.Date {
			if candidate, ok := t.rides[earliestKey]; ok {
				first, hasStops := candidate.FirstStop()
				if !hasStops || !first.DepartureTime.Before(earliestStart) {
					ride = candidate
				}
			}
		}
	}

	if ride == nil {
		latestEnd := departure.Add(t.maxRideDuration)
		if latestKey := NewKey(latestEnd, d.RideNumber); latestKey.Date != key.Date {
			if misfiled, ok := t.rides[latestKey]; ok {
				if last, hasStops := misfiled.LastStop(); hasStops && last.DepartureTime.Before(latestEnd) {
					destination := misfiled.destination
					if destination == nil {
						destination = d.FinalDestination
					}
					ride = newRide(key, destination, firstNonEmpty(misfiled.carrier, d.Carrier), firstNonEmpty(misfiled.trainType, d.TrainType))
					stops := misfiled.Stops()
					ride.stops.Store(&stops)
					ride.finalStop.Store(misfiled.FinalStopResolved())
					delete(t.rides, latestKey)
					t.rides[key] = ride
					t.logger.Debug("moved misfiled ride", "from", latestKey.String(), "to", key.String())
				}
			}
		}
	}

	if ride == nil {
		ride = newRide(key, d.FinalDestination, d.Carrier, d.TrainType)
		t.rides[key] = ride
	}

	if ride.destination == nil && d.FinalDestination != nil {
		resolved := newRide(ride.key, d.FinalDestination, firstNonEmpty(ride.carrier, d.Carrier), firstNonEmpty(ride.trainType, d.TrainType))
		stops := ride.Stops()
		resolved.stops.Store(&stops)
		t.rides[ride.key] = resolved
		ride = resolved
	}

	return ride
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Get returns the ride stored under key
func (t *Tracker) Get(key Key) (*Ride, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rides[key]
	return r, ok
}

// Rides returns a snapshot of all tracked rides
func (t *Tracker) Rides() []*Ride {
	t.mu.RLock()
	defer t.mu.RUnlock()
	result := make([]*Ride, 0, len(t.rides))
	for _, r := range t.rides {
		result = append(result, r)
	}
	return result
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rides)
}

// Cleanup removes rides that ended more than the maximum ride duration ago,
// and rides without stops. It does nothing if it ran less than the cleanup
// interval ago. It returns the number of removed rides.
func (t *Tracker) Cleanup(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.lastCleanup.IsZero() && now.Sub(t.lastCleanup) < t.cleanupInterval {
		return 0
	}
	t.lastCleanup = now

	oldest := now.Add(-t.maxRideDuration)
	removed := 0
	for key, ride := range t.rides {
		last, ok := ride.LastStop()
		if !ok || last.DepartureTime.Before(oldest) {
			delete(t.rides, key)
			removed++
		}
	}
	if removed > 0 {
		t.logger.Debug("removed finished rides", "count", removed, "remaining", len(t.rides))
	}
	return removed
}
