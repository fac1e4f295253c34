// Package rides tracks physical train journeys and the stops observed for them.
package rides

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"trainfinder/internal/domain"
)

// DateLayout is the layout of Key.Date
const DateLayout = "2006-01-02"

// Key identifies a ride. A ride number is reused every day, so the start date
// is part of the key.
type Key struct {
	Date   string
	Number string
}

// NewKey builds the key for a ride starting at t, using the calendar date in t's own offset
func NewKey(t time.Time, number string) Key {
	return Key{Date: t.Format(DateLayout), Number: number}
}

func (k Key) String() string {
	return k.Date + "/" + k.Number
}

// Ride is one physical train journey. Its stop list can be read concurrently
// with AddStop: readers always see a complete, sorted snapshot.
type Ride struct {
	key         Key
	destination *domain.Station
	carrier     string
	trainType   string

	mu        sync.Mutex
	stops     atomic.Pointer[[]domain.RideStop]
	finalStop atomic.Bool
}

func newRide(key Key, destination *domain.Station, carrier, trainType string) *Ride {
	r := &Ride{
		key:         key,
		destination: destination,
		carrier:     carrier,
		trainType:   trainType,
	}
	empty := []domain.RideStop{}
	r.stops.Store(&empty)
	return r
}

func (r *Ride) Key() Key { return r.key }

func (r *Ride) Number() string { return r.key.Number }

// Destination returns the final station of the ride, nil while unknown
func (r *Ride) Destination() *domain.Station { return r.destination }

func (r *Ride) Carrier() string { return r.carrier }

func (r *Ride) TrainType() string { return r.trainType }

// FinalStopResolved reports whether the stops up to the destination were
// already filled in from travel advice
func (r *Ride) FinalStopResolved() bool { return r.finalStop.Load() }

func (r *Ride) MarkFinalStopResolved() { r.finalStop.Store(true) }

// Stops returns the current snapshot of stops ordered by scheduled departure.
// The slice is shared and must not be modified.
func (r *Ride) Stops() []domain.RideStop {
	return *r.stops.Load()
}

// AddStop records a stop. A stop for a station that is already known replaces
// the old one.
func (r *Ride) AddStop(stop domain.RideStop) {
	if stop.Station == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := *r.stops.Load()
	next := slices.Clone(current)

	existing := slices.IndexFunc(next, func(s domain.RideStop) bool {
		return domain.SameStation(s.Station, stop.Station)
	})
	if existing >= 0 {
		if next[existing].DepartureTime.Equal(stop.DepartureTime) {
			next[existing] = stop
			r.stops.Store(&next)
			return
		}
		next = slices.Delete(next, existing, existing+1)
	}

	idx := nextStopIndex(next, stop.DepartureTime, domain.RideStop.ScheduledDeparture)
	next = slices.Insert(next, idx, stop)
	r.stops.Store(&next)
}

// nextStopIndex returns the index of the first stop departing after t
func nextStopIndex(stops []domain.RideStop, t time.Time, departure func(domain.RideStop) time.Time) int {
	for i, s := range stops {
		if departure(s).After(t) {
			return i
		}
	}
	return len(stops)
}

func (r *Ride) FirstStop() (domain.RideStop, bool) {
	stops := r.Stops()
	if len(stops) == 0 {
		return domain.RideStop{}, false
	}
	return stops[0], true
}

func (r *Ride) LastStop() (domain.RideStop, bool) {
	stops := r.Stops()
	if len(stops) == 0 {
		return domain.RideStop{}, false
	}
	return stops[len(stops)-1], true
}

// StopAt returns the stop at station and its index
func (r *Ride) StopAt(station *domain.Station) (domain.RideStop, int, bool) {
	for i, s := range r.Stops() {
		if domain.SameStation(s.Station, station) {
			return s, i, true
		}
	}
	return domain.RideStop{}, -1, false
}

// StopBefore returns the stop preceding the stop at station
func (r *Ride) StopBefore(station *domain.Station) (domain.RideStop, bool) {
	stops := r.Stops()
	for i, s := range stops {
		if domain.SameStation(s.Station, station) {
			if i == 0 {
				return domain.RideStop{}, false
			}
			return stops[i-1], true
		}
	}
	return domain.RideStop{}, false
}

// StopAfter returns the stop following the stop at station
func (r *Ride) StopAfter(station *domain.Station) (domain.RideStop, bool) {
	stops := r.Stops()
	for i, s := range stops {
		if domain.SameStation(s.Station, station) {
			if i+1 >= len(stops) {
				return domain.RideStop{}, false
			}
			return stops[i+1], true
		}
	}
	return domain.RideStop{}, false
}

// PreviousStop returns the last stop with a scheduled departure at or before t
func (r *Ride) PreviousStop(t time.Time) (domain.RideStop, bool) {
	return previousStop(r.Stops(), t, domain.RideStop.ScheduledDeparture)
}

// NextStop returns the first stop with a scheduled departure after t
func (r *Ride) NextStop(t time.Time) (domain.RideStop, bool) {
	return nextStop(r.Stops(), t, domain.RideStop.ScheduledDeparture)
}

// ActualPreviousStop is PreviousStop using delay-adjusted departures
func (r *Ride) ActualPreviousStop(t time.Time) (domain.RideStop, bool) {
	return previousStop(r.Stops(), t, domain.RideStop.ActualDeparture)
}

// ActualNextStop is NextStop using delay-adjusted departures
func (r *Ride) ActualNextStop(t time.Time) (domain.RideStop, bool) {
	return nextStop(r.Stops(), t, domain.RideStop.ActualDeparture)
}

func previousStop(stops []domain.RideStop, t time.Time, departure func(domain.RideStop) time.Time) (domain.RideStop, bool) {
	idx := nextStopIndex(stops, t, departure)
	if idx == 0 {
		return domain.RideStop{}, false
	}
	return stops[idx-1], true
}

func nextStop(stops []domain.RideStop, t time.Time, departure func(domain.RideStop) time.Time) (domain.RideStop, bool) {
	idx := nextStopIndex(stops, t, departure)
	if idx == len(stops) {
		return domain.RideStop{}, false
	}
	return stops[idx], true
}

func (r *Ride) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ride %s on %s to %s", r.key.Number, r.key.Date, r.destination)
	for i, s := range r.Stops() {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(s.Station.String())
		b.WriteString(" ")
		b.WriteString(s.DepartureTime.Format("15:04"))
		if s.Delay != 0 {
			fmt.Fprintf(&b, "+%s", s.Delay)
		}
	}
	return b.String()
}
