package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trainfinder/internal/domain"
	"trainfinder/internal/rides"
)

var (
	utrecht    = &domain.Station{Code: "UT", ShortName: "Utrecht"}
	amersfoort = &domain.Station{Code: "AMF", ShortName: "Amersfoort"}
	zwolle     = &domain.Station{Code: "ZL", ShortName: "Zwolle"}
	groningen  = &domain.Station{Code: "GN", ShortName: "Groningen"}
)

func at(hour, minute int) time.Time {
	return time.Date(2024, 3, 5, hour, minute, 0, 0, time.UTC)
}

type rideStop struct {
	station *domain.Station
	time    time.Time
	delay   time.Duration
}

func trackerWith(destination *domain.Station, stops ...rideStop) *rides.Tracker {
	tr := rides.NewTracker(8*time.Hour, 0, nil)
	for _, s := range stops {
		d := domain.Departure{
			Station:          s.station,
			FinalDestination: destination,
			RideNumber:       "3500",
			DepartureTime:    s.time,
			Delay:            s.delay,
		}
		tr.FindOrCreateRide(d).AddStop(d.Stop())
	}
	return tr
}

func polledScheduler(source RideSource, polledAt time.Time, stations ...*domain.Station) *RefreshScheduler {
	s := New(source, Config{}, nil)
	for _, st := range stations {
		s.RecordPoll(st, polledAt, 10)
	}
	return s
}

func TestIsWorthUpdating_NeverPolled(t *testing.T) {
	s := New(trackerWith(nil), Config{}, nil)
	assert.True(t, s.IsWorthUpdating(utrecht, at(10, 0)))
}

func TestIsWorthUpdating_QuietAfterPoll(t *testing.T) {
	s := polledScheduler(trackerWith(nil), at(10, 0), utrecht)
	assert.False(t, s.IsWorthUpdating(utrecht, at(10, 0)))
	assert.False(t, s.IsWorthUpdating(utrecht, at(10, 59)))
	// stale after the maximum staleness window
	assert.True(t, s.IsWorthUpdating(utrecht, at(11, 1)))
}

func TestIsWorthUpdating_Demand(t *testing.T) {
	tracker := trackerWith(zwolle,
		rideStop{station: utrecht, time: at(10, 0)},
		rideStop{station: amersfoort, time: at(10, 20), delay: 3 * time.Minute},
		rideStop{station: zwolle, time: at(11, 0)},
	)

	tests := []struct {
		name    string
		station *domain.Station
		now     time.Time
		want    bool
	}{
		{name: "first stop about to depart", station: utrecht, now: at(9, 57), want: true},
		{name: "first stop far ahead", station: utrecht, now: at(9, 50), want: false},
		{name: "first stop already departed", station: utrecht, now: at(10, 1), want: false},
		{name: "train leaving previous stop", station: amersfoort, now: at(9, 56), want: true},
		{name: "previous stop too far ahead", station: amersfoort, now: at(9, 50), want: false},
		{name: "delay keeps station open", station: amersfoort, now: at(10, 21), want: true},
		{name: "delayed departure passed", station: amersfoort, now: at(10, 24), want: false},
		{name: "destination is never polled for arrivals", station: zwolle, now: at(10, 20), want: false},
		{name: "station without rides", station: groningen, now: at(10, 0), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := polledScheduler(tracker, tt.now.Add(-time.Minute), tt.station)
			assert.Equal(t, tt.want, s.IsWorthUpdating(tt.station, tt.now))
		})
	}
}

func TestRecordPoll_EmptyPollSkipsStation(t *testing.T) {
	tracker := trackerWith(zwolle,
		rideStop{station: utrecht, time: at(10, 0)},
		rideStop{station: amersfoort, time: at(10, 20)},
	)
	s := New(tracker, Config{SkipDuration: 30 * time.Minute}, nil)

	s.RecordPoll(amersfoort, at(9, 50), 0)
	last, ok := s.LastUpdate(amersfoort)
	require.True(t, ok)
	assert.Equal(t, at(9, 50), last)
	until, ok := s.SkippedUntil(amersfoort)
	require.True(t, ok)
	assert.Equal(t, at(10, 20), until)

	// demand exists but the skip window wins
	assert.False(t, s.IsWorthUpdating(amersfoort, at(9, 58)))

	// a shorter window never shortens an existing one
	s.RecordPoll(amersfoort, at(9, 40), 0)
	until, _ = s.SkippedUntil(amersfoort)
	assert.Equal(t, at(10, 20), until)
}

func TestSelect(t *testing.T) {
	tracker := trackerWith(zwolle,
		rideStop{station: utrecht, time: at(10, 0)},
		rideStop{station: amersfoort, time: at(10, 20)},
		rideStop{station: zwolle, time: at(11, 0)},
	)
	s := polledScheduler(tracker, at(9, 55), utrecht, amersfoort, zwolle)

	selected := s.Select([]*domain.Station{utrecht, amersfoort, zwolle, groningen}, at(9, 58))
	codes := make([]string, len(selected))
	for i, st := range selected {
		codes[i] = st.Code
	}
	assert.Equal(t, []string{"UT", "AMF", "GN"}, codes)
}

func TestCleanup(t *testing.T) {
	s := New(trackerWith(nil), Config{}, nil)
	s.RecordPoll(utrecht, at(9, 0), 0)
	s.RecordPoll(amersfoort, at(9, 30), 0)

	assert.Equal(t, 1, s.Cleanup(at(10, 15)))
	_, ok := s.SkippedUntil(utrecht)
	assert.False(t, ok)
	_, ok = s.SkippedUntil(amersfoort)
	assert.True(t, ok)
}
