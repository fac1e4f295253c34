package domain

import "time"

// Departure is one observed departure from a station's departure board
type Departure struct {
	Station          *Station
	FinalDestination *Station
	RideNumber       string
	DepartureTime    time.Time
	Delay            time.Duration
	Track            string
	Carrier          string
	TrainType        string
}

// RideStop is one scheduled stop within a ride
type RideStop struct {
	Station       *Station      `json:"station"`
	DepartureTime time.Time     `json:"departureTime"`
	Delay         time.Duration `json:"delay"`
	Track         string        `json:"track,omitempty"`
}

// ScheduledDeparture returns the timetable departure
func (s RideStop) ScheduledDeparture() time.Time {
	return s.DepartureTime
}

// ActualDeparture is the scheduled departure adjusted by the delay
func (s RideStop) ActualDeparture() time.Time {
	return s.DepartureTime.Add(s.Delay)
}

func (d Departure) Stop() RideStop {
	return RideStop{
		Station:       d.Station,
		DepartureTime: d.DepartureTime,
		Delay:         d.Delay,
		Track:         d.Track,
	}
}
