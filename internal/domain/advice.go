package domain

import "time"

// TimeType tells the travel planner whether the given time is a departure or an arrival time
type TimeType int

const (
	TimeTypeDeparture TimeType = iota
	TimeTypeArrival
)

type TravelAdvice struct {
	Options []TravelOption
}

type TravelOption struct {
	Notices          []TravelNotice
	Transfers        int
	PlannedDuration  time.Duration
	ActualDuration   time.Duration
	Optimal          bool
	PlannedDeparture time.Time
	ActualDeparture  time.Time
	PlannedArrival   time.Time
	ActualArrival    time.Time
	Status           string
	Parts            []TravelPart
}

type TravelNotice struct {
	ID      string
	Serious bool
	Text    string
}

// TravelPart is a single leg of a travel option, ridden on one train
type TravelPart struct {
	Carrier       string
	TransportType string
	RideNumber    string
	Status        string
	Stops         []TravelStop
}

// TravelStop is a stop within a travel part. Station is nil when the stop name
// could not be resolved.
type TravelStop struct {
	Station        *Station
	Name           string
	Time           time.Time
	DepartureDelay time.Duration
	Track          string
}

// LastStop returns the final stop of the part
func (p TravelPart) LastStop() (TravelStop, bool) {
	if len(p.Stops) == 0 {
		return TravelStop{}, false
	}
	return p.Stops[len(p.Stops)-1], true
}
