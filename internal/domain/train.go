package domain

import "time"

// TrainStop describes the stop a train last departed from or is heading to
type TrainStop struct {
	StationCode      string     `json:"stationCode"`
	StationName      string     `json:"stationName"`
	Position         Coordinate `json:"position"`
	PlannedDeparture time.Time  `json:"plannedDeparture"`
	ActualDeparture  time.Time  `json:"actualDeparture"`
	Track            string     `json:"track,omitempty"`
}

// Train is the estimated live state of one ride
type Train struct {
	Key             string     `json:"key"`
	RideCode        string     `json:"rideCode"`
	Carrier         string     `json:"carrier,omitempty"`
	TrainType       string     `json:"trainType,omitempty"`
	DestinationCode string     `json:"destinationCode,omitempty"`
	Position        Coordinate `json:"position"`
	Bearing         float64    `json:"bearing"`
	Progress        float64    `json:"progress"`
	PreviousStop    TrainStop  `json:"previousStop"`
	NextStop        TrainStop  `json:"nextStop"`
	TileID          string     `json:"tileId,omitempty"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// DeltaType indicates whether a train was updated or removed
type DeltaType string

const (
	DeltaUpdate DeltaType = "update"
	DeltaRemove DeltaType = "remove"
)

// TrainDelta represents a change in published train state
type TrainDelta struct {
	Type   DeltaType `json:"type"`
	Train  *Train    `json:"train,omitempty"`
	Key    string    `json:"key,omitempty"`
	TileID string    `json:"tileId"`
}
