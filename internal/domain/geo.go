package domain

import "fmt"

// Coordinate is a latitude/longitude pair in degrees
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%.6f,%.6f)", c.Lat, c.Lon)
}

// BoundingBox represents a geographic rectangle
type BoundingBox struct {
	MinLat float64 `json:"minLat" yaml:"minLat" validate:"gte=-90,lte=90"`
	MaxLat float64 `json:"maxLat" yaml:"maxLat" validate:"gte=-90,lte=90,gtefield=MinLat"`
	MinLon float64 `json:"minLon" yaml:"minLon" validate:"gte=-180,lte=180"`
	MaxLon float64 `json:"maxLon" yaml:"maxLon" validate:"gte=-180,lte=180,gtefield=MinLon"`
}

// Contains checks if a point is within the bounding box
func (bb *BoundingBox) Contains(lat, lon float64) bool {
	return lat >= bb.MinLat && lat <= bb.MaxLat &&
		lon >= bb.MinLon && lon <= bb.MaxLon
}

func (bb *BoundingBox) ContainsCoordinate(c Coordinate) bool {
	return bb.Contains(c.Lat, c.Lon)
}
