// Package repository holds the station, departure and travel advice sources
// the tracker is fed from. Each has an NS web service adapter and an
// in-memory fake.
package repository

import (
	"context"
	"time"

	"trainfinder/internal/domain"
)

type StationRepository interface {
	Stations() []*domain.Station
	ByCode(code string) (*domain.Station, bool)
	ByName(name string) (*domain.Station, bool)
}

type DeparturesRepository interface {
	DeparturesAt(ctx context.Context, station *domain.Station) ([]domain.Departure, error)
}

type TravelAdviceRepository interface {
	Advice(ctx context.Context, from, to *domain.Station, at time.Time, timeType domain.TimeType) (*domain.TravelAdvice, error)
}

// StationFilter selects the stations whose departure boards are polled
type StationFilter struct {
	BBox    *domain.BoundingBox `yaml:"bbox"`
	Country string              `yaml:"country"`
}

func (f StationFilter) Matches(st *domain.Station) bool {
	if st == nil {
		return false
	}
	if f.Country != "" && st.Country != f.Country {
		return false
	}
	return f.BBox == nil || f.BBox.ContainsCoordinate(st.Position)
}

func (f StationFilter) Apply(stations []*domain.Station) []*domain.Station {
	result := make([]*domain.Station, 0, len(stations))
	for _, st := range stations {
		if f.Matches(st) {
			result = append(result, st)
		}
	}
	return result
}
