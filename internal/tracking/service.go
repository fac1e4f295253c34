// Package tracking estimates where the tracked rides are right now.
package tracking

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"time"

	"trainfinder/internal/domain"
	"trainfinder/internal/geo"
	"trainfinder/internal/railgraph"
	"trainfinder/internal/rides"
	"trainfinder/internal/routing"
)

type RideSource interface {
	Rides() []*rides.Ride
}

type RailwayFinder interface {
	Railway(ctx context.Context, from, to *domain.Station) (*railgraph.Railway, error)
}

// NearestConfig weighs distance against heading when ranking trains for a
// traveller
type NearestConfig struct {
	DistanceSigma  float64 `yaml:"distanceSigma" validate:"gt=0"`
	BearingSigma   float64 `yaml:"bearingSigma" validate:"gt=0"`
	PositionWeight float64 `yaml:"positionWeight" validate:"gte=0"`
	BearingWeight  float64 `yaml:"bearingWeight" validate:"gte=0"`
}

func DefaultNearestConfig() NearestConfig {
	return NearestConfig{
		DistanceSigma:  2000,
		BearingSigma:   45,
		PositionWeight: 0.7,
		BearingWeight:  0.3,
	}
}

type Service struct {
	rides   RideSource
	router  RailwayFinder
	nearest NearestConfig
	now     func() time.Time
	logger  *slog.Logger
}

func NewService(source RideSource, router RailwayFinder, nearest NearestConfig, logger *slog.Logger) *Service {
	if nearest.PositionWeight+nearest.BearingWeight <= 0 {
		nearest = DefaultNearestConfig()
	}
	return &Service{
		rides:   source,
		router:  router,
		nearest: nearest,
		now:     time.Now,
		logger:  logger.With("component", "tracking"),
	}
}

// CurrentTrains estimates the position of every ride that has left its first
// known stop and not yet left its last one. Rides without a railway between
// their current stops are left out.
func (s *Service) CurrentTrains(ctx context.Context) []*domain.Train {
	now := s.now()

	var trains []*domain.Train
	for _, ride := range s.rides.Rides() {
		if ctx.Err() != nil {
			break
		}
		train, ok := s.estimate(ctx, ride, now)
		if ok {
			trains = append(trains, train)
		}
	}

	sort.Slice(trains, func(i, j int) bool { return trains[i].Key < trains[j].Key })
	return trains
}

func (s *Service) CurrentTrainsInBounds(ctx context.Context, bb domain.BoundingBox) []*domain.Train {
	all := s.CurrentTrains(ctx)
	result := all[:0]
	for _, t := range all {
		if bb.ContainsCoordinate(t.Position) {
			result = append(result, t)
		}
	}
	return result
}

func (s *Service) estimate(ctx context.Context, ride *rides.Ride, now time.Time) (*domain.Train, bool) {
	first, ok := ride.FirstStop()
	if !ok {
		return nil, false
	}
	last, _ := ride.LastStop()
	if now.Before(first.ActualDeparture()) || !now.Before(last.ActualDeparture()) {
		return nil, false
	}

	prev, okPrev := ride.ActualPreviousStop(now)
	next, okNext := ride.ActualNextStop(now)
	if !okPrev || !okNext {
		s.logger.Warn("previous or next stop not found", "ride", ride.Key().String(), "at", now)
		return nil, false
	}

	railway, err := s.router.Railway(ctx, prev.Station, next.Station)
	if err != nil {
		if errors.Is(err, routing.ErrPathNotFound) {
			s.logger.Warn("no railway for ride",
				"ride", ride.Key().String(),
				"from", prev.Station.Code,
				"to", next.Station.Code,
				"error", err,
			)
		} else if ctx.Err() == nil {
			s.logger.Error("railway lookup failed", "ride", ride.Key().String(), "error", err)
		}
		return nil, false
	}

	f := progress(prev.ActualDeparture(), next.ActualDeparture(), now)
	pos, bearing := railway.PositionAndBearingAt(f)

	var destination string
	if d := ride.Destination(); d != nil {
		destination = d.Code
	}

	return &domain.Train{
		Key:             ride.Key().String(),
		RideCode:        ride.Number(),
		Carrier:         ride.Carrier(),
		TrainType:       ride.TrainType(),
		DestinationCode: destination,
		Position:        pos,
		Bearing:         geo.BearingDegrees(bearing),
		Progress:        f,
		PreviousStop:    trainStop(prev),
		NextStop:        trainStop(next),
		UpdatedAt:       now,
	}, true
}

// progress is the elapsed share of the time between two departures
func progress(from, to, now time.Time) float64 {
	total := to.Sub(from)
	if total <= 0 {
		return 1
	}
	f := float64(now.Sub(from)) / float64(total)
	return math.Min(math.Max(f, 0), 1)
}

func trainStop(stop domain.RideStop) domain.TrainStop {
	return domain.TrainStop{
		StationCode:      stop.Station.Code,
		StationName:      stop.Station.LongName,
		Position:         stop.Station.Position,
		PlannedDeparture: stop.ScheduledDeparture(),
		ActualDeparture:  stop.ActualDeparture(),
		Track:            stop.Track,
	}
}

// ScoredTrain is a train ranked by how plausible it is that a traveller at a
// given position is on board
type ScoredTrain struct {
	Train          *domain.Train `json:"train"`
	Score          float64       `json:"score"`
	DistanceMeters float64       `json:"distanceMeters"`
}

// NearestTrains ranks the current trains for a traveller at pos heading in
// bearing degrees, most plausible first. A NaN bearing ranks on distance only.
func (s *Service) NearestTrains(ctx context.Context, pos domain.Coordinate, bearing float64, limit int) []ScoredTrain {
	trains := s.CurrentTrains(ctx)

	scored := make([]ScoredTrain, 0, len(trains))
	for _, t := range trains {
		dist := geo.Distance(pos, t.Position)
		scored = append(scored, ScoredTrain{
			Train:          t,
			Score:          s.nearest.Plausibility(dist, bearing, t.Bearing),
			DistanceMeters: dist,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].DistanceMeters < scored[j].DistanceMeters
	})
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

// Plausibility scores a train in [0, 1] from its distance in metres and the
// difference between the traveller's and the train's heading
func (c NearestConfig) Plausibility(distance, travellerBearing, trainBearing float64) float64 {
	pd := gaussian(distance, c.DistanceSigma)
	if math.IsNaN(travellerBearing) || c.BearingWeight == 0 {
		return pd
	}
	pb := gaussian(geo.BearingDifference(travellerBearing, trainBearing), c.BearingSigma)
	return (c.PositionWeight*pd + c.BearingWeight*pb) / (c.PositionWeight + c.BearingWeight)
}

// gaussian is the normal density around zero scaled so that x=0 yields 1
func gaussian(x, sigma float64) float64 {
	return math.Exp(-(x * x) / (2 * sigma * sigma))
}
