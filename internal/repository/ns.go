package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"trainfinder/internal/domain"
	"trainfinder/internal/store"
	"trainfinder/pkg/nsapi"
)

type StationsClient interface {
	Stations(ctx context.Context) ([]nsapi.Station, error)
}

type DeparturesClient interface {
	Departures(ctx context.Context, stationCode string) ([]nsapi.Departure, error)
}

type TravelAdviceClient interface {
	TravelAdvice(ctx context.Context, fromCode, toCode string, at time.Time, departure bool) ([]nsapi.TravelOption, error)
}

// NSStationRepository keeps the NS station list in a StationStore
type NSStationRepository struct {
	client StationsClient
	store  *store.StationStore
	logger *slog.Logger
}

func NewNSStationRepository(client StationsClient, stations *store.StationStore, logger *slog.Logger) *NSStationRepository {
	return &NSStationRepository{
		client: client,
		store:  stations,
		logger: logger.With("component", "station_repository"),
	}
}

// Reload fetches the station list and swaps it in. The previous list is kept
// when the fetch fails.
func (r *NSStationRepository) Reload(ctx context.Context) error {
	raw, err := r.client.Stations(ctx)
	if err != nil {
		return fmt.Errorf("fetching stations: %w", err)
	}

	stations := make([]*domain.Station, 0, len(raw))
	for _, s := range raw {
		if s.Code == "" {
			continue
		}
		stations = append(stations, convertStation(s))
	}
	if len(stations) == 0 {
		return fmt.Errorf("fetching stations: empty station list")
	}

	r.store.Replace(stations)
	r.logger.Info("stations loaded", "count", len(stations))
	return nil
}

func (r *NSStationRepository) Stations() []*domain.Station {
	return r.store.All()
}

func (r *NSStationRepository) ByCode(code string) (*domain.Station, bool) {
	return r.store.ByCode(code)
}

func (r *NSStationRepository) ByName(name string) (*domain.Station, bool) {
	return r.store.ByName(name)
}

func convertStation(s nsapi.Station) *domain.Station {
	return &domain.Station{
		Code:       s.Code,
		ShortName:  s.Names.Short,
		MediumName: s.Names.Medium,
		LongName:   s.Names.Long,
		Position:   domain.Coordinate{Lat: s.Lat, Lon: s.Lon},
		Country:    s.Country,
	}
}

type NSDeparturesRepository struct {
	client   DeparturesClient
	stations StationRepository
	logger   *slog.Logger
}

func NewNSDeparturesRepository(client DeparturesClient, stations StationRepository, logger *slog.Logger) *NSDeparturesRepository {
	return &NSDeparturesRepository{
		client:   client,
		stations: stations,
		logger:   logger.With("component", "departures_repository"),
	}
}

// DeparturesAt returns the departure board of a station. The final
// destination is nil when its name does not match a known station.
func (r *NSDeparturesRepository) DeparturesAt(ctx context.Context, station *domain.Station) ([]domain.Departure, error) {
	raw, err := r.client.Departures(ctx, station.Code)
	if err != nil {
		return nil, fmt.Errorf("fetching departures for %s: %w", station.Code, err)
	}

	departures := make([]domain.Departure, 0, len(raw))
	for _, d := range raw {
		if d.RideNumber == "" || d.DepartureTime.IsZero() {
			continue
		}

		dest, ok := r.stations.ByName(d.Destination)
		if !ok {
			r.logger.Debug("unknown destination", "station", station.Code, "destination", d.Destination)
		}

		departures = append(departures, domain.Departure{
			Station:          station,
			FinalDestination: dest,
			RideNumber:       d.RideNumber,
			DepartureTime:    d.DepartureTime.Time,
			Delay:            d.Delay.Duration,
			Track:            d.Track,
			Carrier:          d.Carrier,
			TrainType:        d.TrainType,
		})
	}
	return departures, nil
}

type NSTravelAdviceRepository struct {
	client   TravelAdviceClient
	stations StationRepository
}

func NewNSTravelAdviceRepository(client TravelAdviceClient, stations StationRepository) *NSTravelAdviceRepository {
	return &NSTravelAdviceRepository{client: client, stations: stations}
}

func (r *NSTravelAdviceRepository) Advice(ctx context.Context, from, to *domain.Station, at time.Time, timeType domain.TimeType) (*domain.TravelAdvice, error) {
	raw, err := r.client.TravelAdvice(ctx, from.Code, to.Code, at, timeType == domain.TimeTypeDeparture)
	if err != nil {
		return nil, fmt.Errorf("fetching travel advice %s -> %s: %w", from.Code, to.Code, err)
	}

	advice := &domain.TravelAdvice{Options: make([]domain.TravelOption, 0, len(raw))}
	for _, o := range raw {
		advice.Options = append(advice.Options, r.convertOption(o))
	}
	return advice, nil
}

func (r *NSTravelAdviceRepository) convertOption(o nsapi.TravelOption) domain.TravelOption {
	opt := domain.TravelOption{
		Transfers:        o.Transfers,
		PlannedDuration:  o.PlannedDuration.Duration,
		ActualDuration:   o.ActualDuration.Duration,
		Optimal:          o.Optimal,
		PlannedDeparture: o.PlannedDeparture.Time,
		ActualDeparture:  o.ActualDeparture.Time,
		PlannedArrival:   o.PlannedArrival.Time,
		ActualArrival:    o.ActualArrival.Time,
		Status:           o.Status,
	}
	for _, n := range o.Notices {
		opt.Notices = append(opt.Notices, domain.TravelNotice{ID: n.ID, Serious: n.Serious, Text: n.Text})
	}
	for _, p := range o.Parts {
		part := domain.TravelPart{
			Carrier:       p.Carrier,
			TransportType: p.TransportType,
			RideNumber:    p.RideNumber,
			Status:        p.Status,
			Stops:         make([]domain.TravelStop, 0, len(p.Stops)),
		}
		for _, s := range p.Stops {
			st, _ := r.stations.ByName(s.Name)
			part.Stops = append(part.Stops, domain.TravelStop{
				Station:        st,
				Name:           s.Name,
				Time:           s.Time.Time,
				DepartureDelay: s.DepartureDelay.Duration,
				Track:          s.Track,
			})
		}
		opt.Parts = append(opt.Parts, part)
	}
	return opt
}
