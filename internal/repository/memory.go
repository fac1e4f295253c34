package repository

import (
	"context"
	"sync"
	"time"

	"trainfinder/internal/domain"
	"trainfinder/internal/store"
)

// MemoryStations serves a fixed station list
type MemoryStations struct {
	store *store.StationStore
}

func NewMemoryStations(stations ...*domain.Station) *MemoryStations {
	s := store.NewStationStore()
	s.Replace(stations)
	return &MemoryStations{store: s}
}

func (m *MemoryStations) Stations() []*domain.Station {
	return m.store.All()
}

func (m *MemoryStations) ByCode(code string) (*domain.Station, bool) {
	return m.store.ByCode(code)
}

func (m *MemoryStations) ByName(name string) (*domain.Station, bool) {
	return m.store.ByName(name)
}

// Reload is a no-op so the fake can stand in where a reloadable repository
// is expected
func (m *MemoryStations) Reload(context.Context) error {
	return nil
}

// MemoryDepartures serves departure boards set up front and records how often
// each station was asked for
type MemoryDepartures struct {
	mu     sync.Mutex
	boards map[string][]domain.Departure
	errs   map[string]error
	calls  map[string]int
}

func NewMemoryDepartures() *MemoryDepartures {
	return &MemoryDepartures{
		boards: make(map[string][]domain.Departure),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

func (m *MemoryDepartures) Set(stationCode string, departures ...domain.Departure) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boards[stationCode] = departures
	delete(m.errs, stationCode)
}

func (m *MemoryDepartures) SetError(stationCode string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[stationCode] = err
}

func (m *MemoryDepartures) DeparturesAt(_ context.Context, station *domain.Station) ([]domain.Departure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[station.Code]++
	if err := m.errs[station.Code]; err != nil {
		return nil, err
	}
	board := m.boards[station.Code]
	result := make([]domain.Departure, len(board))
	copy(result, board)
	return result, nil
}

func (m *MemoryDepartures) Calls(stationCode string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[stationCode]
}

type AdviceRequest struct {
	From     string
	To       string
	At       time.Time
	TimeType domain.TimeType
}

// MemoryTravelAdvice answers travel advice requests by station pair
type MemoryTravelAdvice struct {
	mu       sync.Mutex
	advice   map[[2]string]*domain.TravelAdvice
	err      error
	requests []AdviceRequest
}

func NewMemoryTravelAdvice() *MemoryTravelAdvice {
	return &MemoryTravelAdvice{advice: make(map[[2]string]*domain.TravelAdvice)}
}

func (m *MemoryTravelAdvice) Set(fromCode, toCode string, advice *domain.TravelAdvice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advice[[2]string{fromCode, toCode}] = advice
}

func (m *MemoryTravelAdvice) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MemoryTravelAdvice) Advice(_ context.Context, from, to *domain.Station, at time.Time, timeType domain.TimeType) (*domain.TravelAdvice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, AdviceRequest{From: from.Code, To: to.Code, At: at, TimeType: timeType})
	if m.err != nil {
		return nil, m.err
	}
	if advice, ok := m.advice[[2]string{from.Code, to.Code}]; ok {
		return advice, nil
	}
	return &domain.TravelAdvice{}, nil
}

func (m *MemoryTravelAdvice) Requests() []AdviceRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]AdviceRequest, len(m.requests))
	copy(result, m.requests)
	return result
}
