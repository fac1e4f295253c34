package store

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/tidwall/rtree"

	"trainfinder/internal/domain"
	"trainfinder/internal/geo"
)

const metersPerDegreeLat = geo.EarthRadius * math.Pi / 180

// StationStore holds the station reference list with lookups by code, by
// simplified name and by position. Returned stations are shared and must not
// be modified.
type StationStore struct {
	mu       sync.RWMutex
	stations []*domain.Station
	byCode   map[string]*domain.Station
	byName   map[string]*domain.Station
	tree     *rtree.RTree

	lastUpdate time.Time
}

func NewStationStore() *StationStore {
	return &StationStore{
		byCode: make(map[string]*domain.Station),
		byName: make(map[string]*domain.Station),
		tree:   &rtree.RTree{},
	}
}

// Replace swaps in a new station list
func (s *StationStore) Replace(stations []*domain.Station) {
	sorted := make([]*domain.Station, len(stations))
	copy(sorted, stations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Code < sorted[j].Code })

	byCode := make(map[string]*domain.Station, len(sorted))
	byName := make(map[string]*domain.Station, len(sorted)*2)
	tree := &rtree.RTree{}

	for _, st := range sorted {
		byCode[st.Code] = st
		point := [2]float64{st.Position.Lat, st.Position.Lon}
		tree.Insert(point, point, st)
	}
	// short names win over longer names of other stations
	for _, names := range []func(*domain.Station) string{
		func(st *domain.Station) string { return st.LongName },
		func(st *domain.Station) string { return st.MediumName },
		func(st *domain.Station) string { return st.ShortName },
	} {
		for _, st := range sorted {
			if key := domain.SimplifyName(names(st)); key != "" {
				byName[key] = st
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stations = sorted
	s.byCode = byCode
	s.byName = byName
	s.tree = tree
	s.lastUpdate = time.Now()
}

// All returns the stations ordered by code
func (s *StationStore) All() []*domain.Station {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*domain.Station, len(s.stations))
	copy(result, s.stations)
	return result
}

func (s *StationStore) ByCode(code string) (*domain.Station, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.byCode[code]
	return st, ok
}

// ByName finds a station by its short, medium or long name, ignoring case,
// accents and punctuation
func (s *StationStore) ByName(name string) (*domain.Station, bool) {
	key := domain.SimplifyName(name)
	if key == "" {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.byName[key]
	return st, ok
}

func (s *StationStore) InBounds(bb domain.BoundingBox) []*domain.Station {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return searchBox(s.tree, min(bb.MinLat, bb.MaxLat), min(bb.MinLon, bb.MaxLon), max(bb.MinLat, bb.MaxLat), max(bb.MinLon, bb.MaxLon))
}

func searchBox(tree *rtree.RTree, minLat, minLon, maxLat, maxLon float64) []*domain.Station {
	var result []*domain.Station
	tree.Search(
		[2]float64{minLat, minLon},
		[2]float64{maxLat, maxLon},
		func(_, _ [2]float64, data any) bool {
			if st, ok := data.(*domain.Station); ok {
				result = append(result, st)
			}
			return true
		},
	)
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result
}

// Nearest returns up to limit stations closest to pos, nearest first
func (s *StationStore) Nearest(pos domain.Coordinate, limit int) []*domain.Station {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || len(s.stations) == 0 {
		return nil
	}
	if limit > len(s.stations) {
		limit = len(s.stations)
	}

	type hit struct {
		station *domain.Station
		dist    float64
	}

	// grow a search box until it provably holds the nearest stations
	for half := 0.05; ; half *= 2 {
		minLat, maxLat := math.Max(pos.Lat-half, -90), math.Min(pos.Lat+half, 90)
		candidates := searchBox(s.tree, minLat, pos.Lon-half, maxLat, pos.Lon+half)

		hits := make([]hit, len(candidates))
		for i, st := range candidates {
			hits[i] = hit{station: st, dist: geo.Distance(pos, st.Position)}
		}
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })

		covered := half >= 180
		if !covered && len(hits) >= limit {
			cosLat := math.Cos(math.Max(math.Abs(pos.Lat)+half, 0) * math.Pi / 180)
			inscribed := half * metersPerDegreeLat * math.Max(cosLat, 0)
			covered = hits[limit-1].dist <= inscribed
		}
		if covered {
			if len(hits) > limit {
				hits = hits[:limit]
			}
			result := make([]*domain.Station, len(hits))
			for i, h := range hits {
				result[i] = h.station
			}
			return result
		}
	}
}

func (s *StationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.stations)
}

func (s *StationStore) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}
