package store

import (
	"math"
	"sort"
	"sync"
	"time"

	"trainfinder/internal/domain"
)

type ListOptions struct {
	Carrier string
	Type    string
	BBox    *domain.BoundingBox
}

// TrainStore holds the last published train positions with secondary indices
// by tile, carrier and train type
type TrainStore struct {
	mu        sync.RWMutex
	trains    map[string]*domain.Train
	byTile    map[string]map[string]struct{}
	byCarrier map[string]map[string]struct{}
	byType    map[string]map[string]struct{}

	lastUpdate time.Time
}

func NewTrainStore() *TrainStore {
	return &TrainStore{
		trains:    make(map[string]*domain.Train),
		byTile:    make(map[string]map[string]struct{}),
		byCarrier: make(map[string]map[string]struct{}),
		byType:    make(map[string]map[string]struct{}),
	}
}

// Replace makes trains the complete published set and returns what changed.
// Trains that are no longer present are reported as removals.
func (s *TrainStore) Replace(trains []*domain.Train, now time.Time) []domain.TrainDelta {
	s.mu.Lock()
	defer s.mu.Unlock()

	deltas := make([]domain.TrainDelta, 0, len(trains))
	seen := make(map[string]struct{}, len(trains))

	for _, t := range trains {
		seen[t.Key] = struct{}{}
		t.UpdatedAt = now

		existing, exists := s.trains[t.Key]
		if exists && !hasChanged(existing, t) {
			existing.UpdatedAt = now
			continue
		}
		if exists {
			s.removeFromAllIndices(existing)
			if existing.TileID != t.TileID {
				// clients watching the old tile only would otherwise keep a ghost
				deltas = append(deltas, domain.TrainDelta{
					Type:   domain.DeltaRemove,
					Key:    existing.Key,
					TileID: existing.TileID,
				})
			}
		}

		s.trains[t.Key] = t
		s.addToIndices(t)
		deltas = append(deltas, domain.TrainDelta{
			Type:   domain.DeltaUpdate,
			Train:  t,
			TileID: t.TileID,
		})
	}

	for key, t := range s.trains {
		if _, ok := seen[key]; ok {
			continue
		}
		deltas = append(deltas, domain.TrainDelta{
			Type:   domain.DeltaRemove,
			Key:    key,
			TileID: t.TileID,
		})
		s.removeFromAllIndices(t)
		delete(s.trains, key)
	}

	s.lastUpdate = now
	return deltas
}

func (s *TrainStore) Get(key string) (*domain.Train, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trains[key]
	if !ok {
		return nil, false
	}
	copy := *t
	return &copy, true
}

// List returns copies of the matching trains ordered by key
func (s *TrainStore) List(opts ListOptions) []*domain.Train {
	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := s.getCandidates(opts)

	result := make([]*domain.Train, 0, len(candidates))
	for key := range candidates {
		t := s.trains[key]
		if opts.BBox != nil && !opts.BBox.ContainsCoordinate(t.Position) {
			continue
		}
		copy := *t
		result = append(result, &copy)
	}
	sortTrains(result)
	return result
}

func (s *TrainStore) Snapshot() []*domain.Train {
	return s.List(ListOptions{})
}

func (s *TrainStore) SnapshotForTiles(tileIDs []string) []*domain.Train {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var result []*domain.Train

	for _, tileID := range tileIDs {
		for key := range s.byTile[tileID] {
			if _, exists := seen[key]; exists {
				continue
			}
			seen[key] = struct{}{}
			copy := *s.trains[key]
			result = append(result, &copy)
		}
	}
	sortTrains(result)
	return result
}

func (s *TrainStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trains)
}

func (s *TrainStore) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

func (s *TrainStore) getCandidates(opts ListOptions) map[string]struct{} {
	if opts.Type != "" && opts.Carrier != "" {
		return intersect(s.byType[opts.Type], s.byCarrier[opts.Carrier])
	}
	if opts.Type != "" {
		return copySet(s.byType[opts.Type])
	}
	if opts.Carrier != "" {
		return copySet(s.byCarrier[opts.Carrier])
	}

	result := make(map[string]struct{}, len(s.trains))
	for key := range s.trains {
		result[key] = struct{}{}
	}
	return result
}

func intersect(a, b map[string]struct{}) map[string]struct{} {
	if a == nil || b == nil {
		return make(map[string]struct{})
	}

	smaller, larger := a, b
	if len(a) > len(b) {
		smaller, larger = b, a
	}

	result := make(map[string]struct{})
	for key := range smaller {
		if _, ok := larger[key]; ok {
			result[key] = struct{}{}
		}
	}
	return result
}

func copySet(src map[string]struct{}) map[string]struct{} {
	result := make(map[string]struct{}, len(src))
	for key := range src {
		result[key] = struct{}{}
	}
	return result
}

func addToIndex(index map[string]map[string]struct{}, value, key string) {
	if index[value] == nil {
		index[value] = make(map[string]struct{})
	}
	index[value][key] = struct{}{}
}

func removeFromIndex(index map[string]map[string]struct{}, value, key string) {
	if index[value] != nil {
		delete(index[value], key)
		if len(index[value]) == 0 {
			delete(index, value)
		}
	}
}

func (s *TrainStore) addToIndices(t *domain.Train) {
	addToIndex(s.byTile, t.TileID, t.Key)
	addToIndex(s.byCarrier, t.Carrier, t.Key)
	addToIndex(s.byType, t.TrainType, t.Key)
}

func (s *TrainStore) removeFromAllIndices(t *domain.Train) {
	removeFromIndex(s.byTile, t.TileID, t.Key)
	removeFromIndex(s.byCarrier, t.Carrier, t.Key)
	removeFromIndex(s.byType, t.TrainType, t.Key)
}

func sortTrains(trains []*domain.Train) {
	sort.Slice(trains, func(i, j int) bool { return trains[i].Key < trains[j].Key })
}

func hasChanged(old, new *domain.Train) bool {
	const epsilon = 0.000001

	if old.Carrier != new.Carrier || old.TrainType != new.TrainType ||
		old.DestinationCode != new.DestinationCode || old.TileID != new.TileID {
		return true
	}
	if !sameStop(old.PreviousStop, new.PreviousStop) || !sameStop(old.NextStop, new.NextStop) {
		return true
	}

	if math.Abs(old.Position.Lat-new.Position.Lat) > epsilon ||
		math.Abs(old.Position.Lon-new.Position.Lon) > epsilon {
		return true
	}

	return math.Abs(old.Bearing-new.Bearing) > 0.01
}

func sameStop(a, b domain.TrainStop) bool {
	return a.StationCode == b.StationCode && a.Track == b.Track &&
		a.PlannedDeparture.Equal(b.PlannedDeparture) &&
		a.ActualDeparture.Equal(b.ActualDeparture)
}
