package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trainfinder/internal/domain"
)

func train(key, carrier, trainType, tile string, lat, lon float64) *domain.Train {
	return &domain.Train{
		Key:       key,
		RideCode:  key,
		Carrier:   carrier,
		TrainType: trainType,
		Position:  domain.Coordinate{Lat: lat, Lon: lon},
		TileID:    tile,
	}
}

func deltaKinds(deltas []domain.TrainDelta) map[string]domain.DeltaType {
	kinds := make(map[string]domain.DeltaType)
	for _, d := range deltas {
		key := d.Key
		if d.Train != nil {
			key = d.Train.Key
		}
		kinds[key+"@"+d.TileID] = d.Type
	}
	return kinds
}

func TestTrainStore_Replace(t *testing.T) {
	s := NewTrainStore()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	deltas := s.Replace([]*domain.Train{
		train("a", "NS", "IC", "10/526/336", 52.1, 5.1),
		train("b", "NS", "SPR", "10/526/336", 52.2, 5.2),
	}, now)
	assert.Len(t, deltas, 2)
	assert.Equal(t, 2, s.Count())
	assert.Equal(t, now, s.LastUpdate())

	t.Run("unchanged trains produce no deltas", func(t *testing.T) {
		deltas := s.Replace([]*domain.Train{
			train("a", "NS", "IC", "10/526/336", 52.1, 5.1),
			train("b", "NS", "SPR", "10/526/336", 52.2, 5.2),
		}, now.Add(time.Minute))
		assert.Empty(t, deltas)

		got, ok := s.Get("a")
		require.True(t, ok)
		assert.Equal(t, now.Add(time.Minute), got.UpdatedAt)
	})

	t.Run("moved, new and vanished trains", func(t *testing.T) {
		deltas := s.Replace([]*domain.Train{
			train("a", "NS", "IC", "10/527/336", 52.3, 5.6),
			train("c", "Arriva", "ST", "10/530/330", 53.0, 6.0),
		}, now.Add(2*time.Minute))

		assert.Equal(t, map[string]domain.DeltaType{
			"a@10/526/336": domain.DeltaRemove,
			"a@10/527/336": domain.DeltaUpdate,
			"c@10/530/330": domain.DeltaUpdate,
			"b@10/526/336": domain.DeltaRemove,
		}, deltaKinds(deltas))

		assert.Equal(t, 2, s.Count())
		_, ok := s.Get("b")
		assert.False(t, ok)
		assert.Empty(t, s.SnapshotForTiles([]string{"10/526/336"}))
	})

	t.Run("empty replace removes everything", func(t *testing.T) {
		deltas := s.Replace(nil, now.Add(3*time.Minute))
		assert.Len(t, deltas, 2)
		assert.Zero(t, s.Count())
		assert.Empty(t, s.Snapshot())
	})
}

func TestTrainStore_List(t *testing.T) {
	s := NewTrainStore()
	s.Replace([]*domain.Train{
		train("c", "NS", "IC", "t1", 52.1, 5.1),
		train("a", "NS", "SPR", "t1", 52.2, 5.2),
		train("b", "Arriva", "SPR", "t2", 53.2, 6.5),
		train("d", "Arriva", "ST", "t2", 53.3, 6.6),
	}, time.Now())

	tests := []struct {
		name string
		opts ListOptions
		want []string
	}{
		{name: "all ordered by key", opts: ListOptions{}, want: []string{"a", "b", "c", "d"}},
		{name: "carrier", opts: ListOptions{Carrier: "Arriva"}, want: []string{"b", "d"}},
		{name: "type", opts: ListOptions{Type: "SPR"}, want: []string{"a", "b"}},
		{name: "carrier and type", opts: ListOptions{Carrier: "NS", Type: "SPR"}, want: []string{"a"}},
		{name: "bbox", opts: ListOptions{BBox: &domain.BoundingBox{MinLat: 52, MinLon: 5, MaxLat: 52.5, MaxLon: 5.5}}, want: []string{"a", "c"}},
		{name: "unknown carrier", opts: ListOptions{Carrier: "DB"}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var keys []string
			for _, tr := range s.List(tt.opts) {
				keys = append(keys, tr.Key)
			}
			assert.Equal(t, tt.want, keys)
		})
	}
}

func TestTrainStore_ReturnsCopies(t *testing.T) {
	s := NewTrainStore()
	s.Replace([]*domain.Train{train("a", "NS", "IC", "t1", 52.1, 5.1)}, time.Now())

	got, ok := s.Get("a")
	require.True(t, ok)
	got.Carrier = "changed"

	again, _ := s.Get("a")
	assert.Equal(t, "NS", again.Carrier)

	snap := s.SnapshotForTiles([]string{"t1", "t1"})
	require.Len(t, snap, 1)
	snap[0].Carrier = "changed"
	again, _ = s.Get("a")
	assert.Equal(t, "NS", again.Carrier)
}
