package railgraph

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trainfinder/internal/domain"
	"trainfinder/internal/geo"
)

func testRailway(t *testing.T) *Railway {
	t.Helper()
	points := []domain.Coordinate{
		{Lat: 52.0, Lon: 5.0},
		{Lat: 52.0, Lon: 5.01},
		{Lat: 52.01, Lon: 5.01},
		{Lat: 52.02, Lon: 5.02},
	}
	cumulative := make([]float64, len(points))
	for i := 1; i < len(points); i++ {
		cumulative[i] = cumulative[i-1] + geo.Distance(points[i-1], points[i])
	}
	r, err := NewRailway("UT", "ASD", points, cumulative)
	require.NoError(t, err)
	return r
}

func assertCoordinate(t *testing.T, want, got domain.Coordinate) {
	t.Helper()
	assert.InDelta(t, want.Lat, got.Lat, 1e-9)
	assert.InDelta(t, want.Lon, got.Lon, 1e-9)
}

func TestNewRailway_Validation(t *testing.T) {
	p := domain.Coordinate{Lat: 52, Lon: 5}
	tests := []struct {
		name       string
		points     []domain.Coordinate
		cumulative []float64
	}{
		{name: "empty", points: nil, cumulative: nil},
		{name: "length mismatch", points: []domain.Coordinate{p, p}, cumulative: []float64{0}},
		{name: "decreasing", points: []domain.Coordinate{p, p, p}, cumulative: []float64{0, 10, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRailway("A", "B", tt.points, tt.cumulative)
			assert.Error(t, err)
		})
	}
}

func TestRailway_PositionAndBearingAtEnds(t *testing.T) {
	r := testRailway(t)
	points := r.Points()

	pos, bearing := r.PositionAndBearingAt(0)
	assertCoordinate(t, points[0], pos)
	assert.InDelta(t, geo.Bearing(points[0], points[1]), bearing, 1e-12)

	pos, bearing = r.PositionAndBearingAt(1)
	assertCoordinate(t, points[3], pos)
	assert.InDelta(t, geo.Bearing(points[2], points[3]), bearing, 1e-12)

	pos, _ = r.PositionAndBearingAt(-0.5)
	assertCoordinate(t, points[0], pos)
	pos, _ = r.PositionAndBearingAt(1.5)
	assertCoordinate(t, points[3], pos)
}

func TestRailway_BearingSkipsZeroLengthSegments(t *testing.T) {
	a := domain.Coordinate{Lat: 52.0, Lon: 5.0}
	b := domain.Coordinate{Lat: 52.0, Lon: 5.01}
	east := geo.Bearing(a, b)
	d := geo.Distance(a, b)

	tests := []struct {
		name       string
		points     []domain.Coordinate
		cumulative []float64
		fraction   float64
	}{
		{name: "duplicate start", points: []domain.Coordinate{a, a, b}, cumulative: []float64{0, 0, d}, fraction: 0},
		{name: "duplicate end", points: []domain.Coordinate{a, b, b}, cumulative: []float64{0, d, d}, fraction: 1},
		{name: "inside after duplicate start", points: []domain.Coordinate{a, a, b}, cumulative: []float64{0, 0, d}, fraction: 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRailway("A", "B", tt.points, tt.cumulative)
			require.NoError(t, err)
			_, bearing := r.PositionAndBearingAt(tt.fraction)
			assert.InDelta(t, east, bearing, 1e-9)
		})
	}
}

func TestRailway_PositionAndBearingAtNode(t *testing.T) {
	points := []domain.Coordinate{
		{Lat: 52.0, Lon: 5.0},
		{Lat: 52.0, Lon: 5.01},
		{Lat: 52.01, Lon: 5.01},
		{Lat: 52.02, Lon: 5.02},
	}
	r, err := NewRailway("UT", "ASD", points, []float64{0, 100, 200, 400})
	require.NoError(t, err)

	tests := []struct {
		name     string
		fraction float64
		index    int
		from, to int
	}{
		{name: "inner node looks ahead", fraction: 0.25, index: 1, from: 1, to: 2},
		{name: "second inner node", fraction: 0.5, index: 2, from: 2, to: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos, bearing := r.PositionAndBearingAt(tt.fraction)
			assert.Equal(t, points[tt.index], pos)
			assert.InDelta(t, geo.Bearing(points[tt.from], points[tt.to]), bearing, 1e-12)
		})
	}
}

func TestRailway_PositionAndBearingBetweenNodes(t *testing.T) {
	r := testRailway(t)
	points := r.Points()
	cumulative := r.Cumulative()

	target := cumulative[0] + (cumulative[1]-cumulative[0])/2
	pos, bearing := r.PositionAndBearingAt(target / r.Length())

	assertCoordinate(t, geo.Interpolate(points[0], points[1], 0.5), pos)
	assert.InDelta(t, geo.Bearing(points[0], points[1]), bearing, 1e-12)
	// heading east along the first segment
	assert.InDelta(t, math.Pi/2, bearing, 0.01)
}

func TestRailway_SinglePoint(t *testing.T) {
	p := domain.Coordinate{Lat: 52, Lon: 5}
	r, err := NewRailway("A", "A", []domain.Coordinate{p}, []float64{0})
	require.NoError(t, err)

	pos, bearing := r.PositionAndBearingAt(0.5)
	assert.Equal(t, p, pos)
	assert.Zero(t, bearing)
	assert.Zero(t, r.Length())
}

func TestRailway_Reversed(t *testing.T) {
	r := testRailway(t)
	rev := r.Reversed()

	assert.Equal(t, "ASD", rev.From())
	assert.Equal(t, "UT", rev.To())
	assert.InDelta(t, r.Length(), rev.Length(), 1e-9)
	assert.Equal(t, r.Points()[0], rev.Points()[rev.Len()-1])
	assert.Zero(t, rev.Cumulative()[0])

	back := rev.Reversed()
	require.Equal(t, r.Len(), back.Len())
	for i, p := range r.Points() {
		assertCoordinate(t, p, back.Points()[i])
		assert.InDelta(t, r.Cumulative()[i], back.Cumulative()[i], 1e-6)
	}
	assert.InDelta(t, r.Length(), back.Length(), 1e-9)

	pos, _ := rev.PositionAndBearingAt(0)
	assertCoordinate(t, r.Points()[r.Len()-1], pos)
}

func TestRailway_JSON(t *testing.T) {
	r := testRailway(t)
	data, err := json.Marshal(r)
	require.NoError(t, err)

	var decoded Railway
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, r.From(), decoded.From())
	assert.Equal(t, r.To(), decoded.To())
	assert.Equal(t, r.Points(), decoded.Points())
	assert.Equal(t, r.Cumulative(), decoded.Cumulative())

	assert.Error(t, json.Unmarshal([]byte(`{"from":"A","to":"B","points":[],"cumulative":[]}`), &decoded))
}

func TestGraph_Railway(t *testing.T) {
	g := gridGraph(t)
	path, err := g.ShortestPath(1, []int64{9})
	require.NoError(t, err)

	r, err := g.Railway("UT", "ASD", path)
	require.NoError(t, err)
	assert.Equal(t, len(path), r.Len())
	assert.InDelta(t, g.PathLength(path), r.Length(), 1e-9)

	_, err = g.Railway("UT", "ASD", []int64{1, 1000})
	assert.ErrorIs(t, err, ErrUnknownNode)

	_, err = g.Railway("UT", "ASD", nil)
	assert.Error(t, err)
}
