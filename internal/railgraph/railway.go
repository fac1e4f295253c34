package railgraph

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"trainfinder/internal/domain"
	"trainfinder/internal/geo"
)

// Railway is an immutable path between two stations: an ordered list of
// points with the cumulative distance in metres up to each point.
type Railway struct {
	from       string
	to         string
	points     []domain.Coordinate
	cumulative []float64
}

func NewRailway(from, to string, points []domain.Coordinate, cumulative []float64) (*Railway, error) {
	if len(points) == 0 {
		return nil, errors.New("railway has no points")
	}
	if len(points) != len(cumulative) {
		return nil, fmt.Errorf("railway has %d points but %d distances", len(points), len(cumulative))
	}
	for i := 1; i < len(cumulative); i++ {
		if cumulative[i] < cumulative[i-1] {
			return nil, fmt.Errorf("railway distance decreases at point %d", i)
		}
	}
	return &Railway{
		from:       from,
		to:         to,
		points:     slices.Clone(points),
		cumulative: slices.Clone(cumulative),
	}, nil
}

// From returns the origin station code
func (r *Railway) From() string { return r.from }

// To returns the destination station code
func (r *Railway) To() string { return r.to }

// Length returns the total length in metres
func (r *Railway) Length() float64 {
	return r.cumulative[len(r.cumulative)-1]
}

func (r *Railway) Len() int { return len(r.points) }

func (r *Railway) Points() []domain.Coordinate {
	return slices.Clone(r.points)
}

func (r *Railway) Cumulative() []float64 {
	return slices.Clone(r.cumulative)
}

// PositionAndBearingAt returns the point at the given fraction of the length
// and the bearing of the travel direction there, in radians.
func (r *Railway) PositionAndBearingAt(fraction float64) (domain.Coordinate, float64) {
	n := len(r.points)
	if n == 1 {
		return r.points[0], 0
	}
	if fraction <= 0 {
		return r.points[0], r.bearingFrom(0)
	}
	if fraction >= 1 {
		return r.points[n-1], r.bearingInto(n - 1)
	}

	target := fraction * r.Length()
	i, found := slices.BinarySearch(r.cumulative, target)
	if found {
		if i == n-1 {
			return r.points[i], r.bearingInto(i)
		}
		return r.points[i], r.bearingFrom(i)
	}
	if i >= n {
		return r.points[n-1], r.bearingInto(n - 1)
	}
	if i == 0 {
		return r.points[0], r.bearingFrom(0)
	}

	a, b := r.points[i-1], r.points[i]
	local := (target - r.cumulative[i-1]) / (r.cumulative[i] - r.cumulative[i-1])
	return geo.Interpolate(a, b, local), r.bearingFrom(i - 1)
}

// minSegment is the shortest segment in metres that still defines a direction
const minSegment = 0.01

// bearingFrom is the direction of the first non-degenerate segment leaving
// point i, falling back to the one arriving there
func (r *Railway) bearingFrom(i int) float64 {
	for k := i + 1; k < len(r.points); k++ {
		if geo.Distance(r.points[i], r.points[k]) >= minSegment {
			return geo.Bearing(r.points[i], r.points[k])
		}
	}
	return r.bearingInto(i)
}

// bearingInto is the direction of the last non-degenerate segment arriving at
// point i. A railway without any such segment has bearing 0.
func (r *Railway) bearingInto(i int) float64 {
	for k := i - 1; k >= 0; k-- {
		if geo.Distance(r.points[k], r.points[i]) >= minSegment {
			return geo.Bearing(r.points[k], r.points[i])
		}
	}
	return 0
}

// Reversed returns an independent railway running the other way
func (r *Railway) Reversed() *Railway {
	n := len(r.points)
	total := r.Length()
	points := make([]domain.Coordinate, n)
	cumulative := make([]float64, n)
	for i := range n {
		points[i] = r.points[n-1-i]
		cumulative[i] = total - r.cumulative[n-1-i]
	}
	return &Railway{from: r.to, to: r.from, points: points, cumulative: cumulative}
}

type railwayJSON struct {
	From       string              `json:"from"`
	To         string              `json:"to"`
	Points     []domain.Coordinate `json:"points"`
	Cumulative []float64           `json:"cumulative"`
}

func (r *Railway) MarshalJSON() ([]byte, error) {
	return json.Marshal(railwayJSON{
		From:       r.from,
		To:         r.to,
		Points:     r.points,
		Cumulative: r.cumulative,
	})
}

func (r *Railway) UnmarshalJSON(data []byte) error {
	var raw railwayJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded, err := NewRailway(raw.From, raw.To, raw.Points, raw.Cumulative)
	if err != nil {
		return err
	}
	*r = *decoded
	return nil
}

// Railway assembles the railway along a node path returned by ShortestPath
func (g *Graph) Railway(from, to string, path []int64) (*Railway, error) {
	if len(path) == 0 {
		return nil, errors.New("empty path")
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	points := make([]domain.Coordinate, len(path))
	cumulative := make([]float64, len(path))
	for i, id := range path {
		n, ok := g.nodes[id]
		if !ok {
			return nil, fmt.Errorf("path node %d: %w", id, ErrUnknownNode)
		}
		points[i] = n.pos
		if i > 0 {
			cumulative[i] = cumulative[i-1] + g.segmentLength(path[i-1], id)
		}
	}
	return NewRailway(from, to, points, cumulative)
}

// segmentLength must be called with the read lock held
func (g *Graph) segmentLength(a, b int64) float64 {
	na, okA := g.nodes[a]
	nb, okB := g.nodes[b]
	if !okA || !okB {
		return 0
	}
	if d, ok := na.edges[b]; ok {
		return d
	}
	return geo.Distance(na.pos, nb.pos)
}
