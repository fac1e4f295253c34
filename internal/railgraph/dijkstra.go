package railgraph

import (
	"errors"
	"fmt"
	"slices"
)

// ErrNoPath is returned when none of the targets is reachable from the source
var ErrNoPath = errors.New("no path")

// ShortestPath runs Dijkstra from source and stops at the first target popped
// from the queue. The returned path starts at source and ends at that target.
func (g *Graph) ShortestPath(source int64, targets []int64) ([]int64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[source]; !ok {
		return nil, fmt.Errorf("source %d: %w", source, ErrUnknownNode)
	}

	wanted := make(map[int64]struct{}, len(targets))
	for _, t := range targets {
		wanted[t] = struct{}{}
	}
	if len(wanted) == 0 {
		return nil, ErrNoPath
	}

	dist := map[int64]float64{source: 0}
	prev := make(map[int64]int64)
	done := make(map[int64]struct{})

	queue := newNodeQueue()
	queue.push(source, 0)

	for queue.Len() > 0 {
		current, d := queue.pop()
		if _, ok := wanted[current]; ok {
			return buildPath(prev, source, current), nil
		}
		done[current] = struct{}{}

		for neighbor, w := range g.nodes[current].edges {
			if _, ok := done[neighbor]; ok {
				continue
			}
			candidate := d + w
			if old, ok := dist[neighbor]; ok && candidate >= old {
				continue
			}
			dist[neighbor] = candidate
			prev[neighbor] = current
			queue.push(neighbor, candidate)
		}
	}

	return nil, ErrNoPath
}

func buildPath(prev map[int64]int64, source, target int64) []int64 {
	path := []int64{target}
	for current := target; current != source; {
		current = prev[current]
		path = append(path, current)
	}
	slices.Reverse(path)
	return path
}

// PathLength sums the edge lengths along path. Missing edges count as the
// straight-line distance between their endpoints.
func (g *Graph) PathLength(path []int64) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()

	total := 0.0
	for i := 1; i < len(path); i++ {
		total += g.segmentLength(path[i-1], path[i])
	}
	return total
}
