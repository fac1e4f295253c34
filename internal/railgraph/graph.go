// Package railgraph holds the railway network: an arena of nodes keyed by id
// with symmetric distance-weighted edges, a tile index over node positions,
// shortest-path search and the Railway path type.
package railgraph

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"trainfinder/internal/domain"
	"trainfinder/internal/geo"
)

// ErrUnknownNode is returned when a way or a search references a node id that is not in the graph
var ErrUnknownNode = errors.New("unknown node")

// NodeRecord is one imported map node
type NodeRecord struct {
	ID  int64
	Lat float64
	Lon float64
}

// WayRecord is one imported railway line as an ordered list of node ids
type WayRecord struct {
	ID      int64
	NodeIDs []int64
}

type node struct {
	pos   domain.Coordinate
	edges map[int64]float64
}

type edgeKey struct {
	a, b int64
}

func newEdgeKey(a, b int64) edgeKey {
	if a > b {
		a, b = b, a
	}
	return edgeKey{a, b}
}

// Graph is safe for concurrent use. Reads take a shared lock; node insertion
// and edge splitting take the exclusive lock.
type Graph struct {
	mu    sync.RWMutex
	nodes map[int64]*node
	index *SpatialIndex

	edgeCount   int
	longest     float64
	longestEdge edgeKey

	nextID atomic.Int64
}

func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[int64]*node),
		index: NewSpatialIndex(DefaultTileSize),
	}
}

// Build creates a graph from imported records. Consecutive node ids of a way
// become edges. Nodes that end up without edges are dropped.
func Build(nodes []NodeRecord, ways []WayRecord) (*Graph, error) {
	g := NewGraph()
	for _, n := range nodes {
		g.addNode(n.ID, domain.Coordinate{Lat: n.Lat, Lon: n.Lon})
	}

	for _, w := range ways {
		for _, id := range w.NodeIDs {
			if _, ok := g.nodes[id]; !ok {
				return nil, fmt.Errorf("way %d references node %d: %w", w.ID, id, ErrUnknownNode)
			}
		}
		for i := 1; i < len(w.NodeIDs); i++ {
			if w.NodeIDs[i] == w.NodeIDs[i-1] {
				continue
			}
			g.addEdge(w.NodeIDs[i-1], w.NodeIDs[i])
		}
	}

	g.prune()
	return g, nil
}

func (g *Graph) AddNode(id int64, pos domain.Coordinate) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addNode(id, pos)
}

func (g *Graph) addNode(id int64, pos domain.Coordinate) {
	if existing, ok := g.nodes[id]; ok {
		g.index.Remove(id, existing.pos)
		existing.pos = pos
	} else {
		g.nodes[id] = &node{pos: pos, edges: make(map[int64]float64)}
	}
	g.index.Insert(id, pos)

	for {
		next := g.nextID.Load()
		if id < next || g.nextID.CompareAndSwap(next, id+1) {
			break
		}
	}
}

// AddEdge connects a and b and returns the edge length in metres.
// Both nodes must exist.
func (g *Graph) AddEdge(a, b int64) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addEdge(a, b)
}

func (g *Graph) addEdge(a, b int64) float64 {
	na, ok := g.nodes[a]
	if !ok {
		panic(fmt.Sprintf("railgraph: edge references missing node %d", a))
	}
	nb, ok := g.nodes[b]
	if !ok {
		panic(fmt.Sprintf("railgraph: edge references missing node %d", b))
	}
	if a == b {
		return 0
	}

	d := geo.Distance(na.pos, nb.pos)
	if _, exists := na.edges[b]; !exists {
		g.edgeCount++
	}
	na.edges[b] = d
	nb.edges[a] = d

	if d > g.longest {
		g.longest = d
		g.longestEdge = newEdgeKey(a, b)
	}
	return d
}

func (g *Graph) RemoveEdge(a, b int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeEdge(a, b)
}

func (g *Graph) removeEdge(a, b int64) {
	na, okA := g.nodes[a]
	nb, okB := g.nodes[b]
	if !okA || !okB {
		return
	}
	if _, exists := na.edges[b]; !exists {
		return
	}
	delete(na.edges, b)
	delete(nb.edges, a)
	g.edgeCount--

	if newEdgeKey(a, b) == g.longestEdge {
		g.recomputeLongest()
	}
}

func (g *Graph) recomputeLongest() {
	g.longest = 0
	g.longestEdge = edgeKey{}
	for id, n := range g.nodes {
		for other, d := range n.edges {
			if d > g.longest {
				g.longest = d
				g.longestEdge = newEdgeKey(id, other)
			}
		}
	}
}

// Prune removes nodes without edges and returns how many were removed
func (g *Graph) Prune() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.prune()
}

func (g *Graph) prune() int {
	removed := 0
	for id, n := range g.nodes {
		if len(n.edges) > 0 {
			continue
		}
		g.index.Remove(id, n.pos)
		delete(g.nodes, id)
		removed++
	}
	return removed
}

func (g *Graph) Position(id int64) (domain.Coordinate, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return domain.Coordinate{}, false
	}
	return n.pos, true
}

// Neighbors returns a copy of the adjacency of id
func (g *Graph) Neighbors(id int64) map[int64]float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	out := make(map[int64]float64, len(n.edges))
	for k, v := range n.edges {
		out[k] = v
	}
	return out
}

// EdgeDistance returns the stored length of edge a-b
func (g *Graph) EdgeDistance(a, b int64) (float64, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[a]
	if !ok {
		return 0, false
	}
	d, ok := n.edges[b]
	return d, ok
}

func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edgeCount
}

// LongestEdge returns the length in metres of the longest edge
func (g *Graph) LongestEdge() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.longest
}

// FindNodesNear returns node ids within maxDistance metres of pos, nearest first
func (g *Graph) FindNodesNear(pos domain.Coordinate, maxDistance float64) []int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.index.FindNear(pos, maxDistance)
}

// endpointSnap is how close in metres a projection may land to an edge end
// before the end node is reused instead of splitting the edge
const endpointSnap = 0.5

type projection struct {
	edge edgeKey
	pos  domain.Coordinate
	dist float64
	// node is set when the projection coincides with an existing end node
	node     int64
	existing bool
}

// ProjectNear splits every edge passing within maxDistance metres of pos at
// the point closest to pos. It returns the ids of the touched nodes, nearest
// first. A projection landing on an edge end reuses that node and leaves the
// edge whole. Repeated calls for the same position insert new nodes each time.
func (g *Graph) ProjectNear(pos domain.Coordinate, maxDistance float64) []int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	candidates := g.index.FindNear(pos, g.longest+maxDistance)

	seen := make(map[edgeKey]struct{})
	var found []projection
	for _, a := range candidates {
		na := g.nodes[a]
		for b := range na.edges {
			key := newEdgeKey(a, b)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}

			nb := g.nodes[b]
			if math.Abs(geo.CrossTrackMeters(na.pos, nb.pos, pos)) >= maxDistance {
				continue
			}
			pr := projection{edge: key, pos: geo.ProjectOnSegment(na.pos, nb.pos, pos)}
			switch {
			case geo.Distance(pr.pos, na.pos) < endpointSnap:
				pr.pos, pr.node, pr.existing = na.pos, a, true
			case geo.Distance(pr.pos, nb.pos) < endpointSnap:
				pr.pos, pr.node, pr.existing = nb.pos, b, true
			}
			pr.dist = geo.AngularDistance(pr.pos, pos)
			found = append(found, pr)
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].dist < found[j].dist
	})

	ids := make([]int64, 0, len(found))
	reused := make(map[int64]struct{})
	for _, pr := range found {
		if pr.existing {
			if _, ok := reused[pr.node]; !ok {
				reused[pr.node] = struct{}{}
				ids = append(ids, pr.node)
			}
			continue
		}
		id := g.nextID.Add(1) - 1
		g.addNode(id, pr.pos)
		g.removeEdge(pr.edge.a, pr.edge.b)
		g.addEdge(pr.edge.a, id)
		g.addEdge(id, pr.edge.b)
		ids = append(ids, id)
	}
	return ids
}
