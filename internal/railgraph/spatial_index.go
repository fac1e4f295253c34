package railgraph

import (
	"math"
	"sort"

	"trainfinder/internal/domain"
	"trainfinder/internal/geo"
)

// DefaultTileSize is the edge length of a spatial index tile in degrees
const DefaultTileSize = 0.1

const (
	gridMinLon = -180.0
	gridMinLat = -90.0
)

type tileKey struct {
	x, y int
}

// SpatialIndex is a sparse grid of fixed-size lat/lon tiles. Tiles are created
// on first insertion and dropped when they become empty.
//
// It is not safe for concurrent use; Graph guards it with its own lock.
type SpatialIndex struct {
	tileSize float64
	columns  int
	rows     int
	// slack compensates for tile edges being measured along great circles,
	// which bow away from the parallels they approximate
	slack float64
	tiles map[tileKey]map[int64]domain.Coordinate
	count int
}

func NewSpatialIndex(tileSize float64) *SpatialIndex {
	if tileSize <= 0 {
		tileSize = DefaultTileSize
	}
	tileRad := tileSize * math.Pi / 180
	return &SpatialIndex{
		tileSize: tileSize,
		columns:  int(math.Ceil(360 / tileSize)),
		rows:     int(math.Ceil(180 / tileSize)),
		slack:    geo.EarthRadius * tileRad * tileRad / 4,
		tiles:    make(map[tileKey]map[int64]domain.Coordinate),
	}
}

func (s *SpatialIndex) tileOf(pos domain.Coordinate) tileKey {
	return tileKey{
		x: int(math.Floor((pos.Lon - gridMinLon) / s.tileSize)),
		y: int(math.Floor((pos.Lat - gridMinLat) / s.tileSize)),
	}
}

func (s *SpatialIndex) Insert(id int64, pos domain.Coordinate) {
	key := s.tileOf(pos)
	tile, ok := s.tiles[key]
	if !ok {
		tile = make(map[int64]domain.Coordinate)
		s.tiles[key] = tile
	}
	if _, exists := tile[id]; !exists {
		s.count++
	}
	tile[id] = pos
}

func (s *SpatialIndex) Remove(id int64, pos domain.Coordinate) {
	key := s.tileOf(pos)
	tile, ok := s.tiles[key]
	if !ok {
		return
	}
	if _, exists := tile[id]; !exists {
		return
	}
	delete(tile, id)
	s.count--
	if len(tile) == 0 {
		delete(s.tiles, key)
	}
}

// Len returns the number of indexed ids
func (s *SpatialIndex) Len() int {
	return s.count
}

// TileCount returns the number of non-empty tiles
func (s *SpatialIndex) TileCount() int {
	return len(s.tiles)
}

// distanceToTile returns a lower bound in metres for the distance from pos to
// any point of the tile. It is zero when pos lies on the tile.
func (s *SpatialIndex) distanceToTile(pos domain.Coordinate, key tileKey) float64 {
	minLat := gridMinLat + float64(key.y)*s.tileSize
	maxLat := minLat + s.tileSize
	minLon := gridMinLon + float64(key.x)*s.tileSize
	maxLon := minLon + s.tileSize

	if pos.Lat >= minLat && pos.Lat <= maxLat && pos.Lon >= minLon && pos.Lon <= maxLon {
		return 0
	}

	sw := domain.Coordinate{Lat: minLat, Lon: minLon}
	se := domain.Coordinate{Lat: minLat, Lon: maxLon}
	ne := domain.Coordinate{Lat: maxLat, Lon: maxLon}
	nw := domain.Coordinate{Lat: maxLat, Lon: minLon}

	d := math.Abs(geo.CrossTrackDistance(sw, se, pos))
	d = math.Min(d, math.Abs(geo.CrossTrackDistance(se, ne, pos)))
	d = math.Min(d, math.Abs(geo.CrossTrackDistance(ne, nw, pos)))
	d = math.Min(d, math.Abs(geo.CrossTrackDistance(nw, sw, pos)))

	return math.Max(0, d*geo.EarthRadius-s.slack)
}

type nearCandidate struct {
	id   int64
	dist float64
}

// FindNear returns the ids within maxDistance metres of pos, nearest first.
//
// The search window grows outwards from the tile containing pos, separately in
// each of the four directions, until the next tile is provably out of range.
func (s *SpatialIndex) FindNear(pos domain.Coordinate, maxDistance float64) []int64 {
	if len(s.tiles) == 0 || maxDistance < 0 {
		return nil
	}

	center := s.tileOf(pos)
	minX, maxX := center.x, center.x
	minY, maxY := center.y, center.y

	for minX > 0 && s.distanceToTile(pos, tileKey{minX - 1, center.y}) <= maxDistance {
		minX--
	}
	for maxX < s.columns-1 && s.distanceToTile(pos, tileKey{maxX + 1, center.y}) <= maxDistance {
		maxX++
	}
	for minY > 0 && s.distanceToTile(pos, tileKey{center.x, minY - 1}) <= maxDistance {
		minY--
	}
	for maxY < s.rows-1 && s.distanceToTile(pos, tileKey{center.x, maxY + 1}) <= maxDistance {
		maxY++
	}

	var found []nearCandidate
	scan := func(key tileKey, tile map[int64]domain.Coordinate) {
		if s.distanceToTile(pos, key) > maxDistance {
			return
		}
		for id, p := range tile {
			if d := geo.Distance(pos, p); d <= maxDistance {
				found = append(found, nearCandidate{id: id, dist: d})
			}
		}
	}

	window := (maxX - minX + 1) * (maxY - minY + 1)
	if window > len(s.tiles) {
		for key, tile := range s.tiles {
			if key.x >= minX && key.x <= maxX && key.y >= minY && key.y <= maxY {
				scan(key, tile)
			}
		}
	} else {
		for x := minX; x <= maxX; x++ {
			for y := minY; y <= maxY; y++ {
				key := tileKey{x, y}
				if tile, ok := s.tiles[key]; ok {
					scan(key, tile)
				}
			}
		}
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].dist == found[j].dist {
			return found[i].id < found[j].id
		}
		return found[i].dist < found[j].dist
	})

	ids := make([]int64, len(found))
	for i, c := range found {
		ids[i] = c.id
	}
	return ids
}
