package hub

import (
	"fmt"
	"math"

	"trainfinder/internal/domain"
)

// maxMercatorLat is the latitude where the Web Mercator square ends
const maxMercatorLat = 85.05112878

func tileXY(lat, lon float64, zoom int) (x, y int) {
	n := math.Exp2(float64(zoom))
	lat = math.Max(-maxMercatorLat, math.Min(maxMercatorLat, lat))

	x = int(math.Floor((lon + 180.0) / 360.0 * n))
	latRad := lat * math.Pi / 180.0
	y = int(math.Floor((1.0 - math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi) / 2.0 * n))

	maxTile := int(n) - 1
	return clampTile(x, maxTile), clampTile(y, maxTile)
}

func clampTile(v, maxTile int) int {
	return max(0, min(v, maxTile))
}

func formatTile(zoom, x, y int) string {
	return fmt.Sprintf("%d/%d/%d", zoom, x, y)
}

// TileID returns the slippy-map tile "zoom/x/y" holding the coordinates
func TileID(lat, lon float64, zoom int) string {
	x, y := tileXY(lat, lon, zoom)
	return formatTile(zoom, x, y)
}

// TileBounds returns the bounding box of a tile
func TileBounds(zoom, x, y int) domain.BoundingBox {
	n := math.Exp2(float64(zoom))
	toLat := func(ty int) float64 {
		return math.Atan(math.Sinh(math.Pi*(1-2*float64(ty)/n))) * 180.0 / math.Pi
	}
	return domain.BoundingBox{
		MinLat: toLat(y + 1),
		MaxLat: toLat(y),
		MinLon: float64(x)/n*360.0 - 180.0,
		MaxLon: float64(x+1)/n*360.0 - 180.0,
	}
}

// ParseTileID extracts zoom, x, y from a tile ID string
func ParseTileID(tileID string) (zoom, x, y int, ok bool) {
	n, err := fmt.Sscanf(tileID, "%d/%d/%d", &zoom, &x, &y)
	if err != nil || n != 3 || zoom < 0 || zoom > 22 {
		return 0, 0, 0, false
	}
	maxTile := int(math.Exp2(float64(zoom))) - 1
	if x < 0 || y < 0 || x > maxTile || y > maxTile {
		return 0, 0, 0, false
	}
	return zoom, x, y, true
}

// AdjacentTiles returns the given tile plus its 8 neighbors
func AdjacentTiles(zoom, x, y int) []string {
	maxTile := int(math.Exp2(float64(zoom))) - 1
	tiles := make([]string, 0, 9)

	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			nx, ny := x+dx, y+dy
			if nx < 0 || nx > maxTile || ny < 0 || ny > maxTile {
				continue
			}
			tiles = append(tiles, formatTile(zoom, nx, ny))
		}
	}
	return tiles
}

// TilesInBBox returns all tile IDs that intersect the bounding box, or nil
// when there would be more than limit of them
func TilesInBBox(bb domain.BoundingBox, zoom, limit int) []string {
	x1, y1 := tileXY(bb.MaxLat, bb.MinLon, zoom)
	x2, y2 := tileXY(bb.MinLat, bb.MaxLon, zoom)
	if x2 < x1 || y2 < y1 {
		return nil
	}
	if limit > 0 && (x2-x1+1)*(y2-y1+1) > limit {
		return nil
	}

	tiles := make([]string, 0, (x2-x1+1)*(y2-y1+1))
	for x := x1; x <= x2; x++ {
		for y := y1; y <= y2; y++ {
			tiles = append(tiles, formatTile(zoom, x, y))
		}
	}
	return tiles
}
