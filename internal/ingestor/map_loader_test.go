package ingestor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trainfinder/internal/railgraph"
)

const railOSM = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6">
  <node id="1" lat="52.0000" lon="5.0000"/>
  <node id="2" lat="52.0000" lon="5.0100"/>
  <node id="3" lat="52.0000" lon="5.0200"/>
  <node id="4" lat="52.1000" lon="5.1000"/>
  <way id="10">
    <nd ref="1"/>
    <nd ref="2"/>
    <nd ref="3"/>
    <tag k="railway" v="rail"/>
  </way>
</osm>`

func TestMapLoader_Load(t *testing.T) {
	dir := t.TempDir()
	mapPath := filepath.Join(dir, "rail.osm")
	require.NoError(t, os.WriteFile(mapPath, []byte(railOSM), 0o644))
	cacheDir := filepath.Join(dir, "cache")

	loader := NewMapLoader(mapPath, cacheDir, discardLogger())

	g, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, g.NodeCount())
	assert.Equal(t, 2, g.EdgeCount())

	cached, err := filepath.Glob(filepath.Join(cacheDir, "rail_v*_*.gob.gz"))
	require.NoError(t, err)
	assert.Len(t, cached, 1)

	// the second load is served from the parsed cache
	again, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, g.NodeCount(), again.NodeCount())
}

func TestMapLoader_DanglingWayFails(t *testing.T) {
	dir := t.TempDir()
	mapPath := filepath.Join(dir, "broken.osm")
	broken := `<osm version="0.6">
  <node id="1" lat="52.0" lon="5.0"/>
  <way id="10"><nd ref="1"/><nd ref="2"/><tag k="railway" v="rail"/></way>
</osm>`
	require.NoError(t, os.WriteFile(mapPath, []byte(broken), 0o644))

	_, err := NewMapLoader(mapPath, filepath.Join(dir, "cache"), discardLogger()).Load(context.Background())
	assert.ErrorIs(t, err, railgraph.ErrUnknownNode)
}

func TestMapLoader_MissingFile(t *testing.T) {
	_, err := NewMapLoader(filepath.Join(t.TempDir(), "nope.osm"), t.TempDir(), discardLogger()).Load(context.Background())
	assert.Error(t, err)
}
