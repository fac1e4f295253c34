// Package osmrail imports railway track from OpenStreetMap extracts.
package osmrail

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"

	"trainfinder/internal/railgraph"
)

type Format int

const (
	FormatXML Format = iota
	FormatPBF
)

// FormatFromPath picks the format by file extension. Anything that is not
// .pbf is read as XML.
func FormatFromPath(path string) Format {
	if strings.HasSuffix(strings.ToLower(path), ".pbf") {
		return FormatPBF
	}
	return FormatXML
}

type ParseResult struct {
	Nodes []railgraph.NodeRecord
	Ways  []railgraph.WayRecord
}

var trackTypes = map[string]struct{}{
	"rail":         {},
	"light_rail":   {},
	"narrow_gauge": {},
	"subway":       {},
}

// IsTrack reports whether a way carries usable railway track
func IsTrack(tags osm.Tags) bool {
	if _, ok := trackTypes[tags.Find("railway")]; !ok {
		return false
	}
	return tags.Find("disused") != "yes" && tags.Find("abandoned") != "yes"
}

type Parser struct {
	logger *slog.Logger
}

func NewParser(logger *slog.Logger) *Parser {
	return &Parser{
		logger: logger.With("component", "osm_parser"),
	}
}

func (p *Parser) ParseFile(ctx context.Context, path string) (*ParseResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open map: %w", err)
	}
	defer f.Close()
	return p.Parse(ctx, FormatFromPath(path), f)
}

// Parse reads r twice: the first pass collects track ways, the second the
// nodes those ways reference
func (p *Parser) Parse(ctx context.Context, format Format, r io.ReadSeeker) (*ParseResult, error) {
	start := time.Now()
	p.logger.Info("starting map parsing")

	result := &ParseResult{}
	wanted := make(map[int64]struct{})

	err := p.scan(ctx, format, r, false, func(obj osm.Object) {
		w, ok := obj.(*osm.Way)
		if !ok || !IsTrack(w.Tags) || len(w.Nodes) < 2 {
			return
		}
		ids := make([]int64, len(w.Nodes))
		for i, wn := range w.Nodes {
			ids[i] = int64(wn.ID)
			wanted[ids[i]] = struct{}{}
		}
		result.Ways = append(result.Ways, railgraph.WayRecord{ID: int64(w.ID), NodeIDs: ids})
	})
	if err != nil {
		return nil, fmt.Errorf("scan ways: %w", err)
	}
	p.logger.Info("parsed track ways",
		"ways", len(result.Ways),
		"referenced_nodes", len(wanted),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind map: %w", err)
	}

	nodesStart := time.Now()
	result.Nodes = make([]railgraph.NodeRecord, 0, len(wanted))
	err = p.scan(ctx, format, r, true, func(obj osm.Object) {
		n, ok := obj.(*osm.Node)
		if !ok {
			return
		}
		if _, ok := wanted[int64(n.ID)]; !ok {
			return
		}
		result.Nodes = append(result.Nodes, railgraph.NodeRecord{ID: int64(n.ID), Lat: n.Lat, Lon: n.Lon})
	})
	if err != nil {
		return nil, fmt.Errorf("scan nodes: %w", err)
	}

	if missing := len(wanted) - len(result.Nodes); missing > 0 {
		p.logger.Warn("ways reference nodes missing from the map", "count", missing)
	}
	p.logger.Info("map parsing completed",
		"nodes", len(result.Nodes),
		"ways", len(result.Ways),
		"nodes_duration_ms", time.Since(nodesStart).Milliseconds(),
		"total_duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

type scanner interface {
	Scan() bool
	Object() osm.Object
	Err() error
	Close() error
}

func (p *Parser) scan(ctx context.Context, format Format, r io.Reader, nodes bool, fn func(osm.Object)) error {
	var s scanner
	switch format {
	case FormatPBF:
		pbf := osmpbf.New(ctx, r, 4)
		pbf.SkipRelations = true
		pbf.SkipNodes = !nodes
		pbf.SkipWays = nodes
		s = pbf
	default:
		s = osmxml.New(ctx, r)
	}
	defer s.Close()

	for s.Scan() {
		fn(s.Object())
	}
	return s.Err()
}
