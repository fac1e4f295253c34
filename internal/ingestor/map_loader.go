package ingestor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"trainfinder/internal/railgraph"
	"trainfinder/pkg/osmrail"
)

// MapLoader builds the railway graph from an OSM extract, reusing a parsed
// copy when the extract has not changed
type MapLoader struct {
	source string
	cache  *osmrail.ParseCache
	parser *osmrail.Parser
	logger *slog.Logger
}

func NewMapLoader(source, cacheDir string, logger *slog.Logger) *MapLoader {
	return &MapLoader{
		source: source,
		cache:  osmrail.NewParseCache(cacheDir),
		parser: osmrail.NewParser(logger),
		logger: logger.With("component", "map_loader"),
	}
}

func (l *MapLoader) Load(ctx context.Context) (*railgraph.Graph, error) {
	l.logger.Info("starting map import", "source", l.source)
	start := time.Now()

	path := l.source
	if osmrail.IsRemote(l.source) {
		downloaded, err := osmrail.NewDownloader(l.source, l.logger).Download(ctx, l.cache.Dir())
		if err != nil {
			return nil, fmt.Errorf("download map: %w", err)
		}
		path = downloaded
	}

	fingerprint, err := osmrail.Fingerprint(path)
	if err != nil {
		return nil, fmt.Errorf("fingerprint map: %w", err)
	}

	parseStart := time.Now()
	result, err := l.parsed(ctx, path, fingerprint)
	if err != nil {
		return nil, err
	}
	parseDuration := time.Since(parseStart)

	buildStart := time.Now()
	graph, err := railgraph.Build(result.Nodes, result.Ways)
	if err != nil {
		return nil, fmt.Errorf("build railway graph: %w", err)
	}

	l.logger.Info("map import completed",
		"parse_duration", parseDuration,
		"build_duration", time.Since(buildStart),
		"total_duration", time.Since(start),
		"nodes", graph.NodeCount(),
		"edges", graph.EdgeCount(),
		"longest_edge_m", int(graph.LongestEdge()),
	)
	return graph, nil
}

func (l *MapLoader) parsed(ctx context.Context, path, fingerprint string) (*osmrail.ParseResult, error) {
	result, err := l.cache.Load(fingerprint)
	switch {
	case err == nil:
		l.logger.Info("using parsed map from cache", "sha256", fingerprint)
		return result, nil
	case errors.Is(err, osmrail.ErrCacheMiss):
		l.logger.Info("map not cached, parsing extract", "sha256", fingerprint, "cache_dir", l.cache.Dir())
	default:
		l.logger.Warn("unreadable map cache entry, parsing extract", "sha256", fingerprint, "error", err)
	}

	result, err = l.parser.ParseFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("parse map: %w", err)
	}
	if saved, err := l.cache.Save(fingerprint, result); err != nil {
		l.logger.Warn("failed to persist parsed map cache", "error", err)
	} else {
		l.logger.Info("persisted parsed map cache", "path", saved)
	}
	return result, nil
}
