package ingestor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"trainfinder/internal/domain"
	"trainfinder/internal/hub"
	"trainfinder/internal/metrics"
	"trainfinder/internal/store"
)

const (
	DefaultPositionInterval = 15 * time.Second
	DefaultTileZoomLevel    = 10
)

type Broadcaster interface {
	Broadcast(deltas []domain.TrainDelta)
}

type TrainSource interface {
	CurrentTrains(ctx context.Context) []*domain.Train
}

// Publisher recomputes train positions on a fixed interval, stores them and
// pushes the changes to subscribed clients
type Publisher struct {
	source      TrainSource
	store       *store.TrainStore
	broadcaster Broadcaster
	metrics     *metrics.Metrics
	interval    time.Duration
	zoomLevel   int
	logger      *slog.Logger

	ready   bool
	readyMu sync.RWMutex
}

func NewPublisher(source TrainSource, trains *store.TrainStore, broadcaster Broadcaster, m *metrics.Metrics, interval time.Duration, zoomLevel int, logger *slog.Logger) *Publisher {
	if interval <= 0 {
		interval = DefaultPositionInterval
	}
	if zoomLevel <= 0 {
		zoomLevel = DefaultTileZoomLevel
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Publisher{
		source:      source,
		store:       trains,
		broadcaster: broadcaster,
		metrics:     m,
		interval:    interval,
		zoomLevel:   zoomLevel,
		logger:      logger.With("component", "publisher"),
	}
}

func (p *Publisher) Start(ctx context.Context) {
	p.Publish(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Publish(ctx)
		}
	}
}

// Publish computes the current positions once and broadcasts the deltas
func (p *Publisher) Publish(ctx context.Context) []domain.TrainDelta {
	start := time.Now()

	trains := p.source.CurrentTrains(ctx)
	if ctx.Err() != nil {
		return nil
	}
	for _, t := range trains {
		t.TileID = hub.TileID(t.Position.Lat, t.Position.Lon, p.zoomLevel)
	}

	deltas := p.store.Replace(trains, time.Now())
	if p.broadcaster != nil {
		p.broadcaster.Broadcast(deltas)
	}
	p.metrics.TrainsActive.Set(float64(len(trains)))

	if !p.IsReady() {
		p.setReady(true)
	}

	p.logger.Debug("positions published",
		"trains", len(trains),
		"deltas", len(deltas),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return deltas
}

func (p *Publisher) IsReady() bool {
	p.readyMu.RLock()
	defer p.readyMu.RUnlock()
	return p.ready
}

func (p *Publisher) setReady(ready bool) {
	p.readyMu.Lock()
	defer p.readyMu.Unlock()
	p.ready = ready
}
