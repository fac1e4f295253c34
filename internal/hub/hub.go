package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"trainfinder/internal/domain"
)

const (
	registerBuffer  = 16
	broadcastBuffer = 256
)

// Hub routes train deltas to the clients watching the tile each delta
// belongs to. Register, Unregister and Broadcast are served by Run.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]struct{}
	tileClients map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan []domain.TrainDelta

	sent    atomic.Int64
	dropped atomic.Int64

	logger *slog.Logger
}

// Stats counts delivered and dropped client messages
type Stats struct {
	Clients  int   `json:"clients"`
	Tiles    int   `json:"tiles"`
	Messages int64 `json:"messages"`
	Dropped  int64 `json:"dropped"`
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:     make(map[*Client]struct{}),
		tileClients: make(map[string]map[*Client]struct{}),
		register:    make(chan *Client, registerBuffer),
		unregister:  make(chan *Client, registerBuffer),
		broadcast:   make(chan []domain.TrainDelta, broadcastBuffer),
		logger:      logger.With("component", "hub"),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.ID, "total", len(h.clients))

		case client := <-h.unregister:
			h.removeClient(client)

		case deltas := <-h.broadcast:
			h.fanoutDeltas(deltas)
		}
	}
}

func (h *Hub) Subscribe(client *Client, tileIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.setTiles(tileIDs, true)
	for _, tileID := range tileIDs {
		watchers, ok := h.tileClients[tileID]
		if !ok {
			watchers = make(map[*Client]struct{})
			h.tileClients[tileID] = watchers
		}
		watchers[client] = struct{}{}
	}
}

func (h *Hub) Unsubscribe(client *Client, tileIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.setTiles(tileIDs, false)
	h.detach(client, tileIDs)
}

// detach drops client from the given tiles and forgets tiles nobody watches.
// The caller holds h.mu.
func (h *Hub) detach(client *Client, tileIDs []string) {
	for _, tileID := range tileIDs {
		watchers, ok := h.tileClients[tileID]
		if !ok {
			continue
		}
		delete(watchers, client)
		if len(watchers) == 0 {
			delete(h.tileClients, tileID)
		}
	}
}

func (h *Hub) Broadcast(deltas []domain.TrainDelta) {
	if len(deltas) == 0 {
		return
	}
	select {
	case h.broadcast <- deltas:
	default:
		h.logger.Warn("broadcast channel full, dropping deltas", "count", len(deltas))
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{
		Clients:  len(h.clients),
		Tiles:    len(h.tileClients),
		Messages: h.sent.Load(),
		Dropped:  h.dropped.Load(),
	}
}

type DeltaMessage struct {
	Type    string       `json:"type"`
	Payload DeltaPayload `json:"payload"`
}

type DeltaPayload struct {
	Updates []*domain.Train `json:"updates,omitempty"`
	Removes []string        `json:"removes,omitempty"`
}

func (h *Hub) fanoutDeltas(deltas []domain.TrainDelta) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	perClient := make(map[*Client][]domain.TrainDelta)
	for _, d := range deltas {
		for client := range h.tileClients[d.TileID] {
			perClient[client] = append(perClient[client], d)
		}
	}

	for client, ds := range perClient {
		data, err := json.Marshal(buildDeltaMessage(ds))
		if err != nil {
			h.logger.Error("encoding delta message", "client_id", client.ID, "error", err)
			continue
		}
		if client.Offer(data) {
			h.sent.Add(1)
			continue
		}
		h.dropped.Add(1)
		h.logger.Debug("client send buffer full", "client_id", client.ID, "deltas", len(ds))
	}
}

// buildDeltaMessage folds deltas into one message. A train that moved between
// two tiles the client watches arrives as a remove and an update; only the
// update is kept.
func buildDeltaMessage(deltas []domain.TrainDelta) DeltaMessage {
	var updates []*domain.Train
	updated := make(map[string]struct{})

	for _, d := range deltas {
		if d.Type == domain.DeltaUpdate && d.Train != nil {
			updates = append(updates, d.Train)
			updated[d.Train.Key] = struct{}{}
		}
	}

	var removes []string
	for _, d := range deltas {
		if d.Type != domain.DeltaRemove {
			continue
		}
		if _, ok := updated[d.Key]; !ok {
			removes = append(removes, d.Key)
		}
	}

	return DeltaMessage{
		Type: "delta",
		Payload: DeltaPayload{
			Updates: updates,
			Removes: removes,
		},
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	h.detach(client, client.Tiles())
	delete(h.clients, client)
	close(client.Send)
	h.logger.Debug("client unregistered", "client_id", client.ID, "total", len(h.clients))
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.Send)
	}
	h.clients = make(map[*Client]struct{})
	h.tileClients = make(map[string]map[*Client]struct{})
}
