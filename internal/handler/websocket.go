package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"trainfinder/internal/domain"
	"trainfinder/internal/hub"
	"trainfinder/internal/store"
)

// DefaultMaxSubscribedTiles caps how many tiles one bbox subscription expands to
const DefaultMaxSubscribedTiles = 256

type WSHandler struct {
	hub      *hub.Hub
	store    *store.TrainStore
	zoom     int
	maxTiles int
	logger   *slog.Logger
}

func NewWSHandler(h *hub.Hub, s *store.TrainStore, zoom int, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		hub:      h,
		store:    s,
		zoom:     zoom,
		maxTiles: DefaultMaxSubscribedTiles,
		logger:   logger.With("handler", "websocket"),
	}
}

type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubscribePayload selects tiles explicitly, by bounding box, or around a
// position. All given selectors are combined.
type SubscribePayload struct {
	TileIDs []string            `json:"tileIds"`
	BBox    *domain.BoundingBox `json:"bbox,omitempty"`
	Near    *domain.Coordinate  `json:"near,omitempty"`
}

type UnsubscribePayload struct {
	TileIDs []string `json:"tileIds"`
}

type SnapshotMessage struct {
	Type    string          `json:"type"`
	Payload SnapshotPayload `json:"payload"`
}

type SnapshotPayload struct {
	TileIDs []string        `json:"tileIds"`
	Trains  []*domain.Train `json:"trains"`
}

type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type PongMessage struct {
	Type string `json:"type"`
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "request_id", RequestID(r.Context()), "error", err)
		return
	}

	clientID := uuid.New().String()
	client := hub.NewClient(clientID, 256)

	h.hub.Register(client)
	ServerStats.IncWSConnections()
	defer ServerStats.DecWSConnections()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writeLoop(ctx, conn, client)

	h.readLoop(ctx, conn, client)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	defer func() {
		h.hub.Unregister(client)
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				h.logger.Debug("websocket read error", "client_id", client.ID, "error", err)
			}
			return
		}
		ServerStats.IncWSMessagesIn()

		if msgType != websocket.MessageText {
			continue
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("invalid message format", "client_id", client.ID, "error", err)
			h.send(client, ErrorMessage{Type: "error", Error: "invalid message format"})
			continue
		}

		switch msg.Type {
		case "subscribe":
			var payload SubscribePayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				h.send(client, ErrorMessage{Type: "error", Error: "invalid subscribe payload"})
				continue
			}
			tileIDs, errMsg := h.resolveTiles(payload)
			if errMsg != "" {
				h.send(client, ErrorMessage{Type: "error", Error: errMsg})
				continue
			}
			if len(tileIDs) > 0 {
				h.hub.Subscribe(client, tileIDs)
				h.sendSnapshot(client, tileIDs)
			}

		case "unsubscribe":
			var payload UnsubscribePayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				continue
			}
			if len(payload.TileIDs) > 0 {
				h.hub.Unsubscribe(client, payload.TileIDs)
			}

		case "ping":
			h.send(client, PongMessage{Type: "pong"})

		default:
			h.send(client, ErrorMessage{Type: "error", Error: "unknown message type " + msg.Type})
		}
	}
}

// resolveTiles turns a subscription into tile ids at the publishing zoom level.
// Tile ids at other zoom levels never receive deltas and are rejected.
func (h *WSHandler) resolveTiles(p SubscribePayload) ([]string, string) {
	seen := make(map[string]struct{})
	var tiles []string
	add := func(ids ...string) {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			tiles = append(tiles, id)
		}
	}

	for _, id := range p.TileIDs {
		zoom, _, _, ok := hub.ParseTileID(id)
		if !ok || zoom != h.zoom {
			return nil, "invalid tile id " + id
		}
		add(id)
	}

	if p.BBox != nil {
		bboxTiles := hub.TilesInBBox(*p.BBox, h.zoom, h.maxTiles)
		if bboxTiles == nil {
			return nil, "bbox covers too many tiles"
		}
		add(bboxTiles...)
	}

	if p.Near != nil {
		_, x, y, _ := hub.ParseTileID(hub.TileID(p.Near.Lat, p.Near.Lon, h.zoom))
		add(hub.AdjacentTiles(h.zoom, x, y)...)
	}

	if len(tiles) > h.maxTiles {
		return nil, "subscription covers too many tiles"
	}
	return tiles, ""
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
			ServerStats.IncWSMessagesOut()

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) sendSnapshot(client *hub.Client, tileIDs []string) {
	trains := h.store.SnapshotForTiles(tileIDs)
	if trains == nil {
		trains = []*domain.Train{}
	}

	h.send(client, SnapshotMessage{
		Type: "snapshot",
		Payload: SnapshotPayload{
			TileIDs: tileIDs,
			Trains:  trains,
		},
	})
}

func (h *WSHandler) send(client *hub.Client, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encoding websocket message", "client_id", client.ID, "error", err)
		return
	}
	if !client.Offer(data) {
		h.logger.Debug("client send buffer full", "client_id", client.ID)
	}
}
