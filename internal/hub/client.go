package hub

import (
	"slices"
	"sync"
)

// Client is one push subscriber. The websocket writer drains Send; the hub
// closes it when the client is unregistered.
type Client struct {
	ID   string
	Send chan []byte

	mu    sync.RWMutex
	tiles map[string]struct{}
}

func NewClient(id string, bufferSize int) *Client {
	return &Client{
		ID:    id,
		Send:  make(chan []byte, bufferSize),
		tiles: make(map[string]struct{}),
	}
}

// Offer queues data without blocking and reports whether it fit
func (c *Client) Offer(data []byte) bool {
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) HasTile(tileID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.tiles[tileID]
	return ok
}

// Tiles returns the subscribed tile ids in sorted order
func (c *Client) Tiles() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.tiles))
	for id := range c.tiles {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (c *Client) setTiles(tileIDs []string, subscribed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range tileIDs {
		if subscribed {
			c.tiles[id] = struct{}{}
		} else {
			delete(c.tiles, id)
		}
	}
}
