package api

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// WSMessage is the envelope pushed to subscribed operator UIs.
type WSMessage struct {
	Type    string      `json:"type"` // snapshot_created, correction_result, verification_result, restore_result, notification
	Payload interface{} `json:"payload,omitempty"`
}

// WSHub fans supervisor events out to connected operator sessions.
type WSHub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	subs     map[*websocket.Conn]struct{}
}

func NewWSHub() *WSHub {
	return &WSHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subs: map[*websocket.Conn]struct{}{},
	}
}

// HandleSubscriber upgrades the connection and keeps it until the client
// goes away.
func (h *WSHub) HandleSubscriber(w http.ResponseWriter, r *http.Request) {
	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	h.mu.Lock()
	h.subs[c] = struct{}{}
	h.mu.Unlock()
	log.Printf("operator ws connected (%d active)", h.count())
	go h.readLoop(c)
}

// Broadcast sends a message to every subscriber. Slow or broken connections
// are dropped, never waited on.
func (h *WSHub) Broadcast(msg WSMessage) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.subs))
	for c := range h.subs {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		if err := c.WriteJSON(msg); err != nil {
			log.Printf("ws broadcast failed, dropping subscriber: %v", err)
			h.drop(c)
		}
	}
}

func (h *WSHub) readLoop(c *websocket.Conn) {
	defer h.drop(c)
	for {
		// Subscribers only listen; a read error means the peer is gone.
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WSHub) drop(c *websocket.Conn) {
	_ = c.Close()
	h.mu.Lock()
	delete(h.subs, c)
	h.mu.Unlock()
}

func (h *WSHub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// HubNotifier adapts the hub to the snapshot.Notifier interface so core
// components can push operator notifications without knowing about
// websockets.
type HubNotifier struct {
	Hub *WSHub
}

func (n HubNotifier) Notify(title, body string) {
	if n.Hub == nil {
		return
	}
	n.Hub.Broadcast(WSMessage{Type: "notification", Payload: map[string]string{"title": title, "body": body}})
}
