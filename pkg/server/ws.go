// Copyright (C) 2025
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"auto-offset-go/pkg/event"
	"auto-offset-go/pkg/log"
)

// wsEnvelope is the wire form of an event on the websocket stream.
type wsEnvelope struct {
	Kind string      `json:"kind"`
	Data event.Event `json:"data"`
}

// wsHub fans engine events out to connected websocket clients. A client
// that cannot keep up is dropped rather than blocking the publisher.
type wsHub struct {
	lg       *log.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	nextID  int64
	clients map[int64]chan wsEnvelope
}

func newWSHub(lg *log.Logger) *wsHub {
	return &wsHub{
		lg: lg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[int64]chan wsEnvelope),
	}
}

func (h *wsHub) handleConnect(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.lg.Warnf("websocket upgrade failed: %v", err)
		return
	}

	ch := make(chan wsEnvelope, 32)
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.clients[id] = ch
	h.mu.Unlock()
	h.lg.Debugf("websocket client %d connected from %s", id, r.RemoteAddr)

	go h.writeLoop(id, conn, ch)
	go h.readLoop(id, conn)
}

func (h *wsHub) writeLoop(id int64, conn *websocket.Conn, ch chan wsEnvelope) {
	defer conn.Close()
	for env := range ch {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(env); err != nil {
			h.lg.Debugf("websocket client %d write failed: %v", id, err)
			h.drop(id)
			return
		}
	}
}

// readLoop drains incoming frames so pings and close frames are
// processed; the stream is one-way otherwise.
func (h *wsHub) readLoop(id int64, conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.drop(id)
			return
		}
	}
}

func (h *wsHub) drop(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(ch)
	}
}

func (h *wsHub) broadcast(ev event.Event) {
	env := wsEnvelope{Kind: ev.Kind(), Data: ev}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.clients {
		select {
		case ch <- env:
		default:
			h.lg.Warnf("websocket client %d too slow, dropping", id)
			delete(h.clients, id)
			close(ch)
		}
	}
}

func (h *wsHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.clients {
		delete(h.clients, id)
		close(ch)
	}
}
