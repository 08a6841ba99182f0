// Package relay is the server side of relay-chat: it fans live messages out to
// websocket peers, counts them, holds notification long-polls and serves the
// message backlog.
package relay

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/astromechza/relay-chat/pkg/chat"
)

const writeWait = 5 * time.Second

type peer struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (p *peer) write(f chat.Frame) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteJSON(f)
}

// Hub tracks connected peers. Its size is the presence count.
type Hub struct {
	upgrader websocket.Upgrader
	log      *slog.Logger

	mu     sync.Mutex
	peers  map[*peer]struct{}
	closed bool
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log:   log.With("component", "hub"),
		peers: make(map[*peer]struct{}),
	}
}

// Count is the number of currently connected peers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *Hub) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	conn, err := h.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		h.log.Error("failed to upgrade", "err", err)
		return
	}
	p := &peer{conn: conn}
	if !h.add(p) {
		_ = conn.Close()
		return
	}
	defer h.remove(p)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				h.log.Debug("peer read ended", "err", err)
			}
			return
		}
		frame, err := chat.DecodeFrame(raw)
		if err != nil {
			h.log.Warn("dropping frame", "err", err)
			continue
		}
		m, err := frame.Message()
		if err != nil {
			h.log.Warn("dropping frame", "err", err)
			continue
		}
		h.broadcast(p, m)
	}
}

// broadcast sends m to every peer except the sender, which already echoed it.
func (h *Hub) broadcast(from *peer, m chat.LiveMessage) {
	h.mu.Lock()
	targets := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		if p != from {
			targets = append(targets, p)
		}
	}
	h.mu.Unlock()

	frame := chat.NewDeliveryFrame(m)
	for _, p := range targets {
		if err := p.write(frame); err != nil {
			h.log.Warn("failed to deliver", "err", err)
			_ = p.conn.Close()
		}
	}
	h.log.Info("broadcast", "from", m.From, "peers", len(targets))
}

func (h *Hub) add(p *peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.peers[p] = struct{}{}
	h.log.Info("peer connected", "peers", len(h.peers))
	return true
}

func (h *Hub) remove(p *peer) {
	h.mu.Lock()
	delete(h.peers, p)
	n := len(h.peers)
	h.mu.Unlock()
	_ = p.conn.Close()
	h.log.Info("peer disconnected", "peers", n)
}

// Close disconnects every peer and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	peers := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()
	for _, p := range peers {
		_ = p.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(time.Second),
		)
		_ = p.conn.Close()
	}
}
