package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const DefaultReconnectDelay = time.Second

// Emitter publishes an outbound message event.
type Emitter interface {
	Emit(ctx context.Context, body, from string) error
}

// PushChannel holds the single websocket subscription to the message event
// stream. At most one connection and one reader exist at any time.
type PushChannel struct {
	url       string
	dialer    *websocket.Dialer
	engine    *Engine
	reconnect time.Duration
	clock     clock
	log       *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewPushChannel(socketUrl string, engine *Engine, reconnect time.Duration, log *slog.Logger) *PushChannel {
	if reconnect <= 0 {
		reconnect = DefaultReconnectDelay
	}
	if log == nil {
		log = slog.Default()
	}
	return &PushChannel{
		url:       socketUrl,
		dialer:    websocket.DefaultDialer,
		engine:    engine,
		reconnect: reconnect,
		clock:     systemClock{},
		log:       log.With("component", "push"),
	}
}

// Run subscribes and keeps resubscribing after connection loss until ctx is
// cancelled.
func (p *PushChannel) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if err := p.subscribe(ctx); err != nil && ctx.Err() == nil {
			p.log.Error("push channel dropped", "err", err, "retry_in", p.reconnect)
		}
		select {
		case <-p.clock.After(p.reconnect):
		case <-ctx.Done():
		}
	}
	p.log.Info("stopped push channel")
}

// Connected reports whether a subscription is currently live.
func (p *PushChannel) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil
}

func (p *PushChannel) subscribe(ctx context.Context) error {
	conn, _, err := p.dialer.DialContext(ctx, p.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}
	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()
	p.log.Info("subscribed", "url", p.url)

	done := make(chan struct{})
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			_ = conn.Close()
		case <-done:
		}
	}()

	defer func() {
		p.mu.Lock()
		p.conn = nil
		p.mu.Unlock()
		close(done)
		<-closed
		_ = conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read frame: %w", err)
		}
		frame, err := DecodeFrame(raw)
		if err != nil {
			p.log.Warn("dropping frame", "err", err)
			continue
		}
		p.deliver(frame)
	}
}

func (p *PushChannel) deliver(frame Frame) {
	if frame.Event != EventMessage {
		p.log.Debug("ignoring event", "event", frame.Event)
		return
	}
	m, err := frame.Message()
	if err != nil {
		p.log.Warn("dropping frame", "err", err)
		return
	}
	p.engine.PushLive(m)
}

// Emit writes a message event on the live connection.
func (p *PushChannel) Emit(ctx context.Context, body, from string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return ErrNotConnected
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = p.conn.SetWriteDeadline(deadline)
		defer p.conn.SetWriteDeadline(time.Time{})
	}
	if err := p.conn.WriteJSON(NewEmitFrame(body, from)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}
