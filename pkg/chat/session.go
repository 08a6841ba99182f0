package chat

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

type Options struct {
	BaseUrl        string
	SocketUrl      string
	PollPeriod     time.Duration
	RetryDelay     time.Duration
	ReconnectDelay time.Duration
	RequestTimeout time.Duration
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// Session wires every source into one Engine for the lifetime of a client.
type Session struct {
	engine   *Engine
	identity *Identity

	backlog   *BacklogLoader
	push      *PushChannel
	longPoll  *LongPoller
	shortPoll *ShortPoller

	emitter     Emitter
	persister   Persister
	saveTimeout time.Duration
	log         *slog.Logger

	mu     sync.Mutex
	closed bool
	saves  sync.WaitGroup
}

func NewSession(opts Options) (*Session, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	client, err := NewClient(opts.BaseUrl, opts.HTTPClient)
	if err != nil {
		return nil, err
	}

	identity := new(Identity)
	engine := NewEngine(identity)
	push := NewPushChannel(opts.SocketUrl, engine, opts.ReconnectDelay, opts.Logger)

	s := &Session{
		engine:      engine,
		identity:    identity,
		backlog:     NewBacklogLoader(client, engine, opts.Logger),
		push:        push,
		longPoll:    NewLongPoller(client, engine, opts.RetryDelay, opts.RequestTimeout, opts.Logger),
		shortPoll:   NewShortPoller(client, engine, opts.PollPeriod, opts.RequestTimeout, opts.Logger),
		emitter:     push,
		persister:   client,
		saveTimeout: opts.RequestTimeout,
		log:         opts.Logger.With("component", "session"),
	}
	return s, nil
}

func (s *Session) Engine() *Engine {
	return s.engine
}

// Connected reports whether the push channel currently has a live subscription.
func (s *Session) Connected() bool {
	return s.push != nil && s.push.Connected()
}

func (s *Session) Snapshot() View {
	return s.engine.Snapshot()
}

// SetIdentity locks the nickname. Only the first non-empty call succeeds.
func (s *Session) SetIdentity(label string) error {
	if err := s.identity.Set(label); err != nil {
		return err
	}
	s.engine.IdentityChanged()
	s.log.Info("identity set", "nickname", s.identity.Label())
	return nil
}

// Send emits body under the current identity, echoes it locally as SelfMarker
// and persists it in the background. The persisted copy and the echo are not
// reconciled: a failed save is logged and the echo stays. Bodies are sent as
// typed, empty ones included.
func (s *Session) Send(ctx context.Context, body string) error {
	if !s.identity.CanSend() {
		return ErrIdentityUnset
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.saves.Add(1)
	s.mu.Unlock()
	from := s.identity.Label()

	if err := s.emitter.Emit(ctx, body, from); err != nil {
		s.log.Warn("failed to emit message", "err", err)
	}

	s.engine.PushLive(LiveMessage{Body: body, From: SelfMarker})

	go func() {
		defer s.saves.Done()
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.saveTimeout)
		defer cancel()
		if err := s.persister.Save(saveCtx, ArchivedMessage{Message: body, From: from}); err != nil {
			s.log.Warn("failed to persist message", "err", err)
		}
	}()
	return nil
}

// Run starts the backlog load and the three perpetual loops, and returns once
// ctx is cancelled and all of them have stopped.
func (s *Session) Run(ctx context.Context) error {
	wg := new(sync.WaitGroup)

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.backlog.Load(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.push.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.longPoll.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.shortPoll.Run(ctx)
	}()

	wg.Wait()
	s.drain()
	s.log.Info("session ended")
	return nil
}

// drain refuses further sends and waits for the saves already started.
func (s *Session) drain() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.saves.Wait()
}
