package chat

import (
	"context"
	"sync"
	"time"
)

// fakeClock fires After immediately and records the requested delays.
// Tickers are handed to the test through the tickers channel.
type fakeClock struct {
	mu      sync.Mutex
	waits   []time.Duration
	tickers chan *fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{tickers: make(chan *fakeTicker, 1)}
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.waits = append(c.waits, d)
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

func (c *fakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

func (c *fakeClock) NewTicker(d time.Duration) ticker {
	t := &fakeTicker{period: d, c: make(chan time.Time), stopped: make(chan struct{})}
	c.tickers <- t
	return t
}

type fakeTicker struct {
	period  time.Duration
	c       chan time.Time
	once    sync.Once
	stopped chan struct{}
}

func (t *fakeTicker) Chan() <-chan time.Time { return t.c }
func (t *fakeTicker) Stop()                  { t.once.Do(func() { close(t.stopped) }) }

// Tick blocks until the poll loop has taken the tick.
func (t *fakeTicker) Tick() {
	t.c <- time.Time{}
}

type notificationResult struct {
	n   Notification
	ok  bool
	err error
}

// scriptedNotifications replays results in order, then blocks like an idle
// long-poll until the request context ends.
type scriptedNotifications struct {
	mu      sync.Mutex
	script  []notificationResult
	calls   int
	pending chan struct{}
}

func (s *scriptedNotifications) Notification(ctx context.Context) (Notification, bool, error) {
	s.mu.Lock()
	s.calls++
	if len(s.script) > 0 {
		r := s.script[0]
		s.script = s.script[1:]
		s.mu.Unlock()
		return r.n, r.ok, r.err
	}
	pending := s.pending
	s.mu.Unlock()
	if pending != nil {
		select {
		case pending <- struct{}{}:
		default:
		}
	}
	<-ctx.Done()
	return nil, false, ctx.Err()
}

func (s *scriptedNotifications) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type countSource struct {
	mu     sync.Mutex
	values []int
	errs   []error
	calls  int
}

func (s *countSource) UserCount(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return 0, s.errs[i]
	}
	if i < len(s.values) {
		return s.values[i], nil
	}
	return s.values[len(s.values)-1], nil
}

func (s *countSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type backlogSource struct {
	mu       sync.Mutex
	messages []ArchivedMessage
	err      error
	calls    int
}

func (s *backlogSource) Messages(context.Context) ([]ArchivedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.messages, s.err
}

func (s *backlogSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingPersister struct {
	mu    sync.Mutex
	saved []ArchivedMessage
	err   error
}

func (p *recordingPersister) Save(_ context.Context, m ArchivedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved = append(p.saved, m)
	return p.err
}

func (p *recordingPersister) Saved() []ArchivedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ArchivedMessage(nil), p.saved...)
}

type recordingEmitter struct {
	mu   sync.Mutex
	sent [][2]string
	err  error
}

func (e *recordingEmitter) Emit(_ context.Context, body, from string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent = append(e.sent, [2]string{body, from})
	return e.err
}

func (e *recordingEmitter) Sent() [][2]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][2]string(nil), e.sent...)
}
