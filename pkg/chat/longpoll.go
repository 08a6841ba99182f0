package chat

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultRetryDelay     = time.Second
	DefaultRequestTimeout = time.Minute
)

type PollState int32

const (
	StateIdle PollState = iota
	StateAwaiting
	StateDelivered
	StateFailed
)

func (s PollState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaiting:
		return "awaiting"
	case StateDelivered:
		return "delivered"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// LongPoller keeps exactly one notification request outstanding while its
// context is alive. Successes re-issue immediately, failures after a fixed
// backoff.
type LongPoller struct {
	source  NotificationSource
	engine  *Engine
	backoff backoff.BackOff
	timeout time.Duration
	clock   clock
	log     *slog.Logger

	state      atomic.Int32
	transition func(PollState)
}

func NewLongPoller(source NotificationSource, engine *Engine, retryDelay, timeout time.Duration, log *slog.Logger) *LongPoller {
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &LongPoller{
		source:  source,
		engine:  engine,
		backoff: backoff.NewConstantBackOff(retryDelay),
		timeout: timeout,
		clock:   systemClock{},
		log:     log.With("component", "longpoll"),
	}
}

func (p *LongPoller) State() PollState {
	return PollState(p.state.Load())
}

func (p *LongPoller) setState(s PollState) {
	p.state.Store(int32(s))
	if p.transition != nil {
		p.transition(s)
	}
}

// Run blocks until ctx is cancelled. The context is checked before every
// re-issue so no request outlives the session.
func (p *LongPoller) Run(ctx context.Context) {
	defer p.setState(StateIdle)
	for ctx.Err() == nil {
		p.setState(StateAwaiting)
		n, ok, err := p.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			p.setState(StateFailed)
			delay := p.backoff.NextBackOff()
			if delay == backoff.Stop || delay < 0 {
				delay = DefaultRetryDelay
			}
			p.log.Error("failed to fetch notification", "err", err, "retry_in", delay)
			select {
			case <-p.clock.After(delay):
			case <-ctx.Done():
			}
			continue
		}
		p.backoff.Reset()
		p.setState(StateDelivered)
		if ok {
			p.engine.SetNotification(n)
			p.log.Debug("notification delivered", "notification", n.String())
		}
	}
	p.log.Info("stopped notification long-poll")
}

func (p *LongPoller) fetch(ctx context.Context) (Notification, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.source.Notification(ctx)
}
