package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const DefaultPollPeriod = 5 * time.Second

// ShortPoller asks for the presence count immediately and then once per
// period. Failed polls keep the last known count.
type ShortPoller struct {
	source  PresenceSource
	engine  *Engine
	period  time.Duration
	timeout time.Duration
	clock   clock
	log     *slog.Logger
}

func NewShortPoller(source PresenceSource, engine *Engine, period, timeout time.Duration, log *slog.Logger) *ShortPoller {
	if period <= 0 {
		period = DefaultPollPeriod
	}
	if timeout <= 0 || timeout > period {
		timeout = period
	}
	if log == nil {
		log = slog.Default()
	}
	return &ShortPoller{
		source:  source,
		engine:  engine,
		period:  period,
		timeout: timeout,
		clock:   systemClock{},
		log:     log.With("component", "shortpoll"),
	}
}

func (p *ShortPoller) Run(ctx context.Context) {
	t := p.clock.NewTicker(p.period)
	defer t.Stop()

	p.poll(ctx)
	for {
		select {
		case <-t.Chan():
			p.poll(ctx)
		case <-ctx.Done():
			p.log.Info("stopping scheduled presence poll")
			return
		}
	}
}

func (p *ShortPoller) poll(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	count, err := p.source.UserCount(ctx)
	if err != nil {
		if !errors.Is(ctx.Err(), context.Canceled) {
			p.log.Warn("failed to fetch user count", "err", err)
		}
		return
	}
	p.engine.SetPresence(count)
}
