package chat

import "time"

type clock interface {
	After(d time.Duration) <-chan time.Time
	NewTicker(d time.Duration) ticker
}

type ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type systemClock struct{}

func (systemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

func (systemClock) NewTicker(d time.Duration) ticker {
	return systemTicker{time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (s systemTicker) Chan() <-chan time.Time { return s.t.C }
func (s systemTicker) Stop()                  { s.t.Stop() }
