package chat

import (
	"context"
	"log/slog"
	"sync"
)

// BacklogLoader fetches the persisted messages exactly once per session.
// A failed fetch leaves the archived list empty and is not retried.
type BacklogLoader struct {
	source BacklogSource
	engine *Engine
	log    *slog.Logger
	once   sync.Once
}

func NewBacklogLoader(source BacklogSource, engine *Engine, log *slog.Logger) *BacklogLoader {
	if log == nil {
		log = slog.Default()
	}
	return &BacklogLoader{source: source, engine: engine, log: log.With("component", "backlog")}
}

// Load performs the fetch on the first call; later calls return immediately.
func (b *BacklogLoader) Load(ctx context.Context) {
	b.once.Do(func() {
		messages, err := b.source.Messages(ctx)
		if err != nil {
			b.log.Warn("failed to load backlog", "err", err)
			return
		}
		b.engine.SetArchive(messages)
		b.log.Info("loaded backlog", "messages", len(messages))
	})
}
