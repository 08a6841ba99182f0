package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBacklogLoadsOnce(t *testing.T) {
	source := &backlogSource{messages: []ArchivedMessage{
		{Message: "first", From: "bob"},
		{Message: "second", From: "carol"},
	}}
	engine := NewEngine(nil)
	b := NewBacklogLoader(source, engine, nil)

	b.Load(context.Background())
	for i := 0; i < 10; i++ {
		_ = engine.Snapshot()
		b.Load(context.Background())
	}

	assert.Equal(t, 1, source.Calls())
	assert.Equal(t, source.messages, engine.Snapshot().Archived)
}

func TestBacklogFailureLeavesArchiveEmpty(t *testing.T) {
	source := &backlogSource{err: errors.New("connection refused")}
	engine := NewEngine(nil)
	b := NewBacklogLoader(source, engine, nil)

	b.Load(context.Background())
	b.Load(context.Background())

	assert.Equal(t, 1, source.Calls(), "no retry after a failed load")
	assert.Empty(t, engine.Snapshot().Archived)
}
