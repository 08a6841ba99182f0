package chat

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushLiveIsMostRecentFirst(t *testing.T) {
	e := NewEngine(nil)
	for i := 0; i < 5; i++ {
		before := len(e.Snapshot().Live)
		e.PushLive(LiveMessage{Body: fmt.Sprintf("m%d", i), From: "bob"})
		assert.Len(t, e.Snapshot().Live, before+1)
	}

	live := e.Snapshot().Live
	require.Len(t, live, 5)
	for i, m := range live {
		assert.Equal(t, fmt.Sprintf("m%d", 4-i), m.Body)
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	e := NewEngine(nil)
	e.PushLive(LiveMessage{Body: "a", From: "bob"})
	e.SetArchive([]ArchivedMessage{{Message: "old", From: "carol"}})
	e.SetNotification(Notification(`{"level":"high"}`))

	v := e.Snapshot()
	v.Live[0].Body = "mutated"
	v.Archived[0].Message = "mutated"
	v.Notification[2] = 'X'

	again := e.Snapshot()
	assert.Equal(t, "a", again.Live[0].Body)
	assert.Equal(t, "old", again.Archived[0].Message)
	assert.Equal(t, `{"level":"high"}`, again.Notification.String())
}

func TestArchiveIsReplacedAndNotMergedWithLive(t *testing.T) {
	e := NewEngine(nil)
	e.PushLive(LiveMessage{Body: "hi", From: SelfMarker})

	input := []ArchivedMessage{{Message: "one", From: "a"}, {Message: "hi", From: "alice"}}
	e.SetArchive(input)
	input[0].Message = "changed by caller"

	v := e.Snapshot()
	assert.Equal(t, []LiveMessage{{Body: "hi", From: SelfMarker}}, v.Live)
	assert.Equal(t, []ArchivedMessage{{Message: "one", From: "a"}, {Message: "hi", From: "alice"}}, v.Archived)

	e.SetArchive([]ArchivedMessage{{Message: "two", From: "b"}})
	assert.Equal(t, []ArchivedMessage{{Message: "two", From: "b"}}, e.Snapshot().Archived)
}

func TestPresenceAndNotificationAreLastWriteWins(t *testing.T) {
	e := NewEngine(nil)
	e.SetPresence(3)
	e.SetPresence(1)
	e.SetPresence(-4)
	e.SetNotification(Notification("true"))
	e.SetNotification(Notification("false"))

	v := e.Snapshot()
	assert.Equal(t, 1, v.Presence)
	assert.False(t, v.Notification.Active())
	assert.Equal(t, "false", v.Notification.String())
}

func TestChangesCoalesce(t *testing.T) {
	e := NewEngine(nil)
	e.PushLive(LiveMessage{Body: "a"})
	e.SetPresence(2)

	select {
	case <-e.Changes():
	default:
		t.Fatal("expected a change signal")
	}
	select {
	case <-e.Changes():
		t.Fatal("signals should coalesce")
	default:
	}
}

func TestViewIsSelf(t *testing.T) {
	id := new(Identity)
	e := NewEngine(id)
	m := ArchivedMessage{Message: "hey", From: "alice"}
	assert.False(t, e.Snapshot().IsSelf(m))

	require.NoError(t, id.Set("alice"))
	v := e.Snapshot()
	assert.True(t, v.IsSelf(m))
	assert.False(t, v.IsSelf(ArchivedMessage{Message: "hey", From: "bob"}))
}

func TestNotificationActive(t *testing.T) {
	for raw, want := range map[string]bool{
		"":                false,
		"null":            false,
		"false":           false,
		"0":               false,
		"0.0":             false,
		`""`:              false,
		"true":            true,
		"1":               true,
		`"alert"`:         true,
		`{"text":"fire"}`: true,
		"[]":              true,
		" \n true \n":     true,
	} {
		assert.Equal(t, want, Notification(raw).Active(), "payload %q", raw)
	}

	var decoded struct {
		Notification json.RawMessage `json:"notification"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"notification": true}`), &decoded))
	assert.True(t, Notification(decoded.Notification).Active())
}
