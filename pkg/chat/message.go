// Package chat is the client-side synchronization core of relay-chat.
//
// Four sources feed one Engine: the push channel (live messages), the one-shot
// backlog load (archived messages), the notification long-poll and the
// presence short-poll. The presentation layer only ever reads Engine
// snapshots.
package chat

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// SelfMarker is the sender label of the local optimistic echo, independent of
// the chosen identity.
const SelfMarker = "Yo"

// LiveMessage arrived over the push channel or was echoed locally.
type LiveMessage struct {
	Body string `json:"body"`
	From string `json:"from"`
}

// ArchivedMessage came from the persisted backlog. Its text field is named
// "message" on the wire, unlike LiveMessage.
type ArchivedMessage struct {
	Message string `json:"message"`
	From    string `json:"from"`
}

// Notification is the last long-poll payload, kept as raw JSON because the
// server may send a bare boolean or something richer.
type Notification json.RawMessage

// Active reports whether the payload is truthy: false, null, 0, "" and an
// empty payload are all inactive.
func (n Notification) Active() bool {
	raw := bytes.TrimSpace(n)
	if len(raw) == 0 {
		return false
	}
	switch string(raw) {
	case "null", "false", `""`:
		return false
	}
	if f, err := strconv.ParseFloat(string(raw), 64); err == nil {
		return f != 0
	}
	return true
}

func (n Notification) String() string {
	if len(n) == 0 {
		return "null"
	}
	return string(n)
}

func (n Notification) clone() Notification {
	if n == nil {
		return nil
	}
	return append(Notification(nil), n...)
}
