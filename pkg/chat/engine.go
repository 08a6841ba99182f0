package chat

import (
	"sync"
)

// View is an immutable snapshot of everything the presentation layer shows.
// Live is most recent first; Archived keeps server order.
type View struct {
	Live           []LiveMessage
	Archived       []ArchivedMessage
	Presence       int
	Notification   Notification
	Identity       string
	IdentityLocked bool
}

// IsSelf reports whether an archived message was written under the current
// identity.
func (v View) IsSelf(m ArchivedMessage) bool {
	return v.IdentityLocked && m.From == v.Identity
}

// Engine merges the four ingestion paths into one view. Live and archived
// lists are never deduplicated against each other.
type Engine struct {
	identity *Identity

	mu           sync.Mutex
	live         []LiveMessage // arrival order, reversed on snapshot
	archived     []ArchivedMessage
	presence     int
	notification Notification

	changes chan struct{}
}

func NewEngine(identity *Identity) *Engine {
	if identity == nil {
		identity = new(Identity)
	}
	return &Engine{
		identity: identity,
		changes:  make(chan struct{}, 1),
	}
}

func (e *Engine) Identity() *Identity {
	return e.identity
}

// PushLive records a message as the newest live entry.
func (e *Engine) PushLive(m LiveMessage) {
	e.mu.Lock()
	e.live = append(e.live, m)
	e.mu.Unlock()
	e.notify()
}

// SetArchive replaces the archived list wholesale.
func (e *Engine) SetArchive(messages []ArchivedMessage) {
	cp := make([]ArchivedMessage, len(messages))
	copy(cp, messages)
	e.mu.Lock()
	e.archived = cp
	e.mu.Unlock()
	e.notify()
}

// SetPresence overwrites the connected-user count. Negative counts are ignored.
func (e *Engine) SetPresence(count int) {
	if count < 0 {
		return
	}
	e.mu.Lock()
	e.presence = count
	e.mu.Unlock()
	e.notify()
}

// SetNotification replaces the notification state with the latest payload.
func (e *Engine) SetNotification(n Notification) {
	n = n.clone()
	e.mu.Lock()
	e.notification = n
	e.mu.Unlock()
	e.notify()
}

// IdentityChanged signals readers that the identity got locked.
func (e *Engine) IdentityChanged() {
	e.notify()
}

func (e *Engine) Snapshot() View {
	e.mu.Lock()
	defer e.mu.Unlock()

	live := make([]LiveMessage, len(e.live))
	for i, m := range e.live {
		live[len(e.live)-1-i] = m
	}
	archived := make([]ArchivedMessage, len(e.archived))
	copy(archived, e.archived)
	label, locked := e.identity.State()

	return View{
		Live:           live,
		Archived:       archived,
		Presence:       e.presence,
		Notification:   e.notification.clone(),
		Identity:       label,
		IdentityLocked: locked,
	}
}

// Changes fires after every mutation. Signals coalesce, so a reader should
// take a fresh Snapshot each time it wakes up.
func (e *Engine) Changes() <-chan struct{} {
	return e.changes
}

func (e *Engine) notify() {
	select {
	case e.changes <- struct{}{}:
	default:
	}
}
