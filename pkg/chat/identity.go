package chat

import (
	"strings"
	"sync"
)

// Identity holds the local participant's nickname. It can be set once per
// session; after that it is locked.
type Identity struct {
	mu     sync.RWMutex
	label  string
	locked bool
}

// Set locks the identity on the first non-blank label. The label is kept as
// given.
func (i *Identity) Set(label string) error {
	if strings.TrimSpace(label) == "" {
		return ErrEmptyIdentity
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.locked {
		return ErrIdentityLocked
	}
	i.label = label
	i.locked = true
	return nil
}

// CanSend is true once a non-empty identity has been locked.
func (i *Identity) CanSend() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.locked && i.label != ""
}

func (i *Identity) Label() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.label
}

// State returns the label and whether it is locked as one consistent pair.
func (i *Identity) State() (string, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.label, i.locked
}

func (i *Identity) Locked() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.locked
}
