// Package realtime holds live dialogue and onboarding sessions in memory and
// serves them over WebSocket.
package realtime

import (
	"log/slog"
	"sync"
	"time"
)

// Key identifies one live session: a user, a browser tab and, for dialogues,
// an encounter.
type Key struct {
	UserID      string
	TabID       string
	EncounterID string
}

// Idler is a session the registry can evict once it has been idle long enough.
type Idler interface {
	LastActive() time.Time
	Busy() bool
}

// Registry manages live sessions keyed by Key.
type Registry[S Idler] struct {
	name     string
	onChange func(variant string, n int)
	onRemove func(S)

	mu     sync.RWMutex
	active map[Key]S
}

// NewRegistry creates an empty registry. onChange, if set, is called with the
// new size after every insertion or removal.
func NewRegistry[S Idler](name string, onChange func(variant string, n int)) *Registry[S] {
	return &Registry[S]{
		name:     name,
		onChange: onChange,
		active:   make(map[Key]S),
	}
}

// OnRemove sets fn to be called with every session that leaves the registry.
// fn runs under the registry lock and must not call back into r.
func (r *Registry[S]) OnRemove(fn func(S)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRemove = fn
}

// Get returns the session for key.
func (r *Registry[S]) Get(key Key) (S, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.active[key]
	return s, ok
}

// GetOrCreate returns the session for key, calling create if there is none.
// The boolean reports whether a new session was created.
func (r *Registry[S]) GetOrCreate(key Key, create func() (S, error)) (S, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.active[key]; ok {
		return s, false, nil
	}
	s, err := create()
	if err != nil {
		var zero S
		return zero, false, err
	}
	r.active[key] = s
	slog.Info("session registered", "variant", r.name, "user_id", key.UserID, "tab_id", key.TabID, "encounter_id", key.EncounterID)
	r.changedLocked()
	return s, true, nil
}

// Remove drops the session for key.
func (r *Registry[S]) Remove(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.active[key]
	if !ok {
		return
	}
	delete(r.active, key)
	r.removedLocked(s)
	slog.Info("session unregistered", "variant", r.name, "user_id", key.UserID, "tab_id", key.TabID)
	r.changedLocked()
}

// RemoveUser drops every session belonging to userID.
func (r *Registry[S]) RemoveUser(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k, s := range r.active {
		if k.UserID == userID {
			delete(r.active, k)
			r.removedLocked(s)
			n++
		}
	}
	if n > 0 {
		r.changedLocked()
	}
	return n
}

// EvictIdle drops sessions that finished their last exchange before cutoff.
// Sessions with an exchange in flight are kept.
func (r *Registry[S]) EvictIdle(cutoff time.Time) []Key {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []Key
	for k, s := range r.active {
		if s.Busy() || !s.LastActive().Before(cutoff) {
			continue
		}
		delete(r.active, k)
		r.removedLocked(s)
		evicted = append(evicted, k)
	}
	if len(evicted) > 0 {
		r.changedLocked()
	}
	return evicted
}

// Each calls fn for every live session. fn must not call back into r.
func (r *Registry[S]) Each(fn func(Key, S)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for k, s := range r.active {
		fn(k, s)
	}
}

// Len returns the number of live sessions.
func (r *Registry[S]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

func (r *Registry[S]) removedLocked(s S) {
	if r.onRemove != nil {
		r.onRemove(s)
	}
}

func (r *Registry[S]) changedLocked() {
	if r.onChange != nil {
		r.onChange(r.name, len(r.active))
	}
}
