package session

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Factory builds an unstarted session for key.
type Factory func(key Key) *Session

// Panel binds a chart panel id to the series it displays.
type Panel struct {
	ID  string
	Key Key
}

// Registry owns one session per chart panel. Replacing a panel's session
// disposes the old one before the new one starts, so a panel never has two
// live connections.
type Registry struct {
	factory Factory
	logger  *zap.Logger

	mu       sync.Mutex
	closed   bool
	sessions map[string]*Session
}

func NewRegistry(factory Factory, logger *zap.Logger) *Registry {
	return &Registry{
		factory:  factory,
		logger:   logger.Named("registry"),
		sessions: make(map[string]*Session),
	}
}

// Ensure makes panelID show key. It returns the panel's session and whether
// a new one was created.
func (r *Registry) Ensure(panelID string, key Key) (*Session, bool, error) {
	key = key.Normalize()
	if err := key.Validate(); err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, false, ErrDisposed
	}

	if cur, ok := r.sessions[panelID]; ok {
		if cur.Key() == key {
			return cur, false, nil
		}
		delete(r.sessions, panelID)
		cur.Dispose()
	}

	s := r.factory(key)
	r.sessions[panelID] = s
	if err := s.Start(); err != nil {
		delete(r.sessions, panelID)
		return nil, false, err
	}

	r.logger.Info("panel session started", zap.String("panel", panelID), zap.String("key", key.String()))
	return s, true, nil
}

// Remove disposes the panel's session, if any.
func (r *Registry) Remove(panelID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[panelID]
	if !ok {
		return false
	}
	delete(r.sessions, panelID)
	s.Dispose()
	return true
}

func (r *Registry) Get(panelID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[panelID]
	return s, ok
}

// Sync ensures every listed panel and removes panels not listed.
func (r *Registry) Sync(panels []Panel) error {
	want := make(map[string]struct{}, len(panels))
	for _, p := range panels {
		want[p.ID] = struct{}{}
	}

	for _, id := range r.Panels() {
		if _, ok := want[id]; !ok {
			r.Remove(id)
		}
	}

	for _, p := range panels {
		if _, _, err := r.Ensure(p.ID, p.Key); err != nil {
			return err
		}
	}
	return nil
}

// Panels lists panel ids in sorted order.
func (r *Registry) Panels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Snapshots() map[string]Snapshot {
	r.mu.Lock()
	sessions := make(map[string]*Session, len(r.sessions))
	for id, s := range r.sessions {
		sessions[id] = s
	}
	r.mu.Unlock()

	out := make(map[string]Snapshot, len(sessions))
	for id, s := range sessions {
		out[id] = s.Snapshot()
	}
	return out
}

// Close disposes every session; later Ensure calls fail.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	for id, s := range r.sessions {
		s.Dispose()
		delete(r.sessions, id)
	}
}
