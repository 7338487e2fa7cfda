package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/faithboy007/world-conquest-veterinary-home/payment"

	"go.uber.org/zap"
)

var ErrSessionNotFound = errors.New("session not found")

// Registry holds the live sessions of the service. Sessions are never
// persisted; idle ones are ended by Sweep.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	deps     Deps
	now      func() time.Time
}

func NewRegistry(deps Deps) *Registry {
	if deps.References == nil {
		deps.References = payment.NewReferenceGenerator(deps.ReferencePrefix)
	}
	return &Registry{
		sessions: make(map[string]*Session),
		deps:     deps,
		now:      time.Now,
	}
}

func (r *Registry) Create() *Session {
	s := NewSession(r.deps)
	s.touch(r.now())

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.deps.Logger.Info("Session created", zap.String("session_id", s.ID))
	return s
}

// Get returns a live session and marks it as used.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touch(r.now())
	return s, nil
}

// End removes a session and tears it down.
func (r *Registry) End(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.End(ctx)
	r.deps.Logger.Info("Session ended", zap.String("session_id", id))
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep ends every session that has not been used for the idle TTL and
// returns how many were ended. A zero TTL disables it.
func (r *Registry) Sweep(ctx context.Context) int {
	ttl := r.deps.SessionIdleTTL
	if ttl <= 0 {
		return 0
	}
	cutoff := r.now().Add(-ttl)

	var idle []*Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			idle = append(idle, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		s.End(ctx)
	}
	if len(idle) > 0 {
		r.deps.Logger.Info("Idle sessions ended", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// Close ends every session. Used on shutdown.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.End(ctx)
	}
}
