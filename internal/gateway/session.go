package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mantra-hq/mantra/internal/mcpmodel"
)

// sessionStore is a RW-locked registry of live MCP client connections, one
// per initialized client. Both the legacy SSE+/message transport and the
// newer Streamable HTTP /mcp transport share it, keyed by the same session
// ID space.
type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*mcpmodel.MCPSession
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*mcpmodel.MCPSession)}
}

// Create registers a new session under a fresh UUID and returns it.
func (s *sessionStore) Create(now time.Time) *mcpmodel.MCPSession {
	sess := &mcpmodel.MCPSession{
		ID:           uuid.NewString(),
		CreatedAt:    now,
		LastActivity: now,
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess
}

// Get returns the session for id, or nil.
func (s *sessionStore) Get(id string) *mcpmodel.MCPSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

// GetOrCreateEphemeral returns the session for id if it exists, or
// registers a new ephemeral one under that same ID — a client is allowed
// to send a request against a session ID the gateway never saw an
// initialize for (e.g. after a gateway restart), rather than being forced
// to reconnect.
func (s *sessionStore) GetOrCreateEphemeral(id string, now time.Time) *mcpmodel.MCPSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess
	}
	sess := &mcpmodel.MCPSession{ID: id, CreatedAt: now, LastActivity: now}
	s.sessions[id] = sess
	return sess
}

// Delete removes a session, e.g. on disconnect.
func (s *sessionStore) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Count returns the number of live sessions.
func (s *sessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Touch updates a session's last-activity timestamp.
func (s *sessionStore) Touch(id string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.Touch(now)
	}
}

// SweepIdle removes sessions that haven't been touched within maxIdle,
// returning how many were removed. The gateway does not schedule it: a
// session whose client vanished without a clean disconnect stays in the
// store until a caller runs SweepIdle.
func (s *sessionStore) SweepIdle(maxIdle time.Duration, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.LastActivity) > maxIdle {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}
