package session

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/kandev/claude-acp-agent/internal/validate"
)

// randomSuffix is swapped in tests; production uses a real uuid.
var randomSuffix = func() string { return uuid.NewString() }

// NewSessionID generates an opaque, high-entropy SessionId in the
// "sess_<random>" format required by the spec.
func NewSessionID() string {
	return "sess_" + randomSuffix()
}

// Store is the thread-safe SessionId -> Session map (C4). A single global
// lock guards the map itself; each Session's own fields are serialized via
// its own mutex, so store-wide contention only covers create/get/delete.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore constructs an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// ValidateCwd checks that cwd is an absolute, existing, accessible directory.
// Exposed separately from Create so callers can validate before allocating
// any session-scoped resources (no partial state to roll back on failure).
func ValidateCwd(cwd string) error {
	if err := validate.Path("cwd", cwd, validate.PathOptions{}); err != nil {
		return err
	}
	info, err := os.Stat(cwd)
	if err != nil {
		return fmt.Errorf("cwd %q is not accessible: %w", cwd, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("cwd %q is not a directory", cwd)
	}
	return nil
}

// Put registers a fully constructed Session (subprocess already spawned,
// notification sender already wired) under its id. Spawning happens outside
// the store so a spawn failure never leaves an orphaned entry: callers
// build the Session, spawn its subprocess, and only call Put on success.
func (s *Store) Put(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
}

// Get looks up a session by id.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Delete removes a session from the store. The caller is responsible for
// having already cancelled it and terminated its subprocess; Delete only
// removes the map entry.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Len reports the number of live sessions, chiefly for diagnostics/tests.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
