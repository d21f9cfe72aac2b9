package local

import (
	"context"
	"sync"

	"github.com/igolaizola/igotutor/pkg/memory"
)

// Store keeps sessions in process memory. Data is lost on restart and is
// not shared between instances. It is safe for concurrent use.
type Store struct {
	lck      sync.RWMutex
	sessions map[string][]memory.Message
}

// New returns an empty in-process store.
func New() *Store {
	return &Store{
		sessions: map[string][]memory.Message{},
	}
}

func (s *Store) Append(ctx context.Context, sessionID string, msgs ...memory.Message) (int, error) {
	sessionID = memory.SessionID(sessionID)
	s.lck.Lock()
	defer s.lck.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID], msgs...)
	return len(s.sessions[sessionID]), nil
}

func (s *Store) ReadAll(ctx context.Context, sessionID string) ([]memory.Message, error) {
	sessionID = memory.SessionID(sessionID)
	s.lck.RLock()
	defer s.lck.RUnlock()
	msgs := s.sessions[sessionID]
	out := make([]memory.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *Store) Trim(ctx context.Context, sessionID string, maxLen int) error {
	sessionID = memory.SessionID(sessionID)
	s.lck.Lock()
	defer s.lck.Unlock()
	msgs, ok := s.sessions[sessionID]
	if !ok || len(msgs) <= maxLen {
		return nil
	}
	if maxLen < 0 {
		maxLen = 0
	}
	// Copy so the discarded prefix can be collected
	kept := make([]memory.Message, maxLen)
	copy(kept, msgs[len(msgs)-maxLen:])
	s.sessions[sessionID] = kept
	return nil
}

func (s *Store) Clear(ctx context.Context, sessionID string) error {
	sessionID = memory.SessionID(sessionID)
	s.lck.Lock()
	defer s.lck.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
