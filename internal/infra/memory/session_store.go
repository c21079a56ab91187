package memory

import (
	"sync"

	"live-quiz-service/internal/app"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) GetOrCreate(roomID string) *app.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[roomID]; ok {
		return session
	}
	session := app.NewSession(roomID)
	s.sessions[roomID] = session
	return session
}

func (s *SessionStore) Get(roomID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[roomID]
	return session, ok
}

// DeleteIfEmpty drops the room runtime once its last connection is gone. Room state
// itself lives in the RoomRepository, so a later join simply starts a new runtime.
func (s *SessionStore) DeleteIfEmpty(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[roomID]
	if !ok {
		return
	}
	if session.RetireIfEmpty() {
		delete(s.sessions, roomID)
	}
}

// Len reports how many rooms have a live runtime.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
