package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"live-quiz-service/internal/domain"
)

// SessionRepository abstracts where per-room runtimes live (in-memory, Redis-marked, etc).
type SessionRepository interface {
	GetOrCreate(roomID string) *Session
	Get(roomID string) (*Session, bool)
	DeleteIfEmpty(roomID string)
}

// PresenceRecorder is implemented by session stores that mirror the online roster elsewhere.
type PresenceRecorder interface {
	RecordPresence(ctx context.Context, roomID string, participantIDs []string) error
}

// NewSession is exported for infrastructure layers that need to seed sessions.
func NewSession(roomID string) *Session {
	return newSessionWithClock(roomID, time.Now)
}

// NewSessionWithClock is test-only for deterministic timestamps.
func NewSessionWithClock(roomID string, now func() time.Time) *Session {
	return newSessionWithClock(roomID, now)
}

// Session is the in-process runtime of one room: the lock that serializes every
// mutation on the room, and the set of open connections.
type Session struct {
	roomID    string
	createdAt time.Time
	now       func() time.Time

	mu      sync.Mutex
	online  map[string]*presence
	retired bool
}

type presence struct {
	participant domain.Participant
	conns       int
}

func newSessionWithClock(roomID string, now func() time.Time) *Session {
	return &Session{
		roomID:    roomID,
		createdAt: now(),
		now:       now,
		online:    make(map[string]*presence),
	}
}

func (s *Session) RoomID() string { return s.roomID }

// connectLocked counts a new connection for p.
func (s *Session) connectLocked(p domain.Participant) {
	if entry, ok := s.online[p.ID]; ok {
		entry.participant = p
		entry.conns++
		return
	}
	s.online[p.ID] = &presence{participant: p, conns: 1}
}

// disconnectLocked drops one connection and reports whether it was the participant's last.
func (s *Session) disconnectLocked(participantID string) bool {
	entry, ok := s.online[participantID]
	if !ok {
		return false
	}
	entry.conns--
	if entry.conns > 0 {
		return false
	}
	delete(s.online, participantID)
	return true
}

// rosterLocked lists the connected non-control participants in join order.
func (s *Session) rosterLocked() domain.Roster {
	visible := make([]domain.Participant, 0, len(s.online))
	for _, entry := range s.online {
		if entry.participant.Control {
			continue
		}
		visible = append(visible, entry.participant)
	}
	sort.Slice(visible, func(i, j int) bool {
		if !visible[i].JoinedAt.Equal(visible[j].JoinedAt) {
			return visible[i].JoinedAt.Before(visible[j].JoinedAt)
		}
		return visible[i].ID < visible[j].ID
	})

	roster := domain.Roster{Count: len(visible), Participants: make([]string, 0, len(visible))}
	for _, p := range visible {
		roster.Participants = append(roster.Participants, p.Label())
	}
	return roster
}

func (s *Session) onlineIDsLocked() []string {
	ids := make([]string, 0, len(s.online))
	for id := range s.online {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RetireIfEmpty marks an idle session as retired so that callers still holding it
// fetch a fresh one instead. Stores call it before dropping the session.
func (s *Session) RetireIfEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.online) > 0 {
		return false
	}
	s.retired = true
	return true
}

// IsEmpty reports whether the room has no open connections.
func (s *Session) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.online) == 0
}
