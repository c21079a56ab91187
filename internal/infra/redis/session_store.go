package redis

import (
	"context"
	"sync"
	"time"

	"live-quiz-service/internal/app"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Room runtimes (lock + open connections) stay in a local map; the broadcast
//     hub is in-process as well.
//   - Redis marks which rooms are live on this instance and mirrors each room's
//     online participants so operators can inspect them.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
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
	// best-effort liveness marker
	if err := s.client.Set(context.Background(), s.key(roomID), time.Now().UTC().Format(time.RFC3339), s.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("room", roomID).Msg("mark session live")
	}
	return session
}

func (s *SessionStore) Get(roomID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[roomID]
	return session, ok
}

func (s *SessionStore) DeleteIfEmpty(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[roomID]
	if !ok {
		return
	}
	if session.RetireIfEmpty() {
		delete(s.sessions, roomID)
		if err := s.client.Del(context.Background(), s.key(roomID), s.onlineKey(roomID)).Err(); err != nil {
			log.Warn().Err(err).Str("room", roomID).Msg("clear session keys")
		}
	}
}

// RecordPresence replaces the room's online set and refreshes the liveness TTL.
// It runs under the room lock, so it must not take s.mu.
func (s *SessionStore) RecordPresence(ctx context.Context, roomID string, participantIDs []string) error {
	key := s.onlineKey(roomID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(participantIDs) > 0 {
			members := make([]interface{}, len(participantIDs))
			for i, id := range participantIDs {
				members[i] = id
			}
			pipe.SAdd(ctx, key, members...)
			if s.ttl > 0 {
				pipe.Expire(ctx, key, s.ttl)
			}
		}
		if s.ttl > 0 {
			pipe.Expire(ctx, s.key(roomID), s.ttl)
		}
		return nil
	})
	return err
}

// Online lists the participant ids mirrored for roomID.
func (s *SessionStore) Online(ctx context.Context, roomID string) ([]string, error) {
	return s.client.SMembers(ctx, s.onlineKey(roomID)).Result()
}

func (s *SessionStore) key(roomID string) string {
	return "room:session:" + roomID
}

func (s *SessionStore) onlineKey(roomID string) string {
	return "room:online:" + roomID
}
