package memory

import (
	"context"
	"sort"
	"sync"

	"live-quiz-service/internal/domain"
)

type identityKey struct {
	roomID string
	kind   domain.IdentityKind
	ref    string
}

// ParticipantRepository keeps one record per (room, identity).
type ParticipantRepository struct {
	mu         sync.RWMutex
	byIdentity map[identityKey]domain.Participant
	byRoom     map[string][]identityKey
}

func NewParticipantRepository() *ParticipantRepository {
	return &ParticipantRepository{
		byIdentity: make(map[identityKey]domain.Participant),
		byRoom:     make(map[string][]identityKey),
	}
}

func (r *ParticipantRepository) GetOrCreate(_ context.Context, p domain.Participant) (domain.Participant, error) {
	key := identityKey{roomID: p.RoomID, kind: p.Identity.Kind, ref: p.Identity.Ref}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byIdentity[key]; ok {
		return existing, nil
	}
	r.byIdentity[key] = p
	r.byRoom[p.RoomID] = append(r.byRoom[p.RoomID], key)
	return p, nil
}

// ListByRoom returns the room's participants in join order.
func (r *ParticipantRepository) ListByRoom(_ context.Context, roomID string) ([]domain.Participant, error) {
	r.mu.RLock()
	keys := r.byRoom[roomID]
	out := make([]domain.Participant, 0, len(keys))
	for _, key := range keys {
		out = append(out, r.byIdentity[key])
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, nil
}
