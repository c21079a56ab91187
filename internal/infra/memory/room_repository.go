package memory

import (
	"context"
	"sync"

	"live-quiz-service/internal/domain"
)

// RoomRepository keeps rooms in process memory, indexed by id and join code.
type RoomRepository struct {
	mu     sync.RWMutex
	rooms  map[string]domain.Room
	byCode map[string]string
}

func NewRoomRepository() *RoomRepository {
	return &RoomRepository{
		rooms:  make(map[string]domain.Room),
		byCode: make(map[string]string),
	}
}

func (r *RoomRepository) Create(_ context.Context, room domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byCode[room.JoinCode]; ok {
		return domain.ErrJoinCodeTaken
	}
	r.rooms[room.ID] = room
	r.byCode[room.JoinCode] = room.ID
	return nil
}

func (r *RoomRepository) Get(_ context.Context, roomID string) (domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return room, nil
}

func (r *RoomRepository) GetByCode(ctx context.Context, joinCode string) (domain.Room, error) {
	r.mu.RLock()
	id, ok := r.byCode[joinCode]
	r.mu.RUnlock()
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return r.Get(ctx, id)
}

// Save overwrites the progression fields of an existing room.
func (r *RoomRepository) Save(_ context.Context, room domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.rooms[room.ID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	current.CurrentQuestionIndex = room.CurrentQuestionIndex
	current.Started = room.Started
	current.Ended = room.Ended
	current.Revealed = room.Revealed
	r.rooms[room.ID] = current
	return nil
}
