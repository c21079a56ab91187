package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"live-quiz-service/internal/domain"

	"github.com/uptrace/bun"
)

type roomModel struct {
	bun.BaseModel `bun:"table:rooms,alias:r"`

	ID                   string    `bun:"id,pk"`
	JoinCode             string    `bun:"join_code,notnull"`
	QuizID               string    `bun:"quiz_id,notnull"`
	OwnerID              string    `bun:"owner_id,notnull"`
	CurrentQuestionIndex int       `bun:"current_question_index,notnull"`
	Started              bool      `bun:"started,notnull"`
	Ended                bool      `bun:"ended,notnull"`
	Revealed             bool      `bun:"revealed,notnull"`
	CreatedAt            time.Time `bun:"created_at,notnull"`
}

func newRoomModel(room domain.Room) *roomModel {
	return &roomModel{
		ID:                   room.ID,
		JoinCode:             room.JoinCode,
		QuizID:               room.QuizID,
		OwnerID:              room.OwnerID,
		CurrentQuestionIndex: room.CurrentQuestionIndex,
		Started:              room.Started,
		Ended:                room.Ended,
		Revealed:             room.Revealed,
		CreatedAt:            room.CreatedAt,
	}
}

func (m *roomModel) domain() domain.Room {
	return domain.Room{
		ID:                   m.ID,
		JoinCode:             m.JoinCode,
		QuizID:               m.QuizID,
		OwnerID:              m.OwnerID,
		CurrentQuestionIndex: m.CurrentQuestionIndex,
		Started:              m.Started,
		Ended:                m.Ended,
		Revealed:             m.Revealed,
		CreatedAt:            m.CreatedAt,
	}
}

// RoomRepository stores rooms in the rooms table.
type RoomRepository struct {
	db *bun.DB
}

func NewRoomRepository(db *bun.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

func (r *RoomRepository) Create(ctx context.Context, room domain.Room) error {
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.NewInsert().Model(newRoomModel(room)).Exec(ctx)
	if isUniqueViolation(err, "rooms_join_code_key") {
		return domain.ErrJoinCodeTaken
	}
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

func (r *RoomRepository) Get(ctx context.Context, roomID string) (domain.Room, error) {
	return r.selectOne(ctx, "r.id = ?", roomID)
}

func (r *RoomRepository) GetByCode(ctx context.Context, joinCode string) (domain.Room, error) {
	return r.selectOne(ctx, "r.join_code = ?", joinCode)
}

// Save writes the progression columns of room.
func (r *RoomRepository) Save(ctx context.Context, room domain.Room) error {
	res, err := r.db.NewUpdate().
		Model(newRoomModel(room)).
		Column("current_question_index", "started", "ended", "revealed").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func (r *RoomRepository) selectOne(ctx context.Context, where string, arg string) (domain.Room, error) {
	var m roomModel
	err := r.db.NewSelect().Model(&m).Where(where, arg).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("select room: %w", err)
	}
	return m.domain(), nil
}
