package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"live-quiz-service/internal/domain"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
)

const maxSeqAttempts = 5

type responseModel struct {
	bun.BaseModel `bun:"table:responses,alias:resp"`

	ID            string    `bun:"id,pk"`
	RoomID        string    `bun:"room_id,notnull"`
	ParticipantID string    `bun:"participant_id,notnull"`
	QuestionID    string    `bun:"question_id,notnull"`
	Answer        string    `bun:"answer,notnull"`
	Correct       bool      `bun:"correct,notnull"`
	ArrivalSeq    int64     `bun:"arrival_seq,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
}

func (m *responseModel) domain() domain.Response {
	return domain.Response{
		ID:            m.ID,
		RoomID:        m.RoomID,
		ParticipantID: m.ParticipantID,
		QuestionID:    m.QuestionID,
		Answer:        m.Answer,
		Correct:       m.Correct,
		ArrivalSeq:    m.ArrivalSeq,
		CreatedAt:     m.CreatedAt,
	}
}

// ResponseStore persists answers. Uniqueness of (participant, question) and of
// (room, question, arrival_seq) is enforced by the schema.
type ResponseStore struct {
	db *bun.DB
}

func NewResponseStore(db *bun.DB) *ResponseStore {
	return &ResponseStore{db: db}
}

func (s *ResponseStore) Exists(ctx context.Context, participantID, questionID string) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*responseModel)(nil)).
		Where("resp.participant_id = ?", participantID).
		Where("resp.question_id = ?", questionID).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("response exists: %w", err)
	}
	return exists, nil
}

const insertResponseSQL = `
INSERT INTO responses (id, room_id, participant_id, question_id, answer, correct, arrival_seq, created_at)
SELECT ?, ?, ?, ?, ?, ?, COALESCE(MAX(arrival_seq), 0) + 1, ?
FROM responses WHERE room_id = ? AND question_id = ?
ON CONFLICT (participant_id, question_id) DO NOTHING
RETURNING arrival_seq`

// Insert stores resp with the next arrival sequence for its question. A concurrent
// writer taking the same sequence number makes the insert retry.
func (s *ResponseStore) Insert(ctx context.Context, resp *domain.Response) (bool, error) {
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = time.Now().UTC()
	}
	for attempt := 1; ; attempt++ {
		var seq int64
		err := s.db.QueryRowContext(ctx, insertResponseSQL,
			resp.ID, resp.RoomID, resp.ParticipantID, resp.QuestionID, resp.Answer, resp.Correct, resp.CreatedAt,
			resp.RoomID, resp.QuestionID,
		).Scan(&seq)
		switch {
		case err == nil:
			resp.ArrivalSeq = seq
			return true, nil
		case errors.Is(err, sql.ErrNoRows):
			return false, nil
		case isUniqueViolation(err, "responses_arrival_key") && attempt < maxSeqAttempts:
			log.Debug().Str("room", resp.RoomID).Str("question", resp.QuestionID).
				Int("attempt", attempt).Msg("arrival sequence taken, retrying")
			continue
		default:
			return false, fmt.Errorf("insert response: %w", err)
		}
	}
}

// ListByRoom returns the room's responses ordered by question then arrival.
func (s *ResponseStore) ListByRoom(ctx context.Context, roomID string) ([]domain.Response, error) {
	var models []responseModel
	err := s.db.NewSelect().
		Model(&models).
		Where("resp.room_id = ?", roomID).
		Order("resp.question_id ASC", "resp.arrival_seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	out := make([]domain.Response, 0, len(models))
	for i := range models {
		out = append(out, models[i].domain())
	}
	return out, nil
}
