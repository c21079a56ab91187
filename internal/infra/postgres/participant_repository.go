package postgres

import (
	"context"
	"fmt"
	"time"

	"live-quiz-service/internal/domain"

	"github.com/uptrace/bun"
)

type participantModel struct {
	bun.BaseModel `bun:"table:participants,alias:p"`

	ID           string    `bun:"id,pk"`
	RoomID       string    `bun:"room_id,notnull"`
	IdentityKind string    `bun:"identity_kind,notnull"`
	IdentityRef  string    `bun:"identity_ref,notnull"`
	DisplayName  string    `bun:"display_name,notnull"`
	Control      bool      `bun:"control,notnull"`
	JoinedAt     time.Time `bun:"joined_at,notnull"`
}

func (m *participantModel) domain() domain.Participant {
	return domain.Participant{
		ID:     m.ID,
		RoomID: m.RoomID,
		Identity: domain.Identity{
			Kind: domain.IdentityKind(m.IdentityKind),
			Ref:  m.IdentityRef,
		},
		DisplayName: m.DisplayName,
		Control:     m.Control,
		JoinedAt:    m.JoinedAt,
	}
}

// ParticipantRepository stores room members in the participants table.
type ParticipantRepository struct {
	db *bun.DB
}

func NewParticipantRepository(db *bun.DB) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

// GetOrCreate inserts p unless the (room, identity) pair is already present, then
// returns the stored record.
func (r *ParticipantRepository) GetOrCreate(ctx context.Context, p domain.Participant) (domain.Participant, error) {
	m := &participantModel{
		ID:           p.ID,
		RoomID:       p.RoomID,
		IdentityKind: string(p.Identity.Kind),
		IdentityRef:  p.Identity.Ref,
		DisplayName:  p.DisplayName,
		Control:      p.Control,
		JoinedAt:     p.JoinedAt,
	}
	if _, err := r.db.NewInsert().
		Model(m).
		On("CONFLICT (room_id, identity_kind, identity_ref) DO NOTHING").
		Exec(ctx); err != nil {
		return domain.Participant{}, fmt.Errorf("insert participant: %w", err)
	}

	var stored participantModel
	err := r.db.NewSelect().
		Model(&stored).
		Where("p.room_id = ?", p.RoomID).
		Where("p.identity_kind = ?", m.IdentityKind).
		Where("p.identity_ref = ?", m.IdentityRef).
		Scan(ctx)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("select participant: %w", err)
	}
	return stored.domain(), nil
}

func (r *ParticipantRepository) ListByRoom(ctx context.Context, roomID string) ([]domain.Participant, error) {
	var models []participantModel
	err := r.db.NewSelect().
		Model(&models).
		Where("p.room_id = ?", roomID).
		Order("p.joined_at ASC", "p.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	out := make([]domain.Participant, 0, len(models))
	for i := range models {
		out = append(out, models[i].domain())
	}
	return out, nil
}
