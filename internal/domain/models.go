package domain

import (
	"encoding/json"
	"time"
)

// Audience is one of the two disjoint broadcast groups of a room.
type Audience string

const (
	AudienceControl     Audience = "control"
	AudienceParticipant Audience = "participant"
)

// Room is a live run of one quiz. Progression fields are mutated only by control actions.
type Room struct {
	ID                   string    `json:"id"`
	JoinCode             string    `json:"joinCode"`
	QuizID               string    `json:"quizId"`
	OwnerID              string    `json:"ownerId"`
	CurrentQuestionIndex int       `json:"currentQuestionIndex"`
	Started              bool      `json:"started"`
	Ended                bool      `json:"ended"`
	Revealed             bool      `json:"revealed"`
	CreatedAt            time.Time `json:"createdAt"`
}

// Participant is a room-scoped member. Records are never deleted so that
// response history outlives a disconnect.
type Participant struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"roomId"`
	Identity    Identity  `json:"identity"`
	DisplayName string    `json:"displayName"`
	Control     bool      `json:"control"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// Label is the name shown on rosters and leaderboards.
func (p Participant) Label() string {
	if p.Identity.Kind == IdentityGuest {
		return GuestLabel(p.Identity.Ref)
	}
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Identity.Ref
}

// GuestLabel renders a guest token as "Guest (abcdef12)".
func GuestLabel(token string) string {
	if len(token) > 8 {
		token = token[:8]
	}
	return "Guest (" + token + ")"
}

// QuestionKind discriminates how answers are coerced and compared.
type QuestionKind string

const (
	KindBoolean  QuestionKind = "boolean"
	KindInteger  QuestionKind = "integer"
	KindText     QuestionKind = "text"
	KindDecimal  QuestionKind = "decimal"
	KindChoice   QuestionKind = "choice"
	KindRange    QuestionKind = "range"
	KindOrdering QuestionKind = "ordering"
)

// Option is a selectable item for choice and ordering questions.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// AnswerKey holds the correct-answer definition. Only the fields matching the
// question kind are set.
type AnswerKey struct {
	Bool    *bool    `json:"bool,omitempty"`
	Integer *int64   `json:"integer,omitempty"`
	Text    string   `json:"text,omitempty"`
	Decimal string   `json:"decimal,omitempty"`
	Choice  string   `json:"choice,omitempty"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Order   []string `json:"order,omitempty"`
}

// Question is a single quiz item. TimeSeconds is shown to clients and never enforced.
type Question struct {
	ID          string       `json:"id"`
	Position    int          `json:"position"`
	Kind        QuestionKind `json:"kind"`
	Prompt      string       `json:"prompt"`
	Mark        int          `json:"mark"`
	TimeSeconds int          `json:"timeSeconds"`
	Options     []Option     `json:"options,omitempty"`
	Key         AnswerKey    `json:"key"`
}

// View strips the answer key.
func (q Question) View() QuestionView {
	return QuestionView{
		ID:          q.ID,
		Position:    q.Position,
		Kind:        q.Kind,
		Prompt:      q.Prompt,
		Mark:        q.Mark,
		TimeSeconds: q.TimeSeconds,
		Options:     q.Options,
	}
}

// QuestionView is what participants see before the reveal.
type QuestionView struct {
	ID          string       `json:"id"`
	Position    int          `json:"position"`
	Kind        QuestionKind `json:"kind"`
	Prompt      string       `json:"prompt"`
	Mark        int          `json:"mark"`
	TimeSeconds int          `json:"timeSeconds"`
	Options     []Option     `json:"options,omitempty"`
}

// Quiz is an ordered sequence of questions owned by the authoring side.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Question returns the question with the given id.
func (q Quiz) Question(id string) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// Response is one participant's answer to one question.
type Response struct {
	ID            string    `json:"id"`
	RoomID        string    `json:"roomId"`
	ParticipantID string    `json:"participantId"`
	QuestionID    string    `json:"questionId"`
	Answer        string    `json:"answer"`
	Correct       bool      `json:"correct"`
	ArrivalSeq    int64     `json:"arrivalSeq"`
	CreatedAt     time.Time `json:"createdAt"`
}

// AnswerSubmission models the submit_answer payload.
type AnswerSubmission struct {
	QuestionID   string          `json:"question_id"`
	QuestionKind QuestionKind    `json:"question_type"`
	Answer       json.RawMessage `json:"answer"`
}

// QuestionStats summarises the responses to one question.
type QuestionStats struct {
	QuestionID   string         `json:"questionId"`
	Answered     int            `json:"answered"`
	Correct      int            `json:"correct"`
	Distribution map[string]int `json:"distribution"`
}

// Standing is one leaderboard row as the control audience sees it.
type Standing struct {
	Rank          int    `json:"rank"`
	ParticipantID string `json:"participantId"`
	Name          string `json:"name"`
	Score         int    `json:"score"`
	Correct       int    `json:"correct"`
	Answered      int    `json:"answered"`
}

// PublicStanding omits raw counts for the participant audience.
type PublicStanding struct {
	Rank  int    `json:"rank"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// Public projects standings for the participant audience.
func Public(standings []Standing) []PublicStanding {
	out := make([]PublicStanding, 0, len(standings))
	for _, s := range standings {
		out = append(out, PublicStanding{Rank: s.Rank, Name: s.Name, Score: s.Score})
	}
	return out
}
