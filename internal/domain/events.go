package domain

// EventType names an outbound message.
type EventType string

const (
	EventWelcome            EventType = "welcome"
	EventParticipantsUpdate EventType = "participants_update"
	EventQuizUpdate         EventType = "quiz_update"
	EventAnswerReceived     EventType = "answer_received"
	EventAnswerAccepted     EventType = "answer_accepted"
	EventLeaderboardUpdate  EventType = "leaderboard_update"
	EventQuizEnded          EventType = "quiz_ended"
	EventShowStats          EventType = "show_stats"
	EventError              EventType = "error"
)

// Event is the outbound envelope.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// Roster is the participants_update payload.
type Roster struct {
	Count        int      `json:"count"`
	Participants []string `json:"participants"`
}

// QuizState is the quiz_update payload. Fields after Question are set per audience and reveal state.
type QuizState struct {
	Phase    Phase           `json:"phase"`
	Index    int             `json:"index"`
	Total    int             `json:"total"`
	Revealed bool            `json:"revealed"`
	Question *QuestionView   `json:"question,omitempty"`
	Answer   *AnswerKey      `json:"answer,omitempty"`
	Stats    *QuestionStats  `json:"stats,omitempty"`
	Actions  []ControlAction `json:"actions,omitempty"`
}

// AnswerReceived tells the control audience someone answered.
type AnswerReceived struct {
	ParticipantID string `json:"participantId"`
	Name          string `json:"name"`
	QuestionID    string `json:"questionId"`
	Answered      int    `json:"answered"`
	Participants  int    `json:"participants"`
}

// AnswerAccepted acknowledges a stored answer to its submitter.
type AnswerAccepted struct {
	QuestionID string `json:"questionId"`
}

// LeaderboardUpdate carries either full or public standings depending on the audience.
type LeaderboardUpdate struct {
	Standings any `json:"standings"`
}

// QuizEnded is the final snapshot.
type QuizEnded struct {
	Standings any             `json:"standings"`
	Stats     []QuestionStats `json:"stats"`
}

// StatsPayload is the show_stats payload.
type StatsPayload struct {
	Stats []QuestionStats `json:"stats"`
}

// ErrorPayload is sent only to the connection that caused it.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Welcome is sent to a connection right after it joins.
type Welcome struct {
	Participant Participant `json:"participant"`
	Audience    Audience    `json:"audience"`
	GuestToken  string      `json:"guestToken,omitempty"`
	Roster      Roster      `json:"roster"`
	Quiz        QuizState   `json:"quiz"`
	Standings   any         `json:"standings"`
}
