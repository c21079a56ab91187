package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"live-quiz-service/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// RoomRepository persists rooms and their progression state.
type RoomRepository interface {
	Create(ctx context.Context, room domain.Room) error
	Get(ctx context.Context, roomID string) (domain.Room, error)
	GetByCode(ctx context.Context, joinCode string) (domain.Room, error)
	Save(ctx context.Context, room domain.Room) error
}

// ParticipantRepository stores room members. Records are never deleted.
type ParticipantRepository interface {
	// GetOrCreate returns the participant keyed by (room, identity), inserting p if absent.
	GetOrCreate(ctx context.Context, p domain.Participant) (domain.Participant, error)
	ListByRoom(ctx context.Context, roomID string) ([]domain.Participant, error)
}

// ResponseStore holds answers, at most one per (participant, question).
type ResponseStore interface {
	Exists(ctx context.Context, participantID, questionID string) (bool, error)
	// Insert stores resp and assigns its ArrivalSeq. It returns false, without error,
	// when a response for the same participant and question already exists.
	Insert(ctx context.Context, resp *domain.Response) (bool, error)
	ListByRoom(ctx context.Context, roomID string) ([]domain.Response, error)
}

// Stores groups the repositories the service depends on.
type Stores struct {
	Sessions     SessionRepository
	Quizzes      QuizRepository
	Rooms        RoomRepository
	Participants ParticipantRepository
	Responses    ResponseStore
}

// SessionService coordinates live rooms: presence, progression, answers and scoring.
type SessionService struct {
	sessions     SessionRepository
	quizzes      QuizRepository
	rooms        RoomRepository
	participants ParticipantRepository
	responses    ResponseStore
	hub          *Hub
	rules        ScoringRules
	now          func() time.Time
	newCode      func() string
}

func NewSessionService(stores Stores, hub *Hub, rules ScoringRules) *SessionService {
	return &SessionService{
		sessions:     stores.Sessions,
		quizzes:      stores.Quizzes,
		rooms:        stores.Rooms,
		participants: stores.Participants,
		responses:    stores.Responses,
		hub:          hub,
		rules:        rules,
		now:          time.Now,
		newCode:      NewJoinCode,
	}
}

// WithClock is test-only for deterministic join times.
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	s.now = now
	return s
}

// Hub exposes the fanout so transports can subscribe connections.
func (s *SessionService) Hub() *Hub { return s.hub }

// Membership binds one connection to a room.
type Membership struct {
	Room        domain.Room
	Participant domain.Participant
	Audience    domain.Audience
}

func (m Membership) Topic() Topic {
	return Topic{RoomID: m.Room.ID, Audience: m.Audience}
}

// SubmitResult describes the outcome of submit_answer.
type SubmitResult struct {
	Duplicate bool
	Response  domain.Response
}

const maxJoinCodeAttempts = 5

// CreateRoom opens a new room for quizID owned by ownerID.
func (s *SessionService) CreateRoom(ctx context.Context, ownerID, quizID string) (domain.Room, error) {
	if ownerID == "" {
		return domain.Room{}, domain.ErrInvalidIdentity
	}
	if _, err := s.quizzes.GetQuiz(ctx, quizID); err != nil {
		return domain.Room{}, err
	}

	for attempt := 0; attempt < maxJoinCodeAttempts; attempt++ {
		room := domain.Room{
			ID:        uuid.NewString(),
			JoinCode:  s.newCode(),
			QuizID:    quizID,
			OwnerID:   ownerID,
			CreatedAt: s.now().UTC(),
		}
		err := s.rooms.Create(ctx, room)
		if errors.Is(err, domain.ErrJoinCodeTaken) {
			continue
		}
		if err != nil {
			return domain.Room{}, err
		}
		log.Info().Str("room", room.ID).Str("code", room.JoinCode).Str("quiz", quizID).Msg("room created")
		return room, nil
	}
	return domain.Room{}, fmt.Errorf("create room: %w", domain.ErrJoinCodeTaken)
}

// Subscription is a joined connection: its membership, the welcome snapshot and
// the events published to its audience after the snapshot was taken.
type Subscription struct {
	Membership
	Welcome domain.Welcome
	Events  <-chan domain.Event
	cancel  func()
}

// Close stops event delivery. It does not leave the room.
func (sub *Subscription) Close() {
	if sub.cancel != nil {
		sub.cancel()
	}
}

// Connect joins like Join and subscribes to the audience's topic under the room lock,
// so no event is lost between the snapshot and the first delivered event.
func (s *SessionService) Connect(ctx context.Context, joinCode string, identity domain.Identity) (*Subscription, error) {
	sub := &Subscription{}
	m, welcome, err := s.join(ctx, joinCode, identity, func(m Membership) {
		sub.Events, sub.cancel = s.hub.Subscribe(m.Topic())
	})
	if err != nil {
		return nil, err
	}
	sub.Membership = m
	sub.Welcome = welcome
	return sub, nil
}

// Join registers a connection for identity in the room with joinCode. It is idempotent
// per identity: reconnecting returns the same participant record.
func (s *SessionService) Join(ctx context.Context, joinCode string, identity domain.Identity) (Membership, domain.Welcome, error) {
	return s.join(ctx, joinCode, identity, nil)
}

func (s *SessionService) join(ctx context.Context, joinCode string, identity domain.Identity, attach func(Membership)) (Membership, domain.Welcome, error) {
	if err := identity.Validate(); err != nil {
		return Membership{}, domain.Welcome{}, err
	}
	found, err := s.rooms.GetByCode(ctx, joinCode)
	if err != nil {
		return Membership{}, domain.Welcome{}, err
	}
	quiz, err := s.loadQuiz(ctx, found.QuizID)
	if err != nil {
		return Membership{}, domain.Welcome{}, err
	}

	session := s.lockSession(found.ID)
	defer session.mu.Unlock()

	room, err := s.rooms.Get(ctx, found.ID)
	if err != nil {
		return Membership{}, domain.Welcome{}, err
	}

	participant, err := s.participants.GetOrCreate(ctx, domain.Participant{
		ID:          uuid.NewString(),
		RoomID:      room.ID,
		Identity:    domain.Identity{Kind: identity.Kind, Ref: identity.Ref},
		DisplayName: identity.Name,
		Control:     identity.Controls(room),
		JoinedAt:    s.now().UTC(),
	})
	if err != nil {
		return Membership{}, domain.Welcome{}, fmt.Errorf("join: %w", err)
	}

	membership := Membership{Room: room, Participant: participant, Audience: domain.AudienceParticipant}
	if participant.Control {
		membership.Audience = domain.AudienceControl
	}

	if attach != nil {
		attach(membership)
	}
	session.connectLocked(participant)
	roster := session.rosterLocked()
	s.publishRosterLocked(ctx, session, roster)

	log.Info().Str("room", room.ID).Str("participant", participant.ID).
		Str("audience", string(membership.Audience)).Int("online", roster.Count).Msg("joined")

	welcome := domain.Welcome{
		Participant: participant,
		Audience:    membership.Audience,
		Roster:      roster,
	}
	if identity.Kind == domain.IdentityGuest {
		welcome.GuestToken = identity.Ref
	}
	sheet, standings, err := s.standings(ctx, room.ID, quiz)
	if err != nil {
		log.Warn().Err(err).Str("room", room.ID).Msg("welcome without leaderboard")
	}
	welcome.Quiz = quizState(room, quiz.Questions, membership.Audience, sheet)
	welcome.Standings = audienceStandings(membership.Audience, standings)
	return membership, welcome, nil
}

// Leave drops one connection. Response history is kept; only the roster changes.
func (s *SessionService) Leave(ctx context.Context, m Membership) {
	session, ok := s.sessions.Get(m.Room.ID)
	if !ok {
		return
	}
	session.mu.Lock()
	if session.disconnectLocked(m.Participant.ID) {
		s.publishRosterLocked(ctx, session, session.rosterLocked())
		log.Info().Str("room", m.Room.ID).Str("participant", m.Participant.ID).Msg("left")
	}
	session.mu.Unlock()

	s.sessions.DeleteIfEmpty(m.Room.ID)
}

// Control applies a control action. Only the room's control identity may call it.
func (s *SessionService) Control(ctx context.Context, m Membership, action domain.ControlAction) error {
	if !m.Participant.Control {
		log.Warn().Str("room", m.Room.ID).Str("participant", m.Participant.ID).
			Str("action", string(action)).Msg("control action rejected")
		return domain.ErrPermission
	}

	session := s.lockSession(m.Room.ID)
	defer session.mu.Unlock()

	room, err := s.rooms.Get(ctx, m.Room.ID)
	if err != nil {
		return err
	}
	quiz, err := s.loadQuiz(ctx, room.QuizID)
	if err != nil {
		return err
	}
	total := len(quiz.Questions)

	switch action {
	case domain.ActionStartQuiz:
		if err := room.Start(total); err != nil {
			return err
		}
		if err := s.rooms.Save(ctx, room); err != nil {
			return err
		}
		s.publishQuizLocked(room, quiz, nil)

	case domain.ActionEndQuestion:
		if err := room.Reveal(); err != nil {
			return err
		}
		if err := s.rooms.Save(ctx, room); err != nil {
			return err
		}
		sheet, err := s.loadSheet(ctx, room.ID, quiz)
		if err != nil {
			log.Warn().Err(err).Str("room", room.ID).Msg("reveal without stats")
		}
		s.publishQuizLocked(room, quiz, sheet)

	case domain.ActionNextQuestion:
		ended, err := room.Advance(total)
		if err != nil {
			return err
		}
		if err := s.rooms.Save(ctx, room); err != nil {
			return err
		}
		if ended {
			s.publishEndedLocked(ctx, room, quiz)
		} else {
			s.publishQuizLocked(room, quiz, nil)
		}

	case domain.ActionEndQuiz:
		if err := room.Finish(); err != nil {
			return err
		}
		if err := s.rooms.Save(ctx, room); err != nil {
			return err
		}
		s.publishEndedLocked(ctx, room, quiz)

	case domain.ActionShowStats:
		if room.Phase() == domain.PhaseNotStarted {
			return domain.ErrQuizNotStarted
		}
		sheet, err := s.loadSheet(ctx, room.ID, quiz)
		if err != nil {
			return err
		}
		stats := sheet.Stats()
		if room.Phase() == domain.PhaseActive {
			stats = stats[room.CurrentQuestionIndex : room.CurrentQuestionIndex+1]
		}
		ev := domain.Event{Type: domain.EventShowStats, Payload: domain.StatsPayload{Stats: stats}}
		s.hub.PublishBoth(room.ID, ev, ev)

	default:
		return fmt.Errorf("unknown control action %q", action)
	}

	log.Info().Str("room", room.ID).Str("action", string(action)).
		Str("phase", string(room.Phase())).Int("index", room.CurrentQuestionIndex).Msg("control action applied")
	return nil
}

// Submit records a participant's answer. A repeated submission for the same question
// is reported as Duplicate and changes nothing.
func (s *SessionService) Submit(ctx context.Context, m Membership, sub domain.AnswerSubmission) (SubmitResult, error) {
	if m.Participant.Control {
		return SubmitResult{}, domain.ErrPermission
	}

	exists, err := s.responses.Exists(ctx, m.Participant.ID, sub.QuestionID)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("check response: %w", err)
	}
	if exists {
		return SubmitResult{Duplicate: true}, nil
	}

	quiz, err := s.loadQuiz(ctx, m.Room.QuizID)
	if err != nil {
		return SubmitResult{}, err
	}
	question, ok := quiz.Question(sub.QuestionID)
	if !ok {
		return SubmitResult{}, domain.ErrQuestionNotFound
	}
	if sub.QuestionKind != "" && sub.QuestionKind != question.Kind {
		return SubmitResult{}, &domain.ValidationError{
			QuestionID: question.ID,
			Kind:       question.Kind,
			Reason:     fmt.Sprintf("question_type %q does not match", sub.QuestionKind),
		}
	}
	answer, correct, err := domain.Grade(question, sub.Answer)
	if err != nil {
		return SubmitResult{}, err
	}

	session := s.lockSession(m.Room.ID)
	defer session.mu.Unlock()

	room, err := s.rooms.Get(ctx, m.Room.ID)
	if err != nil {
		return SubmitResult{}, err
	}
	switch room.Phase() {
	case domain.PhaseNotStarted:
		return SubmitResult{}, domain.ErrQuizNotStarted
	case domain.PhaseEnded:
		return SubmitResult{}, domain.ErrQuizEnded
	}
	if !room.Accepting(question.Position) {
		return SubmitResult{}, domain.ErrQuestionNotOpen
	}

	resp := domain.Response{
		ID:            uuid.NewString(),
		RoomID:        room.ID,
		ParticipantID: m.Participant.ID,
		QuestionID:    question.ID,
		Answer:        answer,
		Correct:       correct,
		CreatedAt:     s.now().UTC(),
	}
	inserted, err := s.responses.Insert(ctx, &resp)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("store response: %w", err)
	}
	if !inserted {
		return SubmitResult{Duplicate: true}, nil
	}

	log.Debug().Str("room", room.ID).Str("participant", m.Participant.ID).Str("question", question.ID).
		Bool("correct", correct).Int64("seq", resp.ArrivalSeq).Msg("answer stored")

	s.publishAnswerLocked(ctx, room, quiz, m.Participant, question.ID)
	return SubmitResult{Response: resp}, nil
}

// Leaderboard returns the current standings of the room with joinCode.
func (s *SessionService) Leaderboard(ctx context.Context, joinCode string) ([]domain.Standing, error) {
	room, err := s.rooms.GetByCode(ctx, joinCode)
	if err != nil {
		return nil, err
	}
	quiz, err := s.loadQuiz(ctx, room.QuizID)
	if err != nil {
		return nil, err
	}
	_, standings, err := s.standings(ctx, room.ID, quiz)
	return standings, err
}

// Score returns one participant's score breakdown in the room with joinCode.
func (s *SessionService) Score(ctx context.Context, joinCode, participantID string) (Breakdown, error) {
	room, err := s.rooms.GetByCode(ctx, joinCode)
	if err != nil {
		return Breakdown{}, err
	}
	quiz, err := s.loadQuiz(ctx, room.QuizID)
	if err != nil {
		return Breakdown{}, err
	}
	sheet, err := s.loadSheet(ctx, room.ID, quiz)
	if err != nil {
		return Breakdown{}, err
	}
	return s.rules.Score(participantID, sheet), nil
}

// lockSession returns the room's session with its lock held, skipping sessions a
// store retired between lookup and lock.
func (s *SessionService) lockSession(roomID string) *Session {
	for {
		session := s.sessions.GetOrCreate(roomID)
		session.mu.Lock()
		if !session.retired {
			return session
		}
		session.mu.Unlock()
	}
}

// loadQuiz returns the quiz with questions ordered by position and positions renumbered 0..n-1.
func (s *SessionService) loadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	questions := make([]domain.Question, len(quiz.Questions))
	copy(questions, quiz.Questions)
	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].Position < questions[j].Position
	})
	for i := range questions {
		questions[i].Position = i
	}
	quiz.Questions = questions
	return quiz, nil
}

func (s *SessionService) loadSheet(ctx context.Context, roomID string, quiz domain.Quiz) (*Sheet, error) {
	responses, err := s.responses.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	return &Sheet{Questions: quiz.Questions, Responses: responses}, nil
}

func (s *SessionService) standings(ctx context.Context, roomID string, quiz domain.Quiz) (*Sheet, []domain.Standing, error) {
	sheet, err := s.loadSheet(ctx, roomID, quiz)
	if err != nil {
		return nil, []domain.Standing{}, err
	}
	participants, err := s.participants.ListByRoom(ctx, roomID)
	if err != nil {
		return sheet, []domain.Standing{}, fmt.Errorf("list participants: %w", err)
	}
	return sheet, BuildLeaderboard(s.rules, participants, sheet), nil
}

func (s *SessionService) publishRosterLocked(ctx context.Context, session *Session, roster domain.Roster) {
	ev := domain.Event{Type: domain.EventParticipantsUpdate, Payload: roster}
	s.hub.PublishBoth(session.roomID, ev, ev)

	if recorder, ok := s.sessions.(PresenceRecorder); ok {
		if err := recorder.RecordPresence(ctx, session.roomID, session.onlineIDsLocked()); err != nil {
			log.Warn().Err(err).Str("room", session.roomID).Msg("record presence")
		}
	}
}

func (s *SessionService) publishQuizLocked(room domain.Room, quiz domain.Quiz, sheet *Sheet) {
	s.hub.PublishBoth(room.ID,
		domain.Event{Type: domain.EventQuizUpdate, Payload: quizState(room, quiz.Questions, domain.AudienceControl, sheet)},
		domain.Event{Type: domain.EventQuizUpdate, Payload: quizState(room, quiz.Questions, domain.AudienceParticipant, sheet)},
	)
}

func (s *SessionService) publishEndedLocked(ctx context.Context, room domain.Room, quiz domain.Quiz) {
	sheet, standings, err := s.standings(ctx, room.ID, quiz)
	if err != nil {
		log.Warn().Err(err).Str("room", room.ID).Msg("final snapshot degraded")
	}
	stats := sheet.Stats()
	s.hub.PublishBoth(room.ID,
		domain.Event{Type: domain.EventQuizEnded, Payload: domain.QuizEnded{Standings: standings, Stats: stats}},
		domain.Event{Type: domain.EventQuizEnded, Payload: domain.QuizEnded{Standings: domain.Public(standings), Stats: stats}},
	)
	log.Info().Str("room", room.ID).Int("participants", len(standings)).Msg("quiz ended")
}

// publishAnswerLocked notifies the control audience and refreshes the leaderboard.
// Failures only shrink what is sent.
func (s *SessionService) publishAnswerLocked(ctx context.Context, room domain.Room, quiz domain.Quiz, p domain.Participant, questionID string) {
	received := domain.AnswerReceived{
		ParticipantID: p.ID,
		Name:          p.Label(),
		QuestionID:    questionID,
	}

	sheet, standings, err := s.standings(ctx, room.ID, quiz)
	if sheet != nil {
		for _, resp := range sheet.Responses {
			if resp.QuestionID == questionID {
				received.Answered++
			}
		}
	}
	received.Participants = len(standings)
	s.hub.Publish(Topic{RoomID: room.ID, Audience: domain.AudienceControl},
		domain.Event{Type: domain.EventAnswerReceived, Payload: received})

	if err != nil {
		log.Warn().Err(err).Str("room", room.ID).Msg("leaderboard refresh skipped")
		return
	}
	s.hub.PublishBoth(room.ID,
		domain.Event{Type: domain.EventLeaderboardUpdate, Payload: domain.LeaderboardUpdate{Standings: standings}},
		domain.Event{Type: domain.EventLeaderboardUpdate, Payload: domain.LeaderboardUpdate{Standings: domain.Public(standings)}},
	)
}

// quizState shapes the quiz_update payload for one audience.
func quizState(room domain.Room, questions []domain.Question, audience domain.Audience, sheet *Sheet) domain.QuizState {
	state := domain.QuizState{
		Phase:    room.Phase(),
		Index:    room.CurrentQuestionIndex,
		Total:    len(questions),
		Revealed: room.Revealed,
	}
	if audience == domain.AudienceControl {
		state.Actions = room.AllowedActions()
	}
	if state.Phase != domain.PhaseActive || room.CurrentQuestionIndex >= len(questions) {
		return state
	}

	question := questions[room.CurrentQuestionIndex]
	view := question.View()
	state.Question = &view
	key := question.Key
	if audience == domain.AudienceControl {
		state.Answer = &key
	}
	if !room.Revealed {
		return state
	}

	state.Answer = &key
	if audience == domain.AudienceControl {
		state.Actions = []domain.ControlAction{domain.ActionNextQuestion, domain.ActionEndQuiz, domain.ActionShowStats}
	}
	if sheet != nil {
		stats := sheet.Stats()[room.CurrentQuestionIndex]
		state.Stats = &stats
	}
	return state
}

func audienceStandings(audience domain.Audience, standings []domain.Standing) any {
	if audience == domain.AudienceControl {
		return standings
	}
	return domain.Public(standings)
}
