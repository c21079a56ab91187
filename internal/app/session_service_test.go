package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

type fixture struct {
	service   *app.SessionService
	responses *memory.ResponseStore
	room      domain.Room
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, memory.NewParticipantRepository())
}

func newFixtureWith(t *testing.T, participants app.ParticipantRepository) *fixture {
	t.Helper()
	responses := memory.NewResponseStore()
	stores := app.Stores{
		Sessions:     memory.NewSessionStore(),
		Quizzes:      memory.NewQuizRepository(memory.NewStaticQuizLoader(testQuizzes()), time.Minute),
		Rooms:        memory.NewRoomRepository(),
		Participants: participants,
		Responses:    responses,
	}

	var mu sync.Mutex
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
	service := app.NewSessionService(stores, app.NewHub(64), app.DefaultScoringRules()).WithClock(clock)

	room, err := service.CreateRoom(context.Background(), "tutor", "quiz-1")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return &fixture{service: service, responses: responses, room: room}
}

func (f *fixture) join(t *testing.T, id domain.Identity) app.Membership {
	t.Helper()
	m, _, err := f.service.Join(context.Background(), f.room.JoinCode, id)
	if err != nil {
		t.Fatalf("join %s: %v", id.Ref, err)
	}
	return m
}

func (f *fixture) control(t *testing.T, m app.Membership, action domain.ControlAction) {
	t.Helper()
	if err := f.service.Control(context.Background(), m, action); err != nil {
		t.Fatalf("%s: %v", action, err)
	}
}

func (f *fixture) submit(m app.Membership, questionID string, answer any) (app.SubmitResult, error) {
	raw, _ := json.Marshal(answer)
	return f.service.Submit(context.Background(), m, domain.AnswerSubmission{QuestionID: questionID, Answer: raw})
}

func TestEndToEndScoring(t *testing.T) {
	f := newFixture(t)
	tutor := f.join(t, domain.AccountIdentity("tutor", "Tutor"))
	a := f.join(t, domain.AccountIdentity("alice", "Alice"))
	b := f.join(t, domain.GuestIdentity("bobguest-0001"))

	if tutor.Audience != domain.AudienceControl || a.Audience != domain.AudienceParticipant {
		t.Fatalf("unexpected audiences: tutor=%s a=%s", tutor.Audience, a.Audience)
	}

	f.control(t, tutor, domain.ActionStartQuiz)
	mustAccept(t, f, a, "q1", 4)
	mustAccept(t, f, b, "q1", 4)

	f.control(t, tutor, domain.ActionNextQuestion)
	mustAccept(t, f, a, "q2", true)
	mustAccept(t, f, b, "q2", true)

	f.control(t, tutor, domain.ActionNextQuestion)

	standings, err := f.service.Leaderboard(context.Background(), f.room.JoinCode)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(standings) != 2 {
		t.Fatalf("expected two standings, got %+v", standings)
	}
	if standings[0].ParticipantID != a.Participant.ID || standings[0].Score != 16 || standings[0].Rank != 1 {
		t.Fatalf("expected A = 16 first, got %+v", standings[0])
	}
	if standings[1].ParticipantID != b.Participant.ID || standings[1].Score != 14 || standings[1].Name != "Guest (bobguest)" {
		t.Fatalf("expected B = 14 second, got %+v", standings[1])
	}

	score, err := f.service.Score(context.Background(), f.room.JoinCode, a.Participant.ID)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if score.Base != 10 || score.Speed != 6 || score.Total != 16 {
		t.Fatalf("unexpected breakdown %+v", score)
	}

	if err := f.service.Control(context.Background(), tutor, domain.ActionNextQuestion); !errors.Is(err, domain.ErrQuizEnded) {
		t.Fatalf("expected quiz ended, got %v", err)
	}
}

func TestSubmitIsIdempotent(t *testing.T) {
	f := newFixture(t)
	tutor := f.join(t, domain.AccountIdentity("tutor", "Tutor"))
	a := f.join(t, domain.AccountIdentity("alice", "Alice"))
	f.control(t, tutor, domain.ActionStartQuiz)

	first := mustAccept(t, f, a, "q1", 3)
	if first.Response.Correct {
		t.Fatalf("3 should be wrong")
	}
	again, err := f.submit(a, "q1", 4)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if !again.Duplicate {
		t.Fatalf("expected duplicate")
	}

	stored, _ := f.responses.ListByRoom(context.Background(), f.room.ID)
	if len(stored) != 1 || stored[0].Answer != "3" || stored[0].Correct {
		t.Fatalf("first response must stand: %+v", stored)
	}
}

func TestConcurrentSubmissions(t *testing.T) {
	f := newFixture(t)
	tutor := f.join(t, domain.AccountIdentity("tutor", "Tutor"))
	f.control(t, tutor, domain.ActionStartQuiz)

	const students = 12
	members := make([]app.Membership, students)
	for i := range members {
		members[i] = f.join(t, domain.GuestIdentity("guest-token-"+string(rune('a'+i))))
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted = map[string]int{}
	)
	for _, m := range members {
		for attempt := 0; attempt < 3; attempt++ {
			wg.Add(1)
			go func(m app.Membership) {
				defer wg.Done()
				res, err := f.submit(m, "q1", 4)
				if err != nil {
					t.Errorf("submit: %v", err)
					return
				}
				if !res.Duplicate {
					mu.Lock()
					accepted[m.Participant.ID]++
					mu.Unlock()
				}
			}(m)
		}
	}
	wg.Wait()

	for _, m := range members {
		if accepted[m.Participant.ID] != 1 {
			t.Fatalf("participant %s accepted %d times", m.Participant.ID, accepted[m.Participant.ID])
		}
	}

	stored, _ := f.responses.ListByRoom(context.Background(), f.room.ID)
	seqs := make([]int, 0, len(stored))
	for _, r := range stored {
		seqs = append(seqs, int(r.ArrivalSeq))
	}
	sort.Ints(seqs)
	for i, s := range seqs {
		if s != i+1 {
			t.Fatalf("arrival sequence not dense: %v", seqs)
		}
	}
}

func TestSubmitRespectsProgression(t *testing.T) {
	f := newFixture(t)
	tutor := f.join(t, domain.AccountIdentity("tutor", "Tutor"))
	a := f.join(t, domain.AccountIdentity("alice", "Alice"))

	if _, err := f.submit(a, "q1", 4); !errors.Is(err, domain.ErrQuizNotStarted) {
		t.Fatalf("expected not started, got %v", err)
	}
	f.control(t, tutor, domain.ActionStartQuiz)
	if _, err := f.submit(a, "q2", true); !errors.Is(err, domain.ErrQuestionNotOpen) {
		t.Fatalf("expected question not open, got %v", err)
	}
	if _, err := f.submit(a, "nope", 1); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}
	var verr *domain.ValidationError
	if _, err := f.submit(a, "q1", "four"); !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err := f.service.Submit(context.Background(), a, domain.AnswerSubmission{
		QuestionID: "q1", QuestionKind: domain.KindText, Answer: json.RawMessage(`"4"`),
	})
	if !errors.As(err, &verr) {
		t.Fatalf("expected question_type mismatch rejected, got %v", err)
	}

	f.control(t, tutor, domain.ActionNextQuestion)
	if _, err := f.submit(a, "q1", 4); !errors.Is(err, domain.ErrQuestionNotOpen) {
		t.Fatalf("earlier question must be closed, got %v", err)
	}
	mustAccept(t, f, a, "q2", true)

	f.control(t, tutor, domain.ActionEndQuiz)
	if _, err := f.submit(a, "q1", 4); !errors.Is(err, domain.ErrQuizEnded) {
		t.Fatalf("expected quiz ended, got %v", err)
	}
	if _, err := f.submit(tutor, "q2", true); !errors.Is(err, domain.ErrPermission) {
		t.Fatalf("control may not answer, got %v", err)
	}
}

func TestSubmitAfterRevealIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tutor := f.join(t, domain.AccountIdentity("tutor", "Tutor"))
	a := f.join(t, domain.AccountIdentity("alice", "Alice"))
	student, err := f.service.Connect(ctx, f.room.JoinCode, domain.AccountIdentity("bob", "Bob"))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer student.Close()

	f.control(t, tutor, domain.ActionStartQuiz)
	mustAccept(t, f, a, "q1", 4)
	f.control(t, tutor, domain.ActionEndQuestion)

	var key *domain.AnswerKey
	for _, ev := range drain(student.Events) {
		if state, ok := ev.Payload.(domain.QuizState); ok && state.Revealed {
			key = state.Answer
		}
	}
	if key == nil || key.Integer == nil {
		t.Fatalf("expected the revealed key in quiz_update")
	}
	if _, err := f.submit(student.Membership, "q1", *key.Integer); !errors.Is(err, domain.ErrQuestionNotOpen) {
		t.Fatalf("expected revealed question closed, got %v", err)
	}

	score, err := f.service.Score(ctx, f.room.JoinCode, student.Participant.ID)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if score.Total != 0 || score.Answered != 0 {
		t.Fatalf("late answer must not score: %+v", score)
	}
}

func TestQuizUpdateShapesPerAudience(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tutor, err := f.service.Connect(ctx, f.room.JoinCode, domain.AccountIdentity("tutor", "Tutor"))
	if err != nil {
		t.Fatalf("connect tutor: %v", err)
	}
	defer tutor.Close()
	student, err := f.service.Connect(ctx, f.room.JoinCode, domain.AccountIdentity("alice", "Alice"))
	if err != nil {
		t.Fatalf("connect student: %v", err)
	}
	defer student.Close()

	f.control(t, tutor.Membership, domain.ActionStartQuiz)

	control := lastQuizState(t, drain(tutor.Events))
	if control.Revealed || control.Question == nil || control.Answer == nil || control.Answer.Integer == nil || *control.Answer.Integer != 4 {
		t.Fatalf("control must see the key before reveal: %+v", control)
	}
	if len(control.Actions) == 0 {
		t.Fatalf("control must see allowed actions: %+v", control)
	}

	participant := lastQuizState(t, drain(student.Events))
	if participant.Question == nil || participant.Answer != nil || participant.Actions != nil {
		t.Fatalf("participant must not see the key before reveal: %+v", participant)
	}
}

// failingParticipants lists nobody once broken is set.
type failingParticipants struct {
	*memory.ParticipantRepository
	broken atomic.Bool
}

func (p *failingParticipants) ListByRoom(ctx context.Context, roomID string) ([]domain.Participant, error) {
	if p.broken.Load() {
		return nil, errors.New("participants unavailable")
	}
	return p.ParticipantRepository.ListByRoom(ctx, roomID)
}

func TestBroadcastDegradesWhenStandingsFail(t *testing.T) {
	participants := &failingParticipants{ParticipantRepository: memory.NewParticipantRepository()}
	f := newFixtureWith(t, participants)
	ctx := context.Background()
	tutor, err := f.service.Connect(ctx, f.room.JoinCode, domain.AccountIdentity("tutor", "Tutor"))
	if err != nil {
		t.Fatalf("connect tutor: %v", err)
	}
	defer tutor.Close()
	a := f.join(t, domain.AccountIdentity("alice", "Alice"))
	f.control(t, tutor.Membership, domain.ActionStartQuiz)
	drain(tutor.Events)

	participants.broken.Store(true)
	mustAccept(t, f, a, "q1", 4)

	events := drain(tutor.Events)
	types := eventTypes(events)
	if !types[domain.EventAnswerReceived] {
		t.Fatalf("answer_received must still go out: %v", types)
	}
	if types[domain.EventLeaderboardUpdate] {
		t.Fatalf("leaderboard refresh must be skipped: %v", types)
	}
	for _, ev := range events {
		if received, ok := ev.Payload.(domain.AnswerReceived); ok && (received.QuestionID != "q1" || received.Answered != 1) {
			t.Fatalf("unexpected answer_received: %+v", received)
		}
	}

	f.control(t, tutor.Membership, domain.ActionEndQuiz)
	var ended *domain.QuizEnded
	for _, ev := range drain(tutor.Events) {
		if payload, ok := ev.Payload.(domain.QuizEnded); ok {
			ended = &payload
		}
	}
	if ended == nil {
		t.Fatalf("quiz_ended must still go out")
	}
	if len(ended.Stats) != 2 || ended.Stats[0].Answered != 1 {
		t.Fatalf("final stats must survive: %+v", ended.Stats)
	}
}

func TestControlRequiresOwner(t *testing.T) {
	f := newFixture(t)
	a := f.join(t, domain.AccountIdentity("alice", "Alice"))
	g := f.join(t, domain.GuestIdentity("tutor"))

	for _, m := range []app.Membership{a, g} {
		if err := f.service.Control(context.Background(), m, domain.ActionStartQuiz); !errors.Is(err, domain.ErrPermission) {
			t.Fatalf("expected permission denied for %s, got %v", m.Participant.Identity.Ref, err)
		}
	}
	again, _, err := f.service.Join(context.Background(), f.room.JoinCode, domain.AccountIdentity("alice", "Alice"))
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if again.Room.Started {
		t.Fatalf("room must not start")
	}
}

func TestProgressionIndexNeverDecreases(t *testing.T) {
	f := newFixture(t)
	tutor := f.join(t, domain.AccountIdentity("tutor", "Tutor"))
	sub, err := f.service.Connect(context.Background(), f.room.JoinCode, domain.AccountIdentity("alice", "Alice"))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer sub.Close()

	actions := []domain.ControlAction{
		domain.ActionStartQuiz, domain.ActionEndQuestion, domain.ActionEndQuestion,
		domain.ActionNextQuestion, domain.ActionShowStats, domain.ActionNextQuestion,
	}
	for _, action := range actions {
		f.control(t, tutor, action)
	}
	if err := f.service.Control(context.Background(), tutor, domain.ActionStartQuiz); !errors.Is(err, domain.ErrQuizEnded) {
		t.Fatalf("restart after end: %v", err)
	}

	last := -1
	revealedSeen := false
	for _, ev := range drain(sub.Events) {
		if ev.Type != domain.EventQuizUpdate {
			continue
		}
		state := ev.Payload.(domain.QuizState)
		if state.Index < last {
			t.Fatalf("index decreased from %d to %d", last, state.Index)
		}
		last = state.Index
		if state.Revealed {
			revealedSeen = true
			if state.Answer == nil || state.Stats == nil {
				t.Fatalf("revealed state must carry the answer and stats: %+v", state)
			}
		} else if state.Answer != nil {
			t.Fatalf("answer leaked before reveal: %+v", state)
		}
		if state.Actions != nil {
			t.Fatalf("participant view must not list control actions")
		}
	}
	if !revealedSeen || last != 1 {
		t.Fatalf("expected reveal and final index 1, got revealed=%v last=%d", revealedSeen, last)
	}
}

func TestStartEmptyQuiz(t *testing.T) {
	f := newFixture(t)
	room, err := f.service.CreateRoom(context.Background(), "tutor", "empty")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	tutor, _, err := f.service.Join(context.Background(), room.JoinCode, domain.AccountIdentity("tutor", "Tutor"))
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := f.service.Control(context.Background(), tutor, domain.ActionStartQuiz); !errors.Is(err, domain.ErrEmptyQuiz) {
		t.Fatalf("expected empty quiz error, got %v", err)
	}
	if domain.ErrorCode(domain.ErrEmptyQuiz) != domain.CodeEmptyQuiz {
		t.Fatalf("unexpected error code")
	}
}

func TestAnswerEventsReachOnlyControl(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tutor, err := f.service.Connect(ctx, f.room.JoinCode, domain.AccountIdentity("tutor", "Tutor"))
	if err != nil {
		t.Fatalf("connect tutor: %v", err)
	}
	defer tutor.Close()
	student, err := f.service.Connect(ctx, f.room.JoinCode, domain.GuestIdentity("guest-abcdefgh"))
	if err != nil {
		t.Fatalf("connect student: %v", err)
	}
	defer student.Close()
	if student.Welcome.GuestToken != "guest-abcdefgh" || student.Audience != domain.AudienceParticipant {
		t.Fatalf("unexpected welcome: %+v", student.Welcome)
	}

	f.control(t, tutor.Membership, domain.ActionStartQuiz)
	mustAccept(t, f, student.Membership, "q1", 4)

	controlTypes := eventTypes(drain(tutor.Events))
	participantTypes := eventTypes(drain(student.Events))
	if !controlTypes[domain.EventAnswerReceived] || !controlTypes[domain.EventLeaderboardUpdate] {
		t.Fatalf("control missing events: %v", controlTypes)
	}
	if participantTypes[domain.EventAnswerReceived] {
		t.Fatalf("answer_received leaked to participants")
	}
	if !participantTypes[domain.EventLeaderboardUpdate] || !participantTypes[domain.EventParticipantsUpdate] {
		t.Fatalf("participant missing events: %v", participantTypes)
	}
}

func TestLeaveKeepsHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tutor := f.join(t, domain.AccountIdentity("tutor", "Tutor"))
	a := f.join(t, domain.AccountIdentity("alice", "Alice"))
	f.control(t, tutor, domain.ActionStartQuiz)
	mustAccept(t, f, a, "q1", 4)

	f.service.Leave(ctx, a)

	_, welcome, err := f.service.Join(ctx, f.room.JoinCode, domain.AccountIdentity("bob", "Bob"))
	if err != nil {
		t.Fatalf("join bob: %v", err)
	}
	if welcome.Roster.Count != 1 || welcome.Roster.Participants[0] != "Bob" {
		t.Fatalf("alice should be hidden from the roster: %+v", welcome.Roster)
	}

	standings, _ := f.service.Leaderboard(ctx, f.room.JoinCode)
	if len(standings) != 2 || standings[0].Name != "Alice" || standings[0].Score != 8 {
		t.Fatalf("alice's score must survive disconnect: %+v", standings)
	}

	back := f.join(t, domain.AccountIdentity("alice", "Alice"))
	if back.Participant.ID != a.Participant.ID {
		t.Fatalf("rejoin must reuse the participant record")
	}
	if res, err := f.submit(back, "q1", 4); err != nil || !res.Duplicate {
		t.Fatalf("reconnected participant must not answer twice: %+v %v", res, err)
	}
}

func TestJoinUnknownRoom(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.service.Join(context.Background(), "ZZZZZZ", domain.GuestIdentity("g"))
	if !errors.Is(err, domain.ErrRoomNotFound) || domain.ErrorCode(err) != domain.CodeNotFound {
		t.Fatalf("expected room not found, got %v", err)
	}
	if _, _, err := f.service.Join(context.Background(), f.room.JoinCode, domain.Identity{}); !errors.Is(err, domain.ErrInvalidIdentity) {
		t.Fatalf("expected invalid identity, got %v", err)
	}
	if _, err := f.service.CreateRoom(context.Background(), "tutor", "missing"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}

func mustAccept(t *testing.T, f *fixture, m app.Membership, questionID string, answer any) app.SubmitResult {
	t.Helper()
	res, err := f.submit(m, questionID, answer)
	if err != nil {
		t.Fatalf("submit %s: %v", questionID, err)
	}
	if res.Duplicate {
		t.Fatalf("submit %s: unexpected duplicate", questionID)
	}
	return res
}

func drain(ch <-chan domain.Event) []domain.Event {
	var out []domain.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func lastQuizState(t *testing.T, events []domain.Event) domain.QuizState {
	t.Helper()
	var (
		state domain.QuizState
		found bool
	)
	for _, ev := range events {
		if ev.Type == domain.EventQuizUpdate {
			state = ev.Payload.(domain.QuizState)
			found = true
		}
	}
	if !found {
		t.Fatalf("no quiz_update among %d events", len(events))
	}
	return state
}

func eventTypes(events []domain.Event) map[domain.EventType]bool {
	out := make(map[domain.EventType]bool, len(events))
	for _, ev := range events {
		out[ev.Type] = true
	}
	return out
}

func testQuizzes() map[string]domain.Quiz {
	four := int64(4)
	yes := true
	return map[string]domain.Quiz{
		"quiz-1": {
			ID: "quiz-1",
			Questions: []domain.Question{
				{ID: "q2", Position: 1, Kind: domain.KindBoolean, Prompt: "Is 4 even?", Mark: 5, Key: domain.AnswerKey{Bool: &yes}},
				{ID: "q1", Position: 0, Kind: domain.KindInteger, Prompt: "2 + 2?", Mark: 5, Key: domain.AnswerKey{Integer: &four}},
			},
		},
		"empty": {ID: "empty"},
	}
}
