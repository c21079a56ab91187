package domain

// Phase is the lifecycle state of a room: NotStarted -> Active(i) -> Ended.
type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	PhaseActive     Phase = "active"
	PhaseEnded      Phase = "ended"
)

// ControlAction is an inbound command only the room's control identity may issue.
type ControlAction string

const (
	ActionStartQuiz    ControlAction = "start_quiz"
	ActionEndQuestion  ControlAction = "end_question"
	ActionNextQuestion ControlAction = "next_question"
	ActionEndQuiz      ControlAction = "end_quiz"
	ActionShowStats    ControlAction = "show_stats"
)

// IsControlAction reports whether t names a control command.
func IsControlAction(t string) bool {
	switch ControlAction(t) {
	case ActionStartQuiz, ActionEndQuestion, ActionNextQuestion, ActionEndQuiz, ActionShowStats:
		return true
	}
	return false
}

func (r Room) Phase() Phase {
	switch {
	case r.Ended:
		return PhaseEnded
	case r.Started:
		return PhaseActive
	default:
		return PhaseNotStarted
	}
}

// Start moves NotStarted to Active(0).
func (r *Room) Start(questionCount int) error {
	switch r.Phase() {
	case PhaseActive:
		return ErrQuizAlreadyStarted
	case PhaseEnded:
		return ErrQuizEnded
	}
	if questionCount <= 0 {
		return ErrEmptyQuiz
	}
	r.Started = true
	r.CurrentQuestionIndex = 0
	r.Revealed = false
	return nil
}

// Reveal marks the current question as revealed. Repeated calls are no-ops.
func (r *Room) Reveal() error {
	if err := r.requireActive(); err != nil {
		return err
	}
	r.Revealed = true
	return nil
}

// Advance moves to the next question, or ends the quiz when the current one is the last.
// The index never decreases.
func (r *Room) Advance(questionCount int) (ended bool, err error) {
	if err := r.requireActive(); err != nil {
		return false, err
	}
	if r.CurrentQuestionIndex+1 < questionCount {
		r.CurrentQuestionIndex++
		r.Revealed = false
		return false, nil
	}
	r.Ended = true
	return true, nil
}

// Finish ends an active quiz directly.
func (r *Room) Finish() error {
	if err := r.requireActive(); err != nil {
		return err
	}
	r.Ended = true
	return nil
}

// Accepting reports whether answers to the question at position are still taken.
// Only the current question is open, and only until its key is revealed.
func (r Room) Accepting(position int) bool {
	return r.Phase() == PhaseActive && !r.Revealed && position == r.CurrentQuestionIndex
}

// AllowedActions lists the control commands valid in the current state.
func (r Room) AllowedActions() []ControlAction {
	switch r.Phase() {
	case PhaseNotStarted:
		return []ControlAction{ActionStartQuiz}
	case PhaseActive:
		return []ControlAction{ActionEndQuestion, ActionNextQuestion, ActionEndQuiz, ActionShowStats}
	default:
		return []ControlAction{ActionShowStats}
	}
}

func (r Room) requireActive() error {
	switch r.Phase() {
	case PhaseNotStarted:
		return ErrQuizNotStarted
	case PhaseEnded:
		return ErrQuizEnded
	}
	return nil
}
