package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped by every lookup failure so callers can match the whole family.
var ErrNotFound = errors.New("not found")

var (
	// ErrRoomNotFound is returned for an unknown join code or room id.
	ErrRoomNotFound = fmt.Errorf("room %w", ErrNotFound)
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = fmt.Errorf("quiz %w", ErrNotFound)
	// ErrQuestionNotFound indicates a submitted question ID is not part of the quiz.
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)
	// ErrParticipantNotFound is returned when a user acts before joining.
	ErrParticipantNotFound = fmt.Errorf("participant %w", ErrNotFound)
)

var (
	// ErrPermission is returned when a non-control identity attempts a control action.
	ErrPermission = errors.New("permission denied")
	// ErrEmptyQuiz is returned by start_quiz when the quiz has no questions.
	ErrEmptyQuiz = errors.New("quiz has no questions")
	// ErrQuizAlreadyStarted rejects a second start_quiz.
	ErrQuizAlreadyStarted = errors.New("quiz already started")
	// ErrQuizNotStarted rejects actions that need an active quiz.
	ErrQuizNotStarted = errors.New("quiz not started")
	// ErrQuizEnded rejects actions on a finished quiz.
	ErrQuizEnded = errors.New("quiz has ended")
	// ErrQuestionNotOpen rejects answers to questions that are not shown yet or whose key was revealed.
	ErrQuestionNotOpen = errors.New("question not open for answers")
	// ErrInvalidIdentity is returned when an identity is neither an account nor a guest.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrJoinCodeTaken is returned by room stores when a generated join code collides.
	ErrJoinCodeTaken = errors.New("join code already in use")
)

// ValidationError reports an answer that cannot be coerced to the question's kind.
type ValidationError struct {
	QuestionID string
	Kind       QuestionKind
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s answer for question %s: %s", e.Kind, e.QuestionID, e.Reason)
}

// Wire error codes sent in error events.
const (
	CodePermission   = "permission_denied"
	CodeNotFound     = "not_found"
	CodeValidation   = "validation"
	CodeEmptyQuiz    = "empty_quiz"
	CodeInvalidState = "invalid_state"
	CodeInternal     = "internal"
)

// ErrorCode classifies err for clients.
func ErrorCode(err error) string {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, ErrInvalidIdentity):
		return CodeValidation
	case errors.Is(err, ErrPermission):
		return CodePermission
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrEmptyQuiz):
		return CodeEmptyQuiz
	case errors.Is(err, ErrQuizAlreadyStarted), errors.Is(err, ErrQuizNotStarted),
		errors.Is(err, ErrQuizEnded), errors.Is(err, ErrQuestionNotOpen):
		return CodeInvalidState
	default:
		return CodeInternal
	}
}
