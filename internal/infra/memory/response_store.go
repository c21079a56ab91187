package memory

import (
	"context"
	"sort"
	"sync"

	"live-quiz-service/internal/domain"
)

type answerKey struct {
	participantID string
	questionID    string
}

type questionKey struct {
	roomID     string
	questionID string
}

// ResponseStore holds answers in memory. The (participant, question) key is unique
// and arrival sequence numbers are handed out per (room, question).
type ResponseStore struct {
	mu        sync.RWMutex
	responses map[answerKey]domain.Response
	byRoom    map[string][]answerKey
	seq       map[questionKey]int64
}

func NewResponseStore() *ResponseStore {
	return &ResponseStore{
		responses: make(map[answerKey]domain.Response),
		byRoom:    make(map[string][]answerKey),
		seq:       make(map[questionKey]int64),
	}
}

func (s *ResponseStore) Exists(_ context.Context, participantID, questionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.responses[answerKey{participantID: participantID, questionID: questionID}]
	return ok, nil
}

func (s *ResponseStore) Insert(_ context.Context, resp *domain.Response) (bool, error) {
	key := answerKey{participantID: resp.ParticipantID, questionID: resp.QuestionID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.responses[key]; ok {
		return false, nil
	}
	qk := questionKey{roomID: resp.RoomID, questionID: resp.QuestionID}
	s.seq[qk]++
	resp.ArrivalSeq = s.seq[qk]

	s.responses[key] = *resp
	s.byRoom[resp.RoomID] = append(s.byRoom[resp.RoomID], key)
	return true, nil
}

// ListByRoom returns responses ordered by question then arrival.
func (s *ResponseStore) ListByRoom(_ context.Context, roomID string) ([]domain.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := s.byRoom[roomID]
	out := make([]domain.Response, 0, len(keys))
	for _, key := range keys {
		out = append(out, s.responses[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].QuestionID != out[j].QuestionID {
			return out[i].QuestionID < out[j].QuestionID
		}
		return out[i].ArrivalSeq < out[j].ArrivalSeq
	})
	return out, nil
}
