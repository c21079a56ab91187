package app

import (
	"sort"

	"live-quiz-service/internal/domain"
)

// Bonus defaults.
const (
	ShortStreakLength = 3
	ShortStreakBonus  = 2
	LongStreakLength  = 5
	LongStreakBonus   = 5

	FirstCorrectBonus  = 3
	SecondCorrectBonus = 2
)

// StreakTier awards Bonus to a run of consecutive correct answers reaching Length.
type StreakTier struct {
	Length int
	Bonus  int
}

// ScoringRules holds the bonus configuration. SpeedBonuses[i] goes to the (i+1)-th
// fastest correct responder of a question; ranks past the slice earn nothing.
type ScoringRules struct {
	StreakTiers  []StreakTier
	SpeedBonuses []int
}

func DefaultScoringRules() ScoringRules {
	return ScoringRules{
		StreakTiers: []StreakTier{
			{Length: ShortStreakLength, Bonus: ShortStreakBonus},
			{Length: LongStreakLength, Bonus: LongStreakBonus},
		},
		SpeedBonuses: []int{FirstCorrectBonus, SecondCorrectBonus},
	}
}

// Sheet is everything scoring needs for one room.
type Sheet struct {
	Questions []domain.Question
	Responses []domain.Response
}

// Breakdown is a participant's score split by component.
type Breakdown struct {
	Base     int `json:"base"`
	Streak   int `json:"streak"`
	Speed    int `json:"speed"`
	Total    int `json:"total"`
	Answered int `json:"answered"`
	Correct  int `json:"correct"`
}

// Score computes one participant's score. It is pure: the same sheet always yields the same result.
func (r ScoringRules) Score(participantID string, sheet *Sheet) Breakdown {
	if participantID == "" || sheet == nil {
		return Breakdown{}
	}
	return r.Scorecard(sheet)[participantID]
}

// Scorecard scores every participant that has at least one response on the sheet.
func (r ScoringRules) Scorecard(sheet *Sheet) map[string]Breakdown {
	card := make(map[string]Breakdown)
	if sheet == nil {
		return card
	}

	questions := make(map[string]domain.Question, len(sheet.Questions))
	for _, q := range sheet.Questions {
		questions[q.ID] = q
	}

	ranks := speedRanks(sheet.Responses, questions)

	byParticipant := make(map[string][]domain.Response)
	for _, resp := range sheet.Responses {
		if _, ok := questions[resp.QuestionID]; !ok {
			continue
		}
		byParticipant[resp.ParticipantID] = append(byParticipant[resp.ParticipantID], resp)
	}

	for participantID, responses := range byParticipant {
		sort.Slice(responses, func(i, j int) bool {
			return questions[responses[i].QuestionID].Position < questions[responses[j].QuestionID].Position
		})

		var b Breakdown
		run := 0
		for _, resp := range responses {
			b.Answered++
			if !resp.Correct {
				b.Streak += r.streakBonus(run)
				run = 0
				continue
			}
			b.Correct++
			run++
			b.Base += questions[resp.QuestionID].Mark
			b.Speed += r.speedBonus(ranks[responseKey(resp)])
		}
		b.Streak += r.streakBonus(run)
		b.Total = b.Base + b.Streak + b.Speed
		card[participantID] = b
	}
	return card
}

// streakBonus returns the bonus of the highest tier a finished run reached.
func (r ScoringRules) streakBonus(run int) int {
	bonus, reached := 0, 0
	for _, tier := range r.StreakTiers {
		if run >= tier.Length && tier.Length > reached {
			bonus, reached = tier.Bonus, tier.Length
		}
	}
	return bonus
}

func (r ScoringRules) speedBonus(rank int) int {
	if rank < 1 || rank > len(r.SpeedBonuses) {
		return 0
	}
	return r.SpeedBonuses[rank-1]
}

// speedRanks ranks correct responses per question by arrival sequence.
func speedRanks(responses []domain.Response, questions map[string]domain.Question) map[string]int {
	correct := make(map[string][]domain.Response)
	for _, resp := range responses {
		if !resp.Correct {
			continue
		}
		if _, ok := questions[resp.QuestionID]; !ok {
			continue
		}
		correct[resp.QuestionID] = append(correct[resp.QuestionID], resp)
	}

	ranks := make(map[string]int)
	for _, group := range correct {
		sort.Slice(group, func(i, j int) bool {
			if group[i].ArrivalSeq != group[j].ArrivalSeq {
				return group[i].ArrivalSeq < group[j].ArrivalSeq
			}
			return group[i].ParticipantID < group[j].ParticipantID
		})
		for i, resp := range group {
			ranks[responseKey(resp)] = i + 1
		}
	}
	return ranks
}

func responseKey(r domain.Response) string {
	return r.ParticipantID + "\x00" + r.QuestionID
}

// Stats summarises the responses to each question, in quiz order.
func (s *Sheet) Stats() []domain.QuestionStats {
	if s == nil {
		return nil
	}
	byQuestion := make(map[string]*domain.QuestionStats, len(s.Questions))
	out := make([]domain.QuestionStats, len(s.Questions))
	for i, q := range s.Questions {
		out[i] = domain.QuestionStats{QuestionID: q.ID, Distribution: map[string]int{}}
		byQuestion[q.ID] = &out[i]
	}
	for _, resp := range s.Responses {
		st, ok := byQuestion[resp.QuestionID]
		if !ok {
			continue
		}
		st.Answered++
		if resp.Correct {
			st.Correct++
		}
		st.Distribution[resp.Answer]++
	}
	return out
}
