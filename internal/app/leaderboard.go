package app

import (
	"sort"

	"live-quiz-service/internal/domain"
)

// BuildLeaderboard ranks every non-control participant by score, highest first.
// Ties go to whoever joined earlier. It is recomputed on every call.
func BuildLeaderboard(rules ScoringRules, participants []domain.Participant, sheet *Sheet) []domain.Standing {
	standings := make([]domain.Standing, 0, len(participants))
	if len(participants) == 0 {
		return standings
	}

	card := rules.Scorecard(sheet)
	joined := make(map[string]domain.Participant, len(participants))
	for _, p := range participants {
		if p.Control {
			continue
		}
		joined[p.ID] = p
		b := card[p.ID]
		standings = append(standings, domain.Standing{
			ParticipantID: p.ID,
			Name:          p.Label(),
			Score:         b.Total,
			Correct:       b.Correct,
			Answered:      b.Answered,
		})
	}

	sort.Slice(standings, func(i, j int) bool {
		if standings[i].Score != standings[j].Score {
			return standings[i].Score > standings[j].Score
		}
		pi, pj := joined[standings[i].ParticipantID], joined[standings[j].ParticipantID]
		if !pi.JoinedAt.Equal(pj.JoinedAt) {
			return pi.JoinedAt.Before(pj.JoinedAt)
		}
		return pi.ID < pj.ID
	})
	for i := range standings {
		standings[i].Rank = i + 1
	}
	return standings
}
