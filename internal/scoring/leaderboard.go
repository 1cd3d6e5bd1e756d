package scoring

import (
	"sort"
	"time"

	"prediction-league-service/internal/domain"
)

// BuildContestLeaderboard scores every entry and ranks them by correct answers, then
// percentage, both descending. It does not check the reveal gate; use
// ContestLeaderboard when the result is going to be shown.
//
// Tied entries keep the order in which the store returned them (entry creation order).
// That order is an implementation detail, not part of the ranking contract. Positions
// are 1-based list indices, so exactly one entry holds position 1 even under a tie.
func BuildContestLeaderboard(c domain.Contest) []domain.ContestStanding {
	standings := make([]domain.ContestStanding, 0, len(c.Entries))
	for _, entry := range c.Entries {
		standings = append(standings, domain.ContestStanding{
			User:        entry.User,
			Entry:       entry,
			ScoreRecord: ScoreEntry(c.Questions, entry.Answers),
		})
	}

	sort.SliceStable(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if a.CorrectAnswers != b.CorrectAnswers {
			return a.CorrectAnswers > b.CorrectAnswers
		}
		return a.Percentage > b.Percentage
	})

	for i := range standings {
		standings[i].Position = i + 1
	}
	return standings
}

// ContestLeaderboard returns the ranked leaderboard only when the contest is locked and
// fully revealed. Otherwise it reports Available=false with no standings; a partially
// revealed contest never produces a ranking.
func ContestLeaderboard(c domain.Contest, now time.Time) domain.ContestLeaderboard {
	lb := domain.ContestLeaderboard{ContestID: c.ID}
	if !ResultsVisible(c, now) {
		return lb
	}
	lb.Available = true
	lb.Standings = BuildContestLeaderboard(c)
	return lb
}
