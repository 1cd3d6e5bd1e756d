package scoring

import (
	"time"

	"prediction-league-service/internal/domain"
)

// PlayerStats summarizes userID's results across contests. Contests the user did not
// enter are ignored; only contests whose results are visible count as completed.
func PlayerStats(userID string, contests []domain.Contest, now time.Time) domain.PlayerStats {
	stats := domain.PlayerStats{UserID: userID}
	positionSum := 0
	ranked := 0

	for _, c := range contests {
		if _, ok := c.EntryFor(userID); !ok {
			continue
		}
		stats.TotalEntries++
		if !ResultsVisible(c, now) {
			continue
		}
		stats.CompletedContests++

		for _, row := range BuildContestLeaderboard(c) {
			if row.User.ID != userID {
				continue
			}
			stats.TotalScore += row.CorrectAnswers
			stats.TotalPossibleScore += row.AnsweredQuestions

			ranked++
			positionSum += row.Position
			if stats.BestPosition == 0 || row.Position < stats.BestPosition {
				stats.BestPosition = row.Position
			}
			if row.Position > stats.WorstPosition {
				stats.WorstPosition = row.Position
			}
			if row.Position == 1 {
				stats.FirstPlaceFinishes++
			}
			if row.Position <= 3 {
				stats.TopThreeFinishes++
			}
			break
		}
	}

	if ranked > 0 {
		stats.AveragePosition = roundTenth(float64(positionSum) / float64(ranked))
	}
	stats.WinRate = percent(stats.FirstPlaceFinishes, stats.CompletedContests)
	stats.TopThreeRate = percent(stats.TopThreeFinishes, stats.CompletedContests)
	stats.OverallAccuracy = percent(stats.TotalScore, stats.TotalPossibleScore)
	return stats
}
