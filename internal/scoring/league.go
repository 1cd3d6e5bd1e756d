package scoring

import (
	"sort"
	"time"

	"prediction-league-service/internal/domain"
)

// BuildLeagueLeaderboard aggregates the league's linked contests into member standings.
//
// Contests are visited in league order. A contest contributes points only when its
// results are visible at now; participation is counted for every linked contest in which
// a member holds an entry, revealed or not. The rank-1 entry of each scored contest gets
// the league's win bonus, so exactly one bonus is awarded per contest even under a tie.
// Non-members are ranked inside each contest but never accumulate.
//
// Members are sorted by total points, then contest wins, both descending. Ties keep
// membership order.
func BuildLeagueLeaderboard(l domain.League, now time.Time) []domain.LeagueStanding {
	acc := make(map[string]*domain.LeagueStanding, len(l.Members))
	for _, m := range l.Members {
		acc[m.User.ID] = &domain.LeagueStanding{
			User:           m.User,
			ContestDetails: []domain.ContestDetail{},
		}
	}

	links := make([]domain.LeagueContest, len(l.Contests))
	copy(links, l.Contests)
	sort.SliceStable(links, func(i, j int) bool { return links[i].Order < links[j].Order })

	for _, link := range links {
		contest := link.Contest

		participants := make(map[string]struct{}, len(contest.Entries))
		for _, e := range contest.Entries {
			participants[e.User.ID] = struct{}{}
		}
		for userID := range participants {
			if s, ok := acc[userID]; ok {
				s.ContestsParticipated++
			}
		}

		if !ResultsVisible(contest, now) {
			continue
		}

		for _, row := range BuildContestLeaderboard(contest) {
			s, ok := acc[row.User.ID]
			if !ok {
				continue
			}
			bonus := 0
			if row.Position == 1 {
				bonus = l.WinBonusPoints
				s.ContestWins++
			}
			points := row.CorrectAnswers + bonus
			s.TotalPoints += points
			s.ContestsCompleted++
			s.ContestDetails = append(s.ContestDetails, domain.ContestDetail{
				ContestID:   contest.ID,
				ContestName: contest.Name,
				Position:    row.Position,
				Score:       row.CorrectAnswers,
				BonusPoints: bonus,
				TotalPoints: points,
			})
		}
	}

	standings := make([]domain.LeagueStanding, 0, len(l.Members))
	for _, m := range l.Members {
		if s, ok := acc[m.User.ID]; ok {
			standings = append(standings, *s)
			// duplicate membership rows must not produce duplicate standings
			delete(acc, m.User.ID)
		}
	}

	sort.SliceStable(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if a.TotalPoints != b.TotalPoints {
			return a.TotalPoints > b.TotalPoints
		}
		return a.ContestWins > b.ContestWins
	})
	return standings
}
