package scoring_test

import (
	"testing"

	"prediction-league-service/internal/domain"
	"prediction-league-service/internal/scoring"
)

func TestLeagueLeaderboardScenarioC(t *testing.T) {
	c := threeQuestionContest("c1")
	c.Entries = []domain.Entry{
		entry("a", map[string]bool{"q1": true, "q2": true, "q3": true}),
		entry("b", map[string]bool{"q1": true, "q2": true, "q3": false}),
	}
	l := league(5, []string{"a", "b"}, c)

	standings := scoring.BuildLeagueLeaderboard(l, afterLock)
	if len(standings) != 2 {
		t.Fatalf("expected 2 standings, got %d", len(standings))
	}
	a, b := standings[0], standings[1]
	if a.User.ID != "a" || a.TotalPoints != 8 || a.ContestWins != 1 {
		t.Fatalf("expected a with 8 points and 1 win, got %+v", a)
	}
	if b.User.ID != "b" || b.TotalPoints != 2 || b.ContestWins != 0 {
		t.Fatalf("expected b with 2 points, got %+v", b)
	}
	if len(a.ContestDetails) != 1 {
		t.Fatalf("expected one detail, got %+v", a.ContestDetails)
	}
	d := a.ContestDetails[0]
	if d.ContestID != "c1" || d.Position != 1 || d.Score != 3 || d.BonusPoints != 5 || d.TotalPoints != 8 {
		t.Fatalf("unexpected detail %+v", d)
	}
}

func TestLeagueLeaderboardSingleBonusUnderTie(t *testing.T) {
	c := threeQuestionContest("c1")
	c.Entries = []domain.Entry{
		entry("a", map[string]bool{"q1": true}),
		entry("b", map[string]bool{"q1": true}),
	}
	l := league(5, []string{"a", "b"}, c)

	standings := scoring.BuildLeagueLeaderboard(l, afterLock)
	wins, bonuses := 0, 0
	for _, s := range standings {
		wins += s.ContestWins
		for _, d := range s.ContestDetails {
			if d.BonusPoints > 0 {
				bonuses++
			}
		}
	}
	if wins != 1 || bonuses != 1 {
		t.Fatalf("expected exactly one win and one bonus, got wins=%d bonuses=%d", wins, bonuses)
	}
}

func TestLeagueLeaderboardParticipationWithoutReveal(t *testing.T) {
	done := threeQuestionContest("c1")
	done.Entries = []domain.Entry{entry("a", map[string]bool{"q1": true})}

	pending := threeQuestionContest("c2")
	pending.Questions[2].CorrectAnswer = nil
	pending.Entries = []domain.Entry{entry("a", nil), entry("b", nil)}

	l := league(5, []string{"a", "b"}, done, pending)
	standings := scoring.BuildLeagueLeaderboard(l, afterLock)

	byUser := map[string]domain.LeagueStanding{}
	for _, s := range standings {
		byUser[s.User.ID] = s
	}
	if got := byUser["a"]; got.ContestsParticipated != 2 || got.ContestsCompleted != 1 {
		t.Fatalf("expected a participated=2 completed=1, got %+v", got)
	}
	if got := byUser["b"]; got.ContestsParticipated != 1 || got.ContestsCompleted != 0 || got.TotalPoints != 0 {
		t.Fatalf("expected b participated=1 completed=0, got %+v", got)
	}
}

func TestLeagueLeaderboardSkipsUnlockedContests(t *testing.T) {
	c := threeQuestionContest("c1")
	c.Entries = []domain.Entry{entry("a", map[string]bool{"q1": true})}
	l := league(5, []string{"a"}, c)

	standings := scoring.BuildLeagueLeaderboard(l, beforeLock)
	if standings[0].TotalPoints != 0 || standings[0].ContestsCompleted != 0 {
		t.Fatalf("expected nothing scored before lock, got %+v", standings[0])
	}
	if standings[0].ContestsParticipated != 1 {
		t.Fatalf("expected participation before lock, got %+v", standings[0])
	}
}

func TestLeagueLeaderboardIgnoresNonMembers(t *testing.T) {
	c := threeQuestionContest("c1")
	c.Entries = []domain.Entry{
		entry("outsider", map[string]bool{"q1": true, "q2": true, "q3": true}),
		entry("a", map[string]bool{"q1": true}),
	}
	l := league(5, []string{"a"}, c)

	standings := scoring.BuildLeagueLeaderboard(l, afterLock)
	if len(standings) != 1 {
		t.Fatalf("expected only members, got %+v", standings)
	}
	a := standings[0]
	// outsider holds rank 1 and takes the bonus with them
	if a.TotalPoints != 1 || a.ContestWins != 0 || a.ContestDetails[0].Position != 2 {
		t.Fatalf("expected a at position 2 with 1 point, got %+v", a)
	}
}

func TestLeagueLeaderboardTotalsMatchDetails(t *testing.T) {
	c1 := threeQuestionContest("c1")
	c1.Entries = []domain.Entry{
		entry("a", map[string]bool{"q1": true, "q2": true}),
		entry("b", map[string]bool{"q1": true, "q2": true, "q3": true}),
		entry("c", nil),
	}
	c2 := threeQuestionContest("c2")
	c2.Entries = []domain.Entry{
		entry("a", map[string]bool{"q1": true, "q2": true, "q3": true}),
		entry("c", map[string]bool{"q1": true}),
	}
	l := league(3, []string{"a", "b", "c"}, c1, c2)

	standings := scoring.BuildLeagueLeaderboard(l, afterLock)
	for _, s := range standings {
		sum := 0
		for _, d := range s.ContestDetails {
			sum += d.Score
		}
		if s.TotalPoints != sum+l.WinBonusPoints*s.ContestWins {
			t.Fatalf("total mismatch for %s: %+v", s.User.ID, s)
		}
	}
	for i := 1; i < len(standings); i++ {
		prev, cur := standings[i-1], standings[i]
		if prev.TotalPoints < cur.TotalPoints ||
			(prev.TotalPoints == cur.TotalPoints && prev.ContestWins < cur.ContestWins) {
			t.Fatalf("standings not sorted: %+v before %+v", prev, cur)
		}
	}
	if standings[0].User.ID != "a" || standings[0].TotalPoints != 8 {
		t.Fatalf("expected a leading with 8, got %+v", standings[0])
	}
}

func TestLeagueLeaderboardFollowsContestOrder(t *testing.T) {
	first := threeQuestionContest("first")
	first.Entries = []domain.Entry{entry("a", nil)}
	second := threeQuestionContest("second")
	second.Entries = []domain.Entry{entry("a", nil)}

	l := league(0, []string{"a"}, second, first)
	l.Contests[0].Order = 2
	l.Contests[1].Order = 1

	standings := scoring.BuildLeagueLeaderboard(l, afterLock)
	details := standings[0].ContestDetails
	if len(details) != 2 || details[0].ContestID != "first" || details[1].ContestID != "second" {
		t.Fatalf("expected details in league order, got %+v", details)
	}
}

func TestPlayerStats(t *testing.T) {
	c1 := threeQuestionContest("c1")
	c1.Entries = []domain.Entry{
		entry("a", map[string]bool{"q1": true, "q2": true, "q3": true}),
		entry("b", map[string]bool{"q1": true}),
	}
	c2 := threeQuestionContest("c2")
	c2.Entries = []domain.Entry{
		entry("b", map[string]bool{"q1": true, "q2": true}),
		entry("a", map[string]bool{"q1": true}),
	}
	pending := threeQuestionContest("c3")
	pending.Questions[0].CorrectAnswer = nil
	pending.Entries = []domain.Entry{entry("a", nil)}
	other := threeQuestionContest("c4")

	stats := scoring.PlayerStats("a", []domain.Contest{c1, c2, pending, other}, afterLock)
	if stats.TotalEntries != 3 || stats.CompletedContests != 2 {
		t.Fatalf("unexpected counts %+v", stats)
	}
	if stats.FirstPlaceFinishes != 1 || stats.TopThreeFinishes != 2 {
		t.Fatalf("unexpected finishes %+v", stats)
	}
	if stats.TotalScore != 4 || stats.TotalPossibleScore != 6 || stats.OverallAccuracy != 66.7 {
		t.Fatalf("unexpected score totals %+v", stats)
	}
	if stats.BestPosition != 1 || stats.WorstPosition != 2 || stats.AveragePosition != 1.5 {
		t.Fatalf("unexpected positions %+v", stats)
	}
	if stats.WinRate != 50 || stats.TopThreeRate != 100 {
		t.Fatalf("unexpected rates %+v", stats)
	}
}

func TestPlayerStatsWithoutEntries(t *testing.T) {
	stats := scoring.PlayerStats("nobody", []domain.Contest{threeQuestionContest("c1")}, afterLock)
	if stats.TotalEntries != 0 || stats.OverallAccuracy != 0 || stats.BestPosition != 0 {
		t.Fatalf("expected empty stats, got %+v", stats)
	}
}

func threeQuestionContest(id string) domain.Contest {
	return domain.Contest{
		ID:     id,
		Name:   "Contest " + id,
		LockAt: lockAt,
		Questions: []domain.Question{
			revealed("q1", 1, true),
			revealed("q2", 2, true),
			revealed("q3", 3, true),
		},
	}
}

func league(bonus int, members []string, contests ...domain.Contest) domain.League {
	l := domain.League{ID: "l1", Name: "League", WinBonusPoints: bonus}
	for _, id := range members {
		l.Members = append(l.Members, domain.Membership{
			LeagueID: l.ID,
			User:     domain.User{ID: id, DisplayName: id},
		})
	}
	for i, c := range contests {
		l.Contests = append(l.Contests, domain.LeagueContest{
			LeagueID:  l.ID,
			ContestID: c.ID,
			Order:     i + 1,
			Contest:   c,
		})
	}
	return l
}
