package domain

import "time"

// MaxWinBonusPoints caps the per-contest win bonus a league may award.
const MaxWinBonusPoints = 50

// User is the authenticated actor supplied by the auth layer.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Question is a yes/no prompt. CorrectAnswer stays nil until the owner reveals it.
type Question struct {
	ID            string     `json:"id"`
	ContestID     string     `json:"contestId"`
	Text          string     `json:"text"`
	Order         int        `json:"order"`
	CorrectAnswer *bool      `json:"correctAnswer,omitempty"`
	AnswerSetAt   *time.Time `json:"answerSetAt,omitempty"`
}

// HasAnswer reports whether the correct answer has been revealed.
func (q Question) HasAnswer() bool {
	return q.CorrectAnswer != nil
}

// Entry is one user's participation in one contest. Answers is keyed by question ID;
// a question missing from the map is unanswered.
type Entry struct {
	ID        string          `json:"id"`
	ContestID string          `json:"contestId"`
	User      User            `json:"user"`
	Answers   map[string]bool `json:"answers"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Contest is a materialized contest: Questions are ordered by Order and Entries by
// creation time.
type Contest struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	CreatedBy   string     `json:"createdBy"`
	LockAt      time.Time  `json:"lockAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	Questions   []Question `json:"questions"`
	Entries     []Entry    `json:"entries,omitempty"`
}

// EntryFor returns the contest entry of userID, if any.
func (c Contest) EntryFor(userID string) (Entry, bool) {
	for _, e := range c.Entries {
		if e.User.ID == userID {
			return e, true
		}
	}
	return Entry{}, false
}

// Question looks up a question of the contest by ID.
func (c Contest) Question(questionID string) (Question, bool) {
	for _, q := range c.Questions {
		if q.ID == questionID {
			return q, true
		}
	}
	return Question{}, false
}

// Membership links a user to a league.
type Membership struct {
	LeagueID string    `json:"leagueId"`
	User     User      `json:"user"`
	IsAdmin  bool      `json:"isAdmin"`
	JoinedAt time.Time `json:"joinedAt"`
}

// LeagueContest places a contest in a league at a fixed order. Contest is only
// populated once the application layer has materialized it.
type LeagueContest struct {
	LeagueID  string    `json:"leagueId"`
	ContestID string    `json:"contestId"`
	Order     int       `json:"order"`
	AddedAt   time.Time `json:"addedAt"`
	Contest   Contest   `json:"-"`
}

// League groups contests and members under one standings table.
type League struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	CreatedBy      string          `json:"createdBy"`
	IsPublic       bool            `json:"isPublic"`
	WinBonusPoints int             `json:"winBonusPoints"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	Contests       []LeagueContest `json:"contests"`
	Members        []Membership    `json:"members"`
}

// Member returns the membership of userID, if any.
func (l League) Member(userID string) (Membership, bool) {
	for _, m := range l.Members {
		if m.User.ID == userID {
			return m, true
		}
	}
	return Membership{}, false
}

// CanManage reports whether userID is the creator or an admin member.
func (l League) CanManage(userID string) bool {
	if l.CreatedBy == userID {
		return true
	}
	m, ok := l.Member(userID)
	return ok && m.IsAdmin
}

// AdminCount returns the number of admin members.
func (l League) AdminCount() int {
	n := 0
	for _, m := range l.Members {
		if m.IsAdmin {
			n++
		}
	}
	return n
}

// ScoreRecord is the outcome of scoring one entry.
//
// AnsweredQuestions counts the questions whose correct answer has been revealed by the
// contest owner. It does not count how many questions the entrant answered.
type ScoreRecord struct {
	CorrectAnswers    int     `json:"correctAnswers"`
	TotalQuestions    int     `json:"totalQuestions"`
	AnsweredQuestions int     `json:"answeredQuestions"`
	Percentage        float64 `json:"percentage"`
}

// ContestStanding is one ranked row of a contest leaderboard.
type ContestStanding struct {
	Position int   `json:"position"`
	User     User  `json:"user"`
	Entry    Entry `json:"-"`
	ScoreRecord
}

// ContestLeaderboard is the ranked view of a single contest.
type ContestLeaderboard struct {
	ContestID string            `json:"contestId"`
	Available bool              `json:"available"`
	Standings []ContestStanding `json:"standings"`
}

// ContestDetail records how a member fared in one completed league contest.
type ContestDetail struct {
	ContestID   string `json:"contestId"`
	ContestName string `json:"contestName"`
	Position    int    `json:"position"`
	Score       int    `json:"score"`
	BonusPoints int    `json:"bonusPoints"`
	TotalPoints int    `json:"totalPoints"`
}

// LeagueStanding is one member's row in the league standings.
type LeagueStanding struct {
	User                 User            `json:"user"`
	TotalPoints          int             `json:"totalPoints"`
	ContestWins          int             `json:"contestWins"`
	ContestsParticipated int             `json:"contestsParticipated"`
	ContestsCompleted    int             `json:"contestsCompleted"`
	ContestDetails       []ContestDetail `json:"contestDetails"`
}

// LeagueLeaderboard captures the ordered standings of a league.
type LeagueLeaderboard struct {
	LeagueID  string           `json:"leagueId"`
	Standings []LeagueStanding `json:"standings"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// PlayerStats summarizes a user's record across every contest they entered.
type PlayerStats struct {
	UserID             string  `json:"userId"`
	TotalEntries       int     `json:"totalEntries"`
	CompletedContests  int     `json:"completedContests"`
	FirstPlaceFinishes int     `json:"firstPlaceFinishes"`
	TopThreeFinishes   int     `json:"topThreeFinishes"`
	TotalScore         int     `json:"totalScore"`
	TotalPossibleScore int     `json:"totalPossibleScore"`
	AveragePosition    float64 `json:"averagePosition"`
	BestPosition       int     `json:"bestPosition,omitempty"`
	WorstPosition      int     `json:"worstPosition,omitempty"`
	WinRate            float64 `json:"winRate"`
	TopThreeRate       float64 `json:"topThreeRate"`
	OverallAccuracy    float64 `json:"overallAccuracy"`
}
