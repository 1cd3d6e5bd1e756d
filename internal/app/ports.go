package app

import (
	"context"
	"time"

	"prediction-league-service/internal/domain"
)

// ContestStore persists contests, questions, entries and answers (in-memory, Redis,
// Postgres). Implementations enforce uniqueness of (contest, user) entries and
// (entry, question) answers and return materialized, ordered collections.
type ContestStore interface {
	CreateContest(ctx context.Context, c domain.Contest) error
	// UpdateContest writes name, description and lock time. When replaceQuestions is
	// set the stored questions are replaced by c.Questions.
	UpdateContest(ctx context.Context, c domain.Contest, replaceQuestions bool) error
	// GetContest returns the contest with questions ordered by Order and entries
	// (with answers) ordered by creation time.
	GetContest(ctx context.Context, contestID string) (domain.Contest, error)
	ListContestsEnteredBy(ctx context.Context, userID string) ([]domain.Contest, error)
	// SetCorrectAnswer overwrites the question's answer key and refreshes AnswerSetAt.
	SetCorrectAnswer(ctx context.Context, contestID, questionID string, answer bool, at time.Time) (domain.Question, error)
	// CreateEntry returns domain.ErrEntryExists when the user already entered.
	CreateEntry(ctx context.Context, e domain.Entry) error
	GetEntry(ctx context.Context, contestID, userID string) (domain.Entry, error)
	UpsertAnswer(ctx context.Context, entryID, questionID string, answer bool, at time.Time) error
}

// LeagueStore persists leagues, memberships and league/contest links.
type LeagueStore interface {
	// CreateLeague stores the league together with its initial members.
	CreateLeague(ctx context.Context, l domain.League) error
	UpdateLeague(ctx context.Context, l domain.League) error
	// GetLeague returns members in join order and contest links in league order.
	// Link contests are not materialized.
	GetLeague(ctx context.Context, leagueID string) (domain.League, error)
	// AddMember returns domain.ErrAlreadyMember for a duplicate (league, user).
	AddMember(ctx context.Context, m domain.Membership) error
	RemoveMember(ctx context.Context, leagueID, userID string) error
	SetMemberAdmin(ctx context.Context, leagueID, userID string, admin bool) error
	// AddContest appends the contest after the current highest order and returns
	// domain.ErrContestAlreadyLinked for a duplicate (league, contest).
	AddContest(ctx context.Context, leagueID, contestID string, at time.Time) (domain.LeagueContest, error)
	RemoveContest(ctx context.Context, leagueID, contestID string) error
}
