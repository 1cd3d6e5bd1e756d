package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"prediction-league-service/internal/domain"
	"prediction-league-service/internal/scoring"
)

// ContestInput carries the editable fields of a contest.
type ContestInput struct {
	Name        string
	Description string
	LockAt      time.Time
	// Questions holds question texts in display order. On update, nil keeps the
	// current questions.
	Questions []string
}

// ContestService contains the contest use cases: authoring, entering, revealing and
// ranking.
type ContestService struct {
	contests ContestStore
	now      func() time.Time
}

// NewContestService builds the service. A nil clock defaults to time.Now.
func NewContestService(contests ContestStore, now func() time.Time) *ContestService {
	if now == nil {
		now = time.Now
	}
	return &ContestService{contests: contests, now: now}
}

// CreateContest stores a new contest owned by actor with unrevealed questions.
func (s *ContestService) CreateContest(ctx context.Context, actor domain.User, in ContestInput) (domain.Contest, error) {
	name := strings.TrimSpace(in.Name)
	texts := cleanQuestions(in.Questions)
	if name == "" || in.LockAt.IsZero() || len(texts) == 0 {
		return domain.Contest{}, fmt.Errorf("%w: name, lock time and at least one question are required", domain.ErrInvalidInput)
	}

	now := s.now()
	c := domain.Contest{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		CreatedBy:   actor.ID,
		LockAt:      in.LockAt.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	c.Questions = newQuestions(c.ID, texts)

	if err := s.contests.CreateContest(ctx, c); err != nil {
		return domain.Contest{}, err
	}
	return c, nil
}

// UpdateContest edits a contest. Once anyone has entered, the lock time and the
// question set are frozen.
func (s *ContestService) UpdateContest(ctx context.Context, actor domain.User, contestID string, in ContestInput) (domain.Contest, error) {
	c, err := s.contests.GetContest(ctx, contestID)
	if err != nil {
		return domain.Contest{}, err
	}
	if c.CreatedBy != actor.ID {
		return domain.Contest{}, domain.ErrForbidden
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Contest{}, fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}

	editable := scoring.CanModifyQuestions(c)
	lockAt := c.LockAt
	if !in.LockAt.IsZero() && !in.LockAt.Equal(c.LockAt) {
		if !editable {
			return domain.Contest{}, domain.ErrLockImmutable
		}
		lockAt = in.LockAt.UTC()
	}

	replace := false
	if in.Questions != nil {
		texts := cleanQuestions(in.Questions)
		if len(texts) == 0 {
			return domain.Contest{}, fmt.Errorf("%w: at least one question is required", domain.ErrInvalidInput)
		}
		if !sameQuestions(c.Questions, texts) {
			if !editable {
				return domain.Contest{}, domain.ErrQuestionsFrozen
			}
			c.Questions = newQuestions(c.ID, texts)
			replace = true
		}
	}

	c.Name = name
	c.Description = strings.TrimSpace(in.Description)
	c.LockAt = lockAt
	c.UpdatedAt = s.now()
	if err := s.contests.UpdateContest(ctx, c, replace); err != nil {
		return domain.Contest{}, err
	}
	return c, nil
}

// GetContest loads a materialized contest.
func (s *ContestService) GetContest(ctx context.Context, contestID string) (domain.Contest, error) {
	return s.contests.GetContest(ctx, contestID)
}

// SubmitEntry records actor's answers, creating the entry on first submission.
//
// The lock check and the insert are not atomic: a submission racing the deadline may
// still land. The store's (contest, user) uniqueness is what prevents duplicate
// entries; a lost creation race is treated as "already entered".
func (s *ContestService) SubmitEntry(ctx context.Context, actor domain.User, contestID string, answers map[string]bool) (domain.Entry, error) {
	c, err := s.contests.GetContest(ctx, contestID)
	if err != nil {
		return domain.Entry{}, err
	}
	if scoring.IsLocked(c, s.now()) {
		return domain.Entry{}, domain.ErrContestLocked
	}
	for questionID := range answers {
		if _, ok := c.Question(questionID); !ok {
			return domain.Entry{}, fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, questionID)
		}
	}

	entry, ok := c.EntryFor(actor.ID)
	if !ok {
		entry, err = s.createEntry(ctx, actor, contestID)
		if err != nil {
			return domain.Entry{}, err
		}
	}

	now := s.now()
	for _, q := range c.Questions {
		answer, ok := answers[q.ID]
		if !ok {
			continue
		}
		if err := s.contests.UpsertAnswer(ctx, entry.ID, q.ID, answer, now); err != nil {
			return domain.Entry{}, err
		}
	}
	return s.contests.GetEntry(ctx, contestID, actor.ID)
}

func (s *ContestService) createEntry(ctx context.Context, actor domain.User, contestID string) (domain.Entry, error) {
	now := s.now()
	entry := domain.Entry{
		ID:        uuid.NewString(),
		ContestID: contestID,
		User:      actor,
		Answers:   map[string]bool{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.contests.CreateEntry(ctx, entry)
	if errors.Is(err, domain.ErrEntryExists) {
		slog.Info("entry already exists, reusing", "contest_id", contestID, "user_id", actor.ID)
		return s.contests.GetEntry(ctx, contestID, actor.ID)
	}
	if err != nil {
		return domain.Entry{}, err
	}
	return entry, nil
}

// RevealAnswer sets the correct answer of one question. Only the contest owner may
// reveal, and only after the deadline. Revealing again overwrites the value and
// refreshes the reveal time.
func (s *ContestService) RevealAnswer(ctx context.Context, actor domain.User, contestID, questionID string, answer bool) (domain.Question, error) {
	c, err := s.contests.GetContest(ctx, contestID)
	if err != nil {
		return domain.Question{}, err
	}
	if c.CreatedBy != actor.ID {
		return domain.Question{}, domain.ErrForbidden
	}
	now := s.now()
	if !scoring.IsLocked(c, now) {
		return domain.Question{}, domain.ErrContestNotLocked
	}
	if _, ok := c.Question(questionID); !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return s.contests.SetCorrectAnswer(ctx, contestID, questionID, answer, now)
}

// RevealAnswers reveals several questions. Every question id is checked before
// anything is written, so a rejected batch leaves the contest unchanged. No lock spans
// the writes themselves; a concurrent reader can observe a partially revealed contest.
func (s *ContestService) RevealAnswers(ctx context.Context, actor domain.User, contestID string, answers map[string]bool) ([]domain.Question, error) {
	c, err := s.contests.GetContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if c.CreatedBy != actor.ID {
		return nil, domain.ErrForbidden
	}
	now := s.now()
	if !scoring.IsLocked(c, now) {
		return nil, domain.ErrContestNotLocked
	}
	for questionID := range answers {
		if _, ok := c.Question(questionID); !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, questionID)
		}
	}

	out := make([]domain.Question, 0, len(answers))
	for _, q := range c.Questions {
		answer, ok := answers[q.ID]
		if !ok {
			continue
		}
		revealed, err := s.contests.SetCorrectAnswer(ctx, contestID, q.ID, answer, now)
		if err != nil {
			return out, err
		}
		out = append(out, revealed)
	}
	return out, nil
}

// Leaderboard ranks the contest when it is locked and fully revealed. In any other
// state the leaderboard is reported as unavailable rather than as an error.
func (s *ContestService) Leaderboard(ctx context.Context, contestID string) (domain.ContestLeaderboard, error) {
	c, err := s.contests.GetContest(ctx, contestID)
	if err != nil {
		return domain.ContestLeaderboard{}, err
	}
	return scoring.ContestLeaderboard(c, s.now()), nil
}

// EntryScore scores userID's entry against whatever has been revealed so far. Only
// the entrant and the contest owner may read it.
func (s *ContestService) EntryScore(ctx context.Context, actor domain.User, contestID, userID string) (domain.ScoreRecord, error) {
	c, err := s.contests.GetContest(ctx, contestID)
	if err != nil {
		return domain.ScoreRecord{}, err
	}
	if actor.ID == "" || (actor.ID != userID && actor.ID != c.CreatedBy) {
		return domain.ScoreRecord{}, domain.ErrForbidden
	}
	if !scoring.IsLocked(c, s.now()) {
		return domain.ScoreRecord{}, domain.ErrContestNotLocked
	}
	entry, ok := c.EntryFor(userID)
	if !ok {
		return domain.ScoreRecord{}, domain.ErrEntryNotFound
	}
	return scoring.ScoreEntry(c.Questions, entry.Answers), nil
}

// PlayerStats summarizes userID's record across every contest they entered.
func (s *ContestService) PlayerStats(ctx context.Context, userID string) (domain.PlayerStats, error) {
	contests, err := s.contests.ListContestsEnteredBy(ctx, userID)
	if err != nil {
		return domain.PlayerStats{}, err
	}
	return scoring.PlayerStats(userID, contests, s.now()), nil
}

func cleanQuestions(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, text := range raw {
		if text = strings.TrimSpace(text); text != "" {
			out = append(out, text)
		}
	}
	return out
}

func newQuestions(contestID string, texts []string) []domain.Question {
	questions := make([]domain.Question, len(texts))
	for i, text := range texts {
		questions[i] = domain.Question{
			ID:        uuid.NewString(),
			ContestID: contestID,
			Text:      text,
			Order:     i + 1,
		}
	}
	return questions
}

func sameQuestions(current []domain.Question, texts []string) bool {
	if len(current) != len(texts) {
		return false
	}
	for i := range current {
		if current[i].Text != texts[i] {
			return false
		}
	}
	return true
}
