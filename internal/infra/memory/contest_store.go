package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"prediction-league-service/internal/domain"
)

// ContestStore is an in-memory implementation of app.ContestStore.
type ContestStore struct {
	mu       sync.RWMutex
	contests map[string]*domain.Contest
	entries  map[string]*domain.Entry
	// byUser enforces one entry per (contest, user).
	byUser map[entryKey]string
	// ordered entry IDs per contest, in creation order
	byContest map[string][]string
}

type entryKey struct {
	contestID string
	userID    string
}

func NewContestStore() *ContestStore {
	return &ContestStore{
		contests:  make(map[string]*domain.Contest),
		entries:   make(map[string]*domain.Entry),
		byUser:    make(map[entryKey]string),
		byContest: make(map[string][]string),
	}
}

func (s *ContestStore) CreateContest(_ context.Context, c domain.Contest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := c
	stored.Questions = copyQuestions(c.Questions)
	stored.Entries = nil
	s.contests[c.ID] = &stored
	return nil
}

func (s *ContestStore) UpdateContest(_ context.Context, c domain.Contest, replaceQuestions bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.contests[c.ID]
	if !ok {
		return domain.ErrContestNotFound
	}
	stored.Name = c.Name
	stored.Description = c.Description
	stored.LockAt = c.LockAt
	stored.UpdatedAt = c.UpdatedAt
	if replaceQuestions {
		stored.Questions = copyQuestions(c.Questions)
	}
	return nil
}

func (s *ContestStore) GetContest(_ context.Context, contestID string) (domain.Contest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.materializeLocked(contestID)
}

func (s *ContestStore) ListContestsEnteredBy(_ context.Context, userID string) ([]domain.Contest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Contest
	for key := range s.byUser {
		if key.userID != userID {
			continue
		}
		c, err := s.materializeLocked(key.contestID)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LockAt.Before(out[j].LockAt) })
	return out, nil
}

func (s *ContestStore) SetCorrectAnswer(_ context.Context, contestID, questionID string, answer bool, at time.Time) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contests[contestID]
	if !ok {
		return domain.Question{}, domain.ErrContestNotFound
	}
	for i := range c.Questions {
		if c.Questions[i].ID != questionID {
			continue
		}
		value, setAt := answer, at
		c.Questions[i].CorrectAnswer = &value
		c.Questions[i].AnswerSetAt = &setAt
		return copyQuestions(c.Questions[i : i+1])[0], nil
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

func (s *ContestStore) CreateEntry(_ context.Context, e domain.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contests[e.ContestID]; !ok {
		return domain.ErrContestNotFound
	}
	key := entryKey{contestID: e.ContestID, userID: e.User.ID}
	if _, exists := s.byUser[key]; exists {
		return domain.ErrEntryExists
	}
	stored := e
	stored.Answers = copyAnswers(e.Answers)
	s.entries[e.ID] = &stored
	s.byUser[key] = e.ID
	s.byContest[e.ContestID] = append(s.byContest[e.ContestID], e.ID)
	return nil
}

func (s *ContestStore) GetEntry(_ context.Context, contestID, userID string) (domain.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUser[entryKey{contestID: contestID, userID: userID}]
	if !ok {
		return domain.Entry{}, domain.ErrEntryNotFound
	}
	return copyEntry(s.entries[id]), nil
}

func (s *ContestStore) UpsertAnswer(_ context.Context, entryID, questionID string, answer bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryID]
	if !ok {
		return domain.ErrEntryNotFound
	}
	if e.Answers == nil {
		e.Answers = make(map[string]bool)
	}
	e.Answers[questionID] = answer
	e.UpdatedAt = at
	return nil
}

func (s *ContestStore) materializeLocked(contestID string) (domain.Contest, error) {
	stored, ok := s.contests[contestID]
	if !ok {
		return domain.Contest{}, domain.ErrContestNotFound
	}
	c := *stored
	c.Questions = copyQuestions(stored.Questions)
	sort.SliceStable(c.Questions, func(i, j int) bool { return c.Questions[i].Order < c.Questions[j].Order })

	ids := s.byContest[contestID]
	c.Entries = make([]domain.Entry, 0, len(ids))
	for _, id := range ids {
		c.Entries = append(c.Entries, copyEntry(s.entries[id]))
	}
	return c, nil
}

func copyQuestions(in []domain.Question) []domain.Question {
	out := make([]domain.Question, len(in))
	for i, q := range in {
		if q.CorrectAnswer != nil {
			v := *q.CorrectAnswer
			q.CorrectAnswer = &v
		}
		if q.AnswerSetAt != nil {
			v := *q.AnswerSetAt
			q.AnswerSetAt = &v
		}
		out[i] = q
	}
	return out
}

func copyEntry(e *domain.Entry) domain.Entry {
	out := *e
	out.Answers = copyAnswers(e.Answers)
	return out
}

func copyAnswers(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
