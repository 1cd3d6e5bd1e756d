package memory

import (
	"context"
	"sync"
	"time"

	"prediction-league-service/internal/domain"
)

// LeagueStore is an in-memory implementation of app.LeagueStore.
type LeagueStore struct {
	mu      sync.RWMutex
	leagues map[string]*domain.League
}

func NewLeagueStore() *LeagueStore {
	return &LeagueStore{leagues: make(map[string]*domain.League)}
}

func (s *LeagueStore) CreateLeague(_ context.Context, l domain.League) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := copyLeague(&l)
	s.leagues[l.ID] = &stored
	return nil
}

func (s *LeagueStore) UpdateLeague(_ context.Context, l domain.League) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.leagues[l.ID]
	if !ok {
		return domain.ErrLeagueNotFound
	}
	stored.Name = l.Name
	stored.Description = l.Description
	stored.IsPublic = l.IsPublic
	stored.WinBonusPoints = l.WinBonusPoints
	stored.UpdatedAt = l.UpdatedAt
	return nil
}

func (s *LeagueStore) GetLeague(_ context.Context, leagueID string) (domain.League, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.leagues[leagueID]
	if !ok {
		return domain.League{}, domain.ErrLeagueNotFound
	}
	return copyLeague(stored), nil
}

func (s *LeagueStore) AddMember(_ context.Context, m domain.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leagues[m.LeagueID]
	if !ok {
		return domain.ErrLeagueNotFound
	}
	if _, exists := l.Member(m.User.ID); exists {
		return domain.ErrAlreadyMember
	}
	l.Members = append(l.Members, m)
	return nil
}

func (s *LeagueStore) RemoveMember(_ context.Context, leagueID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leagues[leagueID]
	if !ok {
		return domain.ErrLeagueNotFound
	}
	for i, m := range l.Members {
		if m.User.ID == userID {
			l.Members = append(l.Members[:i], l.Members[i+1:]...)
			return nil
		}
	}
	return domain.ErrMemberNotFound
}

func (s *LeagueStore) SetMemberAdmin(_ context.Context, leagueID, userID string, admin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leagues[leagueID]
	if !ok {
		return domain.ErrLeagueNotFound
	}
	for i := range l.Members {
		if l.Members[i].User.ID == userID {
			l.Members[i].IsAdmin = admin
			return nil
		}
	}
	return domain.ErrMemberNotFound
}

func (s *LeagueStore) AddContest(_ context.Context, leagueID, contestID string, at time.Time) (domain.LeagueContest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leagues[leagueID]
	if !ok {
		return domain.LeagueContest{}, domain.ErrLeagueNotFound
	}
	maxOrder := 0
	for _, lc := range l.Contests {
		if lc.ContestID == contestID {
			return domain.LeagueContest{}, domain.ErrContestAlreadyLinked
		}
		if lc.Order > maxOrder {
			maxOrder = lc.Order
		}
	}
	link := domain.LeagueContest{LeagueID: leagueID, ContestID: contestID, Order: maxOrder + 1, AddedAt: at}
	l.Contests = append(l.Contests, link)
	return link, nil
}

func (s *LeagueStore) RemoveContest(_ context.Context, leagueID, contestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leagues[leagueID]
	if !ok {
		return domain.ErrLeagueNotFound
	}
	for i, lc := range l.Contests {
		if lc.ContestID == contestID {
			l.Contests = append(l.Contests[:i], l.Contests[i+1:]...)
			return nil
		}
	}
	return domain.ErrContestNotLinked
}

func copyLeague(l *domain.League) domain.League {
	out := *l
	out.Members = append([]domain.Membership(nil), l.Members...)
	out.Contests = append([]domain.LeagueContest(nil), l.Contests...)
	return out
}
