package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"prediction-league-service/internal/domain"
	"prediction-league-service/internal/scoring"
)

// LeagueInput carries the editable fields of a league. A nil WinBonusPoints takes the
// service default on create and keeps the current value on update.
type LeagueInput struct {
	Name           string
	Description    string
	IsPublic       bool
	WinBonusPoints *int
}

// LeagueService contains league membership, contest linking and standings use cases.
type LeagueService struct {
	leagues      LeagueStore
	contests     ContestStore
	now          func() time.Time
	defaultBonus int
	sf           singleflight.Group
}

// NewLeagueService builds the service. A nil clock defaults to time.Now.
func NewLeagueService(leagues LeagueStore, contests ContestStore, now func() time.Time, defaultBonus int) *LeagueService {
	if now == nil {
		now = time.Now
	}
	return &LeagueService{
		leagues:      leagues,
		contests:     contests,
		now:          now,
		defaultBonus: defaultBonus,
	}
}

// CreateLeague stores a league with actor as its first admin member.
func (s *LeagueService) CreateLeague(ctx context.Context, actor domain.User, in LeagueInput) (domain.League, error) {
	bonus := s.defaultBonus
	if in.WinBonusPoints != nil {
		bonus = *in.WinBonusPoints
	}
	name := strings.TrimSpace(in.Name)
	if err := validateLeague(name, bonus); err != nil {
		return domain.League{}, err
	}

	now := s.now()
	l := domain.League{
		ID:             uuid.NewString(),
		Name:           name,
		Description:    strings.TrimSpace(in.Description),
		CreatedBy:      actor.ID,
		IsPublic:       in.IsPublic,
		WinBonusPoints: bonus,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	l.Members = []domain.Membership{{LeagueID: l.ID, User: actor, IsAdmin: true, JoinedAt: now}}

	if err := s.leagues.CreateLeague(ctx, l); err != nil {
		return domain.League{}, err
	}
	return l, nil
}

// UpdateLeague edits league settings; creator or admins only.
func (s *LeagueService) UpdateLeague(ctx context.Context, actor domain.User, leagueID string, in LeagueInput) (domain.League, error) {
	l, err := s.manageable(ctx, actor, leagueID)
	if err != nil {
		return domain.League{}, err
	}
	bonus := l.WinBonusPoints
	if in.WinBonusPoints != nil {
		bonus = *in.WinBonusPoints
	}
	name := strings.TrimSpace(in.Name)
	if err := validateLeague(name, bonus); err != nil {
		return domain.League{}, err
	}

	l.Name = name
	l.Description = strings.TrimSpace(in.Description)
	l.IsPublic = in.IsPublic
	l.WinBonusPoints = bonus
	l.UpdatedAt = s.now()
	if err := s.leagues.UpdateLeague(ctx, l); err != nil {
		return domain.League{}, err
	}
	return l, nil
}

// GetLeague loads a league with its members and contest links. Private leagues are
// visible to their members only; viewer may be the zero User.
func (s *LeagueService) GetLeague(ctx context.Context, viewer domain.User, leagueID string) (domain.League, error) {
	l, err := s.leagues.GetLeague(ctx, leagueID)
	if err != nil {
		return domain.League{}, err
	}
	if !canView(l, viewer) {
		return domain.League{}, domain.ErrLeaguePrivate
	}
	return l, nil
}

// Join adds actor to a public league.
func (s *LeagueService) Join(ctx context.Context, actor domain.User, leagueID string) (domain.Membership, error) {
	l, err := s.leagues.GetLeague(ctx, leagueID)
	if err != nil {
		return domain.Membership{}, err
	}
	if !l.IsPublic {
		return domain.Membership{}, domain.ErrLeaguePrivate
	}
	if _, ok := l.Member(actor.ID); ok {
		return domain.Membership{}, domain.ErrAlreadyMember
	}
	m := domain.Membership{LeagueID: leagueID, User: actor, JoinedAt: s.now()}
	if err := s.leagues.AddMember(ctx, m); err != nil {
		return domain.Membership{}, err
	}
	return m, nil
}

// Leave removes actor from the league. The creator cannot leave while they are the
// only admin.
func (s *LeagueService) Leave(ctx context.Context, actor domain.User, leagueID string) error {
	l, err := s.leagues.GetLeague(ctx, leagueID)
	if err != nil {
		return err
	}
	if _, ok := l.Member(actor.ID); !ok {
		return domain.ErrMemberNotFound
	}
	if l.CreatedBy == actor.ID && l.AdminCount() <= 1 {
		return domain.ErrSoleAdmin
	}
	return s.leagues.RemoveMember(ctx, leagueID, actor.ID)
}

// RemoveMember removes another member. The creator cannot be removed and members
// leave through Leave.
func (s *LeagueService) RemoveMember(ctx context.Context, actor domain.User, leagueID, userID string) error {
	l, err := s.manageable(ctx, actor, leagueID)
	if err != nil {
		return err
	}
	if l.CreatedBy == userID {
		return domain.ErrCreatorProtected
	}
	if actor.ID == userID {
		return fmt.Errorf("%w: use leave to remove yourself", domain.ErrInvalidInput)
	}
	if _, ok := l.Member(userID); !ok {
		return domain.ErrMemberNotFound
	}
	return s.leagues.RemoveMember(ctx, leagueID, userID)
}

// ToggleAdmin flips a member's admin flag. The creator's flag is fixed.
func (s *LeagueService) ToggleAdmin(ctx context.Context, actor domain.User, leagueID, userID string) (domain.Membership, error) {
	l, err := s.manageable(ctx, actor, leagueID)
	if err != nil {
		return domain.Membership{}, err
	}
	if l.CreatedBy == userID {
		return domain.Membership{}, domain.ErrCreatorProtected
	}
	m, ok := l.Member(userID)
	if !ok {
		return domain.Membership{}, domain.ErrMemberNotFound
	}
	m.IsAdmin = !m.IsAdmin
	if err := s.leagues.SetMemberAdmin(ctx, leagueID, userID, m.IsAdmin); err != nil {
		return domain.Membership{}, err
	}
	return m, nil
}

// AddContest links a contest created by a league member at the end of the league.
func (s *LeagueService) AddContest(ctx context.Context, actor domain.User, leagueID, contestID string) (domain.LeagueContest, error) {
	l, err := s.manageable(ctx, actor, leagueID)
	if err != nil {
		return domain.LeagueContest{}, err
	}
	c, err := s.contests.GetContest(ctx, contestID)
	if err != nil {
		return domain.LeagueContest{}, err
	}
	if _, ok := l.Member(c.CreatedBy); !ok {
		return domain.LeagueContest{}, domain.ErrContestNotEligible
	}
	return s.leagues.AddContest(ctx, leagueID, contestID, s.now())
}

// RemoveContest unlinks a contest from the league.
func (s *LeagueService) RemoveContest(ctx context.Context, actor domain.User, leagueID, contestID string) error {
	if _, err := s.manageable(ctx, actor, leagueID); err != nil {
		return err
	}
	return s.leagues.RemoveContest(ctx, leagueID, contestID)
}

type standingsResult struct {
	league domain.League
	board  domain.LeagueLeaderboard
}

// Standings recomputes the league leaderboard from source data. Concurrent requests
// for the same league share one computation; nothing is kept once it returns. The
// shared computation is detached from the first caller's cancellation. Private league
// standings are visible to members only.
func (s *LeagueService) Standings(ctx context.Context, viewer domain.User, leagueID string) (domain.LeagueLeaderboard, error) {
	shared := context.WithoutCancel(ctx)
	result, err, _ := s.sf.Do(leagueID, func() (interface{}, error) {
		return s.computeStandings(shared, leagueID)
	})
	if err != nil {
		return domain.LeagueLeaderboard{}, err
	}
	res := result.(standingsResult)
	if !canView(res.league, viewer) {
		return domain.LeagueLeaderboard{}, domain.ErrLeaguePrivate
	}
	return res.board, nil
}

func (s *LeagueService) computeStandings(ctx context.Context, leagueID string) (standingsResult, error) {
	l, err := s.leagues.GetLeague(ctx, leagueID)
	if err != nil {
		return standingsResult{}, err
	}

	links := make([]domain.LeagueContest, 0, len(l.Contests))
	for _, link := range l.Contests {
		c, err := s.contests.GetContest(ctx, link.ContestID)
		if errors.Is(err, domain.ErrContestNotFound) {
			slog.Warn("league links a missing contest", "league_id", leagueID, "contest_id", link.ContestID)
			continue
		}
		if err != nil {
			return standingsResult{}, err
		}
		link.Contest = c
		links = append(links, link)
	}
	l.Contests = links

	now := s.now()
	return standingsResult{
		league: l,
		board: domain.LeagueLeaderboard{
			LeagueID:  leagueID,
			Standings: scoring.BuildLeagueLeaderboard(l, now),
			UpdatedAt: now,
		},
	}, nil
}

func (s *LeagueService) manageable(ctx context.Context, actor domain.User, leagueID string) (domain.League, error) {
	l, err := s.leagues.GetLeague(ctx, leagueID)
	if err != nil {
		return domain.League{}, err
	}
	if !l.CanManage(actor.ID) {
		return domain.League{}, domain.ErrForbidden
	}
	return l, nil
}

func canView(l domain.League, viewer domain.User) bool {
	if l.IsPublic {
		return true
	}
	if viewer.ID == "" {
		return false
	}
	_, ok := l.Member(viewer.ID)
	return ok
}

func validateLeague(name string, bonus int) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}
	if bonus < 0 || bonus > domain.MaxWinBonusPoints {
		return fmt.Errorf("%w: win bonus must be between 0 and %d", domain.ErrInvalidInput, domain.MaxWinBonusPoints)
	}
	return nil
}
