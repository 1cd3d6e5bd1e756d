package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"prediction-league-service/internal/domain"
)

// LeagueStore persists leagues, memberships and contest links in Postgres.
type LeagueStore struct {
	pool *pgxpool.Pool
}

func NewLeagueStore(pool *pgxpool.Pool) *LeagueStore {
	return &LeagueStore{pool: pool}
}

func (s *LeagueStore) CreateLeague(ctx context.Context, l domain.League) error {
	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO leagues (id, name, description, created_by, is_public, win_bonus_points, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			l.ID, l.Name, l.Description, l.CreatedBy, l.IsPublic, l.WinBonusPoints, l.CreatedAt, l.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert league: %w", err)
		}
		for _, m := range l.Members {
			if err := insertMember(ctx, tx, m); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *LeagueStore) UpdateLeague(ctx context.Context, l domain.League) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE leagues SET name = $2, description = $3, is_public = $4, win_bonus_points = $5, updated_at = $6
		WHERE id = $1`,
		l.ID, l.Name, l.Description, l.IsPublic, l.WinBonusPoints, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update league: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLeagueNotFound
	}
	return nil
}

func (s *LeagueStore) GetLeague(ctx context.Context, leagueID string) (domain.League, error) {
	l := domain.League{ID: leagueID}
	err := s.pool.QueryRow(ctx, `
		SELECT name, description, created_by, is_public, win_bonus_points, created_at, updated_at
		FROM leagues WHERE id = $1`, leagueID).
		Scan(&l.Name, &l.Description, &l.CreatedBy, &l.IsPublic, &l.WinBonusPoints, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.League{}, domain.ErrLeagueNotFound
	}
	if err != nil {
		return domain.League{}, fmt.Errorf("load league: %w", err)
	}

	if l.Members, err = s.loadMembers(ctx, leagueID); err != nil {
		return domain.League{}, err
	}
	if l.Contests, err = s.loadLinks(ctx, leagueID); err != nil {
		return domain.League{}, err
	}
	return l, nil
}

func (s *LeagueStore) AddMember(ctx context.Context, m domain.Membership) error {
	return insertMember(ctx, s.pool, m)
}

func (s *LeagueStore) RemoveMember(ctx context.Context, leagueID, userID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM league_members WHERE league_id = $1 AND user_id = $2`, leagueID, userID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missing(ctx, leagueID, domain.ErrMemberNotFound)
	}
	return nil
}

func (s *LeagueStore) SetMemberAdmin(ctx context.Context, leagueID, userID string, admin bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE league_members SET is_admin = $3 WHERE league_id = $1 AND user_id = $2`, leagueID, userID, admin)
	if err != nil {
		return fmt.Errorf("set admin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missing(ctx, leagueID, domain.ErrMemberNotFound)
	}
	return nil
}

// AddContest locks the league row so concurrent links get distinct positions.
func (s *LeagueStore) AddContest(ctx context.Context, leagueID, contestID string, at time.Time) (domain.LeagueContest, error) {
	link := domain.LeagueContest{LeagueID: leagueID, ContestID: contestID, AddedAt: at}
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx, `SELECT id FROM leagues WHERE id = $1 FOR UPDATE`, leagueID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrLeagueNotFound
		}
		if err != nil {
			return err
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO league_contests (league_id, contest_id, position, added_at)
			SELECT $1, $2, COALESCE(MAX(position), 0) + 1, $3 FROM league_contests WHERE league_id = $1
			RETURNING position`, leagueID, contestID, at).Scan(&link.Order)
		switch pgCode(err) {
		case "":
			return nil
		case uniqueViolation:
			return domain.ErrContestAlreadyLinked
		case foreignKeyViolation:
			return domain.ErrContestNotFound
		default:
			return fmt.Errorf("link contest: %w", err)
		}
	})
	if err != nil {
		return domain.LeagueContest{}, err
	}
	return link, nil
}

func (s *LeagueStore) RemoveContest(ctx context.Context, leagueID, contestID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM league_contests WHERE league_id = $1 AND contest_id = $2`, leagueID, contestID)
	if err != nil {
		return fmt.Errorf("unlink contest: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missing(ctx, leagueID, domain.ErrContestNotLinked)
	}
	return nil
}

// missing reports ErrLeagueNotFound when the league itself is absent, otherwise fallback.
func (s *LeagueStore) missing(ctx context.Context, leagueID string, fallback error) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM leagues WHERE id = $1)`, leagueID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrLeagueNotFound
	}
	return fallback
}

func (s *LeagueStore) loadMembers(ctx context.Context, leagueID string) ([]domain.Membership, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, display_name, is_admin, joined_at
		FROM league_members WHERE league_id = $1
		ORDER BY seq`, leagueID)
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	defer rows.Close()

	members := []domain.Membership{}
	for rows.Next() {
		m := domain.Membership{LeagueID: leagueID}
		if err := rows.Scan(&m.User.ID, &m.User.DisplayName, &m.IsAdmin, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *LeagueStore) loadLinks(ctx context.Context, leagueID string) ([]domain.LeagueContest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT contest_id, position, added_at
		FROM league_contests WHERE league_id = $1
		ORDER BY position`, leagueID)
	if err != nil {
		return nil, fmt.Errorf("load contest links: %w", err)
	}
	defer rows.Close()

	links := []domain.LeagueContest{}
	for rows.Next() {
		link := domain.LeagueContest{LeagueID: leagueID}
		if err := rows.Scan(&link.ContestID, &link.Order, &link.AddedAt); err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

func insertMember(ctx context.Context, q querier, m domain.Membership) error {
	_, err := q.Exec(ctx, `
		INSERT INTO league_members (league_id, user_id, display_name, is_admin, joined_at)
		VALUES ($1, $2, $3, $4, $5)`,
		m.LeagueID, m.User.ID, m.User.DisplayName, m.IsAdmin, m.JoinedAt)
	switch pgCode(err) {
	case "":
		return nil
	case uniqueViolation:
		return domain.ErrAlreadyMember
	case foreignKeyViolation:
		return domain.ErrLeagueNotFound
	default:
		return fmt.Errorf("insert member: %w", err)
	}
}
