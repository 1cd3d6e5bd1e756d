package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"prediction-league-service/internal/domain"
)

// LeagueStore keeps leagues in Redis:
//
//	league:{id}                hash  name, description, created_by, is_public, win_bonus_points, created_at, updated_at
//	league:{id}:members        hash  userID -> membership record (JSON)
//	league:{id}:member_order   list  userIDs in join order
//	league:{id}:contests       zset  contestID scored by league order
//	league:{id}:contest_added  hash  contestID -> link time
type LeagueStore struct {
	client *redis.Client
}

func NewLeagueStore(client *redis.Client) *LeagueStore {
	return &LeagueStore{client: client}
}

type memberRecord struct {
	DisplayName string    `json:"displayName"`
	IsAdmin     bool      `json:"isAdmin"`
	JoinedAt    time.Time `json:"joinedAt"`
}

var addMemberScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
if redis.call('HSETNX', KEYS[2], ARGV[1], ARGV[2]) == 0 then return 0 end
redis.call('RPUSH', KEYS[3], ARGV[1])
return 1
`)

// addContestScript links a contest after the current highest order. Returns -1 for
// an unknown league, 0 for a duplicate link, otherwise the assigned order.
var addContestScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
if redis.call('ZSCORE', KEYS[2], ARGV[1]) then return 0 end
local top = redis.call('ZRANGE', KEYS[2], -1, -1, 'WITHSCORES')
local order = 1
if #top > 0 then order = tonumber(top[2]) + 1 end
redis.call('ZADD', KEYS[2], order, ARGV[1])
redis.call('HSET', KEYS[3], ARGV[1], ARGV[2])
return order
`)

func (s *LeagueStore) CreateLeague(ctx context.Context, l domain.League) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, leagueKey(l.ID), leagueFields(l))
		for _, m := range l.Members {
			raw, err := encodeMember(m)
			if err != nil {
				return err
			}
			pipe.HSet(ctx, leagueKey(l.ID)+":members", m.User.ID, raw)
			pipe.RPush(ctx, leagueKey(l.ID)+":member_order", m.User.ID)
		}
		return nil
	})
	return err
}

func (s *LeagueStore) UpdateLeague(ctx context.Context, l domain.League) error {
	if err := s.requireLeague(ctx, l.ID); err != nil {
		return err
	}
	return s.client.HSet(ctx, leagueKey(l.ID),
		"name", l.Name,
		"description", l.Description,
		"is_public", strconv.FormatBool(l.IsPublic),
		"win_bonus_points", l.WinBonusPoints,
		"updated_at", formatTime(l.UpdatedAt),
	).Err()
}

func (s *LeagueStore) GetLeague(ctx context.Context, leagueID string) (domain.League, error) {
	base := leagueKey(leagueID)

	pipe := s.client.Pipeline()
	meta := pipe.HGetAll(ctx, base)
	members := pipe.HGetAll(ctx, base+":members")
	order := pipe.LRange(ctx, base+":member_order", 0, -1)
	links := pipe.ZRangeWithScores(ctx, base+":contests", 0, -1)
	added := pipe.HGetAll(ctx, base+":contest_added")
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.League{}, err
	}
	if len(meta.Val()) == 0 {
		return domain.League{}, domain.ErrLeagueNotFound
	}

	dec := fieldDecoder{key: base}
	l := parseLeague(&dec, leagueID, meta.Val())
	l.Members = make([]domain.Membership, 0, len(order.Val()))
	for _, userID := range order.Val() {
		raw, ok := members.Val()[userID]
		if !ok {
			continue
		}
		m, err := decodeMember(leagueID, userID, raw)
		if err != nil {
			return domain.League{}, err
		}
		l.Members = append(l.Members, m)
	}

	l.Contests = make([]domain.LeagueContest, 0, len(links.Val()))
	for _, z := range links.Val() {
		contestID, _ := z.Member.(string)
		l.Contests = append(l.Contests, domain.LeagueContest{
			LeagueID:  leagueID,
			ContestID: contestID,
			Order:     int(z.Score),
			AddedAt:   dec.time("contest_added", added.Val()[contestID]),
		})
	}
	if dec.err != nil {
		return domain.League{}, dec.err
	}
	return l, nil
}

func (s *LeagueStore) AddMember(ctx context.Context, m domain.Membership) error {
	raw, err := encodeMember(m)
	if err != nil {
		return err
	}
	base := leagueKey(m.LeagueID)
	res, err := addMemberScript.Run(ctx, s.client, []string{base, base + ":members", base + ":member_order"}, m.User.ID, raw).Int()
	if err != nil {
		return err
	}
	switch res {
	case -1:
		return domain.ErrLeagueNotFound
	case 0:
		return domain.ErrAlreadyMember
	}
	return nil
}

func (s *LeagueStore) RemoveMember(ctx context.Context, leagueID, userID string) error {
	if err := s.requireLeague(ctx, leagueID); err != nil {
		return err
	}
	base := leagueKey(leagueID)
	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.HDel(ctx, base+":members", userID)
		pipe.LRem(ctx, base+":member_order", 0, userID)
		return nil
	})
	if err != nil {
		return err
	}
	if removed.Val() == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

// SetMemberAdmin rewrites the membership record under WATCH so a concurrent removal
// is not resurrected.
func (s *LeagueStore) SetMemberAdmin(ctx context.Context, leagueID, userID string, admin bool) error {
	if err := s.requireLeague(ctx, leagueID); err != nil {
		return err
	}
	key := leagueKey(leagueID) + ":members"
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, userID).Result()
		if errors.Is(err, redis.Nil) {
			return domain.ErrMemberNotFound
		}
		if err != nil {
			return err
		}
		m, err := decodeMember(leagueID, userID, raw)
		if err != nil {
			return err
		}
		m.IsAdmin = admin
		updated, err := encodeMember(m)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, userID, updated)
			return nil
		})
		return err
	}, key)
}

func (s *LeagueStore) AddContest(ctx context.Context, leagueID, contestID string, at time.Time) (domain.LeagueContest, error) {
	base := leagueKey(leagueID)
	keys := []string{base, base + ":contests", base + ":contest_added"}
	res, err := addContestScript.Run(ctx, s.client, keys, contestID, formatTime(at)).Int()
	if err != nil {
		return domain.LeagueContest{}, err
	}
	switch res {
	case -1:
		return domain.LeagueContest{}, domain.ErrLeagueNotFound
	case 0:
		return domain.LeagueContest{}, domain.ErrContestAlreadyLinked
	}
	return domain.LeagueContest{LeagueID: leagueID, ContestID: contestID, Order: res, AddedAt: at}, nil
}

func (s *LeagueStore) RemoveContest(ctx context.Context, leagueID, contestID string) error {
	if err := s.requireLeague(ctx, leagueID); err != nil {
		return err
	}
	base := leagueKey(leagueID)
	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.ZRem(ctx, base+":contests", contestID)
		pipe.HDel(ctx, base+":contest_added", contestID)
		return nil
	})
	if err != nil {
		return err
	}
	if removed.Val() == 0 {
		return domain.ErrContestNotLinked
	}
	return nil
}

func (s *LeagueStore) requireLeague(ctx context.Context, leagueID string) error {
	n, err := s.client.Exists(ctx, leagueKey(leagueID)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrLeagueNotFound
	}
	return nil
}

func leagueFields(l domain.League) map[string]interface{} {
	return map[string]interface{}{
		"name":             l.Name,
		"description":      l.Description,
		"created_by":       l.CreatedBy,
		"is_public":        strconv.FormatBool(l.IsPublic),
		"win_bonus_points": l.WinBonusPoints,
		"created_at":       formatTime(l.CreatedAt),
		"updated_at":       formatTime(l.UpdatedAt),
	}
}

func parseLeague(dec *fieldDecoder, id string, meta map[string]string) domain.League {
	return domain.League{
		ID:             id,
		Name:           meta["name"],
		Description:    meta["description"],
		CreatedBy:      meta["created_by"],
		IsPublic:       dec.bool("is_public", meta["is_public"]),
		WinBonusPoints: dec.int("win_bonus_points", meta["win_bonus_points"]),
		CreatedAt:      dec.time("created_at", meta["created_at"]),
		UpdatedAt:      dec.time("updated_at", meta["updated_at"]),
	}
}

func encodeMember(m domain.Membership) (string, error) {
	raw, err := json.Marshal(memberRecord{DisplayName: m.User.DisplayName, IsAdmin: m.IsAdmin, JoinedAt: m.JoinedAt.UTC()})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeMember(leagueID, userID, raw string) (domain.Membership, error) {
	var rec memberRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return domain.Membership{}, err
	}
	return domain.Membership{
		LeagueID: leagueID,
		User:     domain.User{ID: userID, DisplayName: rec.DisplayName},
		IsAdmin:  rec.IsAdmin,
		JoinedAt: rec.JoinedAt,
	}, nil
}

func leagueKey(leagueID string) string {
	return "league:" + leagueID
}
