package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"prediction-league-service/internal/domain"
)

// ContestStore keeps contests in Redis as durable data, one key family per contest:
//
//	contest:{id}                hash   name, description, created_by, lock_at, created_at, updated_at
//	contest:{id}:questions      zset   questionID scored by display order
//	contest:{id}:question_text  hash   questionID -> text
//	contest:{id}:answer_key     hash   questionID -> "1" | "0"
//	contest:{id}:answer_set_at  hash   questionID -> reveal time
//	contest:{id}:entries        hash   userID -> entryID
//	contest:{id}:entry_order    list   entryIDs in creation order
//	entry:{id}                  hash   contest_id, user_id, display_name, created_at, updated_at
//	entry:{id}:answers          hash   questionID -> "1" | "0"
//	user:{id}:contests          set    contestIDs the user entered
type ContestStore struct {
	client *redis.Client
}

func NewContestStore(client *redis.Client) *ContestStore {
	return &ContestStore{client: client}
}

// createEntryScript claims the (contest, user) slot and writes the entry in one step.
// Returns -1 for an unknown contest and 0 when the user already entered.
var createEntryScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
if redis.call('HSETNX', KEYS[2], ARGV[1], ARGV[2]) == 0 then return 0 end
redis.call('HSET', KEYS[4], 'contest_id', ARGV[3], 'user_id', ARGV[1], 'display_name', ARGV[4], 'created_at', ARGV[5], 'updated_at', ARGV[6])
redis.call('RPUSH', KEYS[3], ARGV[2])
redis.call('SADD', KEYS[5], ARGV[3])
return 1
`)

func (s *ContestStore) CreateContest(ctx context.Context, c domain.Contest) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, contestKey(c.ID), contestFields(c))
		writeQuestions(ctx, pipe, c.ID, c.Questions)
		return nil
	})
	return err
}

func (s *ContestStore) UpdateContest(ctx context.Context, c domain.Contest, replaceQuestions bool) error {
	if err := s.requireContest(ctx, c.ID); err != nil {
		return err
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, contestKey(c.ID),
			"name", c.Name,
			"description", c.Description,
			"lock_at", formatTime(c.LockAt),
			"updated_at", formatTime(c.UpdatedAt),
		)
		if replaceQuestions {
			pipe.Del(ctx,
				contestKey(c.ID)+":questions",
				contestKey(c.ID)+":question_text",
				contestKey(c.ID)+":answer_key",
				contestKey(c.ID)+":answer_set_at",
			)
			writeQuestions(ctx, pipe, c.ID, c.Questions)
		}
		return nil
	})
	return err
}

func (s *ContestStore) GetContest(ctx context.Context, contestID string) (domain.Contest, error) {
	base := contestKey(contestID)

	pipe := s.client.Pipeline()
	meta := pipe.HGetAll(ctx, base)
	order := pipe.ZRangeWithScores(ctx, base+":questions", 0, -1)
	texts := pipe.HGetAll(ctx, base+":question_text")
	answers := pipe.HGetAll(ctx, base+":answer_key")
	setAt := pipe.HGetAll(ctx, base+":answer_set_at")
	entryIDs := pipe.LRange(ctx, base+":entry_order", 0, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Contest{}, err
	}
	if len(meta.Val()) == 0 {
		return domain.Contest{}, domain.ErrContestNotFound
	}

	dec := fieldDecoder{key: base}
	c := parseContest(&dec, contestID, meta.Val())
	c.Questions = make([]domain.Question, 0, len(order.Val()))
	for _, z := range order.Val() {
		id, _ := z.Member.(string)
		c.Questions = append(c.Questions, buildQuestion(&dec, contestID, id, int(z.Score), texts.Val(), answers.Val(), setAt.Val()))
	}
	if dec.err != nil {
		return domain.Contest{}, dec.err
	}

	entries, err := s.loadEntries(ctx, contestID, entryIDs.Val())
	if err != nil {
		return domain.Contest{}, err
	}
	c.Entries = entries
	return c, nil
}

func (s *ContestStore) ListContestsEnteredBy(ctx context.Context, userID string) ([]domain.Contest, error) {
	ids, err := s.client.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Contest, 0, len(ids))
	for _, id := range ids {
		c, err := s.GetContest(ctx, id)
		if errors.Is(err, domain.ErrContestNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LockAt.Before(out[j].LockAt) })
	return out, nil
}

func (s *ContestStore) SetCorrectAnswer(ctx context.Context, contestID, questionID string, answer bool, at time.Time) (domain.Question, error) {
	if err := s.requireContest(ctx, contestID); err != nil {
		return domain.Question{}, err
	}
	base := contestKey(contestID)
	score, err := s.client.ZScore(ctx, base+":questions", questionID).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.Question{}, err
	}

	var text *redis.StringCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, base+":answer_key", questionID, formatBool(answer))
		pipe.HSet(ctx, base+":answer_set_at", questionID, formatTime(at))
		text = pipe.HGet(ctx, base+":question_text", questionID)
		return nil
	})
	if err != nil {
		return domain.Question{}, err
	}

	value, revealedAt := answer, at
	return domain.Question{
		ID:            questionID,
		ContestID:     contestID,
		Text:          text.Val(),
		Order:         int(score),
		CorrectAnswer: &value,
		AnswerSetAt:   &revealedAt,
	}, nil
}

func (s *ContestStore) CreateEntry(ctx context.Context, e domain.Entry) error {
	keys := []string{
		contestKey(e.ContestID),
		contestKey(e.ContestID) + ":entries",
		contestKey(e.ContestID) + ":entry_order",
		entryKey(e.ID),
		userKey(e.User.ID),
	}
	res, err := createEntryScript.Run(ctx, s.client, keys,
		e.User.ID, e.ID, e.ContestID, e.User.DisplayName, formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
	).Int()
	if err != nil {
		return err
	}
	switch res {
	case -1:
		return domain.ErrContestNotFound
	case 0:
		return domain.ErrEntryExists
	}
	if len(e.Answers) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(e.Answers)*2)
	for questionID, answer := range e.Answers {
		values = append(values, questionID, formatBool(answer))
	}
	return s.client.HSet(ctx, entryKey(e.ID)+":answers", values...).Err()
}

func (s *ContestStore) GetEntry(ctx context.Context, contestID, userID string) (domain.Entry, error) {
	entryID, err := s.client.HGet(ctx, contestKey(contestID)+":entries", userID).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Entry{}, domain.ErrEntryNotFound
	}
	if err != nil {
		return domain.Entry{}, err
	}
	entries, err := s.loadEntries(ctx, contestID, []string{entryID})
	if err != nil {
		return domain.Entry{}, err
	}
	if len(entries) == 0 {
		return domain.Entry{}, domain.ErrEntryNotFound
	}
	return entries[0], nil
}

func (s *ContestStore) UpsertAnswer(ctx context.Context, entryID, questionID string, answer bool, at time.Time) error {
	n, err := s.client.Exists(ctx, entryKey(entryID)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrEntryNotFound
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, entryKey(entryID)+":answers", questionID, formatBool(answer))
		pipe.HSet(ctx, entryKey(entryID), "updated_at", formatTime(at))
		return nil
	})
	return err
}

func (s *ContestStore) loadEntries(ctx context.Context, contestID string, ids []string) ([]domain.Entry, error) {
	if len(ids) == 0 {
		return []domain.Entry{}, nil
	}
	pipe := s.client.Pipeline()
	metas := make([]*redis.MapStringStringCmd, len(ids))
	answers := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		metas[i] = pipe.HGetAll(ctx, entryKey(id))
		answers[i] = pipe.HGetAll(ctx, entryKey(id)+":answers")
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	out := make([]domain.Entry, 0, len(ids))
	for i, id := range ids {
		meta := metas[i].Val()
		if len(meta) == 0 {
			continue
		}
		dec := fieldDecoder{key: entryKey(id)}
		e := domain.Entry{
			ID:        id,
			ContestID: contestID,
			User:      domain.User{ID: meta["user_id"], DisplayName: meta["display_name"]},
			Answers:   make(map[string]bool, len(answers[i].Val())),
			CreatedAt: dec.time("created_at", meta["created_at"]),
			UpdatedAt: dec.time("updated_at", meta["updated_at"]),
		}
		for questionID, raw := range answers[i].Val() {
			e.Answers[questionID] = raw == "1"
		}
		if dec.err != nil {
			return nil, dec.err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *ContestStore) requireContest(ctx context.Context, contestID string) error {
	n, err := s.client.Exists(ctx, contestKey(contestID)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrContestNotFound
	}
	return nil
}

func writeQuestions(ctx context.Context, pipe redis.Pipeliner, contestID string, questions []domain.Question) {
	base := contestKey(contestID)
	for _, q := range questions {
		pipe.ZAdd(ctx, base+":questions", redis.Z{Score: float64(q.Order), Member: q.ID})
		pipe.HSet(ctx, base+":question_text", q.ID, q.Text)
		if q.CorrectAnswer != nil {
			pipe.HSet(ctx, base+":answer_key", q.ID, formatBool(*q.CorrectAnswer))
		}
		if q.AnswerSetAt != nil {
			pipe.HSet(ctx, base+":answer_set_at", q.ID, formatTime(*q.AnswerSetAt))
		}
	}
}

func contestFields(c domain.Contest) map[string]interface{} {
	return map[string]interface{}{
		"name":        c.Name,
		"description": c.Description,
		"created_by":  c.CreatedBy,
		"lock_at":     formatTime(c.LockAt),
		"created_at":  formatTime(c.CreatedAt),
		"updated_at":  formatTime(c.UpdatedAt),
	}
}

func parseContest(dec *fieldDecoder, id string, meta map[string]string) domain.Contest {
	return domain.Contest{
		ID:          id,
		Name:        meta["name"],
		Description: meta["description"],
		CreatedBy:   meta["created_by"],
		LockAt:      dec.time("lock_at", meta["lock_at"]),
		CreatedAt:   dec.time("created_at", meta["created_at"]),
		UpdatedAt:   dec.time("updated_at", meta["updated_at"]),
	}
}

func buildQuestion(dec *fieldDecoder, contestID, id string, order int, texts, answers, setAt map[string]string) domain.Question {
	q := domain.Question{ID: id, ContestID: contestID, Text: texts[id], Order: order}
	if raw, ok := answers[id]; ok {
		v := raw == "1"
		q.CorrectAnswer = &v
	}
	if raw, ok := setAt[id]; ok {
		t := dec.time("answer_set_at", raw)
		q.AnswerSetAt = &t
	}
	return q
}

func contestKey(contestID string) string {
	return "contest:" + contestID
}

func entryKey(entryID string) string {
	return "entry:" + entryID
}

func userKey(userID string) string {
	return "user:" + userID + ":contests"
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// fieldDecoder parses stored hash fields and keeps the first failure, so a corrupt
// record is reported instead of read back as zero values.
type fieldDecoder struct {
	key string
	err error
}

func (d *fieldDecoder) fail(field, raw string, err error) {
	if d.err == nil {
		d.err = fmt.Errorf("decode %s %s %q: %w", d.key, field, raw, err)
	}
}

func (d *fieldDecoder) time(field, raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		d.fail(field, raw, err)
	}
	return t
}

func (d *fieldDecoder) bool(field, raw string) bool {
	v, err := strconv.ParseBool(raw)
	if err != nil {
		d.fail(field, raw, err)
	}
	return v
}

func (d *fieldDecoder) int(field, raw string) int {
	v, err := strconv.Atoi(raw)
	if err != nil {
		d.fail(field, raw, err)
	}
	return v
}

func formatBool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
