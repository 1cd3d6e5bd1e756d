package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"prediction-league-service/internal/domain"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// ContestStore persists contests, questions, entries and answers in Postgres.
type ContestStore struct {
	pool *pgxpool.Pool
}

func NewContestStore(pool *pgxpool.Pool) *ContestStore {
	return &ContestStore{pool: pool}
}

func (s *ContestStore) CreateContest(ctx context.Context, c domain.Contest) error {
	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO contests (id, name, description, created_by, lock_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			c.ID, c.Name, c.Description, c.CreatedBy, c.LockAt, c.CreatedAt, c.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert contest: %w", err)
		}
		return insertQuestions(ctx, tx, c.Questions)
	})
}

func (s *ContestStore) UpdateContest(ctx context.Context, c domain.Contest, replaceQuestions bool) error {
	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE contests SET name = $2, description = $3, lock_at = $4, updated_at = $5
			WHERE id = $1`,
			c.ID, c.Name, c.Description, c.LockAt, c.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update contest: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrContestNotFound
		}
		if !replaceQuestions {
			return nil
		}
		if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE contest_id = $1`, c.ID); err != nil {
			return fmt.Errorf("delete questions: %w", err)
		}
		return insertQuestions(ctx, tx, c.Questions)
	})
}

func (s *ContestStore) GetContest(ctx context.Context, contestID string) (domain.Contest, error) {
	c := domain.Contest{ID: contestID}
	err := s.pool.QueryRow(ctx, `
		SELECT name, description, created_by, lock_at, created_at, updated_at
		FROM contests WHERE id = $1`, contestID).
		Scan(&c.Name, &c.Description, &c.CreatedBy, &c.LockAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Contest{}, domain.ErrContestNotFound
	}
	if err != nil {
		return domain.Contest{}, fmt.Errorf("load contest: %w", err)
	}

	if c.Questions, err = loadQuestions(ctx, s.pool, contestID); err != nil {
		return domain.Contest{}, err
	}
	if c.Entries, err = loadEntries(ctx, s.pool, `e.contest_id = $1`, contestID); err != nil {
		return domain.Contest{}, err
	}
	return c, nil
}

func (s *ContestStore) ListContestsEnteredBy(ctx context.Context, userID string) ([]domain.Contest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT e.contest_id FROM entries e
		JOIN contests c ON c.id = e.contest_id
		WHERE e.user_id = $1
		ORDER BY c.lock_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list entered contests: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.Contest, 0, len(ids))
	for _, id := range ids {
		c, err := s.GetContest(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *ContestStore) SetCorrectAnswer(ctx context.Context, contestID, questionID string, answer bool, at time.Time) (domain.Question, error) {
	q := domain.Question{ID: questionID, ContestID: contestID}
	err := s.pool.QueryRow(ctx, `
		UPDATE questions SET correct_answer = $3, answer_set_at = $4
		WHERE contest_id = $1 AND id = $2
		RETURNING text, position, correct_answer, answer_set_at`,
		contestID, questionID, answer, at).
		Scan(&q.Text, &q.Order, &q.CorrectAnswer, &q.AnswerSetAt)
	if errors.Is(err, pgx.ErrNoRows) {
		if err := s.requireContest(ctx, contestID); err != nil {
			return domain.Question{}, err
		}
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("reveal answer: %w", err)
	}
	return q, nil
}

func (s *ContestStore) CreateEntry(ctx context.Context, e domain.Entry) error {
	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO entries (id, contest_id, user_id, display_name, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			e.ID, e.ContestID, e.User.ID, e.User.DisplayName, e.CreatedAt, e.UpdatedAt)
		switch pgCode(err) {
		case "":
		case uniqueViolation:
			return domain.ErrEntryExists
		case foreignKeyViolation:
			return domain.ErrContestNotFound
		default:
			return fmt.Errorf("insert entry: %w", err)
		}
		for questionID, answer := range e.Answers {
			if err := upsertAnswer(ctx, tx, e.ID, questionID, answer, e.UpdatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *ContestStore) GetEntry(ctx context.Context, contestID, userID string) (domain.Entry, error) {
	entries, err := loadEntries(ctx, s.pool, `e.contest_id = $1 AND e.user_id = $2`, contestID, userID)
	if err != nil {
		return domain.Entry{}, err
	}
	if len(entries) == 0 {
		return domain.Entry{}, domain.ErrEntryNotFound
	}
	return entries[0], nil
}

func (s *ContestStore) UpsertAnswer(ctx context.Context, entryID, questionID string, answer bool, at time.Time) error {
	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE entries SET updated_at = $2 WHERE id = $1`, entryID, at)
		if err != nil {
			return fmt.Errorf("touch entry: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrEntryNotFound
		}
		return upsertAnswer(ctx, tx, entryID, questionID, answer, at)
	})
}

func (s *ContestStore) requireContest(ctx context.Context, contestID string) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM contests WHERE id = $1)`, contestID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrContestNotFound
	}
	return nil
}

func upsertAnswer(ctx context.Context, q querier, entryID, questionID string, answer bool, at time.Time) error {
	_, err := q.Exec(ctx, `
		INSERT INTO entry_answers (entry_id, question_id, answer, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (entry_id, question_id) DO UPDATE SET answer = EXCLUDED.answer, updated_at = EXCLUDED.updated_at`,
		entryID, questionID, answer, at)
	if pgCode(err) == foreignKeyViolation {
		return fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, questionID)
	}
	if err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}
	return nil
}

func insertQuestions(ctx context.Context, q querier, questions []domain.Question) error {
	for _, question := range questions {
		_, err := q.Exec(ctx, `
			INSERT INTO questions (id, contest_id, text, position, correct_answer, answer_set_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			question.ID, question.ContestID, question.Text, question.Order, question.CorrectAnswer, question.AnswerSetAt)
		if err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
	}
	return nil
}

func loadQuestions(ctx context.Context, q querier, contestID string) ([]domain.Question, error) {
	rows, err := q.Query(ctx, `
		SELECT id, text, position, correct_answer, answer_set_at
		FROM questions WHERE contest_id = $1
		ORDER BY position, id`, contestID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	questions := []domain.Question{}
	for rows.Next() {
		question := domain.Question{ContestID: contestID}
		if err := rows.Scan(&question.ID, &question.Text, &question.Order, &question.CorrectAnswer, &question.AnswerSetAt); err != nil {
			return nil, err
		}
		questions = append(questions, question)
	}
	return questions, rows.Err()
}

// loadEntries returns entries matching where (aliased as e) in creation order, with
// their answers attached.
func loadEntries(ctx context.Context, q querier, where string, args ...interface{}) ([]domain.Entry, error) {
	rows, err := q.Query(ctx, `
		SELECT e.id, e.contest_id, e.user_id, e.display_name, e.created_at, e.updated_at, a.question_id, a.answer
		FROM entries e
		LEFT JOIN entry_answers a ON a.entry_id = e.id
		WHERE `+where+`
		ORDER BY e.seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	defer rows.Close()

	entries := []domain.Entry{}
	index := map[string]int{}
	for rows.Next() {
		var (
			e          domain.Entry
			questionID *string
			answer     *bool
		)
		if err := rows.Scan(&e.ID, &e.ContestID, &e.User.ID, &e.User.DisplayName, &e.CreatedAt, &e.UpdatedAt, &questionID, &answer); err != nil {
			return nil, err
		}
		i, seen := index[e.ID]
		if !seen {
			e.Answers = map[string]bool{}
			entries = append(entries, e)
			i = len(entries) - 1
			index[e.ID] = i
		}
		if questionID != nil && answer != nil {
			entries[i].Answers[*questionID] = *answer
		}
	}
	return entries, rows.Err()
}

func withTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	if err != nil {
		return "unknown"
	}
	return ""
}
