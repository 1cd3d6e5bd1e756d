package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"prediction-league-service/internal/app"
	"prediction-league-service/internal/domain"
	"prediction-league-service/internal/infra/memory"
)

var (
	owner = domain.User{ID: "owner", DisplayName: "Olivia"}
	alice = domain.User{ID: "u1", DisplayName: "Alice"}
	bob   = domain.User{ID: "u2", DisplayName: "Bob"}
)

// testClock is a manually advanced clock shared by services under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestContestLifecycle(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	service := app.NewContestService(memory.NewContestStore(), clock.Now)

	c := createContest(t, service, clock, "Home team wins?", "Over 45.5 points?")
	q1, q2 := c.Questions[0].ID, c.Questions[1].ID

	if _, err := service.SubmitEntry(ctx, alice, c.ID, map[string]bool{q1: true, q2: true}); err != nil {
		t.Fatalf("alice entry: %v", err)
	}
	if _, err := service.SubmitEntry(ctx, bob, c.ID, nil); err != nil {
		t.Fatalf("bob entry: %v", err)
	}

	lb, err := service.Leaderboard(ctx, c.ID)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if lb.Available {
		t.Fatalf("expected leaderboard hidden before lock")
	}

	if _, err := service.RevealAnswer(ctx, owner, c.ID, q1, true); !errors.Is(err, domain.ErrContestNotLocked) {
		t.Fatalf("expected reveal before lock to fail, got %v", err)
	}

	clock.Advance(2 * time.Hour)

	if _, err := service.SubmitEntry(ctx, alice, c.ID, map[string]bool{q1: false}); !errors.Is(err, domain.ErrContestLocked) {
		t.Fatalf("expected locked entry error, got %v", err)
	}
	if _, err := service.RevealAnswer(ctx, alice, c.ID, q1, true); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected non-owner reveal to be forbidden, got %v", err)
	}

	if _, err := service.RevealAnswer(ctx, owner, c.ID, q1, true); err != nil {
		t.Fatalf("reveal q1: %v", err)
	}
	lb, _ = service.Leaderboard(ctx, c.ID)
	if lb.Available {
		t.Fatalf("expected partial reveal to keep leaderboard hidden")
	}

	if _, err := service.RevealAnswer(ctx, owner, c.ID, q2, false); err != nil {
		t.Fatalf("reveal q2: %v", err)
	}
	lb, _ = service.Leaderboard(ctx, c.ID)
	if !lb.Available || len(lb.Standings) != 2 {
		t.Fatalf("expected full leaderboard, got %+v", lb)
	}
	top := lb.Standings[0]
	if top.User.ID != alice.ID || top.CorrectAnswers != 1 || top.Percentage != 50 {
		t.Fatalf("expected alice first with 1 correct at 50%%, got %+v", top)
	}
	last := lb.Standings[1]
	if last.User.ID != bob.ID || last.CorrectAnswers != 0 || last.AnsweredQuestions != 2 || last.Percentage != 0 {
		t.Fatalf("expected bob last with nothing correct, got %+v", last)
	}

	score, err := service.EntryScore(ctx, alice, c.ID, alice.ID)
	if err != nil {
		t.Fatalf("entry score: %v", err)
	}
	if score != top.ScoreRecord {
		t.Fatalf("expected entry score %+v to match leaderboard %+v", score, top.ScoreRecord)
	}
}

func TestSubmitEntryReusesExistingEntry(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	service := app.NewContestService(memory.NewContestStore(), clock.Now)
	c := createContest(t, service, clock, "Q1", "Q2")
	q1, q2 := c.Questions[0].ID, c.Questions[1].ID

	first, err := service.SubmitEntry(ctx, alice, c.ID, map[string]bool{q1: true})
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second, err := service.SubmitEntry(ctx, alice, c.ID, map[string]bool{q1: false, q2: true})
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected one entry per user, got %s and %s", first.ID, second.ID)
	}
	if second.Answers[q1] != false || second.Answers[q2] != true {
		t.Fatalf("expected answers overwritten, got %+v", second.Answers)
	}

	got, _ := service.GetContest(ctx, c.ID)
	if len(got.Entries) != 1 {
		t.Fatalf("expected a single entry, got %d", len(got.Entries))
	}
}

func TestSubmitEntryRejectsUnknownQuestion(t *testing.T) {
	clock := newTestClock()
	service := app.NewContestService(memory.NewContestStore(), clock.Now)
	c := createContest(t, service, clock, "Q1")

	_, err := service.SubmitEntry(context.Background(), alice, c.ID, map[string]bool{"other": true})
	if !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}
}

func TestConcurrentFirstSubmissionsCreateOneEntry(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	service := app.NewContestService(memory.NewContestStore(), clock.Now)
	c := createContest(t, service, clock, "Q1")
	q1 := c.Questions[0].ID

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := service.SubmitEntry(ctx, alice, c.ID, map[string]bool{q1: true}); err != nil {
				t.Errorf("submit: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := service.GetContest(ctx, c.ID)
	if len(got.Entries) != 1 {
		t.Fatalf("expected one entry after concurrent submits, got %d", len(got.Entries))
	}
}

func TestUpdateContestFreezesAfterEntries(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	service := app.NewContestService(memory.NewContestStore(), clock.Now)
	c := createContest(t, service, clock, "Q1", "Q2")

	updated, err := service.UpdateContest(ctx, owner, c.ID, app.ContestInput{
		Name:      "Renamed",
		LockAt:    c.LockAt.Add(time.Hour),
		Questions: []string{"Q1", "Q2", "Q3"},
	})
	if err != nil {
		t.Fatalf("update before entries: %v", err)
	}
	if len(updated.Questions) != 3 || !updated.LockAt.Equal(c.LockAt.Add(time.Hour)) {
		t.Fatalf("expected questions and lock updated, got %+v", updated)
	}

	if _, err := service.SubmitEntry(ctx, alice, c.ID, nil); err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err = service.UpdateContest(ctx, owner, c.ID, app.ContestInput{Name: "Again", LockAt: c.LockAt})
	if !errors.Is(err, domain.ErrLockImmutable) {
		t.Fatalf("expected lock immutable, got %v", err)
	}
	_, err = service.UpdateContest(ctx, owner, c.ID, app.ContestInput{Name: "Again", Questions: []string{"Only one"}})
	if !errors.Is(err, domain.ErrQuestionsFrozen) {
		t.Fatalf("expected questions frozen, got %v", err)
	}
	renamed, err := service.UpdateContest(ctx, owner, c.ID, app.ContestInput{Name: "Final name", Questions: []string{"Q1", "Q2", "Q3"}})
	if err != nil {
		t.Fatalf("rename after entries: %v", err)
	}
	if renamed.Name != "Final name" || len(renamed.Questions) != 3 {
		t.Fatalf("unexpected contest %+v", renamed)
	}
	if _, err := service.UpdateContest(ctx, alice, c.ID, app.ContestInput{Name: "Hijack"}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestRevealIsIdempotent(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	service := app.NewContestService(memory.NewContestStore(), clock.Now)
	c := createContest(t, service, clock, "Q1")
	q1 := c.Questions[0].ID
	_, _ = service.SubmitEntry(ctx, alice, c.ID, map[string]bool{q1: true})
	clock.Advance(2 * time.Hour)

	first, err := service.RevealAnswer(ctx, owner, c.ID, q1, true)
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	before, _ := service.EntryScore(ctx, alice, c.ID, alice.ID)

	clock.Advance(time.Minute)
	second, err := service.RevealAnswer(ctx, owner, c.ID, q1, true)
	if err != nil {
		t.Fatalf("reveal again: %v", err)
	}
	after, _ := service.EntryScore(ctx, alice, c.ID, alice.ID)

	if before != after {
		t.Fatalf("expected unchanged score, got %+v then %+v", before, after)
	}
	if !second.AnswerSetAt.After(*first.AnswerSetAt) {
		t.Fatalf("expected answerSetAt refreshed, got %v then %v", first.AnswerSetAt, second.AnswerSetAt)
	}
}

func TestRevealAnswersBatch(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	service := app.NewContestService(memory.NewContestStore(), clock.Now)
	c := createContest(t, service, clock, "Q1", "Q2")
	clock.Advance(2 * time.Hour)

	revealed, err := service.RevealAnswers(ctx, owner, c.ID, map[string]bool{
		c.Questions[0].ID: true,
		c.Questions[1].ID: false,
	})
	if err != nil {
		t.Fatalf("reveal batch: %v", err)
	}
	if len(revealed) != 2 {
		t.Fatalf("expected 2 revealed, got %d", len(revealed))
	}
	lb, _ := service.Leaderboard(ctx, c.ID)
	if !lb.Available || len(lb.Standings) != 0 {
		t.Fatalf("expected empty but available leaderboard, got %+v", lb)
	}
}

func TestRevealAnswersRejectsUnknownQuestionWithoutWriting(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	service := app.NewContestService(memory.NewContestStore(), clock.Now)
	c := createContest(t, service, clock, "Q1", "Q2")
	clock.Advance(2 * time.Hour)

	_, err := service.RevealAnswers(ctx, owner, c.ID, map[string]bool{
		c.Questions[0].ID: true,
		c.Questions[1].ID: false,
		"bogus":           true,
	})
	if !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}

	got, err := service.GetContest(ctx, c.ID)
	if err != nil {
		t.Fatalf("get contest: %v", err)
	}
	for _, q := range got.Questions {
		if q.HasAnswer() {
			t.Fatalf("expected %s to stay unrevealed after rejected batch", q.ID)
		}
	}
	lb, _ := service.Leaderboard(ctx, c.ID)
	if lb.Available {
		t.Fatalf("expected leaderboard to stay unavailable")
	}
}

func TestEntryScoreVisibleToEntrantAndOwner(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	service := app.NewContestService(memory.NewContestStore(), clock.Now)
	c := createContest(t, service, clock, "Q1")
	_, _ = service.SubmitEntry(ctx, alice, c.ID, map[string]bool{c.Questions[0].ID: true})
	clock.Advance(2 * time.Hour)

	if _, err := service.EntryScore(ctx, alice, c.ID, alice.ID); err != nil {
		t.Fatalf("entrant score: %v", err)
	}
	if _, err := service.EntryScore(ctx, owner, c.ID, alice.ID); err != nil {
		t.Fatalf("owner score: %v", err)
	}
	if _, err := service.EntryScore(ctx, bob, c.ID, alice.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for another player, got %v", err)
	}
	if _, err := service.EntryScore(ctx, domain.User{}, c.ID, alice.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for anonymous caller, got %v", err)
	}
}

func TestEntryScoreRequiresEntry(t *testing.T) {
	clock := newTestClock()
	service := app.NewContestService(memory.NewContestStore(), clock.Now)
	c := createContest(t, service, clock, "Q1")
	clock.Advance(2 * time.Hour)

	if _, err := service.EntryScore(context.Background(), bob, c.ID, bob.ID); !errors.Is(err, domain.ErrEntryNotFound) {
		t.Fatalf("expected entry not found, got %v", err)
	}
}

func TestPlayerStatsAcrossContests(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	service := app.NewContestService(memory.NewContestStore(), clock.Now)

	c1 := createContest(t, service, clock, "Q1")
	c2 := createContest(t, service, clock, "Q1")
	_, _ = service.SubmitEntry(ctx, alice, c1.ID, map[string]bool{c1.Questions[0].ID: true})
	_, _ = service.SubmitEntry(ctx, alice, c2.ID, map[string]bool{c2.Questions[0].ID: true})
	clock.Advance(2 * time.Hour)
	_, _ = service.RevealAnswer(ctx, owner, c1.ID, c1.Questions[0].ID, true)

	stats, err := service.PlayerStats(ctx, alice.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalEntries != 2 || stats.CompletedContests != 1 || stats.FirstPlaceFinishes != 1 || stats.OverallAccuracy != 100 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestCreateContestValidates(t *testing.T) {
	service := app.NewContestService(memory.NewContestStore(), newTestClock().Now)
	_, err := service.CreateContest(context.Background(), owner, app.ContestInput{Name: " ", Questions: []string{"Q"}})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

// createContest makes a contest owned by owner that locks one hour from the clock.
func createContest(t *testing.T, service *app.ContestService, clock *testClock, questions ...string) domain.Contest {
	t.Helper()
	c, err := service.CreateContest(context.Background(), owner, app.ContestInput{
		Name:      "Week 1",
		LockAt:    clock.Now().Add(time.Hour),
		Questions: questions,
	})
	if err != nil {
		t.Fatalf("create contest: %v", err)
	}
	return c
}
