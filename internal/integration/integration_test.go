package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"prediction-league-service/internal/app"
	"prediction-league-service/internal/domain"
	"prediction-league-service/internal/infra/postgres"
	pgmigrations "prediction-league-service/internal/infra/postgres/migrations"
	infraredis "prediction-league-service/internal/infra/redis"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func TestLeagueStandingsOnPostgres(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, cleanup := startPostgres(t, ctx)
	defer cleanup()
	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	runLeagueScenario(t, ctx, postgres.NewContestStore(pool), postgres.NewLeagueStore(pool))
}

func TestPostgresRejectsDuplicatePositions(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, cleanup := startPostgres(t, ctx)
	defer cleanup()
	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	contests := postgres.NewContestStore(pool)
	leagues := postgres.NewLeagueStore(pool)
	at := time.Date(2025, 9, 7, 12, 0, 0, 0, time.UTC)
	for _, id := range []string{"c1", "c2"} {
		c := domain.Contest{
			ID: id, Name: id, CreatedBy: "owner", LockAt: at, CreatedAt: at, UpdatedAt: at,
			Questions: []domain.Question{{ID: id + "-q1", ContestID: id, Text: "Q1", Order: 1}},
		}
		if err := contests.CreateContest(ctx, c); err != nil {
			t.Fatalf("create contest %s: %v", id, err)
		}
	}

	_, err = pool.Exec(ctx, `INSERT INTO questions (id, contest_id, text, position) VALUES ('dup', 'c1', 'Q2', 1)`)
	requireUniqueViolation(t, err)

	l := domain.League{
		ID: "l1", Name: "Sunday", CreatedBy: "owner", WinBonusPoints: 5, CreatedAt: at, UpdatedAt: at,
		Members: []domain.Membership{{LeagueID: "l1", User: domain.User{ID: "owner"}, IsAdmin: true, JoinedAt: at}},
	}
	if err := leagues.CreateLeague(ctx, l); err != nil {
		t.Fatalf("create league: %v", err)
	}
	if _, err := leagues.AddContest(ctx, "l1", "c1", at); err != nil {
		t.Fatalf("link contest: %v", err)
	}
	_, err = pool.Exec(ctx, `INSERT INTO league_contests (league_id, contest_id, position, added_at) VALUES ('l1', 'c2', 1, now())`)
	requireUniqueViolation(t, err)
}

func requireUniqueViolation(t *testing.T, err error) {
	t.Helper()
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		t.Fatalf("expected unique violation, got %v", err)
	}
}

func TestLeagueStandingsOnRedis(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	redisURL, cleanup := startRedis(t, ctx)
	defer cleanup()
	client, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer client.Close()

	runLeagueScenario(t, ctx, infraredis.NewContestStore(client), infraredis.NewLeagueStore(client))
}

// runLeagueScenario plays one contest through entry, lock and reveal and checks the
// league table: the perfect entry earns its points plus the win bonus.
func runLeagueScenario(t *testing.T, ctx context.Context, contestStore app.ContestStore, leagueStore app.LeagueStore) {
	t.Helper()
	clk := &clock{now: time.Date(2025, 9, 7, 12, 0, 0, 0, time.UTC)}
	contests := app.NewContestService(contestStore, clk.Now)
	leagues := app.NewLeagueService(leagueStore, contestStore, clk.Now, 5)

	owner := domain.User{ID: "owner", DisplayName: "Olivia"}
	alice := domain.User{ID: "u1", DisplayName: "Alice"}
	bob := domain.User{ID: "u2", DisplayName: "Bob"}

	l, err := leagues.CreateLeague(ctx, owner, app.LeagueInput{Name: "Sunday League", IsPublic: true})
	if err != nil {
		t.Fatalf("create league: %v", err)
	}
	for _, u := range []domain.User{alice, bob} {
		if _, err := leagues.Join(ctx, u, l.ID); err != nil {
			t.Fatalf("join: %v", err)
		}
	}

	c, err := contests.CreateContest(ctx, owner, app.ContestInput{
		Name:      "Week 1",
		LockAt:    clk.now.Add(time.Hour),
		Questions: []string{"Q1", "Q2", "Q3"},
	})
	if err != nil {
		t.Fatalf("create contest: %v", err)
	}
	if _, err := leagues.AddContest(ctx, owner, l.ID, c.ID); err != nil {
		t.Fatalf("link contest: %v", err)
	}

	q := c.Questions
	if _, err := contests.SubmitEntry(ctx, alice, c.ID, map[string]bool{q[0].ID: true, q[1].ID: true, q[2].ID: true}); err != nil {
		t.Fatalf("alice submit: %v", err)
	}
	if _, err := contests.SubmitEntry(ctx, bob, c.ID, map[string]bool{q[0].ID: true, q[1].ID: true, q[2].ID: false}); err != nil {
		t.Fatalf("bob submit: %v", err)
	}
	if _, err := contests.SubmitEntry(ctx, bob, c.ID, map[string]bool{q[1].ID: false}); err != nil {
		t.Fatalf("bob resubmit: %v", err)
	}

	clk.now = clk.now.Add(2 * time.Hour)
	if _, err := contests.RevealAnswers(ctx, owner, c.ID, map[string]bool{q[0].ID: true, q[1].ID: true, q[2].ID: true}); err != nil {
		t.Fatalf("reveal: %v", err)
	}

	lb, err := contests.Leaderboard(ctx, c.ID)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if !lb.Available || len(lb.Standings) != 2 || lb.Standings[1].CorrectAnswers != 1 {
		t.Fatalf("unexpected contest leaderboard %+v", lb)
	}

	standings, err := leagues.Standings(ctx, alice, l.ID)
	if err != nil {
		t.Fatalf("standings: %v", err)
	}
	if len(standings.Standings) != 3 {
		t.Fatalf("expected 3 members, got %d", len(standings.Standings))
	}
	top := standings.Standings[0]
	if top.User.ID != alice.ID || top.TotalPoints != 8 || top.ContestWins != 1 {
		t.Fatalf("expected alice on 8 points, got %+v", top)
	}
	if standings.Standings[1].TotalPoints != 1 {
		t.Fatalf("expected bob on 1 point, got %+v", standings.Standings[1])
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "league", "POSTGRES_PASSWORD": "leaguepass", "POSTGRES_DB": "leaguedb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://league:leaguepass@%s:%s/leaguedb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

// migrateSchema runs the migrations; the postgres listener can come up before the
// server accepts connections, so the first attempts are retried.
func migrateSchema(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	var err error
	for attempt := 0; attempt < 10; attempt++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("ping postgres: %v", err)
	}

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
