package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"prediction-league-service/internal/app"
	"prediction-league-service/internal/config"
	"prediction-league-service/internal/infra/memory"
	"prediction-league-service/internal/infra/postgres"
	redisstore "prediction-league-service/internal/infra/redis"
	transport "prediction-league-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the prediction league server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

type stores struct {
	contests app.ContestStore
	leagues  app.LeagueStore
	close    func()
}

// openStores connects the configured backend. Postgres is migrated before use.
func openStores(ctx context.Context, cfg config.Config) (stores, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return stores{}, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return stores{}, fmt.Errorf("connect postgres: %w", err)
		}
		return stores{
			contests: postgres.NewContestStore(pool),
			leagues:  postgres.NewLeagueStore(pool),
			close:    pool.Close,
		}, nil
	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return stores{}, fmt.Errorf("connect redis: %w", err)
		}
		return stores{
			contests: redisstore.NewContestStore(client),
			leagues:  redisstore.NewLeagueStore(client),
			close:    func() { _ = client.Close() },
		}, nil
	default:
		return stores{
			contests: memory.NewContestStore(),
			leagues:  memory.NewLeagueStore(),
			close:    func() {},
		}, nil
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	contests := app.NewContestService(st.contests, time.Now)
	leagues := app.NewLeagueService(st.leagues, st.contests, time.Now, cfg.WinBonus())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	transport.NewHandler(contests, leagues, time.Now).Register(mux)
	mux.HandleFunc("/ws", transport.NewWSHandler(contests, leagues).ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  config.Duration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.Duration(cfg.Server.WriteTimeout, 15*time.Second),
	}

	go func() {
		slog.Info("starting prediction league service", "port", finalPort, "store", cfg.Store.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start server", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		slog.Info("shutting down server")
	case <-ctx.Done():
		slog.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Duration(cfg.Server.ShutdownTimeout, 5*time.Second))
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
