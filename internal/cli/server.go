package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"trivia-service/internal/app"
	"trivia-service/internal/config"
	"trivia-service/internal/infra/memory"
	"trivia-service/internal/infra/opentdb"
	"trivia-service/internal/infra/postgres"
	redisstore "trivia-service/internal/infra/redis"
	"trivia-service/internal/logging"
	transport "trivia-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

type storage interface {
	app.UserRepository
	app.ScoreRepository
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var store storage = memory.NewStore()
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		store = postgres.NewStore(pool)
	} else {
		log.Warn("postgres not configured, users and scores are kept in memory")
	}

	trivia := opentdb.New(cfg.OpenTDB.BaseURL, config.TTLDuration(cfg.OpenTDB.Timeout, 10*time.Second))
	catalogTTL := config.TTLDuration(cfg.Catalog.TTL, time.Hour)
	var catalog app.Catalog
	if redisClient != nil {
		catalog = redisstore.NewCatalogCache(redisClient, trivia, catalogTTL)
	} else {
		catalog = memory.NewCatalogCache(trivia, catalogTTL)
	}

	var sessions app.SessionRepository
	var markers *redisstore.SessionStore
	if redisClient != nil {
		markers = redisstore.NewSessionStore(redisClient, redisTTL)
		sessions = markers
	} else {
		sessions = memory.NewSessionStore()
	}

	accounts := app.NewAccountService(store, log)
	profiles := app.NewProfileService(store, store, log)
	catalogs := app.NewCatalogService(catalog, trivia, cfg.Catalog.Fanout, log)
	games := app.NewGameService(sessions, trivia, profiles, app.GameSettings{
		CountdownSeconds: cfg.Game.CountdownSeconds,
		TickInterval:     config.TTLDuration(cfg.Game.TickInterval, time.Second),
		ReportTimeout:    config.TTLDuration(cfg.Game.ReportTimeout, 10*time.Second),
	}, log)

	router := transport.NewRouter(transport.RouterConfig{
		APIHandler:  transport.NewAPIHandler(catalogs, accounts, profiles, log),
		GameHandler: transport.NewGameHandler(games, accounts, log),
		WSHandler:   transport.NewWSHandler(games, accounts, log),
		Debug:       cfg.Debug.Enabled,
		Log:         log,
	})

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  config.TTLDuration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.TTLDuration(cfg.Server.WriteTimeout, 15*time.Second),
	}

	go func() {
		log.WithField("port", finalPort).Info("starting trivia service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("failed to start server")
		}
	}()

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go sweepIdleGames(sweepCtx, games, markers, config.TTLDuration(cfg.Game.IdleTimeout, 30*time.Minute), log)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server...")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server...")
	}
	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = server.Shutdown(shutdownCtx)
	games.Shutdown()
	return err
}

// sweepIdleGames abandons games nobody has touched for maxIdle and keeps the Redis liveness
// markers of the remaining ones from expiring.
func sweepIdleGames(ctx context.Context, games *app.GameService, markers *redisstore.SessionStore, maxIdle time.Duration, log logrus.FieldLogger) {
	interval := min(maxIdle/2, time.Minute)
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			games.ExpireIdle(maxIdle)
			if markers == nil {
				continue
			}
			if err := markers.Touch(ctx); err != nil {
				log.WithError(err).Warn("could not refresh game markers")
			}
		}
	}
}
