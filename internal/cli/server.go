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
	"github.com/spf13/cobra"

	"quizroom-service/internal/app"
	"quizroom-service/internal/broadcast"
	"quizroom-service/internal/config"
	"quizroom-service/internal/infra/memory"
	pgstore "quizroom-service/internal/infra/postgres"
	redisinfra "quizroom-service/internal/infra/redis"
	"quizroom-service/internal/logger"
	transport "quizroom-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz room server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New()
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
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
	}

	var store app.Store = memory.NewStore()
	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		store = pgstore.NewStore(pool)
	}

	cacheTTL := config.TTLDuration(cfg.Quiz.CacheTTL, 10*time.Minute)
	source := memory.NewStoreQuestionSource(store)
	var questions app.QuestionSource
	var invalidator app.QuestionInvalidator
	if redisClient != nil {
		cache := redisinfra.NewQuestionCache(redisClient, source, cacheTTL)
		questions, invalidator = cache, cache
	} else {
		cache := memory.NewQuestionCache(source, cacheTTL)
		questions, invalidator = cache, cache
	}

	broker := broadcast.NewBroker()
	var pub broadcast.Publisher = broker
	relayCtx, stopRelay := context.WithCancel(ctx)
	defer stopRelay()
	if redisClient != nil {
		relay := redisinfra.NewRelay(redisClient, broker)
		pub = relay
		go func() {
			if err := relay.Run(relayCtx); err != nil && relayCtx.Err() == nil {
				log.Errorw("event relay stopped", "err", err)
			}
		}()
	}

	var sessions transport.SessionStore
	if redisClient != nil {
		sessionTTL := config.TTLDuration(cfg.Redis.SessionTTL, redisinfra.DefaultSessionTTL)
		sessions = redisinfra.NewSessionCache(redisClient, sessionTTL)
	}

	rooms := app.NewRoomService(store, pub, invalidator, cfg.Quiz.TimeLimit)
	players := app.NewPlayerService(store, questions, pub, app.NameKey, cfg.Quiz.MaxPoints)
	handler := transport.NewHandler(rooms, players, broker, sessions, app.NameKey, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", handler.ServePlayerWS)
	mux.HandleFunc("/ws/host", handler.ServeHostWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Infow("starting quiz room service", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("failed to start server", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Infow("shutting down server")
	case <-ctx.Done():
		log.Infow("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
