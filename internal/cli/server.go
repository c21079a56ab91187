package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/identity"
	"live-quiz-service/internal/infra/memory"
	"live-quiz-service/internal/infra/postgres"
	infraredis "live-quiz-service/internal/infra/redis"
	transport "live-quiz-service/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(cfg *config.Config, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *cfg, *port)
		},
	}
}

func runServer(ctx context.Context, cfg config.Config, portFlag string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg); err != nil {
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

	stores, cleanup, err := buildStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.Auth.Secret == "" {
		log.Warn().Msg("auth.secret is empty: account tokens and room creation are disabled")
	}
	verifier := identity.NewVerifier(cfg.Auth.Secret)
	service := app.NewSessionService(stores, app.NewHub(64), cfg.ScoringRules())

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           transport.NewRouter(service, verifier),
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", finalPort).Msg("starting quiz service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// buildStores picks backends from config: Postgres for rooms, participants and
// responses when configured, Redis for the quiz cache and session liveness.
func buildStores(ctx context.Context, cfg config.Config) (app.Stores, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = redisClient.Close() })
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)

	stores := app.Stores{
		Rooms:        memory.NewRoomRepository(),
		Participants: memory.NewParticipantRepository(),
		Responses:    memory.NewResponseStore(),
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			cleanup()
			return app.Stores{}, nil, err
		}
		closers = append(closers, pool.Close)
		loader = postgres.NewQuizLoader(pool)

		db := postgres.OpenDB(cfg.Postgres.URL)
		closers = append(closers, func() { _ = db.Close() })
		stores.Rooms = postgres.NewRoomRepository(db)
		stores.Participants = postgres.NewParticipantRepository(db)
		stores.Responses = postgres.NewResponseStore(db)
	} else {
		log.Warn().Msg("postgres not configured: using in-memory stores and sample quizzes")
	}

	if redisClient != nil {
		stores.Quizzes = infraredis.NewQuizRepository(redisClient, loader, quizTTL)
		stores.Sessions = infraredis.NewSessionStore(redisClient, redisTTL)
	} else {
		stores.Quizzes = memory.NewQuizRepository(loader, quizTTL)
		stores.Sessions = memory.NewSessionStore()
	}
	return stores, cleanup, nil
}

// sampleQuizzes provides demo content for running without Postgres.
func sampleQuizzes() map[string]domain.Quiz {
	yes := true
	four := int64(4)
	lo, hi := 99.0, 101.0
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Warm-up",
			Questions: []domain.Question{
				{
					ID: "q1", Position: 0, Kind: domain.KindChoice, Prompt: "Which planet is largest?",
					Mark: 10, TimeSeconds: 20,
					Options: []domain.Option{{ID: "a", Text: "Mars"}, {ID: "b", Text: "Jupiter"}, {ID: "c", Text: "Venus"}},
					Key:     domain.AnswerKey{Choice: "b"},
				},
				{
					ID: "q2", Position: 1, Kind: domain.KindInteger, Prompt: "What is 2 + 2?",
					Mark: 10, TimeSeconds: 15, Key: domain.AnswerKey{Integer: &four},
				},
				{
					ID: "q3", Position: 2, Kind: domain.KindBoolean, Prompt: "Water boils at 100°C at sea level.",
					Mark: 5, TimeSeconds: 10, Key: domain.AnswerKey{Bool: &yes},
				},
				{
					ID: "q4", Position: 3, Kind: domain.KindDecimal, Prompt: "What is 0.1 + 0.2?",
					Mark: 10, TimeSeconds: 20, Key: domain.AnswerKey{Decimal: "0.3"},
				},
				{
					ID: "q5", Position: 4, Kind: domain.KindRange, Prompt: "Boiling point of water in °C (±1)?",
					Mark: 5, TimeSeconds: 20, Key: domain.AnswerKey{Min: &lo, Max: &hi},
				},
				{
					ID: "q6", Position: 5, Kind: domain.KindText, Prompt: "Which language has goroutines?",
					Mark: 10, TimeSeconds: 20, Key: domain.AnswerKey{Text: "Go"},
				},
				{
					ID: "q7", Position: 6, Kind: domain.KindOrdering, Prompt: "Order from smallest to largest.",
					Mark: 15, TimeSeconds: 30,
					Options: []domain.Option{{ID: "kb", Text: "Kilobyte"}, {ID: "b", Text: "Byte"}, {ID: "mb", Text: "Megabyte"}},
					Key:     domain.AnswerKey{Order: []string{"b", "kb", "mb"}},
				},
			},
		},
	}
}
