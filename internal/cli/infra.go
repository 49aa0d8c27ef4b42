package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/bunstore"
	"live-quiz-service/internal/infra/bunstore/migrations"
	"live-quiz-service/internal/infra/memory"
	pgloader "live-quiz-service/internal/infra/postgres"
	redisstore "live-quiz-service/internal/infra/redis"
	"live-quiz-service/internal/telemetry"
	transport "live-quiz-service/internal/transport/http"
)

const (
	driverMemory = "memory"
	driverRedis  = "redis"
)

// infra holds the external connections the configured drivers need.
type infra struct {
	redis redis.UniversalClient
	pool  *pgxpool.Pool
	db    *bun.DB

	checks  []transport.HealthCheck
	closers []func() error
}

func connectInfra(ctx context.Context, c config.Config) (*infra, error) {
	in := &infra{}

	switch c.Store.Driver {
	case driverMemory, driverRedis, bunstore.DriverPostgres, bunstore.DriverSQLite:
	default:
		return nil, fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	if c.Store.Driver == driverRedis || len(c.Redis.Addrs) > 0 {
		if len(c.Redis.Addrs) == 0 {
			return nil, fmt.Errorf("redis: no addrs configured")
		}
		if err := in.connectRedis(ctx, c); err != nil {
			in.close()
			return nil, fmt.Errorf("redis: %w", err)
		}
	}

	if c.Store.Driver == bunstore.DriverPostgres || c.Store.Driver == bunstore.DriverSQLite {
		if err := in.connectSQL(ctx, c); err != nil {
			in.close()
			return nil, fmt.Errorf("%s: %w", c.Store.Driver, err)
		}
	}

	if c.Postgres.DSN != "" {
		pool, err := pgxpool.Connect(ctx, c.Postgres.DSN)
		if err != nil {
			in.close()
			return nil, fmt.Errorf("postgres pool: %w", err)
		}
		in.pool = pool
		in.closers = append(in.closers, func() error { pool.Close(); return nil })
		in.checks = append(in.checks, transport.HealthCheck{Name: "postgres", Check: pool.Ping})
	}

	return in, nil
}

func (in *infra) connectRedis(ctx context.Context, c config.Config) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    c.Redis.Addrs,
		Password: c.Redis.Pass,
	})
	in.closers = append(in.closers, r.Close)

	if err := telemetry.MonitorRedis(r); err != nil {
		return err
	}
	if err := r.Ping(ctx).Err(); err != nil {
		return err
	}

	in.redis = r
	in.checks = append(in.checks, transport.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
		return r.Ping(ctx).Err()
	}})
	return nil
}

func (in *infra) connectSQL(ctx context.Context, c config.Config) error {
	dsn := c.SQLite.Path
	if c.Store.Driver == bunstore.DriverPostgres {
		dsn = c.Postgres.DSN
		if dsn == "" {
			return fmt.Errorf("postgres dsn not configured")
		}
	}

	db, err := bunstore.Open(c.Store.Driver, dsn)
	if err != nil {
		return err
	}
	in.closers = append(in.closers, db.Close)

	if err := db.PingContext(ctx); err != nil {
		return err
	}
	if _, err := migrations.Run(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	in.db = db
	in.checks = append(in.checks, transport.HealthCheck{Name: "sql", Check: db.PingContext})
	return nil
}

func (in *infra) close() {
	for i := len(in.closers) - 1; i >= 0; i-- {
		if err := in.closers[i](); err != nil {
			slog.Warn("cli: close infra", "error", err)
		}
	}
	in.closers = nil
}

// stores picks session and response persistence for the configured driver.
func (in *infra) stores(c config.Config) (app.SessionStore, app.ResponseLedger) {
	switch c.Store.Driver {
	case driverRedis:
		return redisstore.NewSessionStore(in.redis, c.Redis.Prefix, c.Redis.Retention),
			redisstore.NewResponseLedger(in.redis, c.Redis.Prefix)
	case bunstore.DriverPostgres, bunstore.DriverSQLite:
		return bunstore.NewSessionStore(in.db), bunstore.NewResponseLedger(in.db)
	default:
		return memory.NewSessionStore(), memory.NewResponseLedger()
	}
}

// quizzes builds the quiz provider: a loader for the source of truth behind a Redis or
// in-process cache. SQL stores are seeded from quiz.file when one is configured.
func (in *infra) quizzes(ctx context.Context, c config.Config) (app.QuizProvider, error) {
	var loader memory.QuizLoader
	switch {
	case in.pool != nil:
		loader = pgloader.NewQuizLoader(in.pool)
	case in.db != nil:
		loader = bunstore.NewQuizStore(in.db)
	case c.Quiz.File != "":
		loader = memory.NewFileQuizLoader(c.Quiz.File)
	default:
		loader = memory.NewStaticQuizLoader(sampleQuizzes())
	}

	if in.db != nil && c.Quiz.File != "" {
		n, err := seedQuizzes(ctx, in.db, c.Quiz.File)
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "cli: quizzes seeded", "file", c.Quiz.File, "count", n)
	}

	if in.redis != nil {
		return redisstore.NewQuizRepository(in.redis, loader, c.Redis.Prefix, c.Quiz.TTL), nil
	}
	return memory.NewQuizRepository(loader, c.Quiz.TTL), nil
}

func seedQuizzes(ctx context.Context, db *bun.DB, file string) (int, error) {
	quizzes, err := memory.NewFileQuizLoader(file).LoadAll()
	if err != nil {
		return 0, err
	}
	if err := bunstore.NewQuizStore(db).Save(ctx, quizzes...); err != nil {
		return 0, err
	}
	return len(quizzes), nil
}

// sampleQuizzes is served when no quiz source is configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Warm-up",
			Questions: []domain.Question{
				{
					ID:     "q1",
					Type:   domain.QuestionSingleChoice,
					Prompt: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3"},
						{ID: "o2", Text: "4", Correct: true},
						{ID: "o3", Text: "5"},
					},
				},
				{
					ID:     "q2",
					Type:   domain.QuestionWordCloud,
					Prompt: "One word to describe today's lecture",
				},
				{
					ID:     "q3",
					Type:   domain.QuestionFillInBlank,
					Prompt: "Go channels are created with ___.",
					Blanks: []domain.Blank{{Accepted: []string{"make"}}},
					Points: 2,
				},
			},
		},
	}
}
