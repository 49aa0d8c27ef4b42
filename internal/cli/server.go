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

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	redisstore "live-quiz-service/internal/infra/redis"
	"live-quiz-service/internal/realtime"
	transport "live-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath *string, port *int) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath string, portFlag int) error {
	c, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if portFlag != 0 {
		c.Server.Port = portFlag
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	in, err := connectInfra(ctx, c)
	if err != nil {
		return fmt.Errorf("server: init infra: %w", err)
	}
	defer in.close()

	engine, events, follower, err := buildEngine(ctx, c, in)
	if err != nil {
		return err
	}
	defer events.Close()
	defer engine.Close()

	if n, err := engine.Recover(ctx); err != nil {
		slog.ErrorContext(ctx, "server: recover sessions", "error", err)
	} else if n > 0 {
		slog.InfoContext(ctx, "server: recovered live sessions", "count", n)
	}

	rc := transport.Config{
		Engine:         engine,
		AllowedOrigins: c.Server.AllowedOrigins,
		HealthChecks:   in.checks,
	}
	if follower != nil {
		rc.Follower = follower
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", c.Server.Port),
		Handler:           transport.NewRouter(rc),
		ReadHeaderTimeout: c.Server.ReadHeaderTimeout,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", c.Server.Port), "store", c.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.Server.ShutdownTimeout)
		defer cancel()
		slog.InfoContext(shutdownCtx, "server: shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
		return err
	}
	slog.Info("server: shutdown completed")
	return nil
}

func buildEngine(ctx context.Context, c config.Config, in *infra) (*app.Engine, *realtime.Broadcaster, *redisstore.Notifier, error) {
	quizzes, err := in.quizzes(ctx, c)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("server: quizzes: %w", err)
	}
	sessions, responses := in.stores(c)

	opts := []realtime.Option{realtime.WithBuffer(c.Engine.SubscriberBuffer)}
	var notifier *redisstore.Notifier
	if in.redis != nil {
		notifier = redisstore.NewNotifier(in.redis, c.Redis.Prefix)
		opts = append(opts, realtime.WithMirror(notifier))
	}
	events := realtime.NewBroadcaster(opts...)

	engine := app.NewEngine(app.Config{
		Sessions:         sessions,
		Responses:        responses,
		Quizzes:          quizzes,
		Events:           events,
		DefaultTimeLimit: c.Engine.DefaultTimeLimit,
		FreeTextTopN:     c.Engine.FreeTextTopN,
		JoinCodeAttempts: c.Engine.JoinCodeAttempts,
	})
	return engine, events, notifier, nil
}
