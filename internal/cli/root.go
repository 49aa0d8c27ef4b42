package cli

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"live-quiz-service/internal/config"
)

var (
	port       int
	configPath string
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envPort, _ := strconv.Atoi(os.Getenv("PORT"))
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:          "quiz-service",
		Short:        "Live classroom quiz sessions over HTTP and WebSocket",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().IntVar(&port, "port", envPort, "port to listen on (overrides server.port)")
	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.AddCommand(NewStartCmd(&configPath, &port))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	cmd.AddCommand(NewSeedCmd(&configPath))
	return cmd
}

func loadConfig(path string) (config.Config, error) {
	c := config.Default()
	if err := config.Load(path, &c); err != nil {
		return c, err
	}
	setupLogger(c.Log.Level, c.Log.Format)
	return c, nil
}

func setupLogger(level, format string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if format == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))

	if lvl > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
}
