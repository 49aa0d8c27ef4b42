package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"live-quiz-service/internal/infra/bunstore/migrations"
)

// NewSeedCmd loads quizzes from a YAML file into the SQL quizzes table.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert quizzes from a YAML file into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath, file)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "quiz YAML file (defaults to quiz.file)")
	return cmd
}

func runSeed(ctx context.Context, configPath, file string) error {
	c, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if file == "" {
		file = c.Quiz.File
	}

	db, err := openSQL(c)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := migrations.Run(ctx, db); err != nil {
		return err
	}
	n, err := seedQuizzes(ctx, db, file)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "quizzes seeded", "file", file, "count", n)
	return nil
}
