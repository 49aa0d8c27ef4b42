package migrations

import (
	"context"

	"github.com/uptrace/bun"

	"live-quiz-service/internal/infra/bunstore"
)

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.NewCreateTable().
				Model((*bunstore.QuizModel)(nil)).
				IfNotExists().
				Exec(ctx)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.NewDropTable().
				Model((*bunstore.QuizModel)(nil)).
				IfExists().
				Exec(ctx)
			return err
		},
	)
}
