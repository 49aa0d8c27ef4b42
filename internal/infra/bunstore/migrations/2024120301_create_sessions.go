package migrations

import (
	"context"

	"github.com/uptrace/bun"

	"live-quiz-service/internal/infra/bunstore"
)

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
				if _, err := tx.NewCreateTable().
					Model((*bunstore.SessionModel)(nil)).
					IfNotExists().
					Exec(ctx); err != nil {
					return err
				}

				// A join code belongs to at most one unfinished session.
				if _, err := tx.NewCreateIndex().
					Model((*bunstore.SessionModel)(nil)).
					Index("quiz_sessions_live_join_code_idx").
					Unique().
					Column("join_code").
					Where("status <> 'finished'").
					IfNotExists().
					Exec(ctx); err != nil {
					return err
				}

				if _, err := tx.NewCreateTable().
					Model((*bunstore.ParticipantModel)(nil)).
					ForeignKey(`("session_id") REFERENCES "quiz_sessions" ("id") ON DELETE CASCADE`).
					IfNotExists().
					Exec(ctx); err != nil {
					return err
				}

				_, err := tx.NewCreateTable().
					Model((*bunstore.ResponseModel)(nil)).
					ForeignKey(`("session_id") REFERENCES "quiz_sessions" ("id") ON DELETE CASCADE`).
					IfNotExists().
					Exec(ctx)
				return err
			})
		},
		func(ctx context.Context, db *bun.DB) error {
			for _, model := range []any{
				(*bunstore.ResponseModel)(nil),
				(*bunstore.ParticipantModel)(nil),
				(*bunstore.SessionModel)(nil),
			} {
				if _, err := db.NewDropTable().Model(model).IfExists().Exec(ctx); err != nil {
					return err
				}
			}
			return nil
		},
	)
}
