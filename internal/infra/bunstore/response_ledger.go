package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"live-quiz-service/internal/domain"
)

// ResponseLedger keeps the latest response per (session, question, participant).
type ResponseLedger struct {
	db *bun.DB
}

func NewResponseLedger(db *bun.DB) *ResponseLedger {
	return &ResponseLedger{db: db}
}

// Upsert replaces the participant's response and bumps its revision.
func (l *ResponseLedger) Upsert(ctx context.Context, r domain.Response) (domain.Response, error) {
	m := toResponseModel(r)
	err := l.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var previous int
		err := tx.NewSelect().
			Model((*ResponseModel)(nil)).
			Column("revision").
			Where("session_id = ?", r.SessionID).
			Where("question_index = ?", r.QuestionIndex).
			Where("participant_id = ?", r.ParticipantID).
			Scan(ctx, &previous)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		m.Revision = previous + 1

		_, err = tx.NewInsert().
			Model(m).
			On("CONFLICT (session_id, question_index, participant_id) DO UPDATE").
			Set("answer = EXCLUDED.answer").
			Set("is_correct = EXCLUDED.is_correct").
			Set("points_earned = EXCLUDED.points_earned").
			Set("submitted_at_offset_ms = EXCLUDED.submitted_at_offset_ms").
			Set("submitted_at = EXCLUDED.submitted_at").
			Set("revision = EXCLUDED.revision").
			Exec(ctx)
		return err
	})
	if err != nil {
		return domain.Response{}, fmt.Errorf("upsert response: %w", err)
	}
	return m.toDomain(), nil
}

func (l *ResponseLedger) Get(ctx context.Context, sessionID string, questionIndex int, participantID string) (domain.Response, error) {
	m := new(ResponseModel)
	err := l.db.NewSelect().
		Model(m).
		Where("session_id = ?", sessionID).
		Where("question_index = ?", questionIndex).
		Where("participant_id = ?", participantID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Response{}, domain.ErrResponseNotFound
	}
	if err != nil {
		return domain.Response{}, fmt.Errorf("read response: %w", err)
	}
	return m.toDomain(), nil
}

func (l *ResponseLedger) ListByQuestion(ctx context.Context, sessionID string, questionIndex int) ([]domain.Response, error) {
	return l.list(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("session_id = ?", sessionID).Where("question_index = ?", questionIndex)
	})
}

func (l *ResponseLedger) ListBySession(ctx context.Context, sessionID string) ([]domain.Response, error) {
	return l.list(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("session_id = ?", sessionID)
	})
}

func (l *ResponseLedger) list(ctx context.Context, filter func(*bun.SelectQuery) *bun.SelectQuery) ([]domain.Response, error) {
	var models []ResponseModel
	err := l.db.NewSelect().
		Model(&models).
		Apply(filter).
		Order("question_index", "participant_id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	out := make([]domain.Response, len(models))
	for i := range models {
		out[i] = models[i].toDomain()
	}
	return out, nil
}
