package bunstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"live-quiz-service/internal/domain"
)

// QuizStore reads and writes quiz documents in the quizzes table. It satisfies the loader
// behind the quiz caches.
type QuizStore struct {
	db  *bun.DB
	now func() time.Time
}

func NewQuizStore(db *bun.DB) *QuizStore {
	return &QuizStore{db: db, now: time.Now}
}

func (s *QuizStore) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	m := new(QuizModel)
	err := s.db.NewSelect().Model(m).Where("q.id = ?", quizID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Quiz{}, fmt.Errorf("quiz %s: %w", quizID, domain.ErrQuizNotFound)
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(m.Data, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	return quiz, nil
}

// Save inserts or replaces quizzes by id.
func (s *QuizStore) Save(ctx context.Context, quizzes ...domain.Quiz) error {
	if len(quizzes) == 0 {
		return nil
	}
	models := make([]QuizModel, len(quizzes))
	for i, quiz := range quizzes {
		if err := quiz.Validate(); err != nil {
			return fmt.Errorf("quiz %s: %w", quiz.ID, err)
		}
		data, err := json.Marshal(quiz)
		if err != nil {
			return fmt.Errorf("marshal quiz %s: %w", quiz.ID, err)
		}
		models[i] = QuizModel{ID: quiz.ID, Data: data, UpdatedAt: s.now().UTC()}
	}
	_, err := s.db.NewInsert().
		Model(&models).
		On("CONFLICT (id) DO UPDATE").
		Set("data = EXCLUDED.data").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save quizzes: %w", err)
	}
	return nil
}
