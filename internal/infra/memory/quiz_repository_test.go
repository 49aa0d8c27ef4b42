package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"live-quiz-service/internal/domain"
)

func TestQuizRepositoryCaches(t *testing.T) {
	loader := &countingLoader{QuizLoader: NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()})}
	repo := NewQuizRepository(loader, time.Minute)

	for i := 0; i < 3; i++ {
		if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
			t.Fatalf("get quiz: %v", err)
		}
	}
	if n := loader.calls.Load(); n != 1 {
		t.Fatalf("expected loader once, got %d", n)
	}
}

func TestQuizRepositoryReloadsAfterExpiry(t *testing.T) {
	loader := &countingLoader{QuizLoader: NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()})}
	repo := NewQuizRepository(loader, time.Minute)
	now := time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	_, _ = repo.GetQuiz(context.Background(), "quiz-1")
	now = now.Add(2 * time.Minute)
	_, _ = repo.GetQuiz(context.Background(), "quiz-1")
	if n := loader.calls.Load(); n != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", n)
	}

	repo.Invalidate("quiz-1")
	_, _ = repo.GetQuiz(context.Background(), "quiz-1")
	if n := loader.calls.Load(); n != 3 {
		t.Fatalf("expected reload after invalidate, loader calls %d", n)
	}
}

func TestQuizRepositoryCollapsesConcurrentMisses(t *testing.T) {
	release := make(chan struct{})
	loader := &countingLoader{
		QuizLoader: NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()}),
		gate:       release,
	}
	repo := NewQuizRepository(loader, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
				t.Errorf("get quiz: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := loader.calls.Load(); n > 2 {
		t.Fatalf("expected misses to share a load, loader calls %d", n)
	}
}

func TestQuizRepositoryUnknownQuiz(t *testing.T) {
	repo := NewQuizRepository(NewStaticQuizLoader(nil), time.Minute)
	_, err := repo.GetQuiz(context.Background(), "missing")
	if !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}

func TestFileQuizLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quizzes.yaml")
	doc := `quizzes:
  - id: quiz-1
    title: Warm-up
    questions:
      - id: q1
        type: single_choice
        prompt: What is 2 + 2?
        timeLimitSeconds: 20
        options:
          - {id: o1, text: "3"}
          - {id: o2, text: "4", correct: true}
      - id: q2
        type: fill_in_blank
        prompt: The capital of France is ___.
        points: 2
        blanks:
          - accepted: [Paris]
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	quiz, err := NewFileQuizLoader(path).LoadQuiz(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("load quiz: %v", err)
	}
	if len(quiz.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(quiz.Questions))
	}
	if q := quiz.Questions[0]; q.Type != domain.QuestionSingleChoice || q.TimeLimit(time.Minute) != 20*time.Second || !q.Options[1].Correct {
		t.Fatalf("unexpected first question %+v", q)
	}
	if q := quiz.Questions[1]; q.PointValue() != 2 || q.Blanks[0].Accepted[0] != "Paris" {
		t.Fatalf("unexpected second question %+v", q)
	}

	if _, err := NewFileQuizLoader(path).LoadQuiz(context.Background(), "quiz-2"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}

type countingLoader struct {
	QuizLoader
	gate  chan struct{}
	calls atomic.Int32
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.calls.Add(1)
	if l.gate != nil {
		<-l.gate
	}
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID: "quiz-1",
		Questions: []domain.Question{
			{
				ID:     "q1",
				Type:   domain.QuestionSingleChoice,
				Prompt: "What is 2 + 2?",
				Options: []domain.Option{
					{ID: "o1", Text: "3", Correct: false},
					{ID: "o2", Text: "4", Correct: true},
				},
				Points: 1,
			},
		},
	}
}
