package memory

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"live-quiz-service/internal/domain"
)

// FileQuizLoader reads quizzes from a YAML document of the form:
//
//	quizzes:
//	  - id: quiz-1
//	    questions: [...]
//
// The file is read on every load; put a QuizRepository in front of it.
type FileQuizLoader struct {
	path string
}

func NewFileQuizLoader(path string) *FileQuizLoader {
	return &FileQuizLoader{path: path}
}

type quizFile struct {
	Quizzes []domain.Quiz `yaml:"quizzes"`
}

func (l *FileQuizLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	quizzes, err := l.LoadAll()
	if err != nil {
		return domain.Quiz{}, err
	}
	for _, q := range quizzes {
		if q.ID == quizID {
			return q, nil
		}
	}
	return domain.Quiz{}, fmt.Errorf("quiz %s: %w", quizID, domain.ErrQuizNotFound)
}

// LoadAll parses every quiz in the file.
func (l *FileQuizLoader) LoadAll() ([]domain.Quiz, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read quiz file: %w", err)
	}
	var f quizFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse quiz file: %w", err)
	}
	for _, q := range f.Quizzes {
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("quiz file %s: %w", l.path, err)
		}
	}
	return f.Quizzes, nil
}
