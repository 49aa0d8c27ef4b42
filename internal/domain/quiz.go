package domain

import (
	"errors"
	"fmt"
	"time"
)

// QuestionType selects how a question is answered and graded.
type QuestionType string

const (
	QuestionSingleChoice   QuestionType = "single_choice"
	QuestionMultiChoice    QuestionType = "multi_choice"
	QuestionWordCloud      QuestionType = "word_cloud"
	QuestionOpenDiscussion QuestionType = "open_discussion"
	QuestionFillInBlank    QuestionType = "fill_in_blank"
)

// Choice reports whether the question has a fixed option list.
func (t QuestionType) Choice() bool {
	return t == QuestionSingleChoice || t == QuestionMultiChoice
}

// Graded reports whether answers are checked against a key.
func (t QuestionType) Graded() bool {
	return t.Choice() || t == QuestionFillInBlank
}

// Option represents a possible answer for a choice question.
type Option struct {
	ID      string `json:"id" yaml:"id"`
	Text    string `json:"text" yaml:"text"`
	Correct bool   `json:"correct,omitempty" yaml:"correct"`
}

// Blank lists the accepted alternatives for one gap of a fill-in-blank question.
type Blank struct {
	Accepted []string `json:"accepted,omitempty" yaml:"accepted"`
}

// Question is one entry of a quiz snapshot.
type Question struct {
	ID                  string       `json:"id" yaml:"id"`
	Type                QuestionType `json:"type" yaml:"type"`
	Prompt              string       `json:"prompt" yaml:"prompt"`
	Options             []Option     `json:"options,omitempty" yaml:"options"`
	Blanks              []Blank      `json:"blanks,omitempty" yaml:"blanks"`
	CaseSensitive       bool         `json:"caseSensitive,omitempty" yaml:"caseSensitive"`
	WhitespaceSensitive bool         `json:"whitespaceSensitive,omitempty" yaml:"whitespaceSensitive"`
	TimeLimitSeconds    int          `json:"timeLimitSeconds,omitempty" yaml:"timeLimitSeconds"`
	Points              int          `json:"points" yaml:"points"` // defaults to 1 if zero
}

// TimeLimit returns the configured limit or the fallback when none is set.
func (q Question) TimeLimit(fallback time.Duration) time.Duration {
	if q.TimeLimitSeconds <= 0 {
		return fallback
	}
	return time.Duration(q.TimeLimitSeconds) * time.Second
}

// PointValue returns the points awarded for a fully correct answer.
func (q Question) PointValue() int {
	if q.Points <= 0 {
		return 1
	}
	return q.Points
}

// Option looks up an option by id.
func (q Question) Option(id string) (Option, bool) {
	for _, o := range q.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// Quiz is an ordered collection of questions.
type Quiz struct {
	ID        string     `json:"id" yaml:"id"`
	Title     string     `json:"title,omitempty" yaml:"title"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// Question returns the question at index i.
func (q Quiz) Question(i int) (Question, bool) {
	if i < 0 || i >= len(q.Questions) {
		return Question{}, false
	}
	return q.Questions[i], true
}

// Public strips answer keys so the quiz can be handed to students.
func (q Quiz) Public() Quiz {
	out := Quiz{ID: q.ID, Title: q.Title, Questions: make([]Question, len(q.Questions))}
	for i, question := range q.Questions {
		question.Options = make([]Option, len(question.Options))
		for j, o := range q.Questions[i].Options {
			question.Options[j] = Option{ID: o.ID, Text: o.Text}
		}
		question.Blanks = make([]Blank, len(question.Blanks))
		out.Questions[i] = question
	}
	return out
}

// ErrInvalidQuiz is returned for quiz documents that cannot be run.
var ErrInvalidQuiz = errors.New("invalid quiz")

// Validate checks the structure a session relies on: known question types, options for
// choice questions and at least one blank for fill-in-blank.
func (q Quiz) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidQuiz)
	}
	for i, question := range q.Questions {
		switch question.Type {
		case QuestionSingleChoice, QuestionMultiChoice:
			if len(question.Options) == 0 {
				return fmt.Errorf("%w: question %d has no options", ErrInvalidQuiz, i)
			}
			seen := make(map[string]struct{}, len(question.Options))
			for _, o := range question.Options {
				if _, dup := seen[o.ID]; dup || o.ID == "" {
					return fmt.Errorf("%w: question %d option id %q", ErrInvalidQuiz, i, o.ID)
				}
				seen[o.ID] = struct{}{}
			}
		case QuestionFillInBlank:
			if len(question.Blanks) == 0 {
				return fmt.Errorf("%w: question %d has no blanks", ErrInvalidQuiz, i)
			}
		case QuestionWordCloud, QuestionOpenDiscussion:
		default:
			return fmt.Errorf("%w: question %d has unknown type %q", ErrInvalidQuiz, i, question.Type)
		}
	}
	return nil
}
