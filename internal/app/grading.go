package app

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"live-quiz-service/internal/domain"
)

// grade is the outcome of checking one answer against a question's key.
type grade struct {
	correct *bool
	points  decimal.Decimal
}

// gradeAnswer validates the answer's shape for the question type and scores it. Ungraded
// types return a nil correctness and zero points.
func gradeAnswer(q domain.Question, a domain.Answer) (grade, error) {
	switch q.Type {
	case domain.QuestionSingleChoice:
		opt, ok := q.Option(a.OptionID)
		if !ok {
			return grade{}, fmt.Errorf("%w: unknown option %q", domain.ErrInvalidAnswer, a.OptionID)
		}
		return allOrNothing(q, opt.Correct), nil

	case domain.QuestionMultiChoice:
		if len(a.OptionIDs) == 0 {
			return grade{}, fmt.Errorf("%w: no options selected", domain.ErrInvalidAnswer)
		}
		selected := make(map[string]struct{}, len(a.OptionIDs))
		for _, id := range a.OptionIDs {
			if _, ok := q.Option(id); !ok {
				return grade{}, fmt.Errorf("%w: unknown option %q", domain.ErrInvalidAnswer, id)
			}
			selected[id] = struct{}{}
		}
		correct := true
		for _, o := range q.Options {
			_, picked := selected[o.ID]
			if picked != o.Correct {
				correct = false
				break
			}
		}
		return allOrNothing(q, correct), nil

	case domain.QuestionWordCloud, domain.QuestionOpenDiscussion:
		if strings.TrimSpace(a.Text) == "" {
			return grade{}, fmt.Errorf("%w: empty text", domain.ErrInvalidAnswer)
		}
		return grade{points: decimal.Zero}, nil

	case domain.QuestionFillInBlank:
		if len(a.Blanks) != len(q.Blanks) {
			return grade{}, fmt.Errorf("%w: expected %d blanks, got %d", domain.ErrInvalidAnswer, len(q.Blanks), len(a.Blanks))
		}
		if len(a.Blanks) > 0 && !slices.ContainsFunc(a.Blanks, func(b string) bool { return strings.TrimSpace(b) != "" }) {
			return grade{}, fmt.Errorf("%w: every blank is empty", domain.ErrInvalidAnswer)
		}
		return gradeBlanks(q, a.Blanks), nil

	default:
		return grade{}, fmt.Errorf("%w: unsupported question type %q", domain.ErrInvalidAnswer, q.Type)
	}
}

func allOrNothing(q domain.Question, correct bool) grade {
	g := grade{correct: &correct, points: decimal.Zero}
	if correct {
		g.points = decimal.NewFromInt(int64(q.PointValue()))
	}
	return g
}

// gradeBlanks awards points in proportion to the matched blanks, rounded to cents. The
// answer counts as correct only when every blank matches.
func gradeBlanks(q domain.Question, given []string) grade {
	if len(q.Blanks) == 0 {
		correct := true
		return grade{correct: &correct, points: decimal.NewFromInt(int64(q.PointValue()))}
	}

	matched := 0
	for i, blank := range q.Blanks {
		got := normalizeBlank(given[i], q.CaseSensitive, q.WhitespaceSensitive)
		if slices.ContainsFunc(blank.Accepted, func(want string) bool {
			return normalizeBlank(want, q.CaseSensitive, q.WhitespaceSensitive) == got
		}) {
			matched++
		}
	}

	correct := matched == len(q.Blanks)
	points := decimal.NewFromInt(int64(q.PointValue())).
		Mul(decimal.NewFromInt(int64(matched))).
		Div(decimal.NewFromInt(int64(len(q.Blanks)))).
		Round(2)
	return grade{correct: &correct, points: points}
}

func normalizeBlank(s string, caseSensitive, whitespaceSensitive bool) string {
	if !whitespaceSensitive {
		s = strings.Join(strings.Fields(s), " ")
	}
	if !caseSensitive {
		s = strings.ToLower(s)
	}
	return s
}
