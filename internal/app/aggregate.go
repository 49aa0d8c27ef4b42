package app

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"live-quiz-service/internal/domain"
	apperrors "live-quiz-service/internal/errors"
)

const (
	// blankSeparator joins the blanks of a fill-in-blank answer into one tally label.
	blankSeparator = " | "
	// emptyLabel collects free-text answers that normalize to nothing.
	emptyLabel = "(blank)"
)

// Distribution tallies the answers to one question of a session.
func (e *Engine) Distribution(ctx context.Context, id string, questionIndex int) (domain.Distribution, error) {
	s, err := e.sessions.Get(ctx, id)
	if err != nil {
		return domain.Distribution{}, apperrors.Convert(err)
	}
	quiz, err := e.quizzes.GetQuiz(ctx, s.QuizID)
	if err != nil {
		return domain.Distribution{}, apperrors.Convert(err)
	}
	return e.distribution(ctx, s, quiz, questionIndex)
}

func (e *Engine) distribution(ctx context.Context, s *domain.Session, quiz domain.Quiz, questionIndex int) (domain.Distribution, error) {
	q, ok := quiz.Question(questionIndex)
	if !ok {
		return domain.Distribution{}, apperrors.Convert(domain.ErrQuestionNotFound)
	}
	responses, err := e.responses.ListByQuestion(ctx, s.ID, questionIndex)
	if err != nil {
		return domain.Distribution{}, apperrors.Internal(err)
	}
	return Tally(s.ID, questionIndex, q, responses, e.freeTextTopN), nil
}

// Tally builds the answer distribution of a question. Choice questions count votes per
// option in quiz order, zero-vote options included. Free text is normalized and capped at
// topN labels. Total always counts respondents, and free-text counts sum to it.
func Tally(sessionID string, questionIndex int, q domain.Question, responses []domain.Response, topN int) domain.Distribution {
	d := domain.Distribution{
		SessionID:     sessionID,
		QuestionIndex: questionIndex,
		Type:          q.Type,
		Labels:        []string{},
		Counts:        map[string]int{},
		Total:         len(responses),
	}

	if q.Type.Choice() {
		for _, o := range q.Options {
			d.Labels = append(d.Labels, o.ID)
			d.Counts[o.ID] = 0
		}
		for _, r := range responses {
			picked := chosen(q.Type, r.Answer)
			slices.Sort(picked)
			for _, id := range slices.Compact(picked) {
				if _, ok := d.Counts[id]; ok {
					d.Counts[id]++
				}
			}
		}
		d.Distinct = len(d.Labels)
		return d
	}

	counts := map[string]int{}
	for _, r := range responses {
		label := freeTextLabel(q.Type, r.Answer)
		if label == "" {
			label = emptyLabel
		}
		counts[label]++
	}

	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	slices.SortFunc(labels, func(a, b string) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})

	d.Distinct = len(labels)
	if topN > 0 && len(labels) > topN {
		labels = labels[:topN]
		d.Truncated = true
	}
	d.Labels = labels
	for _, label := range labels {
		d.Counts[label] = counts[label]
	}
	return d
}

func chosen(t domain.QuestionType, a domain.Answer) []string {
	if t == domain.QuestionSingleChoice {
		return []string{a.OptionID}
	}
	return slices.Clone(a.OptionIDs)
}

func freeTextLabel(t domain.QuestionType, a domain.Answer) string {
	if t == domain.QuestionFillInBlank {
		parts := make([]string, len(a.Blanks))
		for i, b := range a.Blanks {
			parts[i] = normalizeText(b)
		}
		return strings.Join(parts, blankSeparator)
	}
	return normalizeText(a.Text)
}

func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Leaderboard ranks every participant of a session by total points.
func (e *Engine) Leaderboard(ctx context.Context, id string) (domain.Leaderboard, error) {
	s, err := e.sessions.Get(ctx, id)
	if err != nil {
		return domain.Leaderboard{}, apperrors.Convert(err)
	}
	responses, err := e.responses.ListBySession(ctx, id)
	if err != nil {
		return domain.Leaderboard{}, apperrors.Internal(err)
	}
	lb := Rank(s, responses)
	lb.UpdatedAt = e.clock.Now()
	return lb, nil
}

// Rank totals points and answered questions per participant. Ties on points go to the
// participant with more answers, then by display name.
func Rank(s *domain.Session, responses []domain.Response) domain.Leaderboard {
	entries := make(map[string]*domain.LeaderboardEntry, len(s.Participants))
	for _, p := range s.Participants {
		entries[p.ID] = &domain.LeaderboardEntry{
			ParticipantID: p.ID,
			DisplayName:   p.DisplayName,
			Points:        decimal.Zero,
		}
	}
	for _, r := range responses {
		entry, ok := entries[r.ParticipantID]
		if !ok {
			continue
		}
		entry.Points = entry.Points.Add(r.PointsEarned)
		entry.Answered++
	}

	lb := domain.Leaderboard{SessionID: s.ID, Entries: make([]domain.LeaderboardEntry, 0, len(entries))}
	for _, entry := range entries {
		lb.Entries = append(lb.Entries, *entry)
	}
	slices.SortFunc(lb.Entries, func(a, b domain.LeaderboardEntry) int {
		if c := b.Points.Cmp(a.Points); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Answered, a.Answered); c != 0 {
			return c
		}
		if c := cmp.Compare(a.DisplayName, b.DisplayName); c != 0 {
			return c
		}
		return cmp.Compare(a.ParticipantID, b.ParticipantID)
	})
	return lb
}
