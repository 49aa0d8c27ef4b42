package app

import (
	"context"
	"log/slog"

	"live-quiz-service/internal/domain"
	apperrors "live-quiz-service/internal/errors"
	"live-quiz-service/internal/telemetry"
)

// SubmitRequest is one participant's answer to the question at QuestionIndex.
type SubmitRequest struct {
	SessionID     string
	ParticipantID string
	QuestionIndex int
	Answer        domain.Answer
}

// Submit grades and records an answer, replacing any earlier answer by the same participant
// to the same question. Answers to any question other than the active current one are
// rejected as stale and change nothing.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (domain.Response, error) {
	lock := e.locks.get(req.SessionID)
	lock.RLock()
	defer lock.RUnlock()

	s, err := e.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return domain.Response{}, e.rejectSubmission(err)
	}
	if _, ok := s.Participant(req.ParticipantID); !ok {
		return domain.Response{}, e.rejectSubmission(domain.ErrParticipantNotFound)
	}
	if req.QuestionIndex != s.CurrentQuestionIndex || s.Status != domain.StatusActive {
		telemetry.Submissions.WithLabelValues("stale").Inc()
		return domain.Response{}, apperrors.New(apperrors.CodeStaleSubmission, apperrors.WithCause(domain.ErrStaleSubmission),
			apperrors.WithMessagef("question %d is not open for answers", req.QuestionIndex))
	}

	quiz, err := e.quizzes.GetQuiz(ctx, s.QuizID)
	if err != nil {
		return domain.Response{}, e.rejectSubmission(err)
	}
	q, ok := quiz.Question(req.QuestionIndex)
	if !ok {
		return domain.Response{}, e.rejectSubmission(domain.ErrQuestionNotFound)
	}
	g, err := gradeAnswer(q, req.Answer)
	if err != nil {
		return domain.Response{}, e.rejectSubmission(err)
	}

	now := e.clock.Now()
	saved, err := e.responses.Upsert(ctx, domain.Response{
		SessionID:         s.ID,
		QuestionIndex:     req.QuestionIndex,
		ParticipantID:     req.ParticipantID,
		Answer:            req.Answer,
		IsCorrect:         g.correct,
		PointsEarned:      g.points,
		SubmittedAtOffset: s.Elapsed(now),
		SubmittedAt:       now,
	})
	if err != nil {
		slog.ErrorContext(ctx, "engine: record response", "session_id", s.ID, "error", err)
		return domain.Response{}, e.rejectSubmission(err)
	}
	telemetry.Submissions.WithLabelValues("accepted").Inc()

	lock.tally.Lock()
	defer lock.tally.Unlock()
	d, err := e.distribution(ctx, s, quiz, req.QuestionIndex)
	if err != nil {
		slog.ErrorContext(ctx, "engine: recompute tally", "session_id", s.ID, "error", err)
		return saved, nil
	}
	e.publish(domain.TallyChangedEvent{Distribution: d})
	return saved, nil
}

func (e *Engine) rejectSubmission(err error) *apperrors.Error {
	coded := apperrors.Convert(err)
	telemetry.Submissions.WithLabelValues(string(coded.Code)).Inc()
	return coded
}
