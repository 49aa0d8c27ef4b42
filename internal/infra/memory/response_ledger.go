package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"live-quiz-service/internal/domain"
)

type responseKey struct {
	sessionID     string
	questionIndex int
	participantID string
}

// ResponseLedger keeps the latest response per (session, question, participant).
type ResponseLedger struct {
	mu        sync.RWMutex
	responses map[responseKey]domain.Response
}

func NewResponseLedger() *ResponseLedger {
	return &ResponseLedger{responses: make(map[responseKey]domain.Response)}
}

func (l *ResponseLedger) Upsert(_ context.Context, r domain.Response) (domain.Response, error) {
	key := responseKey{r.SessionID, r.QuestionIndex, r.ParticipantID}

	l.mu.Lock()
	defer l.mu.Unlock()
	r.Revision = l.responses[key].Revision + 1
	l.responses[key] = r
	return r, nil
}

func (l *ResponseLedger) Get(_ context.Context, sessionID string, questionIndex int, participantID string) (domain.Response, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.responses[responseKey{sessionID, questionIndex, participantID}]
	if !ok {
		return domain.Response{}, domain.ErrResponseNotFound
	}
	return r, nil
}

func (l *ResponseLedger) ListByQuestion(_ context.Context, sessionID string, questionIndex int) ([]domain.Response, error) {
	return l.list(func(k responseKey) bool {
		return k.sessionID == sessionID && k.questionIndex == questionIndex
	}), nil
}

func (l *ResponseLedger) ListBySession(_ context.Context, sessionID string) ([]domain.Response, error) {
	return l.list(func(k responseKey) bool { return k.sessionID == sessionID }), nil
}

func (l *ResponseLedger) list(match func(responseKey) bool) []domain.Response {
	l.mu.RLock()
	out := make([]domain.Response, 0)
	for k, r := range l.responses {
		if match(k) {
			out = append(out, r)
		}
	}
	l.mu.RUnlock()

	slices.SortFunc(out, func(a, b domain.Response) int {
		if c := cmp.Compare(a.QuestionIndex, b.QuestionIndex); c != 0 {
			return c
		}
		return cmp.Compare(a.ParticipantID, b.ParticipantID)
	})
	return out
}
