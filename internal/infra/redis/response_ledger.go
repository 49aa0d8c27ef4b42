package redis

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/domain"
)

// upsertScript replaces a participant's response and bumps its revision in one step.
// KEYS: responses hash, revisions hash, answered-questions set.
// ARGV: participant id, response JSON, question index.
var upsertScript = redis.NewScript(`
local rev = redis.call('HINCRBY', KEYS[2], ARGV[1], 1)
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('SADD', KEYS[3], ARGV[3])
return rev
`)

// ResponseLedger stores responses in one hash per (session, question), keyed by participant.
// Keys of a session share a hash tag so the script stays on one cluster slot.
type ResponseLedger struct {
	client redis.UniversalClient
	prefix string
}

func NewResponseLedger(client redis.UniversalClient, prefix string) *ResponseLedger {
	return &ResponseLedger{client: client, prefix: prefix}
}

func (l *ResponseLedger) Upsert(ctx context.Context, r domain.Response) (domain.Response, error) {
	r.Revision = 0
	data, err := json.Marshal(r)
	if err != nil {
		return domain.Response{}, fmt.Errorf("encode response: %w", err)
	}

	keys := []string{
		l.responsesKey(r.SessionID, r.QuestionIndex),
		l.revisionsKey(r.SessionID, r.QuestionIndex),
		l.questionsKey(r.SessionID),
	}
	rev, err := upsertScript.Run(ctx, l.client, keys, r.ParticipantID, data, r.QuestionIndex).Int()
	if err != nil {
		return domain.Response{}, fmt.Errorf("upsert response: %w", err)
	}
	r.Revision = rev
	return r, nil
}

func (l *ResponseLedger) Get(ctx context.Context, sessionID string, questionIndex int, participantID string) (domain.Response, error) {
	raw, err := l.client.HGet(ctx, l.responsesKey(sessionID, questionIndex), participantID).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Response{}, domain.ErrResponseNotFound
	}
	if err != nil {
		return domain.Response{}, fmt.Errorf("read response: %w", err)
	}
	rev, err := l.client.HGet(ctx, l.revisionsKey(sessionID, questionIndex), participantID).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.Response{}, fmt.Errorf("read revision: %w", err)
	}
	r, err := decodeResponse(raw)
	if err != nil {
		return domain.Response{}, err
	}
	r.Revision = rev
	return r, nil
}

func (l *ResponseLedger) ListByQuestion(ctx context.Context, sessionID string, questionIndex int) ([]domain.Response, error) {
	pipe := l.client.Pipeline()
	responses := pipe.HGetAll(ctx, l.responsesKey(sessionID, questionIndex))
	revisions := pipe.HGetAll(ctx, l.revisionsKey(sessionID, questionIndex))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}

	out := make([]domain.Response, 0, len(responses.Val()))
	for participantID, raw := range responses.Val() {
		r, err := decodeResponse([]byte(raw))
		if err != nil {
			return nil, err
		}
		r.Revision, _ = strconv.Atoi(revisions.Val()[participantID])
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b domain.Response) int { return cmp.Compare(a.ParticipantID, b.ParticipantID) })
	return out, nil
}

func (l *ResponseLedger) ListBySession(ctx context.Context, sessionID string) ([]domain.Response, error) {
	members, err := l.client.SMembers(ctx, l.questionsKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list answered questions: %w", err)
	}

	indexes := make([]int, 0, len(members))
	for _, m := range members {
		i, err := strconv.Atoi(m)
		if err != nil {
			return nil, fmt.Errorf("question index %q: %w", m, err)
		}
		indexes = append(indexes, i)
	}
	slices.Sort(indexes)

	var out []domain.Response
	for _, i := range indexes {
		rs, err := l.ListByQuestion(ctx, sessionID, i)
		if err != nil {
			return nil, err
		}
		out = append(out, rs...)
	}
	return out, nil
}

func decodeResponse(raw []byte) (domain.Response, error) {
	var r domain.Response
	if err := json.Unmarshal(raw, &r); err != nil {
		return domain.Response{}, fmt.Errorf("decode response: %w", err)
	}
	return r, nil
}

func (l *ResponseLedger) responsesKey(sessionID string, questionIndex int) string {
	return responsesKey(l.prefix, sessionID, questionIndex)
}

func (l *ResponseLedger) revisionsKey(sessionID string, questionIndex int) string {
	return revisionsKey(l.prefix, sessionID, questionIndex)
}

func (l *ResponseLedger) questionsKey(sessionID string) string {
	return questionsKey(l.prefix, sessionID)
}

// Ledger keys of a session share the {sessionID} hash tag. SessionStore uses them to expire
// a finished session's responses together with the session.

func responsesKey(prefix, sessionID string, questionIndex int) string {
	return fmt.Sprintf("%s:{%s}:responses:%d", prefix, sessionID, questionIndex)
}

func revisionsKey(prefix, sessionID string, questionIndex int) string {
	return fmt.Sprintf("%s:{%s}:revisions:%d", prefix, sessionID, questionIndex)
}

func questionsKey(prefix, sessionID string) string {
	return fmt.Sprintf("%s:{%s}:questions", prefix, sessionID)
}
