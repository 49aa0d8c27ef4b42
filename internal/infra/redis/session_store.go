package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/domain"
)

const maxTxAttempts = 16

// SessionStore keeps sessions in Redis so they survive restarts and can be shared by several
// instances. Layout:
//
//	{prefix}:session:{id}  JSON session
//	{prefix}:code:{code}   id of the live session owning the join code
//	{prefix}:live          set of live session ids
//
// Writes use WATCH/MULTI so concurrent writers never interleave a read-modify-write. With a
// retention, a finished session and its ledger keys expire together.
type SessionStore struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewSessionStore builds a store. Finished sessions expire after retention (0 keeps them).
func NewSessionStore(client redis.UniversalClient, prefix string, retention time.Duration) *SessionStore {
	return &SessionStore{client: client, prefix: prefix, retention: retention}
}

func (s *SessionStore) Create(ctx context.Context, session *domain.Session) error {
	claimed, err := s.client.SetNX(ctx, s.codeKey(session.JoinCode), session.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("claim join code: %w", err)
	}
	if !claimed {
		return domain.ErrDuplicateJoinCode
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.sessionKey(session.ID), data, 0)
		pipe.SAdd(ctx, s.liveKey(), session.ID)
		return nil
	})
	if err != nil {
		_ = s.client.Del(ctx, s.codeKey(session.JoinCode)).Err()
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	raw, err := s.client.Get(ctx, s.sessionKey(id)).Bytes()
	if err != nil {
		return nil, s.readErr(err)
	}
	return decodeSession(raw)
}

func (s *SessionStore) FindLiveByCode(ctx context.Context, code string) (*domain.Session, error) {
	id, err := s.client.Get(ctx, s.codeKey(code)).Result()
	if err != nil {
		return nil, s.readErr(err)
	}
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !session.Status.Live() {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *SessionStore) AddParticipant(ctx context.Context, id string, p domain.Participant) (*domain.Session, bool, error) {
	return s.transact(ctx, id, func(session *domain.Session) (bool, error) {
		if _, exists := session.Participant(p.ID); exists {
			return false, nil
		}
		if session.Status == domain.StatusFinished {
			return false, fmt.Errorf("join finished session: %w", domain.ErrInvalidState)
		}
		session.Participants = append(session.Participants, p)
		return true, nil
	})
}

func (s *SessionStore) ApplyTransition(ctx context.Context, id string, mutate func(*domain.Session) error) (*domain.Session, error) {
	session, _, err := s.transact(ctx, id, func(session *domain.Session) (bool, error) {
		return true, mutate(session)
	})
	if err != nil {
		return nil, err
	}
	if session.Status == domain.StatusFinished {
		s.expireResponses(ctx, session)
	}
	return session, nil
}

// expireResponses puts the session's retention on its ledger keys. The keys live on another
// cluster slot than the session, so this runs after the transaction. A failure only leaves
// the responses around longer.
func (s *SessionStore) expireResponses(ctx context.Context, session *domain.Session) {
	if s.retention <= 0 {
		return
	}
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Expire(ctx, questionsKey(s.prefix, session.ID), s.retention)
		for i := 0; i < session.QuestionCount; i++ {
			pipe.Expire(ctx, responsesKey(s.prefix, session.ID, i), s.retention)
			pipe.Expire(ctx, revisionsKey(s.prefix, session.ID, i), s.retention)
		}
		return nil
	})
	if err != nil {
		slog.WarnContext(ctx, "session store: expire responses", "session_id", session.ID, "error", err)
	}
}

func (s *SessionStore) ListLive(ctx context.Context) ([]*domain.Session, error) {
	ids, err := s.client.SMembers(ctx, s.liveKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list live sessions: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.sessionKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load live sessions: %w", err)
	}

	live := make([]*domain.Session, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		session, err := decodeSession([]byte(raw))
		if err != nil {
			return nil, err
		}
		if session.Status.Live() {
			live = append(live, session)
		}
	}
	return live, nil
}

// transact runs mutate on the latest stored session inside an optimistic transaction and
// retries when another writer touched the key first. Nothing is written when mutate fails
// or reports no change.
func (s *SessionStore) transact(ctx context.Context, id string, mutate func(*domain.Session) (bool, error)) (*domain.Session, bool, error) {
	key := s.sessionKey(id)

	var (
		result  *domain.Session
		changed bool
	)
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			return s.readErr(err)
		}
		current, err := decodeSession(raw)
		if err != nil {
			return err
		}

		next := current.Clone()
		changed, err = mutate(next)
		if err != nil {
			return err
		}
		if !changed {
			result = current
			return nil
		}

		next.Version = current.Version + 1
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next.Status.Live() {
				pipe.Set(ctx, key, data, 0)
				return nil
			}
			pipe.Set(ctx, key, data, s.retention)
			pipe.SRem(ctx, s.liveKey(), id)
			if current.Status.Live() {
				pipe.Del(ctx, s.codeKey(next.JoinCode))
			}
			return nil
		})
		result = next
		return err
	}

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return result, changed, nil
	}
	return nil, false, fmt.Errorf("session %s: %w", id, domain.ErrConflict)
}

func (s *SessionStore) readErr(err error) error {
	if errors.Is(err, redis.Nil) {
		return domain.ErrSessionNotFound
	}
	return fmt.Errorf("read session: %w", err)
}

func decodeSession(raw []byte) (*domain.Session, error) {
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if session.Participants == nil {
		session.Participants = []domain.Participant{}
	}
	return &session, nil
}

func (s *SessionStore) sessionKey(id string) string {
	return s.prefix + ":session:" + id
}

func (s *SessionStore) codeKey(code string) string {
	return s.prefix + ":code:" + code
}

func (s *SessionStore) liveKey() string {
	return s.prefix + ":live"
}
