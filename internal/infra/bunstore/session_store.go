package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/uptrace/bun"

	"live-quiz-service/internal/domain"
)

const maxTxAttempts = 16

var errVersionConflict = errors.New("session version changed")

// SessionStore keeps sessions in quiz_sessions with their participants in
// session_participants. The partial unique index on join_code (status <> 'finished') makes
// a code reusable once its session ends. Every write checks the version it read, so
// concurrent writers on other instances retry instead of overwriting each other.
type SessionStore struct {
	db *bun.DB
}

func NewSessionStore(db *bun.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Create(ctx context.Context, session *domain.Session) error {
	m := toSessionModel(session)
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(m).Exec(ctx); err != nil {
			if isUniqueViolation(err) && strings.Contains(err.Error(), "join_code") {
				return domain.ErrDuplicateJoinCode
			}
			return fmt.Errorf("insert session: %w", err)
		}
		if len(m.Participants) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&m.Participants).Exec(ctx); err != nil {
			return fmt.Errorf("insert participants: %w", err)
		}
		return nil
	})
}

func (s *SessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	m, err := s.load(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return m.toDomain(), nil
}

func (s *SessionStore) FindLiveByCode(ctx context.Context, code string) (*domain.Session, error) {
	m := new(SessionModel)
	err := s.db.NewSelect().
		Model(m).
		Relation("Participants", orderByPosition).
		Where("qs.join_code = ?", code).
		Where("qs.status <> ?", string(domain.StatusFinished)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, readErr(err)
	}
	return m.toDomain(), nil
}

func (s *SessionStore) AddParticipant(ctx context.Context, id string, p domain.Participant) (*domain.Session, bool, error) {
	var (
		result *domain.Session
		added  bool
	)
	err := s.retry(ctx, id, func(ctx context.Context, tx bun.Tx, current *SessionModel) error {
		session := current.toDomain()
		if _, exists := session.Participant(p.ID); exists {
			result, added = session, false
			return nil
		}
		if session.Status == domain.StatusFinished {
			return fmt.Errorf("join finished session: %w", domain.ErrInvalidState)
		}

		if err := s.bump(ctx, tx, current); err != nil {
			return err
		}
		row := &ParticipantModel{
			SessionID:     id,
			ParticipantID: p.ID,
			DisplayName:   p.DisplayName,
			JoinedAt:      micro(p.JoinedAt),
			Position:      len(current.Participants),
		}
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return errVersionConflict
			}
			return fmt.Errorf("insert participant: %w", err)
		}

		p.JoinedAt = row.JoinedAt
		session.Participants = append(session.Participants, p)
		session.Version = current.Version + 1
		result, added = session, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, added, nil
}

func (s *SessionStore) ApplyTransition(ctx context.Context, id string, mutate func(*domain.Session) error) (*domain.Session, error) {
	var result *domain.Session
	err := s.retry(ctx, id, func(ctx context.Context, tx bun.Tx, current *SessionModel) error {
		next := current.toDomain()
		if err := mutate(next); err != nil {
			return err
		}
		next.Version = current.Version + 1
		written := toSessionModel(next)

		res, err := tx.NewUpdate().
			Model(written).
			Column("status", "current_question_index", "question_count", "question_started_at",
				"question_time_limit_ms", "question_elapsed_ms", "paused_remaining_ms",
				"started_at", "ended_at", "version").
			WherePK().
			Where("qs.version = ?", current.Version).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		if err := expectOneRow(res); err != nil {
			return err
		}
		result = written.toDomain()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SessionStore) ListLive(ctx context.Context) ([]*domain.Session, error) {
	var models []*SessionModel
	err := s.db.NewSelect().
		Model(&models).
		Relation("Participants", orderByPosition).
		Where("qs.status <> ?", string(domain.StatusFinished)).
		Order("qs.created_at").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list live sessions: %w", err)
	}
	live := make([]*domain.Session, len(models))
	for i, m := range models {
		live[i] = m.toDomain()
	}
	return live, nil
}

// retry runs fn against the latest row in a transaction until it commits without losing a
// version race.
func (s *SessionStore) retry(ctx context.Context, id string, fn func(context.Context, bun.Tx, *SessionModel) error) error {
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			current, err := s.load(ctx, tx, id)
			if err != nil {
				return err
			}
			return fn(ctx, tx, current)
		})
		if errors.Is(err, errVersionConflict) {
			continue
		}
		return err
	}
	return fmt.Errorf("session %s: %w", id, domain.ErrConflict)
}

// bump advances the version of current, failing when another writer got there first.
func (s *SessionStore) bump(ctx context.Context, tx bun.Tx, current *SessionModel) error {
	res, err := tx.NewUpdate().
		Model((*SessionModel)(nil)).
		Set("version = ?", current.Version+1).
		Where("qs.id = ?", current.ID).
		Where("qs.version = ?", current.Version).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update session version: %w", err)
	}
	return expectOneRow(res)
}

func (s *SessionStore) load(ctx context.Context, db bun.IDB, id string) (*SessionModel, error) {
	m := new(SessionModel)
	err := db.NewSelect().
		Model(m).
		Relation("Participants", orderByPosition).
		Where("qs.id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, readErr(err)
	}
	return m, nil
}

func orderByPosition(q *bun.SelectQuery) *bun.SelectQuery {
	return q.Order("sp.position")
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errVersionConflict
	}
	return nil
}

func readErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrSessionNotFound
	}
	return fmt.Errorf("read session: %w", err)
}
