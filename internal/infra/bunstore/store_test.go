package bunstore_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/bunstore"
	"live-quiz-service/internal/infra/bunstore/migrations"
)

var t0 = time.Date(2024, 12, 3, 9, 0, 0, 0, time.UTC)

func newSQLite(t *testing.T) *bun.DB {
	t.Helper()
	db, err := bunstore.Open(bunstore.DriverSQLite, filepath.Join(t.TempDir(), "quiz.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = migrations.Run(context.Background(), db)
	require.NoError(t, err)
	return db
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := bunstore.Open("oracle", "dsn")
	assert.Error(t, err)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	db := newSQLite(t)

	applied, err := migrations.Run(context.Background(), db)
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestSessionStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := bunstore.NewSessionStore(newSQLite(t))

	require.NoError(t, store.Create(ctx, domain.NewSession("s1", "quiz-1", "123456", t0)))
	err := store.Create(ctx, domain.NewSession("s2", "quiz-1", "123456", t0))
	require.ErrorIs(t, err, domain.ErrDuplicateJoinCode)

	found, err := store.FindLiveByCode(ctx, "123456")
	require.NoError(t, err)
	assert.Equal(t, "s1", found.ID)
	assert.Equal(t, -1, found.CurrentQuestionIndex)
	assert.Empty(t, found.Participants)

	for i, p := range []domain.Participant{
		{ID: "u1", DisplayName: "Alice", JoinedAt: t0},
		{ID: "u2", DisplayName: "Bob", JoinedAt: t0.Add(time.Second)},
		{ID: "u1", DisplayName: "Alice again", JoinedAt: t0.Add(2 * time.Second)},
	} {
		_, added, err := store.AddParticipant(ctx, "s1", p)
		require.NoError(t, err)
		assert.Equal(t, i < 2, added, "participant %d", i)
	}

	started, err := store.ApplyTransition(ctx, "s1", func(s *domain.Session) error {
		s.Status = domain.StatusActive
		s.CurrentQuestionIndex = 0
		s.QuestionCount = 3
		s.QuestionStartedAt = &t0
		s.QuestionTimeLimit = 30 * time.Second
		s.StartedAt = &t0
		return nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, started.Version)

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, got.Status)
	assert.Equal(t, 30*time.Second, got.QuestionTimeLimit)
	assert.True(t, got.QuestionStartedAt.Equal(t0))
	require.Len(t, got.Participants, 2)
	assert.Equal(t, "Alice", got.Participants[0].DisplayName)
	assert.Equal(t, "u2", got.Participants[1].ID)

	live, err := store.ListLive(ctx)
	require.NoError(t, err)
	assert.Len(t, live, 1)

	_, err = store.ApplyTransition(ctx, "s1", func(s *domain.Session) error {
		s.Status = domain.StatusFinished
		s.QuestionStartedAt = nil
		s.EndedAt = &t0
		return nil
	})
	require.NoError(t, err)

	_, err = store.FindLiveByCode(ctx, "123456")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	live, err = store.ListLive(ctx)
	require.NoError(t, err)
	assert.Empty(t, live)

	_, _, err = store.AddParticipant(ctx, "s1", domain.Participant{ID: "u3", DisplayName: "Cid", JoinedAt: t0})
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	// The finished session no longer owns its code.
	require.NoError(t, store.Create(ctx, domain.NewSession("s3", "quiz-1", "123456", t0)))
}

func TestSessionStoreMissingAndFailedTransition(t *testing.T) {
	ctx := context.Background()
	store := bunstore.NewSessionStore(newSQLite(t))

	_, err := store.Get(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = store.ApplyTransition(ctx, "nope", func(*domain.Session) error { return nil })
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	require.NoError(t, store.Create(ctx, domain.NewSession("s1", "quiz-1", "111111", t0)))
	_, err = store.ApplyTransition(ctx, "s1", func(s *domain.Session) error {
		s.Status = domain.StatusActive
		return domain.ErrInvalidState
	})
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWaiting, got.Status)
	assert.Zero(t, got.Version)
}

func TestSessionStoreConcurrentJoins(t *testing.T) {
	ctx := context.Background()
	store := bunstore.NewSessionStore(newSQLite(t))
	require.NoError(t, store.Create(ctx, domain.NewSession("s1", "quiz-1", "222222", t0)))

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := store.AddParticipant(ctx, "s1", domain.Participant{ID: id, DisplayName: id, JoinedAt: t0})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, got.Participants, 6)
	assert.EqualValues(t, 6, got.Version)
}

func TestResponseLedger(t *testing.T) {
	ctx := context.Background()
	db := newSQLite(t)
	require.NoError(t, bunstore.NewSessionStore(db).Create(ctx, domain.NewSession("s1", "quiz-1", "333333", t0)))
	ledger := bunstore.NewResponseLedger(db)

	yes, no := true, false
	first, err := ledger.Upsert(ctx, domain.Response{
		SessionID: "s1", QuestionIndex: 0, ParticipantID: "u1",
		Answer: domain.Answer{OptionID: "a"}, IsCorrect: &no, PointsEarned: decimal.Zero,
		SubmittedAtOffset: 3 * time.Second, SubmittedAt: t0,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Revision)

	second, err := ledger.Upsert(ctx, domain.Response{
		SessionID: "s1", QuestionIndex: 0, ParticipantID: "u1",
		Answer: domain.Answer{OptionID: "b"}, IsCorrect: &yes, PointsEarned: decimal.RequireFromString("0.67"),
		SubmittedAtOffset: 5 * time.Second, SubmittedAt: t0.Add(2 * time.Second),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Revision)

	_, err = ledger.Upsert(ctx, domain.Response{
		SessionID: "s1", QuestionIndex: 1, ParticipantID: "u2",
		Answer: domain.Answer{Text: "fast"}, SubmittedAt: t0,
	})
	require.NoError(t, err)
	_, err = ledger.Upsert(ctx, domain.Response{
		SessionID: "s1", QuestionIndex: 0, ParticipantID: "u0",
		Answer: domain.Answer{OptionID: "a"}, SubmittedAt: t0,
	})
	require.NoError(t, err)

	got, err := ledger.Get(ctx, "s1", 0, "u1")
	require.NoError(t, err)
	assert.Equal(t, "b", got.Answer.OptionID)
	require.NotNil(t, got.IsCorrect)
	assert.True(t, *got.IsCorrect)
	assert.True(t, decimal.RequireFromString("0.67").Equal(got.PointsEarned), got.PointsEarned.String())
	assert.Equal(t, 5*time.Second, got.SubmittedAtOffset)
	assert.Equal(t, 2, got.Revision)

	_, err = ledger.Get(ctx, "s1", 0, "ghost")
	assert.ErrorIs(t, err, domain.ErrResponseNotFound)

	byQuestion, err := ledger.ListByQuestion(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, byQuestion, 2)
	assert.Equal(t, "u0", byQuestion[0].ParticipantID)
	assert.Equal(t, "u1", byQuestion[1].ParticipantID)

	bySession, err := ledger.ListBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, bySession, 3)
	assert.Equal(t, 1, bySession[2].QuestionIndex)
	assert.Nil(t, bySession[2].IsCorrect)
}

func TestQuizStore(t *testing.T) {
	ctx := context.Background()
	store := bunstore.NewQuizStore(newSQLite(t))

	quiz := domain.Quiz{ID: "quiz-1", Title: "Warm-up", Questions: []domain.Question{
		{ID: "q1", Type: domain.QuestionSingleChoice, Options: []domain.Option{{ID: "o1", Text: "4", Correct: true}}},
	}}
	require.NoError(t, store.Save(ctx, quiz))

	quiz.Title = "Warm-up v2"
	require.NoError(t, store.Save(ctx, quiz))

	got, err := store.LoadQuiz(ctx, "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, "Warm-up v2", got.Title)
	assert.True(t, got.Questions[0].Options[0].Correct)

	_, err = store.LoadQuiz(ctx, "quiz-2")
	assert.ErrorIs(t, err, domain.ErrQuizNotFound)

	err = store.Save(ctx, domain.Quiz{ID: "bad", Questions: []domain.Question{{ID: "q1", Type: "essay"}}})
	assert.ErrorIs(t, err, domain.ErrInvalidQuiz)
}
