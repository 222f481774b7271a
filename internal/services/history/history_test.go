package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/zdravscan/internal/lib/sl"
	"github.com/magabrotheeeer/zdravscan/internal/models"
	"github.com/magabrotheeeer/zdravscan/internal/storage/memory"
)

// seed создаёт пользователя и n записей истории через завершённые задачи.
func seed(t *testing.T, store *memory.Storage, telegramID int64, n int) int64 {
	t.Helper()
	ctx := context.Background()
	u, err := store.UpsertUser(ctx, models.Profile{TelegramID: telegramID})
	require.NoError(t, err)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range n {
		id := uuid.NewString()
		require.NoError(t, store.CreateJob(ctx, models.AnalysisJob{ID: id, UserID: u.ID, State: models.JobSubmitted, CreatedAt: base}))
		require.NoError(t, store.TransitionJob(ctx, id, models.JobSubmitted, models.JobProcessing))
		at := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.CompleteJob(ctx, id, models.AnalysisResult{Label: "x", Confidence: 0.9}, at,
			&models.HistoryEntry{UserID: u.ID, QueryText: "x", JobID: &id, CreatedAt: at}))
	}
	return u.ID
}

func TestList(t *testing.T) {
	store := memory.New()
	userID := seed(t, store, 1, 25)
	seed(t, store, 2, 3)
	s := New(store, sl.Discard())

	page, err := s.List(context.Background(), userID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 25, page.Total)
	assert.Len(t, page.Entries, DefaultPageSize)
	assert.True(t, page.Entries[0].CreatedAt.After(page.Entries[1].CreatedAt))

	page, err = s.List(context.Background(), userID, 20, 20)
	require.NoError(t, err)
	assert.Len(t, page.Entries, 5)
}

func TestDeleteAndClear(t *testing.T) {
	store := memory.New()
	owner := seed(t, store, 1, 3)
	other := seed(t, store, 2, 1)
	s := New(store, sl.Discard())
	ctx := context.Background()

	page, err := s.List(ctx, owner, 10, 0)
	require.NoError(t, err)
	target := page.Entries[0].ID

	assert.ErrorIs(t, s.Delete(ctx, target, other), ErrEntryNotFound)
	require.NoError(t, s.Delete(ctx, target, owner))
	assert.ErrorIs(t, s.Delete(ctx, target, owner), ErrEntryNotFound)

	n, err := s.Clear(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	page, err = s.List(ctx, other, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

type RepoMock struct {
	mock.Mock
}

func (m *RepoMock) ListHistory(ctx context.Context, userID int64, limit, offset int) ([]models.HistoryEntry, int, error) {
	args := m.Called(ctx, userID, limit, offset)
	entries, _ := args.Get(0).([]models.HistoryEntry)
	return entries, args.Int(1), args.Error(2)
}

func (m *RepoMock) DeleteHistoryEntry(ctx context.Context, id, userID int64) error {
	return m.Called(ctx, id, userID).Error(0)
}

func (m *RepoMock) ClearHistory(ctx context.Context, userID int64) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func TestService_RepoErrors(t *testing.T) {
	dbErr := errors.New("db down")
	repo := new(RepoMock)
	repo.On("ListHistory", mock.Anything, int64(1), MaxPageSize, 0).Return(nil, 0, dbErr).Once()
	repo.On("DeleteHistoryEntry", mock.Anything, int64(5), int64(1)).Return(dbErr).Once()
	repo.On("ClearHistory", mock.Anything, int64(1)).Return(0, dbErr).Once()
	s := New(repo, sl.Discard())
	ctx := context.Background()

	_, err := s.List(ctx, 1, 1000, -1)
	assert.ErrorIs(t, err, dbErr)

	err = s.Delete(ctx, 5, 1)
	assert.ErrorIs(t, err, dbErr)
	assert.NotErrorIs(t, err, ErrEntryNotFound)

	_, err = s.Clear(ctx, 1)
	assert.ErrorIs(t, err, dbErr)
	repo.AssertExpectations(t)
}
