package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/zdravscan/internal/models"
	"github.com/magabrotheeeer/zdravscan/internal/storage"
)

func activeSub(userID int64, tier models.Tier, start time.Time) models.Subscription {
	return models.Subscription{
		UserID:    userID,
		Tier:      tier,
		Status:    models.StatusActive,
		StartDate: start,
		EndDate:   start.Add(tier.Duration()),
		IsTrial:   tier.IsTrial(),
		AutoRenew: !tier.IsTrial(),
	}
}

func TestUpsertUser(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, err := s.UpsertUser(ctx, models.Profile{TelegramID: 10, FirstName: "Ivan"})
	require.NoError(t, err)
	assert.Equal(t, "en", first.LanguageCode)

	again, err := s.UpsertUser(ctx, models.Profile{TelegramID: 10, FirstName: "Other"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "Ivan", again.FirstName)

	_, err = s.GetUser(ctx, 999)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestConcurrentUpsert(t *testing.T) {
	s := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make(chan int64, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := s.UpsertUser(ctx, models.Profile{TelegramID: 77})
			if err == nil {
				ids <- u.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[int64]struct{}{}
	for id := range ids {
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 1)
}

func TestCreateSubscription_Guards(t *testing.T) {
	s := New()
	ctx := context.Background()
	u, err := s.UpsertUser(ctx, models.Profile{TelegramID: 1})
	require.NoError(t, err)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err = s.CreateSubscription(ctx, activeSub(u.ID, models.TierTrial, now), now)
	require.NoError(t, err)

	_, err = s.CreateSubscription(ctx, activeSub(u.ID, models.TierAnnual, now), now)
	assert.ErrorIs(t, err, storage.ErrActiveSubscription)

	after := now.Add(10 * 24 * time.Hour)
	_, err = s.CreateSubscription(ctx, activeSub(u.ID, models.TierTrial, after), after)
	assert.ErrorIs(t, err, storage.ErrTrialUsed)

	_, err = s.CreateSubscription(ctx, activeSub(u.ID, models.TierExpress, after), after)
	require.NoError(t, err)

	latest, err := s.LatestSubscription(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TierExpress, latest.Tier)

	_, err = s.CreateSubscription(ctx, activeSub(555, models.TierExpress, now), now)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateSubscription_ConcurrentAdmitsOne(t *testing.T) {
	s := New()
	ctx := context.Background()
	u, err := s.UpsertUser(ctx, models.Profile{TelegramID: 2})
	require.NoError(t, err)
	now := time.Now()

	const n = 32
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.CreateSubscription(ctx, activeSub(u.ID, models.TierQuarter, now), now)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, errors.Is(err, storage.ErrActiveSubscription))
	}
	assert.Equal(t, 1, ok)
}

func TestCancelAutoRenew(t *testing.T) {
	s := New()
	ctx := context.Background()
	u, _ := s.UpsertUser(ctx, models.Profile{TelegramID: 3})
	other, _ := s.UpsertUser(ctx, models.Profile{TelegramID: 4})
	now := time.Now()

	sub, err := s.CreateSubscription(ctx, activeSub(u.ID, models.TierAnnual, now), now)
	require.NoError(t, err)

	assert.ErrorIs(t, s.CancelAutoRenew(ctx, sub.ID, other.ID), storage.ErrNotFound)
	require.NoError(t, s.CancelAutoRenew(ctx, sub.ID, u.ID))

	latest, err := s.LatestSubscription(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, latest.AutoRenew)
	assert.Equal(t, models.StatusActive, latest.Status)
}

// seedSubscription добавляет подписку в обход проверок CreateSubscription.
func seedSubscription(s *Storage, sub models.Subscription) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	sub.ID = s.nextSubID
	s.subs = append(s.subs, &sub)
	return sub.ID
}

func TestLatestSubscription_LatestEndDateWins(t *testing.T) {
	s := New()
	ctx := context.Background()
	u, _ := s.UpsertUser(ctx, models.Profile{TelegramID: 8})
	now := time.Now()
	active := func(tier models.Tier, end time.Time) models.Subscription {
		return models.Subscription{UserID: u.ID, Tier: tier, Status: models.StatusActive, StartDate: now, EndDate: end}
	}

	seedSubscription(s, active(models.TierAnnual, now.Add(30*24*time.Hour)))
	longer := seedSubscription(s, active(models.TierExpress, now.Add(90*24*time.Hour)))
	seedSubscription(s, models.Subscription{UserID: u.ID, Tier: models.TierAnnual, Status: models.StatusCancelled, StartDate: now, EndDate: now.Add(365 * 24 * time.Hour)})

	latest, err := s.LatestSubscription(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, longer, latest.ID)

	sameEnd := seedSubscription(s, active(models.TierQuarter, now.Add(90*24*time.Hour)))
	latest, err = s.LatestSubscription(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, sameEnd, latest.ID)
}

func TestJobTransitions(t *testing.T) {
	s := New()
	ctx := context.Background()
	u, _ := s.UpsertUser(ctx, models.Profile{TelegramID: 5})

	job := models.AnalysisJob{ID: "job-1", UserID: u.ID, InputRef: "ref", State: models.JobSubmitted, CreatedAt: time.Now()}
	require.NoError(t, s.CreateJob(ctx, job))
	assert.Error(t, s.CreateJob(ctx, job))

	assert.ErrorIs(t, s.FailJob(ctx, "missing", time.Now()), storage.ErrStateConflict)
	require.NoError(t, s.TransitionJob(ctx, job.ID, models.JobSubmitted, models.JobProcessing))

	res := models.AnalysisResult{Label: "Экзема", Confidence: 0.7, Recommendations: []string{"r1"}}
	entry := &models.HistoryEntry{UserID: u.ID, QueryText: "Экзема", JobID: &job.ID, CreatedAt: time.Now()}
	require.NoError(t, s.CompleteJob(ctx, job.ID, res, time.Now(), entry))

	// конечное состояние записывается один раз
	assert.ErrorIs(t, s.CompleteJob(ctx, job.ID, res, time.Now(), nil), storage.ErrStateConflict)
	assert.ErrorIs(t, s.FailJob(ctx, job.ID, time.Now()), storage.ErrStateConflict)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, got.State)
	assert.Equal(t, res, *got.Result)

	got.Result.Recommendations[0] = "mutated"
	again, _ := s.GetJob(ctx, job.ID)
	assert.Equal(t, "r1", again.Result.Recommendations[0])

	history, total, err := s.ListHistory(ctx, u.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Экзема", history[0].QueryText)
}

func TestFailJob_FromSubmitted(t *testing.T) {
	s := New()
	ctx := context.Background()
	u, _ := s.UpsertUser(ctx, models.Profile{TelegramID: 7})
	job := models.AnalysisJob{ID: "job-3", UserID: u.ID, State: models.JobSubmitted, CreatedAt: time.Now()}
	require.NoError(t, s.CreateJob(ctx, job))

	require.NoError(t, s.FailJob(ctx, job.ID, time.Now()))
	assert.ErrorIs(t, s.TransitionJob(ctx, job.ID, models.JobSubmitted, models.JobProcessing), storage.ErrStateConflict)
	assert.ErrorIs(t, s.FailJob(ctx, job.ID, time.Now()), storage.ErrStateConflict)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.State)
	assert.NotNil(t, got.CompletedAt)
}

func TestCompleteJob_HistoryFailureLeavesJobUntouched(t *testing.T) {
	s := New()
	ctx := context.Background()
	u, _ := s.UpsertUser(ctx, models.Profile{TelegramID: 6})
	job := models.AnalysisJob{ID: "job-2", UserID: u.ID, State: models.JobSubmitted, CreatedAt: time.Now()}
	require.NoError(t, s.CreateJob(ctx, job))
	require.NoError(t, s.TransitionJob(ctx, job.ID, models.JobSubmitted, models.JobProcessing))

	bad := &models.HistoryEntry{UserID: 4242, QueryText: "x"}
	assert.Error(t, s.CompleteJob(ctx, job.ID, models.AnalysisResult{Label: "x"}, time.Now(), bad))

	got, _ := s.GetJob(ctx, job.ID)
	assert.Equal(t, models.JobProcessing, got.State)
	assert.Nil(t, got.Result)
}

func TestListPagination(t *testing.T) {
	s := New()
	ctx := context.Background()
	u, _ := s.UpsertUser(ctx, models.Profile{TelegramID: 8})
	base := time.Now()

	for i := 0; i < 5; i++ {
		job := models.AnalysisJob{
			ID:        fmt.Sprintf("job-%d", i),
			UserID:    u.ID,
			State:     models.JobSubmitted,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.CreateJob(ctx, job))
	}

	page, total, err := s.ListJobs(ctx, u.ID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, "job-4", page[0].ID)
	assert.Equal(t, "job-3", page[1].ID)

	page, _, err = s.ListJobs(ctx, u.ID, 2, 4)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "job-0", page[0].ID)

	page, _, err = s.ListJobs(ctx, u.ID, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestHistoryDeleteAndClear(t *testing.T) {
	s := New()
	ctx := context.Background()
	u, _ := s.UpsertUser(ctx, models.Profile{TelegramID: 9})
	other, _ := s.UpsertUser(ctx, models.Profile{TelegramID: 10})

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("h-%d", i)
		require.NoError(t, s.CreateJob(ctx, models.AnalysisJob{ID: id, UserID: u.ID, State: models.JobSubmitted}))
		require.NoError(t, s.TransitionJob(ctx, id, models.JobSubmitted, models.JobProcessing))
		require.NoError(t, s.CompleteJob(ctx, id, models.AnalysisResult{Label: id}, time.Now(),
			&models.HistoryEntry{UserID: u.ID, QueryText: id, JobID: &id}))
	}

	entries, _, err := s.ListHistory(ctx, u.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "h-2", entries[0].QueryText)

	assert.ErrorIs(t, s.DeleteHistoryEntry(ctx, entries[0].ID, other.ID), storage.ErrNotFound)
	require.NoError(t, s.DeleteHistoryEntry(ctx, entries[0].ID, u.ID))

	n, err := s.ClearHistory(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, total, _ := s.ListHistory(ctx, u.ID, 10, 0)
	assert.Zero(t, total)
}

func TestCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.UpsertUser(ctx, models.Profile{TelegramID: 1})
	assert.ErrorIs(t, err, context.Canceled)
}
