package analysis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/zdravscan/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/zdravscan/internal/lib/sl"
	"github.com/magabrotheeeer/zdravscan/internal/metrics"
	"github.com/magabrotheeeer/zdravscan/internal/models"
	"github.com/magabrotheeeer/zdravscan/internal/storage"
	"github.com/magabrotheeeer/zdravscan/internal/storage/memory"
)

type analyzerFunc func(ctx context.Context, inputRef string) (*models.AnalysisResult, error)

func (f analyzerFunc) Analyze(ctx context.Context, inputRef string) (*models.AnalysisResult, error) {
	return f(ctx, inputRef)
}

func fixedResult(label string) analyzerFunc {
	return func(context.Context, string) (*models.AnalysisResult, error) {
		return &models.AnalysisResult{
			Label:           label,
			Description:     "описание",
			Confidence:      0.87,
			Recommendations: []string{"a", "b"},
		}, nil
	}
}

type recorder struct {
	mu        sync.Mutex
	submitted int
	completed int
	failed    map[string]int
	latencies int
}

func newRecorder() *recorder { return &recorder{failed: map[string]int{}} }

func (r *recorder) RecordJobSubmitted() { r.mu.Lock(); r.submitted++; r.mu.Unlock() }
func (r *recorder) RecordJobCompleted() { r.mu.Lock(); r.completed++; r.mu.Unlock() }
func (r *recorder) RecordJobFailed(reason string) {
	r.mu.Lock()
	r.failed[reason]++
	r.mu.Unlock()
}
func (r *recorder) RecordAnalyzerLatency(time.Duration) { r.mu.Lock(); r.latencies++; r.mu.Unlock() }

// syncDispatcher сразу выполняет задачу в вызывающей горутине.
type syncDispatcher struct {
	w   *Worker
	err error
}

func (d *syncDispatcher) Dispatch(ctx context.Context, task Task) error {
	if d.err != nil {
		return d.err
	}
	return d.w.Process(ctx, task)
}

type captureDispatcher struct {
	tasks []Task
}

func (d *captureDispatcher) Dispatch(_ context.Context, task Task) error {
	d.tasks = append(d.tasks, task)
	return nil
}

func newUser(t *testing.T, store *memory.Storage, telegramID int64) int64 {
	t.Helper()
	u, err := store.UpsertUser(context.Background(), models.Profile{TelegramID: telegramID, FirstName: "Ivan"})
	require.NoError(t, err)
	return u.ID
}

func TestSubmit_CompletesJob(t *testing.T) {
	store := memory.New()
	rec := newRecorder()
	userID := newUser(t, store, 1)
	w := NewWorker(store, fixedResult("Акне"), rec, time.Second, 500, sl.Discard())
	tr := NewTracker(store, &syncDispatcher{w: w}, rec, sl.Discard())
	ctx := context.Background()

	job, err := tr.Submit(ctx, userID, "uploads/images/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, models.JobProcessing, job.State)
	assert.Nil(t, job.Result)

	got, err := tr.Get(ctx, job.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, got.State)
	require.NotNil(t, got.Result)
	assert.Equal(t, "Акне", got.Result.Label)
	assert.Equal(t, []string{"a", "b"}, got.Result.Recommendations)
	require.NotNil(t, got.CompletedAt)

	entries, total, err := store.ListHistory(ctx, userID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Акне", entries[0].QueryText)
	require.NotNil(t, entries[0].JobID)
	assert.Equal(t, job.ID, *entries[0].JobID)

	assert.Equal(t, 1, rec.submitted)
	assert.Equal(t, 1, rec.completed)
	assert.Equal(t, 1, rec.latencies)
}

func TestSubmit_DispatchFailureMarksFailed(t *testing.T) {
	store := memory.New()
	rec := newRecorder()
	userID := newUser(t, store, 1)
	tr := NewTracker(store, &syncDispatcher{err: errors.New("broker down")}, rec, sl.Discard())
	ctx := context.Background()

	job, err := tr.Submit(ctx, userID, "ref")
	require.ErrorIs(t, err, ErrDispatch)
	assert.Nil(t, job)

	page, err := tr.List(ctx, userID, 10, 0)
	require.NoError(t, err)
	require.Len(t, page.Jobs, 1)
	assert.Equal(t, models.JobFailed, page.Jobs[0].State)
	assert.Nil(t, page.Jobs[0].Result)
	assert.Equal(t, 1, rec.failed[metrics.ReasonDispatch])
	assert.Zero(t, rec.submitted)
}

func TestGet_OwnershipAndUnknown(t *testing.T) {
	store := memory.New()
	owner := newUser(t, store, 1)
	other := newUser(t, store, 2)
	d := &captureDispatcher{}
	tr := NewTracker(store, d, newRecorder(), sl.Discard())
	ctx := context.Background()

	job, err := tr.Submit(ctx, owner, "ref")
	require.NoError(t, err)

	tests := []struct {
		name   string
		jobID  string
		userID int64
	}{
		{name: "foreign job", jobID: job.ID, userID: other},
		{name: "unknown uuid", jobID: "1b4e28ba-2fa1-11d2-883f-0016d3cca427", userID: owner},
		{name: "not a uuid", jobID: "42", userID: owner},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tr.Get(ctx, tt.jobID, tt.userID)
			assert.ErrorIs(t, err, ErrJobNotFound)
		})
	}

	got, err := tr.Get(ctx, job.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, models.JobProcessing, got.State)
	require.Len(t, d.tasks, 1)
	assert.Equal(t, Task{JobID: job.ID, InputRef: "ref"}, d.tasks[0])
}

func TestList_PaginationAndClamp(t *testing.T) {
	store := memory.New()
	userID := newUser(t, store, 1)
	tr := NewTracker(store, &captureDispatcher{}, newRecorder(), sl.Discard())
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	var ids []string
	for i := range 12 {
		tr.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		job, err := tr.Submit(ctx, userID, "ref")
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}

	page, err := tr.List(ctx, userID, 0, -5)
	require.NoError(t, err)
	assert.Equal(t, 12, page.Total)
	require.Len(t, page.Jobs, DefaultPageSize)
	assert.Equal(t, ids[11], page.Jobs[0].ID)

	page, err = tr.List(ctx, userID, 5, 10)
	require.NoError(t, err)
	require.Len(t, page.Jobs, 2)
	assert.Equal(t, ids[0], page.Jobs[1].ID)

	page, err = tr.List(ctx, userID, 1000, 0)
	require.NoError(t, err)
	assert.Len(t, page.Jobs, 12)
}

func TestClampPage(t *testing.T) {
	tests := []struct {
		limit, offset  int
		wantL, wantOff int
	}{
		{limit: 0, offset: 0, wantL: 10, wantOff: 0},
		{limit: -1, offset: -1, wantL: 10, wantOff: 0},
		{limit: 500, offset: 3, wantL: 100, wantOff: 3},
		{limit: 20, offset: 40, wantL: 20, wantOff: 40},
	}
	for _, tt := range tests {
		l, o := ClampPage(tt.limit, tt.offset, DefaultPageSize, MaxPageSize)
		assert.Equal(t, tt.wantL, l)
		assert.Equal(t, tt.wantOff, o)
	}
}

// processingJob создаёт задачу сразу в состоянии processing.
func processingJob(t *testing.T, store *memory.Storage, userID int64) string {
	t.Helper()
	tr := NewTracker(store, &captureDispatcher{}, newRecorder(), sl.Discard())
	job, err := tr.Submit(context.Background(), userID, "ref")
	require.NoError(t, err)
	return job.ID
}

func TestProcess_Failures(t *testing.T) {
	tests := []struct {
		name     string
		analyzer analyzerFunc
		reason   string
	}{
		{
			name: "analyzer error",
			analyzer: func(context.Context, string) (*models.AnalysisResult, error) {
				return nil, errors.New("model crashed")
			},
			reason: metrics.ReasonAnalyzer,
		},
		{
			name: "timeout",
			analyzer: func(ctx context.Context, _ string) (*models.AnalysisResult, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
			reason: metrics.ReasonAnalyzer,
		},
		{
			name: "nil result",
			analyzer: func(context.Context, string) (*models.AnalysisResult, error) {
				return nil, nil
			},
			reason: metrics.ReasonInvalid,
		},
		{name: "empty label", analyzer: fixedResult("  "), reason: metrics.ReasonInvalid},
		{
			name: "analyzer panic",
			analyzer: func(context.Context, string) (*models.AnalysisResult, error) {
				panic("model crashed")
			},
			reason: metrics.ReasonAnalyzer,
		},
		{
			name: "confidence out of range",
			analyzer: func(context.Context, string) (*models.AnalysisResult, error) {
				return &models.AnalysisResult{Label: "x", Confidence: 1.5}, nil
			},
			reason: metrics.ReasonInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			rec := newRecorder()
			userID := newUser(t, store, 1)
			jobID := processingJob(t, store, userID)
			w := NewWorker(store, tt.analyzer, rec, 20*time.Millisecond, 500, sl.Discard())

			require.NoError(t, w.Process(context.Background(), Task{JobID: jobID, InputRef: "ref"}))

			job, err := store.GetJob(context.Background(), jobID)
			require.NoError(t, err)
			assert.Equal(t, models.JobFailed, job.State)
			assert.Nil(t, job.Result)
			assert.NotNil(t, job.CompletedAt)
			assert.Equal(t, 1, rec.failed[tt.reason])

			_, total, err := store.ListHistory(context.Background(), userID, 10, 0)
			require.NoError(t, err)
			assert.Zero(t, total)
		})
	}
}

func TestProcess_SkipsNotProcessing(t *testing.T) {
	store := memory.New()
	userID := newUser(t, store, 1)
	jobID := processingJob(t, store, userID)

	calls := 0
	analyzer := func(ctx context.Context, ref string) (*models.AnalysisResult, error) {
		calls++
		return fixedResult("Экзема")(ctx, ref)
	}
	w := NewWorker(store, analyzerFunc(analyzer), newRecorder(), time.Second, 500, sl.Discard())
	task := Task{JobID: jobID, InputRef: "ref"}

	require.NoError(t, w.Process(context.Background(), task))
	// повторная доставка не меняет конечный результат
	require.NoError(t, w.Process(context.Background(), task))
	assert.Equal(t, 1, calls)

	_, total, err := store.ListHistory(context.Background(), userID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestProcess_HistoryFailureStillCompletes(t *testing.T) {
	store := memory.New()
	rec := newRecorder()
	// пользователя нет в хранилище: запись истории не пройдёт
	job := models.AnalysisJob{
		ID:        "6f1c1f6e-6a55-4a8f-9c1e-1b0f7c3c2a11",
		UserID:    999,
		InputRef:  "ref",
		State:     models.JobSubmitted,
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.CreateJob(context.Background(), job))
	require.NoError(t, store.TransitionJob(context.Background(), job.ID, models.JobSubmitted, models.JobProcessing))

	w := NewWorker(store, fixedResult("Розацеа"), rec, time.Second, 500, sl.Discard())
	require.NoError(t, w.Process(context.Background(), Task{JobID: job.ID}))

	got, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, got.State)
	require.NotNil(t, got.Result)
	assert.Equal(t, "Розацеа", got.Result.Label)
	assert.Equal(t, 1, rec.completed)
}

func TestProcess_TruncatesHistoryText(t *testing.T) {
	store := memory.New()
	userID := newUser(t, store, 1)
	jobID := processingJob(t, store, userID)

	w := NewWorker(store, fixedResult("Себорейный дерматит"), newRecorder(), time.Second, 4, sl.Discard())
	require.NoError(t, w.Process(context.Background(), Task{JobID: jobID}))

	entries, _, err := store.ListHistory(context.Background(), userID, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Себо", entries[0].QueryText)
}

type RepoMock struct {
	mock.Mock
}

func (m *RepoMock) CreateJob(ctx context.Context, job models.AnalysisJob) error {
	return m.Called(ctx, job).Error(0)
}

func (m *RepoMock) TransitionJob(ctx context.Context, id string, from, to models.JobState) error {
	return m.Called(ctx, id, from, to).Error(0)
}

func (m *RepoMock) FailJob(ctx context.Context, id string, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *RepoMock) CompleteJob(ctx context.Context, id string, res models.AnalysisResult, at time.Time, entry *models.HistoryEntry) error {
	return m.Called(ctx, id, res, at, entry).Error(0)
}

func (m *RepoMock) GetJob(ctx context.Context, id string) (*models.AnalysisJob, error) {
	args := m.Called(ctx, id)
	job, _ := args.Get(0).(*models.AnalysisJob)
	return job, args.Error(1)
}

func (m *RepoMock) ListJobs(ctx context.Context, userID int64, limit, offset int) ([]models.AnalysisJob, int, error) {
	args := m.Called(ctx, userID, limit, offset)
	jobs, _ := args.Get(0).([]models.AnalysisJob)
	return jobs, args.Int(1), args.Error(2)
}

func TestMessageHandler(t *testing.T) {
	const jobID = "6f1c1f6e-6a55-4a8f-9c1e-1b0f7c3c2a11"

	tests := []struct {
		name        string
		body        string
		getErr      error
		wantErr     bool
		wantRequeue bool
	}{
		{name: "malformed json", body: `{"job_id":`, wantErr: true},
		{name: "empty job id", body: `{"input_ref":"x"}`, wantErr: true},
		{name: "storage unavailable", body: `{"job_id":"` + jobID + `"}`, getErr: errors.New("connection refused"), wantErr: true, wantRequeue: true},
		{name: "job gone", body: `{"job_id":"` + jobID + `"}`, getErr: storage.ErrNotFound, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			if tt.getErr != nil {
				repo.On("GetJob", mock.Anything, jobID).Return(nil, tt.getErr).Once()
			}
			w := NewWorker(repo, fixedResult("x"), newRecorder(), time.Second, 500, sl.Discard())

			err := MessageHandler(w)(context.Background(), []byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantRequeue, errors.Is(err, rabbitmq.ErrRequeue))
			repo.AssertExpectations(t)
		})
	}
}

func TestMessageHandler_ProcessesTask(t *testing.T) {
	store := memory.New()
	userID := newUser(t, store, 1)
	jobID := processingJob(t, store, userID)
	w := NewWorker(store, fixedResult("Акне"), newRecorder(), time.Second, 500, sl.Discard())

	err := MessageHandler(w)(context.Background(), []byte(`{"job_id":"`+jobID+`","input_ref":"ref"}`))
	require.NoError(t, err)

	job, err := store.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, job.State)
}

func TestLocalQueue_SurvivesAnalyzerPanic(t *testing.T) {
	store := memory.New()
	userID := newUser(t, store, 1)
	calls := 0
	analyzer := func(ctx context.Context, ref string) (*models.AnalysisResult, error) {
		calls++
		if calls == 1 {
			panic("model crashed")
		}
		return fixedResult("Акне")(ctx, ref)
	}
	w := NewWorker(store, analyzerFunc(analyzer), newRecorder(), time.Second, 500, sl.Discard())
	q := NewLocalQueue(4, sl.Discard())
	q.Start(context.Background(), 1, w)
	tr := NewTracker(store, q, newRecorder(), sl.Discard())

	first, err := tr.Submit(context.Background(), userID, "ref")
	require.NoError(t, err)
	second, err := tr.Submit(context.Background(), userID, "ref")
	require.NoError(t, err)
	q.Close()

	got, err := tr.Get(context.Background(), first.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.State)
	assert.Nil(t, got.Result)

	got, err = tr.Get(context.Background(), second.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, got.State)
}

func TestSubmit_StartFailureMarksFailed(t *testing.T) {
	repo := new(RepoMock)
	repo.On("CreateJob", mock.Anything, mock.Anything).Return(nil).Once()
	repo.On("TransitionJob", mock.Anything, mock.Anything, models.JobSubmitted, models.JobProcessing).
		Return(errors.New("db down")).Once()
	repo.On("FailJob", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	dispatcher := &captureDispatcher{}

	tr := NewTracker(repo, dispatcher, newRecorder(), sl.Discard())
	job, err := tr.Submit(context.Background(), 1, "ref")
	require.Error(t, err)
	assert.Nil(t, job)
	assert.Empty(t, dispatcher.tasks)

	created := repo.Calls[0].Arguments.Get(1).(models.AnalysisJob)
	repo.AssertCalled(t, "FailJob", mock.Anything, created.ID, mock.Anything)
	repo.AssertExpectations(t)
}

func TestProcess_SaveErrorNotRequeued(t *testing.T) {
	const jobID = "6f1c1f6e-6a55-4a8f-9c1e-1b0f7c3c2a11"
	repo := new(RepoMock)
	repo.On("GetJob", mock.Anything, jobID).
		Return(&models.AnalysisJob{ID: jobID, UserID: 1, State: models.JobProcessing}, nil).Once()
	repo.On("CompleteJob", mock.Anything, jobID, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("db down")).Twice()

	w := NewWorker(repo, fixedResult("x"), newRecorder(), time.Second, 500, sl.Discard())
	err := w.Process(context.Background(), Task{JobID: jobID})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTransient)
	repo.AssertExpectations(t)
}

func TestLocalQueue(t *testing.T) {
	store := memory.New()
	userID := newUser(t, store, 1)
	w := NewWorker(store, fixedResult("Акне"), newRecorder(), time.Second, 500, sl.Discard())
	q := NewLocalQueue(8, sl.Discard())
	q.Start(context.Background(), 2, w)
	tr := NewTracker(store, q, newRecorder(), sl.Discard())

	var ids []string
	for range 5 {
		job, err := tr.Submit(context.Background(), userID, "ref")
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}
	q.Close()

	for _, id := range ids {
		job, err := tr.Get(context.Background(), id, userID)
		require.NoError(t, err)
		assert.Equal(t, models.JobCompleted, job.State)
	}

	err := q.Dispatch(context.Background(), Task{JobID: ids[0]})
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestLocalQueue_Full(t *testing.T) {
	q := NewLocalQueue(1, sl.Discard())
	require.NoError(t, q.Dispatch(context.Background(), Task{JobID: "a"}))
	assert.ErrorIs(t, q.Dispatch(context.Background(), Task{JobID: "b"}), ErrQueueFull)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, q.Dispatch(ctx, Task{JobID: "c"}), context.Canceled)
}
