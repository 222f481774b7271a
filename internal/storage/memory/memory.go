// Package memory реализует хранилище в памяти процесса с теми же контрактами,
// что и PostgreSQL-хранилище. Используется для локального запуска и в тестах.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/magabrotheeeer/zdravscan/internal/models"
	"github.com/magabrotheeeer/zdravscan/internal/storage"
)

// Storage хранит все данные под одним мьютексом.
type Storage struct {
	mu sync.Mutex

	now func() time.Time

	users       map[int64]*models.User
	byTelegram  map[int64]int64
	subs        []*models.Subscription
	jobs        map[string]*models.AnalysisJob
	history     []*models.HistoryEntry
	nextUserID  int64
	nextSubID   int64
	nextEntryID int64
}

// New создаёт пустое хранилище.
func New() *Storage {
	return &Storage{
		now:        time.Now,
		users:      make(map[int64]*models.User),
		byTelegram: make(map[int64]int64),
		jobs:       make(map[string]*models.AnalysisJob),
	}
}

func checkCtx(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) UpsertUser(ctx context.Context, p models.Profile) (*models.User, error) {
	const op = "memory.UpsertUser"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byTelegram[p.TelegramID]; ok {
		u := *s.users[id]
		return &u, nil
	}
	s.nextUserID++
	now := s.now()
	lang := p.LanguageCode
	if lang == "" {
		lang = "en"
	}
	u := &models.User{
		ID:           s.nextUserID,
		TelegramID:   p.TelegramID,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		Username:     p.Username,
		LanguageCode: lang,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[u.ID] = u
	s.byTelegram[p.TelegramID] = u.ID
	out := *u
	return &out, nil
}

func (s *Storage) GetUser(ctx context.Context, id int64) (*models.User, error) {
	const op = "memory.GetUser"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	out := *u
	return &out, nil
}

func (s *Storage) CreateSubscription(ctx context.Context, sub models.Subscription, now time.Time) (*models.Subscription, error) {
	const op = "memory.CreateSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[sub.UserID]; !ok {
		return nil, fmt.Errorf("%s: user: %w", op, storage.ErrNotFound)
	}
	for _, existing := range s.subs {
		if existing.UserID != sub.UserID {
			continue
		}
		if existing.Status == models.StatusActive && existing.EndDate.After(now) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrActiveSubscription)
		}
	}
	if sub.IsTrial {
		for _, existing := range s.subs {
			if existing.UserID == sub.UserID && existing.IsTrial {
				return nil, fmt.Errorf("%s: %w", op, storage.ErrTrialUsed)
			}
		}
	}

	s.nextSubID++
	sub.ID = s.nextSubID
	sub.CreatedAt = s.now()
	stored := sub
	s.subs = append(s.subs, &stored)
	return &sub, nil
}

func (s *Storage) LatestSubscription(ctx context.Context, userID int64) (*models.Subscription, error) {
	const op = "memory.LatestSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *models.Subscription
	for _, sub := range s.subs {
		if sub.UserID != userID || sub.Status != models.StatusActive {
			continue
		}
		if latest == nil || sub.EndDate.After(latest.EndDate) ||
			(sub.EndDate.Equal(latest.EndDate) && sub.ID > latest.ID) {
			latest = sub
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	out := *latest
	return &out, nil
}

func (s *Storage) CancelAutoRenew(ctx context.Context, subscriptionID, userID int64) error {
	const op = "memory.CancelAutoRenew"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.subs {
		if sub.ID == subscriptionID && sub.UserID == userID {
			sub.AutoRenew = false
			return nil
		}
	}
	return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
}

func (s *Storage) CreateJob(ctx context.Context, job models.AnalysisJob) error {
	const op = "memory.CreateJob"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("%s: duplicate job id %s", op, job.ID)
	}
	stored := job
	s.jobs[job.ID] = &stored
	return nil
}

func (s *Storage) TransitionJob(ctx context.Context, id string, from, to models.JobState) error {
	const op = "memory.TransitionJob"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.State != from {
		return fmt.Errorf("%s: %w", op, storage.ErrStateConflict)
	}
	job.State = to
	return nil
}

func (s *Storage) FailJob(ctx context.Context, id string, at time.Time) error {
	const op = "memory.FailJob"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || (job.State != models.JobProcessing && job.State != models.JobSubmitted) {
		return fmt.Errorf("%s: %w", op, storage.ErrStateConflict)
	}
	job.State = models.JobFailed
	job.CompletedAt = &at
	return nil
}

func (s *Storage) CompleteJob(ctx context.Context, id string, res models.AnalysisResult, at time.Time, entry *models.HistoryEntry) error {
	const op = "memory.CompleteJob"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.State != models.JobProcessing {
		return fmt.Errorf("%s: %w", op, storage.ErrStateConflict)
	}
	if entry != nil {
		if _, ok := s.users[entry.UserID]; !ok {
			return fmt.Errorf("%s: history: %w", op, storage.ErrNotFound)
		}
	}

	res.Recommendations = append([]string{}, res.Recommendations...)
	job.State = models.JobCompleted
	job.Result = &res
	job.CompletedAt = &at

	if entry != nil {
		s.nextEntryID++
		stored := *entry
		stored.ID = s.nextEntryID
		s.history = append(s.history, &stored)
	}
	return nil
}

func (s *Storage) GetJob(ctx context.Context, id string) (*models.AnalysisJob, error) {
	const op = "memory.GetJob"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return copyJob(job), nil
}

func (s *Storage) ListJobs(ctx context.Context, userID int64, limit, offset int) ([]models.AnalysisJob, int, error) {
	const op = "memory.ListJobs"
	if err := checkCtx(ctx, op); err != nil {
		return nil, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var own []*models.AnalysisJob
	for _, job := range s.jobs {
		if job.UserID == userID {
			own = append(own, job)
		}
	}
	sort.Slice(own, func(i, j int) bool {
		if own[i].CreatedAt.Equal(own[j].CreatedAt) {
			return own[i].ID < own[j].ID
		}
		return own[i].CreatedAt.After(own[j].CreatedAt)
	})

	page := make([]models.AnalysisJob, 0, limit)
	for _, job := range window(own, limit, offset) {
		page = append(page, *copyJob(job))
	}
	return page, len(own), nil
}

func (s *Storage) ListHistory(ctx context.Context, userID int64, limit, offset int) ([]models.HistoryEntry, int, error) {
	const op = "memory.ListHistory"
	if err := checkCtx(ctx, op); err != nil {
		return nil, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var own []*models.HistoryEntry
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].UserID == userID {
			own = append(own, s.history[i])
		}
	}

	page := make([]models.HistoryEntry, 0, limit)
	for _, e := range window(own, limit, offset) {
		page = append(page, *e)
	}
	return page, len(own), nil
}

func (s *Storage) DeleteHistoryEntry(ctx context.Context, id, userID int64) error {
	const op = "memory.DeleteHistoryEntry"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.history {
		if e.ID == id && e.UserID == userID {
			s.history = append(s.history[:i], s.history[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
}

func (s *Storage) ClearHistory(ctx context.Context, userID int64) (int, error) {
	const op = "memory.ClearHistory"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.history[:0]
	removed := 0
	for _, e := range s.history {
		if e.UserID == userID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.history = kept
	return removed, nil
}

// Ping всегда успешен.
func (s *Storage) Ping(context.Context) error { return nil }

// Close ничего не делает.
func (s *Storage) Close() error { return nil }

func copyJob(job *models.AnalysisJob) *models.AnalysisJob {
	out := *job
	if job.Result != nil {
		res := *job.Result
		res.Recommendations = append([]string{}, job.Result.Recommendations...)
		out.Result = &res
	}
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

func window[T any](items []T, limit, offset int) []T {
	if offset >= len(items) || limit <= 0 {
		return nil
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}
