// Package analysis ведёт жизненный цикл задач анализа изображений:
// приём задачи, передача её исполнителю и запись результата.
//
// Состояния задачи меняются только вперёд: submitted -> processing -> completed | failed.
// Каждая запись в хранилище проверяет исходное состояние, поэтому повторная доставка
// задачи не может записать второй конечный результат.
package analysis

import (
	"context"
	"errors"
	"time"

	"github.com/magabrotheeeer/zdravscan/internal/models"
)

// Ошибки задач анализа.
var (
	ErrJobNotFound   = errors.New("scan not found")
	ErrDispatch      = errors.New("failed to dispatch analysis task")
	ErrInvalidResult = errors.New("analyzer returned invalid result")
	// ErrTransient означает, что задачу можно обработать позже (хранилище недоступно).
	ErrTransient = errors.New("transient failure")
)

// Task - неизменяемое сообщение о задаче, которое передаётся исполнителю.
type Task struct {
	JobID    string `json:"job_id"`
	InputRef string `json:"input_ref"`
}

// Repository описывает хранилище задач.
type Repository interface {
	CreateJob(ctx context.Context, job models.AnalysisJob) error
	TransitionJob(ctx context.Context, id string, from, to models.JobState) error
	FailJob(ctx context.Context, id string, at time.Time) error
	CompleteJob(ctx context.Context, id string, res models.AnalysisResult, at time.Time, entry *models.HistoryEntry) error
	GetJob(ctx context.Context, id string) (*models.AnalysisJob, error)
	ListJobs(ctx context.Context, userID int64, limit, offset int) ([]models.AnalysisJob, int, error)
}

// Dispatcher передаёт задачу исполнителю.
type Dispatcher interface {
	Dispatch(ctx context.Context, task Task) error
}

// Analyzer выполняет анализ изображения по ссылке на загруженный файл.
type Analyzer interface {
	Analyze(ctx context.Context, inputRef string) (*models.AnalysisResult, error)
}

// Metrics учитывает события задач.
type Metrics interface {
	RecordJobSubmitted()
	RecordJobCompleted()
	RecordJobFailed(reason string)
	RecordAnalyzerLatency(d time.Duration)
}

// Page - страница задач пользователя.
type Page struct {
	Jobs  []models.AnalysisJob
	Total int
}
