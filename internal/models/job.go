package models

import "time"

// JobState - состояние задачи анализа.
// Переходы только в одну сторону: submitted -> processing -> completed | failed.
type JobState string

const (
	JobSubmitted  JobState = "submitted"
	JobProcessing JobState = "processing"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
)

// Terminal сообщает, является ли состояние конечным.
func (s JobState) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed:
		return true
	case JobSubmitted, JobProcessing:
		return false
	}
	return false
}

// AnalysisResult - результат работы анализатора.
type AnalysisResult struct {
	Label           string   `json:"condition_detected"`
	Description     string   `json:"description"`
	Confidence      float64  `json:"confidence"`
	Recommendations []string `json:"recommendations"`
}

// AnalysisJob - одна задача асинхронного анализа изображения.
// Result заполнен только в состоянии completed.
type AnalysisJob struct {
	ID          string          `json:"id"`
	UserID      int64           `json:"-"`
	InputRef    string          `json:"-"`
	State       JobState        `json:"status"`
	Result      *AnalysisResult `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"processed_at,omitempty"`
}

// HistoryEntry - запись истории запросов пользователя. Носит справочный характер.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"-"`
	QueryText string    `json:"query_text"`
	JobID     *string   `json:"scan_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
