// Package dto описывает представления доменных сущностей в ответах HTTP API.
package dto

import (
	"time"

	"github.com/magabrotheeeer/zdravscan/internal/models"
)

// Subscription - подписка в ответе API.
type Subscription struct {
	ID            int64     `json:"id"`
	Type          string    `json:"subscription_type"`
	Status        string    `json:"status"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	IsTrial       bool      `json:"is_trial"`
	DaysRemaining int       `json:"days_remaining"`
	AutoRenew     bool      `json:"auto_renew"`
}

// NewSubscription строит представление подписки с заранее посчитанным остатком дней.
func NewSubscription(s *models.Subscription, daysRemaining int) *Subscription {
	return &Subscription{
		ID:            s.ID,
		Type:          string(s.Tier),
		Status:        string(s.Status),
		StartDate:     s.StartDate,
		EndDate:       s.EndDate,
		IsTrial:       s.IsTrial,
		DaysRemaining: daysRemaining,
		AutoRenew:     s.AutoRenew,
	}
}

// SubscriptionStatus - текущее право на анализ.
type SubscriptionStatus struct {
	HasActiveSubscription bool          `json:"has_active_subscription"`
	Subscription          *Subscription `json:"subscription,omitempty"`
}

// Scan - задача анализа в ответе API. Поля результата заполнены только для completed.
type Scan struct {
	ID                string     `json:"id"`
	Status            string     `json:"status"`
	ConditionDetected string     `json:"condition_detected,omitempty"`
	Description       string     `json:"description,omitempty"`
	Confidence        *float64   `json:"confidence,omitempty"`
	Recommendations   []string   `json:"recommendations"`
	CreatedAt         time.Time  `json:"created_at"`
	ProcessedAt       *time.Time `json:"processed_at,omitempty"`
}

// NewScan строит представление задачи.
func NewScan(j *models.AnalysisJob) Scan {
	s := Scan{
		ID:              j.ID,
		Status:          string(j.State),
		Recommendations: []string{},
		CreatedAt:       j.CreatedAt,
		ProcessedAt:     j.CompletedAt,
	}
	if j.State == models.JobCompleted && j.Result != nil {
		confidence := j.Result.Confidence
		s.ConditionDetected = j.Result.Label
		s.Description = j.Result.Description
		s.Confidence = &confidence
		s.Recommendations = append(s.Recommendations, j.Result.Recommendations...)
	}
	return s
}

// ScanList - страница задач.
type ScanList struct {
	Scans []Scan `json:"scans"`
	Total int    `json:"total"`
}

// HistoryList - страница истории запросов.
type HistoryList struct {
	History []models.HistoryEntry `json:"history"`
	Total   int                   `json:"total"`
}
