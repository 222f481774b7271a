package models

import (
	"errors"
	"fmt"
	"time"
)

// Tier - тариф подписки. Набор значений закрыт и является частью внешнего контракта.
type Tier string

const (
	TierTrial   Tier = "trial"   // Пробный период, 7 дней, один раз на пользователя
	TierExpress Tier = "express" // 30 дней
	TierQuarter Tier = "quarter" // 90 дней
	TierAnnual  Tier = "annual"  // 365 дней
)

// ErrUnknownTier возвращается при разборе неизвестного идентификатора тарифа.
var ErrUnknownTier = errors.New("unknown subscription tier")

// ParseTier переводит строковый идентификатор тарифа в Tier.
func ParseTier(s string) (Tier, error) {
	switch t := Tier(s); t {
	case TierTrial, TierExpress, TierQuarter, TierAnnual:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, s)
	}
}

// Days возвращает длительность тарифа в днях.
func (t Tier) Days() int {
	switch t {
	case TierTrial:
		return 7
	case TierExpress:
		return 30
	case TierQuarter:
		return 90
	case TierAnnual:
		return 365
	}
	panic(fmt.Sprintf("models: unhandled tier %q", string(t)))
}

// Duration возвращает длительность тарифа.
func (t Tier) Duration() time.Duration {
	return time.Duration(t.Days()) * 24 * time.Hour
}

// IsTrial сообщает, является ли тариф пробным.
func (t Tier) IsTrial() bool {
	switch t {
	case TierTrial:
		return true
	case TierExpress, TierQuarter, TierAnnual:
		return false
	}
	panic(fmt.Sprintf("models: unhandled tier %q", string(t)))
}

// SubscriptionStatus - хранимый статус подписки.
// Истечение срока не записывается в статус, а вычисляется при чтении по EndDate.
type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "active"
	StatusExpired   SubscriptionStatus = "expired"
	StatusCancelled SubscriptionStatus = "cancelled"
)

// Subscription - запись о праве пользователя на платную функцию анализа.
type Subscription struct {
	ID        int64              `json:"id"`
	UserID    int64              `json:"user_id"`
	Tier      Tier               `json:"subscription_type"`
	Status    SubscriptionStatus `json:"status"`
	StartDate time.Time          `json:"start_date"`
	EndDate   time.Time          `json:"end_date"`
	IsTrial   bool               `json:"is_trial"`
	AutoRenew bool               `json:"auto_renew"`
	CreatedAt time.Time          `json:"created_at"`
}

// ActiveAt сообщает, действует ли подписка в момент now:
// хранимый статус active и дата окончания строго позже now.
func (s *Subscription) ActiveAt(now time.Time) bool {
	switch s.Status {
	case StatusActive:
		return s.EndDate.After(now)
	case StatusExpired, StatusCancelled:
		return false
	}
	return false
}

// DaysRemaining возвращает число полных дней до окончания подписки, не меньше нуля.
func (s *Subscription) DaysRemaining(now time.Time) int {
	left := s.EndDate.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(left / (24 * time.Hour))
}

// Plan описывает тариф в каталоге, который отдаётся клиенту.
type Plan struct {
	Type        Tier   `json:"type"`
	Name        string `json:"name"`
	Duration    string `json:"duration"`
	Price       int    `json:"price"`
	Description string `json:"description"`
}
