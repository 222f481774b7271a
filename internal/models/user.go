// Package models содержит доменные структуры сервиса: пользователя,
// подписку, задачу анализа и запись истории запросов.
// Структуры используются в бизнес‑логике, хранилище и HTTP‑слое.
package models

import "time"

// User представляет пользователя, пришедшего через Telegram WebApp.
type User struct {
	ID           int64     `json:"id"`            // Внутренний идентификатор, назначается один раз
	TelegramID   int64     `json:"telegram_id"`   // Внешний идентификатор Telegram, уникален и неизменен
	FirstName    string    `json:"first_name"`    // Имя
	LastName     string    `json:"last_name"`     // Фамилия (может быть пустой)
	Username     string    `json:"username"`      // Ник в Telegram (может быть пустым)
	LanguageCode string    `json:"language_code"` // Язык интерфейса клиента
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Profile описывает отображаемые поля пользователя, полученные из подписанных данных.
// Используется при первом входе для создания записи User.
type Profile struct {
	TelegramID   int64
	FirstName    string
	LastName     string
	Username     string
	LanguageCode string
}
