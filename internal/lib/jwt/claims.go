package jwt

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims описывает данные сессии, хранящиеся в JWT.
// Subject дублирует UserID в строковом виде.
type Claims struct {
	UserID               int64 `json:"user_id"`     // Внутренний идентификатор пользователя
	TelegramID           int64 `json:"telegram_id"` // Идентификатор пользователя в Telegram
	jwt.RegisteredClaims       // Стандартные claims (sub, iat, exp)
}
