// Package jwt выпускает и проверяет токены сессии (HS256).
//
// Токен несёт внутренний id пользователя и его Telegram id и живёт TokenTTL.
// Проверка токена не обращается к хранилищу.
package jwt

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken возвращается для просроченного, подделанного или некорректного токена.
var ErrInvalidToken = errors.New("invalid token")

// Maker описывает выпуск и разбор токенов сессии.
type Maker interface {
	Issue(userID, telegramID int64) (string, error)
	Parse(tokenStr string) (*Claims, error)
}

// MakerImpl реализует Maker с симметричным ключом.
type MakerImpl struct {
	secretKey []byte           // Секретный ключ для подписи токенов
	tokenTTL  time.Duration    // Время жизни токена
	now       func() time.Time // Источник времени
}

// Option настраивает MakerImpl.
type Option func(*MakerImpl)

// WithClock подменяет источник времени для выпуска и проверки токенов.
func WithClock(now func() time.Time) Option {
	return func(m *MakerImpl) { m.now = now }
}

// NewJWTMaker создаёт MakerImpl на основе секретного ключа и TTL.
func NewJWTMaker(secretKey string, ttl time.Duration, opts ...Option) *MakerImpl {
	m := &MakerImpl{
		secretKey: []byte(secretKey),
		tokenTTL:  ttl,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Issue создаёт токен для пользователя. Срок действия: now + tokenTTL.
func (m *MakerImpl) Issue(userID, telegramID int64) (string, error) {
	const op = "jwt.Issue"
	now := m.now()
	claims := Claims{
		UserID:     userID,
		TelegramID: telegramID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return token, nil
}

// Parse проверяет подпись и срок действия токена и возвращает его claims.
// Любая ошибка оборачивает ErrInvalidToken.
func (m *MakerImpl) Parse(tokenStr string) (*Claims, error) {
	const op = "jwt.Parse"
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(_ *jwt.Token) (any, error) {
		return m.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	if claims.Subject != strconv.FormatInt(claims.UserID, 10) {
		return nil, fmt.Errorf("%s: %w: subject mismatch", op, ErrInvalidToken)
	}
	return claims, nil
}
