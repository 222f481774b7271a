// Package initdata проверяет подпись данных запуска Telegram WebApp (initData).
//
// Строка initData - набор пар ключ=значение в формате application/x-www-form-urlencoded,
// среди которых обязательны поле hash (HMAC-подпись) и поле user (JSON с данными пользователя).
// Проверка не требует сессии: ключ подписи выводится из токена бота.
package initdata

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrInvalid возвращается при любой ошибке проверки. Причина наружу не раскрывается.
var ErrInvalid = errors.New("invalid init data")

// Claims - данные пользователя из проверенной строки initData.
type Claims struct {
	UserID       int64  // Идентификатор пользователя Telegram
	FirstName    string // Имя
	LastName     string // Фамилия
	Username     string // Ник
	LanguageCode string // Язык клиента, по умолчанию "en"
	AuthDate     string // Значение auth_date как пришло
	Hash         string // Подпись как пришла, для аудита
}

type telegramUser struct {
	ID           *int64 `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Username     string `json:"username"`
	LanguageCode string `json:"language_code"`
}

// Verifier проверяет подпись initData. Состояния не хранит, безопасен для конкурентного использования.
type Verifier struct {
	signingKey []byte
	maxAge     time.Duration
	now        func() time.Time
}

// Option настраивает Verifier.
type Option func(*Verifier)

// WithMaxAge отклоняет данные, у которых auth_date старше d. Ноль отключает проверку.
func WithMaxAge(d time.Duration) Option {
	return func(v *Verifier) { v.maxAge = d }
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier создаёт Verifier. Ключ подписи: HMAC-SHA256(key = separator, message = botToken).
func NewVerifier(botToken, separator string, opts ...Option) *Verifier {
	v := &Verifier{
		signingKey: SigningKey(botToken, separator),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// SigningKey выводит ключ подписи из секрета бота и разделителя домена.
func SigningKey(botToken, separator string) []byte {
	mac := hmac.New(sha256.New, []byte(separator))
	mac.Write([]byte(botToken))
	return mac.Sum(nil)
}

// Verify разбирает и проверяет строку initData.
// При любой ошибке возвращает ErrInvalid.
func (v *Verifier) Verify(raw string) (*Claims, error) {
	pairs, hash, err := parse(raw)
	if err != nil {
		return nil, ErrInvalid
	}

	expected := sign(v.signingKey, checkString(pairs))
	if !hmac.Equal([]byte(expected), []byte(hash)) {
		return nil, ErrInvalid
	}

	if v.maxAge > 0 {
		ts, err := strconv.ParseInt(pairs["auth_date"], 10, 64)
		if err != nil || v.now().Sub(time.Unix(ts, 0)) > v.maxAge {
			return nil, ErrInvalid
		}
	}

	rawUser, ok := pairs["user"]
	if !ok {
		return nil, ErrInvalid
	}
	var u telegramUser
	if err := json.Unmarshal([]byte(rawUser), &u); err != nil || u.ID == nil || *u.ID == 0 {
		return nil, ErrInvalid
	}

	lang := u.LanguageCode
	if lang == "" {
		lang = "en"
	}
	return &Claims{
		UserID:       *u.ID,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Username:     u.Username,
		LanguageCode: lang,
		AuthDate:     pairs["auth_date"],
		Hash:         hash,
	}, nil
}

// Sign подписывает набор пар ключом, выведенным из botToken и separator,
// и возвращает закодированную строку initData вместе с полем hash.
// Используется клиентами и тестами.
func Sign(values map[string]string, botToken, separator string) string {
	hash := sign(SigningKey(botToken, separator), checkString(values))
	q := url.Values{}
	for k, val := range values {
		q.Set(k, val)
	}
	q.Set("hash", hash)
	return q.Encode()
}

func parse(raw string) (map[string]string, string, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, "", err
	}
	pairs := make(map[string]string, len(values))
	for k, vs := range values {
		if len(vs) != 1 {
			return nil, "", errors.New("duplicate key")
		}
		pairs[k] = vs[0]
	}
	hash, ok := pairs["hash"]
	if !ok || hash == "" {
		return nil, "", errors.New("hash is missing")
	}
	delete(pairs, "hash")
	return pairs, hash, nil
}

func checkString(pairs map[string]string) string {
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(pairs[k])
	}
	return b.String()
}

func sign(key []byte, data string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}
