// Package access решает, можно ли выполнить запрос с данным токеном сессии,
// и проверяет право на платный анализ.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/zdravscan/internal/lib/jwt"
	"github.com/magabrotheeeer/zdravscan/internal/models"
	"github.com/magabrotheeeer/zdravscan/internal/services/entitlement"
	"github.com/magabrotheeeer/zdravscan/internal/services/identity"
)

// Ошибки доступа.
var (
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrEntitlementRequired = errors.New("subscription required")
)

// TokenParser проверяет токен сессии.
type TokenParser interface {
	Parse(tokenStr string) (*jwt.Claims, error)
}

// Users ищет пользователя по внутреннему id.
type Users interface {
	Lookup(ctx context.Context, id int64) (*models.User, error)
}

// Entitlements возвращает текущее право пользователя на анализ.
type Entitlements interface {
	CurrentEntitlement(ctx context.Context, userID int64) (*entitlement.Entitlement, error)
}

// Gate проверяет токен и право на анализ.
type Gate struct {
	tokens       TokenParser
	users        Users
	entitlements Entitlements
}

// New создаёт Gate.
func New(tokens TokenParser, users Users, entitlements Entitlements) *Gate {
	return &Gate{
		tokens:       tokens,
		users:        users,
		entitlements: entitlements,
	}
}

// Authorize возвращает пользователя, которому выдан токен.
// Неверный, просроченный токен и неизвестный пользователь дают ErrUnauthenticated.
func (g *Gate) Authorize(ctx context.Context, token string) (*models.User, error) {
	const op = "access.Authorize"
	claims, err := g.tokens.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	}

	user, err := g.users.Lookup(ctx, claims.UserID)
	if errors.Is(err, identity.ErrUserNotFound) {
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if user.TelegramID != claims.TelegramID {
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	}
	return user, nil
}

// RequireEntitlement возвращает ErrEntitlementRequired, если у пользователя нет действующей подписки.
func (g *Gate) RequireEntitlement(ctx context.Context, userID int64) (*entitlement.Entitlement, error) {
	const op = "access.RequireEntitlement"
	ent, err := g.entitlements.CurrentEntitlement(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !ent.Active {
		return nil, fmt.Errorf("%s: %w", op, ErrEntitlementRequired)
	}
	return ent, nil
}

// AuthorizeForAnalysis объединяет Authorize и RequireEntitlement.
func (g *Gate) AuthorizeForAnalysis(ctx context.Context, token string) (*models.User, error) {
	user, err := g.Authorize(ctx, token)
	if err != nil {
		return nil, err
	}
	if _, err := g.RequireEntitlement(ctx, user.ID); err != nil {
		return nil, err
	}
	return user, nil
}
