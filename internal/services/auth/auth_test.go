package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/zdravscan/internal/cache"
	"github.com/magabrotheeeer/zdravscan/internal/lib/initdata"
	"github.com/magabrotheeeer/zdravscan/internal/lib/jwt"
	"github.com/magabrotheeeer/zdravscan/internal/lib/sl"
	"github.com/magabrotheeeer/zdravscan/internal/metrics"
	"github.com/magabrotheeeer/zdravscan/internal/models"
	"github.com/magabrotheeeer/zdravscan/internal/services/auth"
	"github.com/magabrotheeeer/zdravscan/internal/services/identity"
	"github.com/magabrotheeeer/zdravscan/internal/storage/memory"
)

const (
	botToken  = "123456:TEST"
	separator = "WebAppBotToken"
	secret    = "jwt-secret"
)

func signedInitData(user string) string {
	return initdata.Sign(map[string]string{
		"auth_date": "1700000000",
		"user":      user,
	}, botToken, separator)
}

type IdentitiesMock struct {
	mock.Mock
}

func (m *IdentitiesMock) ResolveOrCreate(ctx context.Context, p models.Profile) (*models.User, error) {
	args := m.Called(ctx, p)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

type loginCounter struct {
	ok, rejected int
}

func (c *loginCounter) RecordLogin(ok bool) {
	if ok {
		c.ok++
		return
	}
	c.rejected++
}

func TestLogin_IssuesTokenForSameUser(t *testing.T) {
	store := memory.New()
	ids := identity.New(store, cache.Noop{}, time.Hour, sl.Discard())
	maker := jwt.NewJWTMaker(secret, time.Hour)
	counter := &loginCounter{}
	s := auth.New(initdata.NewVerifier(botToken, separator), ids, maker, counter, sl.Discard())
	raw := signedInitData(`{"id":777,"first_name":"Anna","language_code":"ru"}`)

	first, err := s.Login(context.Background(), raw)
	require.NoError(t, err)
	second, err := s.Login(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, first.User.ID, second.User.ID)
	assert.Equal(t, int64(777), first.User.TelegramID)
	assert.Equal(t, "Anna", first.User.FirstName)
	assert.Equal(t, "ru", first.User.LanguageCode)

	claims, err := maker.Parse(first.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, claims.UserID)
	assert.Equal(t, int64(777), claims.TelegramID)
	assert.Equal(t, 2, counter.ok)
}

func TestLogin_InvalidInitDataWritesNothing(t *testing.T) {
	ids := new(IdentitiesMock)
	counter := &loginCounter{}
	s := auth.New(initdata.NewVerifier(botToken, separator), ids, jwt.NewJWTMaker(secret, time.Hour), counter, sl.Discard())

	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "foreign bot", raw: initdata.Sign(map[string]string{"user": `{"id":1}`}, "999:OTHER", separator)},
		{name: "tampered", raw: signedInitData(`{"id":1}`) + "x"},
		{name: "zero user id", raw: signedInitData(`{"id":0,"first_name":"Anna"}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, err := s.Login(context.Background(), tt.raw)
			assert.ErrorIs(t, err, auth.ErrInvalidInitData)
			assert.Nil(t, session)
		})
	}

	ids.AssertNotCalled(t, "ResolveOrCreate", mock.Anything, mock.Anything)
	assert.Equal(t, len(tests), counter.rejected)
}

func TestLogin_IdentityError(t *testing.T) {
	ids := new(IdentitiesMock)
	ids.On("ResolveOrCreate", mock.Anything, mock.MatchedBy(func(p models.Profile) bool {
		return p.TelegramID == 5 && p.LanguageCode == "en"
	})).Return(nil, errors.New("db down")).Once()

	s := auth.New(initdata.NewVerifier(botToken, separator), ids, jwt.NewJWTMaker(secret, time.Hour), metrics.Noop{}, sl.Discard())
	_, err := s.Login(context.Background(), signedInitData(`{"id":5}`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, auth.ErrInvalidInitData)
	ids.AssertExpectations(t)
}
