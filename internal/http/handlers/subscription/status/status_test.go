package status

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/zdravscan/internal/http/middlewarectx"
	"github.com/magabrotheeeer/zdravscan/internal/lib/sl"
	"github.com/magabrotheeeer/zdravscan/internal/models"
	"github.com/magabrotheeeer/zdravscan/internal/services/entitlement"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) CurrentEntitlement(ctx context.Context, userID int64) (*entitlement.Entitlement, error) {
	args := m.Called(ctx, userID)
	e, _ := args.Get(0).(*entitlement.Entitlement)
	return e, args.Error(1)
}

func TestStatusHandler(t *testing.T) {
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	sub := &models.Subscription{
		ID:        11,
		UserID:    1,
		Tier:      models.TierTrial,
		Status:    models.StatusActive,
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 7),
		IsTrial:   true,
	}

	tests := []struct {
		name       string
		ent        *entitlement.Entitlement
		err        error
		wantStatus int
		wantBody   []string
	}{
		{
			name:       "active",
			ent:        &entitlement.Entitlement{Active: true, Subscription: sub, DaysRemaining: 5},
			wantStatus: http.StatusOK,
			wantBody:   []string{`"has_active_subscription":true`, `"days_remaining":5`, `"subscription_type":"trial"`},
		},
		{
			name:       "none",
			ent:        &entitlement.Entitlement{},
			wantStatus: http.StatusOK,
			wantBody:   []string{`"has_active_subscription":false`},
		},
		{
			name:       "storage failure",
			err:        errors.New("db down"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   []string{"internal error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			svc.On("CurrentEntitlement", mock.Anything, int64(1)).Return(tt.ent, tt.err).Once()

			req := httptest.NewRequest(http.MethodGet, "/api/subscription/status", nil)
			req = req.WithContext(middlewarectx.WithUser(req.Context(), &models.User{ID: 1}))
			w := httptest.NewRecorder()
			New(sl.Discard(), svc).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			for _, s := range tt.wantBody {
				assert.Contains(t, w.Body.String(), s)
			}
			assert.NotContains(t, w.Body.String(), `"subscription":null`)
			svc.AssertExpectations(t)
		})
	}
}
