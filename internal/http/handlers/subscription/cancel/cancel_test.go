package cancel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
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

func (m *ServiceMock) CancelAutoRenew(ctx context.Context, subscriptionID, userID int64) error {
	return m.Called(ctx, subscriptionID, userID).Error(0)
}

func TestCancelHandler(t *testing.T) {
	tests := []struct {
		name       string
		id         string
		setup      func(m *ServiceMock)
		wantStatus int
		wantBody   string
	}{
		{
			name: "cancelled",
			id:   "12",
			setup: func(m *ServiceMock) {
				m.On("CancelAutoRenew", mock.Anything, int64(12), int64(1)).Return(nil).Once()
			},
			wantStatus: http.StatusOK,
			wantBody:   "auto-renewal cancelled",
		},
		{name: "bad id", id: "abc", setup: func(*ServiceMock) {}, wantStatus: http.StatusBadRequest, wantBody: "failed to decode id"},
		{name: "negative id", id: "-3", setup: func(*ServiceMock) {}, wantStatus: http.StatusBadRequest, wantBody: "failed to decode id"},
		{
			name: "foreign subscription",
			id:   "13",
			setup: func(m *ServiceMock) {
				m.On("CancelAutoRenew", mock.Anything, int64(13), int64(1)).Return(entitlement.ErrSubscriptionNotFound).Once()
			},
			wantStatus: http.StatusNotFound,
			wantBody:   "subscription not found",
		},
		{
			name: "storage failure",
			id:   "14",
			setup: func(m *ServiceMock) {
				m.On("CancelAutoRenew", mock.Anything, int64(14), int64(1)).Return(errors.New("db down")).Once()
			},
			wantStatus: http.StatusInternalServerError,
			wantBody:   "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			tt.setup(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/subscription/"+tt.id+"/cancel", nil)
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("id", tt.id)
			ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
			req = req.WithContext(middlewarectx.WithUser(ctx, &models.User{ID: 1}))
			w := httptest.NewRecorder()
			New(sl.Discard(), svc).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
			svc.AssertExpectations(t)
		})
	}
}
