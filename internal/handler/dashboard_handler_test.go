package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/jobtrail/internal/model"
)

type mockReminderRunner struct {
	runFn func(ctx context.Context, userID string) (int, error)
}

func (m *mockReminderRunner) RunForUser(ctx context.Context, userID string) (int, error) {
	if m.runFn != nil {
		return m.runFn(ctx, userID)
	}
	return 0, nil
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error { return m.err }

func TestDashboardHandler_Analytics_Summarizes(t *testing.T) {
	apps := &mockApplicationService{
		listFn: func(ctx context.Context, userID string) ([]*model.Application, error) {
			d := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
			return []*model.Application{
				{ID: "1", Status: model.StatusApplied, DateApplied: d},
				{ID: "2", Status: model.StatusInterview, DateApplied: d},
				{ID: "3", Status: model.StatusOffer, DateApplied: d},
				{ID: "4", Status: model.StatusRejected, DateApplied: d},
			}, nil
		},
	}
	h := NewDashboardHandler(apps, &mockReminderRunner{})

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/analytics", nil), "user-123")
	w := httptest.NewRecorder()
	h.Analytics(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	got := decodeBody(t, w)
	if got["total"] != float64(4) {
		t.Errorf("total = %v, want 4", got["total"])
	}
	counts := got["countsByStatus"].(map[string]any)
	if counts["interview"] != float64(1) {
		t.Errorf("countsByStatus.interview = %v", counts["interview"])
	}
}

func TestDashboardHandler_CheckReminders(t *testing.T) {
	runner := &mockReminderRunner{
		runFn: func(ctx context.Context, userID string) (int, error) {
			if userID != "user-123" {
				t.Errorf("userID = %q", userID)
			}
			return 2, nil
		},
	}
	h := NewDashboardHandler(&mockApplicationService{}, runner)

	req := withUserID(httptest.NewRequest(http.MethodPost, "/api/reminders/check", nil), "user-123")
	w := httptest.NewRecorder()
	h.CheckReminders(w, req)

	if got := decodeBody(t, w); got["processed"] != float64(2) {
		t.Errorf("processed = %v, want 2", got["processed"])
	}
}

func TestDashboardHandler_CheckReminders_Error(t *testing.T) {
	runner := &mockReminderRunner{
		runFn: func(ctx context.Context, userID string) (int, error) { return 0, errors.New("db down") },
	}
	h := NewDashboardHandler(&mockApplicationService{}, runner)

	req := withUserID(httptest.NewRequest(http.MethodPost, "/api/reminders/check", nil), "user-123")
	w := httptest.NewRecorder()
	h.CheckReminders(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		db         HealthChecker
		wantStatus int
	}{
		{"DB正常", &mockHealthChecker{}, http.StatusOK},
		{"DB異常", &mockHealthChecker{err: errors.New("connection refused")}, http.StatusServiceUnavailable},
		{"DB未設定", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			NewHealthHandler(tt.db)(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}
