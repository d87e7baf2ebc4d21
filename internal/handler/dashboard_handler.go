package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/jobtrail/internal/analytics"
	"github.com/hitoshi/jobtrail/internal/model"
)

// ApplicationLister は集計対象の応募記録を取得するインターフェース。
type ApplicationLister interface {
	List(ctx context.Context, userID string) ([]*model.Application, error)
}

// ReminderRunner はユーザー単位で期日到来リマインダーを処理するインターフェース。
type ReminderRunner interface {
	RunForUser(ctx context.Context, userID string) (int, error)
}

// HealthChecker はDB接続確認のインターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// DashboardHandler は集計とリマインダー確認のHTTPハンドラー。
type DashboardHandler struct {
	apps      ApplicationLister
	reminders ReminderRunner
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(apps ApplicationLister, reminders ReminderRunner) *DashboardHandler {
	return &DashboardHandler{apps: apps, reminders: reminders}
}

// Analytics は応募状況の集計を返す。
// GET /api/analytics
func (h *DashboardHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	apps, err := h.apps.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics.Summarize(apps))
}

// CheckReminders は期日が到来した自分のリマインダーを即時に処理する。
// POST /api/reminders/check
func (h *DashboardHandler) CheckReminders(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	processed, err := h.reminders.RunForUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"processed": processed})
}

// NewHealthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func NewHealthHandler(db HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
