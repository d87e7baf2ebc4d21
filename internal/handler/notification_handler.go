package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/jobtrail/internal/model"
	"github.com/hitoshi/jobtrail/internal/notification"
)

// defaultHeartbeatInterval はSSE接続を維持するためのコメント送信間隔。
const defaultHeartbeatInterval = 25 * time.Second

// NotificationServiceInterface は通知ハンドラーが必要とするサービスインターフェース。
type NotificationServiceInterface interface {
	List(ctx context.Context, userID string) ([]*model.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID, id string) (*model.Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Subscribe(ctx context.Context, userID string) (<-chan notification.Event, func(), error)
}

// NotificationHandler は通知のHTTPハンドラー。
type NotificationHandler struct {
	service   NotificationServiceInterface
	heartbeat time.Duration
}

// NewNotificationHandler はNotificationHandlerを生成する。
func NewNotificationHandler(service NotificationServiceInterface) *NotificationHandler {
	return &NotificationHandler{service: service, heartbeat: defaultHeartbeatInterval}
}

type notificationResponse struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	Message       string    `json:"message"`
	IsRead        bool      `json:"is_read"`
	CreatedAt     time.Time `json:"created_at"`
}

type unreadCountResponse struct {
	Count int `json:"count"`
}

type streamEvent struct {
	Type         notification.EventType `json:"type"`
	Notification *notificationResponse  `json:"notification,omitempty"`
}

func toNotificationResponse(n *model.Notification) notificationResponse {
	return notificationResponse{
		ID:            n.ID,
		ApplicationID: n.ApplicationID,
		Message:       n.Message,
		IsRead:        n.IsRead,
		CreatedAt:     n.CreatedAt,
	}
}

// List は通知一覧を新しい順で返す。
// GET /api/notifications
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	items, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	resp := make([]notificationResponse, 0, len(items))
	for _, n := range items {
		resp = append(resp, toNotificationResponse(n))
	}
	writeJSON(w, http.StatusOK, resp)
}

// UnreadCount は未読件数を返す。
// GET /api/notifications/unread-count
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	count, err := h.service.UnreadCount(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, unreadCountResponse{Count: count})
}

// MarkRead は通知を1件既読にする。
// POST /api/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	n, err := h.service.MarkRead(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toNotificationResponse(n))
}

// MarkAllRead は未読通知をすべて既読にする。
// POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	updated, err := h.service.MarkAllRead(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

// Stream は通知の変更をServer-Sent Eventsで配信する。
// 接続直後と変更イベントごとに未読件数を送る。
// GET /api/notifications/stream
func (h *NotificationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	// 購読開始後に件数を取得し、取りこぼしを防ぐ
	events, cancel, err := h.service.Subscribe(ctx, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	defer cancel()

	rc := http.NewResponseController(w)
	// サーバーのWriteTimeoutでストリームが切断されないようにする
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		slog.Warn("failed to clear write deadline", slog.String("error", err.Error()))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := h.sendUnreadCount(ctx, w, userID); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload := streamEvent{Type: ev.Type}
			if ev.Notification != nil {
				n := toNotificationResponse(ev.Notification)
				payload.Notification = &n
			}
			if err := writeSSE(w, "notification", payload); err != nil {
				return
			}
			if err := h.sendUnreadCount(ctx, w, userID); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func (h *NotificationHandler) sendUnreadCount(ctx context.Context, w http.ResponseWriter, userID string) error {
	count, err := h.service.UnreadCount(ctx, userID)
	if err != nil {
		slog.Warn("failed to count unread notifications",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return err
	}
	return writeSSE(w, "unread_count", unreadCountResponse{Count: count})
}

func writeSSE(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
