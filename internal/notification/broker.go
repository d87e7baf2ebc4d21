// Package notification はユーザー宛通知の管理と変更イベントの配信を提供する。
package notification

import (
	"context"
	"time"

	"github.com/hitoshi/jobtrail/internal/model"
)

// EventType は通知の変更種別。
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
)

// Event は通知テーブルの変更イベント。
// 一括既読化の場合、Notificationはnilとなる。
type Event struct {
	Type         EventType
	Notification *model.Notification
}

// Broker はユーザー単位のトピックで変更イベントを配信する。
type Broker interface {
	Publish(ctx context.Context, userID string, ev Event) error
	// Subscribe はイベントを受信するチャネルと購読解除関数を返す。
	// 購読解除後、チャネルはクローズされる。
	Subscribe(ctx context.Context, userID string) (<-chan Event, func(), error)
}

// Topic はユーザーごとのトピック名を返す。
func Topic(userID string) string {
	return "notifications:" + userID
}

// wireEvent はブローカー間で送受信するJSON表現。
type wireEvent struct {
	Type         EventType         `json:"type"`
	Notification *wireNotification `json:"notification,omitempty"`
}

type wireNotification struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	ApplicationID string    `json:"applicationId,omitempty"`
	Message       string    `json:"message"`
	IsRead        bool      `json:"isRead"`
	CreatedAt     time.Time `json:"createdAt"`
}

func toWire(ev Event) wireEvent {
	w := wireEvent{Type: ev.Type}
	if n := ev.Notification; n != nil {
		w.Notification = &wireNotification{
			ID:            n.ID,
			UserID:        n.UserID,
			ApplicationID: n.ApplicationID,
			Message:       n.Message,
			IsRead:        n.IsRead,
			CreatedAt:     n.CreatedAt,
		}
	}
	return w
}

func fromWire(w wireEvent) Event {
	ev := Event{Type: w.Type}
	if n := w.Notification; n != nil {
		ev.Notification = &model.Notification{
			ID:            n.ID,
			UserID:        n.UserID,
			ApplicationID: n.ApplicationID,
			Message:       n.Message,
			IsRead:        n.IsRead,
			CreatedAt:     n.CreatedAt,
		}
	}
	return ev
}
