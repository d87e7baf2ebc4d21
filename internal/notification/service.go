package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/jobtrail/internal/model"
	"github.com/hitoshi/jobtrail/internal/repository"
)

// ListLimit は一覧取得で返す通知の最大件数。
const ListLimit = 50

// Service は通知の取得・作成・既読化と変更イベントの配信を行う。
type Service struct {
	repo   repository.NotificationRepository
	broker Broker
	logger *slog.Logger
	now    func() time.Time
}

// NewService はServiceを生成する。
func NewService(repo repository.NotificationRepository, broker Broker, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		broker: broker,
		logger: logger,
		now:    time.Now,
	}
}

// List は最新の通知をcreated_at降順で返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Notification, error) {
	list, err := s.repo.ListByUser(ctx, userID, ListLimit)
	if err != nil {
		return nil, fmt.Errorf("通知一覧の取得に失敗しました: %w", err)
	}
	return list, nil
}

// UnreadCount は未読件数を返す。
func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	n, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("未読件数の取得に失敗しました: %w", err)
	}
	return n, nil
}

// Create は通知を保存し、INSERTイベントを配信する。
// applicationIDは空でもよい。配信の失敗は保存結果に影響しない。
func (s *Service) Create(ctx context.Context, userID, applicationID, message string) (*model.Notification, error) {
	n := &model.Notification{
		ID:            uuid.New().String(),
		UserID:        userID,
		ApplicationID: applicationID,
		Message:       message,
		CreatedAt:     s.now(),
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("通知の作成に失敗しました: %w", err)
	}
	s.publish(ctx, userID, Event{Type: EventInsert, Notification: n})
	return n, nil
}

// MarkRead は通知を既読にし、UPDATEイベントを配信する。
func (s *Service) MarkRead(ctx context.Context, userID, id string) (*model.Notification, error) {
	n, err := s.repo.MarkRead(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("通知の既読化に失敗しました: %w", err)
	}
	if n == nil {
		return nil, model.NewNotificationNotFoundError(id)
	}
	s.publish(ctx, userID, Event{Type: EventUpdate, Notification: n})
	return n, nil
}

// MarkAllRead は未読通知をすべて既読にする。
// 1件以上更新した場合、NotificationがnilのUPDATEイベントを配信する。
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	updated, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("通知の一括既読化に失敗しました: %w", err)
	}
	if updated > 0 {
		s.publish(ctx, userID, Event{Type: EventUpdate})
	}
	return updated, nil
}

// Subscribe はユーザーの変更イベントを購読する。
func (s *Service) Subscribe(ctx context.Context, userID string) (<-chan Event, func(), error) {
	return s.broker.Subscribe(ctx, userID)
}

func (s *Service) publish(ctx context.Context, userID string, ev Event) {
	if err := s.broker.Publish(ctx, userID, ev); err != nil {
		s.logger.Warn("通知イベントの配信に失敗しました",
			slog.String("user_id", userID),
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
	}
}
