// Package repository はデータ永続化のインターフェースを定義する。
// すべての検索・更新はuser_idでスコープし、所有者以外のレコードには触れない。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/jobtrail/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithIdentity はユーザー、identity、空のプロフィールを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// UpdateContact はメールアドレスと名前を更新する。
	UpdateContact(ctx context.Context, id, email, name string, now time.Time) error

	// DeleteByID は指定IDのユーザーを削除する。
	// identities、sessions、profiles、applications、notes、notificationsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// Extend は有効なセッションの有効期限を延長する。対象がない場合はfalseを返す。
	Extend(ctx context.Context, id string, expiresAt time.Time) (bool, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteByUserID(ctx context.Context, userID string) error
}

// ApplicationRepository は応募記録の永続化インターフェース。
type ApplicationRepository interface {
	// ListByUser はユーザーの応募記録をcreated_at降順で返す。
	ListByUser(ctx context.Context, userID string) ([]*model.Application, error)

	// FindByID は指定IDの応募記録を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID, id string) (*model.Application, error)

	Create(ctx context.Context, app *model.Application) error

	// Update は編集フォームで変更可能な項目を上書きする。対象がない場合はfalseを返す。
	Update(ctx context.Context, app *model.Application) (bool, error)

	// UpdateStatus はステータスのみを更新する。
	// interview以外への遷移ではinterview_dateをクリアする。
	UpdateStatus(ctx context.Context, userID, id string, status model.Status) (bool, error)

	// MarkApplied はsaved状態の記録をappliedに遷移させ、応募日を設定する。
	// saved以外の場合は更新せずfalseを返す。
	MarkApplied(ctx context.Context, userID, id string, appliedOn time.Time) (bool, error)

	UpdateMatchAnalysis(ctx context.Context, userID, id string, analysis *model.MatchAnalysis) (bool, error)

	Delete(ctx context.Context, userID, id string) (bool, error)
}

// NoteRepository はメモの永続化インターフェース。
type NoteRepository interface {
	ListByApplication(ctx context.Context, userID, applicationID string) ([]*model.Note, error)
	Create(ctx context.Context, note *model.Note) error
	Delete(ctx context.Context, userID, id string) (bool, error)

	// ListDueReminders はreminder_date <= now かつ未送信のメモを古い順にlimit件返す。
	// userIDが空の場合は全ユーザーを対象とする。
	ListDueReminders(ctx context.Context, userID string, now time.Time, limit int) ([]*model.DueReminder, error)

	// MarkRemindersSent は指定メモのreminder_sent_atを設定する。
	MarkRemindersSent(ctx context.Context, ids []string, sentAt time.Time) error
}

// NotificationRepository は通知の永続化インターフェース。
type NotificationRepository interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]*model.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	Create(ctx context.Context, n *model.Notification) error

	// MarkRead は通知を既読にし、更新後の通知を返す。見つからない場合はnilを返す。
	MarkRead(ctx context.Context, userID, id string) (*model.Notification, error)

	// MarkAllRead は未読通知をすべて既読にし、更新件数を返す。
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// ProfileRepository はプロフィールの永続化インターフェース。
type ProfileRepository interface {
	// FindByUserID はプロフィールを取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Profile, error)

	UpdateDisplayName(ctx context.Context, userID, displayName string) (*model.Profile, error)
	UpdateAvatarPath(ctx context.Context, userID, path string) error

	// UpdateResumePath は履歴書パスを更新し、既存の分析結果をクリアする。
	UpdateResumePath(ctx context.Context, userID, path string) error

	UpdateResumeAnalysis(ctx context.Context, userID string, analysis *model.ResumeAnalysis) error
}
