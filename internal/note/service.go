// Package note は応募記録に紐づくメモのドメインロジックを提供する。
package note

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/jobtrail/internal/model"
	"github.com/hitoshi/jobtrail/internal/repository"
	"github.com/hitoshi/jobtrail/internal/security"
)

// MaxContentLength はメモ本文の最大文字数。
const MaxContentLength = 5000

// Service はメモのサービス層。
type Service struct {
	notes     repository.NoteRepository
	apps      repository.ApplicationRepository
	sanitizer security.Sanitizer
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(notes repository.NoteRepository, apps repository.ApplicationRepository, sanitizer security.Sanitizer) *Service {
	return &Service{
		notes:     notes,
		apps:      apps,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// List は応募記録のメモを返す。応募記録が自分のものでない場合はNotFound。
func (s *Service) List(ctx context.Context, userID, applicationID string) ([]*model.Note, error) {
	if err := s.checkOwner(ctx, userID, applicationID); err != nil {
		return nil, err
	}
	notes, err := s.notes.ListByApplication(ctx, userID, applicationID)
	if err != nil {
		return nil, fmt.Errorf("メモ一覧の取得に失敗しました: %w", err)
	}
	return notes, nil
}

// Create はメモを作成する。本文はHTMLを除去してから検証する。
func (s *Service) Create(ctx context.Context, userID, applicationID, content string, reminderDate *time.Time) (*model.Note, error) {
	content = s.sanitizer.Text(content)
	if content == "" {
		return nil, model.NewValidationError("content", "必須です")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return nil, model.NewValidationError("content", fmt.Sprintf("%d文字以内で入力してください", MaxContentLength))
	}
	if err := s.checkOwner(ctx, userID, applicationID); err != nil {
		return nil, err
	}

	n := &model.Note{
		ID:            uuid.New().String(),
		ApplicationID: applicationID,
		UserID:        userID,
		Content:       content,
		ReminderDate:  reminderDate,
		CreatedAt:     s.now(),
	}
	if err := s.notes.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("メモの作成に失敗しました: %w", err)
	}
	return n, nil
}

// Delete はメモを削除する。
func (s *Service) Delete(ctx context.Context, userID, noteID string) error {
	ok, err := s.notes.Delete(ctx, userID, noteID)
	if err != nil {
		return fmt.Errorf("メモの削除に失敗しました: %w", err)
	}
	if !ok {
		return model.NewNoteNotFoundError(noteID)
	}
	return nil
}

func (s *Service) checkOwner(ctx context.Context, userID, applicationID string) error {
	app, err := s.apps.FindByID(ctx, userID, applicationID)
	if err != nil {
		return fmt.Errorf("応募記録の取得に失敗しました: %w", err)
	}
	if app == nil {
		return model.NewApplicationNotFoundError(applicationID)
	}
	return nil
}
