// Package application は応募記録のドメインロジックを提供する。
package application

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/jobtrail/internal/metrics"
	"github.com/hitoshi/jobtrail/internal/model"
	"github.com/hitoshi/jobtrail/internal/repository"
	"github.com/hitoshi/jobtrail/internal/security"
)

// maxFieldLength は会社名・職種の最大文字数。
const maxFieldLength = 200

// csvHeader はCSVエクスポートのヘッダー行。
var csvHeader = []string{"id", "company", "position", "status", "date_applied", "location", "url", "interview_date"}

// Notifier はステータス変更時の通知作成を行うインターフェース。
type Notifier interface {
	Create(ctx context.Context, userID, applicationID, message string) (*model.Notification, error)
}

// Service は応募記録のサービス層。
type Service struct {
	repo     repository.ApplicationRepository
	guard    security.URLGuard
	notifier Notifier
	metrics  metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	repo repository.ApplicationRepository,
	guard security.URLGuard,
	notifier Notifier,
	recorder metrics.Recorder,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:     repo,
		guard:    guard,
		notifier: notifier,
		metrics:  recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// List はユーザーの応募記録を新しい順に返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Application, error) {
	apps, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("応募記録一覧の取得に失敗しました: %w", err)
	}
	return apps, nil
}

// Get は応募記録を1件取得する。
func (s *Service) Get(ctx context.Context, userID, id string) (*model.Application, error) {
	app, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("応募記録の取得に失敗しました: %w", err)
	}
	if app == nil {
		return nil, model.NewApplicationNotFoundError(id)
	}
	return app, nil
}

// Create は応募記録を作成する。フォームからsavedを指定することはできない。
func (s *Service) Create(ctx context.Context, userID string, in model.ApplicationInput) (*model.Application, error) {
	if in.Status == model.StatusSaved {
		return nil, model.NewValidationError("status", "savedは求人検索からの取り込みでのみ設定できます")
	}
	if err := s.normalize(&in); err != nil {
		return nil, err
	}

	now := s.now()
	app := &model.Application{
		ID:            uuid.New().String(),
		UserID:        userID,
		Company:       in.Company,
		Position:      in.Position,
		Status:        in.Status,
		DateApplied:   in.DateApplied,
		URL:           in.URL,
		Location:      in.Location,
		InterviewDate: in.InterviewDate,
		Notes:         in.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if app.DateApplied.IsZero() {
		app.DateApplied = today(now)
	}
	if err := s.repo.Create(ctx, app); err != nil {
		return nil, fmt.Errorf("応募記録の作成に失敗しました: %w", err)
	}

	s.afterTransition(ctx, app)
	return app, nil
}

// Update は編集フォームの内容で応募記録を上書きする。
// savedの記録はApplyNow以外でステータスを変えられず、他の記録をsavedに戻すこともできない。
func (s *Service) Update(ctx context.Context, userID, id string, in model.ApplicationInput) (*model.Application, error) {
	current, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := checkSavedTransition(current.Status, in.Status); err != nil {
		return nil, err
	}
	if err := s.normalize(&in); err != nil {
		return nil, err
	}

	app := *current
	app.Company = in.Company
	app.Position = in.Position
	app.Status = in.Status
	app.URL = in.URL
	app.Location = in.Location
	app.InterviewDate = in.InterviewDate
	app.Notes = in.Notes
	if !in.DateApplied.IsZero() {
		app.DateApplied = in.DateApplied
	}
	app.UpdatedAt = s.now()

	ok, err := s.repo.Update(ctx, &app)
	if err != nil {
		return nil, fmt.Errorf("応募記録の更新に失敗しました: %w", err)
	}
	if !ok {
		return nil, model.NewApplicationNotFoundError(id)
	}

	if app.Status != current.Status {
		s.afterTransition(ctx, &app)
	}
	return &app, nil
}

// Delete は応募記録を削除する。紐づくメモもCASCADE削除される。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	ok, err := s.repo.Delete(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("応募記録の削除に失敗しました: %w", err)
	}
	if !ok {
		return model.NewApplicationNotFoundError(id)
	}
	return nil
}

// UpdateStatus はステータスのみを変更する。ボードのドラッグ操作から呼ばれる。
func (s *Service) UpdateStatus(ctx context.Context, userID, id string, status model.Status) (*model.Application, error) {
	if !status.Valid() {
		return nil, model.NewInvalidStatusError(string(status))
	}
	current, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if current.Status == status {
		return current, nil
	}
	if err := checkSavedTransition(current.Status, status); err != nil {
		return nil, err
	}

	ok, err := s.repo.UpdateStatus(ctx, userID, id, status)
	if err != nil {
		return nil, fmt.Errorf("ステータスの更新に失敗しました: %w", err)
	}
	if !ok {
		return nil, model.NewApplicationNotFoundError(id)
	}

	app := *current
	app.Status = status
	if status != model.StatusInterview {
		app.InterviewDate = nil
	}
	s.afterTransition(ctx, &app)
	return &app, nil
}

// ApplyNow はsavedの記録をappliedに遷移させ、応募日を今日に設定する。
// 求人URLが未登録の場合は何も書き込まない。
func (s *Service) ApplyNow(ctx context.Context, userID, id string) (*model.Application, error) {
	current, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if current.Status != model.StatusSaved {
		return nil, model.NewApplyNotAllowedError(current.Status)
	}
	if strings.TrimSpace(current.URL) == "" {
		return nil, model.NewMissingJobURLError()
	}

	appliedOn := today(s.now())
	ok, err := s.repo.MarkApplied(ctx, userID, id, appliedOn)
	if err != nil {
		return nil, fmt.Errorf("応募済みへの更新に失敗しました: %w", err)
	}
	if !ok {
		// 取得後に別リクエストで遷移済み
		return nil, model.NewApplyNotAllowedError(current.Status)
	}

	app := *current
	app.Status = model.StatusApplied
	app.DateApplied = appliedOn
	s.afterTransition(ctx, &app)
	return &app, nil
}

// ImportFromSearch は求人検索結果をsaved状態の応募記録として取り込む。
// タグはメモ欄に畳み込む。
func (s *Service) ImportFromSearch(ctx context.Context, userID string, job model.Job) (*model.Application, error) {
	in := model.ApplicationInput{
		Company:  job.Company,
		Position: job.Position,
		Status:   model.StatusSaved,
		URL:      job.URL,
		Location: job.Location,
	}
	if len(job.Tags) > 0 {
		in.Notes = "Tags: " + strings.Join(job.Tags, ", ")
	}
	if strings.TrimSpace(in.Company) == "" {
		in.Company = "Unknown"
	}
	if err := s.normalize(&in); err != nil {
		return nil, err
	}

	now := s.now()
	app := &model.Application{
		ID:          uuid.New().String(),
		UserID:      userID,
		Company:     in.Company,
		Position:    in.Position,
		Status:      model.StatusSaved,
		DateApplied: today(now),
		URL:         in.URL,
		Location:    in.Location,
		Notes:       in.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, app); err != nil {
		return nil, fmt.Errorf("求人の取り込みに失敗しました: %w", err)
	}

	s.logger.Info("求人を取り込みました",
		slog.String("user_id", userID),
		slog.String("job_id", job.ID),
		slog.String("application_id", app.ID),
	)
	return app, nil
}

// ExportCSV はユーザーの応募記録をフラットなCSVとしてwに書き出す。
func (s *Service) ExportCSV(ctx context.Context, userID string, w io.Writer) error {
	apps, err := s.List(ctx, userID)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("CSVの書き込みに失敗しました: %w", err)
	}
	for _, app := range apps {
		interview := ""
		if app.InterviewDate != nil {
			interview = app.InterviewDate.UTC().Format(time.RFC3339)
		}
		record := []string{
			app.ID,
			app.Company,
			app.Position,
			string(app.Status),
			app.DateApplied.Format(model.DateLayout),
			app.Location,
			app.URL,
			interview,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("CSVの書き込みに失敗しました: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("CSVの書き込みに失敗しました: %w", err)
	}
	return nil
}

// normalize は入力値をトリムし、検証する。
// interview以外のステータスでは面接日時をクリアする。
func (s *Service) normalize(in *model.ApplicationInput) error {
	in.Company = strings.TrimSpace(in.Company)
	in.Position = strings.TrimSpace(in.Position)
	in.URL = strings.TrimSpace(in.URL)
	in.Location = strings.TrimSpace(in.Location)

	if in.Company == "" {
		return model.NewValidationError("company", "必須です")
	}
	if utf8.RuneCountInString(in.Company) > maxFieldLength {
		return model.NewValidationError("company", fmt.Sprintf("%d文字以内で入力してください", maxFieldLength))
	}
	if in.Position == "" {
		return model.NewValidationError("position", "必須です")
	}
	if utf8.RuneCountInString(in.Position) > maxFieldLength {
		return model.NewValidationError("position", fmt.Sprintf("%d文字以内で入力してください", maxFieldLength))
	}
	if !in.Status.Valid() {
		return model.NewInvalidStatusError(string(in.Status))
	}
	if in.URL != "" {
		if err := s.validateURL(in.URL); err != nil {
			return err
		}
	}
	if in.Status != model.StatusInterview {
		in.InterviewDate = nil
	}
	return nil
}

func (s *Service) validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return model.NewInvalidURLError("URLの形式が不正です")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return model.NewInvalidURLError("http または https のURLを指定してください")
	}
	if u.Host == "" {
		return model.NewInvalidURLError("ホスト名がありません")
	}
	if err := s.guard.ValidateURL(raw); err != nil {
		s.logger.Warn("求人URLがブロックされました",
			slog.String("url", raw),
			slog.String("reason", err.Error()),
		)
		return model.NewSSRFBlockedError()
	}
	return nil
}

// afterTransition はステータス遷移のメトリクスを記録し、
// interviewまたはofferへの遷移で通知を作成する。
func (s *Service) afterTransition(ctx context.Context, app *model.Application) {
	s.metrics.RecordStatusTransition(string(app.Status))

	if app.Status != model.StatusInterview && app.Status != model.StatusOffer {
		return
	}
	msg := fmt.Sprintf("%s: %s に更新されました", app.Company, app.Status)
	if _, err := s.notifier.Create(ctx, app.UserID, app.ID, msg); err != nil {
		s.logger.Error("ステータス変更通知の作成に失敗しました",
			slog.String("application_id", app.ID),
			slog.String("error", err.Error()),
		)
	}
}

// checkSavedTransition はsavedに関する遷移制約を検証する。
func checkSavedTransition(from, to model.Status) error {
	switch {
	case from == to:
		return nil
	case to == model.StatusSaved:
		return model.NewValidationError("status", "savedは求人検索からの取り込みでのみ設定できます")
	case from == model.StatusSaved:
		return model.NewValidationError("status", "savedの記録は応募操作でのみappliedに遷移できます")
	}
	return nil
}

func today(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
