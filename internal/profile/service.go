// Package profile はプロフィールとアップロードファイルのドメインロジックを提供する。
package profile

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/jobtrail/internal/metrics"
	"github.com/hitoshi/jobtrail/internal/model"
	"github.com/hitoshi/jobtrail/internal/repository"
	"github.com/hitoshi/jobtrail/internal/storage"
)

// maxDisplayNameLength は表示名の最大文字数。
const maxDisplayNameLength = 100

// avatarExtensions は許可するアバター画像の形式と拡張子。
var avatarExtensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/gif":  "gif",
	"image/webp": "webp",
}

const resumeContentType = "application/pdf"

// URLSigner は署名付きURLを発行するインターフェース。
type URLSigner interface {
	SignedURL(bucket, path string) (string, time.Time, error)
}

// ResumeAnalyzer は保存済み履歴書を解析し、結果をプロフィールへ保存する。
type ResumeAnalyzer interface {
	AnalyzeResume(ctx context.Context, userID string) (*model.ResumeAnalysis, error)
}

// SignedURL は発行した署名付きURLと有効期限。
type SignedURL struct {
	URL       string
	ExpiresAt time.Time
}

// Service はプロフィールのサービス層。
type Service struct {
	repo    repository.ProfileRepository
	store   storage.Store
	signer  URLSigner
	maxSize int64
	logger  *slog.Logger

	analyzer        ResumeAnalyzer
	recorder        metrics.Recorder
	analysisTimeout time.Duration
	background      sync.WaitGroup
}

// NewService はServiceの新しいインスタンスを生成する。
// maxSizeはアップロードを受け付ける最大バイト数。
func NewService(repo repository.ProfileRepository, store storage.Store, signer URLSigner, maxSize int64, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		store:    store,
		signer:   signer,
		maxSize:  maxSize,
		logger:   logger,
		recorder: metrics.Nop{},
	}
}

// SetResumeAnalyzer は履歴書アップロード後にバックグラウンドで実行する解析を設定する。
// timeoutが0以下の場合は解析側のタイムアウトのみに従う。
func (s *Service) SetResumeAnalyzer(a ResumeAnalyzer, rec metrics.Recorder, timeout time.Duration) {
	s.analyzer = a
	if rec != nil {
		s.recorder = rec
	}
	s.analysisTimeout = timeout
}

// Wait は実行中のバックグラウンド解析が完了するまで待つ。
func (s *Service) Wait() {
	s.background.Wait()
}

// Get はプロフィールを返す。未作成の場合は空のプロフィールを返す。
func (s *Service) Get(ctx context.Context, userID string) (*model.Profile, error) {
	p, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if p == nil {
		return &model.Profile{UserID: userID}, nil
	}
	return p, nil
}

// Update は表示名を更新する。
func (s *Service) Update(ctx context.Context, userID, displayName string) (*model.Profile, error) {
	displayName = strings.TrimSpace(displayName)
	if utf8.RuneCountInString(displayName) > maxDisplayNameLength {
		return nil, model.NewValidationError("displayName", fmt.Sprintf("%d文字以内で入力してください", maxDisplayNameLength))
	}
	p, err := s.repo.UpdateDisplayName(ctx, userID, displayName)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	return p, nil
}

// UploadAvatar はアバター画像を保存し、パスを記録する。
// 形式は内容から判定し、申告されたContent-Typeは使わない。
func (s *Service) UploadAvatar(ctx context.Context, userID string, r io.Reader) (*model.Profile, error) {
	br, contentType, err := sniff(r)
	if err != nil {
		return nil, err
	}
	ext, ok := avatarExtensions[contentType]
	if !ok {
		return nil, model.NewUnsupportedFileError(contentType)
	}

	current, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("%s/%s.%s", userID, uuid.New().String(), ext)
	if err := s.put(ctx, storage.BucketAvatars, path, br); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateAvatarPath(ctx, userID, path); err != nil {
		return nil, fmt.Errorf("アバターの登録に失敗しました: %w", err)
	}

	if current.AvatarPath != "" && current.AvatarPath != path {
		if err := s.store.Delete(ctx, storage.BucketAvatars, current.AvatarPath); err != nil {
			s.logger.Warn("旧アバターの削除に失敗しました",
				slog.String("user_id", userID),
				slog.String("path", current.AvatarPath),
				slog.String("error", err.Error()),
			)
		}
	}
	return s.Get(ctx, userID)
}

// UploadResume は履歴書PDFを保存する。既存の履歴書は上書きされ、分析結果はクリアされる。
// 解析が設定されている場合は保存後にバックグラウンドで再解析する。
func (s *Service) UploadResume(ctx context.Context, userID string, r io.Reader) (*model.Profile, error) {
	br, contentType, err := sniff(r)
	if err != nil {
		return nil, err
	}
	if contentType != resumeContentType {
		return nil, model.NewUnsupportedFileError(contentType)
	}

	path := ResumePath(userID)
	if err := s.put(ctx, storage.BucketResumes, path, br); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateResumePath(ctx, userID, path); err != nil {
		return nil, fmt.Errorf("履歴書の登録に失敗しました: %w", err)
	}
	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.analyzeInBackground(ctx, userID)
	return p, nil
}

// analyzeInBackground はリクエストのキャンセルから切り離して履歴書解析を実行する。
func (s *Service) analyzeInBackground(ctx context.Context, userID string) {
	if s.analyzer == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		if s.analysisTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.analysisTimeout)
			defer cancel()
		}
		_, err := s.analyzer.AnalyzeResume(ctx, userID)
		s.recorder.RecordAnalysis("resume", metrics.Outcome(err))
		if err != nil {
			s.logger.Error("履歴書のバックグラウンド解析に失敗しました",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// SignedURL は自分のファイルに対する署名付きURLを発行する。
func (s *Service) SignedURL(_ context.Context, userID, bucket, path string) (*SignedURL, error) {
	if !storage.ValidBucket(bucket) || !Owns(userID, bucket, path) {
		return nil, model.NewFileForbiddenError()
	}
	u, exp, err := s.signer.SignedURL(bucket, path)
	if err != nil {
		return nil, fmt.Errorf("署名付きURLの発行に失敗しました: %w", err)
	}
	return &SignedURL{URL: u, ExpiresAt: exp}, nil
}

// DeleteFiles はユーザーのアバターと履歴書をすべて削除する。
func (s *Service) DeleteFiles(ctx context.Context, userID string) error {
	if err := s.store.DeletePrefix(ctx, storage.BucketAvatars, userID); err != nil {
		return fmt.Errorf("アバターの削除に失敗しました: %w", err)
	}
	if err := s.store.Delete(ctx, storage.BucketResumes, ResumePath(userID)); err != nil {
		return fmt.Errorf("履歴書の削除に失敗しました: %w", err)
	}
	return nil
}

func (s *Service) put(ctx context.Context, bucket, path string, r io.Reader) error {
	if s.maxSize <= 0 {
		if err := s.store.Put(ctx, bucket, path, r); err != nil {
			return fmt.Errorf("ファイルの保存に失敗しました: %w", err)
		}
		return nil
	}
	lr := &limitReader{r: r, remaining: s.maxSize}
	if err := s.store.Put(ctx, bucket, path, lr); err != nil {
		if lr.exceeded {
			return model.NewValidationError("file", fmt.Sprintf("%dバイト以下のファイルを指定してください", s.maxSize))
		}
		return fmt.Errorf("ファイルの保存に失敗しました: %w", err)
	}
	return nil
}

// ResumePath はユーザーの履歴書のバケット内パスを返す。
func ResumePath(userID string) string {
	return userID + ".pdf"
}

// Owns はbucket内のpathがユーザーのものかを返す。
func Owns(userID, bucket, path string) bool {
	if userID == "" {
		return false
	}
	switch bucket {
	case storage.BucketAvatars:
		return strings.HasPrefix(path, userID+"/") && !strings.Contains(path, "..")
	case storage.BucketResumes:
		return path == ResumePath(userID)
	default:
		return false
	}
}

// sniff は先頭512バイトから形式を判定する。
func sniff(r io.Reader) (io.Reader, string, error) {
	br := bufio.NewReaderSize(r, 512)
	head, err := br.Peek(512)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, "", fmt.Errorf("アップロードの読み取りに失敗しました: %w", err)
	}
	if len(head) == 0 {
		return nil, "", model.NewValidationError("file", "空のファイルです")
	}
	ct := http.DetectContentType(head)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return br, ct, nil
}

// limitReader はremainingを超えて読み取るとエラーを返す。
type limitReader struct {
	r         io.Reader
	remaining int64
	exceeded  bool
}

func (l *limitReader) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		// 上限ちょうどで終わるかを1バイト読んで確認する
		var one [1]byte
		n, err := l.r.Read(one[:])
		if n > 0 {
			l.exceeded = true
			return 0, fmt.Errorf("upload exceeds limit")
		}
		return 0, err
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	return n, err
}
