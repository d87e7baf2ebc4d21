package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/jobtrail/internal/model"
	"github.com/hitoshi/jobtrail/internal/profile"
	"github.com/hitoshi/jobtrail/internal/storage"
)

// maxMultipartMemory はマルチパート解析時にメモリに保持する上限。
const maxMultipartMemory = 1 << 20

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	Get(ctx context.Context, userID string) (*model.Profile, error)
	Update(ctx context.Context, userID, displayName string) (*model.Profile, error)
	UploadAvatar(ctx context.Context, userID string, r io.Reader) (*model.Profile, error)
	UploadResume(ctx context.Context, userID string, r io.Reader) (*model.Profile, error)
	SignedURL(ctx context.Context, userID, bucket, path string) (*profile.SignedURL, error)
}

// ProfileHandler はプロフィールとファイルアップロードのHTTPハンドラー。
type ProfileHandler struct {
	service   ProfileServiceInterface
	validator *RequestValidator
	maxUpload int64
}

// NewProfileHandler はProfileHandlerを生成する。maxUploadはリクエストボディの上限バイト数。
func NewProfileHandler(service ProfileServiceInterface, validator *RequestValidator, maxUpload int64) *ProfileHandler {
	return &ProfileHandler{service: service, validator: validator, maxUpload: maxUpload}
}

type profileRequest struct {
	DisplayName string `json:"display_name" validate:"max=100"`
}

type profileResponse struct {
	DisplayName    string                `json:"display_name"`
	AvatarPath     string                `json:"avatar_path"`
	ResumePath     string                `json:"resume_path"`
	ResumeAnalysis *model.ResumeAnalysis `json:"resume_analysis"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

type signedURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

func toProfileResponse(p *model.Profile) profileResponse {
	return profileResponse{
		DisplayName:    p.DisplayName,
		AvatarPath:     p.AvatarPath,
		ResumePath:     p.ResumePath,
		ResumeAnalysis: p.ResumeAnalysis,
		UpdatedAt:      p.UpdatedAt,
	}
}

// Get は自分のプロフィールを返す。
// GET /api/profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	p, err := h.service.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

// Update は表示名を更新する。
// PUT /api/profile
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req profileRequest
	if err := decodeJSON(r, &req, false); err != nil {
		handleServiceError(w, err)
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		handleServiceError(w, err)
		return
	}
	p, err := h.service.Update(r.Context(), userID, req.DisplayName)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

// UploadAvatar はアバター画像をアップロードする。
// POST /api/profile/avatar (multipart/form-data, field: file)
func (h *ProfileHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, h.service.UploadAvatar)
}

// UploadResume は履歴書PDFをアップロードする。
// POST /api/profile/resume (multipart/form-data, field: file)
func (h *ProfileHandler) UploadResume(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, h.service.UploadResume)
}

type uploadFunc func(ctx context.Context, userID string, r io.Reader) (*model.Profile, error)

func (h *ProfileHandler) upload(w http.ResponseWriter, r *http.Request, fn uploadFunc) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if h.maxUpload > 0 {
		// マルチパートのヘッダー分の余裕を持たせる
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+maxMultipartMemory)
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeAPIErrorResponse(w, http.StatusRequestEntityTooLarge,
				model.NewValidationError("file", "ファイルサイズが上限を超えています"))
			return
		}
		handleServiceError(w, model.NewInvalidRequestError())
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		handleServiceError(w, model.NewValidationError("file", "必須です"))
		return
	}
	defer file.Close()

	p, err := fn(r.Context(), userID, file)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

// SignedURL は自分のファイルに対する期限付きURLを発行する。
// pathを省略した場合はプロフィールに登録済みのパスを使う。
// GET /api/profile/files/{bucket}/signed-url?path=...
func (h *ProfileHandler) SignedURL(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	bucket := chi.URLParam(r, "bucket")
	path := r.URL.Query().Get("path")
	if path == "" {
		p, err := h.service.Get(r.Context(), userID)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		switch bucket {
		case storage.BucketAvatars:
			path = p.AvatarPath
		case storage.BucketResumes:
			path = p.ResumePath
		}
		if path == "" {
			handleServiceError(w, model.NewFileForbiddenError())
			return
		}
	}

	signed, err := h.service.SignedURL(r.Context(), userID, bucket, path)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, signedURLResponse{URL: signed.URL, ExpiresAt: signed.ExpiresAt})
}
