package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/jobtrail/internal/model"
	"github.com/hitoshi/jobtrail/internal/storage"
)

// TokenVerifier は署名付きURLのトークンを検証するインターフェース。
type TokenVerifier interface {
	Verify(token, bucket, path string) error
}

// ObjectOpener は保存済みオブジェクトを読み出すインターフェース。
type ObjectOpener interface {
	Open(ctx context.Context, bucket, path string) (io.ReadCloser, error)
}

// FileHandler は署名付きURLによるファイル配信を行う。
type FileHandler struct {
	verifier TokenVerifier
	store    ObjectOpener
}

// NewFileHandler はFileHandlerを生成する。
func NewFileHandler(verifier TokenVerifier, store ObjectOpener) *FileHandler {
	return &FileHandler{verifier: verifier, store: store}
}

// Serve はトークンを検証してオブジェクトを返す。
// GET /files/{bucket}/*?token=...
func (h *FileHandler) Serve(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	objectPath := chi.URLParam(r, "*")
	token := r.URL.Query().Get("token")

	if token == "" || h.verifier.Verify(token, bucket, objectPath) != nil {
		writeAPIErrorResponse(w, http.StatusForbidden, model.NewFileForbiddenError())
		return
	}

	obj, err := h.store.Open(r.Context(), bucket, objectPath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidPath) {
			http.NotFound(w, r)
			return
		}
		handleServiceError(w, err)
		return
	}
	defer obj.Close()

	contentType := mime.TypeByExtension(strings.ToLower(path.Ext(objectPath)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj); err != nil {
		slog.Warn("failed to stream file",
			slog.String("bucket", bucket),
			slog.String("error", err.Error()),
		)
	}
}
