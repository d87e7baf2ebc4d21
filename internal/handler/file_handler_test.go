package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/jobtrail/internal/storage"
)

type mockVerifier struct {
	valid map[string]bool
}

func (m *mockVerifier) Verify(token, bucket, path string) error {
	if m.valid[token+"|"+bucket+"|"+path] {
		return nil
	}
	return storage.ErrInvalidToken
}

type mockOpener struct {
	objects map[string]string
}

func (m *mockOpener) Open(ctx context.Context, bucket, path string) (io.ReadCloser, error) {
	if body, ok := m.objects[bucket+"/"+path]; ok {
		return io.NopCloser(strings.NewReader(body)), nil
	}
	return nil, storage.ErrNotFound
}

func newFileRequest(bucket, path, query string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/files/"+bucket+"/"+path+query, nil)
	req = withChiURLParam(req, "bucket", bucket)
	return withChiURLParam(req, "*", path)
}

func TestFileHandler_Serve_ValidToken(t *testing.T) {
	h := NewFileHandler(
		&mockVerifier{valid: map[string]bool{"tok|resumes|user-123.pdf": true}},
		&mockOpener{objects: map[string]string{"resumes/user-123.pdf": "%PDF-1.4"}},
	)

	w := httptest.NewRecorder()
	h.Serve(w, newFileRequest("resumes", "user-123.pdf", "?token=tok"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q, want application/pdf", ct)
	}
	if w.Body.String() != "%PDF-1.4" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestFileHandler_Serve_InvalidToken_ReturnsForbidden(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		query string
	}{
		{"トークンなし", "user-123.pdf", ""},
		{"不正なトークン", "user-123.pdf", "?token=bad"},
		{"別パスのトークン", "user-999.pdf", "?token=tok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewFileHandler(
				&mockVerifier{valid: map[string]bool{"tok|resumes|user-123.pdf": true}},
				&mockOpener{objects: map[string]string{"resumes/user-999.pdf": "x"}},
			)
			w := httptest.NewRecorder()
			h.Serve(w, newFileRequest("resumes", tt.path, tt.query))

			if w.Code != http.StatusForbidden {
				t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
			}
		})
	}
}

func TestFileHandler_Serve_MissingObject_ReturnsNotFound(t *testing.T) {
	h := NewFileHandler(
		&mockVerifier{valid: map[string]bool{"tok|avatars|user-123/a.png": true}},
		&mockOpener{},
	)

	w := httptest.NewRecorder()
	h.Serve(w, newFileRequest("avatars", "user-123/a.png", "?token=tok"))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

type failingOpener struct{}

func (failingOpener) Open(ctx context.Context, bucket, path string) (io.ReadCloser, error) {
	return nil, errors.New("disk failure")
}

func TestFileHandler_Serve_StoreError_ReturnsInternalError(t *testing.T) {
	h := NewFileHandler(&mockVerifier{valid: map[string]bool{"tok|avatars|user-123/a.png": true}}, failingOpener{})

	w := httptest.NewRecorder()
	h.Serve(w, newFileRequest("avatars", "user-123/a.png", "?token=tok"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}
