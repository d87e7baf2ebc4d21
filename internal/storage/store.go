// Package storage はアバター画像と履歴書PDFのオブジェクト保存を提供する。
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// バケット名
const (
	BucketAvatars = "avatars"
	BucketResumes = "resumes"
)

var (
	// ErrNotFound はオブジェクトが存在しない場合のエラー。
	ErrNotFound = errors.New("storage: object not found")
	// ErrInvalidPath はバケット名またはパスが不正な場合のエラー。
	ErrInvalidPath = errors.New("storage: invalid bucket or path")
)

// Store はオブジェクトストレージのインターフェース。
// パスはバケット内の相対パスで、区切りは"/"。
type Store interface {
	Put(ctx context.Context, bucket, path string, r io.Reader) error
	Open(ctx context.Context, bucket, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, bucket, path string) error
	// DeletePrefix はprefix配下のオブジェクトをすべて削除する。
	DeletePrefix(ctx context.Context, bucket, prefix string) error
}

// ValidBucket は既知のバケット名かどうかを返す。
func ValidBucket(bucket string) bool {
	return bucket == BucketAvatars || bucket == BucketResumes
}

// LocalStore はローカルファイルシステム上にオブジェクトを保存する。
// 配置はroot/<bucket>/<path>。
type LocalStore struct {
	root string
}

// NewLocalStore はrootを基点とするLocalStoreを生成する。
func NewLocalStore(root string) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	for _, b := range []string{BucketAvatars, BucketResumes} {
		if err := os.MkdirAll(filepath.Join(abs, b), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create bucket directory %s: %w", b, err)
		}
	}
	return &LocalStore{root: abs}, nil
}

// resolve はバケットとパスを検証し、ファイルシステム上の絶対パスを返す。
func (s *LocalStore) resolve(bucket, path string) (string, error) {
	if _, err := objectKey(bucket, path); err != nil {
		return "", err
	}
	base := filepath.Join(s.root, bucket)
	full := filepath.Join(base, filepath.FromSlash(path))
	if !strings.HasPrefix(full, base+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return full, nil
}

// Put はオブジェクトを書き込む。同一パスの既存オブジェクトは置き換える。
// 一時ファイルに書き込んでからrenameするため、読み手が書きかけの内容を観測することはない。
func (s *LocalStore) Put(ctx context.Context, bucket, path string, r io.Reader) error {
	full, err := s.resolve(bucket, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r}); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return fmt.Errorf("failed to move object into place: %w", err)
	}
	return nil
}

// Open はオブジェクトを読み取り用に開く。
func (s *LocalStore) Open(_ context.Context, bucket, path string) (io.ReadCloser, error) {
	full, err := s.resolve(bucket, path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open object: %w", err)
	}
	return f, nil
}

// Delete はオブジェクトを削除する。存在しない場合は何もしない。
func (s *LocalStore) Delete(_ context.Context, bucket, path string) error {
	full, err := s.resolve(bucket, path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// DeletePrefix はprefixディレクトリ配下を削除する。
func (s *LocalStore) DeletePrefix(_ context.Context, bucket, prefix string) error {
	full, err := s.resolve(bucket, strings.TrimSuffix(prefix, "/"))
	if err != nil {
		return err
	}
	if err := os.RemoveAll(full); err != nil {
		return fmt.Errorf("failed to delete prefix: %w", err)
	}
	return nil
}

// ctxReader はコンテキストのキャンセルで読み取りを中断する。
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// compile-time interface check
var _ Store = (*LocalStore)(nil)
