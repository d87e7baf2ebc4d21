// Package importer は求人検索結果を応募記録として取り込む。
// 同一セッション内での二重取り込みを防ぐ。
package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hitoshi/jobtrail/internal/client"
	"github.com/hitoshi/jobtrail/internal/model"
)

// ErrAlreadySaved は同一セッションで取り込み済みの求人を再度取り込もうとした場合のエラー。
var ErrAlreadySaved = errors.New("importer: job already saved in this session")

// Searcher は求人検索。*client.Clientが満たす。
type Searcher interface {
	SearchJobs(ctx context.Context, term, engine string) ([]model.Job, error)
}

// Creator は検索結果の取り込み。*client.Clientが満たす。
type Creator interface {
	ImportJob(ctx context.Context, job model.Job) (*client.Application, error)
}

// Result は取り込み済みかどうかを付与した検索結果。
type Result struct {
	model.Job
	Saved bool
}

// Session は検索と取り込みのセッション。並行利用できる。
type Session struct {
	searcher Searcher
	creator  Creator

	mu      sync.Mutex
	saved   map[string]bool
	pending map[string]chan struct{}
}

// NewSession はSessionを生成する。
func NewSession(searcher Searcher, creator Creator) *Session {
	return &Session{
		searcher: searcher,
		creator:  creator,
		saved:    make(map[string]bool),
		pending:  make(map[string]chan struct{}),
	}
}

// Search は求人を検索し、このセッションで取り込み済みかを付与して返す。
func (s *Session) Search(ctx context.Context, term, engine string) ([]Result, error) {
	jobs, err := s.searcher.SearchJobs(ctx, term, engine)
	if err != nil {
		return nil, fmt.Errorf("求人検索に失敗しました: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]Result, 0, len(jobs))
	for _, j := range jobs {
		results = append(results, Result{Job: j, Saved: s.saved[key(j)]})
	}
	return results, nil
}

// Import は求人をsaved状態の応募記録として取り込む。
// 取り込み済みならネットワーク書き込みを行わずErrAlreadySavedを返す。
// 同じ求人の取り込みが実行中の場合は完了を待ってから判定する。
func (s *Session) Import(ctx context.Context, job model.Job) (*client.Application, error) {
	k := key(job)
	for {
		s.mu.Lock()
		if s.saved[k] {
			s.mu.Unlock()
			return nil, ErrAlreadySaved
		}
		if wait, ok := s.pending[k]; ok {
			s.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		done := make(chan struct{})
		s.pending[k] = done
		s.mu.Unlock()

		app, err := s.creator.ImportJob(ctx, job)

		s.mu.Lock()
		delete(s.pending, k)
		if err == nil {
			s.saved[k] = true
		}
		close(done)
		s.mu.Unlock()

		if err != nil {
			return nil, fmt.Errorf("求人の取り込みに失敗しました: %w", err)
		}
		return app, nil
	}
}

// IsSaved はこのセッションで取り込み済みかを返す。
func (s *Session) IsSaved(job model.Job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved[key(job)]
}

// key は求人の識別子。IDを持たない求人はURLで識別する。
func key(j model.Job) string {
	if j.ID != "" {
		return "id:" + j.ID
	}
	return "url:" + j.URL
}
