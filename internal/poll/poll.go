// Package poll は非同期解析結果の取得を待つポーリングを提供する。
package poll

import (
	"context"
	"time"

	"github.com/hitoshi/jobtrail/internal/client"
	"github.com/hitoshi/jobtrail/internal/model"
)

// DefaultInterval はintervalに0以下を指定した場合の読み取り間隔。
const DefaultInterval = 2 * time.Second

// Option はポーリングの設定。
type Option func(*options)

type options struct {
	onError func(error)
}

// WithErrorHandler は読み取りエラーの通知先を設定する。エラー後もポーリングは続く。
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) { o.onError = fn }
}

// Until は即座に1回読み取り、以降interval間隔でreadがdone=trueを返すまで読み取りを繰り返す。
// ctxがキャンセルされるとctx.Err()を返す。回数上限とバックオフはない。
// intervalが0以下の場合はDefaultIntervalを使う。
func Until[T any](ctx context.Context, interval time.Duration, read func(ctx context.Context) (T, bool, error), opts ...Option) (T, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		v, done, err := read(ctx)
		if err != nil {
			if o.onError != nil {
				o.onError(err)
			}
		} else if done {
			return v, nil
		}

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProfileReader はプロフィールを取得する。*client.Clientが満たす。
type ProfileReader interface {
	GetProfile(ctx context.Context) (*client.Profile, error)
}

// ApplicationReader は応募記録を取得する。*client.Clientが満たす。
type ApplicationReader interface {
	GetApplication(ctx context.Context, id string) (*client.Application, error)
}

// ResumeAnalysis はプロフィールに履歴書解析結果が保存されるまで待つ。
func ResumeAnalysis(ctx context.Context, r ProfileReader, interval time.Duration, opts ...Option) (*model.ResumeAnalysis, error) {
	return Until(ctx, interval, func(ctx context.Context) (*model.ResumeAnalysis, bool, error) {
		p, err := r.GetProfile(ctx)
		if err != nil {
			return nil, false, err
		}
		return p.ResumeAnalysis, p.ResumeAnalysis != nil, nil
	}, opts...)
}

// MatchAnalysis は応募記録に適合度の採点結果が保存されるまで待つ。
func MatchAnalysis(ctx context.Context, r ApplicationReader, id string, interval time.Duration, opts ...Option) (*model.MatchAnalysis, error) {
	return Until(ctx, interval, func(ctx context.Context) (*model.MatchAnalysis, bool, error) {
		app, err := r.GetApplication(ctx, id)
		if err != nil {
			return nil, false, err
		}
		return app.MatchAnalysis, app.MatchAnalysis != nil, nil
	}, opts...)
}
