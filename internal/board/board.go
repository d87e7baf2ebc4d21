package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/jobtrail/internal/client"
	"github.com/hitoshi/jobtrail/internal/model"
)

var (
	// ErrNotFound はボードに存在しない記録を指定した場合のエラー。
	ErrNotFound = errors.New("board: application not found")
	// ErrNotSaved はsaved以外の記録に即時応募しようとした場合のエラー。
	ErrNotSaved = errors.New("board: application is not in saved status")
	// ErrMissingURL は求人URLのない記録に即時応募しようとした場合のエラー。
	ErrMissingURL = errors.New("board: application has no job URL")
)

// Remote はボードが利用するAPI操作。*client.Clientが満たす。
type Remote interface {
	ListApplications(ctx context.Context) ([]client.Application, error)
	UpdateStatus(ctx context.Context, id string, status model.Status) (*client.Application, error)
	ApplyNow(ctx context.Context, id string) (*client.Application, error)
}

// NoticeLevel は通知の重要度。
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeError
)

// Notice は利用者に一時的に表示するメッセージ。
type Notice struct {
	Level   NoticeLevel
	Message string
}

// Notifier は一時通知の表示先。
type Notifier interface {
	Notify(n Notice)
}

// URLOpener は求人ページを開く。
type URLOpener interface {
	Open(url string) error
}

// Board は応募ボード。並行利用できる。
type Board struct {
	remote   Remote
	notifier Notifier
	opener   URLOpener
	logger   *slog.Logger

	mu    sync.Mutex
	state State

	inflight sync.WaitGroup
}

// New はBoardを生成する。
func New(remote Remote, notifier Notifier, opener URLOpener, logger *slog.Logger) *Board {
	return &Board{
		remote:   remote,
		notifier: notifier,
		opener:   opener,
		logger:   logger,
	}
}

func (b *Board) dispatch(a Action) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Reduce(b.state, a)
	return b.state
}

// Refresh は一覧を読み込む。
func (b *Board) Refresh(ctx context.Context) error {
	apps, err := b.remote.ListApplications(ctx)
	if err != nil {
		b.notify(NoticeError, "応募一覧の読み込みに失敗しました")
		return fmt.Errorf("応募一覧の読み込みに失敗しました: %w", err)
	}
	b.dispatch(Loaded{Apps: apps})
	return nil
}

// Resync はローカル状態をリモートの一覧で置き換える。
func (b *Board) Resync(ctx context.Context) error {
	apps, err := b.remote.ListApplications(ctx)
	if err != nil {
		b.logger.Error("応募一覧の再取得に失敗しました", slog.String("error", err.Error()))
		b.notify(NoticeError, "最新の状態を取得できませんでした")
		return fmt.Errorf("応募一覧の再取得に失敗しました: %w", err)
	}
	b.dispatch(Resynced{Apps: apps})
	return nil
}

// Drop はドラッグ終了を処理する。遷移が発生した場合はtrueを返す。
// ローカル状態は即座に更新し、リモート書き込みは非同期に行う。
func (b *Board) Drop(ctx context.Context, draggedID string, target Target) bool {
	b.mu.Lock()
	to, ok := ResolveDrop(draggedID, target, b.state.Apps)
	from, rawTo, moved := dropTransition(draggedID, target, b.state.Apps)
	b.mu.Unlock()
	if !ok {
		if moved && (from == model.StatusSaved || rawTo == model.StatusSaved) {
			b.notify(NoticeInfo, "保存済みの求人は「今すぐ応募」から応募済みにしてください")
		}
		return false
	}

	b.dispatch(StatusChanged{ID: draggedID, Status: to})
	b.write(ctx, draggedID, func(ctx context.Context) error {
		_, err := b.remote.UpdateStatus(ctx, draggedID, to)
		return err
	})
	return true
}

// ApplyNow はsaved状態の記録の求人ページを開き、appliedとして記録する。
// 前提条件を満たさない場合は何も書き込まずエラー通知を出す。
func (b *Board) ApplyNow(ctx context.Context, id string) error {
	b.mu.Lock()
	app := find(b.state.Apps, id)
	var current client.Application
	if app != nil {
		current = *app
	}
	b.mu.Unlock()

	switch {
	case app == nil:
		b.notify(NoticeError, "応募記録が見つかりません")
		return ErrNotFound
	case current.Status != model.StatusSaved:
		b.notify(NoticeError, "保存済みの求人のみ応募できます")
		return ErrNotSaved
	case current.URL == "":
		b.notify(NoticeError, "求人URLが登録されていません")
		return ErrMissingURL
	}

	if err := b.opener.Open(current.URL); err != nil {
		b.notify(NoticeError, "求人ページを開けませんでした")
		return fmt.Errorf("求人ページを開けませんでした: %w", err)
	}

	b.dispatch(StatusChanged{ID: id, Status: model.StatusApplied})
	b.write(ctx, id, func(ctx context.Context) error {
		_, err := b.remote.ApplyNow(ctx, id)
		return err
	})
	return nil
}

// write はリモート書き込みを非同期に実行し、失敗時は通知して再同期する。
// 呼び出し元のctxがキャンセルされても書き込みと再同期は継続する。
func (b *Board) write(ctx context.Context, id string, fn func(ctx context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		if err := fn(ctx); err != nil {
			b.logger.Warn("ステータスの更新に失敗しました",
				slog.String("application_id", id),
				slog.String("error", err.Error()),
			)
			b.notify(NoticeError, "ステータスの更新に失敗しました")
			b.Resync(ctx)
		}
	}()
}

// Wait は実行中のリモート書き込みが完了するまで待つ。
func (b *Board) Wait() {
	b.inflight.Wait()
}

// Snapshot はローカル状態のコピーを返す。
func (b *Board) Snapshot() []client.Application {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cloneApps(b.state.Apps)
}

// Revision はローカル状態の更新回数を返す。filter.Memoのキーに使う。
func (b *Board) Revision() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.Revision
}

// ColumnCards はステータス列と、その列に属するカード。
type ColumnCards struct {
	Status model.Status
	Cards  []client.Application
}

// Columns はステータス列の順にカードを分類して返す。
func (b *Board) Columns() []ColumnCards {
	apps := b.Snapshot()
	statuses := model.AllStatuses()
	cols := make([]ColumnCards, len(statuses))
	index := make(map[model.Status]int, len(statuses))
	for i, s := range statuses {
		cols[i] = ColumnCards{Status: s, Cards: []client.Application{}}
		index[s] = i
	}
	for _, a := range apps {
		if i, ok := index[a.Status]; ok {
			cols[i].Cards = append(cols[i].Cards, a)
		}
	}
	return cols
}

func (b *Board) notify(level NoticeLevel, msg string) {
	if b.notifier != nil {
		b.notifier.Notify(Notice{Level: level, Message: msg})
	}
}
