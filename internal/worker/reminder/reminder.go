// Package reminder は期日を迎えたメモのリマインダー送信ジョブを提供する。
// 対象メモごとにアプリ内通知を作成し、設定された配信チャネルへ送信する。
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/jobtrail/internal/metrics"
	"github.com/hitoshi/jobtrail/internal/model"
	"github.com/hitoshi/jobtrail/internal/repository"
)

// BatchLimit は1サイクルで処理するメモの上限件数。
const BatchLimit = 100

// Notifier はアプリ内通知の作成インターフェース。
type Notifier interface {
	Create(ctx context.Context, userID, applicationID, message string) (*model.Notification, error)
}

// Job はリマインダー送信ジョブ。
type Job struct {
	notes      repository.NoteRepository
	notifier   Notifier
	deliveries []Delivery
	recorder   metrics.Recorder
	logger     *slog.Logger
	now        func() time.Time
}

// NewJob は新しいJobを生成する。
// deliveriesが空の場合はLogDeliveryのみを使用する。
func NewJob(
	notes repository.NoteRepository,
	notifier Notifier,
	deliveries []Delivery,
	recorder metrics.Recorder,
	logger *slog.Logger,
) *Job {
	if len(deliveries) == 0 {
		deliveries = []Delivery{NewLogDelivery(logger)}
	}
	return &Job{
		notes:      notes,
		notifier:   notifier,
		deliveries: deliveries,
		recorder:   recorder,
		logger:     logger,
		now:        time.Now,
	}
}

// Message はリマインダー通知の本文を返す。
func Message(content string) string {
	return "リマインダー: " + content
}

// Start はintervalごとにRunOnceを実行する。起動直後にも1回実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	j.logger.Info("リマインダージョブを開始しました",
		slog.Duration("interval", interval),
		slog.Int("channels", len(j.deliveries)),
	)

	if _, err := j.RunOnce(ctx); err != nil {
		j.logger.Error("リマインダーサイクルの実行に失敗しました", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("リマインダージョブを停止しました")
			return
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil {
				j.logger.Error("リマインダーサイクルの実行に失敗しました", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce は全ユーザーの期日到来メモを処理し、処理件数を返す。
func (j *Job) RunOnce(ctx context.Context) (int, error) {
	return j.run(ctx, "")
}

// RunForUser は指定ユーザーの期日到来メモのみを処理し、処理件数を返す。
func (j *Job) RunForUser(ctx context.Context, userID string) (int, error) {
	return j.run(ctx, userID)
}

func (j *Job) run(ctx context.Context, userID string) (int, error) {
	start := time.Now()
	now := j.now()

	due, err := j.notes.ListDueReminders(ctx, userID, now, BatchLimit)
	if err != nil {
		return 0, fmt.Errorf("リマインダー対象の取得に失敗しました: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(due))
	for _, r := range due {
		msg := Message(r.Content)
		if _, err := j.notifier.Create(ctx, r.UserID, r.ApplicationID, msg); err != nil {
			// 通知作成に失敗したメモは次サイクルで再試行する
			j.logger.Error("リマインダー通知の作成に失敗しました",
				slog.String("note_id", r.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		j.dispatch(ctx, r, msg)
		ids = append(ids, r.ID)
	}

	if len(ids) > 0 {
		if err := j.notes.MarkRemindersSent(ctx, ids, now); err != nil {
			return 0, fmt.Errorf("リマインダー送信済みの記録に失敗しました: %w", err)
		}
	}

	j.logger.Info("リマインダーサイクルが完了しました",
		slog.Int("due_count", len(due)),
		slog.Int("processed_count", len(ids)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return len(ids), nil
}

// dispatch は全チャネルへ並列に配信する。配信失敗はログとメトリクスに記録するのみ。
func (j *Job) dispatch(ctx context.Context, r *model.DueReminder, msg string) {
	var g errgroup.Group
	for _, d := range j.deliveries {
		g.Go(func() error {
			err := d.Send(ctx, r, msg)
			j.recorder.RecordReminder(d.Name(), metrics.Outcome(err))
			if err != nil {
				j.logger.Warn("リマインダーの配信に失敗しました",
					slog.String("channel", d.Name()),
					slog.String("note_id", r.ID),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}
