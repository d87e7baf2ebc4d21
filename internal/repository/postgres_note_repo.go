package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/jobtrail/internal/model"
)

// PostgresNoteRepo はPostgreSQLを使用したメモリポジトリ。
type PostgresNoteRepo struct {
	db *sql.DB
}

// NewPostgresNoteRepo はPostgresNoteRepoを生成する。
func NewPostgresNoteRepo(db *sql.DB) *PostgresNoteRepo {
	return &PostgresNoteRepo{db: db}
}

func scanNote(s rowScanner, n *model.Note, extra ...any) error {
	var reminder, sent sql.NullTime
	dest := append([]any{
		&n.ID, &n.ApplicationID, &n.UserID, &n.Content, &reminder, &sent, &n.CreatedAt,
	}, extra...)
	if err := s.Scan(dest...); err != nil {
		return err
	}
	if reminder.Valid {
		t := reminder.Time
		n.ReminderDate = &t
	}
	if sent.Valid {
		t := sent.Time
		n.ReminderSentAt = &t
	}
	return nil
}

// ListByApplication は応募記録に紐づくメモを新しい順に返す。
func (r *PostgresNoteRepo) ListByApplication(ctx context.Context, userID, applicationID string) ([]*model.Note, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, application_id, user_id, content, reminder_date, reminder_sent_at, created_at
		 FROM notes
		 WHERE application_id = $1 AND user_id = $2
		 ORDER BY created_at DESC`,
		applicationID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var notes []*model.Note
	for rows.Next() {
		n := &model.Note{}
		if err := scanNote(rows, n); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes: %w", err)
	}
	return notes, nil
}

// Create はメモを作成する。
func (r *PostgresNoteRepo) Create(ctx context.Context, note *model.Note) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notes (id, application_id, user_id, content, reminder_date, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		note.ID, note.ApplicationID, note.UserID, note.Content, nullTime(note.ReminderDate), note.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create note: %w", err)
	}
	return nil
}

// Delete はメモを削除する。
func (r *PostgresNoteRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM notes WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete note: %w", err)
	}
	return affected(result)
}

// ListDueReminders は送信期限を迎えた未送信リマインダーを古い順に返す。
// 送信先のメールアドレスと応募先情報を結合して取得する。
func (r *PostgresNoteRepo) ListDueReminders(ctx context.Context, userID string, now time.Time, limit int) ([]*model.DueReminder, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT n.id, n.application_id, n.user_id, n.content, n.reminder_date, n.reminder_sent_at, n.created_at,
		        u.email, a.company, a.position
		 FROM notes n
		 INNER JOIN users u ON u.id = n.user_id
		 INNER JOIN applications a ON a.id = n.application_id
		 WHERE n.reminder_date IS NOT NULL
		   AND n.reminder_sent_at IS NULL
		   AND n.reminder_date <= $1
		   AND ($2 = '' OR n.user_id::text = $2)
		 ORDER BY n.reminder_date ASC
		 LIMIT $3`,
		now, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list due reminders: %w", err)
	}
	defer rows.Close()

	var due []*model.DueReminder
	for rows.Next() {
		d := &model.DueReminder{}
		if err := scanNote(rows, &d.Note, &d.UserEmail, &d.Company, &d.Position); err != nil {
			return nil, fmt.Errorf("failed to scan due reminder: %w", err)
		}
		due = append(due, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate due reminders: %w", err)
	}
	return due, nil
}

// MarkRemindersSent は指定メモを送信済みにする。
func (r *PostgresNoteRepo) MarkRemindersSent(ctx context.Context, ids []string, sentAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE notes SET reminder_sent_at = $2 WHERE id::text = ANY($1)`,
		pq.Array(ids), sentAt,
	)
	if err != nil {
		return fmt.Errorf("failed to mark reminders sent: %w", err)
	}
	return nil
}

// compile-time interface check
var _ NoteRepository = (*PostgresNoteRepo)(nil)
