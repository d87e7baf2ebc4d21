package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/jobtrail/internal/model"
)

// PostgresApplicationRepo はPostgreSQLを使用した応募記録リポジトリ。
type PostgresApplicationRepo struct {
	db *sql.DB
}

// NewPostgresApplicationRepo はPostgresApplicationRepoを生成する。
func NewPostgresApplicationRepo(db *sql.DB) *PostgresApplicationRepo {
	return &PostgresApplicationRepo{db: db}
}

const applicationColumns = `id, user_id, company, position, status, date_applied, url, location,
	interview_date, notes, match_analysis, created_at, updated_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(s rowScanner) (*model.Application, error) {
	app := &model.Application{}
	var (
		status        string
		interviewDate sql.NullTime
		matchRaw      []byte
	)
	err := s.Scan(
		&app.ID, &app.UserID, &app.Company, &app.Position, &status, &app.DateApplied,
		&app.URL, &app.Location, &interviewDate, &app.Notes, &matchRaw,
		&app.CreatedAt, &app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	app.Status = model.Status(status)
	if interviewDate.Valid {
		t := interviewDate.Time
		app.InterviewDate = &t
	}
	if len(matchRaw) > 0 {
		var ma model.MatchAnalysis
		if err := json.Unmarshal(matchRaw, &ma); err != nil {
			return nil, fmt.Errorf("failed to decode match_analysis: %w", err)
		}
		app.MatchAnalysis = &ma
	}
	return app, nil
}

// ListByUser はユーザーの応募記録をcreated_at降順で返す。
func (r *PostgresApplicationRepo) ListByUser(ctx context.Context, userID string) ([]*model.Application, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+applicationColumns+`
		 FROM applications
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var apps []*model.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate applications: %w", err)
	}
	return apps, nil
}

// FindByID は指定IDの応募記録を取得する。見つからない場合はnilを返す。
func (r *PostgresApplicationRepo) FindByID(ctx context.Context, userID, id string) (*model.Application, error) {
	app, err := scanApplication(r.db.QueryRowContext(ctx,
		`SELECT `+applicationColumns+`
		 FROM applications
		 WHERE id = $1 AND user_id = $2`,
		id, userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find application: %w", err)
	}
	return app, nil
}

// Create は応募記録を作成する。
func (r *PostgresApplicationRepo) Create(ctx context.Context, app *model.Application) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO applications
		 (id, user_id, company, position, status, date_applied, url, location, interview_date, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		app.ID, app.UserID, app.Company, app.Position, string(app.Status), app.DateApplied,
		app.URL, app.Location, nullTime(app.InterviewDate), app.Notes, app.CreatedAt, app.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	return nil
}

// Update は編集可能な項目を上書きする。match_analysisは保持する。
func (r *PostgresApplicationRepo) Update(ctx context.Context, app *model.Application) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE applications
		 SET company = $3, position = $4, status = $5, date_applied = $6, url = $7,
		     location = $8, interview_date = $9, notes = $10, updated_at = $11
		 WHERE id = $1 AND user_id = $2`,
		app.ID, app.UserID, app.Company, app.Position, string(app.Status), app.DateApplied,
		app.URL, app.Location, nullTime(app.InterviewDate), app.Notes, app.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update application: %w", err)
	}
	return affected(result)
}

// UpdateStatus はステータスを更新する。interview以外ではinterview_dateをクリアする。
func (r *PostgresApplicationRepo) UpdateStatus(ctx context.Context, userID, id string, status model.Status) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE applications
		 SET status = $3,
		     interview_date = CASE WHEN $4 THEN interview_date ELSE NULL END,
		     updated_at = now()
		 WHERE id = $1 AND user_id = $2`,
		id, userID, string(status), status == model.StatusInterview,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update application status: %w", err)
	}
	return affected(result)
}

// MarkApplied はsaved状態の記録のみをappliedに遷移させる。
func (r *PostgresApplicationRepo) MarkApplied(ctx context.Context, userID, id string, appliedOn time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE applications
		 SET status = 'applied', date_applied = $3, updated_at = now()
		 WHERE id = $1 AND user_id = $2 AND status = 'saved'`,
		id, userID, appliedOn,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark application applied: %w", err)
	}
	return affected(result)
}

// UpdateMatchAnalysis はマッチング分析結果を保存する。
func (r *PostgresApplicationRepo) UpdateMatchAnalysis(ctx context.Context, userID, id string, analysis *model.MatchAnalysis) (bool, error) {
	raw, err := json.Marshal(analysis)
	if err != nil {
		return false, fmt.Errorf("failed to encode match_analysis: %w", err)
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE applications SET match_analysis = $3, updated_at = now()
		 WHERE id = $1 AND user_id = $2`,
		id, userID, raw,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update match_analysis: %w", err)
	}
	return affected(result)
}

// Delete は応募記録を削除する。紐づくメモはCASCADE削除される。
func (r *PostgresApplicationRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM applications WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete application: %w", err)
	}
	return affected(result)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// compile-time interface check
var _ ApplicationRepository = (*PostgresApplicationRepo)(nil)
