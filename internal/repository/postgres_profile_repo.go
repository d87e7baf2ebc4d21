package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hitoshi/jobtrail/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

const profileColumns = `user_id, display_name, avatar_path, resume_path, resume_analysis, updated_at`

func scanProfile(s rowScanner) (*model.Profile, error) {
	p := &model.Profile{}
	var raw []byte
	if err := s.Scan(&p.UserID, &p.DisplayName, &p.AvatarPath, &p.ResumePath, &raw, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		var ra model.ResumeAnalysis
		if err := json.Unmarshal(raw, &ra); err != nil {
			return nil, fmt.Errorf("failed to decode resume_analysis: %w", err)
		}
		p.ResumeAnalysis = &ra
	}
	return p, nil
}

// FindByUserID はプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`,
		userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	return p, nil
}

// UpdateDisplayName は表示名を更新する。プロフィールが存在しない場合は作成する。
func (r *PostgresProfileRepo) UpdateDisplayName(ctx context.Context, userID, displayName string) (*model.Profile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx,
		`INSERT INTO profiles (user_id, display_name, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id) DO UPDATE SET display_name = EXCLUDED.display_name, updated_at = now()
		 RETURNING `+profileColumns,
		userID, displayName,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to update display name: %w", err)
	}
	return p, nil
}

// UpdateAvatarPath はアバター画像のパスを更新する。
func (r *PostgresProfileRepo) UpdateAvatarPath(ctx context.Context, userID, path string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, avatar_path, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id) DO UPDATE SET avatar_path = EXCLUDED.avatar_path, updated_at = now()`,
		userID, path,
	)
	if err != nil {
		return fmt.Errorf("failed to update avatar path: %w", err)
	}
	return nil
}

// UpdateResumePath は履歴書のパスを更新し、分析結果をクリアする。
// ポーリング中のクライアントは分析待ち状態として観測する。
func (r *PostgresProfileRepo) UpdateResumePath(ctx context.Context, userID, path string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, resume_path, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id) DO UPDATE SET resume_path = EXCLUDED.resume_path, resume_analysis = NULL, updated_at = now()`,
		userID, path,
	)
	if err != nil {
		return fmt.Errorf("failed to update resume path: %w", err)
	}
	return nil
}

// UpdateResumeAnalysis は履歴書の分析結果を保存する。
func (r *PostgresProfileRepo) UpdateResumeAnalysis(ctx context.Context, userID string, analysis *model.ResumeAnalysis) error {
	raw, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("failed to encode resume_analysis: %w", err)
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET resume_analysis = $2, updated_at = now() WHERE user_id = $1`,
		userID, raw,
	)
	if err != nil {
		return fmt.Errorf("failed to update resume analysis: %w", err)
	}
	ok, err := affected(result)
	if err != nil {
		return err
	}
	if !ok {
		return model.NewUserNotFoundError()
	}
	return nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
