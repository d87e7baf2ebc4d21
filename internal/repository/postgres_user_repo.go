package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/jobtrail/internal/model"
)

const userColumns = `id, email, name, created_at, updated_at`

// PostgresUserRepo はusersテーブルのリポジトリ。
// 新規登録時はidentitiesとprofilesも同じトランザクションで作成する。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

func scanUser(row *sql.Row) (*model.User, error) {
	u := &model.User{}
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

// FindByID はユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return u, nil
}

// CreateWithIdentity はユーザー、identity、プロフィールを1トランザクションで作成する。
// プロフィールの表示名はIdPから取得した名前で初期化する。
func (r *PostgresUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	steps := []struct {
		table string
		query string
		args  []any
	}{
		{"user", `INSERT INTO users (id, email, name, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
			[]any{user.ID, user.Email, user.Name, user.CreatedAt, user.UpdatedAt}},
		{"identity", `INSERT INTO identities (id, user_id, provider, provider_user_id, created_at) VALUES ($1, $2, $3, $4, $5)`,
			[]any{identity.ID, identity.UserID, identity.Provider, identity.ProviderUserID, identity.CreatedAt}},
		{"profile", `INSERT INTO profiles (user_id, display_name, updated_at) VALUES ($1, $2, $3)`,
			[]any{user.ID, user.Name, user.CreatedAt}},
	}
	for _, s := range steps {
		if _, err := tx.ExecContext(ctx, s.query, s.args...); err != nil {
			return fmt.Errorf("failed to insert %s: %w", s.table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpdateContact はIdPから取得したメールアドレスと名前でユーザーを更新する。
// リマインダーメールの宛先はこの値を使う。
func (r *PostgresUserRepo) UpdateContact(ctx context.Context, id, email, name string, now time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET email = $2, name = $3, updated_at = $4 WHERE id = $1`,
		id, email, name, now,
	)
	if err != nil {
		return fmt.Errorf("failed to update user contact: %w", err)
	}
	return requireAffected(result, model.NewUserNotFoundError())
}

// DeleteByID はユーザーを削除する。関連データはCASCADEで削除される。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return requireAffected(result, model.NewUserNotFoundError())
}

// requireAffected は更新行がない場合にnotFoundを返す。
func requireAffected(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
