package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/domgiordano/xomify-backend/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, email, refresh_token, active, active_release_radar, active_wrapped,
	release_radar_playlist_id, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	user := &model.User{}
	var playlistID sql.NullString
	err := row.Scan(
		&user.ID, &user.Email, &user.RefreshToken,
		&user.Active, &user.ActiveReleaseRadar, &user.ActiveWrapped,
		&playlistID, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.ReleaseRadarPlaylistID = playlistID.String
	return user, nil
}

// FindByEmail は指定メールアドレスのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		email,
	)

	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// ListActiveReleaseRadar はリリースレーダーが有効な全ユーザーを返す。
func (r *PostgresUserRepo) ListActiveReleaseRadar(ctx context.Context) ([]*model.User, error) {
	return r.listWhere(ctx, `active = TRUE AND active_release_radar = TRUE`)
}

// ListActiveWrapped は月次サマリーが有効な全ユーザーを返す。
func (r *PostgresUserRepo) ListActiveWrapped(ctx context.Context) ([]*model.User, error) {
	return r.listWhere(ctx, `active = TRUE AND active_wrapped = TRUE`)
}

func (r *PostgresUserRepo) listWhere(ctx context.Context, where string) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where+` ORDER BY email`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// Upsert はユーザーをメールアドレスをキーに冪等に作成・更新する。
// 既存ユーザーの場合はトークンと有効フラグのみ更新し、作成日時は維持する。
// IDが未設定の場合は新規UUIDを割り当てる。
func (r *PostgresUserRepo) Upsert(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, refresh_token, active, active_release_radar, active_wrapped,
			release_radar_playlist_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)
		 ON CONFLICT (email) DO UPDATE SET
			refresh_token = EXCLUDED.refresh_token,
			active = EXCLUDED.active,
			active_release_radar = EXCLUDED.active_release_radar,
			active_wrapped = EXCLUDED.active_wrapped,
			updated_at = EXCLUDED.updated_at`,
		user.ID, user.Email, user.RefreshToken,
		user.Active, user.ActiveReleaseRadar, user.ActiveWrapped,
		user.ReleaseRadarPlaylistID, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// UpdateReleaseRadarPlaylistID はユーザーのリリースレーダー用プレイリストIDを更新する。
func (r *PostgresUserRepo) UpdateReleaseRadarPlaylistID(ctx context.Context, email, playlistID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET release_radar_playlist_id = $1, updated_at = NOW() WHERE email = $2`,
		playlistID, email,
	)
	if err != nil {
		return fmt.Errorf("failed to update playlist ID: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", email)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
