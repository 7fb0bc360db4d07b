package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/domgiordano/xomify-backend/internal/model"
)

// PostgresWrappedRepo はPostgreSQLを使用した月次サマリーリポジトリ。
// 期間別のトップトラック・トップアーティストはJSONBカラムに格納する。
type PostgresWrappedRepo struct {
	db *sql.DB
}

// NewPostgresWrappedRepo はPostgresWrappedRepoを生成する。
func NewPostgresWrappedRepo(db *sql.DB) *PostgresWrappedRepo {
	return &PostgresWrappedRepo{db: db}
}

// UpsertMonth は月次サマリーを（メールアドレス, 月キー）をキーに冪等にUPSERTする。
func (r *PostgresWrappedRepo) UpsertMonth(ctx context.Context, month *model.WrappedMonth) error {
	terms, err := json.Marshal(month.Terms)
	if err != nil {
		return fmt.Errorf("failed to marshal terms: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO wrapped_months (email, month_key, terms, playlist_id, created_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NOW())
		 ON CONFLICT (email, month_key) DO UPDATE SET
			terms = EXCLUDED.terms,
			playlist_id = COALESCE(EXCLUDED.playlist_id, wrapped_months.playlist_id)`,
		month.Email, month.MonthKey, terms, month.PlaylistID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert wrapped month: %w", err)
	}
	return nil
}

func scanWrappedMonth(row interface{ Scan(...any) error }) (*model.WrappedMonth, error) {
	month := &model.WrappedMonth{}
	var terms []byte
	var playlistID sql.NullString
	err := row.Scan(&month.Email, &month.MonthKey, &terms, &playlistID, &month.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(terms) > 0 {
		if err := json.Unmarshal(terms, &month.Terms); err != nil {
			return nil, fmt.Errorf("failed to unmarshal terms: %w", err)
		}
	}
	month.PlaylistID = playlistID.String
	return month, nil
}

// FindMonth は指定ユーザー・月キーのサマリーを取得する。見つからない場合はnilを返す。
func (r *PostgresWrappedRepo) FindMonth(ctx context.Context, email, monthKey string) (*model.WrappedMonth, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT email, month_key, terms, playlist_id, created_at
		 FROM wrapped_months WHERE email = $1 AND month_key = $2`,
		email, monthKey,
	)

	month, err := scanWrappedMonth(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find wrapped month: %w", err)
	}
	return month, nil
}

// ListMonths は指定ユーザーの全月次サマリーを月キー降順で返す。
func (r *PostgresWrappedRepo) ListMonths(ctx context.Context, email string) ([]*model.WrappedMonth, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT email, month_key, terms, playlist_id, created_at
		 FROM wrapped_months WHERE email = $1 ORDER BY month_key DESC`,
		email,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list wrapped months: %w", err)
	}
	defer rows.Close()

	var months []*model.WrappedMonth
	for rows.Next() {
		month, err := scanWrappedMonth(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wrapped month: %w", err)
		}
		months = append(months, month)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate wrapped months: %w", err)
	}
	return months, nil
}

// compile-time interface check
var _ WrappedRepository = (*PostgresWrappedRepo)(nil)
