package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/domgiordano/xomify-backend/internal/model"
)

// PostgresRadarRepo はPostgreSQLを使用した週次リリース記録リポジトリ。
// リリース一覧はJSONBカラムに格納し、統計値は個別カラムで保持する。
type PostgresRadarRepo struct {
	db *sql.DB
}

// NewPostgresRadarRepo はPostgresRadarRepoを生成する。
func NewPostgresRadarRepo(db *sql.DB) *PostgresRadarRepo {
	return &PostgresRadarRepo{db: db}
}

// UpsertWeek は週次記録を（メールアドレス, 週キー）をキーに冪等にUPSERTする。
func (r *PostgresRadarRepo) UpsertWeek(ctx context.Context, week *model.RadarWeek) error {
	releases, err := json.Marshal(week.Releases)
	if err != nil {
		return fmt.Errorf("failed to marshal releases: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO release_radar_weeks (email, week_key, releases, total_tracks,
			album_count, single_count, appears_on_count, playlist_id, finalized, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, NOW())
		 ON CONFLICT (email, week_key) DO UPDATE SET
			releases = EXCLUDED.releases,
			total_tracks = EXCLUDED.total_tracks,
			album_count = EXCLUDED.album_count,
			single_count = EXCLUDED.single_count,
			appears_on_count = EXCLUDED.appears_on_count,
			playlist_id = COALESCE(EXCLUDED.playlist_id, release_radar_weeks.playlist_id),
			finalized = EXCLUDED.finalized`,
		week.Email, week.WeekKey, releases,
		week.Stats.TotalTracks, week.Stats.AlbumCount, week.Stats.SingleCount, week.Stats.AppearsOnCount,
		week.PlaylistID, week.Finalized,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert radar week: %w", err)
	}
	return nil
}

const radarColumns = `email, week_key, releases, total_tracks, album_count, single_count,
	appears_on_count, playlist_id, finalized, created_at`

func scanRadarWeek(row interface{ Scan(...any) error }) (*model.RadarWeek, error) {
	week := &model.RadarWeek{}
	var releases []byte
	var playlistID sql.NullString
	err := row.Scan(
		&week.Email, &week.WeekKey, &releases,
		&week.Stats.TotalTracks, &week.Stats.AlbumCount, &week.Stats.SingleCount, &week.Stats.AppearsOnCount,
		&playlistID, &week.Finalized, &week.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(releases) > 0 {
		if err := json.Unmarshal(releases, &week.Releases); err != nil {
			return nil, fmt.Errorf("failed to unmarshal releases: %w", err)
		}
	}
	week.PlaylistID = playlistID.String
	return week, nil
}

// FindWeek は指定ユーザー・週キーの記録を取得する。見つからない場合はnilを返す。
func (r *PostgresRadarRepo) FindWeek(ctx context.Context, email, weekKey string) (*model.RadarWeek, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+radarColumns+` FROM release_radar_weeks WHERE email = $1 AND week_key = $2`,
		email, weekKey,
	)

	week, err := scanRadarWeek(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find radar week: %w", err)
	}
	return week, nil
}

// ListWeeks は指定ユーザーの全週次記録を週キー降順で返す。
func (r *PostgresRadarRepo) ListWeeks(ctx context.Context, email string) ([]*model.RadarWeek, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+radarColumns+` FROM release_radar_weeks WHERE email = $1 ORDER BY week_key DESC`,
		email,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list radar weeks: %w", err)
	}
	defer rows.Close()

	var weeks []*model.RadarWeek
	for rows.Next() {
		week, err := scanRadarWeek(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan radar week: %w", err)
		}
		weeks = append(weeks, week)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate radar weeks: %w", err)
	}
	return weeks, nil
}

// ListWeeksBetween は指定ユーザーの週次記録を週キー範囲（両端含む）で週キー降順で返す。
func (r *PostgresRadarRepo) ListWeeksBetween(ctx context.Context, email, fromKey, toKey string) ([]*model.RadarWeek, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+radarColumns+` FROM release_radar_weeks
		 WHERE email = $1 AND week_key BETWEEN $2 AND $3 ORDER BY week_key DESC`,
		email, fromKey, toKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list radar weeks in range: %w", err)
	}
	defer rows.Close()

	var weeks []*model.RadarWeek
	for rows.Next() {
		week, err := scanRadarWeek(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan radar week: %w", err)
		}
		weeks = append(weeks, week)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate radar weeks: %w", err)
	}
	return weeks, nil
}

// ListWeekKeys は指定ユーザーの記録済み週キーの一覧を返す。
func (r *PostgresRadarRepo) ListWeekKeys(ctx context.Context, email string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT week_key FROM release_radar_weeks WHERE email = $1 ORDER BY week_key DESC`,
		email,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list week keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan week key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate week keys: %w", err)
	}
	return keys, nil
}

// compile-time interface check
var _ RadarRepository = (*PostgresRadarRepo)(nil)
