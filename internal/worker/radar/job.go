// Package radar はリリースレーダーの週次バッチ処理を提供する。
// 週次スキャン、プレイリスト反映、履歴のバックフィルを含む。
package radar

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/domgiordano/xomify-backend/internal/model"
	"github.com/domgiordano/xomify-backend/internal/repository"
	"github.com/domgiordano/xomify-backend/internal/scan"
	"github.com/domgiordano/xomify-backend/internal/security"
	"github.com/domgiordano/xomify-backend/internal/week"
)

// ScanEngine はスキャン実行のインターフェース。
// テスト時にモックに差し替え可能。
type ScanEngine interface {
	// ScanUser は1ユーザーの完全なスキャンフローを実行する。
	ScanUser(ctx context.Context, user *model.User, w week.Window) (*model.ScanResult, error)
	// ScanBatch は複数ユーザーのスキャンを上限付き並列で実行する。
	ScanBatch(ctx context.Context, users []*model.User, w week.Window) ([]*model.ScanResult, []scan.UserFailure)
}

// PlaylistManager はユーザーのプレイリスト操作インターフェース。
type PlaylistManager interface {
	// Ensure は新しいプレイリストを作成し、カバーとトラックを設定してIDを返す。
	Ensure(ctx context.Context, name, description string, coverB64 []byte, trackURIs []string) (string, error)
	// ReplaceTracks は既存プレイリストの全トラックを置き換える。
	ReplaceTracks(ctx context.Context, playlistID string, trackURIs []string) error
}

// PlaylistFactory はユーザーごとの認証済みプレイリストマネージャを生成する。
type PlaylistFactory interface {
	ManagerFor(user *model.User) PlaylistManager
}

// CoverProvider はプレイリストカバー画像の準備インターフェース。
type CoverProvider interface {
	// Build は画像URLからアップロード可能なBase64エンコード済みJPEGを生成する。
	Build(ctx context.Context, imageURL string) ([]byte, error)
}

// Job はリリースレーダーの週次バッチジョブ。
// 対象ユーザーのスキャン、プレイリスト反映、履歴永続化を行う。
type Job struct {
	users     repository.UserRepository
	radar     repository.RadarRepository
	engine    ScanEngine
	playlists PlaylistFactory
	covers    CoverProvider
	sanitizer security.ContentSanitizerService
	policy    week.Policy
	logger    *slog.Logger

	// now はテスト時に現在時刻を固定するためのフック。
	now func() time.Time
}

// NewJob はJobの新しいインスタンスを生成する。
// coversはnil可（nilの場合はカバー画像なしでプレイリストを作成する）。
func NewJob(
	users repository.UserRepository,
	radar repository.RadarRepository,
	engine ScanEngine,
	playlists PlaylistFactory,
	covers CoverProvider,
	sanitizer security.ContentSanitizerService,
	policy week.Policy,
	logger *slog.Logger,
) *Job {
	return &Job{
		users:     users,
		radar:     radar,
		engine:    engine,
		playlists: playlists,
		covers:    covers,
		sanitizer: sanitizer,
		policy:    policy,
		logger:    logger,
		now:       time.Now,
	}
}

// Start は指定間隔のティッカーでジョブを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("リリースレーダージョブを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	if err := j.RunOnce(ctx); err != nil {
		j.logger.Error("リリースレーダーの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("リリースレーダージョブを停止しました")
			return
		case <-ticker.C:
			if err := j.RunOnce(ctx); err != nil {
				j.logger.Error("リリースレーダーの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は全対象ユーザーの週次スキャンを1回実行する。
// 今週分が確定済みのユーザーはスキップする。
// 個々のユーザーの失敗は全体を止めない。
func (j *Job) RunOnce(ctx context.Context) error {
	start := j.now()
	window := j.policy.CurrentWindow(start)
	weekKey := j.policy.KeyFor(start)

	users, err := j.users.ListActiveReleaseRadar(ctx)
	if err != nil {
		return fmt.Errorf("対象ユーザーの取得に失敗しました: %w", err)
	}

	// 今週分が確定済みのユーザーを除外する
	var targets []*model.User
	for _, user := range users {
		existing, err := j.radar.FindWeek(ctx, user.Email, weekKey)
		if err != nil {
			j.logger.Error("週次記録の確認に失敗しました",
				slog.String("email", user.Email),
				slog.String("error", err.Error()),
			)
			continue
		}
		if existing != nil && existing.Finalized {
			continue
		}
		targets = append(targets, user)
	}

	if len(targets) == 0 {
		j.logger.Info("スキャン対象のユーザーはありません",
			slog.String("week_key", weekKey),
		)
		return nil
	}

	j.logger.Info("週次スキャンを開始します",
		slog.String("week_key", weekKey),
		slog.Int("user_count", len(targets)),
	)

	results, failures := j.engine.ScanBatch(ctx, targets, window)

	for _, result := range results {
		if err := j.applyResult(ctx, result); err != nil {
			j.logger.Error("スキャン結果の反映に失敗しました",
				slog.String("email", result.Email),
				slog.String("error", err.Error()),
			)
		}
	}

	duration := time.Since(start)
	j.logger.Info("週次スキャンが完了しました",
		slog.String("week_key", weekKey),
		slog.Int("success_count", len(results)),
		slog.Int("failure_count", len(failures)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// applyResult は1ユーザーのスキャン結果をプレイリストと履歴に反映する。
// プレイリストが未作成の場合は新規作成し、ユーザーにIDを記録する。
func (j *Job) applyResult(ctx context.Context, result *model.ScanResult) error {
	j.sanitizeReleases(result.Releases)

	user, err := j.users.FindByEmail(ctx, result.Email)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return fmt.Errorf("ユーザーが見つかりません: %s", result.Email)
	}

	playlistID := user.ReleaseRadarPlaylistID
	if playlistID == "" {
		playlistID, err = j.createPlaylist(ctx, user, result)
		if err != nil {
			return fmt.Errorf("プレイリストの作成に失敗しました: %w", err)
		}
		if err := j.users.UpdateReleaseRadarPlaylistID(ctx, user.Email, playlistID); err != nil {
			return fmt.Errorf("プレイリストIDの記録に失敗しました: %w", err)
		}
	} else {
		mgr := j.playlists.ManagerFor(user)
		if err := mgr.ReplaceTracks(ctx, playlistID, result.TrackURIs); err != nil {
			return fmt.Errorf("プレイリストの更新に失敗しました: %w", err)
		}
	}

	record := &model.RadarWeek{
		Email:      result.Email,
		WeekKey:    result.WeekKey,
		Releases:   result.Releases,
		Stats:      result.Stats,
		PlaylistID: playlistID,
		Finalized:  false,
	}
	if err := j.radar.UpsertWeek(ctx, record); err != nil {
		return fmt.Errorf("週次記録の保存に失敗しました: %w", err)
	}

	return nil
}

// createPlaylist は新しいリリースレーダー用プレイリストを作成する。
// カバー画像は先頭リリースのアートワークから生成する（失敗は無視する）。
func (j *Job) createPlaylist(ctx context.Context, user *model.User, result *model.ScanResult) (string, error) {
	var cover []byte
	if j.covers != nil && len(result.Releases) > 0 && result.Releases[0].ImageURL != "" {
		var err error
		cover, err = j.covers.Build(ctx, result.Releases[0].ImageURL)
		if err != nil {
			j.logger.Warn("カバー画像の生成に失敗しました",
				slog.String("email", user.Email),
				slog.String("error", err.Error()),
			)
			cover = nil
		}
	}

	mgr := j.playlists.ManagerFor(user)
	name := fmt.Sprintf("Release Radar %s", result.WeekKey)
	description := "Weekly releases from artists you follow."
	return mgr.Ensure(ctx, name, description, cover, result.TrackURIs)
}

// sanitizeReleases はリリース記録の表示用テキストからマークアップを除去する。
func (j *Job) sanitizeReleases(releases []model.ReleaseRecord) {
	if j.sanitizer == nil {
		return
	}
	for i := range releases {
		releases[i].Name = j.sanitizer.Sanitize(releases[i].Name)
		releases[i].ArtistName = j.sanitizer.Sanitize(releases[i].ArtistName)
	}
}
