// Package wrapped は月次聴取サマリーのバッチ処理を提供する。
package wrapped

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/domgiordano/xomify-backend/internal/model"
	"github.com/domgiordano/xomify-backend/internal/repository"
)

// topItemLimit は期間ごとに取得する上位トラック・アーティストの件数。
const topItemLimit = 25

// StatsAPI は聴取統計の上流API操作。
type StatsAPI interface {
	// TopTracks は指定期間の聴取上位トラックを取得する。
	TopTracks(ctx context.Context, term string, limit int) ([]model.TopTrack, error)
	// TopArtists は指定期間の聴取上位アーティストを取得する。
	TopArtists(ctx context.Context, term string, limit int) ([]model.TopArtist, error)
}

// ClientFactory はユーザーごとの認証済み統計APIクライアントを生成する。
type ClientFactory interface {
	StatsFor(user *model.User) StatsAPI
}

// PlaylistCreator は月次プレイリストの作成インターフェース。nil可。
type PlaylistCreator interface {
	// Create は指定トラックのプレイリストを作成しIDを返す。
	Create(ctx context.Context, user *model.User, name, description string, trackURIs []string) (string, error)
}

// Job は月次聴取サマリーのバッチジョブ。
// 期間（short/medium/long）ごとの上位トラック・アーティストとジャンル集計を永続化し、
// 前月分のプレイリストを作成する。
type Job struct {
	users          repository.UserRepository
	wrapped        repository.WrappedRepository
	factory        ClientFactory
	playlists      PlaylistCreator
	logger         *slog.Logger
	maxConcurrency int

	// now はテスト時に現在時刻を固定するためのフック。
	now func() time.Time
}

// NewJob はJobの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値5を使用する。
// playlistsはnil可（nilの場合はプレイリストを作成しない）。
func NewJob(
	users repository.UserRepository,
	wrapped repository.WrappedRepository,
	factory ClientFactory,
	playlists PlaylistCreator,
	logger *slog.Logger,
	maxConcurrency int,
) *Job {
	if maxConcurrency <= 0 {
		maxConcurrency = 5
	}
	return &Job{
		users:          users,
		wrapped:        wrapped,
		factory:        factory,
		playlists:      playlists,
		logger:         logger,
		maxConcurrency: maxConcurrency,
		now:            time.Now,
	}
}

// Start は指定間隔のティッカーでジョブを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("月次サマリージョブを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	if err := j.RunOnce(ctx); err != nil {
		j.logger.Error("月次サマリーの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("月次サマリージョブを停止しました")
			return
		case <-ticker.C:
			if err := j.RunOnce(ctx); err != nil {
				j.logger.Error("月次サマリーの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// MonthKey は指定時刻から見た前月の月キー（"YYYY-MM"）を返す。
// 集計対象は常に直前の完了月とする。
func MonthKey(now time.Time) string {
	prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	return prev.Format("2006-01")
}

// RunOnce は全対象ユーザーの月次サマリーを1回実行する。
// 当月分を記録済みのユーザーはスキップする。
// semaphoreパターンで最大並列数を制御する。
func (j *Job) RunOnce(ctx context.Context) error {
	start := j.now()
	monthKey := MonthKey(start)

	users, err := j.users.ListActiveWrapped(ctx)
	if err != nil {
		return fmt.Errorf("対象ユーザーの取得に失敗しました: %w", err)
	}

	if len(users) == 0 {
		j.logger.Info("月次サマリーの対象ユーザーはありません",
			slog.String("month_key", monthKey),
		)
		return nil
	}

	j.logger.Info("月次サマリーを開始します",
		slog.String("month_key", monthKey),
		slog.Int("user_count", len(users)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, j.maxConcurrency)
	var wg sync.WaitGroup

	for _, user := range users {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(u *model.User) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			if err := j.summarizeUser(ctx, u, monthKey); err != nil {
				j.logger.Error("ユーザーの月次サマリーに失敗しました",
					slog.String("email", u.Email),
					slog.String("error", err.Error()),
				)
			}
		}(user)
	}

	wg.Wait()

	duration := time.Since(start)
	j.logger.Info("月次サマリーが完了しました",
		slog.String("month_key", monthKey),
		slog.Int("user_count", len(users)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// summarizeUser は1ユーザーの月次サマリーを集計して永続化する。
// 記録済みの月はスキップする。
func (j *Job) summarizeUser(ctx context.Context, user *model.User, monthKey string) error {
	existing, err := j.wrapped.FindMonth(ctx, user.Email, monthKey)
	if err != nil {
		return fmt.Errorf("月次記録の確認に失敗しました: %w", err)
	}
	if existing != nil {
		return nil
	}

	api := j.factory.StatsFor(user)

	terms := make(map[string]model.TermSummary, len(model.Terms))
	for _, term := range model.Terms {
		tracks, err := api.TopTracks(ctx, term, topItemLimit)
		if err != nil {
			return fmt.Errorf("上位トラックの取得に失敗しました（%s）: %w", term, err)
		}
		artists, err := api.TopArtists(ctx, term, topItemLimit)
		if err != nil {
			return fmt.Errorf("上位アーティストの取得に失敗しました（%s）: %w", term, err)
		}

		terms[term] = model.TermSummary{
			Tracks:  tracks,
			Artists: artists,
			Genres:  countGenres(artists),
		}
	}

	record := &model.WrappedMonth{
		Email:    user.Email,
		MonthKey: monthKey,
		Terms:    terms,
	}

	if j.playlists != nil {
		playlistID, err := j.createMonthlyPlaylist(ctx, user, monthKey, terms)
		if err != nil {
			// プレイリスト作成の失敗はサマリー保存を妨げない
			j.logger.Warn("月次プレイリストの作成に失敗しました",
				slog.String("email", user.Email),
				slog.String("error", err.Error()),
			)
		} else {
			record.PlaylistID = playlistID
		}
	}

	if err := j.wrapped.UpsertMonth(ctx, record); err != nil {
		return fmt.Errorf("月次記録の保存に失敗しました: %w", err)
	}

	j.logger.Info("月次サマリーを保存しました",
		slog.String("email", user.Email),
		slog.String("month_key", monthKey),
	)

	return nil
}

// createMonthlyPlaylist は直近1ヶ月の上位トラックからプレイリストを作成する。
func (j *Job) createMonthlyPlaylist(ctx context.Context, user *model.User, monthKey string, terms map[string]model.TermSummary) (string, error) {
	short, ok := terms[model.TermShort]
	if !ok || len(short.Tracks) == 0 {
		return "", fmt.Errorf("直近期間のトラックがありません")
	}

	uris := make([]string, 0, len(short.Tracks))
	for _, track := range short.Tracks {
		uris = append(uris, track.URI)
	}

	name := fmt.Sprintf("Wrapped %s", monthKey)
	description := fmt.Sprintf("Your top tracks for %s.", monthKey)
	return j.playlists.Create(ctx, user, name, description, uris)
}

// countGenres はアーティスト一覧からジャンルごとの出現回数を集計する。
func countGenres(artists []model.TopArtist) map[string]int {
	genres := make(map[string]int)
	for _, artist := range artists {
		for _, genre := range artist.Genres {
			genres[genre]++
		}
	}
	return genres
}
