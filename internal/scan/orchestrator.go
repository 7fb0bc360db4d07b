package scan

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/domgiordano/xomify-backend/internal/metrics"
	"github.com/domgiordano/xomify-backend/internal/model"
	"github.com/domgiordano/xomify-backend/internal/week"
)

// CatalogAPI は1ユーザー分のスキャンに必要な上流API操作。
type CatalogAPI interface {
	FollowedArtists(ctx context.Context) ([]model.Artist, error)
	ReleaseLister
	AlbumDetailer
}

// ClientFactory はユーザーごとの認証済みAPIクライアントを生成する。
type ClientFactory interface {
	ClientFor(user *model.User) CatalogAPI
}

// UserFailure はバッチスキャンで失敗したユーザーとその原因。
type UserFailure struct {
	User *model.User
	Err  error
}

// Orchestrator はユーザー単位のスキャンフローとバッチ実行を制御する。
type Orchestrator struct {
	factory        ClientFactory
	policy         week.Policy
	config         ScannerConfig
	logger         *slog.Logger
	metrics        metrics.MetricsCollector
	maxConcurrency int
}

// NewOrchestrator はOrchestratorの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。
func NewOrchestrator(
	factory ClientFactory,
	policy week.Policy,
	config ScannerConfig,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
	maxConcurrency int,
) *Orchestrator {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	if collector == nil {
		collector = metrics.Noop{}
	}
	return &Orchestrator{
		factory:        factory,
		policy:         policy,
		config:         config,
		logger:         logger,
		metrics:        collector,
		maxConcurrency: maxConcurrency,
	}
}

// ScanUser は1ユーザーの完全なスキャンフローを実行する。
// フォローアーティスト取得 → リリース走査 → アルバム展開 → 統合の順に進み、
// 重複除去済みのスキャン結果を返す。
func (o *Orchestrator) ScanUser(ctx context.Context, user *model.User, w week.Window) (*model.ScanResult, error) {
	start := time.Now()
	api := o.factory.ClientFor(user)

	artists, err := api.FollowedArtists(ctx)
	if err != nil {
		o.metrics.RecordScanFailure(user.Email, "followed_artists")
		return nil, err
	}

	o.logger.Info("ユーザースキャンを開始します",
		slog.String("email", user.Email),
		slog.Int("artist_count", len(artists)),
	)

	scanner := NewScanner(api, o.logger, o.config)
	outcome, err := scanner.Scan(ctx, artists, w)
	if err != nil {
		o.metrics.RecordScanFailure(user.Email, "scan")
		return nil, err
	}

	expander := NewExpander(api, o.logger)
	expanded, err := expander.Expand(ctx, outcome.AlbumIDs)
	if err != nil {
		o.metrics.RecordScanFailure(user.Email, "expand")
		return nil, err
	}

	// 直接のトラック参照と展開済みトラックを統合し、最終的な重複除去を行う
	seen := make(map[string]bool)
	var trackURIs []string
	for _, uri := range append(append([]string{}, outcome.TrackURIs...), expanded...) {
		if !seen[uri] {
			seen[uri] = true
			trackURIs = append(trackURIs, uri)
		}
	}

	result := &model.ScanResult{
		Email:     user.Email,
		WeekKey:   o.policy.KeyFor(w.Start),
		TrackURIs: trackURIs,
		Releases:  outcome.Releases,
		Stats:     model.CountStats(outcome.Releases, len(trackURIs)),
	}

	duration := time.Since(start)
	o.metrics.RecordScanSuccess(user.Email)
	o.metrics.RecordScanLatency(duration)
	o.metrics.RecordTracksCollected(len(trackURIs))

	o.logger.Info("ユーザースキャンが完了しました",
		slog.String("email", user.Email),
		slog.String("week_key", result.WeekKey),
		slog.Int("track_count", len(trackURIs)),
		slog.Int("release_count", len(result.Releases)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return result, nil
}

// ScanBatch は複数ユーザーのスキャンを上限付き並列で実行する。
// 個々のユーザーの失敗は他のユーザーに影響しない。
// 成功した結果と失敗したユーザーの組を返す。
func (o *Orchestrator) ScanBatch(ctx context.Context, users []*model.User, w week.Window) ([]*model.ScanResult, []UserFailure) {
	var (
		mu       sync.Mutex
		results  []*model.ScanResult
		failures []UserFailure
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxConcurrency)

	for _, user := range users {
		user := user
		g.Go(func() error {
			result, err := o.ScanUser(gctx, user, w)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				o.logger.Error("ユーザースキャンに失敗しました",
					slog.String("email", user.Email),
					slog.String("error", err.Error()),
				)
				failures = append(failures, UserFailure{User: user, Err: err})
				return nil // 失敗を伝播せず他ユーザーの処理を続行する
			}
			results = append(results, result)
			return nil
		})
	}

	g.Wait()
	return results, failures
}
