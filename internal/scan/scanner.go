// Package scan はフォローアーティストの週内リリース走査と集約を提供する。
// スキャナー、アルバム展開、ユーザー単位のオーケストレーションを含む。
package scan

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/domgiordano/xomify-backend/internal/model"
	"github.com/domgiordano/xomify-backend/internal/spotify"
	"github.com/domgiordano/xomify-backend/internal/week"
)

const (
	trackURIPrefix = "spotify:track:"
	albumURIPrefix = "spotify:album:"
)

// ReleaseLister はアーティストのリリース一覧取得インターフェース。
// テスト時にモックに差し替え可能。
type ReleaseLister interface {
	ArtistAlbums(ctx context.Context, artistID, group string, limit int) ([]spotify.Album, error)
}

// ScannerConfig はスキャナーの動作パラメータ。
type ScannerConfig struct {
	// Categories は走査対象のリリースカテゴリ。
	Categories []string
	// PageLimit はカテゴリごとの取得件数。新着のみが対象のため小さく保つ。
	PageLimit int
	// BatchSize は一時停止を挟むアーティスト数の単位。
	BatchSize int
	// BatchPause はバッチ間の待機時間。
	BatchPause time.Duration
}

// DefaultScannerConfig はデフォルトのスキャナー設定を返す。
func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{
		Categories: []string{model.AlbumTypeAlbum, model.AlbumTypeSingle, model.AlbumTypeAppearsOn},
		PageLimit:  10,
		BatchSize:  20,
		BatchPause: time.Second,
	}
}

// Outcome は全アーティスト走査の集約結果。
type Outcome struct {
	// TrackURIs はトラック参照として直接現れたURI（重複除去済み）。
	TrackURIs []string
	// AlbumIDs は展開が必要なアルバム参照のID（重複除去済み）。
	AlbumIDs []string
	// Releases は正規化されたリリース記録。アルバムID単位で重複除去済み。
	Releases []model.ReleaseRecord
}

// Scanner はフォローアーティストのリリースを走査する。
// アーティストごと・カテゴリごとに1回の呼び出しを行い、
// 失敗したアーティストはログに記録してスキップする。
type Scanner struct {
	api    ReleaseLister
	logger *slog.Logger
	config ScannerConfig
	sleep  func(ctx context.Context, d time.Duration) error // テスト用に待機を差し替え可能
}

// NewScanner はScannerの新しいインスタンスを生成する。
func NewScanner(api ReleaseLister, logger *slog.Logger, config ScannerConfig) *Scanner {
	if len(config.Categories) == 0 {
		config = DefaultScannerConfig()
	}
	return &Scanner{
		api:    api,
		logger: logger,
		config: config,
		sleep:  sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Scan は全アーティストを走査し、ウィンドウ内のリリースを集約する。
// アーティストはBatchSize単位のバッチに分け、バッチ内は並行に走査し、
// バッチ間にBatchPauseの待機を挟む。
// 個々のアーティストの失敗は全体を止めない。
func (s *Scanner) Scan(ctx context.Context, artists []model.Artist, w week.Window) (*Outcome, error) {
	outcome := &Outcome{}
	seenTracks := make(map[string]bool)
	seenAlbums := make(map[string]bool)

	batchSize := s.config.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultScannerConfig().BatchSize
	}

	for start := 0; start < len(artists); start += batchSize {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// バッチ境界で一時停止（先頭バッチの前は待たない）
		if start > 0 {
			s.logger.Info("アーティストバッチの境界で一時停止します",
				slog.Int("processed", start),
				slog.Int("total", len(artists)),
			)
			if err := s.sleep(ctx, s.config.BatchPause); err != nil {
				return nil, err
			}
		}

		end := start + batchSize
		if end > len(artists) {
			end = len(artists)
		}
		batch := artists[start:end]

		// バッチ内のアーティストを並行に走査する
		results := make([]*artistScanResult, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		for i, artist := range batch {
			i, artist := i, artist
			g.Go(func() error {
				result, err := s.scanArtist(gctx, artist, w)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					// アーティスト単位の失敗は空の貢献として扱う
					s.logger.Warn("アーティストの走査に失敗したためスキップします",
						slog.String("artist_id", artist.ID),
						slog.String("artist_name", artist.Name),
						slog.String("error", err.Error()),
					)
					return nil
				}
				results[i] = result
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		// マージはアーティスト順に逐次行い、全体で重複除去する
		for _, result := range results {
			if result == nil {
				continue
			}
			for _, uri := range result.trackURIs {
				if !seenTracks[uri] {
					seenTracks[uri] = true
					outcome.TrackURIs = append(outcome.TrackURIs, uri)
				}
			}
			for _, rec := range result.releases {
				if !seenAlbums[rec.ID] {
					seenAlbums[rec.ID] = true
					outcome.AlbumIDs = append(outcome.AlbumIDs, rec.ID)
					outcome.Releases = append(outcome.Releases, rec)
				}
			}
		}
	}

	return outcome, nil
}

// artistScanResult は1アーティストの走査結果。重複除去はマージ時に行う。
type artistScanResult struct {
	trackURIs []string
	releases  []model.ReleaseRecord
}

// scanArtist は1アーティストの全カテゴリを走査し、分類済みの結果を返す。
func (s *Scanner) scanArtist(ctx context.Context, artist model.Artist, w week.Window) (*artistScanResult, error) {
	result := &artistScanResult{}
	for _, category := range s.config.Categories {
		albums, err := s.api.ArtistAlbums(ctx, artist.ID, category, s.config.PageLimit)
		if err != nil {
			return nil, err
		}

		for _, album := range albums {
			if !week.InWindow(album.ReleaseDate, w) {
				continue
			}

			// URIをトラック参照とアルバム参照に分類する
			switch {
			case strings.HasPrefix(album.URI, trackURIPrefix):
				result.trackURIs = append(result.trackURIs, album.URI)
			case strings.HasPrefix(album.URI, albumURIPrefix):
				result.releases = append(result.releases, newReleaseRecord(album, artist, category))
			default:
				s.logger.Warn("未知のURI形式のためスキップします",
					slog.String("uri", album.URI),
					slog.String("album_id", album.ID),
				)
			}
		}
	}
	return result, nil
}

// newReleaseRecord はアルバム情報からリリース記録を構築する。
func newReleaseRecord(album spotify.Album, artist model.Artist, category string) model.ReleaseRecord {
	albumType := album.AlbumGroup
	if albumType == "" {
		albumType = album.AlbumType
	}
	if albumType == "" {
		albumType = category
	}

	artistName := album.ArtistName
	artistID := album.ArtistID
	if artistName == "" {
		artistName = artist.Name
		artistID = artist.ID
	}

	return model.ReleaseRecord{
		ID:          album.ID,
		Name:        album.Name,
		ArtistName:  artistName,
		ArtistID:    artistID,
		ImageURL:    album.ImageURL,
		AlbumType:   albumType,
		ReleaseDate: album.ReleaseDate,
		TotalTracks: album.TotalTracks,
		URI:         album.URI,
	}
}
