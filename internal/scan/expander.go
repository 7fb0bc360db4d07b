package scan

import (
	"context"
	"log/slog"

	"github.com/domgiordano/xomify-backend/internal/spotify"
)

// maxAlbumsPerChunk は一括アルバム取得の1チャンクあたり最大ID数。
const maxAlbumsPerChunk = 20

// AlbumDetailer はアルバム詳細の一括取得インターフェース。
// テスト時にモックに差し替え可能。
type AlbumDetailer interface {
	SeveralAlbums(ctx context.Context, ids []string) ([]spotify.Album, error)
}

// Expander はアルバム参照をトラックURIへ展開する。
// アルバムIDを20件単位のチャンクに分割して一括取得し、
// 全アルバムのトラックを平坦化する。
type Expander struct {
	api    AlbumDetailer
	logger *slog.Logger
}

// NewExpander はExpanderの新しいインスタンスを生成する。
func NewExpander(api AlbumDetailer, logger *slog.Logger) *Expander {
	return &Expander{api: api, logger: logger}
}

// Expand は全アルバムのトラックURIを重複除去して返す。
// 失敗したチャンクはログに記録してスキップし、残りの処理を続行する。
func (e *Expander) Expand(ctx context.Context, albumIDs []string) ([]string, error) {
	var uris []string
	seen := make(map[string]bool)

	for i := 0; i < len(albumIDs); i += maxAlbumsPerChunk {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		end := i + maxAlbumsPerChunk
		if end > len(albumIDs) {
			end = len(albumIDs)
		}
		chunk := albumIDs[i:end]

		albums, err := e.api.SeveralAlbums(ctx, chunk)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Warn("アルバムチャンクの展開に失敗したためスキップします",
				slog.Int("chunk_start", i),
				slog.Int("chunk_size", len(chunk)),
				slog.String("error", err.Error()),
			)
			continue
		}

		for _, album := range albums {
			for _, uri := range album.TrackURIs {
				if !seen[uri] {
					seen[uri] = true
					uris = append(uris, uri)
				}
			}
		}
	}

	return uris, nil
}
