package playlist

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// settleDelay はプレイリスト作成直後の操作間に挟む待機時間。
// 作成直後のリソースは上流側で反映が遅れることがある。
const settleDelay = 2 * time.Second

// API はプレイリスト管理に必要な上流API操作。
// テスト時にモックに差し替え可能。
type API interface {
	Me(ctx context.Context) (string, error)
	CreatePlaylist(ctx context.Context, userID, name, description string, public bool) (string, error)
	AddPlaylistTracks(ctx context.Context, playlistID string, uris []string) error
	PlaylistTrackURIs(ctx context.Context, playlistID string) ([]string, error)
	RemovePlaylistTracks(ctx context.Context, playlistID string, uris []string) error
	UploadPlaylistCover(ctx context.Context, playlistID string, b64JPEG []byte) error
}

// Manager はプレイリストの2状態ライフサイクル（未作成 → 作成済み）を管理する。
// 未作成の場合はEnsureで新規作成し、作成済みの場合はReplaceTracksで
// 中身を全面入れ替えする。プレイリスト自体は一度作成したら削除しない。
type Manager struct {
	api    API
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error // テスト用に待機を差し替え可能
}

// NewManager はManagerの新しいインスタンスを生成する。
func NewManager(api API, logger *slog.Logger) *Manager {
	return &Manager{
		api:    api,
		logger: logger,
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

// Ensure はプレイリストを新規作成し、カバー画像とトラックを投入してIDを返す。
// 作成直後の操作は上流側の反映遅延を考慮して待機を挟む。
// カバー画像の投入失敗は致命的ではないためログに記録して続行する。
func (m *Manager) Ensure(ctx context.Context, name, description string, coverB64 []byte, trackURIs []string) (string, error) {
	userID, err := m.api.Me(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to resolve playlist owner: %w", err)
	}

	playlistID, err := m.api.CreatePlaylist(ctx, userID, name, description, false)
	if err != nil {
		return "", fmt.Errorf("failed to create playlist: %w", err)
	}

	m.logger.Info("プレイリストを作成しました",
		slog.String("playlist_id", playlistID),
		slog.String("name", name),
	)

	if err := m.sleep(ctx, settleDelay); err != nil {
		return "", err
	}

	if len(coverB64) > 0 {
		if err := m.api.UploadPlaylistCover(ctx, playlistID, coverB64); err != nil {
			// カバー画像はプレイリストの中身に影響しないため失敗しても続行する
			m.logger.Warn("カバー画像の投入に失敗しました",
				slog.String("playlist_id", playlistID),
				slog.String("error", err.Error()),
			)
		}
		if err := m.sleep(ctx, settleDelay); err != nil {
			return "", err
		}
	}

	if len(trackURIs) > 0 {
		if err := m.api.AddPlaylistTracks(ctx, playlistID, trackURIs); err != nil {
			return "", fmt.Errorf("failed to add tracks to playlist: %w", err)
		}
	}

	return playlistID, nil
}

// ReplaceTracks は作成済みプレイリストの中身を新しいトラック一覧へ全面入れ替えする。
// 既存トラックを全て除去してから新しいトラックを追加する。
func (m *Manager) ReplaceTracks(ctx context.Context, playlistID string, trackURIs []string) error {
	existing, err := m.api.PlaylistTrackURIs(ctx, playlistID)
	if err != nil {
		return fmt.Errorf("failed to list playlist tracks: %w", err)
	}

	if len(existing) > 0 {
		if err := m.api.RemovePlaylistTracks(ctx, playlistID, existing); err != nil {
			return fmt.Errorf("failed to remove playlist tracks: %w", err)
		}
	}

	if len(trackURIs) > 0 {
		if err := m.api.AddPlaylistTracks(ctx, playlistID, trackURIs); err != nil {
			return fmt.Errorf("failed to add playlist tracks: %w", err)
		}
	}

	m.logger.Info("プレイリストの中身を入れ替えました",
		slog.String("playlist_id", playlistID),
		slog.Int("removed", len(existing)),
		slog.Int("added", len(trackURIs)),
	)

	return nil
}
