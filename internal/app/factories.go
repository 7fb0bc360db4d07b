package app

import (
	"context"
	"log/slog"

	"github.com/domgiordano/xomify-backend/internal/model"
	"github.com/domgiordano/xomify-backend/internal/playlist"
	"github.com/domgiordano/xomify-backend/internal/scan"
	"github.com/domgiordano/xomify-backend/internal/spotify"
	"github.com/domgiordano/xomify-backend/internal/worker/radar"
	"github.com/domgiordano/xomify-backend/internal/worker/wrapped"
)

// scanClientFactory は spotify.Factory を scan.ClientFactory に適合させるアダプタ。
type scanClientFactory struct {
	factory *spotify.Factory
}

// ClientFor はユーザーのカタログAPIクライアントを返す。
func (a *scanClientFactory) ClientFor(user *model.User) scan.CatalogAPI {
	return a.factory.ClientFor(user)
}

// statsClientFactory は spotify.Factory を wrapped.ClientFactory に適合させるアダプタ。
type statsClientFactory struct {
	factory *spotify.Factory
}

// StatsFor はユーザーの聴取統計APIクライアントを返す。
func (a *statsClientFactory) StatsFor(user *model.User) wrapped.StatsAPI {
	return a.factory.ClientFor(user)
}

// playlistManagerFactory は spotify.Factory を radar.PlaylistFactory に適合させるアダプタ。
type playlistManagerFactory struct {
	factory *spotify.Factory
	logger  *slog.Logger
}

// ManagerFor はユーザーのプレイリストマネージャを返す。
func (a *playlistManagerFactory) ManagerFor(user *model.User) radar.PlaylistManager {
	return playlist.NewManager(a.factory.ClientFor(user), a.logger)
}

// playlistCreatorAdapter は playlist.Manager を wrapped.PlaylistCreator に適合させるアダプタ。
type playlistCreatorAdapter struct {
	factory *spotify.Factory
	logger  *slog.Logger
}

// Create は指定トラックのプレイリストを作成しIDを返す。
func (a *playlistCreatorAdapter) Create(ctx context.Context, user *model.User, name, description string, trackURIs []string) (string, error) {
	mgr := playlist.NewManager(a.factory.ClientFor(user), a.logger)
	return mgr.Ensure(ctx, name, description, nil, trackURIs)
}

// --- compile-time interface checks ---

var _ scan.ClientFactory = (*scanClientFactory)(nil)
var _ wrapped.ClientFactory = (*statsClientFactory)(nil)
var _ radar.PlaylistFactory = (*playlistManagerFactory)(nil)
var _ wrapped.PlaylistCreator = (*playlistCreatorAdapter)(nil)
