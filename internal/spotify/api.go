package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/domgiordano/xomify-backend/internal/model"
)

const (
	// followedArtistsPageLimit はフォローアーティスト取得の1ページあたり件数。
	followedArtistsPageLimit = 50
	// maxAlbumsPerRequest は一括アルバム取得APIの1リクエストあたり最大ID数。
	maxAlbumsPerRequest = 20
	// maxTracksPerPlaylistRequest はプレイリスト操作の1リクエストあたり最大トラック数。
	maxTracksPerPlaylistRequest = 100
)

// FollowedArtists はフォロー中の全アーティストをカーソルページネーションで取得する。
// 404応答は空一覧として扱う。
func (c *Client) FollowedArtists(ctx context.Context) ([]model.Artist, error) {
	var artists []model.Artist
	after := ""

	for {
		q := url.Values{}
		q.Set("type", "artist")
		q.Set("limit", strconv.Itoa(followedArtistsPageLimit))
		if after != "" {
			q.Set("after", after)
		}

		body, err := c.do(ctx, http.MethodGet, "/me/following", q, nil, "")
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return []model.Artist{}, nil
			}
			return nil, err
		}

		var page followedArtistsResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("フォローアーティストのレスポンスのパースに失敗しました: %w", err)
		}

		for _, a := range page.Artists.Items {
			artists = append(artists, model.Artist{ID: a.ID, Name: a.Name, Genres: a.Genres})
		}

		if page.Artists.Next == "" || page.Artists.Cursors.After == "" {
			return artists, nil
		}
		after = page.Artists.Cursors.After
	}
}

// ArtistAlbums は指定アーティストの指定カテゴリのリリースを1回の呼び出しで取得する。
// ページネーションは行わず、先頭limit件のみを返す。404応答は空一覧として扱う。
func (c *Client) ArtistAlbums(ctx context.Context, artistID, group string, limit int) ([]Album, error) {
	q := url.Values{}
	q.Set("include_groups", group)
	q.Set("limit", strconv.Itoa(limit))

	body, err := c.do(ctx, http.MethodGet, "/artists/"+artistID+"/albums", q, nil, "")
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return []Album{}, nil
		}
		return nil, err
	}

	var page albumPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("アーティストアルバムのレスポンスのパースに失敗しました: %w", err)
	}

	albums := make([]Album, 0, len(page.Items))
	for _, a := range page.Items {
		albums = append(albums, flattenAlbum(a))
	}
	return albums, nil
}

// SeveralAlbums は複数アルバムの詳細を一括取得する。
// IDリストは最大20件まで。404応答は空一覧として扱う。
func (c *Client) SeveralAlbums(ctx context.Context, ids []string) ([]Album, error) {
	if len(ids) == 0 {
		return []Album{}, nil
	}
	if len(ids) > maxAlbumsPerRequest {
		return nil, fmt.Errorf("アルバムIDの数が上限を超えています: %d > %d", len(ids), maxAlbumsPerRequest)
	}

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))

	body, err := c.do(ctx, http.MethodGet, "/albums", q, nil, "")
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return []Album{}, nil
		}
		return nil, err
	}

	var result severalAlbumsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("一括アルバム取得のレスポンスのパースに失敗しました: %w", err)
	}

	albums := make([]Album, 0, len(result.Albums))
	for _, a := range result.Albums {
		albums = append(albums, flattenAlbum(a))
	}
	return albums, nil
}

// TopTracks は指定期間の聴取上位トラックを取得する。
func (c *Client) TopTracks(ctx context.Context, term string, limit int) ([]model.TopTrack, error) {
	q := url.Values{}
	q.Set("time_range", term)
	q.Set("limit", strconv.Itoa(limit))

	body, err := c.do(ctx, http.MethodGet, "/me/top/tracks", q, nil, "")
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return []model.TopTrack{}, nil
		}
		return nil, err
	}

	var page topTracksResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("聴取上位トラックのレスポンスのパースに失敗しました: %w", err)
	}

	tracks := make([]model.TopTrack, 0, len(page.Items))
	for _, tr := range page.Items {
		t := model.TopTrack{ID: tr.ID, Name: tr.Name, URI: tr.URI}
		if len(tr.Artists) > 0 {
			t.ArtistName = tr.Artists[0].Name
		}
		tracks = append(tracks, t)
	}
	return tracks, nil
}

// TopArtists は指定期間の聴取上位アーティストを取得する。
func (c *Client) TopArtists(ctx context.Context, term string, limit int) ([]model.TopArtist, error) {
	q := url.Values{}
	q.Set("time_range", term)
	q.Set("limit", strconv.Itoa(limit))

	body, err := c.do(ctx, http.MethodGet, "/me/top/artists", q, nil, "")
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return []model.TopArtist{}, nil
		}
		return nil, err
	}

	var page topArtistsResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("聴取上位アーティストのレスポンスのパースに失敗しました: %w", err)
	}

	artists := make([]model.TopArtist, 0, len(page.Items))
	for _, a := range page.Items {
		artists = append(artists, model.TopArtist{ID: a.ID, Name: a.Name, Genres: a.Genres})
	}
	return artists, nil
}

// Me は認証済みユーザーのプロフィールIDを返す。
func (c *Client) Me(ctx context.Context) (string, error) {
	body, err := c.do(ctx, http.MethodGet, "/me", nil, nil, "")
	if err != nil {
		return "", err
	}

	var profile userProfileResponse
	if err := json.Unmarshal(body, &profile); err != nil {
		return "", fmt.Errorf("プロフィールのレスポンスのパースに失敗しました: %w", err)
	}
	return profile.ID, nil
}

// CreatePlaylist は新しいプレイリストを作成し、そのIDを返す。
func (c *Client) CreatePlaylist(ctx context.Context, userID, name, description string, public bool) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"name":        name,
		"description": description,
		"public":      public,
	})
	if err != nil {
		return "", fmt.Errorf("プレイリスト作成リクエストの生成に失敗しました: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, "/users/"+userID+"/playlists", nil, payload, "application/json")
	if err != nil {
		return "", err
	}

	var result createPlaylistResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("プレイリスト作成のレスポンスのパースに失敗しました: %w", err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("プレイリスト作成のレスポンスにIDが含まれていません")
	}
	return result.ID, nil
}

// AddPlaylistTracks はプレイリストにトラックを追加する。
// URIリストは100件単位のチャンクに分割して送信する。
func (c *Client) AddPlaylistTracks(ctx context.Context, playlistID string, uris []string) error {
	for i := 0; i < len(uris); i += maxTracksPerPlaylistRequest {
		end := i + maxTracksPerPlaylistRequest
		if end > len(uris) {
			end = len(uris)
		}

		payload, err := json.Marshal(map[string]any{"uris": uris[i:end]})
		if err != nil {
			return fmt.Errorf("トラック追加リクエストの生成に失敗しました: %w", err)
		}

		if _, err := c.do(ctx, http.MethodPost, "/playlists/"+playlistID+"/tracks", nil, payload, "application/json"); err != nil {
			return err
		}
	}
	return nil
}

// PlaylistTrackURIs はプレイリストの全トラックURIをページネーションで取得する。
// 404応答は空一覧として扱う。
func (c *Client) PlaylistTrackURIs(ctx context.Context, playlistID string) ([]string, error) {
	var uris []string
	offset := 0

	for {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(maxTracksPerPlaylistRequest))
		q.Set("offset", strconv.Itoa(offset))

		body, err := c.do(ctx, http.MethodGet, "/playlists/"+playlistID+"/tracks", q, nil, "")
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return []string{}, nil
			}
			return nil, err
		}

		var page playlistTracksResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("プレイリストトラックのレスポンスのパースに失敗しました: %w", err)
		}

		for _, item := range page.Items {
			if item.Track.URI != "" {
				uris = append(uris, item.Track.URI)
			}
		}

		if page.Next == "" || len(page.Items) == 0 {
			return uris, nil
		}
		offset += len(page.Items)
	}
}

// RemovePlaylistTracks はプレイリストから指定トラックを削除する。
// URIリストは100件単位のチャンクに分割して送信する。
// 上流がボディなしの応答を返した場合も成功として扱う。
func (c *Client) RemovePlaylistTracks(ctx context.Context, playlistID string, uris []string) error {
	for i := 0; i < len(uris); i += maxTracksPerPlaylistRequest {
		end := i + maxTracksPerPlaylistRequest
		if end > len(uris) {
			end = len(uris)
		}

		tracks := make([]map[string]string, 0, end-i)
		for _, uri := range uris[i:end] {
			tracks = append(tracks, map[string]string{"uri": uri})
		}
		payload, err := json.Marshal(map[string]any{"tracks": tracks})
		if err != nil {
			return fmt.Errorf("トラック削除リクエストの生成に失敗しました: %w", err)
		}

		if _, err := c.do(ctx, http.MethodDelete, "/playlists/"+playlistID+"/tracks", nil, payload, "application/json"); err != nil {
			return err
		}
	}
	return nil
}

// UploadPlaylistCover はプレイリストのカバー画像をアップロードする。
// bodyはBase64エンコード済みJPEGデータを指定する。
func (c *Client) UploadPlaylistCover(ctx context.Context, playlistID string, b64JPEG []byte) error {
	_, err := c.do(ctx, http.MethodPut, "/playlists/"+playlistID+"/images", nil, b64JPEG, "image/jpeg")
	return err
}
