package spotify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// defaultTokenEndpoint は認可サーバーのトークンエンドポイント。
const defaultTokenEndpoint = "https://accounts.spotify.com/api/token"

// tokenResponse はトークンエンドポイントのレスポンス。
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// TokenSource はリフレッシュトークングラントでアクセストークンを供給する。
// 有効期限内はキャッシュしたトークンを返し、期限切れ時のみ再取得する。
// ユーザーごとに1インスタンスを生成する。
type TokenSource struct {
	client       *resty.Client
	clientID     string
	clientSecret string
	refreshToken string
	endpoint     string // テスト用にエンドポイントを差し替え可能

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
	now         func() time.Time
}

// NewTokenSource はTokenSourceの新しいインスタンスを生成する。
func NewTokenSource(clientID, clientSecret, refreshToken string) *TokenSource {
	return &TokenSource{
		client:       resty.New().SetTimeout(10 * time.Second),
		clientID:     clientID,
		clientSecret: clientSecret,
		refreshToken: refreshToken,
		endpoint:     defaultTokenEndpoint,
		now:          time.Now,
	}
}

// Token は有効なアクセストークンを返す。
// キャッシュが有効期限の30秒前を過ぎている場合はリフレッシュする。
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accessToken != "" && s.now().Before(s.expiresAt.Add(-30*time.Second)) {
		return s.accessToken, nil
	}

	var result tokenResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBasicAuth(s.clientID, s.clientSecret).
		SetFormData(map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": s.refreshToken,
		}).
		SetResult(&result).
		Post(s.endpoint)
	if err != nil {
		return "", fmt.Errorf("トークンリフレッシュのリクエストに失敗しました: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("トークンリフレッシュがステータス %d を返しました: %s", resp.StatusCode(), resp.String())
	}
	if result.AccessToken == "" {
		return "", fmt.Errorf("トークンレスポンスにaccess_tokenが含まれていません")
	}

	s.accessToken = result.AccessToken
	s.expiresAt = s.now().Add(time.Duration(result.ExpiresIn) * time.Second)
	return s.accessToken, nil
}

// compile-time interface check
var _ TokenProvider = (*TokenSource)(nil)
