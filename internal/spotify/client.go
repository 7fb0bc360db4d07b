// Package spotify は上流音楽カタログAPIのレート制御付きクライアントを提供する。
// プロセス共有のレートゲートと送信ペーシング、統一リトライ規約を含む。
package spotify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/domgiordano/xomify-backend/internal/gate"
	"github.com/domgiordano/xomify-backend/internal/metrics"
	"github.com/domgiordano/xomify-backend/internal/model"
)

const (
	// defaultBaseURL は上流APIのベースURL。
	defaultBaseURL = "https://api.spotify.com/v1"
	// maxAttempts は1論理呼び出しあたりの最大試行回数。
	maxAttempts = 3
	// defaultRetryAfter はRetry-Afterヘッダー欠落時のデフォルト待機秒数。
	defaultRetryAfter = 1
)

// TokenProvider はアクセストークンの供給インターフェース。
// テスト時にモックに差し替え可能。
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken は固定トークンを返すTokenProvider。テスト用。
type StaticToken string

// Token は固定トークンをそのまま返す。
func (t StaticToken) Token(ctx context.Context) (string, error) {
	return string(t), nil
}

// Client は上流APIのレート制御付きHTTPクライアント。
// 全呼び出しが同一の規約に従う:
//   - 呼び出し前にゲート開放とペーシングを待つ
//   - 429はゲートを閉じてRetry-After+1秒待機後に再試行（上限3回）
//   - 401は即時失敗、404は呼び出し元で空コレクション扱い
//   - トランスポート失敗は指数バックオフで再試行
//
// 非冪等なメソッド（POST等）もトランスポート断で再試行されるため、
// 上流側で重複が発生し得る。現状は許容している。
type Client struct {
	httpClient *http.Client
	gate       *gate.Gate
	limiter    *rate.Limiter
	tokens     TokenProvider
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
	baseURL    string                                         // テスト用にエンドポイントを差し替え可能
	sleep      func(ctx context.Context, d time.Duration) error // テスト用に待機を差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
// limiterとcollectorはnil可（nilの場合はペーシング・計測を行わない）。
func NewClient(
	httpClient *http.Client,
	g *gate.Gate,
	limiter *rate.Limiter,
	tokens TokenProvider,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
) *Client {
	if collector == nil {
		collector = metrics.Noop{}
	}
	return &Client{
		httpClient: httpClient,
		gate:       g,
		limiter:    limiter,
		tokens:     tokens,
		logger:     logger,
		metrics:    collector,
		baseURL:    defaultBaseURL,
		sleep:      sleepContext,
	}
}

// sleepContext はコンテキストキャンセルに応答する待機。
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

// do は1論理呼び出しを実行し、2xx応答のボディを返す。
// リトライは明示的な有限ループで行う（再帰は使わない）。
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, contentType string) ([]byte, error) {
	endpoint := method + " " + path
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		// ゲート開放を待つ。閉鎖中は他の呼び出しの再開放までブロックする
		if err := c.gate.Wait(ctx); err != nil {
			return nil, err
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("アクセストークンの取得に失敗しました: %w", err)
		}

		reqURL := c.baseURL + path
		if len(query) > 0 {
			reqURL += "?" + query.Encode()
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
		if err != nil {
			return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			c.logger.Warn("上流APIへの通信に失敗しました",
				slog.String("endpoint", endpoint),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			if attempt < maxAttempts {
				// 指数バックオフ: 2^attempt + 1 秒
				backoff := time.Duration((1<<attempt)+1) * time.Second
				if err := c.sleep(ctx, backoff); err != nil {
					return nil, err
				}
			}
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		c.metrics.RecordHTTPStatus(resp.StatusCode)

		if readErr != nil {
			lastErr = readErr
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return respBody, nil

		case resp.StatusCode == http.StatusUnauthorized:
			// 認証失効はリトライしても解消しないため即座に返す
			return nil, &model.AuthExpiredError{Endpoint: endpoint}

		case resp.StatusCode == http.StatusTooManyRequests:
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
			c.gate.Close()
			c.metrics.RecordGateClosure()
			c.logger.Warn("レート制限を受けたためゲートを閉鎖します",
				slog.String("endpoint", endpoint),
				slog.Int("attempt", attempt),
				slog.Int("retry_after_sec", retryAfter),
			)
			err := c.sleep(ctx, time.Duration(retryAfter+1)*time.Second)
			// 待機結果に関わらずゲートは必ず再開放する
			c.gate.Open()
			if err != nil {
				return nil, err
			}
			continue

		case resp.StatusCode == http.StatusNotFound:
			return nil, fmt.Errorf("%s: %w", endpoint, model.ErrNotFound)

		default:
			return nil, &model.UpstreamAPIError{
				Endpoint:   endpoint,
				StatusCode: resp.StatusCode,
				Body:       string(respBody),
			}
		}
	}

	if lastErr != nil {
		return nil, &model.TransportError{Endpoint: endpoint, Err: lastErr}
	}
	return nil, &model.RateLimitExceededError{Endpoint: endpoint, Attempts: maxAttempts}
}

// parseRetryAfter はRetry-Afterヘッダーを秒数として解釈する。
// 欠落または不正な場合はデフォルト値を返す。
func parseRetryAfter(v string) int {
	if v == "" {
		return defaultRetryAfter
	}
	sec, err := strconv.Atoi(v)
	if err != nil || sec < 0 {
		return defaultRetryAfter
	}
	return sec
}
