package spotify

import (
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/domgiordano/xomify-backend/internal/gate"
	"github.com/domgiordano/xomify-backend/internal/metrics"
	"github.com/domgiordano/xomify-backend/internal/model"
)

// Factory はユーザーごとの認証済みクライアントを生成する。
// レートゲート・送信ペーシング・HTTPクライアントは全ユーザーで共有し、
// トークンソースのみユーザーごとに分ける。
type Factory struct {
	httpClient   *http.Client
	gate         *gate.Gate
	limiter      *rate.Limiter
	clientID     string
	clientSecret string
	logger       *slog.Logger
	metrics      metrics.MetricsCollector
}

// NewFactory はFactoryの新しいインスタンスを生成する。
// limiterとcollectorはnil可。
func NewFactory(
	httpClient *http.Client,
	g *gate.Gate,
	limiter *rate.Limiter,
	clientID, clientSecret string,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
) *Factory {
	return &Factory{
		httpClient:   httpClient,
		gate:         g,
		limiter:      limiter,
		clientID:     clientID,
		clientSecret: clientSecret,
		logger:       logger,
		metrics:      collector,
	}
}

// ClientFor はユーザーのリフレッシュトークンに紐づくクライアントを返す。
func (f *Factory) ClientFor(user *model.User) *Client {
	tokens := NewTokenSource(f.clientID, f.clientSecret, user.RefreshToken)
	return NewClient(f.httpClient, f.gate, f.limiter, tokens, f.logger, f.metrics)
}
