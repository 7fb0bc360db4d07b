// Package playlist はプレイリストのライフサイクル管理とカバー画像の準備を提供する。
package playlist

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // カバー画像のソースがPNGの場合のデコード用
	"io"
	"net/http"
	"time"

	"golang.org/x/image/draw"

	"github.com/domgiordano/xomify-backend/internal/security"
)

const (
	// coverSize はアップロードするカバー画像の一辺のピクセル数。
	coverSize = 300
	// coverJPEGQuality はカバー画像のJPEGエンコード品質。
	coverJPEGQuality = 70
	// maxCoverBytes は上流が受け付けるカバー画像の最大サイズ（エンコード後）。
	maxCoverBytes = 256 * 1024
	// maxSourceBytes は取得するソース画像の最大サイズ。
	maxSourceBytes = 10 * 1024 * 1024
	// coverFetchTimeout はソース画像取得のタイムアウト。
	coverFetchTimeout = 15 * time.Second
)

// CoverBuilder はリリース画像URLからアップロード可能なカバー画像を構築する。
// 画像の取得にはSSRF防止機能付きのHTTPクライアントを使用する。
type CoverBuilder struct {
	guard  security.SSRFGuardService
	client *http.Client
}

// NewCoverBuilder はCoverBuilderの新しいインスタンスを生成する。
func NewCoverBuilder(guard security.SSRFGuardService) *CoverBuilder {
	return &CoverBuilder{
		guard:  guard,
		client: guard.NewSafeClient(coverFetchTimeout, maxSourceBytes),
	}
}

// Build は画像URLを取得し、300x300のJPEG（品質70）へ変換して
// base64エンコードしたバイト列を返す。
// エンコード後のサイズが上限を超える場合はエラーを返す。
func (b *CoverBuilder) Build(ctx context.Context, imageURL string) ([]byte, error) {
	if err := b.guard.ValidateURL(imageURL); err != nil {
		return nil, fmt.Errorf("cover image URL rejected: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build cover request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch cover image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cover image fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read cover image: %w", err)
	}

	return encodeCover(data)
}

// encodeCover はソース画像を300x300のJPEGへ変換し、base64エンコードする。
func encodeCover(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode cover image: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, coverSize, coverSize))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: coverJPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode cover image: %w", err)
	}

	if buf.Len() > maxCoverBytes {
		return nil, fmt.Errorf("encoded cover image is %d bytes, exceeds limit of %d", buf.Len(), maxCoverBytes)
	}

	encoded := make([]byte, base64.StdEncoding.EncodedLen(buf.Len()))
	base64.StdEncoding.Encode(encoded, buf.Bytes())
	return encoded, nil
}
