// Package media はメディアカタログのドメインロジックを提供する。
package media

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// maxThumbnailSize はサムネイルの最大サイズ（2MB）。
const maxThumbnailSize = 2 * 1024 * 1024

// thumbnailTimeout はサムネイル取得のタイムアウト。
const thumbnailTimeout = 5 * time.Second

// SSRFValidator はSSRF検証のインターフェース。
// security.SSRFGuardServiceを抽象化してテスタビリティを向上させる。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// ThumbnailFetcherService はサムネイル取得のインターフェース。
type ThumbnailFetcherService interface {
	// FetchThumbnail は指定URLからサムネイル画像を取得する。
	// 取得失敗時はnilデータと空MIMEを返す（エラーは返さない）。
	FetchThumbnail(ctx context.Context, thumbnailURL string) (data []byte, mimeType string, err error)
}

// ThumbnailFetcher はサムネイル取得機能の実装。
type ThumbnailFetcher struct {
	ssrfGuard SSRFValidator
}

// NewThumbnailFetcher はThumbnailFetcherの新しいインスタンスを生成する。
func NewThumbnailFetcher(ssrfGuard SSRFValidator) *ThumbnailFetcher {
	return &ThumbnailFetcher{
		ssrfGuard: ssrfGuard,
	}
}

// FetchThumbnail は指定URLからサムネイル画像を取得する。
// 取得失敗はカタログ登録を妨げないため、nilデータを返すだけでエラーにしない。
func (f *ThumbnailFetcher) FetchThumbnail(ctx context.Context, thumbnailURL string) ([]byte, string, error) {
	if thumbnailURL == "" {
		return nil, "", nil
	}

	// SSRF検証
	if f.ssrfGuard != nil {
		if err := f.ssrfGuard.ValidateURL(thumbnailURL); err != nil {
			slog.Warn("サムネイル取得: SSRFブロック", "url", thumbnailURL, "error", err)
			return nil, "", nil
		}
	}

	client := f.getHTTPClient()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, thumbnailURL, nil)
	if err != nil {
		slog.Warn("サムネイル取得: リクエスト作成失敗", "url", thumbnailURL, "error", err)
		return nil, "", nil
	}
	req.Header.Set("User-Agent", "Mediagate/1.0")

	resp, err := client.Do(req)
	if err != nil {
		slog.Warn("サムネイル取得: HTTPリクエスト失敗", "url", thumbnailURL, "error", err)
		return nil, "", nil
	}
	defer resp.Body.Close()

	// 2xx以外は取得失敗として扱う
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("サムネイル取得: HTTPステータス異常", "url", thumbnailURL, "status", resp.StatusCode)
		return nil, "", nil
	}

	// レスポンスボディを読み込み（最大2MB）
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxThumbnailSize+1))
	if err != nil {
		slog.Warn("サムネイル取得: レスポンス読み取り失敗", "url", thumbnailURL, "error", err)
		return nil, "", nil
	}

	if int64(len(body)) > maxThumbnailSize {
		slog.Warn("サムネイル取得: サイズ超過", "url", thumbnailURL, "size", len(body))
		return nil, "", nil
	}

	mimeType := extractMimeType(resp.Header.Get("Content-Type"))

	// 画像でない場合はnilを返す
	if !isImageMime(mimeType) {
		slog.Warn("サムネイル取得: 画像以外のContent-Type", "url", thumbnailURL, "mimeType", mimeType)
		return nil, "", nil
	}

	return body, mimeType, nil
}

// getHTTPClient はHTTPクライアントを取得する。
func (f *ThumbnailFetcher) getHTTPClient() *http.Client {
	if f.ssrfGuard != nil {
		return f.ssrfGuard.NewSafeClient(thumbnailTimeout, maxThumbnailSize)
	}
	return &http.Client{Timeout: thumbnailTimeout}
}

// extractMimeType はContent-Typeヘッダーからメディアタイプを抽出する。
func extractMimeType(contentType string) string {
	if contentType == "" {
		return ""
	}
	// セミコロンの前の部分（charset等を除去）
	parts := strings.SplitN(contentType, ";", 2)
	return strings.TrimSpace(strings.ToLower(parts[0]))
}

// isImageMime はMIMEタイプが画像かどうかを判定する。
func isImageMime(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

// compile-time interface check
var _ ThumbnailFetcherService = (*ThumbnailFetcher)(nil)
