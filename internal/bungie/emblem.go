// Package bungie はBungie.net Platform APIのクライアントを提供する。
package bungie

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/henworth/trent-six/internal/security"
)

// emblemCDNBase はエンブレム画像を配信するBungie CDNのベースURL。
const emblemCDNBase = "https://www.bungie.net"

// EmblemURL は名簿レスポンスのiconPathから画像の絶対URLを組み立てる。
// iconPathが既に絶対URLの場合はそのまま返す。
func EmblemURL(iconPath string) string {
	if iconPath == "" {
		return ""
	}
	if strings.HasPrefix(iconPath, "http://") || strings.HasPrefix(iconPath, "https://") {
		return iconPath
	}
	return emblemCDNBase + iconPath
}

// EmblemFetcherService はメンバーのエンブレム画像取得のインターフェース。
type EmblemFetcherService interface {
	// FetchEmblem は指定URLからエンブレム画像を取得する。
	// 取得失敗時はnilデータと空MIMEを返す（エラーは返さない）。
	// エンブレムは表示の装飾であり、取得失敗でスキャンを止めない。
	FetchEmblem(ctx context.Context, emblemURL string) (data []byte, mimeType string, err error)
}

// EmblemFetcher はエンブレム画像取得機能の実装。
// 画像URLはAPIレスポンス由来の外部入力であるため、
// SSRF防止付きクライアントで取得する。
type EmblemFetcher struct {
	ssrfGuard security.SSRFGuardService
	timeout   time.Duration
	maxSize   int64
}

// NewEmblemFetcher はEmblemFetcherの新しいインスタンスを生成する。
func NewEmblemFetcher(ssrfGuard security.SSRFGuardService, timeout time.Duration, maxSize int64) *EmblemFetcher {
	return &EmblemFetcher{
		ssrfGuard: ssrfGuard,
		timeout:   timeout,
		maxSize:   maxSize,
	}
}

// FetchEmblem は指定URLからエンブレム画像を取得する。
// 取得失敗時はnilデータと空MIMEを返す。
func (f *EmblemFetcher) FetchEmblem(ctx context.Context, emblemURL string) ([]byte, string, error) {
	if emblemURL == "" {
		return nil, "", nil
	}

	// SSRF検証
	if f.ssrfGuard != nil {
		if err := f.ssrfGuard.ValidateURL(emblemURL); err != nil {
			slog.Warn("エンブレム取得: SSRFブロック", "url", emblemURL, "error", err)
			return nil, "", nil
		}
	}

	client := f.getHTTPClient()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, emblemURL, nil)
	if err != nil {
		slog.Warn("エンブレム取得: リクエスト作成失敗", "url", emblemURL, "error", err)
		return nil, "", nil
	}
	req.Header.Set("User-Agent", "TrentSix/1.0 Clan Tracker")

	resp, err := client.Do(req)
	if err != nil {
		slog.Warn("エンブレム取得: HTTPリクエスト失敗", "url", emblemURL, "error", err)
		return nil, "", nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("エンブレム取得: HTTPステータス異常", "url", emblemURL, "status", resp.StatusCode)
		return nil, "", nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		slog.Warn("エンブレム取得: レスポンス読み取り失敗", "url", emblemURL, "error", err)
		return nil, "", nil
	}

	if int64(len(body)) > f.maxSize {
		slog.Warn("エンブレム取得: サイズ超過", "url", emblemURL, "size", len(body))
		return nil, "", nil
	}

	mimeType := extractMimeType(resp.Header.Get("Content-Type"))
	if !strings.HasPrefix(mimeType, "image/") {
		slog.Warn("エンブレム取得: 画像以外のContent-Type", "url", emblemURL, "contentType", mimeType)
		return nil, "", nil
	}

	return body, mimeType, nil
}

// getHTTPClient はHTTPクライアントを取得する。
func (f *EmblemFetcher) getHTTPClient() *http.Client {
	if f.ssrfGuard != nil {
		return f.ssrfGuard.NewSafeClient(f.timeout, f.maxSize)
	}
	return &http.Client{Timeout: f.timeout}
}

// extractMimeType はContent-Typeヘッダーからメディアタイプを抽出する。
func extractMimeType(contentType string) string {
	if contentType == "" {
		return ""
	}
	parts := strings.SplitN(contentType, ";", 2)
	return strings.TrimSpace(strings.ToLower(parts[0]))
}

// compile-time interface check
var _ EmblemFetcherService = (*EmblemFetcher)(nil)
