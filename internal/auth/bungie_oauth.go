package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	defaultBungieAuthURL  = "https://www.bungie.net/en/OAuth/Authorize"
	defaultBungieTokenURL = "https://www.bungie.net/Platform/App/OAuth/Token/"
)

// BungieOAuthConfig はBungie.net OAuthプロバイダーの設定。
type BungieOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL  string
	TokenURL string
}

// BungieOAuthProvider はBungie.net OAuth 2.0による認可を提供する。
type BungieOAuthProvider struct {
	config BungieOAuthConfig
}

// NewBungieOAuthProvider はBungieOAuthProviderを生成する。
func NewBungieOAuthProvider(config BungieOAuthConfig) *BungieOAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultBungieAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultBungieTokenURL
	}
	return &BungieOAuthProvider{config: config}
}

// AuthorizeURL はBungie.netの認可URLを生成する。
func (p *BungieOAuthProvider) AuthorizeURL(state string) string {
	params := url.Values{
		"client_id":     {p.config.ClientID},
		"response_type": {"code"},
		"state":         {state},
	}
	return p.config.AuthURL + "?" + params.Encode()
}

// bungieTokenResponse はBungieのトークンエンドポイントのレスポンス。
// membership_idは文字列エンコードされた数値として返る。
type bungieTokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshToken     string `json:"refresh_token"`
	RefreshExpiresIn int    `json:"refresh_expires_in"`
	MembershipID     string `json:"membership_id"`
}

// OAuthToken はトークン交換の結果を表す。
type OAuthToken struct {
	AccessToken      string
	RefreshToken     string
	ExpiresIn        int
	RefreshExpiresIn int
	MembershipID     int64 // Bungie.netアカウントのmembership_id
}

// ExchangeCode は認可コードをアクセストークンに交換する。
func (p *BungieOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthToken, error) {
	data := url.Values{
		"code":       {code},
		"grant_type": {"authorization_code"},
	}
	return p.requestToken(ctx, data)
}

// Refresh はリフレッシュトークンで新しいアクセストークンを取得する。
func (p *BungieOAuthProvider) Refresh(ctx context.Context, refreshToken string) (*OAuthToken, error) {
	data := url.Values{
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
	}
	return p.requestToken(ctx, data)
}

// requestToken はトークンエンドポイントへのリクエストを実行する。
func (p *BungieOAuthProvider) requestToken(ctx context.Context, data url.Values) (*OAuthToken, error) {
	data.Set("client_id", p.config.ClientID)
	data.Set("client_secret", p.config.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token exchange failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp bungieTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}

	token := &OAuthToken{
		AccessToken:      tokenResp.AccessToken,
		RefreshToken:     tokenResp.RefreshToken,
		ExpiresIn:        tokenResp.ExpiresIn,
		RefreshExpiresIn: tokenResp.RefreshExpiresIn,
	}

	if tokenResp.MembershipID != "" {
		membershipID, err := strconv.ParseInt(tokenResp.MembershipID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid membership_id in token response: %w", err)
		}
		token.MembershipID = membershipID
	}

	return token, nil
}

// compile-time interface check
var _ OAuthProvider = (*BungieOAuthProvider)(nil)
