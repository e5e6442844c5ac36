// Package bungie はBungie.net Platform APIのクライアントを提供する。
package bungie

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/henworth/trent-six/internal/model"
)

// maxResponseSize はAPIレスポンスの最大サイズ（10MB）。
// PGCRは大型だが通常数百KBに収まる。
const maxResponseSize = 10 * 1024 * 1024

// StatusRecorder はAPIレスポンスのHTTPステータス観測を受け取る。
type StatusRecorder interface {
	RecordBungieStatus(statusCode int)
}

// Client はBungie.net Platform APIのクライアント。
// APIキー認証とクライアント側レートリミットを備える。
// 全メソッドはリミッタの待機を挟むため、同時呼び出ししても
// サーバー側のスロットリングを踏まない。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string // テスト用にエンドポイントを差し替え可能
	apiKey     string
	limiter    *rate.Limiter
	metrics    StatusRecorder
}

// NewClient はClientの新しいインスタンスを生成する。
// requestsPerSecondはBungie側の制限（おおむね25req/s）より低く設定すること。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL, apiKey string, requestsPerSecond int) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
	}
}

// WithMetrics はHTTPステータスコードの観測先を設定する。
func (c *Client) WithMetrics(rec StatusRecorder) *Client {
	c.metrics = rec
	return c
}

// get はレートリミット待機付きでAPIを呼び出し、エンベロープを剥がして
// Responseフィールドをoutへデコードする。
func (c *Client) get(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("User-Agent", "TrentSix/1.0 Clan Tracker")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Bungie APIの呼び出しに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()

	if c.metrics != nil {
		c.metrics.RecordBungieStatus(resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Bungie APIがエラーステータスを返しました",
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return fmt.Errorf("Bungie APIがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	if env.ErrorCode != errorCodeSuccess {
		c.logger.Error("Bungie APIがアプリケーションエラーを返しました",
			slog.String("path", path),
			slog.Int("error_code", env.ErrorCode),
			slog.String("error_status", env.ErrorStatus),
		)
		return fmt.Errorf("Bungie APIエラー %s (%d): %s", env.ErrorStatus, env.ErrorCode, env.Message)
	}

	if err := json.Unmarshal(env.Response, out); err != nil {
		return fmt.Errorf("Responseフィールドのパースに失敗しました: %w", err)
	}
	return nil
}

// GetGroupMembers はクランの全所属アカウントを取得する。
// ページネーションは内部で辿り切り、全件を返す。
func (c *Client) GetGroupMembers(ctx context.Context, groupID int64) ([]GroupMember, error) {
	var members []GroupMember
	for page := 1; ; page++ {
		var resp groupMembersResponse
		path := fmt.Sprintf("/GroupV2/%d/Members/?currentpage=%d", groupID, page)
		if err := c.get(ctx, path, &resp); err != nil {
			return nil, fmt.Errorf("クランメンバー一覧の取得に失敗しました: %w", err)
		}
		for _, r := range resp.Results {
			gm := GroupMember{
				MembershipType: r.DestinyUserInfo.MembershipType,
				MembershipID:   int64(r.DestinyUserInfo.MembershipID),
				DisplayName:    r.DestinyUserInfo.DisplayName,
				IconPath:       r.DestinyUserInfo.IconPath,
				MemberType:     r.MemberType,
				JoinDate:       r.JoinDate,
				IsOnline:       r.IsOnline,
			}
			if r.BungieNetUserInfo != nil {
				gm.BungieID = int64(r.BungieNetUserInfo.MembershipID)
			}
			members = append(members, gm)
		}
		if !resp.HasMore {
			return members, nil
		}
	}
}

// GetProfile はアカウントのプロファイルとキャラクターID一覧を取得する。
func (c *Client) GetProfile(ctx context.Context, membershipType int, membershipID int64) (*Profile, error) {
	var resp profileResponse
	path := fmt.Sprintf("/Destiny2/%d/Profile/%d/?components=100", membershipType, membershipID)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("プロファイルの取得に失敗しました: %w", err)
	}

	p := &Profile{
		MembershipType: resp.Profile.Data.UserInfo.MembershipType,
		MembershipID:   int64(resp.Profile.Data.UserInfo.MembershipID),
		DisplayName:    resp.Profile.Data.UserInfo.DisplayName,
		DateLastPlayed: resp.Profile.Data.DateLastPlayed,
	}
	for _, id := range resp.Profile.Data.CharacterIDs {
		p.CharacterIDs = append(p.CharacterIDs, int64(id))
	}
	return p, nil
}

// GetActivityHistory はキャラクター1体のアクティビティ履歴を1ページ取得する。
// modeが0の場合は全モードを対象とする。履歴の終端では空スライスを返す。
func (c *Client) GetActivityHistory(
	ctx context.Context,
	membershipType int,
	membershipID, characterID int64,
	mode, count, page int,
) ([]model.Session, error) {
	var resp activityHistoryResponse
	path := fmt.Sprintf(
		"/Destiny2/%d/Account/%d/Character/%d/Stats/Activities/?mode=%d&count=%d&page=%d",
		membershipType, membershipID, characterID, mode, count, page,
	)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("アクティビティ履歴の取得に失敗しました: %w", err)
	}

	sessions := make([]model.Session, 0, len(resp.Activities))
	for _, a := range resp.Activities {
		sessions = append(sessions, model.Session{
			InstanceID:  int64(a.ActivityDetails.InstanceID),
			ModeID:      a.ActivityDetails.Mode,
			ReferenceID: int64(a.ActivityDetails.ReferenceID),
			OccurredAt:  a.Period,
		})
	}
	return sessions, nil
}

// GetPostGameCarnageReport はセッションの詳細（全参加者付き）を取得する。
// 名前空間に対応しないプラットフォームの参加者は読み飛ばす。
func (c *Client) GetPostGameCarnageReport(ctx context.Context, instanceID int64) (*model.Session, error) {
	var resp carnageReportResponse
	path := fmt.Sprintf("/Destiny2/Stats/PostGameCarnageReport/%d/", instanceID)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("PGCRの取得に失敗しました: %w", err)
	}

	session := &model.Session{
		InstanceID:  instanceID,
		ModeID:      resp.ActivityDetails.Mode,
		ReferenceID: int64(resp.ActivityDetails.ReferenceID),
		OccurredAt:  resp.Period,
	}
	for _, e := range resp.Entries {
		ns, ok := model.NamespaceFromMembershipType(e.Player.DestinyUserInfo.MembershipType)
		if !ok {
			continue
		}
		p := model.Participant{
			Key: model.IdentityKey{
				Namespace:    ns,
				MembershipID: int64(e.Player.DestinyUserInfo.MembershipID),
			},
			DisplayName: e.Player.DestinyUserInfo.DisplayName,
		}
		if v, ok := e.Values["completed"]; ok {
			p.Completed = v.Basic.Value == 1
		}
		// 生レコードにプレイ時間がない場合はゼロのまま
		if v, ok := e.Values["timePlayedSeconds"]; ok {
			p.TimePlayed = time.Duration(v.Basic.Value) * time.Second
		}
		session.Participants = append(session.Participants, p)
	}
	return session, nil
}
