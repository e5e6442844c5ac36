// Package auth はBungie.net OAuthによるアカウント連携を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/henworth/trent-six/internal/model"
	"github.com/henworth/trent-six/internal/repository"
)

// OAuthProvider はBungie.net OAuthプロバイダーのインターフェース。
type OAuthProvider interface {
	// AuthorizeURL は認可URLを生成する。
	AuthorizeURL(state string) string
	// ExchangeCode は認可コードをアクセストークンに交換する。
	ExchangeCode(ctx context.Context, code string) (*OAuthToken, error)
	// Refresh はリフレッシュトークンで新しいアクセストークンを取得する。
	Refresh(ctx context.Context, refreshToken string) (*OAuthToken, error)
}

// Service はBungie.netアカウント連携のビジネスロジックを提供する。
type Service struct {
	oauth      OAuthProvider
	memberRepo repository.MemberRepository
	logger     *slog.Logger
}

// NewService はServiceを生成する。
func NewService(oauth OAuthProvider, memberRepo repository.MemberRepository, logger *slog.Logger) *Service {
	return &Service{
		oauth:      oauth,
		memberRepo: memberRepo,
		logger:     logger,
	}
}

// AuthorizeURL はBungie.netの認可URLを生成する。
func (s *Service) AuthorizeURL(state string) string {
	return s.oauth.AuthorizeURL(state)
}

// HandleCallback はOAuthコールバックを処理する。
// 認可コードをトークンに交換し、Bungie.netのmembership_idで
// 既存メンバーを特定してトークンを保存する。
// 未登録のmembership_idの場合は新規メンバーを作成する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Member, error) {
	oauthToken, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		s.logger.Warn("OAuthコード交換に失敗", slog.String("error", err.Error()))
		return nil, model.NewOAuthExchangeError()
	}

	key := model.IdentityKey{
		Namespace:    model.NamespaceBungie,
		MembershipID: oauthToken.MembershipID,
	}

	member, err := s.memberRepo.FindByIdentity(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("メンバーの検索に失敗しました: %w", err)
	}

	if member == nil {
		now := time.Now()
		member = &model.Member{
			ID:          uuid.NewString(),
			DisplayName: fmt.Sprintf("guardian-%d", oauthToken.MembershipID),
			Identities: []model.Identity{
				{Key: key},
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.memberRepo.Create(ctx, member); err != nil {
			var dup *model.DuplicateIdentityError
			if errors.As(err, &dup) {
				return nil, model.NewDuplicateLinkError()
			}
			return nil, fmt.Errorf("メンバーの作成に失敗しました: %w", err)
		}
		s.logger.Info("新規メンバーを連携",
			slog.String("member_id", member.ID),
			slog.String("identity", key.String()),
		)
	}

	if err := s.storeToken(ctx, member.ID, oauthToken); err != nil {
		return nil, err
	}

	s.logger.Info("Bungie.netアカウントを連携",
		slog.String("member_id", member.ID),
		slog.String("identity", key.String()),
	)
	return member, nil
}

// RefreshMemberToken はメンバーの保存済みトークンをリフレッシュする。
// リフレッシュトークンが未設定または期限切れの場合はエラーを返す。
func (s *Service) RefreshMemberToken(ctx context.Context, memberID string) (*model.BungieToken, error) {
	stored, err := s.memberRepo.FindTokens(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("トークンの取得に失敗しました: %w", err)
	}
	if stored == nil || stored.RefreshToken == "" {
		return nil, fmt.Errorf("リフレッシュトークンが設定されていません: member=%s", memberID)
	}
	if !stored.RefreshExpires.IsZero() && stored.RefreshExpires.Before(time.Now()) {
		return nil, fmt.Errorf("リフレッシュトークンの期限が切れています: member=%s", memberID)
	}

	oauthToken, err := s.oauth.Refresh(ctx, stored.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("トークンのリフレッシュに失敗しました: %w", err)
	}

	if err := s.storeToken(ctx, memberID, oauthToken); err != nil {
		return nil, err
	}

	token := tokenFromOAuth(oauthToken)
	s.logger.Info("トークンをリフレッシュ", slog.String("member_id", memberID))
	return token, nil
}

// storeToken は交換結果をメンバーに保存する。
func (s *Service) storeToken(ctx context.Context, memberID string, oauthToken *OAuthToken) error {
	if err := s.memberRepo.UpdateTokens(ctx, memberID, tokenFromOAuth(oauthToken)); err != nil {
		return fmt.Errorf("トークンの保存に失敗しました: %w", err)
	}
	return nil
}

// tokenFromOAuth は交換結果を有効期限付きのモデルに変換する。
func tokenFromOAuth(oauthToken *OAuthToken) *model.BungieToken {
	now := time.Now()
	return &model.BungieToken{
		AccessToken:    oauthToken.AccessToken,
		RefreshToken:   oauthToken.RefreshToken,
		AccessExpires:  now.Add(time.Duration(oauthToken.ExpiresIn) * time.Second),
		RefreshExpires: now.Add(time.Duration(oauthToken.RefreshExpiresIn) * time.Second),
	}
}

// GenerateState はCSRF対策用のOAuth stateパラメータを生成する。
func GenerateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
