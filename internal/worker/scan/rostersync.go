// Package scan はクラン名簿の同期とアクティビティ履歴のスキャンを提供する。
// スケジューラ、名簿シンカー、スキャナーを含む。
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/henworth/trent-six/internal/bungie"
	"github.com/henworth/trent-six/internal/model"
	"github.com/henworth/trent-six/internal/repository"
	"github.com/henworth/trent-six/internal/security"
)

// rosterAPI は名簿同期が必要とするAPI呼び出しの部分インターフェース。
type rosterAPI interface {
	GetGroupMembers(ctx context.Context, groupID int64) ([]bungie.GroupMember, error)
}

// RosterSyncer はBungie APIのクラン名簿をローカルの名簿と同期する。
// 新規加入者はメンバーとして登録し、脱退者の所属を非アクティブ化する。
// 所属のjoin_dateは初回登録時の値を保持し、同期で上書きしない。
type RosterSyncer struct {
	api        rosterAPI
	memberRepo repository.MemberRepository
	clanRepo   repository.ClanRepository
	sanitizer  security.NameSanitizerService
	emblems    bungie.EmblemFetcherService
	logger     *slog.Logger
}

// NewRosterSyncer はRosterSyncerの新しいインスタンスを生成する。
// sanitizerがnilの場合はデフォルトのサニタイザーを使用する。
// emblemsがnilの場合はエンブレム取得をスキップする。
func NewRosterSyncer(
	api rosterAPI,
	memberRepo repository.MemberRepository,
	clanRepo repository.ClanRepository,
	sanitizer security.NameSanitizerService,
	emblems bungie.EmblemFetcherService,
	logger *slog.Logger,
) *RosterSyncer {
	if sanitizer == nil {
		sanitizer = security.NewNameSanitizer()
	}
	return &RosterSyncer{
		api:        api,
		memberRepo: memberRepo,
		clanRepo:   clanRepo,
		sanitizer:  sanitizer,
		emblems:    emblems,
		logger:     logger,
	}
}

// SyncClan はクラン1件の名簿を同期する。
func (s *RosterSyncer) SyncClan(ctx context.Context, clan *model.Clan) error {
	start := time.Now()

	groupMembers, err := s.api.GetGroupMembers(ctx, clan.GroupID)
	if err != nil {
		return fmt.Errorf("クラン名簿の取得に失敗しました: %w", err)
	}

	activeIDs := make([]string, 0, len(groupMembers))
	var added int

	for _, gm := range groupMembers {
		// 表示名はプラットフォーム上で自由に設定できる不信頼入力
		gm.DisplayName = s.sanitizer.SanitizeName(gm.DisplayName)

		ns, ok := model.NamespaceFromMembershipType(gm.MembershipType)
		if !ok {
			s.logger.Warn("未対応のプラットフォームをスキップします",
				slog.Int("membership_type", gm.MembershipType),
				slog.String("display_name", gm.DisplayName),
			)
			continue
		}

		key := model.IdentityKey{Namespace: ns, MembershipID: gm.MembershipID}

		member, err := s.memberRepo.FindByIdentity(ctx, key)
		if err != nil {
			return fmt.Errorf("メンバーの検索に失敗しました: %w", err)
		}

		if member == nil {
			member, err = s.createMember(ctx, gm, key)
			if err != nil {
				return err
			}
			added++
		} else if gm.DisplayName != "" {
			identity := model.Identity{Key: key, DisplayName: gm.DisplayName}
			if err := s.memberRepo.UpsertIdentity(ctx, member.ID, identity); err != nil {
				return fmt.Errorf("identityの更新に失敗しました: %w", err)
			}
		}

		if err := s.clanRepo.AddMembership(ctx, clan.ID, member.ID, gm.JoinDate, gm.MemberType); err != nil {
			return fmt.Errorf("クラン所属の記録に失敗しました: %w", err)
		}
		activeIDs = append(activeIDs, member.ID)
	}

	deactivated, err := s.clanRepo.DeactivateMissing(ctx, clan.ID, activeIDs)
	if err != nil {
		return fmt.Errorf("脱退者の非アクティブ化に失敗しました: %w", err)
	}

	s.logger.Info("クラン名簿の同期が完了しました",
		slog.String("clan_id", clan.ID),
		slog.Int64("group_id", clan.GroupID),
		slog.Int("roster_size", len(activeIDs)),
		slog.Int("added", added),
		slog.Int64("deactivated", deactivated),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// createMember は名簿エントリから新規メンバーを作成する。
// Bungie.netアカウントが紐付いている場合はそのidentityも合わせて登録する。
func (s *RosterSyncer) createMember(ctx context.Context, gm bungie.GroupMember, key model.IdentityKey) (*model.Member, error) {
	now := time.Now()
	member := &model.Member{
		ID:          uuid.NewString(),
		DisplayName: gm.DisplayName,
		Identities: []model.Identity{
			{Key: key, DisplayName: gm.DisplayName},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if gm.BungieID != 0 {
		member.Identities = append(member.Identities, model.Identity{
			Key: model.IdentityKey{Namespace: model.NamespaceBungie, MembershipID: gm.BungieID},
		})
	}

	if err := s.memberRepo.Create(ctx, member); err != nil {
		return nil, fmt.Errorf("メンバーの作成に失敗しました: %w", err)
	}

	// エンブレムは表示の装飾なので、取得失敗してもメンバー登録は成立させる
	if s.emblems != nil && gm.IconPath != "" {
		data, mime, err := s.emblems.FetchEmblem(ctx, bungie.EmblemURL(gm.IconPath))
		if err == nil && len(data) > 0 {
			if err := s.memberRepo.UpdateEmblem(ctx, member.ID, data, mime); err != nil {
				s.logger.Warn("エンブレムの保存に失敗しました",
					slog.String("member_id", member.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	s.logger.Info("新規メンバーを登録しました",
		slog.String("member_id", member.ID),
		slog.String("identity", key.String()),
		slog.String("display_name", gm.DisplayName),
	)
	return member, nil
}
