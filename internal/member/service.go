// Package member はメンバー情報の参照とプレイ履歴の集計サービスを提供する。
package member

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/henworth/trent-six/internal/activity"
	"github.com/henworth/trent-six/internal/gamemode"
	"github.com/henworth/trent-six/internal/model"
	"github.com/henworth/trent-six/internal/repository"
)

// Service はメンバー参照のビジネスロジックを提供する。
type Service struct {
	memberRepo    repository.MemberRepository
	clanRepo      repository.ClanRepository
	gameRepo      repository.GameRepository
	source        activity.PageSource
	trackingSince time.Time
	logger        *slog.Logger
}

// NewService はServiceを生成する。
// sourceはライブ履歴集計（History）で使用する。
func NewService(
	memberRepo repository.MemberRepository,
	clanRepo repository.ClanRepository,
	gameRepo repository.GameRepository,
	source activity.PageSource,
	trackingSince time.Time,
	logger *slog.Logger,
) *Service {
	return &Service{
		memberRepo:    memberRepo,
		clanRepo:      clanRepo,
		gameRepo:      gameRepo,
		source:        source,
		trackingSince: trackingSince,
		logger:        logger,
	}
}

// Get は指定IDのメンバーを取得する。
// 見つからない場合はMEMBER_NOT_FOUNDのAPIErrorを返す。
func (s *Service) Get(ctx context.Context, memberID string) (*model.Member, error) {
	if memberID == "" {
		return nil, model.NewInvalidMemberIDError(memberID)
	}

	member, err := s.memberRepo.FindByID(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("メンバーの取得に失敗しました: %w", err)
	}
	if member == nil {
		return nil, model.NewMemberNotFoundError(memberID)
	}

	return member, nil
}

// List は登録済み全クランのアクティブメンバー一覧を返す。
// 複数クランに所属するメンバーは1回だけ含める。
func (s *Service) List(ctx context.Context) ([]*model.Member, error) {
	clans, err := s.clanRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("クラン一覧の取得に失敗しました: %w", err)
	}

	seen := make(map[string]bool)
	var members []*model.Member
	for _, clan := range clans {
		clanMembers, err := s.memberRepo.ListByClan(ctx, clan.ID)
		if err != nil {
			return nil, fmt.Errorf("クラン %s のメンバー一覧の取得に失敗しました: %w", clan.ID, err)
		}
		for _, m := range clanMembers {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			members = append(members, m)
		}
	}

	return members, nil
}

// GameCounts は永続化済みゲームからメンバーのカテゴリ別プレイ回数を集計する。
// 複合カテゴリはカテゴリ名1キー、非複合カテゴリはモードタイトルごとのキーに集計する。
func (s *Service) GameCounts(ctx context.Context, memberID, category string) (map[string]int, error) {
	if _, err := s.Get(ctx, memberID); err != nil {
		return nil, err
	}

	cat, err := gamemode.Lookup(category)
	if err != nil {
		return nil, model.NewUnknownCategoryError(category)
	}

	modeCounts, err := s.gameRepo.CountByMemberAndModes(ctx, memberID, cat.Modes, s.trackingSince)
	if err != nil {
		return nil, fmt.Errorf("プレイ回数の集計に失敗しました: %w", err)
	}

	return foldCounts(cat, modeCounts), nil
}

// History は外部APIからメンバーの全履歴をライブ集計する。
// 永続化済みゲームとは独立に、identityごとに履歴を走査して合算する。
// 取得失敗は「対象活動なし（空の集計）」と区別してHISTORY_FETCH_FAILEDを返す。
func (s *Service) History(ctx context.Context, memberID, category string) (map[string]int, error) {
	member, err := s.Get(ctx, memberID)
	if err != nil {
		return nil, err
	}

	if _, err := gamemode.Lookup(category); err != nil {
		return nil, model.NewUnknownCategoryError(category)
	}

	counts := make(map[string]int)
	for _, identity := range member.Identities {
		// Bungie.netアカウントはプラットフォーム履歴を持たない
		if identity.Key.Namespace == model.NamespaceBungie {
			continue
		}

		identityCounts, err := activity.Aggregate(ctx, s.source, identity.Key, category)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			var pageErr *model.PageFetchError
			if errors.As(err, &pageErr) {
				s.logger.Warn("history fetch failed",
					slog.String("member_id", memberID),
					slog.String("identity", pageErr.Key.String()),
					slog.Int("page", pageErr.Page),
					slog.String("error", err.Error()),
				)
			}
			return nil, model.NewHistoryFetchError(err.Error())
		}

		for k, n := range identityCounts {
			counts[k] += n
		}
	}

	return counts, nil
}

// foldCounts はモードIDごとの件数をカテゴリの集計キーに畳み込む。
func foldCounts(cat gamemode.Category, modeCounts map[int]int) map[string]int {
	counts := make(map[string]int)
	for modeID, n := range modeCounts {
		counts[cat.CountKey(modeID)] += n
	}
	return counts
}
