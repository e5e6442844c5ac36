// Package clan はクラン情報の参照と名簿同期のトリガーを提供する。
package clan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/henworth/trent-six/internal/gamemode"
	"github.com/henworth/trent-six/internal/model"
	"github.com/henworth/trent-six/internal/repository"
)

// Processor はクラン1件分の同期とスキャンを実行するインターフェース。
type Processor interface {
	Process(ctx context.Context, clan *model.Clan) error
}

// Service はクラン参照のビジネスロジックを提供する。
type Service struct {
	clanRepo      repository.ClanRepository
	gameRepo      repository.GameRepository
	processor     Processor
	trackingSince time.Time
	logger        *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	clanRepo repository.ClanRepository,
	gameRepo repository.GameRepository,
	processor Processor,
	trackingSince time.Time,
	logger *slog.Logger,
) *Service {
	return &Service{
		clanRepo:      clanRepo,
		gameRepo:      gameRepo,
		processor:     processor,
		trackingSince: trackingSince,
		logger:        logger,
	}
}

// Get は指定IDのクランを取得する。
// 見つからない場合はCLAN_NOT_FOUNDのAPIErrorを返す。
func (s *Service) Get(ctx context.Context, clanID string) (*model.Clan, error) {
	clan, err := s.clanRepo.FindByID(ctx, clanID)
	if err != nil {
		return nil, fmt.Errorf("クランの取得に失敗しました: %w", err)
	}
	if clan == nil {
		return nil, model.NewClanNotFoundError(clanID)
	}

	return clan, nil
}

// List は登録済みクランの一覧を返す。
func (s *Service) List(ctx context.Context) ([]*model.Clan, error) {
	clans, err := s.clanRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("クラン一覧の取得に失敗しました: %w", err)
	}
	return clans, nil
}

// GameCounts は永続化済みゲームからクラン全体のカテゴリ別プレイ回数を集計する。
func (s *Service) GameCounts(ctx context.Context, clanID, category string) (map[string]int, error) {
	if _, err := s.Get(ctx, clanID); err != nil {
		return nil, err
	}

	cat, err := gamemode.Lookup(category)
	if err != nil {
		return nil, model.NewUnknownCategoryError(category)
	}

	modeCounts, err := s.gameRepo.CountByClanAndModes(ctx, clanID, cat.Modes, s.trackingSince)
	if err != nil {
		return nil, fmt.Errorf("プレイ回数の集計に失敗しました: %w", err)
	}

	counts := make(map[string]int)
	for modeID, n := range modeCounts {
		counts[cat.CountKey(modeID)] += n
	}

	return counts, nil
}

// Sync はクランの名簿同期とスキャンを非同期に開始する。
// クランが存在すれば即座に受理し、処理自体はバックグラウンドで実行する。
func (s *Service) Sync(ctx context.Context, clanID string) error {
	clan, err := s.Get(ctx, clanID)
	if err != nil {
		return err
	}

	// HTTPリクエストのキャンセルに巻き込まれないよう切り離す
	detached := context.WithoutCancel(ctx)

	go func() {
		if err := s.processor.Process(detached, clan); err != nil {
			s.logger.Error("manual clan sync failed",
				slog.String("clan_id", clan.ID),
				slog.String("error", err.Error()),
			)
			return
		}
		s.logger.Info("manual clan sync completed", slog.String("clan_id", clan.ID))
	}()

	return nil
}
