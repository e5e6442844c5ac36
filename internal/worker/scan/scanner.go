package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/henworth/trent-six/internal/activity"
	"github.com/henworth/trent-six/internal/metrics"
	"github.com/henworth/trent-six/internal/model"
	"github.com/henworth/trent-six/internal/repository"
	"github.com/henworth/trent-six/internal/roster"
)

// carnageAPI はスキャナーが必要とするAPI呼び出しの部分インターフェース。
type carnageAPI interface {
	GetPostGameCarnageReport(ctx context.Context, instanceID int64) (*model.Session, error)
}

// Scanner はクランメンバーのアクティビティ履歴を走査し、
// 集計対象と判定されたセッションを永続化する。
//
// 履歴はキャラクターごとに新しい順に並ぶため、トラッキング開始日時より
// 古いセッションに到達した時点でそのキャラクターの残りを読み飛ばし、
// 次のキャラクターへ進む。記録済みのinstance_idは読み飛ばすので、
// スキャンは何度実行しても結果が変わらない。
type Scanner struct {
	source     activity.PageSource
	api        carnageAPI
	memberRepo repository.MemberRepository
	clanRepo   repository.ClanRepository
	gameRepo   repository.GameRepository
	logger     *slog.Logger
	collector  metrics.MetricsCollector

	trackingSince time.Time
	threshold     float64
}

// NewScanner はScannerの新しいインスタンスを生成する。
// thresholdが0以下の場合はデフォルト値を使用する。
// collectorがnilの場合はメトリクスを記録しない。
func NewScanner(
	source activity.PageSource,
	api carnageAPI,
	memberRepo repository.MemberRepository,
	clanRepo repository.ClanRepository,
	gameRepo repository.GameRepository,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
	trackingSince time.Time,
	threshold float64,
) *Scanner {
	if threshold <= 0 {
		threshold = activity.DefaultEligibilityThreshold
	}
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Scanner{
		source:        source,
		api:           api,
		memberRepo:    memberRepo,
		clanRepo:      clanRepo,
		gameRepo:      gameRepo,
		logger:        logger,
		collector:     collector,
		trackingSince: trackingSince,
		threshold:     threshold,
	}
}

// ScanClan はクラン1件の全メンバーの履歴を走査する。
// 名簿索引の構築に失敗した場合（identity重複）はスキャン全体を中止する。
func (s *Scanner) ScanClan(ctx context.Context, clan *model.Clan) error {
	start := time.Now()

	members, err := s.memberRepo.ListByClan(ctx, clan.ID)
	if err != nil {
		return fmt.Errorf("クランメンバー一覧の取得に失敗しました: %w", err)
	}

	idx, err := roster.BuildIndex(members)
	if err != nil {
		return fmt.Errorf("名簿索引の構築に失敗しました: %w", err)
	}

	var recorded int
	for _, member := range members {
		for _, identity := range member.Identities {
			// Bungie.netアカウントはゲーム履歴を持たない
			if identity.Key.Namespace == model.NamespaceBungie {
				continue
			}
			n, err := s.scanIdentity(ctx, clan, idx, identity.Key)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				s.logger.Error("アカウントのスキャンに失敗しました",
					slog.String("identity", identity.Key.String()),
					slog.String("member_id", member.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			recorded += n
		}
	}

	s.collector.RecordGamesRecorded(recorded)
	s.logger.Info("クランのスキャンが完了しました",
		slog.String("clan_id", clan.ID),
		slog.Int("member_count", len(members)),
		slog.Int("games_recorded", recorded),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// scanIdentity はアカウント1件の履歴を新しい順に走査し、記録件数を返す。
func (s *Scanner) scanIdentity(
	ctx context.Context,
	clan *model.Clan,
	idx *roster.Index,
	key model.IdentityKey,
) (int, error) {
	var recorded int
	var cursor *activity.Cursor

	for {
		if err := ctx.Err(); err != nil {
			return recorded, err
		}

		sessions, next, err := s.source.FetchPage(ctx, key, cursor)
		if err != nil {
			return recorded, err
		}
		s.collector.RecordHistoryPages(1)

		pastCutoff := false
		for _, session := range sessions {
			if session.OccurredAt.Before(s.trackingSince) {
				pastCutoff = true
				break
			}

			created, err := s.recordSession(ctx, clan, idx, session.InstanceID)
			if err != nil {
				return recorded, err
			}
			if created {
				recorded++
			}
		}

		if pastCutoff {
			// 古いセッション以降は同一キャラクターの残り全てが対象外。
			// 他のキャラクターは独立した時系列を持つため、打ち切らずに
			// 次のキャラクターの先頭へ読み進める。
			char := 0
			switch {
			case next != nil:
				char = next.Character
			case cursor != nil:
				char = cursor.Character
			}
			cursor = &activity.Cursor{Character: char + 1}
			continue
		}

		if len(sessions) == 0 || next == nil {
			return recorded, nil
		}
		cursor = next
	}
}

// recordSession はセッション1件を判定して永続化する。
// 集計対象と判定された場合にtrueを返す。
func (s *Scanner) recordSession(
	ctx context.Context,
	clan *model.Clan,
	idx *roster.Index,
	instanceID int64,
) (bool, error) {
	existing, err := s.gameRepo.FindByInstanceID(ctx, instanceID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		// 記録済み。クラン関連付けだけは複数クランで重複しうるため毎回行う。
		if err := s.gameRepo.LinkClan(ctx, clan.ID, existing.ID); err != nil {
			return false, err
		}
		return false, nil
	}

	session, err := s.api.GetPostGameCarnageReport(ctx, instanceID)
	if err != nil {
		return false, fmt.Errorf("セッション詳細の取得に失敗しました: %w", err)
	}

	if !activity.IsSessionEligible(session, idx, s.threshold) {
		return false, nil
	}

	eligible := activity.ResolveSession(session, idx)
	if len(eligible) == 0 {
		return false, nil
	}

	game := &model.Game{
		ID:          uuid.NewString(),
		InstanceID:  session.InstanceID,
		ModeID:      session.ModeID,
		ReferenceID: session.ReferenceID,
		OccurredAt:  session.OccurredAt,
	}

	created, err := s.gameRepo.CreateIfAbsent(ctx, game)
	if err != nil {
		return false, err
	}
	if !created {
		// 並行スキャンに先を越された場合は既存レコードを使う
		stored, err := s.gameRepo.FindByInstanceID(ctx, session.InstanceID)
		if err != nil {
			return false, err
		}
		if stored == nil {
			return false, fmt.Errorf("記録済みのはずのゲームが見つかりません: instance_id=%d", session.InstanceID)
		}
		game = stored
	}

	if err := s.gameRepo.LinkClan(ctx, clan.ID, game.ID); err != nil {
		return false, err
	}

	gameMembers := make([]model.GameMember, 0, len(eligible))
	for _, ep := range eligible {
		gameMembers = append(gameMembers, model.GameMember{
			GameID:     game.ID,
			MemberID:   ep.MemberID,
			Completed:  ep.Completed,
			TimePlayed: ep.TimePlayed,
		})
	}
	if err := s.gameRepo.LinkMembers(ctx, game.ID, gameMembers); err != nil {
		return false, err
	}

	for _, ep := range eligible {
		if err := s.clanRepo.UpdateLastActive(ctx, clan.ID, ep.MemberID, session.OccurredAt); err != nil {
			s.logger.Error("最終アクティブ日時の更新に失敗しました",
				slog.String("member_id", ep.MemberID),
				slog.String("error", err.Error()),
			)
		}
	}

	return created, nil
}
