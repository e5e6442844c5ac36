// Package cleanup はゲーム記録の自動削除ジョブを提供する。
// 保持期間を超過したゲームと関連するclan_games、game_membersを
// 日次バッチで削除する。関連行はCASCADE削除で自動的に処理される。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob は保持期間を超過したゲーム記録の自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
// RetentionDaysが0の場合は保持期間による削除を行わない。
type CleanupJob struct {
	db            Executor
	logger        *slog.Logger
	RetentionDays int // ゲーム記録の保持日数（0: 無期限）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger, retentionDays int) *CleanupJob {
	return &CleanupJob{
		db:            db,
		logger:        logger,
		RetentionDays: retentionDays,
	}
}

// Run は保持期間を超過したゲームと孤立したゲームを削除する。
// occurred_atがRetentionDays日前より古いゲームをDELETEする。
// clan_gamesとgame_membersはCASCADE削除により自動的に削除される。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	var expired int64
	if j.RetentionDays > 0 {
		interval := fmt.Sprintf("%d days", j.RetentionDays)

		result, err := j.db.ExecContext(ctx,
			`DELETE FROM games WHERE occurred_at < now() - $1::interval`, interval)
		if err != nil {
			j.logger.Error("ゲームクリーンアップジョブの実行に失敗しました",
				slog.String("error", err.Error()),
				slog.Int("retention_days", j.RetentionDays),
			)
			return fmt.Errorf("ゲームクリーンアップの実行に失敗: %w", err)
		}

		expired, err = result.RowsAffected()
		if err != nil {
			j.logger.Error("削除件数の取得に失敗しました",
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("削除件数の取得に失敗: %w", err)
		}
	}

	// 参加メンバーもクラン関連付けも持たないゲームを削除する
	result, err := j.db.ExecContext(ctx,
		`DELETE FROM games g
		 WHERE NOT EXISTS (SELECT 1 FROM game_members gm WHERE gm.game_id = g.id)
		   AND NOT EXISTS (SELECT 1 FROM clan_games cg WHERE cg.game_id = g.id)`)
	if err != nil {
		j.logger.Error("孤立ゲームの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("孤立ゲームの削除に失敗: %w", err)
	}

	orphaned, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("ゲームクリーンアップジョブが完了しました",
		slog.Int64("expired_count", expired),
		slog.Int64("orphaned_count", orphaned),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
