package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/henworth/trent-six/internal/model"
)

// PostgresGameRepo はPostgreSQLを使用したゲームリポジトリ。
type PostgresGameRepo struct {
	db *sql.DB
}

// NewPostgresGameRepo はPostgresGameRepoを生成する。
func NewPostgresGameRepo(db *sql.DB) *PostgresGameRepo {
	return &PostgresGameRepo{db: db}
}

// FindByInstanceID はinstance_idでゲームを検索する。見つからない場合はnilを返す。
func (r *PostgresGameRepo) FindByInstanceID(ctx context.Context, instanceID int64) (*model.Game, error) {
	game := &model.Game{}

	err := r.db.QueryRowContext(ctx,
		`SELECT id, instance_id, mode_id, reference_id, occurred_at, created_at
		 FROM games WHERE instance_id = $1`,
		instanceID,
	).Scan(&game.ID, &game.InstanceID, &game.ModeID, &game.ReferenceID, &game.OccurredAt, &game.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ゲームの取得に失敗しました: %w", err)
	}
	return game, nil
}

// CreateIfAbsent はゲームを作成する。同一instance_idが既に存在する場合は
// 何もせずfalseを返す。並行スキャンが同じ試合を拾っても記録は1件になる。
func (r *PostgresGameRepo) CreateIfAbsent(ctx context.Context, game *model.Game) (bool, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO games (id, instance_id, mode_id, reference_id, occurred_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		game.ID, game.InstanceID, game.ModeID, game.ReferenceID, game.OccurredAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("ゲームの作成に失敗しました: %w", err)
	}
	return true, nil
}

// LinkClan はクランとゲームを関連付ける。既に関連付け済みの場合は何もしない。
func (r *PostgresGameRepo) LinkClan(ctx context.Context, clanID, gameID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO clan_games (clan_id, game_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		clanID, gameID,
	)
	if err != nil {
		return fmt.Errorf("クランとゲームの関連付けに失敗しました: %w", err)
	}
	return nil
}

// LinkMembers はゲームへのメンバー参加を記録する。既存の参加記録は変更しない。
func (r *PostgresGameRepo) LinkMembers(ctx context.Context, gameID string, members []model.GameMember) error {
	if len(members) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	for _, gm := range members {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO game_members (game_id, member_id, completed, time_played_seconds)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT DO NOTHING`,
			gameID, gm.MemberID, gm.Completed, int64(gm.TimePlayed.Seconds()),
		)
		if err != nil {
			return fmt.Errorf("参加記録の作成に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// CountByMemberAndModes は指定メンバーの、モードIDごとのプレイ回数を返す。
func (r *PostgresGameRepo) CountByMemberAndModes(ctx context.Context, memberID string, modeIDs []int, since time.Time) (map[int]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT g.mode_id, count(*)
		 FROM games g
		 INNER JOIN game_members gm ON g.id = gm.game_id
		 WHERE gm.member_id = $1 AND g.mode_id = ANY($2) AND g.occurred_at >= $3
		 GROUP BY g.mode_id`,
		memberID, pq.Array(toInt64s(modeIDs)), since,
	)
	if err != nil {
		return nil, fmt.Errorf("メンバーのプレイ回数集計に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanModeCounts(rows)
}

// CountByClanAndModes は指定クランの、モードIDごとのプレイ回数を返す。
func (r *PostgresGameRepo) CountByClanAndModes(ctx context.Context, clanID string, modeIDs []int, since time.Time) (map[int]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT g.mode_id, count(*)
		 FROM games g
		 INNER JOIN clan_games cg ON g.id = cg.game_id
		 WHERE cg.clan_id = $1 AND g.mode_id = ANY($2) AND g.occurred_at >= $3
		 GROUP BY g.mode_id`,
		clanID, pq.Array(toInt64s(modeIDs)), since,
	)
	if err != nil {
		return nil, fmt.Errorf("クランのプレイ回数集計に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanModeCounts(rows)
}

// DeleteOlderThan はoccurred_atがcutoffより古いゲームを削除する。
func (r *PostgresGameRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM games WHERE occurred_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("古いゲームの削除に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return affected, nil
}

// DeleteOrphaned は参加メンバーもクラン関連付けも存在しないゲームを削除する。
func (r *PostgresGameRepo) DeleteOrphaned(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM games g
		 WHERE NOT EXISTS (SELECT 1 FROM game_members gm WHERE gm.game_id = g.id)
		   AND NOT EXISTS (SELECT 1 FROM clan_games cg WHERE cg.game_id = g.id)`,
	)
	if err != nil {
		return 0, fmt.Errorf("孤立ゲームの削除に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return affected, nil
}

// scanModeCounts はmode_idとcountの行をマップに読み込む。
func scanModeCounts(rows *sql.Rows) (map[int]int, error) {
	counts := make(map[int]int)
	for rows.Next() {
		var modeID, count int
		if err := rows.Scan(&modeID, &count); err != nil {
			return nil, fmt.Errorf("集計結果の読み取りに失敗しました: %w", err)
		}
		counts[modeID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("集計結果の走査に失敗しました: %w", err)
	}
	return counts, nil
}

// toInt64s はintスライスをint64スライスに変換する。
func toInt64s(ids []int) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

// compile-time interface check
var _ GameRepository = (*PostgresGameRepo)(nil)
