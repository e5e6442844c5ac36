package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/henworth/trent-six/internal/model"
)

// PostgresClanRepo はPostgreSQLを使用したクランリポジトリ。
type PostgresClanRepo struct {
	db *sql.DB
}

// NewPostgresClanRepo はPostgresClanRepoを生成する。
func NewPostgresClanRepo(db *sql.DB) *PostgresClanRepo {
	return &PostgresClanRepo{db: db}
}

// FindByID は指定IDのクランを取得する。見つからない場合はnilを返す。
func (r *PostgresClanRepo) FindByID(ctx context.Context, id string) (*model.Clan, error) {
	clan := &model.Clan{}
	var callSign, platform sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, group_id, name, callsign, platform, created_at, updated_at
		 FROM clans WHERE id = $1`,
		id,
	).Scan(&clan.ID, &clan.GroupID, &clan.Name, &callSign, &platform, &clan.CreatedAt, &clan.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("クランの取得に失敗しました: %w", err)
	}

	clan.CallSign = nullStringValue(callSign)
	clan.Platform = model.Namespace(nullStringValue(platform))
	return clan, nil
}

// FindByGroupID はBungieのgroup_idでクランを検索する。見つからない場合はnilを返す。
func (r *PostgresClanRepo) FindByGroupID(ctx context.Context, groupID int64) (*model.Clan, error) {
	clan := &model.Clan{}
	var callSign, platform sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, group_id, name, callsign, platform, created_at, updated_at
		 FROM clans WHERE group_id = $1`,
		groupID,
	).Scan(&clan.ID, &clan.GroupID, &clan.Name, &callSign, &platform, &clan.CreatedAt, &clan.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("group_idによるクランの検索に失敗しました: %w", err)
	}

	clan.CallSign = nullStringValue(callSign)
	clan.Platform = model.Namespace(nullStringValue(platform))
	return clan, nil
}

// Create はクランを作成する。
func (r *PostgresClanRepo) Create(ctx context.Context, clan *model.Clan) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO clans (id, group_id, name, callsign, platform, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		clan.ID, clan.GroupID, clan.Name,
		nullString(clan.CallSign), nullString(string(clan.Platform)),
		clan.CreatedAt, clan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("クランの作成に失敗しました: %w", err)
	}
	return nil
}

// List は登録済みクランの一覧を返す。
func (r *PostgresClanRepo) List(ctx context.Context) ([]*model.Clan, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, group_id, name, callsign, platform, created_at, updated_at
		 FROM clans ORDER BY name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("クラン一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var clans []*model.Clan
	for rows.Next() {
		clan := &model.Clan{}
		var callSign, platform sql.NullString
		if err := rows.Scan(&clan.ID, &clan.GroupID, &clan.Name, &callSign, &platform, &clan.CreatedAt, &clan.UpdatedAt); err != nil {
			return nil, fmt.Errorf("クランの読み取りに失敗しました: %w", err)
		}
		clan.CallSign = nullStringValue(callSign)
		clan.Platform = model.Namespace(nullStringValue(platform))
		clans = append(clans, clan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("クラン一覧の走査に失敗しました: %w", err)
	}
	return clans, nil
}

// AddMembership はクラン所属を記録する。
// アクティブな所属が既に存在する場合はmember_typeのみ更新し、join_dateは変更しない。
func (r *PostgresClanRepo) AddMembership(ctx context.Context, clanID, memberID string, joinDate time.Time, memberType int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO clan_members (id, clan_id, member_id, join_date, is_active, member_type)
		 VALUES ($1, $2, $3, $4, TRUE, $5)
		 ON CONFLICT (clan_id, member_id) WHERE is_active
		 DO UPDATE SET member_type = EXCLUDED.member_type`,
		uuid.NewString(), clanID, memberID, joinDate, memberType,
	)
	if err != nil {
		return fmt.Errorf("クラン所属の記録に失敗しました: %w", err)
	}
	return nil
}

// DeactivateMissing はactiveMemberIDsに含まれないアクティブな所属を非アクティブ化する。
func (r *PostgresClanRepo) DeactivateMissing(ctx context.Context, clanID string, activeMemberIDs []string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE clan_members SET is_active = FALSE
		 WHERE clan_id = $1 AND is_active AND member_id != ALL($2)`,
		clanID, pq.Array(activeMemberIDs),
	)
	if err != nil {
		return 0, fmt.Errorf("所属の非アクティブ化に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("非アクティブ化件数の取得に失敗しました: %w", err)
	}
	return affected, nil
}

// UpdateLastActive はメンバーの最終アクティブ日時を更新する。
func (r *PostgresClanRepo) UpdateLastActive(ctx context.Context, clanID, memberID string, lastActive time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE clan_members SET last_active = $3
		 WHERE clan_id = $1 AND member_id = $2 AND is_active
		   AND (last_active IS NULL OR last_active < $3)`,
		clanID, memberID, lastActive,
	)
	if err != nil {
		return fmt.Errorf("最終アクティブ日時の更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ClanRepository = (*PostgresClanRepo)(nil)
