// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/henworth/trent-six/internal/model"
)

// MemberRepository はメンバーデータの永続化インターフェース。
type MemberRepository interface {
	// FindByID は指定IDのメンバーを取得する。見つからない場合はnilを返す。
	// 紐付くidentitiesも合わせて読み込む。
	FindByID(ctx context.Context, id string) (*model.Member, error)

	// FindByIdentity はIdentityKeyでメンバーを検索する。見つからない場合はnilを返す。
	FindByIdentity(ctx context.Context, key model.IdentityKey) (*model.Member, error)

	// ListByClan はクランのアクティブメンバー一覧をidentities付きで取得する。
	// JoinedAt、IsActive、LastActive、MemberTypeはclan_membersの値で埋める。
	ListByClan(ctx context.Context, clanID string) ([]*model.Member, error)

	// Create はメンバーとidentitiesを同一トランザクションで作成する。
	Create(ctx context.Context, member *model.Member) error

	// UpsertIdentity はメンバーのidentityを追加または更新する。
	// 同じIdentityKeyが他のメンバーに紐付いている場合はエラーを返す。
	UpsertIdentity(ctx context.Context, memberID string, identity model.Identity) error

	// UpdateDisplayName はメンバーの表示名を更新する。
	UpdateDisplayName(ctx context.Context, memberID, displayName string) error

	// UpdateEmblem はメンバーのエンブレム画像データを更新する。
	UpdateEmblem(ctx context.Context, memberID string, emblemData []byte, emblemMime string) error

	// UpdateTokens はメンバーのBungie OAuthトークンを更新する。
	UpdateTokens(ctx context.Context, memberID string, token *model.BungieToken) error

	// FindTokens はメンバーのBungie OAuthトークンを取得する。
	// トークンが未設定の場合はnilを返す。
	FindTokens(ctx context.Context, memberID string) (*model.BungieToken, error)
}

// ClanRepository はクランデータの永続化インターフェース。
type ClanRepository interface {
	// FindByID は指定IDのクランを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Clan, error)

	// FindByGroupID はBungieのgroup_idでクランを検索する。見つからない場合はnilを返す。
	FindByGroupID(ctx context.Context, groupID int64) (*model.Clan, error)

	// Create はクランを作成する。
	Create(ctx context.Context, clan *model.Clan) error

	// List は登録済みクランの一覧を返す。
	List(ctx context.Context) ([]*model.Clan, error)

	// AddMembership はクラン所属を記録する。
	// アクティブな所属が既に存在する場合はmember_typeのみ更新し、join_dateは変更しない。
	// 再加入の場合は新しい行として記録する。
	AddMembership(ctx context.Context, clanID, memberID string, joinDate time.Time, memberType int) error

	// DeactivateMissing はactiveMemberIDsに含まれないアクティブな所属を非アクティブ化する。
	// 非アクティブ化した件数を返す。
	DeactivateMissing(ctx context.Context, clanID string, activeMemberIDs []string) (int64, error)

	// UpdateLastActive はメンバーの最終アクティブ日時を更新する。
	UpdateLastActive(ctx context.Context, clanID, memberID string, lastActive time.Time) error
}

// GameRepository はゲームセッションの永続化インターフェース。
type GameRepository interface {
	// FindByInstanceID はinstance_idでゲームを検索する。見つからない場合はnilを返す。
	FindByInstanceID(ctx context.Context, instanceID int64) (*model.Game, error)

	// CreateIfAbsent はゲームを作成する。同一instance_idが既に存在する場合は
	// 何もせずfalseを返す（スキャンの冪等性の前提）。
	CreateIfAbsent(ctx context.Context, game *model.Game) (bool, error)

	// LinkClan はクランとゲームを関連付ける。既に関連付け済みの場合は何もしない。
	LinkClan(ctx context.Context, clanID, gameID string) error

	// LinkMembers はゲームへのメンバー参加を記録する。既存の参加記録は変更しない。
	LinkMembers(ctx context.Context, gameID string, members []model.GameMember) error

	// CountByMemberAndModes は指定メンバーの、モードIDごとのプレイ回数を返す。
	// occurred_at >= since のゲームのみを対象とする。
	CountByMemberAndModes(ctx context.Context, memberID string, modeIDs []int, since time.Time) (map[int]int, error)

	// CountByClanAndModes は指定クランの、モードIDごとのプレイ回数を返す。
	// occurred_at >= since のゲームのみを対象とする。
	CountByClanAndModes(ctx context.Context, clanID string, modeIDs []int, since time.Time) (map[int]int, error)

	// DeleteOlderThan はoccurred_atがcutoffより古いゲームを削除する。削除件数を返す。
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteOrphaned は参加メンバーもクラン関連付けも存在しないゲームを削除する。
	// 削除件数を返す。
	DeleteOrphaned(ctx context.Context) (int64, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
