// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"time"
)

// Namespace はプラットフォーム識別子の名前空間を表す。
type Namespace string

const (
	// NamespaceXbox はXbox Liveの名前空間。
	NamespaceXbox Namespace = "xbox"
	// NamespacePSN はPlayStation Networkの名前空間。
	NamespacePSN Namespace = "psn"
	// NamespaceSteam はSteamの名前空間。
	NamespaceSteam Namespace = "steam"
	// NamespaceBlizzard はBlizzard Battle.netの名前空間。
	NamespaceBlizzard Namespace = "blizzard"
	// NamespaceStadia はStadiaの名前空間。
	NamespaceStadia Namespace = "stadia"
	// NamespaceBungie はBungie.netアカウントの名前空間。
	NamespaceBungie Namespace = "bungie"
)

// NamespaceFromMembershipType はBungie APIのmembershipTypeを名前空間に変換する。
// 未知の値に対してはfalseを返す。
func NamespaceFromMembershipType(membershipType int) (Namespace, bool) {
	switch membershipType {
	case 1:
		return NamespaceXbox, true
	case 2:
		return NamespacePSN, true
	case 3:
		return NamespaceSteam, true
	case 4:
		return NamespaceBlizzard, true
	case 5:
		return NamespaceStadia, true
	case 254:
		return NamespaceBungie, true
	}
	return "", false
}

// MembershipType は名前空間をBungie APIのmembershipTypeに戻す。
func (n Namespace) MembershipType() int {
	switch n {
	case NamespaceXbox:
		return 1
	case NamespacePSN:
		return 2
	case NamespaceSteam:
		return 3
	case NamespaceBlizzard:
		return 4
	case NamespaceStadia:
		return 5
	case NamespaceBungie:
		return 254
	}
	return 0
}

// IdentityKey はプラットフォーム横断でプレイヤーを一意に識別するキー。
// 名前空間と、その名前空間内で一意な数値IDの組。
type IdentityKey struct {
	Namespace    Namespace
	MembershipID int64
}

// String はログ出力用の表現を返す。
func (k IdentityKey) String() string {
	return fmt.Sprintf("%s:%d", k.Namespace, k.MembershipID)
}

// Identity はメンバーが持つ単一プラットフォーム上のアカウントを表す。
type Identity struct {
	Key         IdentityKey
	DisplayName string
}

// Member はクランに登録されたメンバーを表す。
// 複数のプラットフォームアカウントを持ちうる。
type Member struct {
	ID          string
	DisplayName string
	Identities  []Identity
	JoinedAt    time.Time
	IsActive    bool
	LastActive  time.Time
	MemberType  int
	EmblemData  []byte
	EmblemMime  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Clan はトラッキング対象のクランを表す。
type Clan struct {
	ID        string
	GroupID   int64
	Name      string
	CallSign  string
	Platform  Namespace
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BungieToken はBungie OAuthのアクセストークンとリフレッシュトークンを表す。
type BungieToken struct {
	AccessToken    string
	RefreshToken   string
	AccessExpires  time.Time
	RefreshExpires time.Time
}
