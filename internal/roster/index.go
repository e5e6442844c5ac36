// Package roster はクラン名簿の索引構築と参加資格判定を提供する。
package roster

import (
	"github.com/henworth/trent-six/internal/model"
)

// Index はIdentityKeyからメンバーをO(1)で引くための読み取り専用索引。
// 構築後は変更されないため、複数ゴルーチンから安全に参照できる。
type Index struct {
	byKey map[model.IdentityKey]*model.Member
}

// BuildIndex はメンバー一覧から索引を構築する。
// 同一のIdentityKeyが複数メンバーに現れた場合は静かに上書きせず、
// DuplicateIdentityErrorで構築全体を失敗させる。データ破損の兆候であり、
// どちらのメンバーに帰属させても集計結果が歪むため。
func BuildIndex(members []*model.Member) (*Index, error) {
	byKey := make(map[model.IdentityKey]*model.Member)
	for _, m := range members {
		for _, id := range m.Identities {
			if _, exists := byKey[id.Key]; exists {
				return nil, &model.DuplicateIdentityError{Key: id.Key}
			}
			byKey[id.Key] = m
		}
	}
	return &Index{byKey: byKey}, nil
}

// Resolve はIdentityKeyに対応するメンバーを返す。
// 未登録のキーに対しては第2戻り値がfalseとなる。副作用はない。
func (idx *Index) Resolve(key model.IdentityKey) (*model.Member, bool) {
	m, ok := idx.byKey[key]
	return m, ok
}

// Len は索引に登録されたIdentityKeyの数を返す。
func (idx *Index) Len() int {
	return len(idx.byKey)
}

// Members は索引に含まれる一意なメンバーの一覧を返す。順序は不定。
func (idx *Index) Members() []*model.Member {
	seen := make(map[string]bool)
	var members []*model.Member
	for _, m := range idx.byKey {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		members = append(members, m)
	}
	return members
}
