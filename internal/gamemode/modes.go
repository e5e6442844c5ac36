// Package gamemode はDestinyの生アクティビティモードIDと
// 集計カテゴリの双方向対応表を提供する。
package gamemode

import (
	"sort"

	"github.com/henworth/trent-six/internal/model"
)

// Destiny APIの生アクティビティモードID。
const (
	ModeStory             = 2
	ModeStrike            = 3
	ModeRaid              = 4
	ModePatrol            = 6
	ModeControl           = 10
	ModeClash             = 12
	ModeIronBanner        = 19
	ModeSupremacy         = 31
	ModeSurvival          = 37
	ModeTrials            = 39
	ModeIronBannerControl = 43
	ModeIronBannerClash   = 44
	ModeScoredNightfall   = 46
	ModeRumble            = 48
	ModeGambit            = 63
	ModeGambitPrime       = 75
	ModeDungeon           = 82
)

// modeTitles は生モードIDから表示タイトルへの対応。
// カテゴリ分解時の集計キーにも使う。
var modeTitles = map[int]string{
	ModeStory:             "story",
	ModeStrike:            "strike",
	ModeRaid:              "raid",
	ModePatrol:            "patrol",
	ModeControl:           "control",
	ModeClash:             "clash",
	ModeIronBanner:        "ironbanner",
	ModeSupremacy:         "supremacy",
	ModeSurvival:          "survival",
	ModeTrials:            "trials",
	ModeIronBannerControl: "ironbanner-control",
	ModeIronBannerClash:   "ironbanner-clash",
	ModeScoredNightfall:   "nightfall",
	ModeRumble:            "rumble",
	ModeGambit:            "gambit-classic",
	ModeGambitPrime:       "gambit-prime",
	ModeDungeon:           "dungeon",
}

// Category は集計カテゴリを表す。
// Compositeがtrueのカテゴリは所属モードをまとめてカテゴリ名1キーに集計し、
// falseのカテゴリは生モードごとのタイトルキーに分解して集計する。
type Category struct {
	Name      string
	Modes     []int
	Composite bool
}

// categories は定義済みカテゴリの一覧。
// 1つの生モードIDが複数カテゴリに属することがある。
//
// pve / crucible / all のような横断集計カテゴリは複合（1キーの合計値）、
// gambit / ironbanner のようなモードファミリーはサブモード別に分解する。
var categories = map[string]Category{
	"raid":       {Name: "raid", Modes: []int{ModeRaid}, Composite: true},
	"dungeon":    {Name: "dungeon", Modes: []int{ModeDungeon}, Composite: true},
	"story":      {Name: "story", Modes: []int{ModeStory}, Composite: true},
	"strike":     {Name: "strike", Modes: []int{ModeStrike}, Composite: true},
	"patrol":     {Name: "patrol", Modes: []int{ModePatrol}, Composite: true},
	"nightfall":  {Name: "nightfall", Modes: []int{ModeScoredNightfall}, Composite: true},
	"trials":     {Name: "trials", Modes: []int{ModeTrials}, Composite: true},
	"gambit":     {Name: "gambit", Modes: []int{ModeGambit, ModeGambitPrime}},
	"ironbanner": {Name: "ironbanner", Modes: []int{ModeIronBanner, ModeIronBannerControl, ModeIronBannerClash}},
	"pve": {
		Name:      "pve",
		Modes:     []int{ModeStory, ModeStrike, ModeRaid, ModePatrol, ModeScoredNightfall, ModeDungeon},
		Composite: true,
	},
	"crucible": {
		Name: "crucible",
		Modes: []int{
			ModeControl, ModeClash, ModeIronBanner, ModeSupremacy, ModeSurvival,
			ModeTrials, ModeIronBannerControl, ModeIronBannerClash, ModeRumble,
		},
		Composite: true,
	},
	"all": {
		Name: "all",
		Modes: []int{
			ModeStory, ModeStrike, ModeRaid, ModePatrol, ModeControl, ModeClash,
			ModeIronBanner, ModeSupremacy, ModeSurvival, ModeTrials,
			ModeIronBannerControl, ModeIronBannerClash, ModeScoredNightfall,
			ModeRumble, ModeGambit, ModeGambitPrime, ModeDungeon,
		},
		Composite: true,
	},
}

// modeCategories はモードID→所属カテゴリ名の逆引き表。初期化時に構築する。
var modeCategories = func() map[int][]string {
	rev := make(map[int][]string)
	for name, cat := range categories {
		for _, id := range cat.Modes {
			rev[id] = append(rev[id], name)
		}
	}
	for _, names := range rev {
		sort.Strings(names)
	}
	return rev
}()

// TitleOf は生モードIDのタイトルを返す。未知のIDはfalse。
func TitleOf(modeID int) (string, bool) {
	title, ok := modeTitles[modeID]
	return title, ok
}

// CategoriesFor は生モードIDが属するカテゴリ名の一覧を返す。
// 未知のIDは空集合を返す。外部APIには未対応の新モードが随時現れるため、
// これはエラーではなく「どのカテゴリにも集計されない」という正常系。
func CategoriesFor(modeID int) []string {
	names := modeCategories[modeID]
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// Lookup はカテゴリ名からカテゴリ定義を返す。
// 定義済み表に存在しないカテゴリ名の指定は呼び出し側の誤りとして
// UnknownCategoryErrorを返す。
func Lookup(name string) (Category, error) {
	cat, ok := categories[name]
	if !ok {
		return Category{}, &model.UnknownCategoryError{Category: name}
	}
	out := cat
	out.Modes = make([]int, len(cat.Modes))
	copy(out.Modes, cat.Modes)
	return out, nil
}

// RawIDsFor はカテゴリ名に属する生モードIDの一覧を返す。
func RawIDsFor(name string) ([]int, error) {
	cat, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return cat.Modes, nil
}

// CountKey はカテゴリ集計時に生モードIDが積まれるキーを返す。
// 複合カテゴリはカテゴリ名1キーに畳み込み、
// 非複合カテゴリはモードごとのタイトルに分解する。
func (c Category) CountKey(modeID int) string {
	if c.Composite {
		return c.Name
	}
	if title, ok := modeTitles[modeID]; ok {
		return title
	}
	return c.Name
}

// Contains はカテゴリが生モードIDを含むかどうかを返す。
func (c Category) Contains(modeID int) bool {
	for _, id := range c.Modes {
		if id == modeID {
			return true
		}
	}
	return false
}

// Names は定義済みカテゴリ名をソート済みで返す。
func Names() []string {
	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
