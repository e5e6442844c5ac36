// Package activity はゲームセッションの参加者解決と履歴集計を提供する。
package activity

import (
	"context"

	"github.com/henworth/trent-six/internal/gamemode"
	"github.com/henworth/trent-six/internal/model"
)

// Cursor はページネーションの継続位置を表す。
// キャラクター何番目の第何ページか。同じカーソルで再取得すれば
// 同じページが返ることをPageSourceに要求する。
type Cursor struct {
	Character int
	Page      int
}

// PageSource はメンバー1人分のセッション履歴を1ページずつ供給する。
// cursorがnilの場合は先頭ページを返す。履歴の終端は
// 空のセッション列または継続カーソルnilのどちらか（あるいは両方）で示す。
// 同一カーソルに対して冪等であること。
type PageSource interface {
	FetchPage(ctx context.Context, key model.IdentityKey, cursor *Cursor) ([]model.Session, *Cursor, error)
}

// Aggregate はメンバーの全履歴を走査し、カテゴリ別セッション数を集計する。
// AggregateFromを先頭カーソルから呼ぶだけの便宜関数。
func Aggregate(ctx context.Context, source PageSource, key model.IdentityKey, category string) (map[string]int, error) {
	counts, _, err := AggregateFrom(ctx, source, key, category, nil)
	return counts, err
}

// AggregateFrom は指定カーソルから履歴を走査してカテゴリ別件数を集計する。
// ページは1枚ずつ取得し、全セッションを処理し終えてから集計へマージする。
// キャンセルの確認はページ境界でのみ行うため、途中失敗しても返り値の
// countsは常に「最後に完全マージされたページまで」の一貫した状態になる。
// 取得エラーはリトライせずそのまま返し、第2戻り値は失敗したページの
// カーソル（再開位置）を示す。正常終了時の第2戻り値はnil。
func AggregateFrom(
	ctx context.Context,
	source PageSource,
	key model.IdentityKey,
	category string,
	start *Cursor,
) (map[string]int, *Cursor, error) {
	cat, err := gamemode.Lookup(category)
	if err != nil {
		return nil, start, err
	}

	counts := make(map[string]int)
	cursor := start

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return counts, cursor, ctxErr
		}

		sessions, next, fetchErr := source.FetchPage(ctx, key, cursor)
		if fetchErr != nil {
			return counts, cursor, fetchErr
		}

		// ページ単位の中間集計。ページ全体の処理が終わるまで
		// countsには触れない。
		page := make(map[string]int)
		for _, s := range sessions {
			if !cat.Contains(s.ModeID) {
				continue
			}
			page[cat.CountKey(s.ModeID)]++
		}
		for k, n := range page {
			counts[k] += n
		}

		// 空ページと継続カーソルなしはどちらも履歴の終端
		if len(sessions) == 0 || next == nil {
			return counts, nil, nil
		}
		cursor = next
	}
}
