// Package bungie はBungie.net Platform APIのクライアントを提供する。
package bungie

import (
	"context"
	"sync"

	"github.com/henworth/trent-six/internal/activity"
	"github.com/henworth/trent-six/internal/model"
)

// historyAPI はHistoryPageSourceが必要とするAPI呼び出しの部分インターフェース。
type historyAPI interface {
	GetProfile(ctx context.Context, membershipType int, membershipID int64) (*Profile, error)
	GetActivityHistory(ctx context.Context, membershipType int, membershipID, characterID int64, mode, count, page int) ([]model.Session, error)
}

// HistoryPageSource はアカウント横断のアクティビティ履歴を1ページずつ供給する。
// Destiny APIの履歴はキャラクター単位でしか取れないため、カーソルで
// （キャラクター番号, ページ番号）を表し、全キャラクターを直列に辿る。
//
// 空ページは呼び出し側で履歴終端として扱われるため、途中キャラクターの
// 履歴が尽きた時点では空ページを返さず、次のキャラクターの先頭ページへ
// 読み進める。空のセッション列を返すのは全キャラクターを辿り切った
// 場合だけであり、これが履歴の真の終端を意味する。
type HistoryPageSource struct {
	api      historyAPI
	mode     int
	pageSize int

	mu    sync.Mutex
	chars map[model.IdentityKey][]int64
}

// NewHistoryPageSource はHistoryPageSourceの新しいインスタンスを生成する。
// modeが0の場合は全モードの履歴を対象とする。
func NewHistoryPageSource(api historyAPI, mode, pageSize int) *HistoryPageSource {
	return &HistoryPageSource{
		api:      api,
		mode:     mode,
		pageSize: pageSize,
		chars:    make(map[model.IdentityKey][]int64),
	}
}

// characterIDs はアカウントのキャラクターID一覧を取得する。
// 1アカウントにつき1回だけAPIを呼び、以降はキャッシュを返す。
// 同じカーソルでの再取得を冪等に保つため、一覧は取得後に変化しない
// ものとして扱う。
func (s *HistoryPageSource) characterIDs(ctx context.Context, key model.IdentityKey) ([]int64, error) {
	s.mu.Lock()
	cached, ok := s.chars[key]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	profile, err := s.api.GetProfile(ctx, key.Namespace.MembershipType(), key.MembershipID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.chars[key] = profile.CharacterIDs
	s.mu.Unlock()
	return profile.CharacterIDs, nil
}

// FetchPage はactivity.PageSourceを実装する。
// 取得失敗はPageFetchErrorに包んで返す。リトライは行わない。
func (s *HistoryPageSource) FetchPage(
	ctx context.Context,
	key model.IdentityKey,
	cursor *activity.Cursor,
) ([]model.Session, *activity.Cursor, error) {
	char, page := 0, 0
	if cursor != nil {
		char, page = cursor.Character, cursor.Page
	}

	chars, err := s.characterIDs(ctx, key)
	if err != nil {
		return nil, nil, &model.PageFetchError{Key: key, Page: page, Err: err}
	}

	for char < len(chars) {
		sessions, fetchErr := s.api.GetActivityHistory(
			ctx,
			key.Namespace.MembershipType(),
			key.MembershipID,
			chars[char],
			s.mode,
			s.pageSize,
			page,
		)
		if fetchErr != nil {
			return nil, nil, &model.PageFetchError{Key: key, Page: page, Err: fetchErr}
		}
		if len(sessions) > 0 {
			return sessions, &activity.Cursor{Character: char, Page: page + 1}, nil
		}
		// このキャラクターは読み切った。次のキャラクターの先頭へ。
		char++
		page = 0
	}

	// 全キャラクターを辿り切った
	return nil, nil, nil
}

// compile-time interface check
var _ activity.PageSource = (*HistoryPageSource)(nil)
