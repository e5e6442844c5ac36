// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, roster, activity, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeMemberNotFound   = "MEMBER_NOT_FOUND"
	ErrCodeClanNotFound     = "CLAN_NOT_FOUND"
	ErrCodeUnknownCategory  = "UNKNOWN_CATEGORY"
	ErrCodeHistoryFetch     = "HISTORY_FETCH_FAILED"
	ErrCodeInvalidMemberID  = "INVALID_MEMBER_ID"
	ErrCodeSSRFBlocked      = "SSRF_BLOCKED"
	ErrCodeOAuthExchange    = "OAUTH_EXCHANGE_FAILED"
	ErrCodeDuplicateLink    = "DUPLICATE_LINK"
)

// DuplicateIdentityError は名簿構築時に同一のIdentityKeyが
// 複数メンバーに現れた場合のエラー。静かな上書きはせず構築を失敗させる。
type DuplicateIdentityError struct {
	Key IdentityKey
}

// Error はerrorインターフェースを実装する。
func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("識別子 %s が複数のメンバーに重複して登録されています", e.Key)
}

// UnknownCategoryError は呼び出し側が存在しないカテゴリ名を指定した場合のエラー。
// 未知の生モードIDとは異なり、こちらは利用側の誤りとして扱う。
type UnknownCategoryError struct {
	Category string
}

// Error はerrorインターフェースを実装する。
func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("未知のゲームモードカテゴリです: %s", e.Category)
}

// PageFetchError は履歴ページの取得失敗を表す。
// ページ番号と原因を保持し、集計側はこれをそのまま呼び出し元へ伝える。
type PageFetchError struct {
	Key  IdentityKey
	Page int
	Err  error
}

// Error はerrorインターフェースを実装する。
func (e *PageFetchError) Error() string {
	return fmt.Sprintf("%s の履歴ページ %d の取得に失敗しました: %v", e.Key, e.Page, e.Err)
}

// Unwrap は原因エラーを返す。
func (e *PageFetchError) Unwrap() error {
	return e.Err
}

// NewMemberNotFoundError はメンバー未検出エラーを生成する。
func NewMemberNotFoundError(memberID string) *APIError {
	return &APIError{
		Code:     ErrCodeMemberNotFound,
		Message:  fmt.Sprintf("指定されたメンバーが見つかりません: %s", memberID),
		Category: "roster",
		Action:   "メンバーIDを確認してください。",
	}
}

// NewClanNotFoundError はクラン未検出エラーを生成する。
func NewClanNotFoundError(clanID string) *APIError {
	return &APIError{
		Code:     ErrCodeClanNotFound,
		Message:  fmt.Sprintf("指定されたクランが見つかりません: %s", clanID),
		Category: "roster",
		Action:   "クランIDを確認してください。",
	}
}

// NewUnknownCategoryError は未知カテゴリエラーを生成する。
func NewUnknownCategoryError(category string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownCategory,
		Message:  fmt.Sprintf("未知のゲームモードカテゴリです: %s", category),
		Category: "validation",
		Action:   "raid、dungeon、crucible などの定義済みカテゴリ名を指定してください。",
	}
}

// NewHistoryFetchError は履歴取得失敗エラーを生成する。
// 「対象活動なし（0件）」とは明確に区別して返す。
func NewHistoryFetchError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeHistoryFetch,
		Message:  fmt.Sprintf("活動履歴の取得に失敗しました: %s", reason),
		Category: "activity",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidMemberIDError は無効なメンバーIDエラーを生成する。
func NewInvalidMemberIDError(memberID string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMemberID,
		Message:  fmt.Sprintf("無効なメンバーIDです: %s", memberID),
		Category: "validation",
		Action:   "メンバーIDの形式を確認してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLのみ許可されています。",
	}
}

// NewOAuthExchangeError はOAuthコード交換失敗エラーを生成する。
func NewOAuthExchangeError() *APIError {
	return &APIError{
		Code:     ErrCodeOAuthExchange,
		Message:  "Bungie.netアカウントの認可コード交換に失敗しました。",
		Category: "auth",
		Action:   "再度ログインをやり直してください。",
	}
}

// NewDuplicateLinkError は既に連携済みのアカウントを再連携しようとした場合のエラーを生成する。
func NewDuplicateLinkError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateLink,
		Message:  "このBungie.netアカウントは既に別のメンバーに連携されています。",
		Category: "auth",
		Action:   "連携済みアカウントを解除してから再度お試しください。",
	}
}
