// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/henworth/trent-six/internal/middleware"
	"github.com/henworth/trent-six/internal/model"
)

// defaultCategory はcategoryクエリパラメータ省略時の集計カテゴリ。
const defaultCategory = "all"

// MemberServiceInterface はメンバーハンドラーが必要とするサービスインターフェース。
type MemberServiceInterface interface {
	// Get はメンバー情報を取得する。
	Get(ctx context.Context, memberID string) (*model.Member, error)
	// List は全クランのアクティブメンバー一覧を返す。
	List(ctx context.Context) ([]*model.Member, error)
	// GameCounts は永続化済みゲームのカテゴリ別プレイ回数を返す。
	GameCounts(ctx context.Context, memberID, category string) (map[string]int, error)
	// History は外部APIからライブ集計したカテゴリ別プレイ回数を返す。
	History(ctx context.Context, memberID, category string) (map[string]int, error)
}

// MemberHandler はメンバー参照のHTTPハンドラー。
type MemberHandler struct {
	service MemberServiceInterface
}

// NewMemberHandler はMemberHandlerを生成する。
func NewMemberHandler(service MemberServiceInterface) *MemberHandler {
	return &MemberHandler{service: service}
}

// identityResponse はメンバーのプラットフォームアカウントのAPIレスポンス。
type identityResponse struct {
	Namespace    string `json:"namespace"`
	MembershipID int64  `json:"membership_id"`
	DisplayName  string `json:"display_name"`
}

// memberResponse はメンバー情報のAPIレスポンス。
type memberResponse struct {
	ID          string             `json:"id"`
	DisplayName string             `json:"display_name"`
	Identities  []identityResponse `json:"identities"`
	JoinedAt    *time.Time         `json:"joined_at,omitempty"`
	IsActive    bool               `json:"is_active"`
	LastActive  *time.Time         `json:"last_active,omitempty"`
}

// countsResponse はカテゴリ別プレイ回数のAPIレスポンス。
type countsResponse struct {
	Category string         `json:"category"`
	Counts   map[string]int `json:"counts"`
}

// ListMembers はメンバー一覧を返す。
// GET /api/members
func (h *MemberHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	out := make([]memberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, toMemberResponse(m))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// GetMember はメンバー詳細を返す。
// GET /api/members/:id
func (h *MemberHandler) GetMember(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "id")

	member, err := h.service.Get(r.Context(), memberID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toMemberResponse(member))
}

// GetMemberGames は永続化済みゲームのカテゴリ別プレイ回数を返す。
// GET /api/members/:id/games?category=raid
func (h *MemberHandler) GetMemberGames(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "id")
	category := categoryParam(r)

	counts, err := h.service.GameCounts(r.Context(), memberID, category)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(countsResponse{Category: category, Counts: counts})
}

// GetMemberHistory は外部APIからライブ集計した全履歴のプレイ回数を返す。
// 集計が空（対象活動なし）の場合も200で空のcountsを返し、
// 取得失敗は502で区別する。
// GET /api/members/:id/history?category=raid
func (h *MemberHandler) GetMemberHistory(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "id")
	category := categoryParam(r)

	counts, err := h.service.History(r.Context(), memberID, category)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(countsResponse{Category: category, Counts: counts})
}

// --- ヘルパー関数 ---

// categoryParam はcategoryクエリパラメータを返す。省略時は"all"。
func categoryParam(r *http.Request) string {
	if c := r.URL.Query().Get("category"); c != "" {
		return c
	}
	return defaultCategory
}

// toMemberResponse はmodel.MemberからAPIレスポンスに変換する。
func toMemberResponse(m *model.Member) memberResponse {
	identities := make([]identityResponse, 0, len(m.Identities))
	for _, identity := range m.Identities {
		identities = append(identities, identityResponse{
			Namespace:    string(identity.Key.Namespace),
			MembershipID: identity.Key.MembershipID,
			DisplayName:  identity.DisplayName,
		})
	}

	resp := memberResponse{
		ID:          m.ID,
		DisplayName: m.DisplayName,
		Identities:  identities,
		IsActive:    m.IsActive,
	}
	if !m.JoinedAt.IsZero() {
		joinedAt := m.JoinedAt
		resp.JoinedAt = &joinedAt
	}
	if !m.LastActive.IsZero() {
		lastActive := m.LastActive
		resp.LastActive = &lastActive
	}

	return resp
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeMemberNotFound, model.ErrCodeClanNotFound:
		return http.StatusNotFound
	case model.ErrCodeUnknownCategory, model.ErrCodeInvalidMemberID:
		return http.StatusBadRequest
	case model.ErrCodeSSRFBlocked:
		return http.StatusForbidden
	case model.ErrCodeHistoryFetch:
		return http.StatusBadGateway
	case model.ErrCodeOAuthExchange:
		return http.StatusBadGateway
	case model.ErrCodeDuplicateLink:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
