package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/henworth/trent-six/internal/model"
)

// ClanServiceInterface はクランハンドラーが必要とするサービスインターフェース。
type ClanServiceInterface interface {
	// Get はクラン情報を取得する。
	Get(ctx context.Context, clanID string) (*model.Clan, error)
	// List は登録済みクランの一覧を返す。
	List(ctx context.Context) ([]*model.Clan, error)
	// GameCounts は永続化済みゲームのクラン全体のカテゴリ別プレイ回数を返す。
	GameCounts(ctx context.Context, clanID, category string) (map[string]int, error)
	// Sync は名簿同期とスキャンを非同期に開始する。
	Sync(ctx context.Context, clanID string) error
}

// ClanHandler はクラン参照のHTTPハンドラー。
type ClanHandler struct {
	service ClanServiceInterface
}

// NewClanHandler はClanHandlerを生成する。
func NewClanHandler(service ClanServiceInterface) *ClanHandler {
	return &ClanHandler{service: service}
}

// clanResponse はクラン情報のAPIレスポンス。
type clanResponse struct {
	ID       string `json:"id"`
	GroupID  int64  `json:"group_id"`
	Name     string `json:"name"`
	CallSign string `json:"call_sign"`
	Platform string `json:"platform"`
}

// ListClans はクラン一覧を返す。
// GET /api/clans
func (h *ClanHandler) ListClans(w http.ResponseWriter, r *http.Request) {
	clans, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	out := make([]clanResponse, 0, len(clans))
	for _, c := range clans {
		out = append(out, toClanResponse(c))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// GetClan はクラン詳細を返す。
// GET /api/clans/:id
func (h *ClanHandler) GetClan(w http.ResponseWriter, r *http.Request) {
	clanID := chi.URLParam(r, "id")

	clan, err := h.service.Get(r.Context(), clanID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toClanResponse(clan))
}

// GetClanGames はクラン全体のカテゴリ別プレイ回数を返す。
// GET /api/clans/:id/games?category=raid
func (h *ClanHandler) GetClanGames(w http.ResponseWriter, r *http.Request) {
	clanID := chi.URLParam(r, "id")
	category := categoryParam(r)

	counts, err := h.service.GameCounts(r.Context(), clanID, category)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(countsResponse{Category: category, Counts: counts})
}

// SyncClan は名簿同期とスキャンを開始する。処理はバックグラウンドで行うため202を返す。
// POST /api/clans/:id/sync
func (h *ClanHandler) SyncClan(w http.ResponseWriter, r *http.Request) {
	clanID := chi.URLParam(r, "id")

	if err := h.service.Sync(r.Context(), clanID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "accepted",
		"clan_id": clanID,
	})
}

// toClanResponse はmodel.ClanからAPIレスポンスに変換する。
func toClanResponse(c *model.Clan) clanResponse {
	return clanResponse{
		ID:       c.ID,
		GroupID:  c.GroupID,
		Name:     c.Name,
		CallSign: c.CallSign,
		Platform: string(c.Platform),
	}
}
