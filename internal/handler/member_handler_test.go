package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/henworth/trent-six/internal/model"
)

// --- モック定義 ---

// mockMemberService はMemberServiceInterfaceのモック実装。
type mockMemberService struct {
	getFn        func(ctx context.Context, memberID string) (*model.Member, error)
	listFn       func(ctx context.Context) ([]*model.Member, error)
	gameCountsFn func(ctx context.Context, memberID, category string) (map[string]int, error)
	historyFn    func(ctx context.Context, memberID, category string) (map[string]int, error)
}

func (m *mockMemberService) Get(ctx context.Context, memberID string) (*model.Member, error) {
	if m.getFn != nil {
		return m.getFn(ctx, memberID)
	}
	return nil, nil
}

func (m *mockMemberService) List(ctx context.Context) ([]*model.Member, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockMemberService) GameCounts(ctx context.Context, memberID, category string) (map[string]int, error) {
	if m.gameCountsFn != nil {
		return m.gameCountsFn(ctx, memberID, category)
	}
	return nil, nil
}

func (m *mockMemberService) History(ctx context.Context, memberID, category string) (map[string]int, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, memberID, category)
	}
	return nil, nil
}

// --- テストヘルパー ---

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

func sampleMember() *model.Member {
	return &model.Member{
		ID:          "member-1",
		DisplayName: "Guardian",
		Identities: []model.Identity{
			{Key: model.IdentityKey{Namespace: model.NamespacePSN, MembershipID: 100}, DisplayName: "Guardian"},
		},
		JoinedAt:   time.Date(2019, 1, 15, 0, 0, 0, 0, time.UTC),
		IsActive:   true,
		LastActive: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// --- GET /api/members テスト ---

func TestMemberHandler_ListMembers_Success(t *testing.T) {
	svc := &mockMemberService{
		listFn: func(ctx context.Context) ([]*model.Member, error) {
			return []*model.Member{sampleMember()}, nil
		},
	}

	h := NewMemberHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/members", nil)
	w := httptest.NewRecorder()

	h.ListMembers(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body []memberResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body) != 1 {
		t.Fatalf("len(body) = %d, want 1", len(body))
	}
	if body[0].ID != "member-1" {
		t.Errorf("id = %q, want %q", body[0].ID, "member-1")
	}
	if len(body[0].Identities) != 1 {
		t.Fatalf("len(identities) = %d, want 1", len(body[0].Identities))
	}
	if body[0].Identities[0].Namespace != "psn" {
		t.Errorf("namespace = %q, want %q", body[0].Identities[0].Namespace, "psn")
	}
}

func TestMemberHandler_ListMembers_EmptyReturnsEmptyArray(t *testing.T) {
	h := NewMemberHandler(&mockMemberService{})

	req := httptest.NewRequest(http.MethodGet, "/api/members", nil)
	w := httptest.NewRecorder()

	h.ListMembers(w, req)

	// nilスライスでも空のJSON配列を返す
	if got := w.Body.String(); got != "[]\n" {
		t.Errorf("body = %q, want %q", got, "[]\n")
	}
}

// --- GET /api/members/:id テスト ---

func TestMemberHandler_GetMember_Success(t *testing.T) {
	svc := &mockMemberService{
		getFn: func(ctx context.Context, memberID string) (*model.Member, error) {
			if memberID != "member-1" {
				t.Errorf("memberID = %q, want %q", memberID, "member-1")
			}
			return sampleMember(), nil
		},
	}

	h := NewMemberHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/members/member-1", nil)
	req = withChiURLParam(req, "id", "member-1")
	w := httptest.NewRecorder()

	h.GetMember(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body memberResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.DisplayName != "Guardian" {
		t.Errorf("display_name = %q, want %q", body.DisplayName, "Guardian")
	}
	if body.JoinedAt == nil {
		t.Error("joined_at should be present")
	}
}

func TestMemberHandler_GetMember_NotFound(t *testing.T) {
	svc := &mockMemberService{
		getFn: func(ctx context.Context, memberID string) (*model.Member, error) {
			return nil, model.NewMemberNotFoundError(memberID)
		},
	}

	h := NewMemberHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/members/missing", nil)
	req = withChiURLParam(req, "id", "missing")
	w := httptest.NewRecorder()

	h.GetMember(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}

	body := parseAPIErrorResponse(t, w)
	if body["code"] != model.ErrCodeMemberNotFound {
		t.Errorf("code = %q, want %q", body["code"], model.ErrCodeMemberNotFound)
	}
}

func TestMemberHandler_GetMember_InternalError(t *testing.T) {
	svc := &mockMemberService{
		getFn: func(ctx context.Context, memberID string) (*model.Member, error) {
			return nil, errors.New("db down")
		},
	}

	h := NewMemberHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/members/member-1", nil)
	req = withChiURLParam(req, "id", "member-1")
	w := httptest.NewRecorder()

	h.GetMember(w, req)

	if w.Result().StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusInternalServerError)
	}

	body := parseAPIErrorResponse(t, w)
	if body["code"] != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want %q", body["code"], "INTERNAL_ERROR")
	}
}

// --- GET /api/members/:id/games テスト ---

func TestMemberHandler_GetMemberGames_Success(t *testing.T) {
	svc := &mockMemberService{
		gameCountsFn: func(ctx context.Context, memberID, category string) (map[string]int, error) {
			if category != "raid" {
				t.Errorf("category = %q, want %q", category, "raid")
			}
			return map[string]int{"raid": 42}, nil
		},
	}

	h := NewMemberHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/members/member-1/games?category=raid", nil)
	req = withChiURLParam(req, "id", "member-1")
	w := httptest.NewRecorder()

	h.GetMemberGames(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body countsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Category != "raid" {
		t.Errorf("category = %q, want %q", body.Category, "raid")
	}
	if body.Counts["raid"] != 42 {
		t.Errorf("counts[raid] = %d, want 42", body.Counts["raid"])
	}
}

func TestMemberHandler_GetMemberGames_DefaultsToAllCategory(t *testing.T) {
	var gotCategory string
	svc := &mockMemberService{
		gameCountsFn: func(ctx context.Context, memberID, category string) (map[string]int, error) {
			gotCategory = category
			return map[string]int{}, nil
		},
	}

	h := NewMemberHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/members/member-1/games", nil)
	req = withChiURLParam(req, "id", "member-1")
	w := httptest.NewRecorder()

	h.GetMemberGames(w, req)

	if gotCategory != "all" {
		t.Errorf("category = %q, want %q", gotCategory, "all")
	}
}

func TestMemberHandler_GetMemberGames_UnknownCategory(t *testing.T) {
	svc := &mockMemberService{
		gameCountsFn: func(ctx context.Context, memberID, category string) (map[string]int, error) {
			return nil, model.NewUnknownCategoryError(category)
		},
	}

	h := NewMemberHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/members/member-1/games?category=bogus", nil)
	req = withChiURLParam(req, "id", "member-1")
	w := httptest.NewRecorder()

	h.GetMemberGames(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}

	body := parseAPIErrorResponse(t, w)
	if body["code"] != model.ErrCodeUnknownCategory {
		t.Errorf("code = %q, want %q", body["code"], model.ErrCodeUnknownCategory)
	}
}

// --- GET /api/members/:id/history テスト ---

func TestMemberHandler_GetMemberHistory_Success(t *testing.T) {
	svc := &mockMemberService{
		historyFn: func(ctx context.Context, memberID, category string) (map[string]int, error) {
			return map[string]int{"gambit": 7}, nil
		},
	}

	h := NewMemberHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/members/member-1/history?category=gambit", nil)
	req = withChiURLParam(req, "id", "member-1")
	w := httptest.NewRecorder()

	h.GetMemberHistory(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body countsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Counts["gambit"] != 7 {
		t.Errorf("counts[gambit] = %d, want 7", body.Counts["gambit"])
	}
}

func TestMemberHandler_GetMemberHistory_EmptyCountsIs200(t *testing.T) {
	svc := &mockMemberService{
		historyFn: func(ctx context.Context, memberID, category string) (map[string]int, error) {
			return map[string]int{}, nil
		},
	}

	h := NewMemberHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/members/member-1/history", nil)
	req = withChiURLParam(req, "id", "member-1")
	w := httptest.NewRecorder()

	h.GetMemberHistory(w, req)

	// 対象活動なしはエラーではなく空の集計として返す
	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestMemberHandler_GetMemberHistory_FetchFailureIs502(t *testing.T) {
	svc := &mockMemberService{
		historyFn: func(ctx context.Context, memberID, category string) (map[string]int, error) {
			return nil, model.NewHistoryFetchError("upstream 500")
		},
	}

	h := NewMemberHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/members/member-1/history", nil)
	req = withChiURLParam(req, "id", "member-1")
	w := httptest.NewRecorder()

	h.GetMemberHistory(w, req)

	if w.Result().StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadGateway)
	}

	body := parseAPIErrorResponse(t, w)
	if body["code"] != model.ErrCodeHistoryFetch {
		t.Errorf("code = %q, want %q", body["code"], model.ErrCodeHistoryFetch)
	}
}

// --- mapAPIErrorToHTTPStatus テスト ---

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{model.ErrCodeMemberNotFound, http.StatusNotFound},
		{model.ErrCodeClanNotFound, http.StatusNotFound},
		{model.ErrCodeUnknownCategory, http.StatusBadRequest},
		{model.ErrCodeInvalidMemberID, http.StatusBadRequest},
		{model.ErrCodeSSRFBlocked, http.StatusForbidden},
		{model.ErrCodeHistoryFetch, http.StatusBadGateway},
		{model.ErrCodeOAuthExchange, http.StatusBadGateway},
		{model.ErrCodeDuplicateLink, http.StatusConflict},
		{"UNKNOWN_CODE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got := mapAPIErrorToHTTPStatus(&model.APIError{Code: tt.code})
			if got != tt.want {
				t.Errorf("mapAPIErrorToHTTPStatus(%s) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}
