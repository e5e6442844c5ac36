package bungie

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/henworth/trent-six/internal/logger"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	client := NewClient(ts.Client(), logger.Setup(testWriter{t}), ts.URL, "test-api-key", 100)
	return client, ts
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}

func TestGetGroupMembers_Paginated(t *testing.T) {
	var gotAPIKey string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAPIKey = r.Header.Get("X-API-Key")
		page := r.URL.Query().Get("currentpage")
		w.Header().Set("Content-Type", "application/json")
		if page == "1" {
			w.Write([]byte(`{
				"Response": {
					"results": [
						{
							"memberType": 3,
							"joinDate": "2019-04-01T10:00:00Z",
							"isOnline": true,
							"destinyUserInfo": {"membershipType": 2, "membershipId": "4611686018467260757", "displayName": "guardian-one"},
							"bungieNetUserInfo": {"membershipType": 254, "membershipId": "19248210", "displayName": "guardian-one"}
						}
					],
					"totalResults": 2,
					"hasMore": true
				},
				"ErrorCode": 1, "ErrorStatus": "Success", "Message": "Ok"
			}`))
			return
		}
		w.Write([]byte(`{
			"Response": {
				"results": [
					{
						"memberType": 2,
						"joinDate": "2020-01-15T00:30:00Z",
						"destinyUserInfo": {"membershipType": 1, "membershipId": "4611686018429838443", "displayName": "guardian-two"}
					}
				],
				"totalResults": 2,
				"hasMore": false
			},
			"ErrorCode": 1, "ErrorStatus": "Success", "Message": "Ok"
		}`))
	})

	client, _ := newTestClient(t, handler)
	members, err := client.GetGroupMembers(context.Background(), 1234567)
	if err != nil {
		t.Fatalf("GetGroupMembers() error = %v", err)
	}

	if gotAPIKey != "test-api-key" {
		t.Errorf("X-API-Key = %q, want %q", gotAPIKey, "test-api-key")
	}
	if len(members) != 2 {
		t.Fatalf("len(members) = %d, want 2", len(members))
	}
	if members[0].MembershipID != 4611686018467260757 {
		t.Errorf("members[0].MembershipID = %d, want 4611686018467260757", members[0].MembershipID)
	}
	if members[0].BungieID != 19248210 {
		t.Errorf("members[0].BungieID = %d, want 19248210", members[0].BungieID)
	}
	wantJoin := time.Date(2019, 4, 1, 10, 0, 0, 0, time.UTC)
	if !members[0].JoinDate.Equal(wantJoin) {
		t.Errorf("members[0].JoinDate = %v, want %v", members[0].JoinDate, wantJoin)
	}
	if members[1].DisplayName != "guardian-two" {
		t.Errorf("members[1].DisplayName = %q, want %q", members[1].DisplayName, "guardian-two")
	}
	if members[1].BungieID != 0 {
		t.Errorf("members[1].BungieID = %d, want 0", members[1].BungieID)
	}
}

func TestGetProfile(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/Destiny2/2/Profile/4611686018467260757/") {
			t.Errorf("想定外のパス: %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"Response": {
				"profile": {
					"data": {
						"userInfo": {"membershipType": 2, "membershipId": "4611686018467260757", "displayName": "guardian-one"},
						"characterIds": ["2305843009301040757", "2305843009301040758"],
						"dateLastPlayed": "2022-10-01T03:00:00Z"
					}
				}
			},
			"ErrorCode": 1, "ErrorStatus": "Success", "Message": "Ok"
		}`))
	})

	client, _ := newTestClient(t, handler)
	profile, err := client.GetProfile(context.Background(), 2, 4611686018467260757)
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}

	if len(profile.CharacterIDs) != 2 {
		t.Fatalf("len(CharacterIDs) = %d, want 2", len(profile.CharacterIDs))
	}
	if profile.CharacterIDs[0] != 2305843009301040757 {
		t.Errorf("CharacterIDs[0] = %d, want 2305843009301040757", profile.CharacterIDs[0])
	}
}

func TestGetActivityHistory(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"Response": {
				"activities": [
					{
						"period": "2022-09-10T21:00:00Z",
						"activityDetails": {"referenceId": "910380154", "instanceId": "11479002216", "mode": 4, "modes": [7, 4]}
					}
				]
			},
			"ErrorCode": 1, "ErrorStatus": "Success", "Message": "Ok"
		}`))
	})

	client, _ := newTestClient(t, handler)
	sessions, err := client.GetActivityHistory(context.Background(), 2, 4611686018467260757, 2305843009301040757, 0, 250, 0)
	if err != nil {
		t.Fatalf("GetActivityHistory() error = %v", err)
	}

	if len(sessions) != 1 {
		t.Fatalf("len(sessions) = %d, want 1", len(sessions))
	}
	if sessions[0].InstanceID != 11479002216 {
		t.Errorf("InstanceID = %d, want 11479002216", sessions[0].InstanceID)
	}
	if sessions[0].ModeID != 4 {
		t.Errorf("ModeID = %d, want 4", sessions[0].ModeID)
	}
}

func TestGetActivityHistory_EndOfHistory(t *testing.T) {
	// 履歴終端ではactivitiesフィールド自体が省略される
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Response": {}, "ErrorCode": 1, "ErrorStatus": "Success", "Message": "Ok"}`))
	})

	client, _ := newTestClient(t, handler)
	sessions, err := client.GetActivityHistory(context.Background(), 2, 1, 2, 0, 250, 99)
	if err != nil {
		t.Fatalf("GetActivityHistory() error = %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("len(sessions) = %d, want 0", len(sessions))
	}
}

func TestGetPostGameCarnageReport(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"Response": {
				"period": "2022-09-10T21:00:00Z",
				"activityDetails": {"referenceId": "910380154", "instanceId": "11479002216", "mode": 4, "modes": [7, 4]},
				"entries": [
					{
						"player": {"destinyUserInfo": {"membershipType": 2, "membershipId": "100", "displayName": "one"}},
						"values": {
							"completed": {"basic": {"value": 1, "displayValue": "Yes"}},
							"timePlayedSeconds": {"basic": {"value": 3600, "displayValue": "1h"}}
						}
					},
					{
						"player": {"destinyUserInfo": {"membershipType": 99, "membershipId": "200", "displayName": "unknown-platform"}},
						"values": {}
					},
					{
						"player": {"destinyUserInfo": {"membershipType": 1, "membershipId": "300", "displayName": "three"}},
						"values": {"completed": {"basic": {"value": 0, "displayValue": "No"}}}
					}
				]
			},
			"ErrorCode": 1, "ErrorStatus": "Success", "Message": "Ok"
		}`))
	})

	client, _ := newTestClient(t, handler)
	session, err := client.GetPostGameCarnageReport(context.Background(), 11479002216)
	if err != nil {
		t.Fatalf("GetPostGameCarnageReport() error = %v", err)
	}

	// 未知のプラットフォームの参加者は読み飛ばされる
	if len(session.Participants) != 2 {
		t.Fatalf("len(Participants) = %d, want 2", len(session.Participants))
	}
	p := session.Participants[0]
	if !p.Completed {
		t.Error("Participants[0].Completed = false, want true")
	}
	if p.TimePlayed != time.Hour {
		t.Errorf("Participants[0].TimePlayed = %v, want %v", p.TimePlayed, time.Hour)
	}
	if session.Participants[1].Completed {
		t.Error("Participants[1].Completed = true, want false")
	}
	// プレイ時間がない参加者はゼロのまま
	if session.Participants[1].TimePlayed != 0 {
		t.Errorf("Participants[1].TimePlayed = %v, want 0", session.Participants[1].TimePlayed)
	}
}

func TestGet_APIErrorCode(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Response": {}, "ErrorCode": 1665, "ErrorStatus": "DestinyPrivacyRestriction", "Message": "restricted"}`))
	})

	client, _ := newTestClient(t, handler)
	_, err := client.GetProfile(context.Background(), 2, 1)
	if err == nil {
		t.Fatal("GetProfile() error = nil, want error for ErrorCode != 1")
	}
	if !strings.Contains(err.Error(), "DestinyPrivacyRestriction") {
		t.Errorf("error = %v, want ErrorStatusを含む", err)
	}
}

func TestGet_HTTPErrorStatus(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	client, _ := newTestClient(t, handler)
	_, err := client.GetProfile(context.Background(), 2, 1)
	if err == nil {
		t.Fatal("GetProfile() error = nil, want error for HTTP 503")
	}
}

type stubStatusRecorder struct {
	codes []int
}

func (r *stubStatusRecorder) RecordBungieStatus(statusCode int) {
	r.codes = append(r.codes, statusCode)
}

// WithMetricsで設定した観測先にHTTPステータスが記録されることを検証
func TestClient_WithMetrics_RecordsStatusCodes(t *testing.T) {
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"Response": {"results": [], "totalResults": 0, "hasMore": false}, "ErrorCode": 1, "ErrorStatus": "Success", "Message": "Ok"}`))
	})

	client, _ := newTestClient(t, handler)
	recorder := &stubStatusRecorder{}
	client = client.WithMetrics(recorder)

	if _, err := client.GetGroupMembers(context.Background(), 1); err == nil {
		t.Fatal("GetGroupMembers() error = nil, want error on 503")
	}
	if _, err := client.GetGroupMembers(context.Background(), 1); err != nil {
		t.Fatalf("GetGroupMembers() error = %v", err)
	}

	if len(recorder.codes) != 2 {
		t.Fatalf("len(codes) = %d, want 2", len(recorder.codes))
	}
	if recorder.codes[0] != http.StatusServiceUnavailable {
		t.Errorf("codes[0] = %d, want 503", recorder.codes[0])
	}
	if recorder.codes[1] != http.StatusOK {
		t.Errorf("codes[1] = %d, want 200", recorder.codes[1])
	}
}
