// Package bungie はBungie.net Platform APIのクライアントを提供する。
package bungie

import (
	"encoding/json"
	"strconv"
	"time"
)

// envelope はBungie APIの全レスポンスを包む共通フォーマット。
// ErrorCode 1 が成功を表す。
type envelope struct {
	Response        json.RawMessage `json:"Response"`
	ErrorCode       int             `json:"ErrorCode"`
	ErrorStatus     string          `json:"ErrorStatus"`
	Message         string          `json:"Message"`
	ThrottleSeconds int             `json:"ThrottleSeconds"`
}

// errorCodeSuccess はBungie APIの成功コード。
const errorCodeSuccess = 1

// int64String はJSON上は文字列で表現される64bit整数。
// Bungie APIはmembershipIdやinstanceIdを文字列で返す。
type int64String int64

func (n *int64String) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// 数値で返す実装系も存在するためフォールバックする
		var i int64
		if numErr := json.Unmarshal(data, &i); numErr != nil {
			return err
		}
		*n = int64String(i)
		return nil
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*n = int64String(i)
	return nil
}

// userInfo はAPIレスポンス中のプレイヤー識別情報。
type userInfo struct {
	MembershipType int         `json:"membershipType"`
	MembershipID   int64String `json:"membershipId"`
	DisplayName    string      `json:"displayName"`
	IconPath       string      `json:"iconPath"`
}

// groupMembersResponse はGroupV2 Membersエンドポイントのレスポンス。
type groupMembersResponse struct {
	Results []struct {
		MemberType        int       `json:"memberType"`
		DestinyUserInfo   userInfo  `json:"destinyUserInfo"`
		BungieNetUserInfo *userInfo `json:"bungieNetUserInfo"`
		JoinDate          time.Time `json:"joinDate"`
		IsOnline          bool      `json:"isOnline"`
	} `json:"results"`
	TotalResults int  `json:"totalResults"`
	HasMore      bool `json:"hasMore"`
}

// profileResponse はDestiny2 Profileエンドポイントのレスポンス。
type profileResponse struct {
	Profile struct {
		Data struct {
			UserInfo     userInfo `json:"userInfo"`
			CharacterIDs []int64String `json:"characterIds"`
			DateLastPlayed time.Time `json:"dateLastPlayed"`
		} `json:"data"`
	} `json:"profile"`
}

// activityDetails はアクティビティの識別情報。
type activityDetails struct {
	ReferenceID int64String `json:"referenceId"`
	InstanceID  int64String `json:"instanceId"`
	Mode        int         `json:"mode"`
	Modes       []int       `json:"modes"`
}

// activityHistoryResponse はCharacter Activitiesエンドポイントのレスポンス。
// 履歴の終端ではactivitiesフィールド自体が省略される。
type activityHistoryResponse struct {
	Activities []struct {
		Period          time.Time       `json:"period"`
		ActivityDetails activityDetails `json:"activityDetails"`
	} `json:"activities"`
}

// statValue はPGCRの統計値。
type statValue struct {
	Basic struct {
		Value        float64 `json:"value"`
		DisplayValue string  `json:"displayValue"`
	} `json:"basic"`
}

// carnageReportResponse はPostGameCarnageReportエンドポイントのレスポンス。
type carnageReportResponse struct {
	Period          time.Time       `json:"period"`
	ActivityDetails activityDetails `json:"activityDetails"`
	Entries         []struct {
		Player struct {
			DestinyUserInfo userInfo `json:"destinyUserInfo"`
			EmblemHash      int64    `json:"emblemHash"`
		} `json:"player"`
		Values map[string]statValue `json:"values"`
	} `json:"entries"`
}

// GroupMember はクランに所属する1アカウントの名簿情報。
type GroupMember struct {
	MembershipType int
	MembershipID   int64
	DisplayName    string
	IconPath       string
	BungieID       int64
	MemberType     int
	JoinDate       time.Time
	IsOnline       bool
}

// Profile はアカウントのプロファイル概要。
type Profile struct {
	MembershipType int
	MembershipID   int64
	DisplayName    string
	CharacterIDs   []int64
	DateLastPlayed time.Time
}
