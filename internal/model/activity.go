// Package model はドメインモデルを定義する。
package model

import "time"

// Participant はゲームセッションに参加した1アカウントを表す。
// プラットフォームIDのみで、メンバー登録の有無はここでは分からない。
type Participant struct {
	Key         IdentityKey
	DisplayName string
	Completed   bool
	TimePlayed  time.Duration
}

// Session は記録済みのゲームセッション（1試合）を表す。
type Session struct {
	InstanceID   int64
	ModeID       int
	ReferenceID  int64
	OccurredAt   time.Time
	Participants []Participant
}

// EligibleParticipant はセッションへの参加が集計対象と判定されたメンバー。
// 入力セッションの参加者順を保持して並べる。
type EligibleParticipant struct {
	MemberID    string
	Key         IdentityKey
	DisplayName string
	Completed   bool
	TimePlayed  time.Duration
}

// Game は永続化されたセッションを表す。
type Game struct {
	ID          string
	InstanceID  int64
	ModeID      int
	ReferenceID int64
	OccurredAt  time.Time
	CreatedAt   time.Time
}

// GameMember はゲームとメンバーの参加関係を表す。
type GameMember struct {
	GameID     string
	MemberID   string
	Completed  bool
	TimePlayed time.Duration
}
