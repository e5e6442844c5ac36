// Package activity はゲームセッションの参加者解決と履歴集計を提供する。
package activity

import (
	"github.com/henworth/trent-six/internal/model"
	"github.com/henworth/trent-six/internal/roster"
)

// DefaultEligibilityThreshold はセッション集計対象判定の既定の閾値。
// ファイアチームの半数以上がクランメンバーであれば対象とする。
const DefaultEligibilityThreshold = 0.5

// ResolveSession はセッション参加者のうちクランメンバーとして解決でき、
// かつセッション時点で加入済みだった参加者を返す。
// 出力順は入力参加者順を保持する。名簿に未登録の参加者はエラーではなく
// 単に非メンバーとして読み飛ばす。副作用はない。
func ResolveSession(session *model.Session, idx *roster.Index) []model.EligibleParticipant {
	var eligible []model.EligibleParticipant
	for _, p := range session.Participants {
		m, ok := idx.Resolve(p.Key)
		if !ok {
			continue
		}
		if !roster.IsEligible(m, session.OccurredAt) {
			continue
		}
		eligible = append(eligible, model.EligibleParticipant{
			MemberID:    m.ID,
			Key:         p.Key,
			DisplayName: p.DisplayName,
			Completed:   p.Completed,
			TimePlayed:  p.TimePlayed,
		})
	}
	return eligible
}

// IsSessionEligible はセッション自体が集計対象かどうかを判定する。
// 解決済み参加者数が全参加者数のthreshold割合以上であればtrue。
// 参加者0人のセッションはどの閾値でも対象外（ゼロ除算と空セッションの
// 誤集計を同時に避ける）。
func IsSessionEligible(session *model.Session, idx *roster.Index, threshold float64) bool {
	total := len(session.Participants)
	if total == 0 {
		return false
	}
	resolved := len(ResolveSession(session, idx))
	return float64(resolved)/float64(total) >= threshold
}
