// Package roster はクラン名簿の索引構築と参加資格判定を提供する。
package roster

import (
	"time"

	"github.com/henworth/trent-six/internal/model"
)

// IsEligible はセッション時刻の時点でメンバーが集計対象かどうかを判定する。
// 加入時刻がセッション時刻より厳密に前の場合のみtrue。
// 同時刻（秒単位まで一致）は加入前とみなし集計対象外とする。
func IsEligible(m *model.Member, sessionTime time.Time) bool {
	return m.JoinedAt.Before(sessionTime)
}
