// Package model はドメインモデルを定義する。
package model

import "time"

// AttendanceAction は打刻種別を表す。
type AttendanceAction string

const (
	// ActionClockIn は出勤打刻。
	ActionClockIn AttendanceAction = "clock_in"
	// ActionClockOut は退勤打刻。
	ActionClockOut AttendanceAction = "clock_out"
)

// AttendanceRecord は(ユーザー, 日付)ごとの勤怠記録を表す。
// 同一ユーザー・同一日付の記録は常に1件以下（DBのUNIQUE制約で保証される中心不変条件）。
// 出勤打刻で作成され、退勤打刻で一度だけ更新される。両方が揃った記録は不変。
type AttendanceRecord struct {
	ID               string
	UserID           string
	WorkDate         string // YYYY-MM-DD。デプロイ先タイムゾーンで日単位に切り捨てた値。
	ClockInTime      time.Time
	ClockInLocation  string
	ClockOutTime     *time.Time
	ClockOutLocation *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Completed は出勤・退勤の両方が記録済みかどうかを返す。
func (r *AttendanceRecord) Completed() bool {
	return r.ClockOutTime != nil
}

// AttendanceAttempt は打刻試行の運用監査ログを表す。
// 成否を問わず毎回追記される。判定ロジックからは参照されない。
type AttendanceAttempt struct {
	ID         string
	UserID     string
	Action     AttendanceAction
	ResultCode string // SUCCESS または APIError.Code
	Office     *string
	Similarity *float64
	CreatedAt  time.Time
}

// AttemptResultSuccess は打刻成功を表す試行結果コード。
const AttemptResultSuccess = "SUCCESS"
