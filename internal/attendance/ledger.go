// Package attendance は打刻ワークフローと勤怠台帳のドメインロジックを提供する。
package attendance

import (
	"time"

	"github.com/hitoshi/dakoku/internal/model"
)

// State は(ユーザー, 勤務日)ごとの勤怠状態を表す。
type State string

const (
	// StateNoRecord は当日の記録がない状態。
	StateNoRecord State = "no_record"
	// StateClockedIn は出勤済み・未退勤の状態。
	StateClockedIn State = "clocked_in"
	// StateClockedOutComplete は出勤・退勤の両方が記録済みの状態。
	// この状態の記録は以後変更されない。
	StateClockedOutComplete State = "clocked_out_complete"
)

// StateOf は勤怠記録から勤怠状態を導出する。記録がない場合はStateNoRecord。
func StateOf(rec *model.AttendanceRecord) State {
	switch {
	case rec == nil:
		return StateNoRecord
	case rec.Completed():
		return StateClockedOutComplete
	default:
		return StateClockedIn
	}
}

// TransitionError は現在の勤怠状態に対して打刻が許されない場合の業務エラーを返す。
// 遷移が許される場合はnilを返す。
//
//	状態 \ 打刻      出勤                退勤
//	記録なし         許可                NO_CLOCK_IN_FOUND
//	出勤済み         ALREADY_CLOCKED_IN  許可
//	退勤済み         ALREADY_CLOCKED_IN  ALREADY_CLOCKED_OUT
func TransitionError(action model.AttendanceAction, state State) *model.APIError {
	switch action {
	case model.ActionClockIn:
		switch state {
		case StateClockedIn, StateClockedOutComplete:
			// 当日の出勤は記録済み。退勤済みでも出勤打刻への応答は同じ。
			return model.NewAlreadyClockedInError()
		}
	case model.ActionClockOut:
		switch state {
		case StateNoRecord:
			return model.NewNoClockInFoundError()
		case StateClockedOutComplete:
			return model.NewAlreadyClockedOutError()
		}
	}
	return nil
}

// WorkDate は打刻日時から勤務日キー（YYYY-MM-DD）を導出する。
// 勤務日は事業所タイムゾーンの暦日で区切られ、日をまたぐと別の勤務日になる。
func WorkDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
