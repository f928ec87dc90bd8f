// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/dakoku/internal/model"
)

// StaffRepository はスタッフ名簿の永続化インターフェース。
// 名簿は管理者が外部で管理するため、本サービスからの書き込みは
// 顔認証サービスの登録確認状態に限られる。
type StaffRepository interface {
	// FindByUserID は指定ユーザーIDのスタッフを取得する。見つからない場合はnilを返す。
	// 型どおりに読み取れない行（名前が空など）は見つからなかったものとして扱う。
	FindByUserID(ctx context.Context, userID string) (*model.StaffMember, error)

	// ListActiveNeedingEnrollmentCheck は顔認証サービスでの登録確認が必要な
	// アクティブスタッフを返す。未確認（enrollment_checked_at IS NULL）を優先し、
	// 次に確認日時が古い順に返す。
	ListActiveNeedingEnrollmentCheck(ctx context.Context, checkedBefore time.Time, limit int) ([]*model.StaffMember, error)

	// UpdateEnrollmentStatus は顔認証サービスでの登録確認結果を更新する。
	// enrolledAtがnilの場合は未登録として記録する。
	UpdateEnrollmentStatus(ctx context.Context, userID string, enrolledAt *time.Time, checkedAt time.Time) error
}

// AttendanceRepository は勤怠記録の永続化インターフェース。
// 同一(user_id, work_date)への書き込みは条件付きで行い、
// 並行する打刻が両方成功しないことをDB側の制約で担保する。
type AttendanceRepository interface {
	// FindByUserAndDate は指定ユーザー・日付の勤怠記録を取得する。見つからない場合はnilを返す。
	// 型どおりに読み取れない行は見つからなかったものとして扱う。
	FindByUserAndDate(ctx context.Context, userID, workDate string) (*model.AttendanceRecord, error)

	// CreateClockIn は出勤記録を条件付きで作成する。
	// 同一(user_id, work_date)の記録が既に存在する場合はcreated=falseを返し、何も書き込まない。
	CreateClockIn(ctx context.Context, rec *model.AttendanceRecord) (created bool, err error)

	// CompleteClockOut は退勤情報を条件付きで書き込む。
	// 出勤済みかつ未退勤の記録だけを更新し、対象がなければupdated=falseを返す。
	CompleteClockOut(ctx context.Context, userID, workDate string, clockOutTime time.Time, office string) (updated bool, err error)

	// ListOpenBefore は指定日より前の日付で退勤が記録されていない勤怠記録を返す。
	ListOpenBefore(ctx context.Context, workDate string) ([]*model.AttendanceRecord, error)

	// ListByDate は指定日の全勤怠記録を出勤時刻の昇順で返す。
	ListByDate(ctx context.Context, workDate string) ([]*model.AttendanceRecord, error)
}

// AttemptRepository は打刻試行ログの永続化インターフェース。
// 試行ログは追記専用の運用監査データで、判定ロジックからは参照されない。
type AttemptRepository interface {
	// Insert は打刻試行を追記する。
	Insert(ctx context.Context, attempt *model.AttendanceAttempt) error

	// DeleteBefore は指定日時より古い試行ログを削除し、削除件数を返す。
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
