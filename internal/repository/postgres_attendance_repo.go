package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/dakoku/internal/model"
)

// PostgresAttendanceRepo はPostgreSQLを使用した勤怠記録リポジトリ。
// UNIQUE(user_id, work_date)制約と条件付き書き込みで、同一ユーザー・同一日の
// 並行打刻が二重に成功しないことを保証する。
type PostgresAttendanceRepo struct {
	db *sql.DB
}

// NewPostgresAttendanceRepo はPostgresAttendanceRepoを生成する。
func NewPostgresAttendanceRepo(db *sql.DB) *PostgresAttendanceRepo {
	return &PostgresAttendanceRepo{db: db}
}

// FindByUserAndDate は指定ユーザー・日付の勤怠記録を取得する。見つからない場合はnilを返す。
// 出勤時刻や出勤オフィスが欠けた不正な行はnil（見つからない）として扱う。
func (r *PostgresAttendanceRepo) FindByUserAndDate(ctx context.Context, userID, workDate string) (*model.AttendanceRecord, error) {
	rec := &model.AttendanceRecord{}
	var clockOutTime sql.NullTime
	var clockOutLocation sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, work_date::text, clock_in_time, clock_in_location,
		        clock_out_time, clock_out_location, created_at, updated_at
		 FROM attendance_records
		 WHERE user_id = $1 AND work_date = $2`,
		userID, workDate,
	).Scan(
		&rec.ID, &rec.UserID, &rec.WorkDate,
		&rec.ClockInTime, &rec.ClockInLocation,
		&clockOutTime, &clockOutLocation,
		&rec.CreatedAt, &rec.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("勤怠記録の取得に失敗しました: %w", err)
	}

	// 出勤側が欠けた行、退勤時刻と退勤オフィスの片方だけが埋まった行は
	// フェイルクローズで見つからなかったものとして扱う
	if rec.ClockInTime.IsZero() || rec.ClockInLocation == "" {
		return nil, nil
	}
	if clockOutTime.Valid != clockOutLocation.Valid {
		return nil, nil
	}

	if clockOutTime.Valid {
		rec.ClockOutTime = &clockOutTime.Time
		rec.ClockOutLocation = &clockOutLocation.String
	}

	return rec, nil
}

// CreateClockIn は出勤記録を条件付きで作成する。
// 既に同一(user_id, work_date)の記録が存在する場合はcreated=falseを返す。
// INSERT ... ON CONFLICT DO NOTHINGの単一文で行うため、並行打刻でも
// 記録が作成されるのはちょうど1回となる。
func (r *PostgresAttendanceRepo) CreateClockIn(ctx context.Context, rec *model.AttendanceRecord) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO attendance_records
		     (id, user_id, work_date, clock_in_time, clock_in_location, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id, work_date) DO NOTHING`,
		rec.ID, rec.UserID, rec.WorkDate,
		rec.ClockInTime, rec.ClockInLocation,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("出勤記録の作成に失敗しました: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("出勤記録の作成結果の確認に失敗しました: %w", err)
	}
	return rows == 1, nil
}

// CompleteClockOut は退勤情報を条件付きで書き込む。
// 未退勤の記録だけを対象にした単一のUPDATE文で行うため、並行する退勤打刻で
// 更新が成功するのはちょうど1回となる。対象行がない場合はupdated=falseを返す。
func (r *PostgresAttendanceRepo) CompleteClockOut(ctx context.Context, userID, workDate string, clockOutTime time.Time, office string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE attendance_records
		 SET clock_out_time = $3, clock_out_location = $4, updated_at = $5
		 WHERE user_id = $1 AND work_date = $2 AND clock_out_time IS NULL`,
		userID, workDate, clockOutTime, office, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("退勤記録の更新に失敗しました: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("退勤記録の更新結果の確認に失敗しました: %w", err)
	}
	return rows == 1, nil
}

// ListOpenBefore は指定日より前の日付で退勤が記録されていない勤怠記録を返す。
func (r *PostgresAttendanceRepo) ListOpenBefore(ctx context.Context, workDate string) ([]*model.AttendanceRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, work_date::text, clock_in_time, clock_in_location,
		        clock_out_time, clock_out_location, created_at, updated_at
		 FROM attendance_records
		 WHERE work_date < $1 AND clock_out_time IS NULL
		 ORDER BY work_date ASC, user_id ASC`,
		workDate,
	)
	if err != nil {
		return nil, fmt.Errorf("退勤漏れ記録の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListByDate は指定日の全勤怠記録を出勤時刻の昇順で返す。
func (r *PostgresAttendanceRepo) ListByDate(ctx context.Context, workDate string) ([]*model.AttendanceRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, work_date::text, clock_in_time, clock_in_location,
		        clock_out_time, clock_out_location, created_at, updated_at
		 FROM attendance_records
		 WHERE work_date = $1
		 ORDER BY clock_in_time ASC`,
		workDate,
	)
	if err != nil {
		return nil, fmt.Errorf("勤怠記録一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// scanRecords は勤怠記録の行セットを走査する。不正な行は読み飛ばす。
func scanRecords(rows *sql.Rows) ([]*model.AttendanceRecord, error) {
	var list []*model.AttendanceRecord
	for rows.Next() {
		rec := &model.AttendanceRecord{}
		var clockOutTime sql.NullTime
		var clockOutLocation sql.NullString

		if err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.WorkDate,
			&rec.ClockInTime, &rec.ClockInLocation,
			&clockOutTime, &clockOutLocation,
			&rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("勤怠記録行の読み取りに失敗しました: %w", err)
		}

		if rec.ClockInTime.IsZero() || rec.ClockInLocation == "" {
			continue
		}
		if clockOutTime.Valid != clockOutLocation.Valid {
			continue
		}
		if clockOutTime.Valid {
			rec.ClockOutTime = &clockOutTime.Time
			rec.ClockOutLocation = &clockOutLocation.String
		}
		list = append(list, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("勤怠記録一覧の走査に失敗しました: %w", err)
	}
	return list, nil
}

// compile-time interface check
var _ AttendanceRepository = (*PostgresAttendanceRepo)(nil)
