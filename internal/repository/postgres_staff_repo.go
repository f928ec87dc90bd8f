package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/dakoku/internal/model"
)

// PostgresStaffRepo はPostgreSQLを使用したスタッフ名簿リポジトリ。
type PostgresStaffRepo struct {
	db *sql.DB
}

// NewPostgresStaffRepo はPostgresStaffRepoを生成する。
func NewPostgresStaffRepo(db *sql.DB) *PostgresStaffRepo {
	return &PostgresStaffRepo{db: db}
}

// FindByUserID は指定ユーザーIDのスタッフを取得する。見つからない場合はnilを返す。
// 名前が空などの不正な行はnil（見つからない）として扱い、部分的に埋まった
// エンティティを返さない。
func (r *PostgresStaffRepo) FindByUserID(ctx context.Context, userID string) (*model.StaffMember, error) {
	staff := &model.StaffMember{}
	var allowed pq.StringArray
	var enrolledAt, checkedAt sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, name, active, allowed_locations, face_enrolled_at, enrollment_checked_at, created_at, updated_at
		 FROM staff_members WHERE user_id = $1`,
		userID,
	).Scan(
		&staff.UserID, &staff.Name, &staff.Active,
		&allowed,
		&enrolledAt, &checkedAt,
		&staff.CreatedAt, &staff.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("スタッフの取得に失敗しました: %w", err)
	}

	// 不正な行はフェイルクローズ
	if strings.TrimSpace(staff.Name) == "" {
		return nil, nil
	}

	staff.AllowedLocationNames = []string(allowed)
	if enrolledAt.Valid {
		staff.FaceEnrolledAt = &enrolledAt.Time
	}
	if checkedAt.Valid {
		staff.EnrollmentCheckedAt = &checkedAt.Time
	}

	return staff, nil
}

// ListActiveNeedingEnrollmentCheck は登録確認が必要なアクティブスタッフを返す。
// 未確認（enrollment_checked_at IS NULL）を優先し、次に確認日時が古い順。
func (r *PostgresStaffRepo) ListActiveNeedingEnrollmentCheck(ctx context.Context, checkedBefore time.Time, limit int) ([]*model.StaffMember, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, name, active, allowed_locations, face_enrolled_at, enrollment_checked_at, created_at, updated_at
		 FROM staff_members
		 WHERE active = true
		   AND (enrollment_checked_at IS NULL OR enrollment_checked_at < $1)
		 ORDER BY enrollment_checked_at ASC NULLS FIRST
		 LIMIT $2`,
		checkedBefore, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("登録確認対象スタッフの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var list []*model.StaffMember
	for rows.Next() {
		staff := &model.StaffMember{}
		var allowed pq.StringArray
		var enrolledAt, checkedAt sql.NullTime

		if err := rows.Scan(
			&staff.UserID, &staff.Name, &staff.Active,
			&allowed,
			&enrolledAt, &checkedAt,
			&staff.CreatedAt, &staff.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("スタッフ行の読み取りに失敗しました: %w", err)
		}

		staff.AllowedLocationNames = []string(allowed)
		if enrolledAt.Valid {
			staff.FaceEnrolledAt = &enrolledAt.Time
		}
		if checkedAt.Valid {
			staff.EnrollmentCheckedAt = &checkedAt.Time
		}
		list = append(list, staff)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("スタッフ一覧の走査に失敗しました: %w", err)
	}

	return list, nil
}

// UpdateEnrollmentStatus は顔認証サービスでの登録確認結果を更新する。
func (r *PostgresStaffRepo) UpdateEnrollmentStatus(ctx context.Context, userID string, enrolledAt *time.Time, checkedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE staff_members
		 SET face_enrolled_at = $2, enrollment_checked_at = $3, updated_at = now()
		 WHERE user_id = $1`,
		userID, enrolledAt, checkedAt,
	)
	if err != nil {
		return fmt.Errorf("登録確認状態の更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ StaffRepository = (*PostgresStaffRepo)(nil)
