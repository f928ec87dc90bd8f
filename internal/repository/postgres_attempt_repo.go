package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/dakoku/internal/model"
)

// PostgresAttemptRepo はPostgreSQLを使用した打刻試行ログリポジトリ。
type PostgresAttemptRepo struct {
	db *sql.DB
}

// NewPostgresAttemptRepo はPostgresAttemptRepoを生成する。
func NewPostgresAttemptRepo(db *sql.DB) *PostgresAttemptRepo {
	return &PostgresAttemptRepo{db: db}
}

// Insert は打刻試行を追記する。IDと記録日時が未設定の場合はここで補完する。
func (r *PostgresAttemptRepo) Insert(ctx context.Context, attempt *model.AttendanceAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO attendance_attempts (id, user_id, action, result_code, office, similarity, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		attempt.ID, attempt.UserID, string(attempt.Action),
		attempt.ResultCode, attempt.Office, attempt.Similarity,
		attempt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("打刻試行ログの追記に失敗しました: %w", err)
	}
	return nil
}

// DeleteBefore は指定日時より古い試行ログを削除し、削除件数を返す。
func (r *PostgresAttemptRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM attendance_attempts WHERE created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("打刻試行ログの削除に失敗しました: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("打刻試行ログの削除件数の確認に失敗しました: %w", err)
	}
	return rows, nil
}

// compile-time interface check
var _ AttemptRepository = (*PostgresAttemptRepo)(nil)
