// Package ledgeraudit は退勤漏れの勤怠記録を検出する監査ジョブを提供する。
// 前日以前の日付で退勤が記録されていない勤怠をカウントし、
// 運用者向けのWARNログとゲージメトリクスで可視化する。
// 監査は読み取り専用で、台帳の修正は管理者の手に委ねる。
package ledgeraudit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/dakoku/internal/repository"
)

// GaugeSetter は未退勤件数のゲージを設定するインターフェース。
type GaugeSetter interface {
	SetOpenRecords(count int)
}

// summaryLimit はWARNログに列挙する未退勤記録の上限件数。
const summaryLimit = 20

// Auditor は退勤漏れ監査ジョブ。
type Auditor struct {
	attendanceRepo repository.AttendanceRepository
	gauge          GaugeSetter
	logger         *slog.Logger
	tz             *time.Location
	now            func() time.Time // テスト用に差し替え可能
}

// NewAuditor はAuditorの新しいインスタンスを生成する。
// tzは勤務日の区切りに使う事業所タイムゾーン。
func NewAuditor(
	attendanceRepo repository.AttendanceRepository,
	gauge GaugeSetter,
	logger *slog.Logger,
	tz *time.Location,
) *Auditor {
	return &Auditor{
		attendanceRepo: attendanceRepo,
		gauge:          gauge,
		logger:         logger,
		tz:             tz,
		now:            time.Now,
	}
}

// Start は指定間隔で監査ジョブを起動する。起動直後に1回実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (a *Auditor) Start(ctx context.Context, interval time.Duration) {
	a.logger.Info("台帳監査ワーカーを開始しました",
		slog.Duration("interval", interval),
	)

	if err := a.RunOnce(ctx); err != nil {
		a.logger.Error("台帳監査の実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("台帳監査ワーカーを停止しました")
			return
		case <-ticker.C:
			if err := a.RunOnce(ctx); err != nil {
				a.logger.Error("台帳監査の実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は当日より前の未退勤記録を1回カウントする。
// 当日の未退勤は勤務中の可能性があるため対象外。
func (a *Auditor) RunOnce(ctx context.Context) error {
	today := a.now().In(a.tz).Format("2006-01-02")

	open, err := a.attendanceRepo.ListOpenBefore(ctx, today)
	if err != nil {
		return fmt.Errorf("未退勤記録の取得に失敗: %w", err)
	}

	if a.gauge != nil {
		a.gauge.SetOpenRecords(len(open))
	}

	if len(open) == 0 {
		a.logger.Info("退勤漏れの勤怠記録はありません")
		return nil
	}

	summary := make([]string, 0, summaryLimit)
	for i, rec := range open {
		if i >= summaryLimit {
			summary = append(summary, fmt.Sprintf("他%d件", len(open)-summaryLimit))
			break
		}
		summary = append(summary, rec.UserID+":"+rec.WorkDate)
	}

	a.logger.Warn("退勤漏れの勤怠記録があります",
		slog.Int("open_count", len(open)),
		slog.String("records", strings.Join(summary, ", ")),
	)
	return nil
}
