// Package enrollsync は顔認証サービスの登録状態をスタッフ名簿に同期するジョブを提供する。
// 未登録のままのアクティブスタッフは打刻時に必ず顔照合で弾かれるため、
// 定期的に登録状態を確認して運用者が打刻前に気付けるようにする。
package enrollsync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/dakoku/internal/model"
	"github.com/hitoshi/dakoku/internal/repository"
)

// EnrollmentChecker は顔認証サービスへの登録確認インターフェース。
type EnrollmentChecker interface {
	// CheckEnrollment は指定ユーザーが顔認証サービスに登録済みかを返す。
	CheckEnrollment(ctx context.Context, userID string) (bool, error)
}

// Invalidator はスタッフキャッシュの無効化インターフェース。
type Invalidator interface {
	Invalidate(userID string)
}

// Recorder は登録確認の計測値を記録するインターフェース。
type Recorder interface {
	RecordEnrollmentCheck(status string)
}

const (
	// initialBackoff はサイクル失敗時の初回リトライ遅延。
	initialBackoff = 5 * time.Minute
	// maxBackoff はリトライ遅延の上限。
	maxBackoff = time.Hour
)

// CalculateBackoff は連続サイクル失敗回数に基づいてリトライ遅延を計算する。
// 初回5分、2倍ずつ増加、最大1時間。
func CalculateBackoff(consecutiveFailures int) time.Duration {
	delay := initialBackoff
	for i := 1; i < consecutiveFailures; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// Syncer は登録状態の同期ジョブ。
// 確認が古くなったアクティブスタッフをバッチで取得し、
// semaphoreパターンで並列数を制御しながら顔認証サービスに問い合わせる。
type Syncer struct {
	staffRepo     repository.StaffRepository
	checker       EnrollmentChecker
	invalidator   Invalidator
	recorder      Recorder
	logger        *slog.Logger
	batchSize     int
	maxConcurrent int

	// RecheckAfter は確認済みスタッフを再確認するまでの期間（デフォルト: 24時間）。
	RecheckAfter time.Duration

	failures int // 連続サイクル失敗回数
}

// NewSyncer はSyncerの新しいインスタンスを生成する。
// batchSize・maxConcurrentが0以下の場合はデフォルト値（50件、並列4）を使用する。
func NewSyncer(
	staffRepo repository.StaffRepository,
	checker EnrollmentChecker,
	invalidator Invalidator,
	recorder Recorder,
	logger *slog.Logger,
	batchSize int,
	maxConcurrent int,
) *Syncer {
	if batchSize <= 0 {
		batchSize = 50
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Syncer{
		staffRepo:     staffRepo,
		checker:       checker,
		invalidator:   invalidator,
		recorder:      recorder,
		logger:        logger,
		batchSize:     batchSize,
		maxConcurrent: maxConcurrent,
		RecheckAfter:  24 * time.Hour,
	}
}

// Start は指定間隔で同期ジョブを起動する。起動直後に1回実行する。
// サイクルが失敗した場合は次回実行を段階的なバックオフ遅延に置き換える。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Syncer) Start(ctx context.Context, interval time.Duration) {
	s.logger.Info("登録同期ワーカーを開始しました",
		slog.Duration("interval", interval),
		slog.Int("batch_size", s.batchSize),
		slog.Int("max_concurrent", s.maxConcurrent),
	)

	timer := time.NewTimer(0) // 起動直後に1回実行
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("登録同期ワーカーを停止しました")
			return
		case <-timer.C:
			next := interval
			if err := s.RunOnce(ctx); err != nil {
				s.failures++
				next = CalculateBackoff(s.failures)
				s.logger.Error("登録同期サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
					slog.Int("consecutive_failures", s.failures),
					slog.Duration("retry_in", next),
				)
			} else {
				s.failures = 0
			}
			timer.Reset(next)
		}
	}
}

// RunOnce は確認が必要なスタッフを1バッチ取得し、並列で登録状態を確認する。
// バッチ全件の確認に失敗した場合（顔認証サービス停止とみなす）はエラーを返す。
func (s *Syncer) RunOnce(ctx context.Context) error {
	start := time.Now()
	cutoff := start.Add(-s.RecheckAfter)

	staff, err := s.staffRepo.ListActiveNeedingEnrollmentCheck(ctx, cutoff, s.batchSize)
	if err != nil {
		return fmt.Errorf("登録確認対象の取得に失敗: %w", err)
	}

	if len(staff) == 0 {
		s.logger.Info("登録確認が必要なスタッフはいません")
		return nil
	}

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrent)
	var wg sync.WaitGroup
	var mu sync.Mutex
	probeErrors := 0

	for _, member := range staff {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(m *model.StaffMember) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			if err := s.checkOne(ctx, m); err != nil {
				mu.Lock()
				probeErrors++
				mu.Unlock()
				s.logger.Error("登録状態の確認に失敗しました",
					slog.String("user_id", m.UserID),
					slog.String("error", err.Error()),
				)
			}
		}(member)
	}

	wg.Wait()

	duration := time.Since(start)
	s.logger.Info("登録同期サイクルが完了しました",
		slog.Int("checked", len(staff)),
		slog.Int("errors", probeErrors),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	if probeErrors == len(staff) {
		return fmt.Errorf("バッチ全%d件の登録確認に失敗しました", probeErrors)
	}
	return nil
}

// checkOne は1人分の登録状態を確認して名簿に反映する。
func (s *Syncer) checkOne(ctx context.Context, m *model.StaffMember) error {
	enrolled, err := s.checker.CheckEnrollment(ctx, m.UserID)
	if err != nil {
		if s.recorder != nil {
			s.recorder.RecordEnrollmentCheck("error")
		}
		return err
	}

	now := time.Now()
	var enrolledAt *time.Time
	status := "not_enrolled"
	if enrolled {
		status = "enrolled"
		// 初回確認時のみ日時を記録し、確認済みなら維持する
		if m.FaceEnrolledAt != nil {
			enrolledAt = m.FaceEnrolledAt
		} else {
			enrolledAt = &now
		}
	}

	if err := s.staffRepo.UpdateEnrollmentStatus(ctx, m.UserID, enrolledAt, now); err != nil {
		if s.recorder != nil {
			s.recorder.RecordEnrollmentCheck("error")
		}
		return fmt.Errorf("登録状態の更新に失敗: %w", err)
	}

	if s.recorder != nil {
		s.recorder.RecordEnrollmentCheck(status)
	}
	if s.invalidator != nil {
		s.invalidator.Invalidate(m.UserID)
	}

	if !enrolled {
		s.logger.Warn("顔認証サービスに未登録のアクティブスタッフがいます",
			slog.String("user_id", m.UserID),
		)
	}
	return nil
}
