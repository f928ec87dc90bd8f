package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/dakoku/internal/faceid"
	"github.com/hitoshi/dakoku/internal/geo"
	"github.com/hitoshi/dakoku/internal/model"
	"github.com/hitoshi/dakoku/internal/repository"
)

// GeoResolver は拠点設定を提供するインターフェース。
type GeoResolver interface {
	Locations(ctx context.Context) ([]model.Location, error)
}

// StaffDirectory はスタッフ名簿の検索インターフェース。
type StaffDirectory interface {
	Lookup(ctx context.Context, userID string) (*model.StaffMember, error)
}

// FaceVerifier は顔照合インターフェース。
type FaceVerifier interface {
	Verify(ctx context.Context, sample []byte, subjectHint string) (*faceid.VerifyResult, error)
}

// Recorder は打刻試行の計測値を記録するインターフェース。
type Recorder interface {
	RecordAttempt(action, resultCode string)
	RecordFaceVerification(duration time.Duration, similarity float64)
}

// Request は打刻リクエスト。
// 緯度・経度は端末で位置情報が取得できなかった場合にnilになる。
// Timestampは打刻時刻。キオスク端末の時計は信用せず、HTTP層が受信時刻を設定する。
// ゼロ値の場合はサービスが現在時刻を使う。
type Request struct {
	UserID    string
	Action    model.AttendanceAction
	Latitude  *float64
	Longitude *float64
	FaceImage string
	Timestamp time.Time
}

// Result は打刻成功時の結果。
type Result struct {
	Record  *model.AttendanceRecord
	Office  string
	Message string
}

// Status は当日の勤怠状態の照会結果。
type Status struct {
	State    State
	WorkDate string
	Record   *model.AttendanceRecord
}

// Config はServiceの動作設定。
type Config struct {
	// FaceMatchThreshold は顔照合の合格に必要な類似度の下限。この値ちょうどは合格。
	FaceMatchThreshold float64
	// FaceTimeout は顔照合API呼び出しの上限時間。
	FaceTimeout time.Duration
	// FaceSampleMaxBytes は顔画像サンプルのデコード後サイズ上限。
	FaceSampleMaxBytes int64
	// Timezone は勤務日の区切りに使う事業所タイムゾーン。
	Timezone *time.Location
}

// Service は打刻ワークフローのサービス層。
// ジオフェンス判定、名簿照会、顔照合、勤怠台帳の更新を順に実行し、
// 先に失敗した検査のエラーを返す。成否を問わず試行ログを残す。
type Service struct {
	geo        GeoResolver
	directory  StaffDirectory
	face       FaceVerifier
	attendance repository.AttendanceRepository
	attempts   repository.AttemptRepository
	recorder   Recorder
	logger     *slog.Logger

	threshold      float64
	faceTimeout    time.Duration
	maxSampleBytes int64
	tz             *time.Location
	now            func() time.Time // テスト用に差し替え可能
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	geoResolver GeoResolver,
	dir StaffDirectory,
	face FaceVerifier,
	attendanceRepo repository.AttendanceRepository,
	attemptRepo repository.AttemptRepository,
	recorder Recorder,
	logger *slog.Logger,
	cfg Config,
) *Service {
	return &Service{
		geo:            geoResolver,
		directory:      dir,
		face:           face,
		attendance:     attendanceRepo,
		attempts:       attemptRepo,
		recorder:       recorder,
		logger:         logger,
		threshold:      cfg.FaceMatchThreshold,
		faceTimeout:    cfg.FaceTimeout,
		maxSampleBytes: cfg.FaceSampleMaxBytes,
		tz:             cfg.Timezone,
		now:            time.Now,
	}
}

// RecordAttendance は打刻リクエストを処理する。
// 検査順序: ジオフェンス → 名簿（存在・在籍状態・勤務地） → 顔照合 → 勤怠台帳。
// 成功時はResultを、失敗時は原因を表すエラーを返す。
func (s *Service) RecordAttendance(ctx context.Context, req *Request) (*Result, error) {
	attempt := &model.AttendanceAttempt{
		UserID: req.UserID,
		Action: req.Action,
	}

	result, err := s.evaluate(ctx, req, attempt)

	attempt.ResultCode = resultCode(err)
	s.recordAttempt(ctx, attempt)
	if s.recorder != nil {
		s.recorder.RecordAttempt(string(req.Action), attempt.ResultCode)
	}
	s.logOutcome(req, attempt, result, err)

	return result, err
}

// evaluate は打刻の検査と台帳更新を順に実行する。
// 途中経過（判定拠点・類似度）は試行ログ用にattemptへ書き込まれる。
func (s *Service) evaluate(ctx context.Context, req *Request, attempt *model.AttendanceAttempt) (*Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	// 1. ジオフェンス判定
	office, err := s.resolveOffice(ctx, req)
	if err != nil {
		return nil, err
	}
	attempt.Office = &office

	// 2. 名簿照会（存在確認・在籍状態）
	staff, err := s.directory.Lookup(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("スタッフ名簿の照会に失敗しました: %w", err)
	}
	if staff == nil {
		return nil, model.NewStaffNotFoundError(req.UserID)
	}
	if !staff.Active {
		return nil, model.NewStaffInactiveError()
	}

	// 3. 勤務地の許可判定
	if !staff.AllowedAt(office) {
		return nil, model.NewLocationNotPermittedError(office)
	}

	// 4. 顔照合
	if err := s.verifyFace(ctx, req, attempt); err != nil {
		return nil, err
	}

	// 5. 勤怠台帳の更新
	return s.applyLedger(ctx, req, office)
}

// validateRequest はリクエストの形式を検証する。
func validateRequest(req *Request) error {
	if strings.TrimSpace(req.UserID) == "" {
		return model.NewInvalidRequestError("ユーザーIDが指定されていません")
	}
	if req.Action != model.ActionClockIn && req.Action != model.ActionClockOut {
		return model.NewInvalidRequestError("打刻種別はclock_inまたはclock_outを指定してください")
	}
	return nil
}

// resolveOffice は現在地から打刻拠点を特定する。
// 位置情報が欠けている場合と範囲外の座標はエリア外とは区別してGEO_UNAVAILABLEを返す。
func (s *Service) resolveOffice(ctx context.Context, req *Request) (string, error) {
	if req.Latitude == nil || req.Longitude == nil {
		return "", model.NewGeoUnavailableError()
	}
	lat, lon := *req.Latitude, *req.Longitude
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return "", model.NewGeoUnavailableError()
	}

	locations, err := s.geo.Locations(ctx)
	if err != nil {
		return "", fmt.Errorf("拠点設定の取得に失敗しました: %w", err)
	}

	office, ok := geo.ResolveOffice(model.GeoPoint{Latitude: lat, Longitude: lon}, locations)
	if !ok {
		return "", model.NewOutsideApprovedAreaError()
	}
	return office, nil
}

// verifyFace は顔画像サンプルを正規化して顔照合APIに送る。
// 類似度は不一致の場合も試行ログ用にattemptへ書き込む。
func (s *Service) verifyFace(ctx context.Context, req *Request, attempt *model.AttendanceAttempt) error {
	sample, err := faceid.NormalizeSample(req.FaceImage, s.maxSampleBytes)
	if err != nil {
		return model.NewInvalidRequestError(err.Error())
	}

	verifyCtx, cancel := context.WithTimeout(ctx, s.faceTimeout)
	defer cancel()

	started := s.now()
	result, err := s.face.Verify(verifyCtx, sample, req.UserID)
	if err != nil {
		return model.NewBiometricUnavailableError()
	}

	if s.recorder != nil {
		s.recorder.RecordFaceVerification(s.now().Sub(started), result.Similarity)
	}
	attempt.Similarity = &result.Similarity

	// 本人以外の顔が最上位候補になった場合も不一致として扱う
	if result.Subject != req.UserID || result.Similarity < s.threshold {
		return model.NewFaceMismatchError()
	}
	return nil
}

// applyLedger は勤怠台帳を更新する。
// 事前の状態確認で遷移可否を判定した上で、実際の書き込みは条件付きに行い、
// 並行する打刻との競合はDB側の制約で直列化する。
func (s *Service) applyLedger(ctx context.Context, req *Request, office string) (*Result, error) {
	now := req.Timestamp
	if now.IsZero() {
		now = s.now()
	}
	workDate := WorkDate(now, s.tz)

	current, err := s.attendance.FindByUserAndDate(ctx, req.UserID, workDate)
	if err != nil {
		return nil, fmt.Errorf("勤怠記録の取得に失敗しました: %w", err)
	}
	if terr := TransitionError(req.Action, StateOf(current)); terr != nil {
		return nil, terr
	}

	switch req.Action {
	case model.ActionClockIn:
		rec := &model.AttendanceRecord{
			ID:              uuid.New().String(),
			UserID:          req.UserID,
			WorkDate:        workDate,
			ClockInTime:     now,
			ClockInLocation: office,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		created, err := s.attendance.CreateClockIn(ctx, rec)
		if err != nil {
			return nil, fmt.Errorf("出勤記録の作成に失敗しました: %w", err)
		}
		if !created {
			return nil, s.conflictError(ctx, req, workDate)
		}
		return &Result{Record: rec, Office: office, Message: "出勤を記録しました"}, nil

	case model.ActionClockOut:
		updated, err := s.attendance.CompleteClockOut(ctx, req.UserID, workDate, now, office)
		if err != nil {
			return nil, fmt.Errorf("退勤記録の更新に失敗しました: %w", err)
		}
		if !updated {
			return nil, s.conflictError(ctx, req, workDate)
		}
		rec, err := s.attendance.FindByUserAndDate(ctx, req.UserID, workDate)
		if err != nil {
			return nil, fmt.Errorf("勤怠記録の取得に失敗しました: %w", err)
		}
		return &Result{Record: rec, Office: office, Message: "退勤を記録しました"}, nil
	}

	return nil, model.NewInvalidRequestError("不明な打刻種別です")
}

// conflictError は条件付き書き込みに敗れた場合の競合エラーを決定する。
// 状態確認から書き込みまでの間に並行する打刻が先行すると起こる。
func (s *Service) conflictError(ctx context.Context, req *Request, workDate string) error {
	current, err := s.attendance.FindByUserAndDate(ctx, req.UserID, workDate)
	if err != nil {
		return fmt.Errorf("勤怠記録の取得に失敗しました: %w", err)
	}
	if terr := TransitionError(req.Action, StateOf(current)); terr != nil {
		return terr
	}
	return fmt.Errorf("勤怠記録の更新が競合しました")
}

// TodayStatus は当日の勤怠状態を返す。
// 記録がない場合もエラーにはせずStateNoRecordを返す。
func (s *Service) TodayStatus(ctx context.Context, userID string) (*Status, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, model.NewInvalidRequestError("ユーザーIDが指定されていません")
	}

	staff, err := s.directory.Lookup(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("スタッフ名簿の照会に失敗しました: %w", err)
	}
	if staff == nil {
		return nil, model.NewStaffNotFoundError(userID)
	}

	workDate := WorkDate(s.now(), s.tz)
	rec, err := s.attendance.FindByUserAndDate(ctx, userID, workDate)
	if err != nil {
		return nil, fmt.Errorf("勤怠記録の取得に失敗しました: %w", err)
	}

	return &Status{
		State:    StateOf(rec),
		WorkDate: workDate,
		Record:   rec,
	}, nil
}

// recordAttempt は打刻試行ログを追記する。
// リクエストがキャンセル済みでも監査ログは残す。記録失敗は打刻自体を失敗させない。
func (s *Service) recordAttempt(ctx context.Context, attempt *model.AttendanceAttempt) {
	if err := s.attempts.Insert(context.WithoutCancel(ctx), attempt); err != nil {
		s.logger.Warn("打刻試行ログの記録に失敗しました",
			slog.String("user_id", attempt.UserID),
			slog.String("error", err.Error()),
		)
	}
}

// resultCode はエラーから試行結果コードを導出する。
func resultCode(err error) string {
	if err == nil {
		return model.AttemptResultSuccess
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return model.ErrCodeInternalError
}

// logOutcome は打刻処理の結果をログに残す。
// 勤怠状態との矛盾はWARN、その他の業務エラーはINFO、内部エラーはERRORで記録する。
func (s *Service) logOutcome(req *Request, attempt *model.AttendanceAttempt, result *Result, err error) {
	if err == nil {
		s.logger.Info(result.Message,
			slog.String("user_id", req.UserID),
			slog.String("office", result.Office),
			slog.String("work_date", result.Record.WorkDate),
		)
		return
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		s.logger.Error("打刻処理に失敗しました",
			slog.String("user_id", req.UserID),
			slog.String("action", string(req.Action)),
			slog.String("error", err.Error()),
		)
		return
	}

	if apiErr.Category == "ledger" {
		s.logger.Warn("勤怠状態と矛盾する打刻を拒否しました",
			slog.String("user_id", req.UserID),
			slog.String("action", string(req.Action)),
			slog.String("code", apiErr.Code),
		)
		return
	}

	s.logger.Info("打刻を拒否しました",
		slog.String("user_id", req.UserID),
		slog.String("action", string(req.Action)),
		slog.String("code", apiErr.Code),
	)
}
