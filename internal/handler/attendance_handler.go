// Package handler はHTTP APIハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/dakoku/internal/attendance"
	"github.com/hitoshi/dakoku/internal/model"
)

// AttendanceServiceInterface は打刻ハンドラーが必要とするサービスのインターフェース。
type AttendanceServiceInterface interface {
	// RecordAttendance は打刻ワークフローを実行し、成功時に勤怠記録を返す。
	RecordAttendance(ctx context.Context, req *attendance.Request) (*attendance.Result, error)
	// TodayStatus は当日の勤怠状態を返す。
	TodayStatus(ctx context.Context, userID string) (*attendance.Status, error)
}

// AttendanceHandler は打刻APIのハンドラー。
type AttendanceHandler struct {
	service AttendanceServiceInterface
}

// NewAttendanceHandler はAttendanceHandlerの新しいインスタンスを生成する。
func NewAttendanceHandler(service AttendanceServiceInterface) *AttendanceHandler {
	return &AttendanceHandler{service: service}
}

// submitAttendanceRequest は打刻リクエストのボディ。
// 緯度・経度は端末で位置情報が取得できなかった場合に省略される。
type submitAttendanceRequest struct {
	UserID    string   `json:"user_id"`
	Action    string   `json:"action"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	AccuracyM *float64 `json:"accuracy_m"`
	Image     string   `json:"image"`
}

// attendanceRecordResponse は勤怠記録のAPI表現。
type attendanceRecordResponse struct {
	ID               string  `json:"id"`
	UserID           string  `json:"user_id"`
	WorkDate         string  `json:"work_date"`
	ClockInTime      string  `json:"clock_in_time"`
	ClockInLocation  string  `json:"clock_in_location"`
	ClockOutTime     *string `json:"clock_out_time,omitempty"`
	ClockOutLocation *string `json:"clock_out_location,omitempty"`
}

// submitAttendanceResponse は打刻成功時のレスポンス。
type submitAttendanceResponse struct {
	Message string                   `json:"message"`
	Office  string                   `json:"office"`
	Record  attendanceRecordResponse `json:"record"`
}

// todayStatusResponse は当日状態照会のレスポンス。
type todayStatusResponse struct {
	State    string                    `json:"state"`
	WorkDate string                    `json:"work_date"`
	Record   *attendanceRecordResponse `json:"record,omitempty"`
}

// apiErrorResponse はエラーレスポンスの統一フォーマット。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// Submit は打刻リクエストを処理する。
// POST /api/attendance
func (h *AttendanceHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitAttendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	// 打刻時刻は端末の時計ではなくサーバーの受信時刻を採用する
	result, err := h.service.RecordAttendance(r.Context(), &attendance.Request{
		UserID:    req.UserID,
		Action:    model.AttendanceAction(req.Action),
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		FaceImage: req.Image,
		Timestamp: time.Now(),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(submitAttendanceResponse{
		Message: result.Message,
		Office:  result.Office,
		Record:  toAttendanceRecordResponse(result.Record),
	})
}

// TodayStatus は当日の勤怠状態を返す。キオスクの画面初期化に使われる。
// GET /api/attendance/today?user_id={user_id}
func (h *AttendanceHandler) TodayStatus(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("user_idが指定されていません"))
		return
	}

	status, err := h.service.TodayStatus(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := todayStatusResponse{
		State:    string(status.State),
		WorkDate: status.WorkDate,
	}
	if status.Record != nil {
		rec := toAttendanceRecordResponse(status.Record)
		resp.Record = &rec
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// SetupAttendanceRoutes は打刻関連のルートをルーターに登録する。
// submitMiddlewares はPOST /attendanceにのみ適用される(打刻用の厳しいレート制限など)。
func SetupAttendanceRoutes(r chi.Router, handler *AttendanceHandler, submitMiddlewares ...func(http.Handler) http.Handler) {
	r.With(submitMiddlewares...).Post("/attendance", handler.Submit)
	r.Get("/attendance/today", handler.TodayStatus)
}

func toAttendanceRecordResponse(rec *model.AttendanceRecord) attendanceRecordResponse {
	resp := attendanceRecordResponse{
		ID:              rec.ID,
		UserID:          rec.UserID,
		WorkDate:        rec.WorkDate,
		ClockInTime:     rec.ClockInTime.Format(time.RFC3339),
		ClockInLocation: rec.ClockInLocation,
	}
	if rec.ClockOutTime != nil {
		t := rec.ClockOutTime.Format(time.RFC3339)
		resp.ClockOutTime = &t
	}
	if rec.ClockOutLocation != nil {
		resp.ClockOutLocation = rec.ClockOutLocation
	}
	return resp
}

// writeAPIErrorResponse は統一フォーマットのエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeGeoUnavailable, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeOutsideApprovedArea, model.ErrCodeStaffInactive,
		model.ErrCodeLocationNotPermitted, model.ErrCodeFaceMismatch:
		return http.StatusForbidden
	case model.ErrCodeStaffNotFound:
		return http.StatusNotFound
	case model.ErrCodeAlreadyClockedIn, model.ErrCodeAlreadyClockedOut, model.ErrCodeNoClockInFound:
		return http.StatusConflict
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeBiometricUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
