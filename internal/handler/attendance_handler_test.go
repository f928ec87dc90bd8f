package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/dakoku/internal/attendance"
	"github.com/hitoshi/dakoku/internal/model"
)

// mockAttendanceService はAttendanceServiceInterfaceのモック。
type mockAttendanceService struct {
	recordAttendanceFn func(ctx context.Context, req *attendance.Request) (*attendance.Result, error)
	todayStatusFn      func(ctx context.Context, userID string) (*attendance.Status, error)
}

func (m *mockAttendanceService) RecordAttendance(ctx context.Context, req *attendance.Request) (*attendance.Result, error) {
	if m.recordAttendanceFn != nil {
		return m.recordAttendanceFn(ctx, req)
	}
	return nil, errors.New("recordAttendanceFn not set")
}

func (m *mockAttendanceService) TodayStatus(ctx context.Context, userID string) (*attendance.Status, error) {
	if m.todayStatusFn != nil {
		return m.todayStatusFn(ctx, userID)
	}
	return nil, errors.New("todayStatusFn not set")
}

// parseAPIErrorResponse はエラーレスポンスのJSONをmapに変換するヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// sampleOpenRecord は出勤のみ記録済みの勤怠記録を返すヘルパー。
func sampleOpenRecord() *model.AttendanceRecord {
	return &model.AttendanceRecord{
		ID:              "rec-1",
		UserID:          "001",
		WorkDate:        "2026-08-21",
		ClockInTime:     time.Date(2026, 8, 21, 9, 0, 0, 0, time.UTC),
		ClockInLocation: "本社",
	}
}

const validSubmitBody = `{"user_id":"001","action":"clock_in","latitude":9.4,"longitude":-0.85,"accuracy_m":12.5,"image":"aGVsbG8="}`

// --- POST /api/attendance テスト ---

func TestAttendanceHandler_Submit_ClockInSuccess(t *testing.T) {
	svc := &mockAttendanceService{
		recordAttendanceFn: func(ctx context.Context, req *attendance.Request) (*attendance.Result, error) {
			return &attendance.Result{
				Record:  sampleOpenRecord(),
				Office:  "本社",
				Message: "出勤を記録しました",
			}, nil
		},
	}
	h := NewAttendanceHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/attendance", strings.NewReader(validSubmitBody))
	w := httptest.NewRecorder()
	h.Submit(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp submitAttendanceResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Message != "出勤を記録しました" {
		t.Errorf("Message = %q", resp.Message)
	}
	if resp.Office != "本社" {
		t.Errorf("Office = %q, want 本社", resp.Office)
	}
	if resp.Record.UserID != "001" || resp.Record.WorkDate != "2026-08-21" {
		t.Errorf("Record = %+v", resp.Record)
	}
	if resp.Record.ClockInTime != "2026-08-21T09:00:00Z" {
		t.Errorf("ClockInTime = %q", resp.Record.ClockInTime)
	}
	if resp.Record.ClockOutTime != nil {
		t.Errorf("ClockOutTime = %v, want nil", *resp.Record.ClockOutTime)
	}
}

func TestAttendanceHandler_Submit_ClockOutIncludesClockOutFields(t *testing.T) {
	svc := &mockAttendanceService{
		recordAttendanceFn: func(ctx context.Context, req *attendance.Request) (*attendance.Result, error) {
			rec := sampleOpenRecord()
			out := time.Date(2026, 8, 21, 18, 0, 0, 0, time.UTC)
			office := "本社"
			rec.ClockOutTime = &out
			rec.ClockOutLocation = &office
			return &attendance.Result{Record: rec, Office: office, Message: "退勤を記録しました"}, nil
		},
	}
	h := NewAttendanceHandler(svc)

	body := strings.Replace(validSubmitBody, "clock_in", "clock_out", 1)
	req := httptest.NewRequest(http.MethodPost, "/api/attendance", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Submit(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp submitAttendanceResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Record.ClockOutTime == nil || *resp.Record.ClockOutTime != "2026-08-21T18:00:00Z" {
		t.Errorf("ClockOutTime = %v", resp.Record.ClockOutTime)
	}
	if resp.Record.ClockOutLocation == nil || *resp.Record.ClockOutLocation != "本社" {
		t.Errorf("ClockOutLocation = %v", resp.Record.ClockOutLocation)
	}
}

// リクエストボディの各フィールドがサービス層のリクエストに正しく渡ることを検証する。
func TestAttendanceHandler_Submit_MapsRequestFields(t *testing.T) {
	var got *attendance.Request
	svc := &mockAttendanceService{
		recordAttendanceFn: func(ctx context.Context, req *attendance.Request) (*attendance.Result, error) {
			got = req
			return &attendance.Result{Record: sampleOpenRecord(), Office: "本社", Message: "出勤を記録しました"}, nil
		},
	}
	h := NewAttendanceHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/attendance", strings.NewReader(validSubmitBody))
	w := httptest.NewRecorder()
	h.Submit(w, req)

	if got == nil {
		t.Fatal("service was not called")
	}
	if got.UserID != "001" {
		t.Errorf("UserID = %q", got.UserID)
	}
	if got.Action != model.ActionClockIn {
		t.Errorf("Action = %q", got.Action)
	}
	if got.Latitude == nil || *got.Latitude != 9.4 {
		t.Errorf("Latitude = %v", got.Latitude)
	}
	if got.Longitude == nil || *got.Longitude != -0.85 {
		t.Errorf("Longitude = %v", got.Longitude)
	}
	if got.FaceImage != "aGVsbG8=" {
		t.Errorf("FaceImage = %q", got.FaceImage)
	}
	if got.Timestamp.IsZero() {
		t.Error("Timestamp が設定されていない: サーバー受信時刻が入るべき")
	}
}

// 位置情報が取得できなかった端末は座標フィールドを省略する。nilのままサービス層に渡る。
func TestAttendanceHandler_Submit_OmittedCoordinatesArePassedAsNil(t *testing.T) {
	var got *attendance.Request
	svc := &mockAttendanceService{
		recordAttendanceFn: func(ctx context.Context, req *attendance.Request) (*attendance.Result, error) {
			got = req
			return nil, model.NewGeoUnavailableError()
		},
	}
	h := NewAttendanceHandler(svc)

	body := `{"user_id":"001","action":"clock_in","image":"aGVsbG8="}`
	req := httptest.NewRequest(http.MethodPost, "/api/attendance", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Submit(w, req)

	if got.Latitude != nil || got.Longitude != nil {
		t.Errorf("coordinates = (%v, %v), want both nil", got.Latitude, got.Longitude)
	}
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestAttendanceHandler_Submit_InvalidJSON_Returns400(t *testing.T) {
	h := NewAttendanceHandler(&mockAttendanceService{})

	req := httptest.NewRequest(http.MethodPost, "/api/attendance", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	h.Submit(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	resp := parseAPIErrorResponse(t, w)
	if resp["code"] != model.ErrCodeInvalidRequest {
		t.Errorf("code = %q, want %q", resp["code"], model.ErrCodeInvalidRequest)
	}
}

// サービス層の各エラーコードがHTTPステータスに正しくマッピングされることを検証する。
func TestAttendanceHandler_Submit_ServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        *model.APIError
		wantStatus int
	}{
		{"承認エリア圏外", model.NewOutsideApprovedAreaError(), http.StatusForbidden},
		{"位置情報なし", model.NewGeoUnavailableError(), http.StatusBadRequest},
		{"名簿に不在", model.NewStaffNotFoundError("999"), http.StatusNotFound},
		{"無効化済みスタッフ", model.NewStaffInactiveError(), http.StatusForbidden},
		{"拠点の許可なし", model.NewLocationNotPermittedError("本社"), http.StatusForbidden},
		{"顔照合サービス停止", model.NewBiometricUnavailableError(), http.StatusServiceUnavailable},
		{"顔不一致", model.NewFaceMismatchError(), http.StatusForbidden},
		{"出勤済み", model.NewAlreadyClockedInError(), http.StatusConflict},
		{"退勤済み", model.NewAlreadyClockedOutError(), http.StatusConflict},
		{"出勤記録なし", model.NewNoClockInFoundError(), http.StatusConflict},
		{"不正リクエスト", model.NewInvalidRequestError("画像の形式が不正です"), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAttendanceService{
				recordAttendanceFn: func(ctx context.Context, req *attendance.Request) (*attendance.Result, error) {
					return nil, tt.err
				},
			}
			h := NewAttendanceHandler(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/attendance", strings.NewReader(validSubmitBody))
			w := httptest.NewRecorder()
			h.Submit(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			resp := parseAPIErrorResponse(t, w)
			if resp["code"] != tt.err.Code {
				t.Errorf("code = %q, want %q", resp["code"], tt.err.Code)
			}
			if resp["message"] == "" || resp["category"] == "" || resp["action"] == "" {
				t.Errorf("error response has empty fields: %+v", resp)
			}
		})
	}
}

func TestAttendanceHandler_Submit_UnexpectedError_Returns500(t *testing.T) {
	svc := &mockAttendanceService{
		recordAttendanceFn: func(ctx context.Context, req *attendance.Request) (*attendance.Result, error) {
			return nil, errors.New("connection reset by peer")
		},
	}
	h := NewAttendanceHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/attendance", strings.NewReader(validSubmitBody))
	w := httptest.NewRecorder()
	h.Submit(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	resp := parseAPIErrorResponse(t, w)
	if resp["code"] != model.ErrCodeInternalError {
		t.Errorf("code = %q, want %q", resp["code"], model.ErrCodeInternalError)
	}
}

// --- GET /api/attendance/today テスト ---

func TestAttendanceHandler_TodayStatus_ClockedIn(t *testing.T) {
	svc := &mockAttendanceService{
		todayStatusFn: func(ctx context.Context, userID string) (*attendance.Status, error) {
			if userID != "001" {
				t.Errorf("userID = %q, want 001", userID)
			}
			return &attendance.Status{
				State:    attendance.StateClockedIn,
				WorkDate: "2026-08-21",
				Record:   sampleOpenRecord(),
			}, nil
		},
	}
	h := NewAttendanceHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/attendance/today?user_id=001", nil)
	w := httptest.NewRecorder()
	h.TodayStatus(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp todayStatusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.State != "clocked_in" {
		t.Errorf("State = %q, want clocked_in", resp.State)
	}
	if resp.WorkDate != "2026-08-21" {
		t.Errorf("WorkDate = %q", resp.WorkDate)
	}
	if resp.Record == nil || resp.Record.ID != "rec-1" {
		t.Errorf("Record = %+v", resp.Record)
	}
}

// 未打刻の場合はrecordフィールド自体を省略する。
func TestAttendanceHandler_TodayStatus_NoRecord_OmitsRecord(t *testing.T) {
	svc := &mockAttendanceService{
		todayStatusFn: func(ctx context.Context, userID string) (*attendance.Status, error) {
			return &attendance.Status{State: attendance.StateNoRecord, WorkDate: "2026-08-21"}, nil
		},
	}
	h := NewAttendanceHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/attendance/today?user_id=001", nil)
	w := httptest.NewRecorder()
	h.TodayStatus(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var raw map[string]any
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if raw["state"] != "no_record" {
		t.Errorf("state = %v, want no_record", raw["state"])
	}
	if _, ok := raw["record"]; ok {
		t.Error("record should be omitted when no record exists")
	}
}

func TestAttendanceHandler_TodayStatus_MissingUserID_Returns400(t *testing.T) {
	h := NewAttendanceHandler(&mockAttendanceService{})

	req := httptest.NewRequest(http.MethodGet, "/api/attendance/today", nil)
	w := httptest.NewRecorder()
	h.TodayStatus(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	resp := parseAPIErrorResponse(t, w)
	if resp["code"] != model.ErrCodeInvalidRequest {
		t.Errorf("code = %q, want %q", resp["code"], model.ErrCodeInvalidRequest)
	}
}

func TestAttendanceHandler_TodayStatus_UnknownStaff_Returns404(t *testing.T) {
	svc := &mockAttendanceService{
		todayStatusFn: func(ctx context.Context, userID string) (*attendance.Status, error) {
			return nil, model.NewStaffNotFoundError(userID)
		},
	}
	h := NewAttendanceHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/attendance/today?user_id=999", nil)
	w := httptest.NewRecorder()
	h.TodayStatus(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	resp := parseAPIErrorResponse(t, w)
	if resp["code"] != model.ErrCodeStaffNotFound {
		t.Errorf("code = %q, want %q", resp["code"], model.ErrCodeStaffNotFound)
	}
}
