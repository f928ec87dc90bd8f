package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/dakoku/internal/model"
)

// StaffDirectoryInterface はスタッフハンドラーが必要とする名簿のインターフェース。
type StaffDirectoryInterface interface {
	// Lookup はuserIDに対応するスタッフを返す。見つからない場合は(nil, nil)。
	Lookup(ctx context.Context, userID string) (*model.StaffMember, error)
}

// StaffHandler はスタッフ照会APIのハンドラー。
// キオスクがID入力直後に氏名表示と登録状態の事前チェックに使う。
type StaffHandler struct {
	directory StaffDirectoryInterface
}

// NewStaffHandler はStaffHandlerの新しいインスタンスを生成する。
func NewStaffHandler(directory StaffDirectoryInterface) *StaffHandler {
	return &StaffHandler{directory: directory}
}

// staffResponse はスタッフ情報のAPI表現。
// 許可拠点リストは判定の内部情報なので返さない。
type staffResponse struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Active   bool   `json:"active"`
	Enrolled bool   `json:"enrolled"`
}

// GetStaff はスタッフ情報を返す。
// GET /api/staff/{user_id}
func (h *StaffHandler) GetStaff(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	staff, err := h.directory.Lookup(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if staff == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewStaffNotFoundError(userID))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(staffResponse{
		UserID:   staff.UserID,
		Name:     staff.Name,
		Active:   staff.Active,
		Enrolled: staff.FaceEnrolledAt != nil,
	})
}

// SetupStaffRoutes はスタッフ関連のルートをルーターに登録する。
func SetupStaffRoutes(r chi.Router, handler *StaffHandler) {
	r.Get("/staff/{user_id}", handler.GetStaff)
}
