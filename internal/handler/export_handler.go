package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/dakoku/internal/attendance"
	"github.com/hitoshi/dakoku/internal/model"
)

// ExportServiceInterface はエクスポートハンドラーが必要とするサービスのインターフェース。
type ExportServiceInterface interface {
	DaySheet(ctx context.Context, workDate string) ([]attendance.DaySheetRow, error)
}

// ExportHandler は日次勤怠表ダウンロードAPIのハンドラー。
// 管理者が給与計算用にExcel/CSVを取得する。
type ExportHandler struct {
	service ExportServiceInterface
	tz      *time.Location
}

// NewExportHandler はExportHandlerの新しいインスタンスを生成する。
// tzは出力する時刻列のタイムゾーン(勤務日の区切りと同じ事業所タイムゾーン)。
func NewExportHandler(service ExportServiceInterface, tz *time.Location) *ExportHandler {
	return &ExportHandler{service: service, tz: tz}
}

const workDateFormat = "2006-01-02"

// Export は指定勤務日の勤怠表をファイルとして返す。
// formatはxlsx(省略時)またはcsv。CSVはExcelでの文字化けを避けるためShift_JISで出力する。
// GET /api/attendance/export?date={YYYY-MM-DD}&format={xlsx|csv}
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("dateが指定されていません"))
		return
	}
	if _, err := time.Parse(workDateFormat, date); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("dateはYYYY-MM-DD形式で指定してください"))
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "xlsx"
	}
	if format != "xlsx" && format != "csv" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("formatはxlsxまたはcsvを指定してください"))
		return
	}

	rows, err := h.service.DaySheet(r.Context(), date)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	switch format {
	case "csv":
		data, err := attendance.BuildDaySheetCSV(rows, h.tz)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=Shift_JIS")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="attendance-%s.csv"`, date))
		w.Write(data)
	default:
		data, err := attendance.BuildDaySheetXLSX(date, rows, h.tz)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="attendance-%s.xlsx"`, date))
		w.Write(data)
	}
}

// SetupExportRoutes はエクスポート関連のルートをルーターに登録する。
func SetupExportRoutes(r chi.Router, handler *ExportHandler) {
	r.Get("/attendance/export", handler.Export)
}
