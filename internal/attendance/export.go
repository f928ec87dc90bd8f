package attendance

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// DaySheetRow は日次勤怠表の1行。未退勤の場合は退勤欄がnilになる。
type DaySheetRow struct {
	UserID           string
	Name             string
	ClockInTime      time.Time
	ClockInLocation  string
	ClockOutTime     *time.Time
	ClockOutLocation *string
}

// daySheetHeader は日次勤怠表のヘッダー行。
var daySheetHeader = []string{"ユーザーID", "氏名", "出勤時刻", "出勤場所", "退勤時刻", "退勤場所"}

const exportTimeFormat = "15:04:05"

// DaySheet は指定勤務日の全勤怠記録を出勤時刻順に返す。
// スタッフ名は名簿から補完し、名簿にないユーザーは氏名を空欄にする。
func (s *Service) DaySheet(ctx context.Context, workDate string) ([]DaySheetRow, error) {
	records, err := s.attendance.ListByDate(ctx, workDate)
	if err != nil {
		return nil, fmt.Errorf("勤怠記録の取得に失敗しました: %w", err)
	}

	rows := make([]DaySheetRow, 0, len(records))
	for _, rec := range records {
		name := ""
		staff, err := s.directory.Lookup(ctx, rec.UserID)
		if err != nil {
			return nil, fmt.Errorf("スタッフ名簿の照会に失敗しました: %w", err)
		}
		if staff != nil {
			name = staff.Name
		}

		rows = append(rows, DaySheetRow{
			UserID:           rec.UserID,
			Name:             name,
			ClockInTime:      rec.ClockInTime,
			ClockInLocation:  rec.ClockInLocation,
			ClockOutTime:     rec.ClockOutTime,
			ClockOutLocation: rec.ClockOutLocation,
		})
	}
	return rows, nil
}

// BuildDaySheetCSV は日次勤怠表をShift_JISエンコードのCSVとして生成する。
// Windowsの「ANSI（CP932）」相当で出力し、Excelでそのまま開ける。
func BuildDaySheetCSV(rows []DaySheetRow, tz *time.Location) ([]byte, error) {
	var b bytes.Buffer
	enc := japanese.ShiftJIS.NewEncoder()
	w := csv.NewWriter(transform.NewWriter(&b, enc))

	if err := w.Write(daySheetHeader); err != nil {
		return nil, fmt.Errorf("CSVヘッダーの書き込みに失敗しました: %w", err)
	}
	for _, r := range rows {
		record := []string{
			r.UserID,
			r.Name,
			r.ClockInTime.In(tz).Format(exportTimeFormat),
			r.ClockInLocation,
			"",
			"",
		}
		if r.ClockOutTime != nil {
			record[4] = r.ClockOutTime.In(tz).Format(exportTimeFormat)
		}
		if r.ClockOutLocation != nil {
			record[5] = *r.ClockOutLocation
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("CSV行の書き込みに失敗しました: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("CSVの出力に失敗しました: %w", err)
	}
	return b.Bytes(), nil
}

// BuildDaySheetXLSX は日次勤怠表をxlsxとして生成する。シート名は勤務日になる。
func BuildDaySheetXLSX(workDate string, rows []DaySheetRow, tz *time.Location) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := workDate
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("シート名の設定に失敗しました: %w", err)
	}

	for col, h := range daySheetHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("セル参照の生成に失敗しました: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, fmt.Errorf("ヘッダーの書き込みに失敗しました: %w", err)
		}
	}

	for i, r := range rows {
		values := []any{
			r.UserID,
			r.Name,
			r.ClockInTime.In(tz).Format(exportTimeFormat),
			r.ClockInLocation,
			"",
			"",
		}
		if r.ClockOutTime != nil {
			values[4] = r.ClockOutTime.In(tz).Format(exportTimeFormat)
		}
		if r.ClockOutLocation != nil {
			values[5] = *r.ClockOutLocation
		}

		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, fmt.Errorf("セル参照の生成に失敗しました: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, fmt.Errorf("セルの書き込みに失敗しました: %w", err)
			}
		}
	}

	if err := f.SetColWidth(sheet, "A", "F", 16); err != nil {
		return nil, fmt.Errorf("列幅の設定に失敗しました: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsxの出力に失敗しました: %w", err)
	}
	return buf.Bytes(), nil
}
