// Package export renders attendance summaries as spreadsheets.
package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"qrattend/internal/attendance"
)

const sheetName = "Attendance"

// ContentType is the MIME type of the generated workbooks.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// SubjectWorkbook writes one row per student with attended, missed and percentage columns.
func SubjectWorkbook(sum attendance.SubjectSummary) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	f.SetColWidth(sheetName, "A", "A", 28)
	f.SetColWidth(sheetName, "B", "D", 12)
	f.SetColWidth(sheetName, "E", "E", 14)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	f.SetCellValue(sheetName, "A1", fmt.Sprintf("%s (%s)", sum.SubjectName, sum.ClassName))
	f.SetCellValue(sheetName, "A2", "Total lectures")
	f.SetCellValue(sheetName, "B2", sum.TotalLectures)
	if sum.Average != nil {
		f.SetCellValue(sheetName, "A3", "Class average %")
		f.SetCellValue(sheetName, "B3", *sum.Average)
	}

	const headerRow = 5
	for i, h := range []string{"Student", "Attended", "Missed", "Total", "Percentage"} {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetCellValue(sheetName, cell(col, headerRow), h)
	}
	f.SetCellStyle(sheetName, cell("A", headerRow), cell("E", headerRow), headerStyle)

	for i, st := range sum.Students {
		row := headerRow + 1 + i
		f.SetCellValue(sheetName, cell("A", row), st.StudentName)
		f.SetCellValue(sheetName, cell("B", row), st.Attended)
		f.SetCellValue(sheetName, cell("C", row), st.Missed)
		f.SetCellValue(sheetName, cell("D", row), sum.TotalLectures)
		f.SetCellValue(sheetName, cell("E", row), st.Percentage)
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf, nil
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
