package export

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/toricodesthings/transcript-import-service/internal/session"
	"github.com/toricodesthings/transcript-import-service/internal/stats"
)

const sheetName = "Transcript"

var ErrGenerate = errors.New("failed to generate spreadsheet")

// Workbook renders s as a single-sheet xlsx: a title row, then for each term
// a header row (title, GPA, recognition) followed by its courses, and a CGPA
// footer. It also returns a suggested file name.
func Workbook(s session.Session) (*bytes.Buffer, string, error) {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrGenerate, err)
	}
	f.SetActiveSheet(idx)
	_ = f.DeleteSheet("Sheet1")

	_ = f.SetColWidth(sheetName, "A", "A", 28)
	_ = f.SetColWidth(sheetName, "B", "C", 10)
	_ = f.SetColWidth(sheetName, "D", "D", 28)

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 13},
	})
	termStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
	})
	gradeStyle, _ := f.NewStyle(&excelize.Style{NumFmt: 2}) // 0.00

	_ = f.SetCellValue(sheetName, "A1", "Transcript "+s.ID)
	_ = f.MergeCell(sheetName, "A1", "D1")
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	row := 3
	for _, t := range s.Terms {
		_ = f.SetCellValue(sheetName, cell("A", row), t.Title)
		_ = f.SetCellValue(sheetName, cell("B", row), "GPA")
		_ = f.SetCellValue(sheetName, cell("C", row), t.GPA)
		_ = f.SetCellValue(sheetName, cell("D", row), t.Recognition)
		_ = f.SetCellStyle(sheetName, cell("A", row), cell("D", row), termStyle)
		row++

		_ = f.SetCellValue(sheetName, cell("A", row), "Course")
		_ = f.SetCellValue(sheetName, cell("B", row), "Units")
		_ = f.SetCellValue(sheetName, cell("C", row), "Grade")
		row++

		for _, c := range t.Courses {
			_ = f.SetCellValue(sheetName, cell("A", row), c.Code)
			_ = f.SetCellValue(sheetName, cell("B", row), c.Units)
			_ = f.SetCellValue(sheetName, cell("C", row), float64(c.Grade))
			_ = f.SetCellStyle(sheetName, cell("C", row), cell("C", row), gradeStyle)
			row++
		}
		row++
	}

	cgpa, units := stats.Cumulative(s.Terms)
	_ = f.SetCellValue(sheetName, cell("A", row), "CGPA")
	_ = f.SetCellValue(sheetName, cell("B", row), units)
	_ = f.SetCellValue(sheetName, cell("C", row), cgpa)
	_ = f.SetCellStyle(sheetName, cell("A", row), cell("C", row), titleStyle)

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrGenerate, err)
	}
	return buf, fmt.Sprintf("transcript_%s.xlsx", s.ID), nil
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
