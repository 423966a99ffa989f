package export

import (
	"bytes"
	"strconv"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/toricodesthings/transcript-import-service/internal/session"
	"github.com/toricodesthings/transcript-import-service/internal/transcript"
	"github.com/toricodesthings/transcript-import-service/internal/types"
)

func TestWorkbookLayout(t *testing.T) {
	s := session.Session{ID: "abc", Terms: []types.Term{
		transcript.NewTerm(1, "AY 2023-2024, Term 1", []types.Course{
			{ID: 1, Code: "CSC101", Units: 3, Grade: 4.0},
			{ID: 2, Code: "MTH101", Units: 3, Grade: 3.5},
		}),
		transcript.NewTerm(2, "AY 2023-2024, Term 2", []types.Course{
			{ID: 1, Code: "ENG101", Units: 3, Grade: 3.0},
		}),
	}}

	buf, name, err := Workbook(s)
	if err != nil {
		t.Fatalf("Workbook() error = %v", err)
	}
	if name != "transcript_abc.xlsx" {
		t.Fatalf("name = %q", name)
	}

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	if sheets := f.GetSheetList(); len(sheets) != 1 || sheets[0] != sheetName {
		t.Fatalf("sheets = %v", sheets)
	}

	checks := map[string]string{
		"A1":  "Transcript abc",
		"A3":  "AY 2023-2024, Term 1",
		"A4":  "Course",
		"A5":  "CSC101",
		"B5":  "3",
		"A6":  "MTH101",
		"A8":  "AY 2023-2024, Term 2",
		"A10": "ENG101",
		"A12": "CGPA",
		"B12": "9",
	}
	for ref, want := range checks {
		got, err := f.GetCellValue(sheetName, ref)
		if err != nil {
			t.Fatalf("GetCellValue(%s) error = %v", ref, err)
		}
		if got != want {
			t.Errorf("%s = %q, want %q", ref, got, want)
		}
	}

	raw, _ := f.GetCellValue(sheetName, "C12", excelize.Options{RawCellValue: true})
	cgpa, err := strconv.ParseFloat(raw, 64)
	if err != nil || cgpa < 3.49 || cgpa > 3.51 {
		t.Fatalf("CGPA cell = %q", raw)
	}
}

func TestWorkbookEmptySession(t *testing.T) {
	buf, _, err := Workbook(session.Session{ID: "empty"})
	if err != nil || buf.Len() == 0 {
		t.Fatalf("Workbook() = %d bytes, %v", buf.Len(), err)
	}
}
