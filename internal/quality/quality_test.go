package quality

import (
	"strings"
	"testing"
)

const goodReport = `AY 2023-2024 Term 1
CSC101 Intro to Computing 3 4.0
MTH101 Calculus 1 3 3.5
ENG101 Purposive Communication 3 3.0
Term GPA: 3.50`

func TestScoreGoodReport(t *testing.T) {
	d := Score(goodReport, 2)
	if d.NeedsFallback {
		t.Fatalf("good report flagged for fallback: %+v", d)
	}
	if d.RowCount != 4 {
		t.Fatalf("RowCount = %d, want 4", d.RowCount)
	}
	if d.Quality < 0.9 {
		t.Fatalf("Quality = %v", d.Quality)
	}
}

func TestScoreEmpty(t *testing.T) {
	d := Score("  \n\n ", 2)
	if !d.NeedsFallback || d.Quality != 0 || d.Reasons[0] != "empty_text" {
		t.Fatalf("unexpected decision %+v", d)
	}
}

func TestScoreNoiseNeedsFallback(t *testing.T) {
	d := Score("l I | ; . ,\n~~~~~~~\nab", 2)
	if !d.NeedsFallback {
		t.Fatalf("noise accepted: %+v", d)
	}
	if !contains(d.Reasons, "no_term_marker") || !contains(d.Reasons, "few_course_rows") {
		t.Fatalf("reasons = %v", d.Reasons)
	}
}

func TestScoreMissingMarkerOnly(t *testing.T) {
	text := strings.ReplaceAll(goodReport, "Term GPA: 3.50", "")
	d := Score(text, 2)
	if d.NeedsFallback {
		t.Fatalf("report without marker should still pass: %+v", d)
	}
	if !contains(d.Reasons, "no_term_marker") {
		t.Fatalf("reasons = %v", d.Reasons)
	}
}

func TestCountWords(t *testing.T) {
	if CountWords("  a b\tc\n") != 3 || CountWords("") != 0 {
		t.Fatal("CountWords mismatch")
	}
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
