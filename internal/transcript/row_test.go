package transcript

import (
	"testing"

	"github.com/toricodesthings/transcript-import-service/internal/types"
)

func TestParseRowExample(t *testing.T) {
	p := NewParser(nil)
	got, ok := p.ParseRow("CSC101 Intro to Computing 3 4.0", 1)
	if !ok {
		t.Fatalf("expected a course")
	}
	want := types.Course{ID: 1, Code: "CSC101", Units: 3, Grade: 4.0}
	if got != want {
		t.Fatalf("ParseRow() = %+v, want %+v", got, want)
	}
}

func TestParseRowAssignsRegardlessOfOrder(t *testing.T) {
	p := NewParser(nil)
	cases := []string{
		"MTH201 Calculus 5 3.5",
		"MTH201 Calculus 3.5 5",
		"- MTH201 Calculus 3.5 5",
		"• MTH201: Calculus 5 3.5",
	}
	for _, line := range cases {
		got, ok := p.ParseRow(line, 7)
		if !ok {
			t.Errorf("%q: expected a course", line)
			continue
		}
		if got.Code != "MTH201" || got.Units != 5 || got.Grade != 3.5 || got.ID != 7 {
			t.Errorf("%q: got %+v", line, got)
		}
	}
}

func TestParseRowUnitFirstWithIntegerGrade(t *testing.T) {
	p := NewParser(nil)
	got, ok := p.ParseRow("ENG102 Writing 3 2", 1)
	if ok {
		t.Fatalf("both readings fit, expected skip, got %+v", got)
	}

	got, ok = p.ParseRow("ENG102 Writing 1 4.0", 1)
	if !ok || got.Units != 1 || got.Grade != 4.0 {
		t.Fatalf("ParseRow() = %+v, %v; want units 1 grade 4.0", got, ok)
	}
}

func TestParseRowRejectsAmbiguousOrInvalid(t *testing.T) {
	p := NewParser(nil)
	cases := map[string]string{
		"both grades":       "CSC101 Intro 3.0 4.0",
		"both integers":     "CSC101 Intro 3 4",
		"neither grade":     "CSC101 Intro 7 9",
		"off-grid decimal":  "CSC101 Intro 3 3.7",
		"single number":     "CSC101 Intro 4.0",
		"no numbers":        "Intro to Computing",
		"zero units":        "CSC199 Seminar 0 4.0",
		"term summary":      "Term GPA: 3.50 18",
		"cumulative":        "Cumulative GPA: 3.25 72",
		"header only":       "AY 2022-2023 Term 1",
		"no code":           "3 4.0",
		"lowercase summary": "term gpa: 3 4.0",
	}
	for name, line := range cases {
		if got, ok := p.ParseRow(line, 1); ok {
			t.Errorf("%s: %q parsed as %+v, want skip", name, line, got)
		}
	}
}

func TestParseRowNonAcademicMarkers(t *testing.T) {
	p := NewParser(nil)
	for _, line := range []string{
		"PEFIT P 2",
		"LCFILIA NGS 3",
		"THSST1 n/a 1 3",
		"SEMINAR (P) 1 4.0",
	} {
		if got, ok := p.ParseRow(line, 1); ok {
			t.Errorf("%q parsed as %+v, want skip", line, got)
		}
	}

	// "P" inside a word is not a marker.
	if _, ok := p.ParseRow("PHYS101 Physics 3 3.5", 1); !ok {
		t.Errorf("PHYS101 row should parse")
	}
}

func TestParseRowExcludedPrefixes(t *testing.T) {
	p := NewParser(nil)
	if got, ok := p.ParseRow("NSTP1 1.0 3", 1); ok {
		t.Fatalf("NSTP row parsed as %+v, want skip", got)
	}
	if got, ok := p.ParseRow("rotc2 Military Science 2 3.0", 1); ok {
		t.Fatalf("ROTC row parsed as %+v, want skip", got)
	}

	custom := NewParser([]string{" lab "})
	if _, ok := custom.ParseRow("LABCHEM Lab 1 3.5", 1); ok {
		t.Fatalf("custom prefix not applied")
	}
	if _, ok := custom.ParseRow("NSTP1 1.0 3", 1); !ok {
		t.Fatalf("custom prefixes should replace the defaults")
	}
}

func TestParseRowStripsHeaderPrefix(t *testing.T) {
	p := NewParser(nil)
	got, ok := p.ParseRow("AY 2023-2024 Term 2 ACCTG1 Accounting 3 2.5", 1)
	if !ok {
		t.Fatalf("expected a course")
	}
	if got.Code != "ACCTG1" || got.Units != 3 || got.Grade != 2.5 {
		t.Fatalf("got %+v", got)
	}
}

func TestParseRowCodeFallback(t *testing.T) {
	p := NewParser(nil)
	got, ok := p.ParseRow("Intro to Computing 3 4.0", 1)
	if !ok || got.Code != "Intro" {
		t.Fatalf("ParseRow() = %+v, %v; want fallback code Intro", got, ok)
	}

	got, ok = p.ParseRow("GE-ETHICS Ethics 3 3.0", 1)
	if !ok || got.Code != "GE-ETHICS" {
		t.Fatalf("ParseRow() = %+v, %v; want hyphenated code", got, ok)
	}

	cases := map[string]string{
		"CSc101 Intro 3 4.0":               "CSc101",
		"ENGLcom Communication 3 3.5":      "ENGLcom",
		"GE-Math Mathematics 3 3.0":        "GE-Math",
		"CSC101: Intro to Computing 3 4.0": "CSC101",
	}
	for line, want := range cases {
		got, ok := p.ParseRow(line, 1)
		if !ok || got.Code != want {
			t.Errorf("ParseRow(%q) = %+v, %v; want code %q", line, got, ok, want)
		}
	}
}
