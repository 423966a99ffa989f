package transcript

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

const sampleReport = `
De La Salle University
Student Grade Report

AY 2022-2023 Term 2
CSC101 Intro to Computing 3 4.0
MTH101 College Algebra 3 3.5
NSTP1 1.0 3
PEFIT P 2
Term GPA: 3.750

AY 2023-2024 Term 1
CSC102 Data Structures 3 3.0
ENG101 Purposive Communication 3.5 3
LCFILIA NGS 3
Term GPA: 3.250
Cumulative GPA: 3.500
`

func TestParseSampleReport(t *testing.T) {
	terms, err := NewParser(nil).Parse(sampleReport)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(terms) != 2 {
		t.Fatalf("expected 2 terms, got %d: %+v", len(terms), terms)
	}

	first := terms[0]
	if first.Title != "AY 2022-2023, Term 2" {
		t.Fatalf("unexpected title: %q", first.Title)
	}
	if len(first.Courses) != 2 {
		t.Fatalf("expected 2 courses, got %+v", first.Courses)
	}
	if first.Courses[0].ID != 1 || first.Courses[1].ID != 2 {
		t.Fatalf("course ids not sequential: %+v", first.Courses)
	}
	if first.Courses[1].Code != "MTH101" {
		t.Fatalf("unexpected second course: %+v", first.Courses[1])
	}
	if math.Abs(first.GPA-3.75) > 1e-9 {
		t.Fatalf("GPA = %v, want 3.75", first.GPA)
	}

	second := terms[1]
	if second.Title != "AY 2023-2024, Term 1" || len(second.Courses) != 2 {
		t.Fatalf("unexpected second term: %+v", second)
	}
	if c := second.Courses[1]; c.Code != "ENG101" || c.Units != 3 || c.Grade != 3.5 {
		t.Fatalf("unexpected ENG101 course: %+v", c)
	}
	for _, term := range terms {
		if term.ID != 0 {
			t.Fatalf("parser must leave ids for the merger, got %d", term.ID)
		}
	}
}

func TestParseIsDeterministic(t *testing.T) {
	p := NewParser(nil)
	a, errA := p.Parse(sampleReport)
	b, errB := p.Parse(sampleReport)
	if errA != nil || errB != nil {
		t.Fatalf("Parse() errors = %v, %v", errA, errB)
	}
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if string(ja) != string(jb) {
		t.Fatalf("parses differ:\n%s\n%s", ja, jb)
	}
}

func TestParseNoSections(t *testing.T) {
	_, err := NewParser(nil).Parse("CSC101 Intro 3 4.0\nMTH101 Algebra 3 3.5")
	if !errors.Is(err, ErrNoSectionsDetected) {
		t.Fatalf("expected ErrNoSectionsDetected, got %v", err)
	}
}

func TestParseNoCourses(t *testing.T) {
	_, err := NewParser(nil).Parse("PEFIT P 2\nNSTP1 1.0 3\nTerm GPA: 0.0")
	if !errors.Is(err, ErrNoCoursesParsed) {
		t.Fatalf("expected ErrNoCoursesParsed, got %v", err)
	}
}

func TestBuildTermPlaceholderTitle(t *testing.T) {
	term := NewParser(nil).BuildTerm(Section{"CSC101 Intro 3 4.0", "Term GPA: 4.0"}, 3)
	if term.Title != "Imported Term 3" {
		t.Fatalf("Title = %q, want placeholder", term.Title)
	}
	if len(term.Courses) != 1 || term.GPA != 4.0 {
		t.Fatalf("unexpected term: %+v", term)
	}
}

func TestNewTermCopiesCourses(t *testing.T) {
	term := NewParser(nil).BuildTerm(Section{"CSC101 Intro 3 4.0"}, 1)
	again := NewTerm(5, term.Title, term.Courses)
	again.Courses[0].Code = "X"
	if term.Courses[0].Code != "CSC101" {
		t.Fatalf("NewTerm aliased the course slice")
	}
}

func TestTitleKey(t *testing.T) {
	year, term, ok := TitleKey("AY 2022-2023, Term 2")
	if !ok || year != 2022 || term != 2 {
		t.Fatalf("TitleKey() = %d, %d, %v", year, term, ok)
	}
	if _, _, ok := TitleKey("Term 1"); ok {
		t.Fatalf("plain placeholder should not parse")
	}
}
