package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/toricodesthings/transcript-import-service/internal/transcript"
	"github.com/toricodesthings/transcript-import-service/internal/types"
)

func parsedTerm(title string, courses ...types.Course) types.Term {
	if len(courses) == 0 {
		courses = []types.Course{{ID: 1, Code: "CSC101", Units: 3, Grade: 4.0}}
	}
	return transcript.NewTerm(0, title, courses)
}

func titles(terms []types.Term) []string {
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = t.Title
	}
	return out
}

func TestMergeFirstImportReplacesDefaults(t *testing.T) {
	m := Merger{DefaultCount: DefaultTermCount}
	s := New("s1", DefaultTermCount, time.Unix(0, 0))
	if len(s.Terms) != 4 {
		t.Fatalf("expected 4 default terms, got %d", len(s.Terms))
	}

	s = m.Merge(s, []types.Term{
		parsedTerm("AY 2022-2023, Term 1"),
		parsedTerm("AY 2022-2023, Term 2"),
	}, MergeOptions{})
	if len(s.Terms) != 2 {
		t.Fatalf("first import: expected 2 terms, got %v", titles(s.Terms))
	}
	if s.Terms[0].ID != 1 || s.Terms[1].ID != 2 {
		t.Fatalf("unexpected ids: %d, %d", s.Terms[0].ID, s.Terms[1].ID)
	}

	s = m.Merge(s, []types.Term{parsedTerm("AY 2023-2024, Term 1")}, MergeOptions{})
	if len(s.Terms) != 3 {
		t.Fatalf("second import: expected 3 terms, got %v", titles(s.Terms))
	}
	if s.Terms[2].ID != 3 {
		t.Fatalf("expected new term id 3, got %d", s.Terms[2].ID)
	}
	if s.Imports != 2 {
		t.Fatalf("Imports = %d, want 2", s.Imports)
	}
}

func TestMergeKeepsCustomizedCollection(t *testing.T) {
	m := Merger{DefaultCount: DefaultTermCount}
	s := New("s1", DefaultTermCount, time.Time{})
	s.Terms = append(s.Terms[:1:1], parsedTerm("My own term"))
	s.Terms[1].ID = 9

	got := m.Merge(s, []types.Term{parsedTerm("AY 2022-2023, Term 1")}, MergeOptions{})
	if len(got.Terms) != 3 {
		t.Fatalf("expected append, got %v", titles(got.Terms))
	}
	if got.Terms[2].ID != 10 {
		t.Fatalf("expected id max+1 = 10, got %d", got.Terms[2].ID)
	}
}

func TestMergeTooManyDefaultsAppends(t *testing.T) {
	m := Merger{DefaultCount: 2}
	s := New("s1", 3, time.Time{})
	got := m.Merge(s, []types.Term{parsedTerm("AY 2022-2023, Term 1")}, MergeOptions{})
	if len(got.Terms) != 4 {
		t.Fatalf("expected 4 terms, got %v", titles(got.Terms))
	}
}

func TestMergeExplicitReplaceDefaults(t *testing.T) {
	m := Merger{DefaultCount: DefaultTermCount}
	keep, replace := false, true

	s := New("s1", DefaultTermCount, time.Time{})
	got := m.Merge(s, []types.Term{parsedTerm("AY 2022-2023, Term 1")}, MergeOptions{ReplaceDefaults: &keep})
	if len(got.Terms) != 5 {
		t.Fatalf("ReplaceDefaults=false: expected 5 terms, got %d", len(got.Terms))
	}

	got = m.Merge(got, []types.Term{parsedTerm("AY 2023-2024, Term 1")}, MergeOptions{ReplaceDefaults: &replace})
	if len(got.Terms) != 1 || got.Terms[0].ID != 1 {
		t.Fatalf("ReplaceDefaults=true: expected a single term with id 1, got %+v", got.Terms)
	}
}

func TestMergeSortsByAcademicYear(t *testing.T) {
	m := Merger{DefaultCount: DefaultTermCount}
	s := Session{ID: "s1", Imports: 1, Terms: []types.Term{
		transcript.NewTerm(1, "Summer bridge", nil),
		transcript.NewTerm(2, "AY 2023-2024, Term 1", nil),
		transcript.NewTerm(3, "Electives", nil),
	}}
	got := m.Merge(s, []types.Term{parsedTerm("AY 2022-2023, Term 2")}, MergeOptions{})

	want := []string{"Summer bridge", "AY 2022-2023, Term 2", "Electives", "AY 2023-2024, Term 1"}
	gotTitles := titles(got.Terms)
	for i := range want {
		if gotTitles[i] != want[i] {
			t.Fatalf("order = %v, want %v", gotTitles, want)
		}
	}
}

func TestMergeSortsByTermWithinYear(t *testing.T) {
	terms := []types.Term{
		{Title: "AY 2022-2023, Term 3"},
		{Title: "AY 2022-2023, Term 1"},
		{Title: "AY 2021-2022, Term 2"},
	}
	sortByAcademicYear(terms)
	want := []string{"AY 2021-2022, Term 2", "AY 2022-2023, Term 1", "AY 2022-2023, Term 3"}
	for i, w := range want {
		if terms[i].Title != w {
			t.Fatalf("order = %v, want %v", titles(terms), want)
		}
	}
}

func TestMergeDoesNotMutateInput(t *testing.T) {
	m := Merger{DefaultCount: DefaultTermCount}
	s := Session{ID: "s1", Imports: 1, Terms: []types.Term{
		transcript.NewTerm(1, "AY 2023-2024, Term 1", nil),
	}}
	_ = m.Merge(s, []types.Term{parsedTerm("AY 2022-2023, Term 1")}, MergeOptions{})
	if len(s.Terms) != 1 || s.Terms[0].Title != "AY 2023-2024, Term 1" || s.Imports != 1 {
		t.Fatalf("input session was modified: %+v", s)
	}
}

func TestMergeRecomputesStats(t *testing.T) {
	m := Merger{DefaultCount: DefaultTermCount}
	in := types.Term{Title: "AY 2022-2023, Term 1", GPA: 1.0, Courses: []types.Course{
		{ID: 1, Code: "A", Units: 3, Grade: 4.0},
	}}
	got := m.Merge(Session{ID: "s"}, []types.Term{in}, MergeOptions{})
	if got.Terms[0].GPA != 4.0 {
		t.Fatalf("GPA = %v, want 4.0", got.Terms[0].GPA)
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	if _, err := st.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	s := New("abc", 2, time.Unix(10, 0))
	if err := st.Put(ctx, s); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, err := st.Get(ctx, "abc")
	if err != nil || len(got.Terms) != 2 {
		t.Fatalf("Get() = %+v, %v", got, err)
	}
	if err := st.Delete(ctx, "abc"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := st.Get(ctx, "abc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestViewComputesCumulative(t *testing.T) {
	s := Session{ID: "v", Terms: []types.Term{
		transcript.NewTerm(1, "AY 2022-2023, Term 1", []types.Course{{ID: 1, Code: "A", Units: 3, Grade: 4.0}}),
		transcript.NewTerm(2, "AY 2022-2023, Term 2", []types.Course{{ID: 1, Code: "B", Units: 3, Grade: 3.0}}),
	}}
	v := s.View()
	if v.CGPA != 3.5 || v.TotalUnits != 6 {
		t.Fatalf("View() = %+v", v)
	}
}
