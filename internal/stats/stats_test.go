package stats

import (
	"math"
	"testing"
	"time"

	"github.com/toricodesthings/transcript-import-service/internal/types"
)

func TestComputeTermStatsWeightedAverage(t *testing.T) {
	got := ComputeTermStats([]types.Course{
		{ID: 1, Code: "CSC101", Units: 3, Grade: 4.0},
		{ID: 2, Code: "MTH101", Units: 3, Grade: 3.0},
		{ID: 3, Code: "ENG101", Units: 3, Grade: 3.5},
		{ID: 4, Code: "PHY101", Units: 3, Grade: 3.5},
	})
	if math.Abs(got.GPA-3.5) > 1e-9 {
		t.Fatalf("GPA = %v, want 3.5", got.GPA)
	}
	if got.Recognition != FirstHonorsLabel {
		t.Fatalf("Recognition = %q, want %q", got.Recognition, FirstHonorsLabel)
	}
	if got.TotalUnits != 12 {
		t.Fatalf("TotalUnits = %d, want 12", got.TotalUnits)
	}
}

func TestComputeTermStatsSecondHonors(t *testing.T) {
	got := ComputeTermStats([]types.Course{
		{Units: 6, Grade: 3.0},
		{Units: 6, Grade: 3.5},
	})
	if got.Recognition != SecondHonorsLabel {
		t.Fatalf("Recognition = %q, want %q (gpa %v)", got.Recognition, SecondHonorsLabel, got.GPA)
	}
}

func TestComputeTermStatsNoLabelBelowFloors(t *testing.T) {
	cases := map[string][]types.Course{
		"low units": {{Units: 3, Grade: 4.0}, {Units: 3, Grade: 4.0}},
		"low grade": {{Units: 9, Grade: 4.0}, {Units: 3, Grade: 1.5}},
		"low gpa":   {{Units: 12, Grade: 2.5}},
	}
	for name, courses := range cases {
		if got := ComputeTermStats(courses); got.Recognition != "" {
			t.Errorf("%s: Recognition = %q, want empty", name, got.Recognition)
		}
	}
}

func TestComputeTermStatsInvalidCourseZeroes(t *testing.T) {
	cases := map[string][]types.Course{
		"empty":       nil,
		"zero units":  {{Units: 3, Grade: 4.0}, {Units: 0, Grade: 4.0}},
		"off-grid":    {{Units: 3, Grade: 3.7}},
		"neg units":   {{Units: -1, Grade: 2.0}},
		"above scale": {{Units: 3, Grade: 4.5}},
	}
	for name, courses := range cases {
		if got := ComputeTermStats(courses); got != (Stats{}) {
			t.Errorf("%s: got %+v, want zero stats", name, got)
		}
	}
}

func TestCumulativeSkipsInvalidTerms(t *testing.T) {
	terms := []types.Term{
		{Courses: []types.Course{{Units: 3, Grade: 4.0}}},
		{Courses: []types.Course{{Units: 3, Grade: 2.0}}},
		{Courses: []types.Course{{Units: 0, Grade: 1.0}}},
	}
	cgpa, units := Cumulative(terms)
	if math.Abs(cgpa-3.0) > 1e-9 || units != 6 {
		t.Fatalf("Cumulative = (%v, %d), want (3.0, 6)", cgpa, units)
	}
}

func TestCurrentTermTitle(t *testing.T) {
	cases := []struct {
		month time.Month
		want  string
	}{
		{time.October, "AY 2026-2027, Term 1"},
		{time.February, "AY 2025-2026, Term 2"},
		{time.June, "AY 2025-2026, Term 3"},
	}
	for _, tc := range cases {
		now := time.Date(2026, tc.month, 10, 0, 0, 0, 0, time.UTC)
		if got := CurrentTermTitle(now); got != tc.want {
			t.Errorf("CurrentTermTitle(%s) = %q, want %q", tc.month, got, tc.want)
		}
	}
}
