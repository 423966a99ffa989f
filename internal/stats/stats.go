package stats

import (
	"fmt"
	"time"

	"github.com/toricodesthings/transcript-import-service/internal/types"
)

const (
	FirstHonorsLabel  = "First Honors Dean's List"
	SecondHonorsLabel = "Second Honors Dean's List"

	firstHonorsMinGPA  = 3.4
	secondHonorsMinGPA = 3.0
	honorsMinGrade     = 2.0
	honorsMinUnits     = 12
)

type Stats struct {
	GPA         float64
	Recognition string
	TotalUnits  int
}

// ComputeTermStats returns the unit-weighted GPA of courses and the honors
// label it earns. Any invalid course yields a zero GPA and no label.
func ComputeTermStats(courses []types.Course) Stats {
	if len(courses) == 0 {
		return Stats{}
	}

	var weighted float64
	units := 0
	minGrade := types.Grade(4.0)
	for _, c := range courses {
		if !c.Valid() {
			return Stats{}
		}
		weighted += float64(c.Units) * float64(c.Grade)
		units += c.Units
		if c.Grade < minGrade {
			minGrade = c.Grade
		}
	}
	if units == 0 {
		return Stats{}
	}

	gpa := weighted / float64(units)
	return Stats{
		GPA:         gpa,
		Recognition: recognition(gpa, minGrade, units),
		TotalUnits:  units,
	}
}

func recognition(gpa float64, minGrade types.Grade, units int) string {
	if minGrade < honorsMinGrade || units < honorsMinUnits {
		return ""
	}
	switch {
	case gpa >= firstHonorsMinGPA:
		return FirstHonorsLabel
	case gpa >= secondHonorsMinGPA:
		return SecondHonorsLabel
	}
	return ""
}

// Cumulative returns the unit-weighted GPA over every course of every term
// whose own GPA is computable, plus the units that went into it.
func Cumulative(terms []types.Term) (float64, int) {
	var weighted float64
	units := 0
	for _, t := range terms {
		if ComputeTermStats(t.Courses).TotalUnits == 0 {
			continue
		}
		for _, c := range t.Courses {
			weighted += float64(c.Units) * float64(c.Grade)
			units += c.Units
		}
	}
	if units == 0 {
		return 0, 0
	}
	return weighted / float64(units), units
}

// CurrentTermTitle labels the academic term in progress at now:
// September–December is Term 1, January–April Term 2, May–August Term 3.
func CurrentTermTitle(now time.Time) string {
	year := now.Year()
	var term int
	switch m := now.Month(); {
	case m >= time.September:
		term = 1
	case m <= time.April:
		term = 2
		year--
	default:
		term = 3
		year--
	}
	return fmt.Sprintf("AY %d-%d, Term %d", year, year+1, term)
}
