package transcript

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/toricodesthings/transcript-import-service/internal/stats"
	"github.com/toricodesthings/transcript-import-service/internal/types"
)

var (
	ErrNoSectionsDetected = errors.New("could not detect term sections")
	ErrNoCoursesParsed    = errors.New("no courses could be parsed")
)

// NewTerm builds a term with statistics derived from courses. It is the only
// way terms are produced, so GPA and label always match the course list.
func NewTerm(id int, title string, courses []types.Course) types.Term {
	cs := make([]types.Course, len(courses))
	copy(cs, courses)
	s := stats.ComputeTermStats(cs)
	return types.Term{
		ID:          id,
		Title:       title,
		Courses:     cs,
		GPA:         s.GPA,
		Recognition: s.Recognition,
	}
}

// BuildTerm parses every line of sec, in order, into one term. ordinal names
// the term when the section has no "AY yyyy-yyyy Term n" header.
func (p *Parser) BuildTerm(sec Section, ordinal int) types.Term {
	title := ""
	for _, ln := range sec {
		if m := termHeader.FindStringSubmatch(ln); m != nil {
			title = fmt.Sprintf("AY %s-%s, Term %s", m[1], m[2], m[3])
			break
		}
	}
	if title == "" {
		title = fmt.Sprintf("Imported Term %d", ordinal)
	}

	courses := make([]types.Course, 0, len(sec))
	for _, ln := range sec {
		if c, ok := p.ParseRow(ln, len(courses)+1); ok {
			courses = append(courses, c)
		}
	}
	return NewTerm(0, title, courses)
}

// Parse runs the whole text-to-terms reconstruction on one OCR transcript.
// Terms without courses are dropped. Term ids are left at zero for the merger.
func (p *Parser) Parse(text string) ([]types.Term, error) {
	sections := Segment(Flatten(text))
	if len(sections) == 0 {
		return nil, ErrNoSectionsDetected
	}

	terms := make([]types.Term, 0, len(sections))
	for i, sec := range sections {
		t := p.BuildTerm(sec, i+1)
		if len(t.Courses) == 0 {
			continue
		}
		terms = append(terms, t)
	}
	if len(terms) == 0 {
		return nil, ErrNoCoursesParsed
	}
	return terms, nil
}

// TitleKey extracts the academic-year start and term number from a title such
// as "AY 2022-2023, Term 2".
func TitleKey(title string) (year, term int, ok bool) {
	m := termHeader.FindStringSubmatch(title)
	if m == nil {
		return 0, 0, false
	}
	year, _ = strconv.Atoi(m[1])
	term, _ = strconv.Atoi(m[3])
	return year, term, true
}
