package transcript

import (
	"regexp"
	"slices"
)

// Section is the run of transcript lines belonging to one term, top to bottom.
type Section []string

var sectionMarker = regexp.MustCompile(`(?i)^term\s+gpa\s*:`)

// Segment splits flattened transcript lines into per-term sections.
//
// A term's "Term GPA:" summary follows its course rows, so lines are scanned
// bottom-up: each marker closes whatever was collected below it and opens a
// new section with the marker as its last line. Sections come back in
// document order, the reverse of the order they close in; only the ordinals
// of untitled "Imported Term N" sections depend on this. No marker anywhere
// means no sections.
func Segment(lines []string) []Section {
	if !slices.ContainsFunc(lines, sectionMarker.MatchString) {
		return nil
	}

	var (
		closed []Section
		buf    []string
	)
	flush := func() {
		if len(buf) == 0 {
			return
		}
		sec := make(Section, len(buf))
		copy(sec, buf)
		slices.Reverse(sec)
		closed = append(closed, sec)
		buf = buf[:0]
	}

	for i := len(lines) - 1; i >= 0; i-- {
		ln := lines[i]
		if sectionMarker.MatchString(ln) {
			flush()
		}
		buf = append(buf, ln)
	}
	flush()

	slices.Reverse(closed)
	return closed
}
