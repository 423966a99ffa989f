package transcript

import (
	"regexp"
	"strings"
)

// DefaultExcludedPrefixes are course-code families that carry no GPA weight:
// national service, military science and physical education.
var DefaultExcludedPrefixes = []string{
	"NSTP", "ROTC", "CWTS", "LTS", "LASARE", "PEDEV", "PEFIT", "GEPEDEV",
}

var summaryLine = regexp.MustCompile(`(?i)\b(?:cumulative|term)\s+gpa\s*:`)

// Grades recorded as pass, no grade submitted, or not applicable.
var nonAcademicMarkers = map[string]bool{
	"P":   true,
	"NGS": true,
	"N/A": true,
}

func isSummaryLine(line string) bool {
	return summaryLine.MatchString(line)
}

func hasNonAcademicMarker(line string) bool {
	for _, f := range strings.Fields(line) {
		f = strings.Trim(f, ",;:()[]")
		if nonAcademicMarkers[strings.ToUpper(f)] {
			return true
		}
	}
	return false
}

func (p *Parser) excluded(code string) bool {
	upper := strings.ToUpper(code)
	for _, prefix := range p.excludedPrefixes {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return false
}
