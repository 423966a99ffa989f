package transcript

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/toricodesthings/transcript-import-service/internal/types"
)

var (
	termHeader     = regexp.MustCompile(`(?i)\bAY\s*(\d{4})\s*[-–]\s*(\d{4})\b.*?\bTerm\s*(\d+)`)
	numericToken   = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
	leadingBullets = regexp.MustCompile(`^[•·▪◦*\-–—\s]+`)
	codeField      = regexp.MustCompile(`^[A-Z0-9]+(?:-[A-Z0-9]+)*[:,;.]?$`)
)

// Parser turns transcript text into terms. The zero value is not usable; use NewParser.
type Parser struct {
	excludedPrefixes []string
}

// NewParser returns a parser rejecting course codes that start with any of
// excludedPrefixes (case-insensitive). A nil slice selects DefaultExcludedPrefixes.
func NewParser(excludedPrefixes []string) *Parser {
	if excludedPrefixes == nil {
		excludedPrefixes = DefaultExcludedPrefixes
	}
	prefixes := make([]string, 0, len(excludedPrefixes))
	for _, p := range excludedPrefixes {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			prefixes = append(prefixes, p)
		}
	}
	return &Parser{excludedPrefixes: prefixes}
}

// ParseRow extracts a course from one transcript line. ok is false when the
// line carries no usable course: summaries, pass/fail load, excluded codes and
// rows whose unit/grade pair cannot be told apart are all dropped rather than guessed.
func (p *Parser) ParseRow(line string, id int) (course types.Course, ok bool) {
	if isSummaryLine(line) || hasNonAcademicMarker(line) {
		return types.Course{}, false
	}

	text := line
	if loc := termHeader.FindStringIndex(text); loc != nil {
		text = strings.TrimSpace(text[loc[1]:])
		if text == "" {
			return types.Course{}, false
		}
	}

	toks := numericToken.FindAllStringIndex(text, -1)
	if len(toks) < 2 {
		return types.Course{}, false
	}
	a, b := toks[len(toks)-2], toks[len(toks)-1]

	units, grade, ok := resolveUnitsGrade(text[a[0]:a[1]], text[b[0]:b[1]])
	if !ok || units == 0 {
		return types.Course{}, false
	}

	code := deriveCode(text[:a[0]] + " " + text[b[1]:])
	if code == "" || p.excluded(code) {
		return types.Course{}, false
	}

	return types.Course{ID: id, Code: code, Units: units, Grade: grade}, true
}

// resolveUnitsGrade decides which of two adjacent numbers is the grade and
// which the unit count. Exactly one reading must fit.
func resolveUnitsGrade(a, b string) (int, types.Grade, bool) {
	forward := isGradeToken(a) && isUnitsToken(b)
	reverse := isGradeToken(b) && isUnitsToken(a)

	switch {
	case forward && !reverse:
		units, _ := strconv.Atoi(b)
		return units, parseGrade(a), true
	case reverse && !forward:
		units, _ := strconv.Atoi(a)
		return units, parseGrade(b), true
	}
	return 0, 0, false
}

func isGradeToken(s string) bool {
	v, err := strconv.ParseFloat(s, 64)
	return err == nil && types.Grade(v).Valid()
}

func isUnitsToken(s string) bool {
	if strings.ContainsRune(s, '.') {
		return false
	}
	_, err := strconv.Atoi(s)
	return err == nil
}

func parseGrade(s string) types.Grade {
	v, _ := strconv.ParseFloat(s, 64)
	return types.Grade(v)
}

func deriveCode(rest string) string {
	rest = collapseSpaces(rest)
	rest = leadingBullets.ReplaceAllString(rest, "")
	if rest == "" {
		return ""
	}
	// The code is always a whole field; mixed-case words are kept verbatim.
	field := strings.Fields(rest)[0]
	if codeField.MatchString(field) {
		return strings.TrimRight(field, ":,;.")
	}
	return field
}
