package quality

import (
	"math"
	"regexp"
	"strings"
	"unicode"
)

// Decision grades raw OCR output of a grade report.
type Decision struct {
	Quality       float64
	NeedsFallback bool
	Reasons       []string
	WordCount     int
	RowCount      int
}

var (
	marker     = regexp.MustCompile(`(?i)\bterm\s+gpa\s*:`)
	numericTok = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
)

func CountWords(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	return len(strings.Fields(s))
}

// Score estimates whether text is a usable transcript. minRows is the number
// of course-like lines (two or more numeric tokens) expected at minimum.
func Score(text string, minRows int) Decision {
	lines := splitLines(text)
	clean := strings.Join(lines, "\n")
	wc := CountWords(clean)

	total := float64(len([]rune(clean)))
	if total == 0 {
		return Decision{
			Quality:       0,
			NeedsFallback: true,
			Reasons:       []string{"empty_text"},
		}
	}

	rows := 0
	for _, ln := range lines {
		if len(numericTok.FindAllString(ln, -1)) >= 2 {
			rows++
		}
	}

	alpha := float64(countIf(clean, unicode.IsLetter))
	digits := float64(countIf(clean, unicode.IsDigit))
	garbageRatio := safeDiv(float64(countGarbage(clean)), total)

	score := 1.0
	reasons := []string{}

	if !marker.MatchString(clean) {
		score -= 0.40
		reasons = append(reasons, "no_term_marker")
	}

	if rows < minRows {
		penalty := 0.30
		if rows == 0 {
			penalty = 0.50
		}
		score -= penalty
		reasons = append(reasons, "few_course_rows")
	}

	// Course rows mix codes and numbers; either alone suggests a bad read.
	if safeDiv(alpha, total) < 0.15 || safeDiv(digits, total) < 0.03 {
		score -= 0.20
		reasons = append(reasons, "unbalanced_charset")
	}

	if garbageRatio > 0.01 {
		score -= math.Min(0.50, garbageRatio*50)
		reasons = append(reasons, "garbage_chars")
	}

	if hasRepeatedCharPatterns(clean) {
		score -= 0.10
		reasons = append(reasons, "repeated_patterns")
	}

	if countScrambledRatio(clean) > 0.45 {
		score -= 0.25
		reasons = append(reasons, "scrambled_text")
	}

	score = clamp(score, 0, 1)

	return Decision{
		Quality:       score,
		NeedsFallback: score < 0.50,
		Reasons:       reasons,
		WordCount:     wc,
		RowCount:      rows,
	}
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	if strings.TrimSpace(s) == "" {
		return nil
	}
	raw := strings.Split(s, "\n")
	out := make([]string, 0, len(raw))
	for _, ln := range raw {
		ln = strings.Join(strings.Fields(ln), " ")
		if ln != "" {
			out = append(out, ln)
		}
	}
	return out
}

func hasRepeatedCharPatterns(s string) bool {
	// Detects patterns like "....." or "-----" (5+ repetitions)
	if len(s) < 5 {
		return false
	}

	consecutiveCount := 1
	var lastChar rune

	for _, char := range s {
		if char == lastChar {
			consecutiveCount++
			if consecutiveCount >= 5 {
				return true
			}
		} else {
			consecutiveCount = 1
			lastChar = char
		}
	}

	return false
}

// countScrambledRatio is the share of single-character words. Grade reports
// legitimately carry some ("3", "P"), so callers use a high threshold.
func countScrambledRatio(s string) float64 {
	words := strings.Fields(s)
	if len(words) == 0 {
		return 0
	}

	singleCharCount := 0
	for _, w := range words {
		if len([]rune(w)) == 1 {
			singleCharCount++
		}
	}

	return float64(singleCharCount) / float64(len(words))
}

func countIf(s string, pred func(rune) bool) int {
	n := 0
	for _, r := range s {
		if pred(r) {
			n++
		}
	}
	return n
}

func countGarbage(s string) int {
	n := 0
	for _, r := range s {
		// Unicode replacement char or control chars (excluding newline/tab)
		if r == '\uFFFD' || (unicode.IsControl(r) && r != '\n' && r != '\t') {
			n++
		}
	}
	return n
}

func safeDiv(a, b float64) float64 {
	if b <= 0 {
		return 0
	}
	return a / b
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
