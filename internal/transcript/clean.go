package transcript

import (
	"regexp"
	"strings"
)

var (
	zeroWidthChars = regexp.MustCompile("[\u200B-\u200D\uFEFF\u00AD\u2060]")
	multiSpace     = regexp.MustCompile(`\s+`)
)

// Flatten turns raw OCR output into the line-oriented transcript the segmenter
// works on:
//   - strips zero-width / invisible unicode characters
//   - normalises line endings
//   - trims every line and drops blank ones
func Flatten(text string) []string {
	if text == "" {
		return nil
	}

	text = zeroWidthChars.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	raw := strings.Split(text, "\n")
	out := make([]string, 0, len(raw))
	for _, ln := range raw {
		ln = strings.TrimSpace(ln)
		if ln != "" {
			out = append(out, ln)
		}
	}
	return out
}

func collapseSpaces(s string) string {
	return strings.TrimSpace(multiSpace.ReplaceAllString(s, " "))
}
