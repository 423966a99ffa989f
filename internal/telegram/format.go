package telegram

import (
	"fmt"
	"strings"

	"github.com/toricodesthings/transcript-import-service/internal/types"
)

const welcomeShort = "Send photos of your grade report and I will add the terms to your transcript. /terms shows what I have so far."

const welcomeText = "Hi! I turn photos of your grade report into a term-by-term GPA summary."

const guideText = `How to import:
1. Take a clear, straight photo of each page of your grade report. Several photos can go in one album.
2. Make sure each term's "Term GPA:" line is visible; terms are split on it.
3. Send the photos. I will read them in the order you sent them.

Commands:
/terms - show imported terms and your CGPA
/export - download everything as a spreadsheet
/reset - start over with blank terms
/hideguide - stop showing this guide`

const hintText = "Send a photo of your grade report, or /start for instructions."

var stageLabels = map[string]string{
	"normalize": "Preparing image",
	"ocr":       "Reading text",
	"parse":     "Finding terms",
	"merge":     "Saving",
}

// ProgressText renders one import event for the status message.
func ProgressText(ev types.ImportEvent, total int) string {
	prefix := fmt.Sprintf("Image %d/%d", ev.Index+1, total)
	if ev.Type == "outcome" && ev.Outcome != nil {
		if ev.Outcome.Success {
			return fmt.Sprintf("%s: done, %d term(s) found.", prefix, ev.Outcome.TermsImported)
		}
		return fmt.Sprintf("%s: could not import.", prefix)
	}
	label := stageLabels[ev.Stage]
	if label == "" {
		label = "Working"
	}
	if ev.Stage == "ocr" && ev.Progress > 0 {
		return fmt.Sprintf("%s: %s %d%%", prefix, label, int(ev.Progress*100))
	}
	return fmt.Sprintf("%s: %s...", prefix, label)
}

// FormatResult lists the per-image messages of a finished batch.
func FormatResult(res types.ImportResult) string {
	var b strings.Builder
	if res.Success {
		fmt.Fprintf(&b, "Imported %d term(s) from %d image(s).\n", res.TermsImported, len(res.Images))
	} else {
		b.WriteString("Nothing could be imported.\n")
	}
	for _, o := range res.Images {
		mark := "✅"
		if !o.Success {
			mark = "⚠️"
		}
		fmt.Fprintf(&b, "%s %s\n", mark, o.Message)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatSession lists terms with their courses and the cumulative GPA.
func FormatSession(v types.SessionView) string {
	if len(v.Terms) == 0 {
		return "No terms yet."
	}
	var b strings.Builder
	for _, t := range v.Terms {
		fmt.Fprintf(&b, "%s: GPA %.2f", t.Title, t.GPA)
		if t.Recognition != "" {
			fmt.Fprintf(&b, " (%s)", t.Recognition)
		}
		b.WriteByte('\n')
		for _, c := range t.Courses {
			code := c.Code
			if code == "" {
				code = "-"
			}
			fmt.Fprintf(&b, "  %s  %du  %.1f\n", code, c.Units, float64(c.Grade))
		}
	}
	fmt.Fprintf(&b, "\nCGPA %.2f over %d units", v.CGPA, v.TotalUnits)
	return b.String()
}
