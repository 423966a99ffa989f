package types

import (
	"math"
	"time"
)

// Grade is a numeric course grade on the 4.0 scale.
type Grade float64

// Grades lists every grade a course may carry, highest first.
var Grades = []Grade{4.0, 3.5, 3.0, 2.5, 2.0, 1.5, 1.0, 0.5, 0.0}

// Valid reports whether g is one of Grades.
func (g Grade) Valid() bool {
	for _, v := range Grades {
		if math.Abs(float64(g-v)) < 1e-9 {
			return true
		}
	}
	return false
}

type Course struct {
	ID    int    `json:"id"`
	Code  string `json:"code"`
	Units int    `json:"units"`
	Grade Grade  `json:"grade"`
}

// Valid reports whether the course can take part in GPA computation.
func (c Course) Valid() bool {
	return c.Units > 0 && c.Grade.Valid()
}

// Term is built once from a course list; changing courses means building a new Term.
type Term struct {
	ID          int      `json:"id"`
	Title       string   `json:"title"`
	Courses     []Course `json:"courses"`
	GPA         float64  `json:"computedGpa"`
	Recognition string   `json:"recognitionLabel"`
}

// ── API types ────────────────────────────────────────────────────────────────

type SessionView struct {
	ID             string    `json:"id"`
	Terms          []Term    `json:"terms"`
	CGPA           float64   `json:"cgpa"`
	TotalUnits     int       `json:"totalUnits"`
	Imports        int       `json:"imports"`
	SuggestedTitle string    `json:"suggestedTitle,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type ParseRequest struct {
	Text string `json:"text"`
}

type ParseResult struct {
	Success bool    `json:"success"`
	Terms   []Term  `json:"terms"`
	Code    string  `json:"code,omitempty"`
	Error   *string `json:"error,omitempty"`
}

// ImageOutcome reports what happened to one submitted image.
type ImageOutcome struct {
	Index         int     `json:"index"`
	Name          string  `json:"name"`
	Success       bool    `json:"success"`
	TermsImported int     `json:"termsImported"`
	Message       string  `json:"message"`
	Code          string  `json:"code,omitempty"`
	Error         *string `json:"error,omitempty"`
}

type ImportResult struct {
	Success       bool           `json:"success"`
	TermsImported int            `json:"termsImported"`
	Images        []ImageOutcome `json:"images"`
	Session       SessionView    `json:"session"`
}

// ImportEvent is one line of a streamed import.
type ImportEvent struct {
	Type     string        `json:"type"` // "progress" | "outcome" | "done"
	Index    int           `json:"index"`
	Name     string        `json:"name,omitempty"`
	Stage    string        `json:"stage,omitempty"`
	Progress float64       `json:"progress,omitempty"`
	Outcome  *ImageOutcome `json:"outcome,omitempty"`
	Result   *ImportResult `json:"result,omitempty"`
}

type HistoryEntry struct {
	ID            int64     `json:"id"`
	SessionID     string    `json:"sessionId"`
	ImageName     string    `json:"imageName"`
	ImageSHA256   string    `json:"imageSha256"`
	Engine        string    `json:"engine"`
	Status        string    `json:"status"`
	Code          string    `json:"code,omitempty"`
	TermsImported int       `json:"termsImported"`
	RawText       string    `json:"rawText,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}
