package session

import (
	"regexp"
	"sort"
	"time"

	"github.com/toricodesthings/transcript-import-service/internal/transcript"
	"github.com/toricodesthings/transcript-import-service/internal/types"
)

var placeholderTitle = regexp.MustCompile(`^Term \d+$`)

// MergeOptions tunes a single merge.
type MergeOptions struct {
	// ReplaceDefaults forces (true) or forbids (false) discarding the
	// placeholder terms. Nil applies the first-import heuristic.
	ReplaceDefaults *bool
	Now             time.Time
}

// Merger integrates newly parsed terms into a session.
type Merger struct {
	DefaultCount int
}

// Merge returns a new session holding s's terms plus incoming, with fresh ids
// and academic-year ordering. s is not modified.
func (m Merger) Merge(s Session, incoming []types.Term, opt MergeOptions) Session {
	existing := s.Terms
	if m.replaceDefaults(s, opt) {
		existing = nil
	}

	next := 1
	for _, t := range existing {
		if t.ID >= next {
			next = t.ID + 1
		}
	}

	terms := make([]types.Term, 0, len(existing)+len(incoming))
	terms = append(terms, existing...)
	for _, t := range incoming {
		terms = append(terms, transcript.NewTerm(next, t.Title, t.Courses))
		next++
	}
	sortByAcademicYear(terms)

	out := s
	out.Terms = terms
	out.Imports = s.Imports + 1
	if !opt.Now.IsZero() {
		out.UpdatedAt = opt.Now
	}
	return out
}

func (m Merger) replaceDefaults(s Session, opt MergeOptions) bool {
	if opt.ReplaceDefaults != nil {
		return *opt.ReplaceDefaults
	}
	if s.Imports > 0 {
		return false
	}
	limit := m.DefaultCount
	if limit <= 0 {
		limit = DefaultTermCount
	}
	return OnlyDefaults(s.Terms, limit)
}

// OnlyDefaults reports whether terms look like untouched scaffolding: at most
// limit terms, all titled "Term N".
func OnlyDefaults(terms []types.Term, limit int) bool {
	if len(terms) > limit {
		return false
	}
	for _, t := range terms {
		if !placeholderTitle.MatchString(t.Title) {
			return false
		}
	}
	return true
}

// sortByAcademicYear orders terms titled "AY yyyy-yyyy, Term n" by year then
// term, within the slots those terms already occupy. Other terms stay put.
func sortByAcademicYear(terms []types.Term) {
	type keyed struct {
		year, term int
		t          types.Term
	}
	var (
		slots []int
		items []keyed
	)
	for i, t := range terms {
		if year, term, ok := transcript.TitleKey(t.Title); ok {
			slots = append(slots, i)
			items = append(items, keyed{year, term, t})
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].year != items[j].year {
			return items[i].year < items[j].year
		}
		return items[i].term < items[j].term
	})
	for i, slot := range slots {
		terms[slot] = items[i].t
	}
}
