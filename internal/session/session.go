package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/toricodesthings/transcript-import-service/internal/stats"
	"github.com/toricodesthings/transcript-import-service/internal/transcript"
	"github.com/toricodesthings/transcript-import-service/internal/types"
)

// DefaultTermCount is how many placeholder terms a new session starts with.
const DefaultTermCount = 4

var ErrNotFound = errors.New("session not found")

// Session owns one user's term collection. It is treated as an immutable
// value: every change produces a new Session that replaces the stored one.
type Session struct {
	ID        string       `json:"id"`
	Terms     []types.Term `json:"terms"`
	Imports   int          `json:"imports"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// Store persists sessions as whole values.
type Store interface {
	Get(ctx context.Context, id string) (Session, error)
	Put(ctx context.Context, s Session) error
	Delete(ctx context.Context, id string) error
}

// New returns a session scaffolded with defaultCount placeholder terms
// ("Term 1" ... "Term N"), each holding four blank three-unit courses.
func New(id string, defaultCount int, now time.Time) Session {
	terms := make([]types.Term, 0, defaultCount)
	for i := 1; i <= defaultCount; i++ {
		courses := make([]types.Course, 4)
		for j := range courses {
			courses[j] = types.Course{ID: j + 1, Units: 3, Grade: 4.0}
		}
		terms = append(terms, transcript.NewTerm(i, fmt.Sprintf("Term %d", i), courses))
	}
	return Session{ID: id, Terms: terms, CreatedAt: now, UpdatedAt: now}
}

// View renders s for API consumers.
func (s Session) View() types.SessionView {
	cgpa, units := stats.Cumulative(s.Terms)
	terms := s.Terms
	if terms == nil {
		terms = []types.Term{}
	}
	return types.SessionView{
		ID:         s.ID,
		Terms:      terms,
		CGPA:       cgpa,
		TotalUnits: units,
		Imports:    s.Imports,
		UpdatedAt:  s.UpdatedAt,
	}
}

// GetOrCreate returns the stored session id, scaffolding and storing a new one
// when it does not exist yet.
func GetOrCreate(ctx context.Context, st Store, id string, defaultCount int, now time.Time) (Session, error) {
	s, err := st.Get(ctx, id)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Session{}, err
	}
	s = New(id, defaultCount, now)
	if err := st.Put(ctx, s); err != nil {
		return Session{}, fmt.Errorf("store new session: %w", err)
	}
	return s, nil
}
