package ladder

import (
	"fmt"
	"strings"
)

// DefaultModels is the Gemini fallback order, fastest and most capable first.
var DefaultModels = []string{
	"gemini-2.0-flash",
	"gemini-2.0-flash-lite",
	"gemini-1.5-flash",
	"gemini-1.5-flash-8b",
}

// Candidate is one model on the ladder. Lower rank is tried first.
type Candidate struct {
	Model string
	Rank  int
}

// Ladder is the configured, ordered list of models to fall back through.
// It is immutable after construction and safe to share.
type Ladder struct {
	candidates []Candidate
}

// New builds a ladder ranked by position. At least one model is required and
// models must be unique.
func New(models []string) (*Ladder, error) {
	l := &Ladder{}
	seen := make(map[string]bool, len(models))
	for _, m := range models {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if seen[m] {
			return nil, fmt.Errorf("ladder: duplicate model %q", m)
		}
		seen[m] = true
		l.candidates = append(l.candidates, Candidate{Model: m, Rank: len(l.candidates)})
	}
	if len(l.candidates) == 0 {
		return nil, fmt.Errorf("ladder: at least one model is required")
	}
	return l, nil
}

// Candidates returns a copy of the configured candidates.
func (l *Ladder) Candidates() []Candidate {
	out := make([]Candidate, len(l.candidates))
	copy(out, l.candidates)
	return out
}

// Len returns the number of configured models.
func (l *Ladder) Len() int {
	return len(l.candidates)
}

// Contains reports whether model is on the ladder.
func (l *Ladder) Contains(model string) bool {
	for _, c := range l.candidates {
		if c.Model == model {
			return true
		}
	}
	return false
}

// Build returns the models to try for one request. A preferred model that is
// on the ladder moves to the front; anything else leaves the configured order
// untouched.
func (l *Ladder) Build(preferred string) []string {
	out := make([]string, 0, len(l.candidates))
	if preferred != "" && l.Contains(preferred) {
		out = append(out, preferred)
	}
	for _, c := range l.candidates {
		if c.Model == preferred {
			continue
		}
		out = append(out, c.Model)
	}
	return out
}

// Sequence walks a built ladder for one request.
type Sequence struct {
	models []string
	pos    int
}

// NewSequence starts a walk over the ladder built for preferred.
func (l *Ladder) NewSequence(preferred string) *Sequence {
	return &Sequence{models: l.Build(preferred)}
}

// Head is the model currently being tried.
func (s *Sequence) Head() string {
	return s.models[s.pos]
}

// Advance drops the head. It returns false once the ladder is spent.
func (s *Sequence) Advance() bool {
	if s.pos+1 >= len(s.models) {
		s.pos = len(s.models) - 1
		return false
	}
	s.pos++
	return true
}

// Remaining counts models not yet tried, including the head.
func (s *Sequence) Remaining() int {
	return len(s.models) - s.pos
}
