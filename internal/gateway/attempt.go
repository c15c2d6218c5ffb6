package gateway

import (
	"time"

	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway/outcome"
)

// Attempt is one provider call made on behalf of a request.
type Attempt struct {
	KeyID   string        `json:"key_id"`
	Model   string        `json:"model"`
	Outcome outcome.Class `json:"outcome"`
	Latency time.Duration `json:"latency_ns"`
	Err     error         `json:"-"`
}

// AttemptRecord lists every attempt of one logical request. It lives as long
// as the request and is never persisted.
type AttemptRecord struct {
	RequestID string    `json:"request_id"`
	Prompt    string    `json:"-"`
	Options   Options   `json:"options"`
	StartedAt time.Time `json:"started_at"`
	Attempts  []Attempt `json:"attempts"`
}

func (r *AttemptRecord) add(a Attempt) {
	r.Attempts = append(r.Attempts, a)
}

// Models returns the distinct models tried, in order.
func (r *AttemptRecord) Models() []string {
	var out []string
	seen := map[string]bool{}
	for _, a := range r.Attempts {
		if !seen[a.Model] {
			seen[a.Model] = true
			out = append(out, a.Model)
		}
	}
	return out
}

// Result is a successful generation plus the record of how it was obtained.
type Result struct {
	Text   string
	Model  string
	KeyID  string
	Record *AttemptRecord
}

// FallbackUsed reports whether the answer came from a model other than the
// first one tried.
func (r *Result) FallbackUsed() bool {
	return len(r.Record.Models()) > 1
}
