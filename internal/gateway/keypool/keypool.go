package keypool

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway/outcome"
)

const (
	DefaultCooldown    = 60 * time.Second
	DefaultUsageWindow = time.Minute
)

// ErrNoKeys is returned when every key is disabled or excluded by the caller.
var ErrNoKeys = errors.New("keypool: no usable keys")

// State is the externally visible health of a key.
type State string

const (
	StateActive      State = "active"
	StateRateLimited State = "rate_limited"
	StateDisabled    State = "disabled"
)

type key struct {
	id     string
	secret string

	usage       int64
	windowStart time.Time
	lastUsed    time.Time

	cooldownUntil time.Time
	failures      int

	disabled      bool
	disabledUntil time.Time // zero means for the process lifetime

	limiter *rate.Limiter
}

func (k *key) isDisabled(now time.Time) bool {
	return k.disabled && (k.disabledUntil.IsZero() || now.Before(k.disabledUntil))
}

func (k *key) coolingDown(now time.Time) bool {
	return !k.cooldownUntil.IsZero() && now.Before(k.cooldownUntil)
}

// readyAt is the earliest time the key can serve a request again.
func (k *key) readyAt(now time.Time) time.Time {
	at := now
	if k.coolingDown(now) {
		at = k.cooldownUntil
	}
	if k.limiter != nil {
		if missing := 1 - k.limiter.TokensAt(at); missing > 0 {
			perSecond := float64(k.limiter.Limit())
			at = at.Add(time.Duration(missing / perSecond * float64(time.Second)))
		}
	}
	return at
}

// Lease is a handle on a selected key. Secret is only for the executor; the
// value never leaves the gateway.
type Lease struct {
	Index  int
	ID     string
	Secret string

	// Ready is false when no key was usable and the pool fell back to the
	// key that recovers soonest.
	Ready   bool
	ReadyAt time.Time
}

// String keeps the secret out of logs and fmt verbs.
func (l Lease) String() string {
	return l.ID
}

// Status is a redacted, read-only view of one key.
type Status struct {
	ID            string     `json:"id"`
	Hint          string     `json:"hint"`
	State         State      `json:"state"`
	Usage         int64      `json:"usage"`
	Failures      int        `json:"failures"`
	CooldownUntil *time.Time `json:"cooldown_until"`
	LastUsed      *time.Time `json:"last_used"`
}

// Pool is an ordered set of credentials rotated round-robin. Pool is safe for
// concurrent use.
type Pool struct {
	mu     sync.Mutex
	keys   []*key
	cursor int

	cooldown         time.Duration
	disableFor       time.Duration
	usageWindow      time.Duration
	failureThreshold int
	rpm              int
	now              func() time.Time
}

// Option configures a Pool.
type Option func(*Pool)

// WithCooldown sets how long a rate-limited key is quarantined.
func WithCooldown(d time.Duration) Option {
	return func(p *Pool) { p.cooldown = d }
}

// WithDisableDuration bounds how long an unauthorized key stays disabled.
// Zero disables it for the lifetime of the process.
func WithDisableDuration(d time.Duration) Option {
	return func(p *Pool) { p.disableFor = d }
}

// WithUsageWindow sets the window the usage counter covers.
func WithUsageWindow(d time.Duration) Option {
	return func(p *Pool) { p.usageWindow = d }
}

// WithFailureThreshold puts a key into cooldown after n consecutive
// transient failures. Zero turns this off.
func WithFailureThreshold(n int) Option {
	return func(p *Pool) { p.failureThreshold = n }
}

// WithRequestsPerMinute paces each key client-side. Zero means unlimited.
func WithRequestsPerMinute(n int) Option {
	return func(p *Pool) { p.rpm = n }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) { p.now = now }
}

// New creates a Pool. Key order is priority order for the rotation.
func New(secrets []string, opts ...Option) (*Pool, error) {
	if len(secrets) == 0 {
		return nil, fmt.Errorf("keypool: at least one key is required")
	}

	p := &Pool{
		cooldown:    DefaultCooldown,
		usageWindow: DefaultUsageWindow,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	now := p.now()
	for i, s := range secrets {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, fmt.Errorf("keypool: key %d is empty", i+1)
		}
		k := &key{
			id:          fmt.Sprintf("key-%d", i+1),
			secret:      s,
			windowStart: now,
		}
		if p.rpm > 0 {
			k.limiter = rate.NewLimiter(rate.Limit(float64(p.rpm)/60.0), p.rpm)
		}
		p.keys = append(p.keys, k)
	}

	// The first selection starts at index 0.
	p.cursor = len(p.keys) - 1
	return p, nil
}

// Len returns the number of keys in the pool.
func (p *Pool) Len() int {
	return len(p.keys)
}

// Next returns the next usable key in round-robin order.
func (p *Pool) Next() (Lease, error) {
	return p.NextExcept(nil)
}

// NextExcept is Next with a caller-supplied exclusion, used to avoid keys a
// request has already tried. Scanning starts after the cursor; the cursor is
// moved to whichever key is returned.
//
// When no key is ready the key that recovers soonest is returned with
// Ready=false so the caller can decide to wait or give up.
func (p *Pool) NextExcept(skip func(index int) bool) (Lease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	n := len(p.keys)

	fallback := -1
	var fallbackAt time.Time

	for i := 1; i <= n; i++ {
		idx := (p.cursor + i) % n
		if skip != nil && skip(idx) {
			continue
		}
		k := p.keys[idx]
		if k.isDisabled(now) {
			continue
		}
		if !k.coolingDown(now) && (k.limiter == nil || k.limiter.AllowN(now, 1)) {
			p.cursor = idx
			return p.lease(idx, true, now), nil
		}
		at := k.readyAt(now)
		if fallback < 0 || at.Before(fallbackAt) {
			fallback = idx
			fallbackAt = at
		}
	}

	if fallback < 0 {
		return Lease{}, ErrNoKeys
	}
	p.cursor = fallback
	return p.lease(fallback, false, fallbackAt), nil
}

func (p *Pool) lease(idx int, ready bool, readyAt time.Time) Lease {
	k := p.keys[idx]
	return Lease{
		Index:   idx,
		ID:      k.id,
		Secret:  k.secret,
		Ready:   ready,
		ReadyAt: readyAt,
	}
}

// Reuse checks that a previously leased key is usable now and, if so, claims
// it again. Used when the same key is kept for the next model and after
// waiting out a cooldown.
func (p *Pool) Reuse(l Lease) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	k, ok := p.lookup(l)
	if !ok {
		return false
	}
	now := p.now()
	if k.isDisabled(now) || k.coolingDown(now) {
		return false
	}
	return k.limiter == nil || k.limiter.AllowN(now, 1)
}

func (p *Pool) lookup(l Lease) (*key, bool) {
	if l.Index < 0 || l.Index >= len(p.keys) {
		return nil, false
	}
	k := p.keys[l.Index]
	if k.id != l.ID {
		return nil, false
	}
	return k, true
}

// observe counts one request against the key's usage window.
func (p *Pool) observe(k *key, now time.Time) {
	if p.usageWindow > 0 && now.Sub(k.windowStart) >= p.usageWindow {
		k.usage = 0
		k.windowStart = now
	}
	k.usage++
	k.lastUsed = now
}

// RecordSuccess resets the failure counter and clears any cooldown.
func (p *Pool) RecordSuccess(l Lease) {
	p.mu.Lock()
	defer p.mu.Unlock()

	k, ok := p.lookup(l)
	if !ok {
		return
	}
	now := p.now()
	p.observe(k, now)
	k.failures = 0
	k.cooldownUntil = time.Time{}
	k.disabled = false
	k.disabledUntil = time.Time{}
}

// RecordFailure applies the penalty for a failed attempt on the key.
func (p *Pool) RecordFailure(l Lease, c outcome.Class) {
	p.mu.Lock()
	defer p.mu.Unlock()

	k, ok := p.lookup(l)
	if !ok {
		return
	}
	now := p.now()
	p.observe(k, now)

	switch c {
	case outcome.RateLimited:
		k.failures++
		until := now.Add(p.cooldown)
		// Never shorten a cooldown another request already set.
		if until.After(k.cooldownUntil) {
			k.cooldownUntil = until
		}
	case outcome.Unauthorized:
		k.failures++
		k.disabled = true
		if p.disableFor > 0 {
			k.disabledUntil = now.Add(p.disableFor)
		} else {
			k.disabledUntil = time.Time{}
		}
	case outcome.Fatal, outcome.ModelUnavailable:
		// A rejected request or a missing model says nothing about the key.
	case outcome.Transient:
		k.failures++
		if p.failureThreshold > 0 && k.failures >= p.failureThreshold {
			until := now.Add(p.cooldown)
			if until.After(k.cooldownUntil) {
				k.cooldownUntil = until
			}
		}
	}
}

// Status returns a redacted snapshot of every key. It does not mutate state.
func (p *Pool) Status() []Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	out := make([]Status, 0, len(p.keys))
	for _, k := range p.keys {
		s := Status{
			ID:       k.id,
			Hint:     redact(k.secret),
			State:    StateActive,
			Usage:    k.usage,
			Failures: k.failures,
		}
		if p.usageWindow > 0 && now.Sub(k.windowStart) >= p.usageWindow {
			s.Usage = 0
		}
		switch {
		case k.isDisabled(now):
			s.State = StateDisabled
			if !k.disabledUntil.IsZero() {
				until := k.disabledUntil
				s.CooldownUntil = &until
			}
		case k.coolingDown(now):
			s.State = StateRateLimited
			until := k.cooldownUntil
			s.CooldownUntil = &until
		}
		if !k.lastUsed.IsZero() {
			last := k.lastUsed
			s.LastUsed = &last
		}
		out = append(out, s)
	}
	return out
}

// Reset clears every cooldown, disabled flag and failure counter. Usage
// counters are left alone.
func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, k := range p.keys {
		k.cooldownUntil = time.Time{}
		k.disabled = false
		k.disabledUntil = time.Time{}
		k.failures = 0
	}
}

// redact keeps enough of a secret to tell keys apart in diagnostics.
func redact(secret string) string {
	if len(secret) < 12 {
		return "****"
	}
	return secret[:4] + "…" + secret[len(secret)-4:]
}
