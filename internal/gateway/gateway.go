// Package gateway turns a prompt into generated text while hiding upstream
// quota exhaustion, transient errors and model outages from callers. It
// rotates through a pool of provider keys and falls back along a ladder of
// models until one attempt succeeds or every combination is spent.
package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway/keypool"
	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway/ladder"
	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway/outcome"
	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway/providers"
)

// Pool is the part of keypool.Pool the gateway drives.
type Pool interface {
	Len() int
	NextExcept(skip func(index int) bool) (keypool.Lease, error)
	Reuse(l keypool.Lease) bool
	Status() []keypool.Status
	Reset()
}

// Executor performs one classified provider call.
type Executor interface {
	Execute(ctx context.Context, lease keypool.Lease, req providers.Request) outcome.Result
}

// Gateway is constructed once at startup and shared by every handler.
type Gateway struct {
	pool     Pool
	ladder   *ladder.Ladder
	executor Executor
	cfg      Config
	logger   *logrus.Entry
	now      func() time.Time
}

// New creates a Gateway.
func New(pool Pool, models *ladder.Ladder, executor Executor, cfg Config, logger *logrus.Entry) *Gateway {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Gateway{
		pool:     pool,
		ladder:   models,
		executor: executor,
		cfg:      cfg,
		logger:   logger.WithField("component", "gateway"),
		now:      time.Now,
	}
}

// Generate runs one logical request and returns the text together with the
// record of every attempt. On failure the returned *Error wraps the last
// provider error; the record is still returned for logging.
func (g *Gateway) Generate(ctx context.Context, prompt string, opts Options) (*Result, *AttemptRecord, error) {
	record := &AttemptRecord{
		RequestID: uuid.New().String(),
		Prompt:    prompt,
		Options:   opts,
		StartedAt: g.now(),
	}

	if strings.TrimSpace(prompt) == "" {
		return nil, record, &Error{Kind: KindInvalidRequest, Cause: providers.ErrEmptyPrompt}
	}
	if err := opts.Validate(); err != nil {
		return nil, record, &Error{Kind: KindInvalidRequest, Cause: err}
	}

	req := g.cfg.Defaults.request(prompt, opts)
	seq := g.ladder.NewSequence(opts.Model)

	log := g.logger.WithFields(logrus.Fields{
		"request_id": record.RequestID,
		"model":      seq.Head(),
	})

	res, err := g.orchestrate(ctx, req, seq, record)
	if err != nil {
		log.WithFields(logrus.Fields{
			"attempts": len(record.Attempts),
			"duration": time.Since(record.StartedAt).String(),
		}).WithError(err).Warn("generation failed")
		return nil, record, err
	}

	log.WithFields(logrus.Fields{
		"attempts":      len(record.Attempts),
		"served_by":     res.Model,
		"fallback_used": res.FallbackUsed(),
	}).Debug("generation succeeded")
	return res, record, nil
}

// GenerateContent returns the provider's text unmodified or a classified
// *Error. It never returns placeholder content.
func (g *Gateway) GenerateContent(ctx context.Context, prompt string, opts Options) (string, error) {
	res, _, err := g.Generate(ctx, prompt, opts)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// KeysStatus returns a redacted snapshot of the key pool.
func (g *Gateway) KeysStatus() []keypool.Status {
	return g.pool.Status()
}

// ResetAllKeys clears every cooldown and failure counter. It is an operator
// action and is never called from the request path.
func (g *Gateway) ResetAllKeys() {
	g.pool.Reset()
	g.logger.Info("all keys reset")
}

// Models returns the configured fallback ladder.
func (g *Gateway) Models() []string {
	return g.ladder.Build("")
}
