package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway/keypool"
	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway/ladder"
	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway/outcome"
	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway/providers"
)

type state int

const (
	stateSelectKey state = iota
	stateExecute
	stateEvaluate
	stateAdvanceKey
	stateAdvanceModel
	stateDone
)

type pair struct {
	key   int
	model string
}

// run is the state of one logical request. Attempts are strictly sequential.
type run struct {
	g   *Gateway
	ctx context.Context
	req providers.Request
	seq *ladder.Sequence

	record      *AttemptRecord
	tried       map[pair]bool
	maxAttempts int
	waits       int
	transient   int

	// backoff is owed before the next call; it is only slept once a key to
	// call has actually been found.
	backoff time.Duration

	lease keypool.Lease
	last  outcome.Result

	result *Result
	err    error
}

func (g *Gateway) orchestrate(ctx context.Context, req providers.Request, seq *ladder.Sequence, record *AttemptRecord) (*Result, error) {
	r := &run{
		g:           g,
		ctx:         ctx,
		req:         req,
		seq:         seq,
		record:      record,
		tried:       make(map[pair]bool),
		maxAttempts: g.maxAttempts(seq.Remaining()),
	}

	st := stateSelectKey
	for st != stateDone {
		switch st {
		case stateSelectKey:
			st = r.selectKey()
		case stateExecute:
			st = r.execute()
		case stateEvaluate:
			st = r.evaluate()
		case stateAdvanceKey:
			st = r.advanceKey()
		case stateAdvanceModel:
			st = r.advanceModel()
		}
	}
	return r.result, r.err
}

func (g *Gateway) maxAttempts(models int) int {
	bound := g.pool.Len() * models
	if g.cfg.MaxAttempts > 0 && g.cfg.MaxAttempts < bound {
		return g.cfg.MaxAttempts
	}
	return bound
}

func (r *run) abort(kind Kind, cause error) state {
	r.err = &Error{Kind: kind, Attempts: len(r.record.Attempts), Cause: cause}
	return stateDone
}

func (r *run) selectKey() state {
	if err := r.ctx.Err(); err != nil {
		return r.abort(KindCanceled, err)
	}

	model := r.seq.Head()
	lease, err := r.g.pool.NextExcept(func(i int) bool {
		return r.tried[pair{key: i, model: model}]
	})
	if errors.Is(err, keypool.ErrNoKeys) {
		return r.abort(KindExhausted, r.last.Err)
	}
	if err != nil {
		return r.abort(KindFatal, err)
	}

	if !lease.Ready {
		wait := lease.ReadyAt.Sub(r.g.now())
		if r.g.cfg.MaxCooldownWait <= 0 || wait > r.g.cfg.MaxCooldownWait || r.waits >= r.maxAttempts {
			r.g.logger.WithField("key", lease.ID).Debug("no ready key, giving up")
			return r.abort(KindExhausted, r.last.Err)
		}
		r.waits++
		r.backoff = 0
		if err := sleep(r.ctx, wait); err != nil {
			return r.abort(KindCanceled, err)
		}
		if !r.g.pool.Reuse(lease) {
			// Someone else claimed or penalized it meanwhile.
			return stateSelectKey
		}
	} else if r.backoff > 0 {
		delay := r.backoff
		r.backoff = 0
		if err := sleep(r.ctx, delay); err != nil {
			return r.abort(KindCanceled, err)
		}
		if !r.g.pool.Reuse(lease) {
			return stateSelectKey
		}
	}

	r.lease = lease
	return stateExecute
}

func (r *run) execute() state {
	req := r.req
	req.Model = r.seq.Head()

	start := time.Now()
	r.last = r.g.executor.Execute(r.ctx, r.lease, req)
	r.tried[pair{key: r.lease.Index, model: req.Model}] = true

	r.record.add(Attempt{
		KeyID:   r.lease.ID,
		Model:   req.Model,
		Outcome: r.last.Class,
		Latency: time.Since(start),
		Err:     r.last.Err,
	})
	return stateEvaluate
}

func (r *run) evaluate() state {
	switch r.last.Class {
	case outcome.Success:
		r.result = &Result{
			Text:   r.last.Text,
			Model:  r.seq.Head(),
			KeyID:  r.lease.ID,
			Record: r.record,
		}
		return stateDone
	case outcome.Canceled:
		cause := r.ctx.Err()
		if cause == nil {
			cause = r.last.Err
		}
		return r.abort(KindCanceled, cause)
	case outcome.Fatal:
		return r.abort(KindFatal, r.last.Err)
	}

	if len(r.record.Attempts) >= r.maxAttempts {
		return r.abort(KindExhausted, r.last.Err)
	}

	if r.last.Class.KeyLevel() {
		return stateAdvanceKey
	}
	return stateAdvanceModel
}

// advanceKey keeps the model and moves on to another key. A transient error
// owes a backoff delay, paid in selectKey only if another key is left.
func (r *run) advanceKey() state {
	if r.last.Class == outcome.Transient {
		r.backoff = r.g.cfg.Backoff.Delay(r.transient)
		r.transient++
	}
	return stateSelectKey
}

func (r *run) advanceModel() state {
	if !r.seq.Advance() {
		return r.abort(KindExhausted, r.last.Err)
	}
	// Keep the key that just answered unless it became unusable meanwhile.
	if !r.tried[pair{key: r.lease.Index, model: r.seq.Head()}] && r.g.pool.Reuse(r.lease) {
		return stateExecute
	}
	return stateSelectKey
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
