package providers

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway/keypool"
	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway/outcome"
)

const DefaultCallTimeout = 30 * time.Second

// Recorder receives the outcome of every attempt made with a key.
type Recorder interface {
	RecordSuccess(l keypool.Lease)
	RecordFailure(l keypool.Lease, c outcome.Class)
}

// Executor performs exactly one provider call and classifies it.
type Executor struct {
	provider Provider
	recorder Recorder
	timeout  time.Duration
	logger   *logrus.Entry
}

// NewExecutor wires a provider to the pool that tracks key health. A zero
// timeout uses DefaultCallTimeout.
func NewExecutor(provider Provider, recorder Recorder, timeout time.Duration, logger *logrus.Entry) *Executor {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Executor{
		provider: provider,
		recorder: recorder,
		timeout:  timeout,
		logger:   logger.WithField("provider", provider.Name()),
	}
}

// Execute calls the provider with the leased key. Invalid input is rejected
// as Fatal before any call is made and is not charged to the key; every real
// call is reported to the recorder before Execute returns.
func (e *Executor) Execute(ctx context.Context, lease keypool.Lease, req Request) outcome.Result {
	if err := req.Validate(); err != nil {
		return outcome.Fail(outcome.Fatal, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	text, err := e.provider.Generate(callCtx, lease.Secret, req)
	if err == nil {
		e.recorder.RecordSuccess(lease)
		return outcome.Ok(text)
	}

	class := Classify(ctx, err)
	e.recorder.RecordFailure(lease, class)

	e.logger.WithFields(logrus.Fields{
		"key":     lease.ID,
		"model":   req.Model,
		"outcome": class.String(),
	}).WithError(err).Debug("provider call failed")

	return outcome.Fail(class, err)
}
