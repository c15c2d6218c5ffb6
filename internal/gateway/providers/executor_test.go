package providers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway/keypool"
	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway/outcome"
)

type stubProvider struct {
	text  string
	err   error
	delay time.Duration
	calls int
	keys  []string
}

func (p *stubProvider) Generate(ctx context.Context, apiKey string, req Request) (string, error) {
	p.calls++
	p.keys = append(p.keys, apiKey)
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return p.text, p.err
}

func (p *stubProvider) Name() string { return "stub" }

type recordedCall struct {
	id      string
	success bool
	class   outcome.Class
}

type stubRecorder struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (r *stubRecorder) RecordSuccess(l keypool.Lease) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedCall{id: l.ID, success: true})
}

func (r *stubRecorder) RecordFailure(l keypool.Lease, c outcome.Class) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedCall{id: l.ID, class: c})
}

var testLease = keypool.Lease{Index: 0, ID: "key-1", Secret: "secret-1", Ready: true}

func validRequest() Request {
	return Request{Model: "gemini-2.0-flash", Prompt: "hello"}
}

func TestExecute_Success(t *testing.T) {
	p := &stubProvider{text: "  raw text, untouched ```json {}``` "}
	rec := &stubRecorder{}
	e := NewExecutor(p, rec, time.Second, nil)

	res := e.Execute(context.Background(), testLease, validRequest())

	assert.Equal(t, outcome.Success, res.Class)
	assert.Equal(t, p.text, res.Text)
	assert.Equal(t, []string{"secret-1"}, p.keys)
	assert.Equal(t, []recordedCall{{id: "key-1", success: true}}, rec.calls)
}

func TestExecute_FailureIsRecorded(t *testing.T) {
	p := &stubProvider{err: &Error{Provider: "Gemini", StatusCode: 429, Message: "quota"}}
	rec := &stubRecorder{}
	e := NewExecutor(p, rec, time.Second, nil)

	res := e.Execute(context.Background(), testLease, validRequest())

	assert.Equal(t, outcome.RateLimited, res.Class)
	assert.Error(t, res.Err)
	assert.Equal(t, []recordedCall{{id: "key-1", class: outcome.RateLimited}}, rec.calls)
}

func TestExecute_InvalidInput(t *testing.T) {
	p := &stubProvider{text: "unused"}
	rec := &stubRecorder{}
	e := NewExecutor(p, rec, time.Second, nil)

	res := e.Execute(context.Background(), testLease, Request{Model: "m"})
	assert.Equal(t, outcome.Fatal, res.Class)
	assert.ErrorIs(t, res.Err, ErrEmptyPrompt)

	res = e.Execute(context.Background(), testLease, Request{Prompt: "p"})
	assert.Equal(t, outcome.Fatal, res.Class)
	assert.ErrorIs(t, res.Err, ErrNoModel)

	assert.Zero(t, p.calls)
	assert.Empty(t, rec.calls, "invalid input must not be charged to a key")
}

func TestExecute_Timeout(t *testing.T) {
	p := &stubProvider{text: "late", delay: time.Second}
	rec := &stubRecorder{}
	e := NewExecutor(p, rec, 20*time.Millisecond, nil)

	res := e.Execute(context.Background(), testLease, validRequest())

	assert.Equal(t, outcome.Transient, res.Class)
	assert.True(t, errors.Is(res.Err, context.DeadlineExceeded))
	require.Len(t, rec.calls, 1)
	assert.Equal(t, outcome.Transient, rec.calls[0].class)
}

func TestExecute_CallerCanceled(t *testing.T) {
	p := &stubProvider{text: "late", delay: time.Second}
	rec := &stubRecorder{}
	e := NewExecutor(p, rec, time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	res := e.Execute(ctx, testLease, validRequest())
	assert.Equal(t, outcome.Canceled, res.Class)
}

func TestNewExecutor_DefaultTimeout(t *testing.T) {
	e := NewExecutor(&stubProvider{}, &stubRecorder{}, 0, nil)
	assert.Equal(t, DefaultCallTimeout, e.timeout)
}
