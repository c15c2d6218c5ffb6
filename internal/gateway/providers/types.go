package providers

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrEmptyPrompt   = errors.New("prompt is required")
	ErrNoModel       = errors.New("model is required")
	ErrEmptyResponse = errors.New("provider returned no content")
)

// Request is one provider call. Optional generation parameters are left to
// provider defaults when nil.
type Request struct {
	Model           string
	Prompt          string
	Temperature     *float32
	TopP            *float32
	TopK            *int
	MaxOutputTokens *int
}

// Validate checks the input constraints every provider relies on.
func (r Request) Validate() error {
	if r.Prompt == "" {
		return ErrEmptyPrompt
	}
	if r.Model == "" {
		return ErrNoModel
	}
	return nil
}

// Provider is the interface all LLM providers must implement. The credential
// is passed per call so one Provider serves the whole key pool.
type Provider interface {
	Generate(ctx context.Context, apiKey string, req Request) (string, error)
	Name() string
}

// Error is a provider failure with the upstream HTTP status, if any.
type Error struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}
