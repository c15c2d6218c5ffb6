package outcome

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassString(t *testing.T) {
	assert.Equal(t, "success", Success.String())
	assert.Equal(t, "rate_limited", RateLimited.String())
	assert.Equal(t, "model_unavailable", ModelUnavailable.String())
	assert.Equal(t, "unknown", Class(99).String())
}

func TestKeyLevel(t *testing.T) {
	tests := []struct {
		class    Class
		expected bool
	}{
		{Success, false},
		{RateLimited, true},
		{Unauthorized, true},
		{ModelUnavailable, false},
		{Transient, true},
		{Fatal, false},
		{Canceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.class.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.class.KeyLevel())
		})
	}
}

func TestConstructors(t *testing.T) {
	ok := Ok("hello")
	assert.Equal(t, Success, ok.Class)
	assert.Equal(t, "hello", ok.Text)
	assert.NoError(t, ok.Err)

	boom := errors.New("boom")
	failed := Fail(Fatal, boom)
	assert.Equal(t, Fatal, failed.Class)
	assert.Empty(t, failed.Text)
	assert.ErrorIs(t, failed.Err, boom)
}

func TestMarshalText(t *testing.T) {
	b, err := RateLimited.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "rate_limited", string(b))
}
