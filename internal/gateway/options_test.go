package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{InitialDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{10, 10 * time.Second},
		{-1, time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestBackoff_Jitter(t *testing.T) {
	b := Backoff{InitialDelay: time.Second, Multiplier: 2, Jitter: 0.1}
	for i := 0; i < 50; i++ {
		d := b.Delay(1)
		assert.GreaterOrEqual(t, d, 1800*time.Millisecond)
		assert.LessOrEqual(t, d, 2200*time.Millisecond)
	}
}

func TestBackoff_Disabled(t *testing.T) {
	assert.Zero(t, Backoff{}.Delay(3))
}

func TestDefaults_Request(t *testing.T) {
	d := DefaultDefaults()

	req := d.request("hi", Options{})
	assert.Equal(t, "hi", req.Prompt)
	assert.Empty(t, req.Model)
	assert.Equal(t, float32(0.7), *req.Temperature)
	assert.Equal(t, float32(0.8), *req.TopP)
	assert.Equal(t, 40, *req.TopK)
	assert.Equal(t, 4096, *req.MaxOutputTokens)

	temp := float32(0)
	req = d.request("hi", Options{Temperature: &temp})
	assert.Equal(t, float32(0), *req.Temperature)
	assert.NotSame(t, &temp, req.Temperature)

	zero := Defaults{}
	req = zero.request("hi", Options{})
	assert.Nil(t, req.TopP)
	assert.Nil(t, req.TopK)
	assert.Nil(t, req.MaxOutputTokens)
}

func TestOptions_Validate(t *testing.T) {
	f32 := func(v float32) *float32 { return &v }
	i := func(v int) *int { return &v }

	tests := []struct {
		name    string
		opts    Options
		wantErr string
	}{
		{"empty", Options{}, ""},
		{"in range", Options{Temperature: f32(2), TopP: f32(1), TopK: i(1), MaxOutputTokens: i(1)}, ""},
		{"zero temperature", Options{Temperature: f32(0)}, ""},
		{"hot", Options{Temperature: f32(2.5)}, "temperature"},
		{"negative temperature", Options{Temperature: f32(-1)}, "temperature"},
		{"top_p above one", Options{TopP: f32(1.5)}, "top_p"},
		{"top_k zero", Options{TopK: i(0)}, "top_k"},
		{"negative max tokens", Options{MaxOutputTokens: i(-5)}, "max_output_tokens"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
