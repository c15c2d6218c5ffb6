package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway"
	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway/keypool"
)

const probeResultLimit = 500

type keysResponse struct {
	Success   bool             `json:"success"`
	Provider  string           `json:"provider,omitempty"`
	Models    []string         `json:"models,omitempty"`
	Keys      []keypool.Status `json:"keys"`
	Message   string           `json:"message,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// ProbeRequest is the body of POST /internal/keys/probe.
type ProbeRequest struct {
	Prompt string `json:"prompt"`
	gateway.Options
}

// ProbeResponse reports one test request and the key pool afterwards.
type ProbeResponse struct {
	Success    bool              `json:"success"`
	Result     string            `json:"result,omitempty"`
	FullLength int               `json:"full_length,omitempty"`
	Model      string            `json:"model,omitempty"`
	Error      string            `json:"error,omitempty"`
	Attempts   []gateway.Attempt `json:"attempts"`
	Keys       []keypool.Status  `json:"keys"`
}

// HandleKeysStatus handles GET /internal/keys
func (h *Handler) HandleKeysStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, keysResponse{
		Success:   true,
		Provider:  h.provider,
		Models:    h.gw.Models(),
		Keys:      h.gw.KeysStatus(),
		Timestamp: time.Now().UTC(),
	})
}

// HandleKeysReset handles POST /internal/keys/reset
func (h *Handler) HandleKeysReset(w http.ResponseWriter, r *http.Request) {
	h.gw.ResetAllKeys()
	h.log.WithField("remote", r.RemoteAddr).Warn("key pool reset by operator")

	writeJSON(w, http.StatusOK, keysResponse{
		Success:   true,
		Message:   "All API keys reset",
		Keys:      h.gw.KeysStatus(),
		Timestamp: time.Now().UTC(),
	})
}

// DefaultProbePrompt is sent when a probe names no prompt of its own.
const DefaultProbePrompt = "Reply with the single word: pong"

// HandleKeysProbe handles POST /internal/keys/probe. It bypasses the cache
// so the request really reaches the provider.
func (h *Handler) HandleKeysProbe(w http.ResponseWriter, r *http.Request) {
	var req ProbeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		req.Prompt = DefaultProbePrompt
	}

	res, record, err := h.gw.Generate(r.Context(), req.Prompt, req.Options)

	resp := ProbeResponse{Attempts: []gateway.Attempt{}}
	if record != nil && record.Attempts != nil {
		resp.Attempts = record.Attempts
	}
	if err != nil {
		status, msg := statusFor(err)
		resp.Error = msg
		resp.Keys = h.gw.KeysStatus()
		writeJSON(w, status, resp)
		return
	}

	resp.Success = true
	resp.Result = truncate(res.Text, probeResultLimit)
	resp.FullLength = len(res.Text)
	resp.Model = res.Model
	resp.Keys = h.gw.KeysStatus()
	writeJSON(w, http.StatusOK, resp)
}

// truncate cuts s to at most n bytes on a rune boundary and marks the cut.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
