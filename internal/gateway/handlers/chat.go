package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway"
)

// flattenMessages turns a chat transcript into the single prompt the gateway
// takes. A lone user message is passed through untouched.
func flattenMessages(msgs []openai.ChatCompletionMessage) string {
	if len(msgs) == 1 && msgs[0].Role == openai.ChatMessageRoleUser {
		return messageText(msgs[0])
	}

	var b strings.Builder
	for _, m := range msgs {
		text := messageText(m)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		switch m.Role {
		case openai.ChatMessageRoleSystem:
			b.WriteString("System: ")
		case openai.ChatMessageRoleAssistant:
			b.WriteString("Assistant: ")
		default:
			b.WriteString("User: ")
		}
		b.WriteString(text)
	}
	return b.String()
}

func messageText(m openai.ChatCompletionMessage) string {
	if m.Content != "" {
		return m.Content
	}
	var parts []string
	for _, p := range m.MultiContent {
		if p.Type == openai.ChatMessagePartTypeText && p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func chatOptions(req openai.ChatCompletionRequest) gateway.Options {
	opts := gateway.Options{Model: req.Model}
	if req.Temperature != 0 {
		t := req.Temperature
		opts.Temperature = &t
	}
	if req.TopP != 0 {
		p := req.TopP
		opts.TopP = &p
	}
	maxTokens := req.MaxCompletionTokens
	if maxTokens == 0 {
		maxTokens = req.MaxTokens
	}
	if maxTokens > 0 {
		opts.MaxOutputTokens = &maxTokens
	}
	return opts
}

func writeOpenAIError(w http.ResponseWriter, status int, errType, msg string) {
	writeJSON(w, status, openai.ErrorResponse{Error: &openai.APIError{
		Message: msg,
		Type:    errType,
	}})
}

// HandleChatCompletion handles POST /v1/chat/completions. Only the
// non-streaming request shape is supported.
func (h *Handler) HandleChatCompletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()
	client := ClientFromContext(ctx)

	var req openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeOpenAIError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body")
		return
	}
	if req.Stream {
		writeOpenAIError(w, http.StatusBadRequest, "invalid_request_error", "streaming is not supported")
		return
	}

	prompt := flattenMessages(req.Messages)
	opts := chatOptions(req)
	if err := opts.Validate(); err != nil {
		writeOpenAIError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}

	out, err := h.complete(ctx, client, prompt, opts)
	entry := newLogEntry("/v1/chat/completions", client, req.Model, startTime)
	fillFromResult(entry, out.Result, out.Record)
	entry.CacheHit = out.CacheHit

	if err != nil {
		status, msg := statusFor(err)
		entry.StatusCode = status
		entry.ErrorKind = errorKind(err)
		h.logs.record(entry)

		errType := "service_unavailable"
		if status == http.StatusBadRequest {
			errType = "invalid_request_error"
		}
		h.log.WithField("request_id", entry.RequestID).WithError(err).Info("chat completion failed")
		writeOpenAIError(w, status, errType, msg)
		return
	}
	h.logs.record(entry)

	resp := openai.ChatCompletionResponse{
		ID:      "chatcmpl-" + entry.RequestID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   out.Model,
		Choices: []openai.ChatCompletionChoice{
			{
				Index: 0,
				Message: openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleAssistant,
					Content: out.Text,
				},
				FinishReason: openai.FinishReasonStop,
			},
		},
	}

	w.Header().Set("X-Cache-Hit", fmt.Sprintf("%v", out.CacheHit))
	if out.Result != nil && out.Result.FallbackUsed() {
		w.Header().Set("X-Failover", "true")
	}
	writeJSON(w, http.StatusOK, resp)
}
