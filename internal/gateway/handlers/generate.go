package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway"
	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway/jsonextract"
)

// GenerateRequest is the body of POST /v1/generate.
type GenerateRequest struct {
	Prompt string `json:"prompt"`
	gateway.Options

	// ExtractJSON is "array", "object" or "any". When set the response
	// carries the JSON value found in the model output.
	ExtractJSON string `json:"extract_json,omitempty"`
	// Fallback selects canned text returned with a 503.
	Fallback FallbackKind `json:"fallback,omitempty"`
}

// GenerateResponse is the body of a successful POST /v1/generate.
type GenerateResponse struct {
	Text         string          `json:"text"`
	Model        string          `json:"model"`
	RequestID    string          `json:"request_id"`
	Attempts     int             `json:"attempts"`
	FallbackUsed bool            `json:"fallback_used"`
	CacheHit     bool            `json:"cache_hit"`
	JSON         json.RawMessage `json:"json,omitempty"`
}

func parseShape(s string) (jsonextract.Shape, error) {
	switch strings.ToLower(s) {
	case "any", "true":
		return jsonextract.Any, nil
	case "array":
		return jsonextract.Array, nil
	case "object":
		return jsonextract.Object, nil
	}
	return jsonextract.Any, fmt.Errorf("extract_json must be array, object or any")
}

// HandleGenerate handles POST /v1/generate
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()
	client := ClientFromContext(ctx)

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := req.Options.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var shape jsonextract.Shape
	if req.ExtractJSON != "" {
		var err error
		if shape, err = parseShape(req.ExtractJSON); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	out, err := h.complete(ctx, client, req.Prompt, req.Options)
	entry := newLogEntry("/v1/generate", client, req.Model, startTime)
	fillFromResult(entry, out.Result, out.Record)
	entry.CacheHit = out.CacheHit

	if err != nil {
		status, msg := statusFor(err)
		entry.StatusCode = status
		entry.ErrorKind = errorKind(err)
		h.logs.record(entry)

		h.log.WithFields(logrus.Fields{
			"request_id": entry.RequestID,
			"status":     status,
		}).WithError(err).Info("generate failed")

		resp := errorResponse{Error: msg, RequestID: entry.RequestID}
		if req.Fallback != "" && status == http.StatusServiceUnavailable {
			resp.Fallback = FallbackText(req.Fallback)
		}
		writeJSON(w, status, resp)
		return
	}

	resp := GenerateResponse{
		Text:      out.Text,
		Model:     out.Model,
		RequestID: entry.RequestID,
		Attempts:  entry.Attempts,
		CacheHit:  out.CacheHit,
	}
	if out.Result != nil {
		resp.FallbackUsed = out.Result.FallbackUsed()
	}

	if req.ExtractJSON != "" {
		raw, err := jsonextract.Extract(out.Text, shape)
		if err != nil {
			entry.StatusCode = http.StatusBadGateway
			kind := "no_json"
			entry.ErrorKind = &kind
			h.logs.record(entry)

			errResp := errorResponse{Error: "model output contained no usable JSON", RequestID: entry.RequestID}
			if req.Fallback != "" {
				errResp.Fallback = FallbackText(req.Fallback)
			}
			writeJSON(w, http.StatusBadGateway, errResp)
			return
		}
		resp.JSON = raw
	}

	h.logs.record(entry)

	w.Header().Set("X-Cache-Hit", fmt.Sprintf("%v", out.CacheHit))
	w.Header().Set("X-Model", out.Model)
	if resp.FallbackUsed {
		w.Header().Set("X-Failover", "true")
	}
	writeJSON(w, http.StatusOK, resp)
}
