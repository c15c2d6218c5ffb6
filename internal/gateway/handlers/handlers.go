// Package handlers exposes the gateway over HTTP with chi.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway"
	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway/keypool"
	"github.com/mrmushfiq/llm0-keypool-gateway/internal/shared/models"
)

// statusClientClosedRequest is the nginx convention for a client that went
// away before the response was ready.
const statusClientClosedRequest = 499

// Generator is the gateway as the handlers see it.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts gateway.Options) (*gateway.Result, *gateway.AttemptRecord, error)
	KeysStatus() []keypool.Status
	ResetAllKeys()
	Models() []string
}

// RequestLog persists one row per request. *database.DB implements it.
type RequestLog interface {
	LogRequest(ctx context.Context, log *models.GatewayLog) error
	UpdateAPIKeyLastUsed(ctx context.Context, apiKeyID string) error
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
	Fallback  string `json:"fallback,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps a gateway error to the HTTP status returned to clients.
// Provider text never reaches the response.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, gateway.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, gateway.ErrCanceled):
		return statusClientClosedRequest, "request canceled"
	default:
		return http.StatusServiceUnavailable, "service unavailable"
	}
}

func errorKind(err error) *string {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		kind := gwErr.Kind.String()
		return &kind
	}
	if err != nil {
		kind := "internal"
		return &kind
	}
	return nil
}

// logger writes request rows in the background so the response is not held
// up by the database.
type logger struct {
	store RequestLog
	log   *logrus.Entry
}

func (l *logger) record(entry *models.GatewayLog) {
	if l.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := l.store.LogRequest(ctx, entry); err != nil {
			l.log.WithError(err).WithField("request_id", entry.RequestID).Warn("failed to write request log")
		}
		if entry.APIKeyID != nil {
			if err := l.store.UpdateAPIKeyLastUsed(ctx, *entry.APIKeyID); err != nil {
				l.log.WithError(err).Debug("failed to update api key last_used_at")
			}
		}
	}()
}

func newLogEntry(endpoint string, client *models.APIKey, requested string, start time.Time) *models.GatewayLog {
	entry := &models.GatewayLog{
		Endpoint:   endpoint,
		Model:      requested,
		StatusCode: http.StatusOK,
		LatencyMs:  int(time.Since(start).Milliseconds()),
	}
	if client != nil {
		id := client.ID
		entry.APIKeyID = &id
	}
	return entry
}

func fillFromResult(entry *models.GatewayLog, res *gateway.Result, record *gateway.AttemptRecord) {
	if record != nil {
		entry.RequestID = record.RequestID
		entry.Attempts = len(record.Attempts)
	}
	if res != nil {
		model, key := res.Model, res.KeyID
		entry.ServedModel = &model
		entry.PoolKeyID = &key
		entry.FallbackUsed = res.FallbackUsed()
	}
}
