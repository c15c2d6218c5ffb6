package providers

import (
	"context"
	"errors"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"syscall"

	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway/outcome"
)

// statusCoder matches SDK errors that expose their HTTP status.
type statusCoder interface {
	StatusCode() int
}

var (
	rateLimitPatterns = []string{
		"quota",
		"rate limit",
		"resource exhausted",
		"resource_exhausted",
		"too many requests",
	}
	authPatterns = []string{
		"api key not valid",
		"api_key_invalid",
		"invalid api key",
		"permission denied",
	}
	modelPatterns = []string{
		"model not found",
		"is not found for api version",
		"not supported for generatecontent",
		"unsupported model",
		"model is not supported",
		"does not exist",
	}
	transientPatterns = []string{
		"overloaded",
		"unavailable",
		"connection reset",
		"connection refused",
		"timeout",
		"temporary failure",
		"bad gateway",
		"gateway timeout",
		"server error",
	}
)

// statusInMessage finds an HTTP status an untyped error only mentions in its
// text, e.g. "googleapi: Error 503" or "status code: 429". A number on its
// own, such as a token count, does not match.
var statusInMessage = regexp.MustCompile(`\b(?:status(?:\s*code)?|code|error|http(?:/[\d.]+)?)\s*[:=]?\s*([1-5]\d\d)\b`)

// Classify maps a provider error to an outcome class. ctx is the caller's
// context: when it is done the attempt counts as Canceled rather than as a
// provider failure.
func Classify(ctx context.Context, err error) outcome.Class {
	if err == nil {
		return outcome.Success
	}
	if ctx != nil && ctx.Err() != nil {
		return outcome.Canceled
	}
	if errors.Is(err, ErrEmptyPrompt) || errors.Is(err, ErrNoModel) {
		return outcome.Fatal
	}
	// Blocked or empty candidates are a property of the model, not the key.
	if errors.Is(err, ErrEmptyResponse) {
		return outcome.ModelUnavailable
	}
	// A per-call deadline expiring while the caller is still waiting.
	if errors.Is(err, context.DeadlineExceeded) {
		return outcome.Transient
	}

	msg := strings.ToLower(err.Error())

	var pe *Error
	if errors.As(err, &pe) && pe.StatusCode > 0 {
		return classifyStatus(pe.StatusCode, strings.ToLower(pe.Message+" "+msg))
	}
	var sc statusCoder
	if errors.As(err, &sc) && sc.StatusCode() > 0 {
		return classifyStatus(sc.StatusCode(), msg)
	}

	if isNetworkError(err) {
		return outcome.Transient
	}

	if m := statusInMessage.FindStringSubmatch(msg); m != nil {
		if code, _ := strconv.Atoi(m[1]); code >= 400 {
			return classifyStatus(code, msg)
		}
	}

	switch {
	case containsAny(msg, rateLimitPatterns):
		return outcome.RateLimited
	case containsAny(msg, authPatterns):
		return outcome.Unauthorized
	case containsAny(msg, modelPatterns):
		return outcome.ModelUnavailable
	case containsAny(msg, transientPatterns):
		return outcome.Transient
	}
	return outcome.Fatal
}

func classifyStatus(code int, msg string) outcome.Class {
	switch {
	case code == 429:
		return outcome.RateLimited
	case code == 401 || code == 403:
		return outcome.Unauthorized
	case code == 404:
		return outcome.ModelUnavailable
	case code == 408 || (code >= 500 && code < 600):
		return outcome.Transient
	}

	// Gemini reports bad keys and unknown models as 400 INVALID_ARGUMENT.
	switch {
	case containsAny(msg, authPatterns):
		return outcome.Unauthorized
	case containsAny(msg, modelPatterns):
		return outcome.ModelUnavailable
	case strings.Contains(msg, "quota"):
		return outcome.RateLimited
	}
	return outcome.Fatal
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() || dnsErr.IsTimeout
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ETIMEDOUT:
			return true
		}
	}
	return false
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
