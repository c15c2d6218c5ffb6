// Package jsonextract pulls a JSON value out of free-form model output.
// Route handlers use it on the text the gateway returns; the gateway itself
// never post-processes provider output.
package jsonextract

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ErrNoJSON is returned when the text contains nothing that looks like JSON.
var ErrNoJSON = errors.New("jsonextract: no JSON found in text")

// Shape restricts what Extract looks for.
type Shape int

const (
	Any Shape = iota
	Array
	Object
)

var fenced = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*```")

// Extract returns the first JSON value of the given shape. A fenced code
// block wins over bare text. Truncated or sloppy JSON (trailing commas,
// single quotes, unclosed brackets) is repaired.
func Extract(text string, shape Shape) (json.RawMessage, error) {
	candidate := ""
	if m := fenced.FindStringSubmatch(text); m != nil {
		candidate = span(m[1], shape)
	}
	if candidate == "" {
		candidate = span(text, shape)
	}
	if candidate == "" {
		return nil, ErrNoJSON
	}

	if json.Valid([]byte(candidate)) {
		return json.RawMessage(candidate), nil
	}

	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return nil, fmt.Errorf("jsonextract: repair failed: %w", err)
	}
	if !json.Valid([]byte(repaired)) {
		return nil, fmt.Errorf("jsonextract: repaired text is still not JSON")
	}
	return json.RawMessage(repaired), nil
}

// span cuts text from the first opening bracket to the last matching closing
// one. Without a closer the rest of the text is returned for repair.
func span(text string, shape Shape) string {
	start := -1
	var closer byte
	switch shape {
	case Array:
		start, closer = strings.IndexByte(text, '['), ']'
	case Object:
		start, closer = strings.IndexByte(text, '{'), '}'
	default:
		obj := strings.IndexByte(text, '{')
		arr := strings.IndexByte(text, '[')
		switch {
		case obj < 0 && arr < 0:
		case arr < 0 || (obj >= 0 && obj < arr):
			start, closer = obj, '}'
		default:
			start, closer = arr, ']'
		}
	}
	if start < 0 {
		return ""
	}

	end := strings.LastIndexByte(text, closer)
	if end < start {
		return strings.TrimSpace(text[start:])
	}
	return text[start : end+1]
}
