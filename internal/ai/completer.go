// Package ai defines the structured completion boundary used by the pipeline:
// a request carrying a prompt, a model id and a JSON Schema, and a completer that
// returns a document already validated against that schema.
package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Backend selects the API surface a completer talks to.
type Backend string

const (
	BackendGeminiAPI Backend = "gemini-api"
	BackendVertexAI  Backend = "vertex-ai"
)

// ParseBackend accepts the configuration spelling of a backend.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case "", BackendGeminiAPI:
		return BackendGeminiAPI, nil
	case BackendVertexAI:
		return b, nil
	default:
		return "", fmt.Errorf("unknown ai backend %q", s)
	}
}

// Schema is a named JSON Schema document describing the expected response.
type Schema struct {
	Name string
	JSON string
}

// Request is a single structured completion call.
type Request struct {
	// Name identifies the call in logs, e.g. "requirements".
	Name        string
	Prompt      string
	Model       string
	Schema      Schema
	Temperature float64
	Backend     Backend
}

//go:generate mockgen -source=completer.go -destination=../mocks/mock_completer.go -package=mocks

// Completer executes structured completions. Implementations own transport,
// retries and timeouts; the returned document always satisfies req.Schema.
type Completer interface {
	Execute(ctx context.Context, req Request) (map[string]any, error)
}

// ExecuteInto runs req and decodes the validated document into T.
func ExecuteInto[T any](ctx context.Context, c Completer, req Request) (T, error) {
	var zero T
	if c == nil {
		return zero, NewError(KindServiceUnavailable, req.Name, fmt.Errorf("no completer configured"))
	}

	doc, err := c.Execute(ctx, req)
	if err != nil {
		return zero, err
	}

	out, err := Decode[T](doc)
	if err != nil {
		return zero, NewError(KindDecodingFailure, req.Name, err)
	}
	return out, nil
}

// Decode maps a generic JSON document onto T using json tags. Scalars are
// converted loosely ("0.8" into a float, a lone string into a one-item list)
// because models are not always strict about types.
func Decode[T any](doc map[string]any) (T, error) {
	var out T
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return out, err
	}
	if err := decoder.Decode(doc); err != nil {
		return out, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}
