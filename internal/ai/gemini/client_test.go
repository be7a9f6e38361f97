package gemini

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/job-preprocessor/internal/ai"
)

const keywordsSchema = `{
  "type": "object",
  "required": ["ats_keywords"],
  "properties": {
    "ats_keywords": {"type": "array", "items": {"type": "string"}}
  }
}`

type fakeModels struct {
	mu    sync.Mutex
	calls []modelCall
	queue []fakeResponse
}

type modelCall struct {
	model  string
	prompt string
	config *genai.GenerateContentConfig
}

type fakeResponse struct {
	resp *genai.GenerateContentResponse
	err  error
}

func (f *fakeModels) enqueue(resp *genai.GenerateContentResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, fakeResponse{resp: resp, err: err})
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prompt := ""
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		prompt = contents[0].Parts[0].Text
	}
	f.calls = append(f.calls, modelCall{model: model, prompt: prompt, config: config})

	if len(f.queue) == 0 {
		return nil, errors.New("unexpected call")
	}
	res := f.queue[0]
	f.queue = f.queue[1:]
	return res.resp, res.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func noSleep(t *testing.T) {
	t.Helper()
	original := sleep
	sleep = func(context.Context, time.Duration) error { return nil }
	t.Cleanup(func() { sleep = original })
}

func request() ai.Request {
	return ai.Request{
		Name:        "requirements",
		Prompt:      "extract keywords",
		Model:       "gemini-pro",
		Schema:      ai.Schema{Name: "keywords", JSON: keywordsSchema},
		Temperature: 0.2,
		Backend:     ai.BackendGeminiAPI,
	}
}

func TestGeneratorExecute(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(textResponse("```json\n{\"ats_keywords\": [\"Go\", \"SQL\"]}\n```"), nil)

	g := newGenerator(models, ai.BackendGeminiAPI, Options{Logger: zap.NewNop()})

	doc, err := g.Execute(context.Background(), request())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	keywords, ok := doc["ats_keywords"].([]any)
	if !ok || len(keywords) != 2 || keywords[0] != "Go" {
		t.Fatalf("unexpected document: %#v", doc)
	}

	if len(models.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(models.calls))
	}

	call := models.calls[0]
	if call.model != "gemini-pro" || call.prompt != "extract keywords" {
		t.Fatalf("unexpected call: %+v", call)
	}
	if call.config.ResponseMIMEType != "application/json" {
		t.Fatalf("expected json mime type, got %q", call.config.ResponseMIMEType)
	}
	if call.config.Temperature == nil || *call.config.Temperature != float32(0.2) {
		t.Fatalf("unexpected temperature: %v", call.config.Temperature)
	}
	if call.config.ResponseSchema == nil || call.config.ResponseSchema.Type != genai.TypeObject {
		t.Fatalf("expected object response schema, got %+v", call.config.ResponseSchema)
	}
}

func TestGeneratorRetriesOnTemporaryError(t *testing.T) {
	noSleep(t)

	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"})
	models.enqueue(textResponse(`{"ats_keywords": []}`), nil)

	g := newGenerator(models, ai.BackendGeminiAPI, Options{MaxRetries: 2, Logger: zap.NewNop()})

	if _, err := g.Execute(context.Background(), request()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(models.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(models.calls))
	}
}

func TestGeneratorStopsAfterRetriesExhausted(t *testing.T) {
	noSleep(t)

	models := &fakeModels{}
	tempErr := genai.APIError{Code: http.StatusServiceUnavailable, Status: "UNAVAILABLE"}
	models.enqueue(nil, tempErr)
	models.enqueue(nil, tempErr)

	g := newGenerator(models, ai.BackendGeminiAPI, Options{MaxRetries: 2, Logger: zap.NewNop()})

	_, err := g.Execute(context.Background(), request())
	if !errors.Is(err, ai.ErrRequestFailure) {
		t.Fatalf("expected request failure, got %v", err)
	}

	if len(models.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(models.calls))
	}
}

func TestGeneratorDoesNotRetryOnLongQuotaDelay(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{
		Code:    http.StatusTooManyRequests,
		Status:  "RESOURCE_EXHAUSTED",
		Message: "quota exhausted, retry after 60 seconds",
	})

	g := newGenerator(models, ai.BackendGeminiAPI, Options{MaxRetries: 3, Logger: zap.NewNop()})

	if _, err := g.Execute(context.Background(), request()); err == nil {
		t.Fatal("expected error when quota delay too long")
	}

	if len(models.calls) != 1 {
		t.Fatalf("expected single call, got %d", len(models.calls))
	}
}

func TestGeneratorDoesNotRetryClientErrors(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"})

	g := newGenerator(models, ai.BackendGeminiAPI, Options{MaxRetries: 3, Logger: zap.NewNop()})

	if _, err := g.Execute(context.Background(), request()); err == nil {
		t.Fatal("expected error")
	}
	if len(models.calls) != 1 {
		t.Fatalf("expected single call, got %d", len(models.calls))
	}
}

func TestGeneratorRejectsInvalidResponse(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "not json", text: "sorry, I cannot help"},
		{name: "schema mismatch", text: `{"ats_keywords": "Go"}`},
		{name: "missing field", text: `{"keywords": ["Go"]}`},
		{name: "array root", text: `["Go"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			models := &fakeModels{}
			models.enqueue(textResponse(tt.text), nil)
			g := newGenerator(models, ai.BackendGeminiAPI, Options{Logger: zap.NewNop()})

			_, err := g.Execute(context.Background(), request())
			if !errors.Is(err, ai.ErrDecodingFailure) {
				t.Fatalf("expected decoding failure, got %v", err)
			}
		})
	}
}

func TestGeneratorConfigurationErrors(t *testing.T) {
	models := &fakeModels{}
	g := newGenerator(models, ai.BackendGeminiAPI, Options{Logger: zap.NewNop()})

	req := request()
	req.Model = "  "
	if _, err := g.Execute(context.Background(), req); !errors.Is(err, ai.ErrMisconfiguration) {
		t.Fatalf("expected misconfiguration, got %v", err)
	}

	req = request()
	req.Backend = ai.BackendVertexAI
	if _, err := g.Execute(context.Background(), req); !errors.Is(err, ai.ErrServiceUnavailable) {
		t.Fatalf("expected service unavailable, got %v", err)
	}

	req = request()
	req.Schema.JSON = `{"type": "tuple"}`
	if _, err := g.Execute(context.Background(), req); !errors.Is(err, ai.ErrMisconfiguration) {
		t.Fatalf("expected misconfiguration for bad schema, got %v", err)
	}

	var nilGen *Generator
	if _, err := nilGen.Execute(context.Background(), request()); !errors.Is(err, ai.ErrServiceUnavailable) {
		t.Fatalf("expected service unavailable for nil generator, got %v", err)
	}

	if len(models.calls) != 0 {
		t.Fatalf("expected no calls, got %d", len(models.calls))
	}
}

func TestRetryDelay(t *testing.T) {
	if _, ok := retryDelay(context.Canceled, 1); ok {
		t.Fatal("context cancellation must not be retried")
	}

	d, ok := retryDelay(genai.APIError{Code: http.StatusTooManyRequests, Message: "retry in 2.5s"}, 1)
	if !ok || d != 2500*time.Millisecond {
		t.Fatalf("expected 2.5s retry, got %v %v", d, ok)
	}

	d, ok = retryDelay(errors.New("connection reset"), 3)
	if !ok || d != 4*time.Second {
		t.Fatalf("expected 4s backoff, got %v %v", d, ok)
	}
}

func TestNewGeneratorRequiresCredentials(t *testing.T) {
	if _, err := NewGenerator(context.Background(), Options{Backend: ai.BackendGeminiAPI}); err == nil {
		t.Fatal("expected error without api key")
	}
	if _, err := NewGenerator(context.Background(), Options{Backend: ai.BackendVertexAI}); err == nil {
		t.Fatal("expected error without vertex project")
	}
}
