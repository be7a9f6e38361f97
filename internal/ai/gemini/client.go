package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/job-preprocessor/internal/ai"
	"github.com/spigell/job-preprocessor/internal/logger"
	"github.com/spigell/job-preprocessor/internal/schemas"
	"github.com/spigell/job-preprocessor/internal/utils"
)

const (
	defaultMaxRetries   = 2
	defaultMaxLogLength = 200
	baseRetryDelay      = time.Second
	// Quota errors asking to come back later than this are not worth blocking a job slot for.
	maxQuotaDelay = 30 * time.Second
)

// sleep waits between attempts; tests swap it out.
var sleep = utils.WaitFor

var retryAfterRe = regexp.MustCompile(`(?i)retry (?:after|in) ([0-9]+(?:\.[0-9]+)?)\s*s`)

type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Options configures a Generator.
type Options struct {
	APIKey   string
	Backend  ai.Backend
	Project  string
	Location string
	// MaxRetries is the total number of attempts per call.
	MaxRetries   int
	MaxLogLength int
	Logger       *zap.Logger
}

// Generator is an ai.Completer backed by the Google GenAI SDK.
type Generator struct {
	models     modelsAPI
	backend    ai.Backend
	maxRetries int
	maxLogLen  int
	logger     *zap.Logger

	schemaMu sync.Mutex
	compiled map[string]compiledSchema
}

type compiledSchema struct {
	validator *schemas.Schema
	genai     *genai.Schema
}

// NewGenerator creates a Generator for the configured backend.
func NewGenerator(ctx context.Context, opts Options) (*Generator, error) {
	backend := opts.Backend
	if backend == "" {
		backend = ai.BackendGeminiAPI
	}

	cfg := &genai.ClientConfig{}
	switch backend {
	case ai.BackendGeminiAPI:
		apiKey := strings.TrimSpace(opts.APIKey)
		if apiKey == "" {
			return nil, errors.New("gemini api key is required")
		}
		cfg.APIKey = apiKey
		cfg.Backend = genai.BackendGeminiAPI
	case ai.BackendVertexAI:
		if strings.TrimSpace(opts.Project) == "" || strings.TrimSpace(opts.Location) == "" {
			return nil, errors.New("vertex ai backend requires project and location")
		}
		cfg.Project = opts.Project
		cfg.Location = opts.Location
		cfg.Backend = genai.BackendVertexAI
	default:
		return nil, fmt.Errorf("unsupported backend %q", backend)
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newGenerator(client.Models, backend, opts), nil
}

func newGenerator(models modelsAPI, backend ai.Backend, opts Options) *Generator {
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	maxLogLen := opts.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = defaultMaxLogLength
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Generator{
		models:     models,
		backend:    backend,
		maxRetries: maxRetries,
		maxLogLen:  maxLogLen,
		logger:     log,
		compiled:   make(map[string]compiledSchema),
	}
}

// Backend returns the backend this generator was created for.
func (g *Generator) Backend() ai.Backend {
	if g == nil {
		return ""
	}
	return g.backend
}

// Execute sends req to Gemini with a response schema and returns the validated document.
func (g *Generator) Execute(ctx context.Context, req ai.Request) (map[string]any, error) {
	op := req.Name
	if g == nil || g.models == nil {
		return nil, ai.NewError(ai.KindServiceUnavailable, op, errors.New("gemini generator is not initialized"))
	}
	if req.Backend != "" && req.Backend != g.backend {
		return nil, ai.NewError(ai.KindServiceUnavailable, op, fmt.Errorf("backend %s is not configured", req.Backend))
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		return nil, ai.NewError(ai.KindMisconfiguration, op, errors.New("model is not set"))
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, ai.NewError(ai.KindRequestFailure, op, errors.New("prompt must not be empty"))
	}

	schema, err := g.schema(req.Schema)
	if err != nil {
		return nil, ai.NewError(ai.KindMisconfiguration, op, err)
	}

	temperature := float32(req.Temperature)
	cfg := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema.genai,
	}

	log := logger.WithCommonFields(g.logger, "gemini", model).With(zap.String("request", op))
	log.Debug("gemini generate content request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, g.maxLogLen)),
	)

	raw, err := g.generateWithRetry(ctx, log, model, prompt, cfg)
	if err != nil {
		return nil, ai.NewError(ai.KindRequestFailure, op, err)
	}

	log.Debug("gemini generate content response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, g.maxLogLen)),
	)

	var doc map[string]any
	if err := json.Unmarshal([]byte(extractJSON(raw)), &doc); err != nil {
		return nil, ai.NewError(ai.KindDecodingFailure, op, fmt.Errorf("parse gemini response: %w", err))
	}
	if doc == nil {
		return nil, ai.NewError(ai.KindDecodingFailure, op, errors.New("gemini response is not a json object"))
	}
	if err := schema.validator.ValidateDocument(doc); err != nil {
		return nil, ai.NewError(ai.KindDecodingFailure, op, err)
	}

	return doc, nil
}

func (g *Generator) schema(s ai.Schema) (compiledSchema, error) {
	name := s.Name
	if name == "" {
		name = "response"
	}

	g.schemaMu.Lock()
	defer g.schemaMu.Unlock()

	key := name + "\x00" + s.JSON
	if c, ok := g.compiled[key]; ok {
		return c, nil
	}

	validator, err := schemas.Compile(name, s.JSON)
	if err != nil {
		return compiledSchema{}, err
	}
	converted, err := ToGenaiSchema(s.JSON)
	if err != nil {
		return compiledSchema{}, fmt.Errorf("convert schema %s: %w", name, err)
	}

	c := compiledSchema{validator: validator, genai: converted}
	g.compiled[key] = c
	return c, nil
}

func (g *Generator) generateWithRetry(ctx context.Context, log *zap.Logger, model, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		resp, err := g.models.GenerateContent(ctx, model, genai.Text(prompt), cfg)
		if err == nil {
			return responseText(resp)
		}
		lastErr = err

		delay, retryable := retryDelay(err, attempt)
		if !retryable || attempt == g.maxRetries {
			break
		}

		log.Warn("retrying gemini request after temporary error",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", g.maxRetries),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if err := sleep(ctx, delay); err != nil {
			return "", fmt.Errorf("retry cancelled: %w", err)
		}
	}

	return "", fmt.Errorf("generate content: %w", lastErr)
}

// retryDelay decides whether err is temporary and how long to wait before the
// next attempt.
func retryDelay(err error, attempt int) (time.Duration, bool) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	backoff := baseRetryDelay * time.Duration(math.Pow(2, float64(attempt-1)))

	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		// Transport level failures.
		return backoff, true
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		if m := retryAfterRe.FindStringSubmatch(apiErr.Message); m != nil {
			seconds, perr := strconv.ParseFloat(m[1], 64)
			if perr == nil {
				wait := time.Duration(seconds * float64(time.Second))
				if wait > maxQuotaDelay {
					return 0, false
				}
				return wait, true
			}
		}
		return backoff, true
	case apiErr.Code >= http.StatusInternalServerError:
		return backoff, true
	default:
		return 0, false
	}
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", errors.New("gemini api returned no response")
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			builder.WriteString(text)
		}
		// Only the first candidate carries the answer; the rest are alternatives.
		if builder.Len() > 0 {
			break
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}

	return output, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}
