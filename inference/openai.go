package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"github.com/snow-ghost/probe/core"
	"github.com/snow-ghost/probe/pkg/limiter"
	"github.com/snow-ghost/probe/pkg/logging"
	"github.com/snow-ghost/probe/pkg/metrics"
	"github.com/snow-ghost/probe/pkg/tokens"
	"github.com/snow-ghost/probe/pkg/tracing"
)

const systemPrompt = `You propose realistic test inputs for functions.
Reply with a single JSON object of the form
{"parameters": {"<name>": {"value": <json value>, "rationale": "<short reason>"}}}
with one entry per requested parameter. Values must match the declared Go or WebAssembly type:
numbers for integer and float types, strings for string, true/false for bool, arrays for slices,
objects for maps and structs. Never use null unless the type is a pointer or interface.`

// OpenAIConfig configures an OpenAI-compatible chat endpoint.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string // empty means the public OpenAI API
	Model          string
	Temperature    float32
	MaxTokens      int
	DocTokenBudget int
	RPS            float64
	Burst          int
	MaxRetries     int // 0 keeps the default, negative disables retries
}

// OpenAIClient implements Client using go-openai in JSON mode, behind a rate
// limiter, retries and a circuit breaker.
type OpenAIClient struct {
	client     *openai.Client
	config     OpenAIConfig
	endpoint   string
	protection *limiter.ProtectionManager
	tokens     *tokens.EncoderRegistry
	logger     *logging.Logger
	metrics    *metrics.PrometheusMetrics
	tracer     *tracing.Tracer
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(cfg OpenAIConfig, enc *tokens.EncoderRegistry, logger *logging.Logger, m *metrics.PrometheusMetrics, tracer *tracing.Tracer) *OpenAIClient {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.DocTokenBudget <= 0 {
		cfg.DocTokenBudget = 512
	}
	if enc == nil {
		enc = tokens.NewOfflineRegistry()
	}
	logger = logging.OrNop(logger).WithComponent("inference")

	c := &OpenAIClient{
		client:   openai.NewClientWithConfig(config),
		config:   cfg,
		endpoint: config.BaseURL,
		tokens:   enc,
		logger:   logger,
		metrics:  m,
		tracer:   tracer,
	}

	retryConfig := limiter.DefaultRetryConfig()
	switch {
	case cfg.MaxRetries > 0:
		retryConfig.MaxRetries = cfg.MaxRetries
	case cfg.MaxRetries < 0:
		retryConfig.MaxRetries = 0
	}
	retries := limiter.NewRetryManager(retryConfig)
	retries.OnRetry(func(attempt int, err error) {
		reason := Reason(err)
		logger.LogRetry(context.Background(), c.endpoint, cfg.Model, reason, attempt)
		m.RecordRetry(cfg.Model, reason)
	})
	breakers := limiter.NewCircuitBreakerManager(func(name string, from, to gobreaker.State) {
		logger.LogCircuitBreaker(context.Background(), name, from.String(), to.String())
		m.RecordCircuitTransition(name, to.String())
	})
	c.protection = limiter.NewProtectionManager(limiter.NewRateLimiter(cfg.RPS, cfg.Burst), retries, breakers)
	return c
}

func (c *OpenAIClient) Model() string { return c.config.Model }

// Infer sends one chat completion asking for every parameter of req.
func (c *OpenAIClient) Infer(ctx context.Context, req Request) (map[string]Suggestion, error) {
	ctx, span := c.tracer.StartGenerateSpan(ctx, req.Callable, c.config.Model, len(req.Params))
	defer span.End()
	start := time.Now()

	prompt, err := c.prompt(req)
	if err != nil {
		return nil, err
	}

	request := openai.ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature:    c.config.Temperature,
		MaxTokens:      c.config.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	result, err := c.protection.ExecuteWithProtection(ctx, "inference:"+c.config.Model, func(ctx context.Context) (interface{}, error) {
		resp, err := c.client.CreateChatCompletion(ctx, request)
		if err != nil {
			return nil, classify(err)
		}
		return resp, nil
	})
	if err != nil {
		c.metrics.RecordInference(c.config.Model, "error", time.Since(start))
		tracing.RecordSpanError(span, err)
		return nil, fmt.Errorf("openai chat completion failed: %w", err)
	}

	resp := result.(openai.ChatCompletionResponse)
	c.metrics.RecordTokens(c.config.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	if len(resp.Choices) == 0 {
		c.metrics.RecordInference(c.config.Model, "malformed", time.Since(start))
		return nil, fmt.Errorf("%w: no choices", ErrMalformed)
	}

	out, err := ParseSuggestions(resp.Choices[0].Message.Content, req)
	if err != nil {
		c.metrics.RecordInference(c.config.Model, "malformed", time.Since(start))
		tracing.RecordSpanError(span, err)
		return nil, err
	}
	c.metrics.RecordInference(c.config.Model, "ok", time.Since(start))
	tracing.RecordSpanDuration(span, time.Since(start))
	tracing.RecordSpanSuccess(span)
	return out, nil
}

// prompt renders the request as JSON, with the doc comment cut to the token budget.
func (c *OpenAIClient) prompt(req Request) (string, error) {
	req.Doc = c.tokens.Truncate(c.config.Model, req.Doc, c.config.DocTokenBudget)
	body, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}
	return "Propose one value for each parameter of this callable:\n" + string(body), nil
}

// classify maps go-openai errors onto limiter.HTTPError so the retry policy can see status codes.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return limiter.NewHTTPError(apiErr.HTTPStatusCode, apiErr.Message, "")
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return limiter.NewHTTPError(reqErr.HTTPStatusCode, reqErr.Error(), "")
	}
	return err
}

// ParseSuggestions reads the JSON reply of the service. Besides the
// {"parameters": {...}} envelope it accepts a bare {"value": ...} object when
// a single parameter was requested.
func ParseSuggestions(content string, req Request) (map[string]Suggestion, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var env struct {
		Parameters map[string]json.RawMessage `json:"parameters"`
		Value      json.RawMessage            `json:"value"`
		Rationale  string                     `json:"rationale"`
	}
	if err := json.Unmarshal([]byte(content), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	out := make(map[string]Suggestion)
	if env.Parameters == nil {
		if len(req.Params) == 1 && len(env.Value) > 0 {
			v, err := decodeValue(env.Value)
			if err != nil {
				return nil, err
			}
			out[req.Params[0].Name] = Suggestion{Value: v, Rationale: env.Rationale}
			return out, nil
		}
		return nil, fmt.Errorf("%w: missing parameters object", ErrMalformed)
	}

	for name, raw := range env.Parameters {
		var entry struct {
			Value     json.RawMessage `json:"value"`
			Rationale string          `json:"rationale"`
		}
		if err := json.Unmarshal(raw, &entry); err != nil || len(entry.Value) == 0 {
			// malformed entries are left out and fall back individually
			continue
		}
		v, err := decodeValue(entry.Value)
		if err != nil {
			continue
		}
		out[name] = Suggestion{Value: v, Rationale: entry.Rationale}
	}
	return out, nil
}

func decodeValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return core.Normalize(v), nil
}

var _ Client = (*OpenAIClient)(nil)
