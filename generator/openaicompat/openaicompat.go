package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/time/rate"

	"github.com/ineyio/botledger"
)

// DefaultModel is the upstream model used when a ledger key has no mapping.
const DefaultModel = "minimaxai/minimax-m2.5"

// Generator is a universal OpenAI-compatible chat completions client.
// Works with NVIDIA NIM, OpenAI, Ollama, and others.
type Generator struct {
	name        string
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	models      map[string]string
	temperature float64
	topP        float64
	maxTokens   int
	limiter     *rate.Limiter
}

var _ botledger.Generator = (*Generator)(nil)

// Option configures the generator.
type Option func(*Generator)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Generator) { g.httpClient = c }
}

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) Option {
	return func(g *Generator) { g.apiKey = key }
}

// WithModels maps ledger model keys to upstream model ids.
func WithModels(models map[string]string) Option {
	return func(g *Generator) {
		g.models = make(map[string]string, len(models))
		for k, v := range models {
			g.models[k] = v
		}
	}
}

// WithSampling sets temperature, top_p and max_tokens.
func WithSampling(temperature, topP float64, maxTokens int) Option {
	return func(g *Generator) {
		g.temperature = temperature
		g.topP = topP
		g.maxTokens = maxTokens
	}
}

// WithRateLimit caps outgoing requests at r per second with the given burst.
// Callers wait for a slot or until their context ends.
func WithRateLimit(r float64, burst int) Option {
	return func(g *Generator) { g.limiter = rate.NewLimiter(rate.Limit(r), burst) }
}

// New creates a new OpenAI-compatible generator.
func New(name, baseURL string, opts ...Option) *Generator {
	g := &Generator{
		name:        name,
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  http.DefaultClient,
		temperature: 1,
		topP:        0.95,
		maxTokens:   8192,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewNVIDIA creates a generator for the NVIDIA integrate API.
func NewNVIDIA(opts ...Option) *Generator {
	return New("nvidia", "https://integrate.api.nvidia.com/v1", opts...)
}

// NewOpenAI creates a generator for OpenAI.
func NewOpenAI(opts ...Option) *Generator {
	return New("openai", "https://api.openai.com/v1", opts...)
}

func (g *Generator) Name() string { return g.name }

func (g *Generator) upstreamModel(key string) string {
	if m, ok := g.models[key]; ok {
		return m
	}
	return DefaultModel
}

type apiRequest struct {
	Model       string       `json:"model"`
	Messages    []apiMessage `json:"messages"`
	Temperature float64      `json:"temperature"`
	TopP        float64      `json:"top_p"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Stream      bool         `json:"stream"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int        `json:"index"`
		Message      apiMessage `json:"message"`
		FinishReason string     `json:"finish_reason"`
	} `json:"choices"`
}

func (g *Generator) Generate(ctx context.Context, req botledger.GenerateRequest) (botledger.GenerateResponse, error) {
	if req.Kind == botledger.KindImage {
		return botledger.GenerateResponse{}, fmt.Errorf("%w: %s does not generate images", botledger.ErrInvalidRequest, g.name)
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return botledger.GenerateResponse{}, fmt.Errorf("%w: %v", botledger.ErrRateLimited, err)
		}
	}

	msgs := req.Messages
	if len(msgs) == 0 {
		msgs = []botledger.Message{{Role: botledger.RoleUser, Content: req.Prompt}}
	}

	body := apiRequest{
		Model:       g.upstreamModel(req.Model),
		Messages:    make([]apiMessage, len(msgs)),
		Temperature: g.temperature,
		TopP:        g.topP,
		MaxTokens:   g.maxTokens,
	}
	for i, m := range msgs {
		body.Messages[i] = apiMessage{Role: m.Role, Content: m.Content}
	}

	httpResp, err := g.doRequest(ctx, body)
	if err != nil {
		return botledger.GenerateResponse{}, err
	}
	defer httpResp.Body.Close()

	if err := mapHTTPError(httpResp); err != nil {
		return botledger.GenerateResponse{}, err
	}

	var resp apiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return botledger.GenerateResponse{}, fmt.Errorf("botledger/openaicompat: decode response: %w", err)
	}

	if len(resp.Choices) == 0 {
		return botledger.GenerateResponse{}, fmt.Errorf("botledger/openaicompat: empty choices in response")
	}

	return botledger.GenerateResponse{
		ID:      resp.ID,
		Content: CleanReply(resp.Choices[0].Message.Content),
		Model:   req.Model,
	}, nil
}

func (g *Generator) doRequest(ctx context.Context, body apiRequest) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("botledger/openaicompat: marshal request: %w", err)
	}

	url := g.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("botledger/openaicompat: create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", botledger.ErrGeneratorUnavailable, err)
	}

	return resp, nil
}

func mapHTTPError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Read body for error context, but don't fail if we can't.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return botledger.ErrRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		return botledger.ErrAuthFailed
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", botledger.ErrInvalidRequest, string(body))
	default:
		return botledger.ErrGeneratorUnavailable
	}
}

var (
	thinkRe   = regexp.MustCompile(`(?s)<think>.*?</think>`)
	headingRe = regexp.MustCompile(`##+ `)
	tableRe   = regexp.MustCompile(`\|\s*-+\s*\|`)
	pipeRe    = regexp.MustCompile(`(?m)^\s*\|\s*`)
)

// CleanReply removes reasoning blocks and the markdown a chat client cannot
// render (bold markers, headings, table rules).
func CleanReply(s string) string {
	s = strings.TrimSpace(thinkRe.ReplaceAllString(s, ""))
	s = strings.ReplaceAll(s, "**", "")
	s = headingRe.ReplaceAllString(s, "")
	s = tableRe.ReplaceAllString(s, "")
	s = pipeRe.ReplaceAllString(s, "")
	return s
}
