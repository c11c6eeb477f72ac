// Package gemini is a Generator for the Google Gemini API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/ineyio/botledger"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.0-flash"
)

// Generator is the Gemini API adapter.
type Generator struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	models     map[string]string
	limiter    *rate.Limiter
}

var _ botledger.Generator = (*Generator)(nil)

// Option configures the generator.
type Option func(*Generator)

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) Option {
	return func(g *Generator) { g.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Generator) { g.httpClient = c }
}

// WithModels maps ledger model keys to Gemini model ids.
// Unmapped keys use gemini-2.0-flash.
func WithModels(models map[string]string) Option {
	return func(g *Generator) { g.models = models }
}

// WithRateLimit caps outgoing requests at r per second with the given burst.
func WithRateLimit(r float64, burst int) Option {
	return func(g *Generator) { g.limiter = rate.NewLimiter(rate.Limit(r), burst) }
}

// New creates a new Gemini generator.
func New(apiKey string, opts ...Option) *Generator {
	g := &Generator{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) Name() string { return "gemini" }

// Gemini API types.
type geminiRequest struct {
	SystemInstruction *geminiContent `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	ResponseID string `json:"responseId"`
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

func (g *Generator) Generate(ctx context.Context, req botledger.GenerateRequest) (botledger.GenerateResponse, error) {
	if req.Kind == botledger.KindImage {
		return botledger.GenerateResponse{}, fmt.Errorf("%w: gemini does not generate images", botledger.ErrInvalidRequest)
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return botledger.GenerateResponse{}, fmt.Errorf("%w: %v", botledger.ErrRateLimited, err)
		}
	}

	model := defaultModel
	if m, ok := g.models[req.Model]; ok {
		model = m
	}
	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, model)

	httpResp, err := g.doRequest(ctx, url, buildRequest(req))
	if err != nil {
		return botledger.GenerateResponse{}, err
	}
	defer httpResp.Body.Close()

	if err := mapHTTPError(httpResp); err != nil {
		return botledger.GenerateResponse{}, err
	}

	var resp geminiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return botledger.GenerateResponse{}, fmt.Errorf("botledger/gemini: decode response: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return botledger.GenerateResponse{}, fmt.Errorf("botledger/gemini: empty candidates in response")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}

	return botledger.GenerateResponse{
		ID:      resp.ResponseID,
		Content: sb.String(),
		Model:   req.Model,
	}, nil
}

// buildRequest moves system messages into systemInstruction; Gemini calls
// the assistant role "model".
func buildRequest(req botledger.GenerateRequest) geminiRequest {
	msgs := req.Messages
	if len(msgs) == 0 {
		msgs = []botledger.Message{{Role: botledger.RoleUser, Content: req.Prompt}}
	}

	var gr geminiRequest
	for _, m := range msgs {
		switch m.Role {
		case botledger.RoleSystem:
			if gr.SystemInstruction == nil {
				gr.SystemInstruction = &geminiContent{}
			}
			gr.SystemInstruction.Parts = append(gr.SystemInstruction.Parts, geminiPart{Text: m.Content})
		case botledger.RoleAssistant:
			gr.Contents = append(gr.Contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		default:
			gr.Contents = append(gr.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}
	return gr
}

func (g *Generator) doRequest(ctx context.Context, url string, body geminiRequest) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("botledger/gemini: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("botledger/gemini: create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

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
