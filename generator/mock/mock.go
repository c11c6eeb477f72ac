package mock

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ineyio/botledger"
)

// Generator is a mock generation backend for testing.
type Generator struct {
	name         string
	latency      time.Duration
	failAfter    int
	callCount    atomic.Int64
	staticErr    error
	reply        string
	responseFunc func(botledger.GenerateRequest) (botledger.GenerateResponse, error)
}

var _ botledger.Generator = (*Generator)(nil)

// Option configures a mock Generator.
type Option func(*Generator)

// New creates a mock generator with the given options.
func New(opts ...Option) *Generator {
	g := &Generator{
		name:  "mock",
		reply: "Hello from mock generator",
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// WithName sets the generator name.
func WithName(name string) Option {
	return func(g *Generator) { g.name = name }
}

// WithLatency adds simulated latency to each call.
func WithLatency(d time.Duration) Option {
	return func(g *Generator) { g.latency = d }
}

// WithFailAfter makes the generator fail after N successful calls.
func WithFailAfter(n int) Option {
	return func(g *Generator) { g.failAfter = n }
}

// WithError makes the generator always return this error.
func WithError(err error) Option {
	return func(g *Generator) { g.staticErr = err }
}

// WithReply sets the text content returned by the mock.
func WithReply(s string) Option {
	return func(g *Generator) { g.reply = s }
}

// WithResponseFunc sets a custom response function.
func WithResponseFunc(fn func(botledger.GenerateRequest) (botledger.GenerateResponse, error)) Option {
	return func(g *Generator) { g.responseFunc = fn }
}

func (g *Generator) Name() string { return g.name }

func (g *Generator) Generate(ctx context.Context, req botledger.GenerateRequest) (botledger.GenerateResponse, error) {
	if g.latency > 0 {
		select {
		case <-time.After(g.latency):
		case <-ctx.Done():
			return botledger.GenerateResponse{}, ctx.Err()
		}
	}

	count := g.callCount.Add(1)

	if g.staticErr != nil {
		return botledger.GenerateResponse{}, g.staticErr
	}

	if g.failAfter > 0 && int(count) > g.failAfter {
		return botledger.GenerateResponse{}, botledger.ErrGeneratorUnavailable
	}

	if g.responseFunc != nil {
		return g.responseFunc(req)
	}

	resp := botledger.GenerateResponse{
		ID:    "mock-response-id",
		Model: req.Model,
	}
	if req.Kind == botledger.KindImage {
		resp.Image = []byte("mock-image")
	} else {
		resp.Content = g.reply
	}
	return resp, nil
}

// CallCount returns the number of calls made to the generator.
func (g *Generator) CallCount() int64 { return g.callCount.Load() }
