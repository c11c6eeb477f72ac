package botledger

import "context"

// Generator is the interface generation backends must implement.
// The ledger never inspects what a generator produces beyond the text
// reply it records in history.
type Generator interface {
	// Name returns the generator identifier (e.g. "openai", "mock").
	Name() string

	// Generate performs one request.
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
}

// GenerateRequest is the request sent to a generator.
type GenerateRequest struct {
	Model    string
	Kind     ModelKind
	Prompt   string
	Messages []Message // system prompt, history, then Prompt as the last user turn
}

// GenerateResponse is the response from a generator.
type GenerateResponse struct {
	ID      string
	Content string
	Image   []byte
	Model   string
}

// GenerateResult is what Ledger.Generate returns to the transport layer.
type GenerateResult struct {
	Response  GenerateResponse
	Remaining int64
}
