package genai

import "context"

// Request describes one generation call to the remote model.
type Request struct {
	// Model is the model identifier.
	Model string

	// System is the system prompt framing the task.
	System string

	// Prompt is the user-facing prompt text.
	Prompt string

	// JSONResponse asks the endpoint to constrain the response to a
	// JSON object.
	JSONResponse bool

	// MaxTokens bounds the completion length (0 = provider default).
	MaxTokens int
}

// Generator is the remote generation endpoint. The credential is passed
// per call so a credential changed mid-backoff is honored on the next
// attempt. Implementations surface failures as errors that Classify can
// bucket; they do not retry internally.
type Generator interface {
	Generate(ctx context.Context, credential string, req Request) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, credential string, req Request) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, credential string, req Request) (string, error) {
	return f(ctx, credential, req)
}
