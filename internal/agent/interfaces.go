package agent

import "context"

type AIClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteJSON(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	CompleteJSONWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Schema describes a JSON document the model must produce.
type Schema struct {
	Name        string
	Description string
	Definition  any
}

// StructuredClient is implemented by backends that can enforce a JSON schema
// on the response instead of only asking for JSON.
type StructuredClient interface {
	CompleteStructured(ctx context.Context, systemPrompt, userPrompt string, schema Schema) (string, error)
}

// ImageAnalyzer describes a picture in words.
type ImageAnalyzer interface {
	DescribeImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error)
}
