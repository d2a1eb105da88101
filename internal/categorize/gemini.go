package categorize

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiClassifier is the hosted-LLM implementation of Classifier. API
// credentials come from the environment (GEMINI_API_KEY / GOOGLE_API_KEY),
// the same way the rest of the genai tooling picks them up.
type GeminiClassifier struct {
	client *genai.Client
	model  string
}

// NewGeminiClassifier creates a classifier bound to one model name.
func NewGeminiClassifier(ctx context.Context, model string) (*GeminiClassifier, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiClassifier{client: client, model: model}, nil
}

// Classify sends the prompt and returns the raw response text. Transport and
// auth failures surface as errors; response-shape problems are left to the
// resolver's parser.
func (g *GeminiClassifier) Classify(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from model %s", g.model)
	}
	return text, nil
}
