package decision

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// llmClient is the capability every provider shares: turn a prompt into
// text and report token consumption. The rest of the package only depends
// on this interface, never on a concrete provider.
type llmClient interface {
	generate(ctx context.Context, prompt string) (text string, tokens int, err error)
	name() string
}

// NewClient selects a provider by model-name prefix: "gemini-*" goes to
// Google, "gpt-*" to OpenAI, "claude-*" to Anthropic.
func newClient(model, apiKey string, usage *TokenUsage) (llmClient, error) {
	httpc := &http.Client{Timeout: 60 * time.Second}

	switch {
	case strings.HasPrefix(model, "gemini"):
		return &geminiClient{model: model, apiKey: apiKey, http: httpc, usage: usage}, nil
	case strings.HasPrefix(model, "gpt"):
		return &openaiClient{model: model, apiKey: apiKey, http: httpc, usage: usage}, nil
	case strings.HasPrefix(model, "claude"):
		return &anthropicClient{model: model, apiKey: apiKey, http: httpc, usage: usage}, nil
	default:
		return nil, fmt.Errorf("no provider for model %q", model)
	}
}

// extractJSON strips any prose around the first top-level JSON object in a
// provider response.
func extractJSON(s string) (string, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object in response")
	}
	return s[start : end+1], nil
}
