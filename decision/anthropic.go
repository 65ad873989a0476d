package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type anthropicClient struct {
	model  string
	apiKey string
	http   *http.Client
	usage  *TokenUsage
}

func (c *anthropicClient) name() string { return "anthropic" }

func (c *anthropicClient) generate(ctx context.Context, prompt string) (string, int, error) {
	body, err := json.Marshal(map[string]any{
		"model":      c.model,
		"max_tokens": 2048,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	})
	if err != nil {
		return "", 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://api.anthropic.com/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("anthropic request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", 0, fmt.Errorf("anthropic status %d: %s", resp.StatusCode, b)
	}

	var out struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, fmt.Errorf("anthropic decode: %w", err)
	}
	if len(out.Content) == 0 {
		return "", 0, fmt.Errorf("anthropic: empty response")
	}

	if c.usage != nil {
		c.usage.Add(out.Usage.InputTokens, out.Usage.OutputTokens)
	}
	return out.Content[0].Text, out.Usage.InputTokens + out.Usage.OutputTokens, nil
}
