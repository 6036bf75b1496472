package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lukas-holzner/codefusion-hackathon/internal/httpkit"
)

const (
	providerAnthropic   = "anthropic"
	anthropicAPIURL     = "https://api.anthropic.com/v1/messages"
	anthropicAPIVersion = "2023-06-01"
)

// anthropicOpener is prepended when a prompt has no leading user turn.
// The Messages API rejects conversations that start with the assistant
// or contain no messages at all, which is exactly what the opening turn
// of a preparation conversation looks like.
const anthropicOpener = "Please start the conversation."

// AnthropicClient is a chat-only client for the Anthropic Messages API.
type AnthropicClient struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(apiKey string, logger *slog.Logger) *AnthropicClient {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("provider", providerAnthropic)
	return &AnthropicClient{
		apiKey:     apiKey,
		apiURL:     anthropicAPIURL,
		httpClient: httpkit.NewProviderClient(logger),
		logger:     logger,
	}
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicResponse struct {
	Model      string             `json:"model"`
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// ChatComplete sends a non-streaming Messages API request.
func (c *AnthropicClient) ChatComplete(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	msgs, system := convertToAnthropic(messages)

	jsonData, err := json.Marshal(anthropicRequest{
		Model:       opts.Model,
		Messages:    msgs,
		System:      system,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	})
	if err != nil {
		return "", upstream(providerAnthropic, OpChat, 0, fmt.Errorf("marshal request: %w", err))
	}
	c.logger.Log(ctx, LevelTrace, "chat request payload", "json", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return "", upstream(providerAnthropic, OpChat, 0, fmt.Errorf("create request: %w", err))
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", upstream(providerAnthropic, OpChat, 0, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		c.logger.Error("API error", "status", resp.StatusCode, "body", errBody)
		return "", upstream(providerAnthropic, OpChat, resp.StatusCode, fmt.Errorf("API error: %s", errBody))
	}

	var ar anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return "", upstream(providerAnthropic, OpChat, resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}

	var text strings.Builder
	for _, block := range ar.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", upstream(providerAnthropic, OpChat, resp.StatusCode, errEmptyReply)
	}

	c.logger.Debug("chat response",
		"model", ar.Model,
		"input_tokens", ar.Usage.InputTokens,
		"output_tokens", ar.Usage.OutputTokens,
		"stop_reason", ar.StopReason,
	)
	return text.String(), nil
}

// Ping sends a one-token request to verify the API key.
func (c *AnthropicClient) Ping(ctx context.Context) error {
	jsonData, err := json.Marshal(anthropicRequest{
		Model:     "claude-sonnet-4-20250514",
		Messages:  []anthropicMessage{{Role: RoleUser, Content: "ping"}},
		MaxTokens: 1,
	})
	if err != nil {
		return upstream(providerAnthropic, OpPing, 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return upstream(providerAnthropic, OpPing, 0, err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return upstream(providerAnthropic, OpPing, 0, fmt.Errorf("request failed: %w", err))
	}
	defer httpkit.DrainAndClose(resp.Body, 64<<10)

	if resp.StatusCode == http.StatusUnauthorized {
		return upstream(providerAnthropic, OpPing, resp.StatusCode, fmt.Errorf("invalid API key"))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return upstream(providerAnthropic, OpPing, resp.StatusCode, fmt.Errorf("unexpected status"))
	}
	return nil
}

func (c *AnthropicClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
}

// convertToAnthropic lifts system messages into the top-level system
// field and makes sure the remaining turns start with a user message.
func convertToAnthropic(messages []Message) ([]anthropicMessage, string) {
	var systemParts []string
	var result []anthropicMessage

	for _, msg := range messages {
		if msg.Role == RoleSystem {
			systemParts = append(systemParts, msg.Content)
			continue
		}
		result = append(result, anthropicMessage{Role: msg.Role, Content: msg.Content})
	}

	if len(result) == 0 || result[0].Role != RoleUser {
		result = append([]anthropicMessage{{Role: RoleUser, Content: anthropicOpener}}, result...)
	}

	return result, strings.Join(systemParts, "\n\n")
}
