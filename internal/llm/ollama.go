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

const providerOllama = "ollama"

// OllamaClient is a chat-only client for a local Ollama server.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(baseURL string, logger *slog.Logger) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("provider", providerOllama)
	return &OllamaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpkit.NewProviderClient(logger),
		logger:     logger,
	}
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Model           string  `json:"model"`
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	PromptEvalCount int     `json:"prompt_eval_count,omitempty"`
	EvalCount       int     `json:"eval_count,omitempty"`
}

// ChatComplete sends a non-streaming chat request to Ollama.
func (c *OllamaClient) ChatComplete(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	jsonData, err := json.Marshal(ollamaChatRequest{
		Model:    opts.Model,
		Messages: messages,
		Options: &ollamaOptions{
			Temperature: opts.Temperature,
			NumPredict:  opts.MaxTokens,
		},
	})
	if err != nil {
		return "", upstream(providerOllama, OpChat, 0, fmt.Errorf("marshal request: %w", err))
	}
	c.logger.Log(ctx, LevelTrace, "chat request payload", "json", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return "", upstream(providerOllama, OpChat, 0, fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", upstream(providerOllama, OpChat, 0, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 4096)
		return "", upstream(providerOllama, OpChat, resp.StatusCode, fmt.Errorf("API error: %s", body))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", upstream(providerOllama, OpChat, resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	if chatResp.Message.Content == "" {
		return "", upstream(providerOllama, OpChat, resp.StatusCode, errEmptyReply)
	}

	c.logger.Debug("chat response",
		"model", chatResp.Model,
		"input_tokens", chatResp.PromptEvalCount,
		"output_tokens", chatResp.EvalCount,
	)
	return chatResp.Message.Content, nil
}

// Ping checks if Ollama is reachable.
func (c *OllamaClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return upstream(providerOllama, OpPing, 0, fmt.Errorf("create request: %w", err))
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return upstream(providerOllama, OpPing, 0, fmt.Errorf("request failed: %w", err))
	}
	defer httpkit.DrainAndClose(resp.Body, 64<<10)

	if resp.StatusCode != http.StatusOK {
		return upstream(providerOllama, OpPing, resp.StatusCode, fmt.Errorf("unexpected status"))
	}
	return nil
}
