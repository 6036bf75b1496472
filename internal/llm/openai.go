package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/lukas-holzner/codefusion-hackathon/internal/httpkit"
)

const providerOpenAI = "openai"

// maxSpeechBytes caps a synthesized audio response.
const maxSpeechBytes = 32 << 20

// OpenAIConfig configures an [OpenAIClient].
type OpenAIConfig struct {
	APIKey             string
	BaseURL            string // default https://api.openai.com/v1
	TranscriptionModel string // default whisper-1
	SpeechModel        string // default tts-1
}

// OpenAIClient talks to the OpenAI REST API (or any server exposing the
// same chat, transcription and speech endpoints). It implements
// [ChatCompleter], [Transcriber], [Synthesizer] and [Pinger].
type OpenAIClient struct {
	cfg        OpenAIConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(cfg OpenAIConfig, logger *slog.Logger) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.TranscriptionModel == "" {
		cfg.TranscriptionModel = "whisper-1"
	}
	if cfg.SpeechModel == "" {
		cfg.SpeechModel = "tts-1"
	}
	logger = logger.With("provider", providerOpenAI)
	return &OpenAIClient{
		cfg:        cfg,
		httpClient: httpkit.NewProviderClient(logger),
		logger:     logger,
	}
}

type openAIChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type openAIChatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type openAISpeechRequest struct {
	Model string `json:"model"`
	Voice string `json:"voice"`
	Input string `json:"input"`
}

// ChatComplete sends a non-streaming chat completion request.
func (c *OpenAIClient) ChatComplete(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	body, err := json.Marshal(openAIChatRequest{
		Model:       opts.Model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return "", upstream(providerOpenAI, OpChat, 0, fmt.Errorf("marshal request: %w", err))
	}

	c.logger.Debug("chat request", "model", opts.Model, "messages", len(messages))
	c.logger.Log(ctx, LevelTrace, "chat request payload", "json", string(body))

	resp, err := c.do(ctx, OpChat, "/chat/completions", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var chatResp openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", upstream(providerOpenAI, OpChat, resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	if len(chatResp.Choices) == 0 {
		return "", upstream(providerOpenAI, OpChat, resp.StatusCode, errEmptyReply)
	}

	c.logger.Debug("chat response",
		"model", chatResp.Model,
		"input_tokens", chatResp.Usage.PromptTokens,
		"output_tokens", chatResp.Usage.CompletionTokens,
		"finish_reason", chatResp.Choices[0].FinishReason,
	)
	return chatResp.Choices[0].Message.Content, nil
}

// TranscribeAudio uploads audio to the transcription endpoint and
// returns the plain-text transcript.
func (c *OpenAIClient) TranscribeAudio(ctx context.Context, filename string, audio []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("model", c.cfg.TranscriptionModel); err != nil {
		return "", upstream(providerOpenAI, OpTranscribe, 0, err)
	}
	if err := mw.WriteField("response_format", "text"); err != nil {
		return "", upstream(providerOpenAI, OpTranscribe, 0, err)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", upstream(providerOpenAI, OpTranscribe, 0, err)
	}
	if _, err := fw.Write(audio); err != nil {
		return "", upstream(providerOpenAI, OpTranscribe, 0, err)
	}
	if err := mw.Close(); err != nil {
		return "", upstream(providerOpenAI, OpTranscribe, 0, err)
	}

	c.logger.Debug("transcription request", "model", c.cfg.TranscriptionModel, "bytes", len(audio))

	resp, err := c.do(ctx, OpTranscribe, "/audio/transcriptions", mw.FormDataContentType(), bytes.NewReader(buf.Bytes()))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", upstream(providerOpenAI, OpTranscribe, resp.StatusCode, fmt.Errorf("read response: %w", err))
	}
	transcript := strings.TrimSpace(string(text))
	if transcript == "" {
		return "", upstream(providerOpenAI, OpTranscribe, resp.StatusCode, errEmptyReply)
	}
	return transcript, nil
}

// SynthesizeSpeech returns MP3 audio for text spoken in voice.
func (c *OpenAIClient) SynthesizeSpeech(ctx context.Context, text, voice string) ([]byte, error) {
	body, err := json.Marshal(openAISpeechRequest{
		Model: c.cfg.SpeechModel,
		Voice: voice,
		Input: text,
	})
	if err != nil {
		return nil, upstream(providerOpenAI, OpSpeech, 0, fmt.Errorf("marshal request: %w", err))
	}

	resp, err := c.do(ctx, OpSpeech, "/audio/speech", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxSpeechBytes))
	if err != nil {
		return nil, upstream(providerOpenAI, OpSpeech, resp.StatusCode, fmt.Errorf("read response: %w", err))
	}
	if len(audio) == 0 {
		return nil, upstream(providerOpenAI, OpSpeech, resp.StatusCode, errEmptyReply)
	}
	return audio, nil
}

// Ping lists models to verify the API key.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.cfg.BaseURL+"/models", nil)
	if err != nil {
		return upstream(providerOpenAI, OpPing, 0, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return upstream(providerOpenAI, OpPing, 0, fmt.Errorf("request failed: %w", err))
	}
	defer httpkit.DrainAndClose(resp.Body, 64<<10)

	if resp.StatusCode != http.StatusOK {
		return upstream(providerOpenAI, OpPing, resp.StatusCode, fmt.Errorf("unexpected status"))
	}
	return nil
}

// do posts body to path and returns the response when the status is 2xx.
// The caller closes the body.
func (c *OpenAIClient) do(ctx context.Context, op, path, contentType string, body *bytes.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, upstream(providerOpenAI, op, 0, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, upstream(providerOpenAI, op, 0, fmt.Errorf("request failed: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		c.logger.Error("API error", "op", op, "status", resp.StatusCode, "body", errBody)
		return nil, upstream(providerOpenAI, op, resp.StatusCode, fmt.Errorf("API error: %s", errBody))
	}
	return resp, nil
}
