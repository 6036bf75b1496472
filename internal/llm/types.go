package llm

import (
	"errors"
	"fmt"

	"github.com/lukas-holzner/codefusion-hackathon/internal/config"
)

// LevelTrace is the level for wire-level payload logging. It is the
// level the configured logger knows as "trace".
const LevelTrace = config.LevelTrace

// Chat roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged entry of a chat prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatOptions bound a single completion.
type ChatOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Operation names used in [UpstreamError].
const (
	OpChat       = "chat"
	OpTranscribe = "transcribe"
	OpSpeech     = "speech"
	OpPing       = "ping"
)

// UpstreamError reports a failed call to a model provider: transport
// failure, non-2xx response, undecodable body, or an empty reply.
// StatusCode is zero when no HTTP response was received.
type UpstreamError struct {
	Provider   string
	Op         string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// IsUpstream reports whether any error in err's chain is an [*UpstreamError].
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

func upstream(provider, op string, status int, err error) error {
	return &UpstreamError{Provider: provider, Op: op, StatusCode: status, Err: err}
}

// errEmptyReply is returned when a provider answers 200 with no content.
var errEmptyReply = errors.New("empty reply")
