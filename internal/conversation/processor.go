package conversation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lukas-holzner/codefusion-hackathon/internal/agenda"
	"github.com/lukas-holzner/codefusion-hackathon/internal/llm"
	"github.com/lukas-holzner/codefusion-hackathon/internal/metrics"
	"github.com/lukas-holzner/codefusion-hackathon/internal/prompts"
)

// ApologyReply replaces the assistant reply when the model call fails.
const ApologyReply = "I apologize, but I encountered an error while processing your request."

// Defaults for short, focused replies.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 150
)

// Options tune the model call made for each turn.
type Options struct {
	Model string

	// Temperature is sent with every call. Zero selects
	// DefaultTemperature; use a small positive value such as 0.01 for
	// near-greedy decoding.
	Temperature float64

	MaxTokens int

	// Timeout bounds a single model call. Zero leaves it to ctx.
	Timeout time.Duration
}

// Meeting is the part of a meeting the system prompt is built from.
type Meeting struct {
	ID          int64
	Title       string
	Description string
}

// Participant is the user preparing for the meeting.
type Participant struct {
	ID   int64
	Name string
}

// Processor runs conversation turns against a chat model.
type Processor struct {
	chat    llm.ChatCompleter
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewProcessor creates a Processor. m may be nil.
func NewProcessor(chat llm.ChatCompleter, opts Options, logger *slog.Logger, m *metrics.Metrics) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Temperature == 0 {
		opts.Temperature = DefaultTemperature
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	return &Processor{
		chat:    chat,
		opts:    opts,
		logger:  logger.With("component", "conversation"),
		metrics: m,
	}
}

// RoleForIndex returns the chat role of the prior message at position i.
// Roles alternate by position, starting with the assistant's opening
// message; stored author tags are not consulted.
func RoleForIndex(i int) string {
	if i%2 == 0 {
		return llm.RoleAssistant
	}
	return llm.RoleUser
}

// BuildPrompt assembles the upstream request: the system prompt
// followed by prior, with roles assigned by [RoleForIndex].
func BuildPrompt(systemPrompt string, prior []string) []llm.Message {
	msgs := make([]llm.Message, 0, len(prior)+1)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	for i, text := range prior {
		msgs = append(msgs, llm.Message{Role: RoleForIndex(i), Content: text})
	}
	return msgs
}

// ProcessTurn asks the model for the next assistant reply and extracts
// the agenda and end marker from it. Upstream failures yield a degraded
// result carrying [ApologyReply]; ProcessTurn never fails.
func (p *Processor) ProcessTurn(ctx context.Context, systemPrompt string, prior []string) TurnResult {
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := p.chat.ChatComplete(ctx, BuildPrompt(systemPrompt, prior), llm.ChatOptions{
		Model:       p.opts.Model,
		Temperature: p.opts.Temperature,
		MaxTokens:   p.opts.MaxTokens,
	})
	elapsed := time.Since(start)
	p.metrics.Upstream(llm.OpChat, elapsed, err)

	if err != nil {
		p.logger.Error("chat completion failed, sending apology",
			"error", err,
			"upstream", llm.IsUpstream(err),
			"deadline", errors.Is(err, context.DeadlineExceeded),
			"prior", len(prior),
			"elapsed", elapsed.Round(time.Millisecond),
		)
		p.metrics.Turn(metrics.OutcomeDegraded, metrics.AgendaUnchanged)
		return TurnResult{CleanedReply: ApologyReply, Degraded: true}
	}
	p.logger.Log(ctx, llm.LevelTrace, "raw reply", "reply", raw)

	ex := agenda.Extract(raw)
	result := TurnResult{
		CleanedReply:      ex.Text,
		ConversationEnded: ex.Ended,
	}

	agendaResult := metrics.AgendaUnchanged
	if ex.HasBlock {
		items, err := agenda.ParseItems(ex.Block)
		switch {
		case err != nil:
			p.logger.Warn("ignoring malformed agenda block",
				"error", err,
				"block", ex.Block,
			)
			agendaResult = metrics.AgendaMalformed
		case len(items) > 0:
			result.NewAgenda = items
			agendaResult = metrics.AgendaReplaced
		}
	}

	p.metrics.Turn(metrics.OutcomeOK, agendaResult)
	p.logger.Debug("turn processed",
		"prior", len(prior),
		"agenda_items", len(result.NewAgenda),
		"ended", result.ConversationEnded,
		"elapsed", elapsed.Round(time.Millisecond),
	)
	return result
}

// Start creates the conversation of who for m. The assistant speaks
// first; its opening reply is the only message of the returned state.
func (p *Processor) Start(ctx context.Context, m Meeting, who Participant) State {
	s := State{
		MeetingID:    m.ID,
		UserID:       who.ID,
		SystemPrompt: prompts.AgendaClarification(m.Title, m.Description, who.Name),
	}

	turn := p.ProcessTurn(ctx, s.SystemPrompt, nil)
	s.Messages = []Message{{Text: turn.CleanedReply, Author: AuthorAssistant, Timestamp: now()}}
	s = fold(s, turn)

	p.metrics.Started()
	p.logger.Info("conversation started",
		"meeting_id", m.ID,
		"user_id", who.ID,
		"degraded", turn.Degraded,
	)
	return s
}

// Reply runs one turn for userText on top of s and returns the updated
// state. The user message is part of the prompt sent to the model.
func (p *Processor) Reply(ctx context.Context, s State, userText string) State {
	prior := append(s.Texts(), userText)
	turn := p.ProcessTurn(ctx, s.SystemPrompt, prior)
	return ApplyTurn(s, userText, turn)
}
