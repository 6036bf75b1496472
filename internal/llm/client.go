// Package llm provides the model-provider capabilities the assistant
// depends on: chat completion, speech-to-text and text-to-speech.
//
// Each capability is a small interface so callers depend only on what
// they use. Provider clients (OpenAI, Ollama, Anthropic) implement one
// or more of them over plain HTTP and report every failure as an
// [*UpstreamError].
package llm

import "context"

// ChatCompleter produces one assistant reply for a role-tagged prompt.
type ChatCompleter interface {
	ChatComplete(ctx context.Context, messages []Message, opts ChatOptions) (string, error)
}

// Transcriber converts recorded speech to text. filename is passed to
// the provider so it can infer the container format from the extension.
type Transcriber interface {
	TranscribeAudio(ctx context.Context, filename string, audio []byte) (string, error)
}

// Synthesizer converts text to MP3 audio in the given voice.
type Synthesizer interface {
	SynthesizeSpeech(ctx context.Context, text, voice string) ([]byte, error)
}

// Pinger checks whether a provider is reachable and the credentials work.
type Pinger interface {
	Ping(ctx context.Context) error
}
