package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lukas-holzner/codefusion-hackathon/internal/config"
)

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/"}, nil)
}

func TestOpenAIChatComplete(t *testing.T) {
	var got openAIChatRequest
	c := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{"model":"gpt-4o","choices":[{"message":{"role":"assistant","content":"What is your main goal?"},"finish_reason":"stop"}]}`))
	})

	msgs := []Message{
		{Role: RoleSystem, Content: "prep the meeting"},
		{Role: RoleAssistant, Content: "Hi!"},
	}
	reply, err := c.ChatComplete(context.Background(), msgs, ChatOptions{Model: "gpt-4o", Temperature: 0.7, MaxTokens: 150})
	if err != nil {
		t.Fatalf("ChatComplete error: %v", err)
	}
	if reply != "What is your main goal?" {
		t.Errorf("reply = %q", reply)
	}
	if got.Model != "gpt-4o" || got.Temperature != 0.7 || got.MaxTokens != 150 {
		t.Errorf("request = %+v, want model gpt-4o, temperature 0.7, max_tokens 150", got)
	}
	if len(got.Messages) != 2 || got.Messages[1].Role != RoleAssistant {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestOpenAIChatComplete_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
	}{
		{"provider error", http.StatusTooManyRequests, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests},
		{"server error", http.StatusInternalServerError, `oops`, http.StatusInternalServerError},
		{"no choices", http.StatusOK, `{"choices":[]}`, http.StatusOK},
		{"garbage", http.StatusOK, `not json`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := c.ChatComplete(context.Background(), nil, ChatOptions{Model: "gpt-4o"})
			var ue *UpstreamError
			if !errors.As(err, &ue) {
				t.Fatalf("err = %v, want *UpstreamError", err)
			}
			if ue.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", ue.StatusCode, tt.wantStatus)
			}
			if ue.Op != OpChat || ue.Provider != "openai" {
				t.Errorf("Op/Provider = %s/%s", ue.Op, ue.Provider)
			}
		})
	}
}

func TestOpenAIChatComplete_ContextDeadline(t *testing.T) {
	c := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.ChatComplete(ctx, nil, ChatOptions{Model: "gpt-4o"})
	if !IsUpstream(err) {
		t.Fatalf("err = %v, want upstream error", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want it to wrap context.DeadlineExceeded", err)
	}
}

func TestOpenAITranscribeAudio(t *testing.T) {
	c := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm: %v", err)
		}
		if m := r.FormValue("model"); m != "whisper-1" {
			t.Errorf("model = %q, want whisper-1", m)
		}
		if f := r.FormValue("response_format"); f != "text" {
			t.Errorf("response_format = %q, want text", f)
		}
		file, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile: %v", err)
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if hdr.Filename != "note.mp3" || string(data) != "ID3fake" {
			t.Errorf("file = %q (%q)", hdr.Filename, data)
		}
		w.Write([]byte("I want to discuss the login bug\n"))
	})

	text, err := c.TranscribeAudio(context.Background(), "note.mp3", []byte("ID3fake"))
	if err != nil {
		t.Fatalf("TranscribeAudio error: %v", err)
	}
	if text != "I want to discuss the login bug" {
		t.Errorf("transcript = %q", text)
	}
}

func TestOpenAISynthesizeSpeech(t *testing.T) {
	var got openAISpeechRequest
	c := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("mp3-bytes"))
	})

	audio, err := c.SynthesizeSpeech(context.Background(), "Goodbye!", "nova")
	if err != nil {
		t.Fatalf("SynthesizeSpeech error: %v", err)
	}
	if string(audio) != "mp3-bytes" {
		t.Errorf("audio = %q", audio)
	}
	if got.Model != "tts-1" || got.Voice != "nova" || got.Input != "Goodbye!" {
		t.Errorf("request = %+v", got)
	}
}

func TestOpenAISynthesizeSpeech_Empty(t *testing.T) {
	c := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {})

	if _, err := c.SynthesizeSpeech(context.Background(), "hi", "alloy"); !IsUpstream(err) {
		t.Fatalf("err = %v, want upstream error", err)
	}
}

func TestUpstreamError_Message(t *testing.T) {
	err := &UpstreamError{Provider: "openai", Op: OpChat, StatusCode: 503, Err: errors.New("overloaded")}
	if got := err.Error(); got != "openai chat: status 503: overloaded" {
		t.Errorf("Error() = %q", got)
	}
	err.StatusCode = 0
	if got := err.Error(); got != "openai chat: overloaded" {
		t.Errorf("Error() = %q", got)
	}
}

func TestLevelTrace_MatchesConfiguredLevel(t *testing.T) {
	lvl, err := config.ParseLogLevel("trace")
	if err != nil {
		t.Fatalf("ParseLogLevel(trace): %v", err)
	}
	if LevelTrace != lvl {
		t.Errorf("LevelTrace = %v, want the configured trace level %v", LevelTrace, lvl)
	}
}
