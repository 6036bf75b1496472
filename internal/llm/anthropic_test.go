package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestConvertToAnthropic(t *testing.T) {
	tests := []struct {
		name      string
		messages  []Message
		wantRoles []string
		wantFirst string
	}{
		{
			name:      "system only gets an opener",
			messages:  []Message{{Role: RoleSystem, Content: "prep"}},
			wantRoles: []string{RoleUser},
			wantFirst: anthropicOpener,
		},
		{
			name: "assistant first gets an opener",
			messages: []Message{
				{Role: RoleSystem, Content: "prep"},
				{Role: RoleAssistant, Content: "Hi Guido!"},
				{Role: RoleUser, Content: "login bug"},
			},
			wantRoles: []string{RoleUser, RoleAssistant, RoleUser},
			wantFirst: anthropicOpener,
		},
		{
			name: "user first is kept",
			messages: []Message{
				{Role: RoleUser, Content: "hello"},
				{Role: RoleAssistant, Content: "hi"},
			},
			wantRoles: []string{RoleUser, RoleAssistant},
			wantFirst: "hello",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := convertToAnthropic(tt.messages)
			if len(got) != len(tt.wantRoles) {
				t.Fatalf("got %d messages, want %d", len(got), len(tt.wantRoles))
			}
			for i, role := range tt.wantRoles {
				if got[i].Role != role {
					t.Errorf("message %d role = %q, want %q", i, got[i].Role, role)
				}
			}
			if got[0].Content != tt.wantFirst {
				t.Errorf("first content = %q, want %q", got[0].Content, tt.wantFirst)
			}
		})
	}
}

func TestConvertToAnthropic_JoinsSystem(t *testing.T) {
	_, system := convertToAnthropic([]Message{
		{Role: RoleSystem, Content: "one"},
		{Role: RoleSystem, Content: "two"},
	})
	if system != "one\n\ntwo" {
		t.Errorf("system = %q", system)
	}
}

func TestAnthropicChatComplete(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "sk-ant" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"model":"claude","content":[{"type":"text","text":"Sounds good. "},{"type":"text","text":"#EOC#"}],"stop_reason":"end_turn"}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient("sk-ant", nil)
	c.apiURL = srv.URL

	reply, err := c.ChatComplete(context.Background(), []Message{{Role: RoleSystem, Content: "prep"}}, ChatOptions{Model: "claude", MaxTokens: 150, Temperature: 0.7})
	if err != nil {
		t.Fatalf("ChatComplete error: %v", err)
	}
	if reply != "Sounds good. #EOC#" {
		t.Errorf("reply = %q", reply)
	}
	if got.System != "prep" || got.MaxTokens != 150 {
		t.Errorf("request = %+v", got)
	}
}

func TestAnthropicChatComplete_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewAnthropicClient("sk-ant", nil)
	c.apiURL = srv.URL

	if _, err := c.ChatComplete(context.Background(), nil, ChatOptions{Model: "claude"}); !IsUpstream(err) {
		t.Fatalf("err = %v, want upstream error", err)
	}
}
