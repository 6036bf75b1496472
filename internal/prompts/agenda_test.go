package prompts

import (
	"strings"
	"testing"
)

func TestAgendaClarification(t *testing.T) {
	got := AgendaClarification("Daily Scrum", "Daily sync of the platform team", "Guido")

	for _, want := range []string{
		"Title: Daily Scrum\n",
		"Description: Daily sync of the platform team\n",
		"Help user Guido clarify",
		"<agenda>",
		"</agenda>",
		"#EOC#",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(got, "%!") {
		t.Errorf("prompt has a formatting error:\n%s", got)
	}
}

func TestAgendaClarification_Deterministic(t *testing.T) {
	a := AgendaClarification("Retro", "", "Ana")
	b := AgendaClarification("Retro", "", "Ana")
	if a != b {
		t.Error("same inputs produced different prompts")
	}
}

func TestAgendaClarification_PercentInInput(t *testing.T) {
	got := AgendaClarification("100% uptime", "50%s off", "x")
	if !strings.Contains(got, "Title: 100% uptime") || !strings.Contains(got, "Description: 50%s off") {
		t.Errorf("inputs were not inserted verbatim:\n%s", got)
	}
}
