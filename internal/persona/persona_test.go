package persona

import (
	"strings"
	"testing"
)

func TestResolveKnownPersonas(t *testing.T) {
	r := NewRegistry()

	cases := []struct {
		id      string
		voiceID string
		name    string
	}{
		{"femme", "nova", "Jeanne"},
		{"homme", "onyx", "Paul"},
		{"dynamique", "fable", "Léo"},
	}

	for _, tc := range cases {
		t.Run(tc.id, func(t *testing.T) {
			p := r.Resolve(tc.id)
			if p.ID != tc.id {
				t.Fatalf("Resolve(%q).ID = %q, want %q", tc.id, p.ID, tc.id)
			}
			if p.VoiceID != tc.voiceID {
				t.Fatalf("Resolve(%q).VoiceID = %q, want %q", tc.id, p.VoiceID, tc.voiceID)
			}
			if p.DisplayName != tc.name {
				t.Fatalf("Resolve(%q).DisplayName = %q, want %q", tc.id, p.DisplayName, tc.name)
			}
			if !strings.Contains(p.SystemPrompt, tc.name) {
				t.Fatalf("Resolve(%q).SystemPrompt does not mention %q", tc.id, tc.name)
			}
			if !strings.Contains(p.SystemPrompt, "assistant vocal") {
				t.Fatalf("Resolve(%q).SystemPrompt missing base rules", tc.id)
			}
		})
	}
}

func TestResolveFallsBackToDefault(t *testing.T) {
	r := NewRegistry()
	want := r.Resolve(DefaultID)

	for _, id := range []string{"", "robot", "FEMME ", "unknown-avatar"} {
		p := r.Resolve(id)
		if id == "FEMME " {
			// Case and surrounding whitespace are tolerated.
			if p.ID != "femme" {
				t.Fatalf("Resolve(%q).ID = %q, want %q", id, p.ID, "femme")
			}
			continue
		}
		if p.ID != want.ID || p.VoiceID != want.VoiceID || p.SystemPrompt != want.SystemPrompt {
			t.Fatalf("Resolve(%q) = %+v, want default persona %q", id, p.ID, want.ID)
		}
	}
}

func TestListIsStable(t *testing.T) {
	r := NewRegistry()
	got := r.List()
	if len(got) != 3 {
		t.Fatalf("List() returned %d personas, want 3", len(got))
	}
	wantOrder := []string{"femme", "homme", "dynamique"}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Fatalf("List()[%d].ID = %q, want %q", i, got[i].ID, id)
		}
	}
}
