package archive

import (
	"context"
	"fmt"
	"testing"
)

func TestInMemoryStoreSaveAndRecent(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := s.SaveExchange(ctx, Exchange{
			SessionID:     "s1",
			PersonaID:     "femme",
			UserText:      fmt.Sprintf("question %d", i),
			AssistantText: fmt.Sprintf("réponse %d", i),
		})
		if err != nil {
			t.Fatalf("SaveExchange error = %v", err)
		}
	}

	got, err := s.RecentExchanges(ctx, "s1", 3)
	if err != nil {
		t.Fatalf("RecentExchanges error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("RecentExchanges returned %d items, want 3", len(got))
	}
	// Chronological order, most recent last.
	for i, ex := range got {
		want := fmt.Sprintf("question %d", 2+i)
		if ex.UserText != want {
			t.Fatalf("RecentExchanges[%d].UserText = %q, want %q", i, ex.UserText, want)
		}
		if ex.ID == "" {
			t.Fatalf("RecentExchanges[%d].ID is empty, want generated id", i)
		}
		if ex.CreatedAt.IsZero() {
			t.Fatalf("RecentExchanges[%d].CreatedAt is zero", i)
		}
	}
}

func TestInMemoryStoreUnknownSession(t *testing.T) {
	s := NewInMemoryStore()
	got, err := s.RecentExchanges(context.Background(), "never-seen", 10)
	if err != nil {
		t.Fatalf("RecentExchanges error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("RecentExchanges returned %d items, want 0", len(got))
	}
}
