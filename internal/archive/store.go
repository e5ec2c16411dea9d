package archive

import (
	"context"
	"strings"
	"time"
)

// Exchange is one completed user/assistant exchange written behind a turn.
// Archived text is PII-redacted before it reaches a store; the live session
// transcript is never altered.
type Exchange struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id"`
	PersonaID     string    `json:"persona_id"`
	UserText      string    `json:"user_text"`
	AssistantText string    `json:"assistant_text"`
	Redacted      bool      `json:"redacted"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store archives completed exchanges. Writes are best-effort: a failed archive
// write never fails the conversational turn.
type Store interface {
	SaveExchange(ctx context.Context, ex Exchange) error
	RecentExchanges(ctx context.Context, sessionID string, limit int) ([]Exchange, error)
	Close() error
}

// NewStore creates a postgres-backed store when configured, otherwise in-memory.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
