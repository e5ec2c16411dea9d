package voice

import (
	"context"
	"fmt"
	"strings"
)

// MockProvider is a deterministic local stand-in for all three gateways, used
// when no provider API keys are configured and by the bench tool.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

// Transcribe pretends very small blobs contain no speech, which exercises the
// clarification fast path end to end without a real recording.
func (p *MockProvider) Transcribe(_ context.Context, req TranscribeRequest) (string, error) {
	if len(req.Audio) < 32 {
		return "", nil
	}
	return "entrée vocale simulée", nil
}

func (p *MockProvider) Reply(_ context.Context, req ReplyRequest) (string, error) {
	echo := []rune(strings.TrimSpace(req.UserText))
	if len(echo) > 60 {
		echo = echo[:60]
	}
	return fmt.Sprintf("D'accord. Vous avez dit : %s", string(echo)), nil
}

// Synthesize returns the text bytes as pseudo audio so callers still get a
// non-empty payload to base64-encode.
func (p *MockProvider) Synthesize(_ context.Context, req SynthesizeRequest) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, synthesisFailed(fmt.Errorf("text input is required"), false)
	}
	return []byte(req.Text), nil
}
