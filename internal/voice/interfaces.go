package voice

import (
	"context"

	"github.com/ljoubert/compagnon/internal/session"
)

// TranscribeRequest carries one recorded utterance to a speech-to-text
// provider. Audio must be non-empty; the orchestrator validates presence.
type TranscribeRequest struct {
	Audio    []byte
	Language string
}

// Transcriber wraps a speech-to-text provider call.
type Transcriber interface {
	Transcribe(ctx context.Context, req TranscribeRequest) (string, error)
}

// ReplyRequest carries the persona instruction, the prior trimmed transcript
// and the new user utterance. The system prompt is passed to the provider as a
// separate instruction, never mixed into the turn sequence.
type ReplyRequest struct {
	SystemPrompt string
	History      []session.Turn
	UserText     string
}

// Replier wraps a language-model provider call. Implementations return a
// non-empty reply: empty or malformed provider output is substituted with a
// fixed fallback phrase rather than propagated.
type Replier interface {
	Reply(ctx context.Context, req ReplyRequest) (string, error)
}

// SynthesizeRequest carries reply text to a text-to-speech provider.
type SynthesizeRequest struct {
	Text    string
	VoiceID string
	Speed   float64
}

// Synthesizer wraps a text-to-speech provider call returning encoded audio
// bytes (mp3 by default).
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesizeRequest) ([]byte, error)
}
