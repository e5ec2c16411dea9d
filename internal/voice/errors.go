package voice

import (
	"errors"
	"fmt"
)

// Stage identifies one step of the per-request turn pipeline.
type Stage string

const (
	StageTranscribe Stage = "stt"
	StageDialogue   Stage = "llm"
	StageSynthesize Stage = "tts"
	StageTotal      Stage = "total"
)

// ErrNoInput is returned when a request carries neither audio nor text.
var ErrNoInput = errors.New("either audio or text input is required")

// GatewayError wraps an upstream provider failure with its pipeline stage and
// a machine-readable code for the HTTP error payload.
type GatewayError struct {
	Stage     Stage
	Code      string
	Retryable bool
	Err       error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func transcriptionFailed(err error, retryable bool) *GatewayError {
	return &GatewayError{Stage: StageTranscribe, Code: "transcription_failed", Retryable: retryable, Err: err}
}

func dialogueFailed(err error, retryable bool) *GatewayError {
	return &GatewayError{Stage: StageDialogue, Code: "dialogue_failed", Retryable: retryable, Err: err}
}

func synthesisFailed(err error, retryable bool) *GatewayError {
	return &GatewayError{Stage: StageSynthesize, Code: "synthesis_failed", Retryable: retryable, Err: err}
}
