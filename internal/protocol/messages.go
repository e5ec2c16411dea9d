package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientTurn  MessageType = "turn"
	TypeClientReset MessageType = "reset"
	TypeStageEvent  MessageType = "stage"
	TypeTranscript  MessageType = "transcript"
	TypeReply       MessageType = "reply"
	TypeAudio       MessageType = "audio"
	TypeResetDone   MessageType = "reset_done"
	TypeErrorEvent  MessageType = "error"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientTurn is one spoken or typed utterance. Audio, when present, takes
// precedence over Text.
type ClientTurn struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	AvatarID    string      `json:"avatar_id,omitempty"`
	Text        string      `json:"text,omitempty"`
	AudioBase64 string      `json:"audio_base64,omitempty"`
}

type ClientReset struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

// StageEvent reports a completed pipeline stage while the turn is running, so
// the client can show progress before the full reply arrives.
type StageEvent struct {
	Type       MessageType `json:"type"`
	TurnID     string      `json:"turn_id"`
	Stage      string      `json:"stage"`
	DurationMS int64       `json:"duration_ms"`
}

type TranscriptEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TurnID    string      `json:"turn_id"`
	Text      string      `json:"text"`
}

type ReplyEvent struct {
	Type          MessageType `json:"type"`
	SessionID     string      `json:"session_id"`
	TurnID        string      `json:"turn_id"`
	Text          string      `json:"text"`
	AudioDegraded bool        `json:"audio_degraded"`
}

type AudioEvent struct {
	Type        MessageType `json:"type"`
	TurnID      string      `json:"turn_id"`
	Format      string      `json:"format"`
	AudioBase64 string      `json:"audio_base64"`
}

type ResetDone struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Success   bool        `json:"success"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	TurnID    string      `json:"turn_id,omitempty"`
	Code      string      `json:"code"`
	Stage     string      `json:"stage,omitempty"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientTurn:
		var msg ClientTurn
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Text == "" && msg.AudioBase64 == "" {
			return nil, errors.New("invalid turn: text or audio_base64 required")
		}
		return msg, nil
	case TypeClientReset:
		var msg ClientReset
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
