package protocol

import (
	"errors"
	"testing"
)

func TestParseClientMessageTurn(t *testing.T) {
	raw := []byte(`{"type":"turn","session_id":"s1","avatar_id":"femme","audio_base64":"AQID"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	turn, ok := msg.(ClientTurn)
	if !ok {
		t.Fatalf("message type = %T, want ClientTurn", msg)
	}
	if turn.SessionID != "s1" || turn.AvatarID != "femme" || turn.AudioBase64 != "AQID" {
		t.Fatalf("unexpected turn: %+v", turn)
	}
}

func TestParseClientMessageTextTurn(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"turn","session_id":"s1","text":"Bonjour"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	turn, ok := msg.(ClientTurn)
	if !ok {
		t.Fatalf("message type = %T, want ClientTurn", msg)
	}
	if turn.Text != "Bonjour" {
		t.Fatalf("Text = %q, want %q", turn.Text, "Bonjour")
	}
}

func TestParseClientMessageReset(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"reset","session_id":"s1"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	if _, ok := msg.(ClientReset); !ok {
		t.Fatalf("message type = %T, want ClientReset", msg)
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageRejectsEmptyTurn(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":"turn","session_id":"s1"}`)); err == nil {
		t.Fatalf("expected validation error for turn without text or audio")
	}
}
