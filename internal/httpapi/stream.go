package httpapi

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ljoubert/compagnon/internal/protocol"
	"github.com/ljoubert/compagnon/internal/voice"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 120 * time.Second
	wsReadLimit    = 2 << 20
)

// handleVoiceStream serves the websocket variant of the turn pipeline. Each
// inbound turn message runs the same orchestration as POST /voice, with stage
// progress streamed back while the turn is in flight. Turns on one connection
// run strictly in order.
func (s *Server) handleVoiceStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, 64)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	send := func(msg any) {
		select {
		case <-ctx.Done():
		case outbound <- msg:
		}
	}

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			send(protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_client_message",
				Detail: err.Error(),
			})
			continue
		}

		switch msg := parsed.(type) {
		case protocol.ClientTurn:
			s.runStreamTurn(ctx, msg, send)
		case protocol.ClientReset:
			s.orchestrator.Reset(msg.SessionID)
			send(protocol.ResetDone{
				Type:      protocol.TypeResetDone,
				SessionID: msg.SessionID,
				Success:   true,
			})
		}
	}

	cancel()
	close(outbound)
	<-writerDone
}

func (s *Server) runStreamTurn(ctx context.Context, msg protocol.ClientTurn, send func(any)) {
	var audioBytes []byte
	if msg.AudioBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(msg.AudioBase64)
		if err != nil {
			send(protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_audio",
				Detail: "audio_base64 is not valid base64",
			})
			return
		}
		audioBytes = decoded
	}

	in := voice.TurnInput{
		SessionID: msg.SessionID,
		PersonaID: msg.AvatarID,
		Audio:     audioBytes,
		Text:      msg.Text,
	}

	// Stage events fire while the turn is still running and carry no turn id;
	// clients correlate them by connection ordering.
	in.Observer = func(stage voice.Stage, d time.Duration) {
		send(protocol.StageEvent{
			Type:       protocol.TypeStageEvent,
			Stage:      string(stage),
			DurationMS: d.Milliseconds(),
		})
	}

	res, err := s.orchestrator.RunTurn(ctx, in)
	if err != nil {
		evt := protocol.ErrorEvent{
			Type:   protocol.TypeErrorEvent,
			Code:   "internal",
			Detail: "the assistant could not process this request",
		}
		if errors.Is(err, voice.ErrNoInput) {
			evt.Code = "missing_input"
			evt.Detail = "audio or text input is required"
		}
		var gwErr *voice.GatewayError
		if errors.As(err, &gwErr) {
			evt.Code = gwErr.Code
			evt.Stage = string(gwErr.Stage)
			evt.Retryable = gwErr.Retryable
		}
		send(evt)
		s.logger.Warn("stream turn failed",
			zap.String("session_id", msg.SessionID),
			zap.Error(err),
		)
		return
	}

	send(protocol.TranscriptEvent{
		Type:      protocol.TypeTranscript,
		SessionID: res.SessionID,
		TurnID:    res.TurnID,
		Text:      res.UserText,
	})
	send(protocol.ReplyEvent{
		Type:          protocol.TypeReply,
		SessionID:     res.SessionID,
		TurnID:        res.TurnID,
		Text:          res.AssistantText,
		AudioDegraded: res.AudioDegraded,
	})
	if len(res.Audio) > 0 {
		send(protocol.AudioEvent{
			Type:        protocol.TypeAudio,
			TurnID:      res.TurnID,
			Format:      s.cfg.TTSFormat,
			AudioBase64: base64.StdEncoding.EncodeToString(res.Audio),
		})
	}
}
