package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ljoubert/compagnon/internal/archive"
	"github.com/ljoubert/compagnon/internal/observability"
	"github.com/ljoubert/compagnon/internal/persona"
	"github.com/ljoubert/compagnon/internal/session"
)

var metricsSeq atomic.Int64

func newTestMetrics() *observability.Metrics {
	return observability.NewMetrics(fmt.Sprintf("test_voice_%d", metricsSeq.Add(1)))
}

type stubTranscriber struct {
	text  string
	err   error
	calls int
}

func (s *stubTranscriber) Transcribe(_ context.Context, _ TranscribeRequest) (string, error) {
	s.calls++
	return s.text, s.err
}

type stubReplier struct {
	reply     string
	err       error
	calls     int
	histories [][]session.Turn
}

func (s *stubReplier) Reply(_ context.Context, req ReplyRequest) (string, error) {
	s.calls++
	history := make([]session.Turn, len(req.History))
	copy(history, req.History)
	s.histories = append(s.histories, history)
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

type stubSynthesizer struct {
	audio   []byte
	err     error
	calls   int
	voiceID string
	speed   float64
}

func (s *stubSynthesizer) Synthesize(_ context.Context, req SynthesizeRequest) ([]byte, error) {
	s.calls++
	s.voiceID = req.VoiceID
	s.speed = req.Speed
	if s.err != nil {
		return nil, s.err
	}
	return s.audio, nil
}

type fixture struct {
	orch        *Orchestrator
	sessions    *session.Store
	transcriber *stubTranscriber
	replier     *stubReplier
	synthesizer *stubSynthesizer
	archive     *archive.InMemoryStore
}

func newFixture(opts Options) *fixture {
	f := &fixture{
		sessions:    session.NewStore(10),
		transcriber: &stubTranscriber{text: "bonjour"},
		replier:     &stubReplier{reply: "Bonjour ! Comment allez-vous ?"},
		synthesizer: &stubSynthesizer{audio: []byte("mp3-bytes")},
		archive:     archive.NewInMemoryStore(),
	}
	f.orch = NewOrchestrator(
		persona.NewRegistry(),
		f.sessions,
		f.transcriber,
		f.replier,
		f.synthesizer,
		f.archive,
		newTestMetrics(),
		zap.NewNop(),
		opts,
	)
	return f
}

func TestRunTurnAudioPath(t *testing.T) {
	f := newFixture(Options{TimingEnabled: true})

	res, err := f.orch.RunTurn(context.Background(), TurnInput{
		SessionID: "s1",
		PersonaID: "femme",
		Audio:     []byte("fake-audio-bytes"),
	})
	if err != nil {
		t.Fatalf("RunTurn error = %v", err)
	}
	if res.UserText != "bonjour" {
		t.Fatalf("UserText = %q, want %q", res.UserText, "bonjour")
	}
	if res.AssistantText != "Bonjour ! Comment allez-vous ?" {
		t.Fatalf("AssistantText = %q", res.AssistantText)
	}
	if string(res.Audio) != "mp3-bytes" {
		t.Fatalf("Audio = %q, want synthesized bytes", res.Audio)
	}
	if res.AudioDegraded {
		t.Fatalf("AudioDegraded = true, want false")
	}
	if res.Timing == nil {
		t.Fatalf("Timing = nil, want populated timing")
	}

	transcript := f.sessions.Transcript("s1")
	if len(transcript) != 2 {
		t.Fatalf("transcript length = %d, want 2", len(transcript))
	}
	if transcript[0].Role != session.RoleUser || transcript[1].Role != session.RoleAssistant {
		t.Fatalf("transcript roles = %v, %v", transcript[0].Role, transcript[1].Role)
	}
}

func TestRunTurnTextPathSkipsTranscription(t *testing.T) {
	f := newFixture(Options{})

	res, err := f.orch.RunTurn(context.Background(), TurnInput{
		SessionID: "s1",
		Text:      "Bonjour",
	})
	if err != nil {
		t.Fatalf("RunTurn error = %v", err)
	}
	if f.transcriber.calls != 0 {
		t.Fatalf("transcriber calls = %d, want 0 for text input", f.transcriber.calls)
	}
	if res.UserText != "Bonjour" {
		t.Fatalf("UserText = %q, want %q", res.UserText, "Bonjour")
	}
}

func TestRunTurnRejectsEmptyInput(t *testing.T) {
	f := newFixture(Options{})

	if _, err := f.orch.RunTurn(context.Background(), TurnInput{SessionID: "s1"}); !errors.Is(err, ErrNoInput) {
		t.Fatalf("RunTurn error = %v, want ErrNoInput", err)
	}
	if f.transcriber.calls+f.replier.calls+f.synthesizer.calls != 0 {
		t.Fatalf("gateways were invoked on invalid input")
	}
}

func TestRunTurnEmptyTranscriptFastPath(t *testing.T) {
	f := newFixture(Options{})
	f.sessions.Append("s1", session.Turn{Role: session.RoleUser, Text: "tour précédent"})
	f.transcriber.text = "   "

	res, err := f.orch.RunTurn(context.Background(), TurnInput{
		SessionID: "s1",
		Audio:     []byte("silence"),
	})
	if err != nil {
		t.Fatalf("RunTurn error = %v", err)
	}
	if res.UserText != "" {
		t.Fatalf("UserText = %q, want empty", res.UserText)
	}
	if res.AssistantText != ClarificationReply {
		t.Fatalf("AssistantText = %q, want clarification reply", res.AssistantText)
	}
	if res.Audio != nil {
		t.Fatalf("Audio = %v, want nil", res.Audio)
	}
	if f.replier.calls != 0 {
		t.Fatalf("dialogue calls = %d, want 0 on empty transcript", f.replier.calls)
	}
	if f.synthesizer.calls != 0 {
		t.Fatalf("synthesizer calls = %d, want 0 on empty transcript", f.synthesizer.calls)
	}
	if got := len(f.sessions.Transcript("s1")); got != 1 {
		t.Fatalf("transcript length = %d, want unchanged 1", got)
	}
}

func TestRunTurnSynthesisFailureDegradesToText(t *testing.T) {
	f := newFixture(Options{})
	f.synthesizer.err = synthesisFailed(errors.New("status=500 body=boom"), true)

	res, err := f.orch.RunTurn(context.Background(), TurnInput{
		SessionID: "s1",
		Text:      "Bonjour",
	})
	if err != nil {
		t.Fatalf("RunTurn error = %v, synthesis failure must not fail the turn", err)
	}
	if res.AssistantText == "" {
		t.Fatalf("AssistantText empty on degraded turn")
	}
	if res.Audio != nil {
		t.Fatalf("Audio = %v, want nil on degraded turn", res.Audio)
	}
	if !res.AudioDegraded {
		t.Fatalf("AudioDegraded = false, want true")
	}
	// Both turns are still recorded.
	if got := len(f.sessions.Transcript("s1")); got != 2 {
		t.Fatalf("transcript length = %d, want 2", got)
	}
}

func TestRunTurnDialogueFailureKeepsInboundTurn(t *testing.T) {
	f := newFixture(Options{})
	f.replier.err = dialogueFailed(errors.New("status=401 body=bad key"), false)

	_, err := f.orch.RunTurn(context.Background(), TurnInput{
		SessionID: "s1",
		Text:      "Bonjour",
	})
	if err == nil {
		t.Fatalf("RunTurn error = nil, want dialogue failure")
	}
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) || gwErr.Stage != StageDialogue {
		t.Fatalf("error = %v, want GatewayError at dialogue stage", err)
	}

	transcript := f.sessions.Transcript("s1")
	if len(transcript) != 1 {
		t.Fatalf("transcript length = %d, want 1 (inbound turn kept)", len(transcript))
	}
	if transcript[0].Role != session.RoleUser || transcript[0].Text != "Bonjour" {
		t.Fatalf("kept turn = %+v, want the user utterance", transcript[0])
	}
	if f.synthesizer.calls != 0 {
		t.Fatalf("synthesizer calls = %d, want 0 after dialogue failure", f.synthesizer.calls)
	}
}

func TestRunTurnTranscriptionFailureLeavesHistoryUntouched(t *testing.T) {
	f := newFixture(Options{})
	f.transcriber.err = transcriptionFailed(errors.New("status=400 body=bad format"), false)

	_, err := f.orch.RunTurn(context.Background(), TurnInput{
		SessionID: "s1",
		Audio:     []byte("bad"),
	})
	if err == nil {
		t.Fatalf("RunTurn error = nil, want transcription failure")
	}
	if got := len(f.sessions.Transcript("s1")); got != 0 {
		t.Fatalf("transcript length = %d, want 0", got)
	}
}

func TestRunTurnContextAccumulatesAcrossTurns(t *testing.T) {
	f := newFixture(Options{})

	for i := 0; i < 2; i++ {
		if _, err := f.orch.RunTurn(context.Background(), TurnInput{
			SessionID: "s1",
			PersonaID: "femme",
			Text:      "Bonjour",
		}); err != nil {
			t.Fatalf("RunTurn %d error = %v", i, err)
		}
	}

	if f.replier.calls != 2 {
		t.Fatalf("dialogue calls = %d, want 2", f.replier.calls)
	}
	if got := len(f.replier.histories[0]); got != 0 {
		t.Fatalf("first call history length = %d, want 0", got)
	}
	if got := len(f.replier.histories[1]); got != 2 {
		t.Fatalf("second call history length = %d, want 2 (first exchange)", got)
	}
	if f.replier.histories[1][0].Role != session.RoleUser || f.replier.histories[1][1].Role != session.RoleAssistant {
		t.Fatalf("second call history roles = %v, %v", f.replier.histories[1][0].Role, f.replier.histories[1][1].Role)
	}
}

func TestResetClearsDialogueContext(t *testing.T) {
	f := newFixture(Options{})

	for i := 0; i < 2; i++ {
		if _, err := f.orch.RunTurn(context.Background(), TurnInput{SessionID: "s1", Text: "Bonjour"}); err != nil {
			t.Fatalf("RunTurn %d error = %v", i, err)
		}
	}
	f.orch.Reset("s1")
	if _, err := f.orch.RunTurn(context.Background(), TurnInput{SessionID: "s1", Text: "Bonjour"}); err != nil {
		t.Fatalf("RunTurn after reset error = %v", err)
	}

	last := f.replier.histories[len(f.replier.histories)-1]
	if len(last) != 0 {
		t.Fatalf("history after reset length = %d, want 0", len(last))
	}
}

func TestRunTurnUnknownPersonaFallsBackToDefaultVoice(t *testing.T) {
	f := newFixture(Options{})

	if _, err := f.orch.RunTurn(context.Background(), TurnInput{
		SessionID: "s1",
		PersonaID: "inconnu",
		Text:      "Bonjour",
	}); err != nil {
		t.Fatalf("RunTurn error = %v", err)
	}
	if f.synthesizer.voiceID != "nova" {
		t.Fatalf("voice id = %q, want default persona voice %q", f.synthesizer.voiceID, "nova")
	}
}

func TestRunTurnSanitizesReplyBeforeHistoryAndSynthesis(t *testing.T) {
	f := newFixture(Options{})
	f.replier.reply = "**Bonjour !** Voici [un lien](https://exemple.fr) 😊"

	res, err := f.orch.RunTurn(context.Background(), TurnInput{SessionID: "s1", Text: "Bonjour"})
	if err != nil {
		t.Fatalf("RunTurn error = %v", err)
	}
	want := "Bonjour ! Voici un lien"
	if res.AssistantText != want {
		t.Fatalf("AssistantText = %q, want %q", res.AssistantText, want)
	}
	transcript := f.sessions.Transcript("s1")
	if transcript[1].Text != want {
		t.Fatalf("stored assistant turn = %q, want sanitized text", transcript[1].Text)
	}
}

func TestRunTurnTimingOmittedWhenDisabled(t *testing.T) {
	f := newFixture(Options{TimingEnabled: false})

	res, err := f.orch.RunTurn(context.Background(), TurnInput{SessionID: "s1", Text: "Bonjour"})
	if err != nil {
		t.Fatalf("RunTurn error = %v", err)
	}
	if res.Timing != nil {
		t.Fatalf("Timing = %+v, want nil when diagnostics disabled", res.Timing)
	}
}

func TestRunTurnNotifiesStageObserver(t *testing.T) {
	f := newFixture(Options{})

	var stages []Stage
	if _, err := f.orch.RunTurn(context.Background(), TurnInput{
		SessionID: "s1",
		Audio:     []byte("fake-audio-bytes"),
		Observer: func(stage Stage, _ time.Duration) {
			stages = append(stages, stage)
		},
	}); err != nil {
		t.Fatalf("RunTurn error = %v", err)
	}

	want := []Stage{StageTranscribe, StageDialogue, StageSynthesize, StageTotal}
	if len(stages) != len(want) {
		t.Fatalf("observed stages = %v, want %v", stages, want)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Fatalf("observed stages = %v, want %v", stages, want)
		}
	}
}

func TestRunTurnArchivesRedactedExchange(t *testing.T) {
	f := newFixture(Options{ArchiveTimeout: time.Second})
	f.replier.reply = "Je note le 06 12 34 56 78 pour votre fille."

	if _, err := f.orch.RunTurn(context.Background(), TurnInput{SessionID: "s1", Text: "Voici mon numéro"}); err != nil {
		t.Fatalf("RunTurn error = %v", err)
	}

	// The archive write runs behind the response path.
	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := f.archive.RecentExchanges(context.Background(), "s1", 1)
		if err != nil {
			t.Fatalf("RecentExchanges error = %v", err)
		}
		if len(got) == 1 {
			if !got[0].Redacted {
				t.Fatalf("exchange not marked redacted: %+v", got[0])
			}
			if !strings.Contains(got[0].AssistantText, "[TELEPHONE]") {
				t.Fatalf("archived assistant text = %q, phone number not redacted", got[0].AssistantText)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("archived exchange never appeared")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
