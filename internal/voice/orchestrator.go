package voice

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ljoubert/compagnon/internal/archive"
	"github.com/ljoubert/compagnon/internal/observability"
	"github.com/ljoubert/compagnon/internal/persona"
	"github.com/ljoubert/compagnon/internal/policy"
	"github.com/ljoubert/compagnon/internal/reliability"
	"github.com/ljoubert/compagnon/internal/session"
)

// ClarificationReply is returned without touching history when transcription
// detects no speech in the uploaded audio.
const ClarificationReply = "Je n'ai pas bien entendu. Pouvez-vous répéter ?"

// StageObserver receives each completed stage with its wall-clock duration,
// used by the streaming surface to report progress.
type StageObserver func(stage Stage, d time.Duration)

// Timing carries per-stage wall-clock durations in milliseconds.
type Timing struct {
	STT   int64 `json:"stt"`
	LLM   int64 `json:"llm"`
	TTS   int64 `json:"tts"`
	Total int64 `json:"total"`
}

// TurnInput is one inbound utterance: audio, text, or both (audio wins).
type TurnInput struct {
	SessionID string
	PersonaID string
	Audio     []byte
	Text      string
	Observer  StageObserver
}

// TurnResult is the assembled reply payload for one completed turn.
// AudioDegraded marks the explicit synthesis-failure branch: the reply text is
// present and the client falls back to on-device speech.
type TurnResult struct {
	TurnID        string
	SessionID     string
	PersonaID     string
	UserText      string
	AssistantText string
	Audio         []byte
	AudioDegraded bool
	Timing        *Timing
}

// Options carries the scalar orchestrator settings.
type Options struct {
	Language       string
	TimingEnabled  bool
	ArchiveTimeout time.Duration
}

// Orchestrator sequences transcription, dialogue and synthesis for each
// request and is the only writer of the session store.
type Orchestrator struct {
	personas     *persona.Registry
	sessions     *session.Store
	transcriber  Transcriber
	dialogue     Replier
	synthesizer  Synthesizer
	archiveStore archive.Store
	metrics      *observability.Metrics
	logger       *zap.Logger
	opts         Options
}

func NewOrchestrator(
	personas *persona.Registry,
	sessions *session.Store,
	transcriber Transcriber,
	dialogue Replier,
	synthesizer Synthesizer,
	archiveStore archive.Store,
	metrics *observability.Metrics,
	logger *zap.Logger,
	opts Options,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Language == "" {
		opts.Language = "fr"
	}
	if opts.ArchiveTimeout <= 0 {
		opts.ArchiveTimeout = 2 * time.Second
	}
	return &Orchestrator{
		personas:     personas,
		sessions:     sessions,
		transcriber:  transcriber,
		dialogue:     dialogue,
		synthesizer:  synthesizer,
		archiveStore: archiveStore,
		metrics:      metrics,
		logger:       logger,
		opts:         opts,
	}
}

// RunTurn executes one conversational turn. Stages run strictly in order;
// synthesis is best-effort and its failure degrades the result instead of
// failing the turn.
func (o *Orchestrator) RunTurn(ctx context.Context, in TurnInput) (*TurnResult, error) {
	totalStart := time.Now()

	text := strings.TrimSpace(in.Text)
	if len(in.Audio) == 0 && text == "" {
		return nil, ErrNoInput
	}

	p := o.personas.Resolve(in.PersonaID)
	sessionID := session.Normalize(in.SessionID)
	res := &TurnResult{
		TurnID:    uuid.NewString(),
		SessionID: sessionID,
		PersonaID: p.ID,
	}
	timing := &Timing{}

	userText := text
	if len(in.Audio) > 0 {
		var transcribed string
		sttStart := time.Now()
		err := reliability.RetryOnce(ctx, func(ctx context.Context) error {
			var terr error
			transcribed, terr = o.transcriber.Transcribe(ctx, TranscribeRequest{
				Audio:    in.Audio,
				Language: o.opts.Language,
			})
			return terr
		})
		sttDur := time.Since(sttStart)
		o.observeStage(StageTranscribe, sttDur, in.Observer)
		timing.STT = sttDur.Milliseconds()
		if err != nil {
			o.recordFailure(res, StageTranscribe, err)
			return nil, err
		}

		userText = strings.TrimSpace(transcribed)
		if userText == "" {
			// No speech detected: skip dialogue, leave history untouched and
			// answer with the fixed clarification.
			res.AssistantText = ClarificationReply
			timing.Total = time.Since(totalStart).Milliseconds()
			if o.opts.TimingEnabled {
				res.Timing = timing
			}
			o.metrics.ObserveIndicator("empty_transcript")
			o.metrics.TurnOutcomes.WithLabelValues("empty_transcript").Inc()
			o.logger.Info("no speech detected, asking caller to repeat",
				zap.String("session_id", sessionID),
				zap.String("turn_id", res.TurnID),
			)
			return res, nil
		}
	}
	res.UserText = userText

	// One in-flight mutation per session id: the lock covers both history
	// appends and the dialogue call between them, so concurrent turns on the
	// same session cannot interleave.
	unlock := o.sessions.LockTurn(sessionID)
	prior := o.sessions.Transcript(sessionID)
	o.sessions.Append(sessionID, session.Turn{Role: session.RoleUser, Text: userText})

	var reply string
	llmStart := time.Now()
	err := reliability.RetryOnce(ctx, func(ctx context.Context) error {
		var rerr error
		reply, rerr = o.dialogue.Reply(ctx, ReplyRequest{
			SystemPrompt: p.SystemPrompt,
			History:      prior,
			UserText:     userText,
		})
		return rerr
	})
	llmDur := time.Since(llmStart)
	o.observeStage(StageDialogue, llmDur, in.Observer)
	timing.LLM = llmDur.Milliseconds()
	if err != nil {
		unlock()
		// The inbound user turn stays in history: the user did say it, and it
		// keeps the next turn's context meaningful.
		o.recordFailure(res, StageDialogue, err)
		return nil, err
	}

	speakable := SanitizeSpeech(reply)
	if speakable == "" {
		speakable = FallbackReply
	}
	o.sessions.Append(sessionID, session.Turn{Role: session.RoleAssistant, Text: speakable})
	unlock()
	o.metrics.LiveSessions.Set(float64(o.sessions.Count()))
	res.AssistantText = speakable

	var audioBytes []byte
	ttsStart := time.Now()
	synthErr := reliability.RetryOnce(ctx, func(ctx context.Context) error {
		var serr error
		audioBytes, serr = o.synthesizer.Synthesize(ctx, SynthesizeRequest{
			Text:    speakable,
			VoiceID: p.VoiceID,
			Speed:   p.SpeakingRate,
		})
		return serr
	})
	ttsDur := time.Since(ttsStart)
	o.observeStage(StageSynthesize, ttsDur, in.Observer)
	timing.TTS = ttsDur.Milliseconds()

	outcome := "ok"
	if synthErr != nil {
		res.AudioDegraded = true
		outcome = "degraded_audio"
		o.noteProviderError(StageSynthesize, synthErr)
		o.metrics.ObserveIndicator("tts_degraded")
		o.logger.Warn("synthesis failed, degrading to text-only reply",
			zap.String("session_id", sessionID),
			zap.String("turn_id", res.TurnID),
			zap.Error(synthErr),
		)
	} else {
		res.Audio = audioBytes
	}

	o.archiveExchange(sessionID, p.ID, userText, speakable)

	totalDur := time.Since(totalStart)
	o.observeStage(StageTotal, totalDur, in.Observer)
	timing.Total = totalDur.Milliseconds()
	if o.opts.TimingEnabled {
		res.Timing = timing
	}
	o.metrics.TurnOutcomes.WithLabelValues(outcome).Inc()
	o.logger.Info("turn complete",
		zap.String("session_id", sessionID),
		zap.String("turn_id", res.TurnID),
		zap.String("persona_id", p.ID),
		zap.String("outcome", outcome),
		zap.Int64("total_ms", timing.Total),
	)
	return res, nil
}

// Reset clears a session's transcript. Resetting an unknown session succeeds.
func (o *Orchestrator) Reset(sessionID string) {
	key := session.Normalize(sessionID)
	o.sessions.Clear(key)
	o.metrics.LiveSessions.Set(float64(o.sessions.Count()))
	o.logger.Info("session reset", zap.String("session_id", key))
}

// SessionCount reports the number of live sessions for the health endpoint.
func (o *Orchestrator) SessionCount() int {
	return o.sessions.Count()
}

func (o *Orchestrator) observeStage(stage Stage, d time.Duration, obs StageObserver) {
	o.metrics.ObserveStage(string(stage), d)
	if obs != nil {
		obs(stage, d)
	}
}

func (o *Orchestrator) recordFailure(res *TurnResult, stage Stage, err error) {
	o.noteProviderError(stage, err)
	o.metrics.TurnOutcomes.WithLabelValues("failed").Inc()
	o.logger.Error("turn failed",
		zap.String("session_id", res.SessionID),
		zap.String("turn_id", res.TurnID),
		zap.String("stage", string(stage)),
		zap.Error(err),
	)
}

func (o *Orchestrator) noteProviderError(stage Stage, err error) {
	code := "internal"
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		code = gwErr.Code
	}
	o.metrics.ProviderErrors.WithLabelValues(string(stage), code).Inc()
}

// archiveExchange writes the completed exchange behind the response path.
// Archived text is PII-redacted; failures are logged and dropped.
func (o *Orchestrator) archiveExchange(sessionID, personaID, userText, assistantText string) {
	if o.archiveStore == nil {
		return
	}
	redactedUser, userChanged := policy.RedactPII(userText)
	redactedAssistant, assistantChanged := policy.RedactPII(assistantText)
	ex := archive.Exchange{
		SessionID:     sessionID,
		PersonaID:     personaID,
		UserText:      redactedUser,
		AssistantText: redactedAssistant,
		Redacted:      userChanged || assistantChanged,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), o.opts.ArchiveTimeout)
		defer cancel()
		if err := o.archiveStore.SaveExchange(ctx, ex); err != nil {
			o.logger.Warn("archive write failed",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		}
	}()
}
