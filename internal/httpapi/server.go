package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ljoubert/compagnon/internal/config"
	"github.com/ljoubert/compagnon/internal/observability"
	"github.com/ljoubert/compagnon/internal/persona"
	"github.com/ljoubert/compagnon/internal/voice"
)

// maxAudioBytes bounds one uploaded utterance. Recordings from the companion
// app are a few hundred KB; anything near this limit is not speech.
const maxAudioBytes = 10 << 20

// Orchestrator is the turn pipeline consumed by the HTTP surface.
type Orchestrator interface {
	RunTurn(ctx context.Context, in voice.TurnInput) (*voice.TurnResult, error)
	Reset(sessionID string)
	SessionCount() int
}

type Server struct {
	cfg          config.Config
	personas     *persona.Registry
	orchestrator Orchestrator
	metrics      *observability.Metrics
	logger       *zap.Logger
	upgrader     websocket.Upgrader
}

func New(cfg config.Config, personas *persona.Registry, orchestrator Orchestrator, metrics *observability.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:          cfg,
		personas:     personas,
		orchestrator: orchestrator,
		metrics:      metrics,
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Browser connections must come from the same origin. Native
				// clients omit Origin and are allowed through.
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/personas", s.handleListPersonas)
	r.Get("/stats", s.handleStats)

	r.Post("/voice", s.handleVoice)
	r.Post("/chat", s.handleChat)
	r.Post("/reset", s.handleReset)
	r.Get("/voice/stream", s.handleVoiceStream)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"sessions":  s.orchestrator.SessionCount(),
	})
}

func (s *Server) handleListPersonas(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"personas": s.personas.List(),
		"default":  persona.DefaultID,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.StatsSnapshot())
}

// turnResponse is the reply payload shared by /voice and /chat. AudioBase64 is
// null when synthesis degraded or the empty-transcript fast path fired.
type turnResponse struct {
	UserText      string        `json:"userText"`
	AssistantText string        `json:"assistantText"`
	AudioBase64   *string       `json:"audioBase64"`
	Timing        *voice.Timing `json:"timing,omitempty"`
}

func turnResponseFrom(res *voice.TurnResult) turnResponse {
	out := turnResponse{
		UserText:      res.UserText,
		AssistantText: res.AssistantText,
		Timing:        res.Timing,
	}
	if len(res.Audio) > 0 {
		encoded := base64.StdEncoding.EncodeToString(res.Audio)
		out.AudioBase64 = &encoded
	}
	return out
}

func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxAudioBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid multipart form")
		return
	}
	file, _, err := r.FormFile("audio")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing_audio", "multipart field audio is required")
		return
	}
	defer file.Close()

	audioBytes, err := io.ReadAll(io.LimitReader(file, maxAudioBytes+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "could not read audio field")
		return
	}
	if len(audioBytes) == 0 {
		respondError(w, http.StatusBadRequest, "missing_audio", "audio field is empty")
		return
	}
	if len(audioBytes) > maxAudioBytes {
		respondError(w, http.StatusRequestEntityTooLarge, "audio_too_large", "audio exceeds the upload limit")
		return
	}

	res, err := s.orchestrator.RunTurn(r.Context(), voice.TurnInput{
		SessionID: r.FormValue("sessionId"),
		PersonaID: r.FormValue("avatarId"),
		Audio:     audioBytes,
	})
	if err != nil {
		s.respondTurnError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, turnResponseFrom(res))
}

type chatRequest struct {
	Text      string `json:"text"`
	AvatarID  string `json:"avatarId"`
	SessionID string `json:"sessionId"`
}

type chatResponse struct {
	AssistantText string        `json:"assistantText"`
	AudioBase64   *string       `json:"audioBase64"`
	Timing        *voice.Timing `json:"timing,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "missing_text", "field text is required")
		return
	}

	res, err := s.orchestrator.RunTurn(r.Context(), voice.TurnInput{
		SessionID: req.SessionID,
		PersonaID: req.AvatarID,
		Text:      req.Text,
	})
	if err != nil {
		s.respondTurnError(w, err)
		return
	}

	full := turnResponseFrom(res)
	respondJSON(w, http.StatusOK, chatResponse{
		AssistantText: full.AssistantText,
		AudioBase64:   full.AudioBase64,
		Timing:        full.Timing,
	})
}

type resetRequest struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	s.orchestrator.Reset(req.SessionID)
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// respondTurnError maps pipeline failures to HTTP statuses: missing input is
// the caller's fault, everything else is an upstream failure.
func (s *Server) respondTurnError(w http.ResponseWriter, err error) {
	if errors.Is(err, voice.ErrNoInput) {
		respondError(w, http.StatusBadRequest, "missing_input", "audio or text input is required")
		return
	}
	var gwErr *voice.GatewayError
	if errors.As(err, &gwErr) {
		respondError(w, http.StatusInternalServerError, gwErr.Code, "the assistant could not process this request")
		return
	}
	respondError(w, http.StatusInternalServerError, "internal", "the assistant could not process this request")
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
