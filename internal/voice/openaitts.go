package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ljoubert/compagnon/internal/reliability"
)

// TTSConfig configures the OpenAI text-to-speech gateway.
type TTSConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Format  string
	Timeout time.Duration
}

// OpenAITTS synthesizes reply audio through the OpenAI speech API.
type OpenAITTS struct {
	cfg    TTSConfig
	client *http.Client
	logger *zap.Logger
}

func NewOpenAITTS(cfg TTSConfig, logger *zap.Logger) *OpenAITTS {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "tts-1"
	}
	if strings.TrimSpace(cfg.Format) == "" {
		cfg.Format = "mp3"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 25 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAITTS{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type ttsRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
}

// Synthesize converts the reply text to audio bytes in the configured format.
func (s *OpenAITTS) Synthesize(ctx context.Context, req SynthesizeRequest) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, synthesisFailed(fmt.Errorf("text input is required"), false)
	}

	body := ttsRequest{
		Model:          s.cfg.Model,
		Input:          req.Text,
		Voice:          req.VoiceID,
		ResponseFormat: s.cfg.Format,
	}
	if req.Speed > 0 {
		body.Speed = req.Speed
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, synthesisFailed(fmt.Errorf("marshal request: %w", err), false)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(s.cfg.BaseURL, "/")+"/v1/audio/speech", bytes.NewReader(payload))
	if err != nil {
		return nil, synthesisFailed(fmt.Errorf("build request: %w", err), false)
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, synthesisFailed(fmt.Errorf("tts request failed: %w", err), reliability.IsTransientAbort(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, synthesisFailed(
			fmt.Errorf("tts error: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(errBody))),
			reliability.IsRetryableHTTPStatus(resp.StatusCode),
		)
	}

	audioBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, synthesisFailed(fmt.Errorf("read tts body: %w", err), reliability.IsTransientAbort(err))
	}
	if len(audioBytes) == 0 {
		return nil, synthesisFailed(fmt.Errorf("tts returned empty audio"), false)
	}

	s.logger.Debug("synthesis complete",
		zap.String("voice", req.VoiceID),
		zap.Int("chars", len(req.Text)),
		zap.Int("audio_bytes", len(audioBytes)),
	)
	return audioBytes, nil
}
