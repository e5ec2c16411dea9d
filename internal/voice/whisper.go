package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ljoubert/compagnon/internal/audio"
	"github.com/ljoubert/compagnon/internal/reliability"
)

// WhisperConfig configures the OpenAI speech-to-text gateway.
type WhisperConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// WhisperTranscriber transcribes audio through the OpenAI transcription API.
type WhisperTranscriber struct {
	cfg    WhisperConfig
	client *http.Client
	logger *zap.Logger
}

func NewWhisperTranscriber(cfg WhisperConfig, logger *zap.Logger) *WhisperTranscriber {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 25 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WhisperTranscriber{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type whisperResponse struct {
	Text string `json:"text"`
}

// Transcribe sends the audio blob to the provider and returns the recognized
// text, trimmed. An empty result means no speech was detected and is a valid
// outcome, not an error.
func (t *WhisperTranscriber) Transcribe(ctx context.Context, req TranscribeRequest) (string, error) {
	if len(req.Audio) == 0 {
		return "", transcriptionFailed(fmt.Errorf("audio input is required"), false)
	}

	format := audio.DetectFormat(req.Audio)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "audio."+format.Ext)
	if err != nil {
		return "", transcriptionFailed(fmt.Errorf("create form file: %w", err), false)
	}
	if _, err := part.Write(req.Audio); err != nil {
		return "", transcriptionFailed(fmt.Errorf("write audio part: %w", err), false)
	}
	_ = writer.WriteField("model", t.cfg.Model)
	if req.Language != "" {
		_ = writer.WriteField("language", req.Language)
	}
	_ = writer.WriteField("response_format", "json")
	if err := writer.Close(); err != nil {
		return "", transcriptionFailed(fmt.Errorf("close multipart writer: %w", err), false)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(t.cfg.BaseURL, "/")+"/v1/audio/transcriptions", &buf)
	if err != nil {
		return "", transcriptionFailed(fmt.Errorf("build request: %w", err), false)
	}
	httpReq.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return "", transcriptionFailed(fmt.Errorf("whisper request failed: %w", err), reliability.IsTransientAbort(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", transcriptionFailed(
			fmt.Errorf("whisper error: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(errBody))),
			reliability.IsRetryableHTTPStatus(resp.StatusCode),
		)
	}

	var decoded whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", transcriptionFailed(fmt.Errorf("decode whisper response: %w", err), false)
	}

	text := strings.TrimSpace(decoded.Text)
	t.logger.Debug("transcription complete",
		zap.Int("audio_bytes", len(req.Audio)),
		zap.String("container", format.Ext),
		zap.Int("text_len", len(text)),
	)
	return text, nil
}
