package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/ljoubert/compagnon/internal/reliability"
	"github.com/ljoubert/compagnon/internal/session"
)

// FallbackReply is substituted when the dialogue provider returns empty or
// malformed output, so the caller never receives an empty assistant turn.
const FallbackReply = "Je suis là pour vous aider."

// ClaudeConfig configures the Anthropic dialogue gateway.
type ClaudeConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// MaxTokens is a hard output ceiling sent to the provider, keeping replies
	// short for senior listeners. It is a request parameter, not truncation.
	MaxTokens     int
	ContextBudget int
	Timeout       time.Duration
}

// ClaudeDialogue obtains persona-constrained replies from the Anthropic
// Messages API.
type ClaudeDialogue struct {
	cfg    ClaudeConfig
	client *http.Client
	logger *zap.Logger

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

func NewClaudeDialogue(cfg ClaudeConfig, logger *zap.Logger) *ClaudeDialogue {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 150
	}
	if cfg.ContextBudget <= 0 {
		cfg.ContextBudget = 2048
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClaudeDialogue{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	System    string          `json:"system,omitempty"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Reply builds the message sequence from the prior transcript plus the new
// user turn and requests one assistant reply. History beyond the context token
// budget is dropped oldest-first before the call.
func (d *ClaudeDialogue) Reply(ctx context.Context, req ReplyRequest) (string, error) {
	history := d.trimToBudget(req.SystemPrompt, req.History, req.UserText)

	messages := make([]claudeMessage, 0, len(history)+1)
	for _, turn := range history {
		messages = append(messages, claudeMessage{Role: string(turn.Role), Content: turn.Text})
	}
	messages = append(messages, claudeMessage{Role: string(session.RoleUser), Content: req.UserText})

	payload, err := json.Marshal(claudeRequest{
		Model:     d.cfg.Model,
		MaxTokens: d.cfg.MaxTokens,
		System:    req.SystemPrompt,
		Messages:  messages,
	})
	if err != nil {
		return "", dialogueFailed(fmt.Errorf("marshal request: %w", err), false)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(d.cfg.BaseURL, "/")+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", dialogueFailed(fmt.Errorf("build request: %w", err), false)
	}
	httpReq.Header.Set("x-api-key", d.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return "", dialogueFailed(fmt.Errorf("dialogue request failed: %w", err), reliability.IsTransientAbort(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", dialogueFailed(
			fmt.Errorf("dialogue error: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(errBody))),
			reliability.IsRetryableHTTPStatus(resp.StatusCode),
		)
	}

	var decoded claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", dialogueFailed(fmt.Errorf("decode dialogue response: %w", err), false)
	}
	if decoded.Error != nil {
		return "", dialogueFailed(fmt.Errorf("dialogue error: %s: %s", decoded.Error.Type, decoded.Error.Message), false)
	}

	var reply string
	for _, block := range decoded.Content {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			reply = strings.TrimSpace(block.Text)
			break
		}
	}
	if reply == "" {
		d.logger.Warn("dialogue provider returned empty content, using fallback reply")
		return FallbackReply, nil
	}
	return reply, nil
}

// trimToBudget drops the oldest turns while the estimated prompt size exceeds
// the context token budget. The transcript is already bounded by turn count;
// this guards against a handful of unusually long turns.
func (d *ClaudeDialogue) trimToBudget(systemPrompt string, history []session.Turn, userText string) []session.Turn {
	fixed := d.estimateTokens(systemPrompt) + d.estimateTokens(userText)
	perTurn := make([]int, len(history))
	total := fixed
	for i, turn := range history {
		perTurn[i] = d.estimateTokens(turn.Text)
		total += perTurn[i]
	}

	start := 0
	for start < len(history) && total > d.cfg.ContextBudget {
		total -= perTurn[start]
		start++
	}
	if start > 0 {
		d.logger.Debug("trimmed dialogue context to token budget",
			zap.Int("dropped_turns", start),
			zap.Int("estimated_tokens", total),
		)
	}
	return history[start:]
}

// estimateTokens approximates the token count of text. The BPE encoding is
// loaded lazily; when unavailable (offline), a bytes/4 heuristic is close
// enough for budget trimming.
func (d *ClaudeDialogue) estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	d.encOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			d.logger.Warn("token encoding unavailable, falling back to heuristic", zap.Error(err))
			return
		}
		d.enc = enc
	})
	if d.enc != nil {
		return len(d.enc.Encode(text, nil, nil))
	}
	return len(text)/4 + 1
}
