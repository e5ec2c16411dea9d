package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"
)

type options struct {
	baseURL        string
	sessionID      string
	avatarID       string
	turns          int
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	texts          []string
	verbose        bool
}

type chatRequest struct {
	Text      string `json:"text"`
	AvatarID  string `json:"avatarId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

type chatResponse struct {
	AssistantText string  `json:"assistantText"`
	AudioBase64   *string `json:"audioBase64"`
	Timing        *struct {
		STT   int64 `json:"stt"`
		LLM   int64 `json:"llm"`
		TTS   int64 `json:"tts"`
		Total int64 `json:"total"`
	} `json:"timing"`
}

var defaultUtterances = []string{
	"Bonjour, comment allez-vous ?",
	"Quel temps fait-il aujourd'hui ?",
	"Pouvez-vous me rappeler mes rendez-vous ?",
	"Racontez-moi quelque chose d'agréable.",
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	client := &http.Client{Timeout: opts.turnTimeout}

	var wallMS, llmMS, ttsMS []float64
	degraded := 0

	for i := 0; i < opts.turns; i++ {
		text := opts.texts[i%len(opts.texts)]
		start := time.Now()
		res, err := runTurn(client, opts, text)
		wall := time.Since(start)
		if err != nil {
			fmt.Fprintf(os.Stderr, "turn %d failed: %v\n", i+1, err)
			os.Exit(1)
		}

		wallMS = append(wallMS, float64(wall.Milliseconds()))
		if res.Timing != nil {
			llmMS = append(llmMS, float64(res.Timing.LLM))
			ttsMS = append(ttsMS, float64(res.Timing.TTS))
		}
		if res.AudioBase64 == nil {
			degraded++
		}
		if opts.verbose {
			fmt.Printf("turn %d: %dms %q\n", i+1, wall.Milliseconds(), res.AssistantText)
		}

		if i < opts.turns-1 && opts.interTurnDelay > 0 {
			time.Sleep(opts.interTurnDelay)
		}
	}

	fmt.Printf("turns: %d  session: %s  avatar: %s\n", opts.turns, opts.sessionID, opts.avatarID)
	printStats("wall", wallMS)
	printStats("llm", llmMS)
	printStats("tts", ttsMS)
	if degraded > 0 {
		fmt.Printf("degraded (no audio): %d/%d\n", degraded, opts.turns)
	}
}

func runTurn(client *http.Client, opts options, text string) (*chatResponse, error) {
	payload, err := json.Marshal(chatRequest{
		Text:      text,
		AvatarID:  opts.avatarID,
		SessionID: opts.sessionID,
	})
	if err != nil {
		return nil, err
	}

	res, err := client.Post(opts.baseURL+"/chat", "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return nil, fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded chatResponse
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if decoded.AssistantText == "" {
		return nil, fmt.Errorf("empty assistantText")
	}
	return &decoded, nil
}

func printStats(name string, samples []float64) {
	if len(samples) == 0 {
		fmt.Printf("%-5s no samples\n", name)
		return
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	fmt.Printf("%-5s avg=%.0fms p50=%.0fms p95=%.0fms p99=%.0fms max=%.0fms\n",
		name,
		sum/float64(len(sorted)),
		quantile(sorted, 0.50),
		quantile(sorted, 0.95),
		quantile(sorted, 0.99),
		sorted[len(sorted)-1],
	)
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func parseFlags() (options, error) {
	var opts options
	var texts string

	flag.StringVar(&opts.baseURL, "url", "http://localhost:3000", "base URL of the running service")
	flag.StringVar(&opts.sessionID, "session", "bench", "session id reused across turns")
	flag.StringVar(&opts.avatarID, "avatar", "femme", "persona id")
	flag.IntVar(&opts.turns, "turns", 8, "number of turns to run")
	flag.DurationVar(&opts.interTurnDelay, "delay", 500*time.Millisecond, "pause between turns")
	flag.DurationVar(&opts.turnTimeout, "timeout", 30*time.Second, "per-turn timeout")
	flag.StringVar(&texts, "texts", "", "pipe-separated utterances (default: built-in French set)")
	flag.BoolVar(&opts.verbose, "v", false, "print each reply")
	flag.Parse()

	if opts.turns <= 0 {
		return options{}, fmt.Errorf("-turns must be positive")
	}
	opts.baseURL = strings.TrimRight(opts.baseURL, "/")

	opts.texts = defaultUtterances
	if strings.TrimSpace(texts) != "" {
		var parsed []string
		for _, t := range strings.Split(texts, "|") {
			if t = strings.TrimSpace(t); t != "" {
				parsed = append(parsed, t)
			}
		}
		if len(parsed) == 0 {
			return options{}, fmt.Errorf("-texts contained no usable utterances")
		}
		opts.texts = parsed
	}

	return opts, nil
}
