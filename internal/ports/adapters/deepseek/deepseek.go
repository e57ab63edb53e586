// Package deepseek asks an OpenAI-compatible chat-completion endpoint to
// select and order highlight segments from a merged transcript.
package deepseek

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mediacut/highlightd/internal/domain/transcript"
	"github.com/mediacut/highlightd/internal/ports"
	"github.com/mediacut/highlightd/internal/types"
)

const (
	requestTimeout = 2 * time.Minute
	maxAttempts    = 3
)

// The response must keep the merged-transcript line format so the clip
// order can be parsed back out. The line order of the response is the
// playback order of the final reel.
const defaultSystemPrompt = `You are a professional transcript analyst and video editor. You read the transcript of one or more videos and pick the segments worth keeping in a highlight reel.

Output requirements:
- Keep the exact input format, and output nothing else:

=== video name ===
[00:00:00.000 - 00:00:05.000] segment text

- The order of the lines you output is the final playback order. You may freely reorder segments across videos for narrative effect.
- Drop segments that repeat or closely duplicate earlier content, keeping the most representative one.`

type Adapter struct {
	key           string
	model         string
	baseURL       string
	systemPrompt  string
	overlapDedupe float64
	client        *http.Client
	backoff       time.Duration
}

// New builds the analyzer client. overlapDedupe is forwarded to the
// response parser's near-duplicate suppression.
func New(apiKey, model, baseURL, systemPrompt string, overlapDedupe float64) *Adapter {
	if model == "" {
		model = "deepseek-chat"
	}
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	return &Adapter{
		key:           apiKey,
		model:         model,
		baseURL:       normalizeBaseURL(baseURL),
		systemPrompt:  systemPrompt,
		overlapDedupe: overlapDedupe,
		client:        &http.Client{Timeout: requestTimeout},
		backoff:       time.Second,
	}
}

// SelectSegments sends the merged transcript to the model and parses the
// returned clip order. Server-side (5xx) and transport errors are
// retried with backoff; client errors are not.
func (a *Adapter) SelectSegments(ctx context.Context, transcriptText, hint string) ([]types.ClipRange, error) {
	if a.key == "" {
		return nil, errors.New("analyzer not configured: set AI_API_KEY")
	}

	userHint := strings.TrimSpace(hint)
	if userHint == "" {
		userHint = "Select the important segments and keep the timestamp format."
	}
	payload := map[string]any{
		"model":  a.model,
		"stream": false,
		"messages": []map[string]any{
			{"role": "system", "content": a.systemPrompt},
			{"role": "user", "content": userHint + "\n\nTranscript:\n\n" + transcriptText},
		},
		"temperature": 0.5,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	content, err := a.complete(ctx, body)
	if err != nil {
		return nil, err
	}

	ranges := transcript.ParseAnalysis(content, a.overlapDedupe)
	if len(ranges) == 0 {
		return nil, fmt.Errorf("analysis produced no usable segments")
	}
	return ranges, nil
}

func (a *Adapter) complete(ctx context.Context, body []byte) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt*attempt) * a.backoff):
			}
		}
		content, retryable, err := a.completeOnce(ctx, body)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if !retryable {
			return "", err
		}
	}
	return "", fmt.Errorf("analysis failed after %d attempts: %w", maxAttempts, lastErr)
}

func (a *Adapter) completeOnce(ctx context.Context, body []byte) (content string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Authorization", "Bearer "+a.key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", true, fmt.Errorf("analyzer status %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", false, fmt.Errorf("analyzer status %d: %s", resp.StatusCode, truncate(string(rb), 400))
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", false, fmt.Errorf("decode analyzer response: %w", err)
	}
	if len(raw.Choices) == 0 {
		return "", false, errors.New("analyzer response has no choices")
	}
	return raw.Choices[0].Message.Content, false, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ ports.Analyzer = (*Adapter)(nil)
