// Package filetrans is the client for the remote file-transcription
// service: upload the audio, submit a transcription task, poll until the
// service finishes.
package filetrans

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/mediacut/highlightd/internal/ports"
	"github.com/mediacut/highlightd/internal/types"
)

// Task states reported by the service.
const (
	statusQueueing       = "QUEUEING"
	statusRunning        = "RUNNING"
	statusSuccess        = "SUCCESS"
	statusNoValidContent = "SUCCESS_WITH_NO_VALID_FRAGMENT"
)

type Adapter struct {
	baseURL      string
	appKey       string
	pollInterval time.Duration
	maxPollTries int
	client       *http.Client
}

func New(baseURL, appKey string, pollInterval time.Duration, maxPollTries int) *Adapter {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	if maxPollTries <= 0 {
		maxPollTries = 180
	}
	return &Adapter{
		baseURL:      normalizeBaseURL(baseURL),
		appKey:       appKey,
		pollInterval: pollInterval,
		maxPollTries: maxPollTries,
		client:       &http.Client{Timeout: 2 * time.Minute},
	}
}

// Transcribe uploads audioPath, submits a transcription task, and polls
// for the result. Returns ports.ErrNoSpeech when the service reports no
// transcribable content.
func (a *Adapter) Transcribe(ctx context.Context, audioPath string) ([]types.Sentence, error) {
	if a.baseURL == "" || a.appKey == "" {
		return nil, errors.New("transcription service not configured: set ASR_BASE_URL and ASR_APP_KEY")
	}

	fileURL, err := a.upload(ctx, audioPath)
	if err != nil {
		return nil, fmt.Errorf("upload audio: %w", err)
	}
	taskID, err := a.submit(ctx, fileURL)
	if err != nil {
		return nil, fmt.Errorf("submit transcription: %w", err)
	}
	return a.poll(ctx, taskID)
}

func (a *Adapter) upload(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	name := filepath.Base(audioPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, a.baseURL+"/files/"+name, f)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "audio/mpeg")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("upload status %d", resp.StatusCode)
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if out.URL == "" {
		return "", errors.New("upload response missing url")
	}
	return out.URL, nil
}

func (a *Adapter) submit(ctx context.Context, fileURL string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"appKey":      a.appKey,
		"fileLink":    fileURL,
		"enableWords": false,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/transcriptions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("submit status %d: %s", resp.StatusCode, string(rb))
	}

	var out struct {
		TaskID     string `json:"taskId"`
		StatusText string `json:"statusText"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if out.TaskID == "" {
		return "", fmt.Errorf("submit rejected: %s", out.StatusText)
	}
	return out.TaskID, nil
}

func (a *Adapter) poll(ctx context.Context, taskID string) ([]types.Sentence, error) {
	for try := 0; try < a.maxPollTries; try++ {
		status, sentences, err := a.fetchResult(ctx, taskID)
		if err != nil {
			return nil, err
		}
		switch status {
		case statusSuccess:
			return sentences, nil
		case statusNoValidContent:
			return nil, ports.ErrNoSpeech
		case statusQueueing, statusRunning:
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(a.pollInterval):
			}
		default:
			return nil, fmt.Errorf("transcription failed: %s", status)
		}
	}
	return nil, fmt.Errorf("transcription task %s still running after %d polls", taskID, a.maxPollTries)
}

func (a *Adapter) fetchResult(ctx context.Context, taskID string) (string, []types.Sentence, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/transcriptions/"+taskID, nil)
	if err != nil {
		return "", nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", nil, fmt.Errorf("result status %d", resp.StatusCode)
	}

	var out struct {
		StatusText string `json:"statusText"`
		Sentences  []struct {
			BeginTime int64  `json:"beginTime"`
			EndTime   int64  `json:"endTime"`
			Text      string `json:"text"`
		} `json:"sentences"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", nil, fmt.Errorf("decode result: %w", err)
	}

	sentences := make([]types.Sentence, 0, len(out.Sentences))
	for _, s := range out.Sentences {
		// service reports milliseconds
		sentences = append(sentences, types.Sentence{
			StartSec: float64(s.BeginTime) / 1000,
			EndSec:   float64(s.EndTime) / 1000,
			Text:     s.Text,
		})
	}
	return out.StatusText, sentences, nil
}

func normalizeBaseURL(u string) string {
	for len(u) > 0 && u[len(u)-1] == '/' {
		u = u[:len(u)-1]
	}
	return u
}

var _ ports.ASR = (*Adapter)(nil)
