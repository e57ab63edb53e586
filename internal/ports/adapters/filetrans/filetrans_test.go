package filetrans

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mediacut/highlightd/internal/ports"
)

// fakeService implements the upload + submit + poll flow in memory.
type fakeService struct {
	t           *testing.T
	pollsNeeded int32
	finalStatus string
	polls       atomic.Int32
	uploaded    atomic.Int32
}

func (f *fakeService) handler() http.Handler {
	// Go 1.21-compatible routing: method and path wildcards are matched by
	// hand instead of via 1.22 ServeMux patterns.
	mux := http.NewServeMux()
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		name := strings.TrimPrefix(r.URL.Path, "/files/")
		body, _ := io.ReadAll(r.Body)
		if len(body) == 0 {
			f.t.Error("upload body empty")
		}
		f.uploaded.Add(1)
		json.NewEncoder(w).Encode(map[string]string{"url": "https://files.example/" + name})
	})
	mux.HandleFunc("/transcriptions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			AppKey   string `json:"appKey"`
			FileLink string `json:"fileLink"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.AppKey != "test-app" {
			f.t.Errorf("appKey = %q", req.AppKey)
		}
		if !strings.HasPrefix(req.FileLink, "https://files.example/") {
			f.t.Errorf("fileLink = %q", req.FileLink)
		}
		json.NewEncoder(w).Encode(map[string]string{"taskId": "task-7"})
	})
	mux.HandleFunc("/transcriptions/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/transcriptions/")
		if id != "task-7" {
			f.t.Errorf("task id = %q", id)
		}
		if f.polls.Add(1) <= f.pollsNeeded {
			json.NewEncoder(w).Encode(map[string]any{"statusText": "RUNNING"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"statusText": f.finalStatus,
			"sentences": []map[string]any{
				{"beginTime": 1500, "endTime": 4250, "text": "hello"},
				{"beginTime": 6000, "endTime": 9000, "text": "world"},
			},
		})
	})
	return mux
}

func audioFixture(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "a_audio.mp3")
	if err := os.WriteFile(p, []byte("mp3-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func newTestAdapter(url string) *Adapter {
	return New(url, "test-app", time.Millisecond, 10)
}

func TestTranscribe(t *testing.T) {
	t.Parallel()
	svc := &fakeService{t: t, pollsNeeded: 2, finalStatus: statusSuccess}
	ts := httptest.NewServer(svc.handler())
	defer ts.Close()

	got, err := newTestAdapter(ts.URL).Transcribe(context.Background(), audioFixture(t))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d sentences", len(got))
	}
	// service reports milliseconds, sentences carry seconds
	if got[0].StartSec != 1.5 || got[0].EndSec != 4.25 || got[0].Text != "hello" {
		t.Errorf("first sentence = %+v", got[0])
	}
	if svc.polls.Load() != 3 {
		t.Errorf("polled %d times, want 3", svc.polls.Load())
	}
}

func TestTranscribeNoSpeech(t *testing.T) {
	t.Parallel()
	svc := &fakeService{t: t, finalStatus: statusNoValidContent}
	ts := httptest.NewServer(svc.handler())
	defer ts.Close()

	_, err := newTestAdapter(ts.URL).Transcribe(context.Background(), audioFixture(t))
	if !errors.Is(err, ports.ErrNoSpeech) {
		t.Fatalf("Transcribe = %v, want ErrNoSpeech", err)
	}
}

func TestTranscribeFailureStatus(t *testing.T) {
	t.Parallel()
	svc := &fakeService{t: t, finalStatus: "FAILED"}
	ts := httptest.NewServer(svc.handler())
	defer ts.Close()

	if _, err := newTestAdapter(ts.URL).Transcribe(context.Background(), audioFixture(t)); err == nil {
		t.Fatal("Transcribe succeeded on FAILED status")
	}
}

func TestTranscribeGivesUpAfterMaxPolls(t *testing.T) {
	t.Parallel()
	svc := &fakeService{t: t, pollsNeeded: 1000, finalStatus: statusSuccess}
	ts := httptest.NewServer(svc.handler())
	defer ts.Close()

	a := New(ts.URL, "test-app", time.Millisecond, 3)
	if _, err := a.Transcribe(context.Background(), audioFixture(t)); err == nil {
		t.Fatal("Transcribe never gave up")
	}
	if svc.polls.Load() != 3 {
		t.Errorf("polled %d times, want 3", svc.polls.Load())
	}
}

func TestTranscribeRespectsContext(t *testing.T) {
	t.Parallel()
	svc := &fakeService{t: t, pollsNeeded: 1000, finalStatus: statusSuccess}
	ts := httptest.NewServer(svc.handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	a := New(ts.URL, "test-app", time.Hour, 10)
	audio := audioFixture(t)

	done := make(chan error, 1)
	go func() {
		_, err := a.Transcribe(ctx, audio)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Transcribe = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Transcribe ignored cancellation")
	}
}

func TestTranscribeUnconfigured(t *testing.T) {
	t.Parallel()
	a := New("", "", time.Second, 1)
	if _, err := a.Transcribe(context.Background(), audioFixture(t)); err == nil {
		t.Fatal("unconfigured adapter succeeded")
	}
}
