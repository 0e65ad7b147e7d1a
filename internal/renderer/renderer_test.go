package renderer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperengineering/resonance/internal/types"
)

var params = types.GenerationParams{Temperature: 1.0, GuidanceScale: 3.0, MaxNewTokens: 256}

func newTestClient(t *testing.T, url string, retries int) *Client {
	t.Helper()
	c, err := New(Config{Endpoint: url, APIKey: "hf-test", MaxRetries: retries, RetryBase: time.Millisecond})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew_RequiresEndpoint(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() with empty endpoint should fail")
	}
}

func TestPrompts(t *testing.T) {
	if got := Prompts("rain", 1); len(got) != 1 || got[0] != "rain" {
		t.Errorf("Prompts(1) = %v", got)
	}
	got := Prompts("rain", 2)
	if len(got) != 2 || got[1] != "rain with subtle variation in rhythm and texture" {
		t.Errorf("Prompts(2) = %v", got)
	}
	if got := Prompts("rain", 0); len(got) != 1 {
		t.Errorf("Prompts(0) = %v, want one prompt", got)
	}
}

func TestRender_SendsRequestAndReturnsAudio(t *testing.T) {
	// Given: an endpoint that echoes the prompt as audio
	var mu sync.Mutex
	var seen []renderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer hf-test" {
			t.Errorf("Authorization = %q", got)
		}
		var req renderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		mu.Lock()
		seen = append(seen, req)
		mu.Unlock()
		w.Header().Set("Content-Type", "audio/wav")
		w.Write([]byte("RIFF:" + req.Inputs))
	}))
	defer srv.Close()

	// When
	audio, err := newTestClient(t, srv.URL, 0).Render(context.Background(), "soft piano", params, 2)

	// Then: buffers keep variation order
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if len(audio) != 2 {
		t.Fatalf("len(audio) = %d, want 2", len(audio))
	}
	if string(audio[0]) != "RIFF:soft piano" {
		t.Errorf("audio[0] = %q", audio[0])
	}
	if !strings.HasSuffix(string(audio[1]), VariationSuffix) {
		t.Errorf("audio[1] = %q, want variation suffix", audio[1])
	}
	for _, req := range seen {
		if !req.Parameters.DoSample || req.Parameters.MaxNewTokens != 256 || req.Parameters.GuidanceScale != 3.0 {
			t.Errorf("parameters = %+v", req.Parameters)
		}
	}
}

func TestRender_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "model loading", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("audio"))
	}))
	defer srv.Close()

	audio, err := newTestClient(t, srv.URL, 3).Render(context.Background(), "p", params, 1)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if string(audio[0]) != "audio" || calls.Load() != 3 {
		t.Errorf("audio = %q after %d calls, want audio after 3", audio[0], calls.Load())
	}
}

func TestRender_Failures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retries   int
		wantCalls int32
	}{
		{"client error is not retried", http.StatusBadRequest, "bad prompt", 3, 1},
		{"retries exhausted", http.StatusTooManyRequests, "slow down", 2, 3},
		{"empty body", http.StatusOK, "", 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv.URL, tt.retries).Render(context.Background(), "p", params, 1)

			if !errors.Is(err, ErrRenderFailed) {
				t.Errorf("Render() error = %v, want ErrRenderFailed", err)
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls.Load(), tt.wantCalls)
			}
		})
	}
}

func TestRender_StatusErrorDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported model", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, 0).Render(context.Background(), "p", params, 1)

	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("error = %v, want StatusError 422", err)
	}
	if !strings.Contains(se.Body, "unsupported model") {
		t.Errorf("Body = %q", se.Body)
	}
}
