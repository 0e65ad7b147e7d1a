// Package renderer calls a MusicGen-style inference endpoint that turns a
// text prompt into audio.
package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hyperengineering/resonance/internal/types"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

// VariationSuffix is appended to the prompt of the second variation.
const VariationSuffix = " with subtle variation in rhythm and texture"

// MaxVariations is the number of audio buffers one call may produce.
const MaxVariations = 2

// maxAudioBytes bounds a single response body.
const maxAudioBytes = 64 << 20

// ErrRenderFailed is returned when the endpoint cannot produce audio.
var ErrRenderFailed = errors.New("render failed")

// StatusError describes a non-success response from the endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("renderer returned %d", e.StatusCode)
	}
	return fmt.Sprintf("renderer returned %d: %s", e.StatusCode, e.Body)
}

// Unwrap ties every status failure to ErrRenderFailed.
func (e *StatusError) Unwrap() error { return ErrRenderFailed }

func (e *StatusError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Config configures a Client.
type Config struct {
	Endpoint   string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	// RetryBase is the first backoff delay; defaults to one second.
	RetryBase time.Duration
}

// Client renders prompts through an HTTP inference endpoint.
type Client struct {
	endpoint   string
	apiKey     string
	maxRetries uint64
	retryBase  time.Duration
	client     *http.Client
}

// New creates a Client. An empty endpoint is an error.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("renderer endpoint not configured")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		maxRetries: uint64(max(cfg.MaxRetries, 0)),
		retryBase:  cfg.RetryBase,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

type renderRequest struct {
	Inputs     string           `json:"inputs"`
	Parameters renderParameters `json:"parameters"`
}

type renderParameters struct {
	DoSample      bool    `json:"do_sample"`
	Temperature   float64 `json:"temperature,omitempty"`
	GuidanceScale float64 `json:"guidance_scale,omitempty"`
	MaxNewTokens  int     `json:"max_new_tokens,omitempty"`
}

// Prompts returns the prompt for each requested variation.
func Prompts(prompt string, variations int) []string {
	prompts := []string{prompt}
	if variations >= MaxVariations {
		prompts = append(prompts, prompt+VariationSuffix)
	}
	return prompts
}

// Render produces one audio buffer per variation, in order. Variations are
// rendered concurrently; any failure fails the whole call.
func (c *Client) Render(ctx context.Context, prompt string, params types.GenerationParams, variations int) ([][]byte, error) {
	prompts := Prompts(prompt, variations)
	out := make([][]byte, len(prompts))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range prompts {
		g.Go(func() error {
			audio, err := c.renderOne(gctx, p, params)
			if err != nil {
				return fmt.Errorf("variation %d: %w", i+1, err)
			}
			out[i] = audio
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) renderOne(ctx context.Context, prompt string, params types.GenerationParams) ([]byte, error) {
	body, err := json.Marshal(renderRequest{
		Inputs: prompt,
		Parameters: renderParameters{
			DoSample:      true,
			Temperature:   params.Temperature,
			GuidanceScale: params.GuidanceScale,
			MaxNewTokens:  params.MaxNewTokens,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal render request: %w", err)
	}

	var audio []byte
	attempt := 0
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.retryBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		var err error
		audio, err = c.post(ctx, body)
		if err == nil {
			return nil
		}
		var se *StatusError
		if errors.As(err, &se) && !se.retryable() {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		slog.Warn("render attempt failed, retrying",
			"component", "renderer",
			"attempt", attempt,
			"error", err,
		)
		return retry.RetryableError(err)
	})
	if err != nil {
		if errors.Is(err, ErrRenderFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}
	return audio, nil
}

// post sends one authenticated request and returns the audio body.
func (c *Client) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(data), 200)}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty audio body", ErrRenderFailed)
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
