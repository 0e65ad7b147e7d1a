package llm

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/sethvargo/go-retry"
	"google.golang.org/genai"
)

// Retrying wraps a Completer and retries transport failures with
// exponential backoff. Malformed and empty completions are not retried,
// nor are client errors such as a bad key or a rejected request.
type Retrying struct {
	next       Completer
	maxRetries uint64
	base       time.Duration
}

// WithRetry returns c wrapped in a Retrying completer.
func WithRetry(c Completer, maxRetries uint64, base time.Duration) *Retrying {
	return &Retrying{next: c, maxRetries: maxRetries, base: base}
}

// Complete calls the wrapped completer until it succeeds or retries run out.
func (r *Retrying) Complete(ctx context.Context, req Request) (string, error) {
	var out string
	backoff := retry.WithMaxRetries(r.maxRetries, retry.NewExponential(r.base))
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		var err error
		out, err = r.next.Complete(ctx, req)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrMalformedResponse) || errors.Is(err, ErrEmptyResponse) || permanent(err) || ctx.Err() != nil {
			return err
		}
		slog.Warn("completion failed, retrying", "component", "llm", "attempt", attempt, "error", err)
		return retry.RetryableError(err)
	})
	return out, err
}

// permanent reports whether err carries a 4xx status from either backend
// that retrying cannot fix. 408 and 429 stay retryable.
func permanent(err error) bool {
	var gerr genai.APIError
	if errors.As(err, &gerr) {
		return clientError(gerr.Code)
	}
	var oerr *openai.Error
	if errors.As(err, &oerr) {
		return clientError(oerr.StatusCode)
	}
	return false
}

func clientError(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return false
	}
	return code >= 400 && code < 500
}
