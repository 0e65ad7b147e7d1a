// Package llm wraps the language-model backends used to read emotion
// signals, fuse them, write music prompts and reflect on feedback.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	// ErrMalformedResponse means the completion could not be parsed into the
	// requested structure.
	ErrMalformedResponse = errors.New("malformed completion")
	// ErrEmptyResponse means the backend returned no text at all.
	ErrEmptyResponse = errors.New("empty completion")
)

// Part is one piece of user input: text, or inline bytes with a MIME type.
type Part struct {
	Text     string
	Data     []byte
	MIMEType string
}

// TextPart returns a text input part.
func TextPart(s string) Part { return Part{Text: s} }

// BlobPart returns an inline binary input part.
func BlobPart(data []byte, mimeType string) Part {
	return Part{Data: data, MIMEType: mimeType}
}

// Request is a single-turn completion request.
type Request struct {
	System      string
	Parts       []Part
	Temperature float64
	// Schema, when set, asks the backend for JSON matching it.
	Schema     map[string]any
	SchemaName string
}

// Completer produces one completion for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f(ctx, req).
func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Transcriber turns recorded speech into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// AskText runs req and returns the trimmed completion text.
func AskText(ctx context.Context, c Completer, req Request) (string, error) {
	out, err := c.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(StripCodeFences(out))
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}

// AskJSON runs req with a schema generated from T and decodes the reply.
// Decoding failures wrap ErrMalformedResponse.
func AskJSON[T any](ctx context.Context, c Completer, req Request) (T, error) {
	var zero T
	if req.Schema == nil {
		req.Schema = GenerateSchema[T]()
	}
	if req.SchemaName == "" {
		req.SchemaName = "response"
	}

	out, err := c.Complete(ctx, req)
	if err != nil {
		return zero, err
	}
	out = strings.TrimSpace(StripCodeFences(out))
	if out == "" {
		return zero, ErrEmptyResponse
	}

	var v T
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return v, nil
}

// StripCodeFences removes a surrounding ``` or ```json fence, if present.
func StripCodeFences(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return s
	}
	t = strings.TrimPrefix(t, "```")
	// drop the language tag, which may share a line with the payload
	if t != "" && unicode.IsLetter(rune(t[0])) {
		if i := strings.IndexFunc(t, func(r rune) bool { return !isTagRune(r) }); i > 0 {
			rest := t[i:]
			body := strings.TrimLeft(rest, " \t")
			if rest[0] == '\n' || rest[0] == '\r' || strings.HasPrefix(body, "{") || strings.HasPrefix(body, "[") {
				t = rest
			}
		}
	}
	t = strings.TrimSpace(t)
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}

func isTagRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '+'
}
