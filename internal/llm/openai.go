package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Compile-time interface checks
var (
	_ Completer   = (*OpenAI)(nil)
	_ Transcriber = (*OpenAITranscriber)(nil)
)

// ChatCompletionsService defines the interface for making chat completion calls.
// This abstraction enables testing without calling the real OpenAI API.
type ChatCompletionsService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// TranscriptionsService defines the interface for audio transcription calls.
type TranscriptionsService interface {
	New(ctx context.Context, params openai.AudioTranscriptionNewParams, opts ...option.RequestOption) (*openai.Transcription, error)
}

// OpenAI implements Completer using OpenAI chat completions.
type OpenAI struct {
	completions ChatCompletionsService
	model       openai.ChatModel
}

// NewOpenAI creates a new OpenAI completer
func NewOpenAI(apiKey, model string) *OpenAI {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAI{
		completions: client.Chat.Completions,
		model:       openai.ChatModel(model),
	}
}

// Complete sends req as a system message plus one multi-part user message.
func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}

	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(req.Parts))
	for _, p := range req.Parts {
		switch {
		case len(p.Data) > 0 && strings.HasPrefix(p.MIMEType, "image/"):
			url := "data:" + p.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
			parts = append(parts, openai.ImagePart(url))
		case len(p.Data) > 0:
			return "", fmt.Errorf("openai completion: unsupported inline data type %q", p.MIMEType)
		default:
			parts = append(parts, openai.TextPart(p.Text))
		}
	}
	messages = append(messages, openai.UserMessageParts(parts...))

	params := openai.ChatCompletionNewParams{
		Messages:    openai.F(messages),
		Model:       openai.F(o.model),
		Temperature: openai.Float(req.Temperature),
	}
	if req.Schema != nil {
		params.ResponseFormat = openai.F[openai.ChatCompletionNewParamsResponseFormatUnion](
			openai.ResponseFormatJSONSchemaParam{
				Type: openai.F(openai.ResponseFormatJSONSchemaTypeJSONSchema),
				JSONSchema: openai.F(openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   openai.F(req.SchemaName),
					Schema: openai.F[interface{}](req.Schema),
					Strict: openai.Bool(true),
				}),
			},
		)
	}

	resp, err := o.completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// ModelName returns the chat model name
func (o *OpenAI) ModelName() string {
	return string(o.model)
}

// OpenAITranscriber implements Transcriber using the OpenAI audio API.
type OpenAITranscriber struct {
	transcriptions TranscriptionsService
	model          openai.AudioModel
}

// NewOpenAITranscriber creates a transcriber for the given model, e.g. whisper-1.
func NewOpenAITranscriber(apiKey, model string) *OpenAITranscriber {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAITranscriber{
		transcriptions: client.Audio.Transcriptions,
		model:          openai.AudioModel(model),
	}
}

// namedReader gives the multipart encoder a filename to derive the format from.
type namedReader struct {
	io.Reader
	name string
}

func (n namedReader) Name() string { return n.name }

// Transcribe uploads audio and returns the recognized text.
func (o *OpenAITranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	resp, err := o.transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  openai.F[io.Reader](namedReader{Reader: bytes.NewReader(audio), name: "voice" + audioExtension(mimeType)}),
		Model: openai.F(o.model),
	})
	if err != nil {
		return "", fmt.Errorf("openai transcription failed: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func audioExtension(mimeType string) string {
	switch mimeType {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	case "audio/webm":
		return ".webm"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return ".m4a"
	default:
		return ".wav"
	}
}
