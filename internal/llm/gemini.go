package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Compile-time interface checks
var (
	_ Completer   = (*Gemini)(nil)
	_ Transcriber = (*GeminiTranscriber)(nil)
)

// ContentGenerator defines the interface for Gemini generate-content calls.
// This abstraction enables testing without calling the real Gemini API.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// clientModels forwards to the Models service of a genai client.
type clientModels struct {
	client *genai.Client
}

func (c clientModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return c.client.Models.GenerateContent(ctx, model, contents, config)
}

// Gemini implements Completer using Google's Gemini API.
type Gemini struct {
	models ContentGenerator
	model  string
}

// NewGemini creates a Gemini completer.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Gemini{models: clientModels{client: client}, model: model}, nil
}

// Complete sends req as one user turn with an optional system instruction.
func (g *Gemini) Complete(ctx context.Context, req Request) (string, error) {
	parts := make([]*genai.Part, 0, len(req.Parts))
	for _, p := range req.Parts {
		if len(p.Data) > 0 {
			parts = append(parts, genai.NewPartFromBytes(p.Data, p.MIMEType))
			continue
		}
		parts = append(parts, genai.NewPartFromText(p.Text))
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](float32(req.Temperature)),
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseJsonSchema = req.Schema
	}

	resp, err := g.models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, config)
	if err != nil {
		return "", fmt.Errorf("gemini completion failed: %w", err)
	}
	if resp == nil {
		return "", ErrEmptyResponse
	}
	return resp.Text(), nil
}

// ModelName returns the Gemini model name.
func (g *Gemini) ModelName() string {
	return g.model
}

const transcribeInstruction = "Transcribe the speech in this audio verbatim. Reply with the transcript only. If there is no speech, reply with an empty string."

// GeminiTranscriber transcribes audio by sending it inline to a Gemini model.
type GeminiTranscriber struct {
	completer Completer
}

// NewGeminiTranscriber wraps a Gemini completer as a Transcriber.
func NewGeminiTranscriber(c Completer) *GeminiTranscriber {
	return &GeminiTranscriber{completer: c}
}

// Transcribe returns the transcript, or "" when no speech was recognized.
func (g *GeminiTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = "audio/wav"
	}
	out, err := g.completer.Complete(ctx, Request{
		Parts: []Part{TextPart(transcribeInstruction), BlobPart(audio, mimeType)},
	})
	if err != nil {
		return "", fmt.Errorf("gemini transcription failed: %w", err)
	}
	out = strings.TrimSpace(out)
	out = strings.Trim(out, `"`)
	return strings.TrimSpace(out), nil
}
