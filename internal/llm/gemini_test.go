package llm

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/genai"
)

// mockContentGenerator implements ContentGenerator for testing
type mockContentGenerator struct {
	text string
	err  error

	lastModel    string
	lastContents []*genai.Content
	lastConfig   *genai.GenerateContentConfig
}

func (m *mockContentGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.lastModel = model
	m.lastContents = contents
	m.lastConfig = config
	if m.err != nil {
		return nil, m.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: genai.NewContentFromText(m.text, genai.RoleModel)},
		},
	}, nil
}

func TestGemini_Complete(t *testing.T) {
	gen := &mockContentGenerator{text: `{"emotion":"joy"}`}
	g := &Gemini{models: gen, model: "gemini-2.0-flash"}

	got, err := g.Complete(context.Background(), Request{
		System:      "read the mood",
		Parts:       []Part{TextPart("sunny"), BlobPart([]byte{0x89, 'P', 'N', 'G'}, "image/png")},
		Temperature: 0.4,
		Schema:      map[string]any{"type": "object"},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != `{"emotion":"joy"}` {
		t.Errorf("Complete() = %q", got)
	}
	if gen.lastModel != "gemini-2.0-flash" {
		t.Errorf("model = %q", gen.lastModel)
	}
	if len(gen.lastContents) != 1 || len(gen.lastContents[0].Parts) != 2 {
		t.Fatalf("contents = %+v, want one turn with two parts", gen.lastContents)
	}
	if gen.lastContents[0].Parts[1].InlineData == nil {
		t.Error("image part should be sent inline")
	}
	if gen.lastConfig.ResponseMIMEType != "application/json" {
		t.Errorf("ResponseMIMEType = %q", gen.lastConfig.ResponseMIMEType)
	}
	if gen.lastConfig.SystemInstruction == nil {
		t.Error("system instruction should be set")
	}
	if gen.lastConfig.Temperature == nil || *gen.lastConfig.Temperature != float32(0.4) {
		t.Errorf("Temperature = %v", gen.lastConfig.Temperature)
	}
}

func TestGemini_CompletePlainText(t *testing.T) {
	gen := &mockContentGenerator{text: "hello"}
	g := &Gemini{models: gen, model: "m"}

	if _, err := g.Complete(context.Background(), Request{Parts: []Part{TextPart("x")}}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if gen.lastConfig.ResponseMIMEType != "" {
		t.Error("plain requests should not force JSON output")
	}
	if gen.lastConfig.SystemInstruction != nil {
		t.Error("empty system prompt should not be sent")
	}
}

func TestGemini_CompleteError(t *testing.T) {
	apiErr := errors.New("quota")
	g := &Gemini{models: &mockContentGenerator{err: apiErr}, model: "m"}
	if _, err := g.Complete(context.Background(), Request{}); !errors.Is(err, apiErr) {
		t.Errorf("Complete() error = %v, want wrapped API error", err)
	}
}

func TestNewGemini_RequiresKey(t *testing.T) {
	if _, err := NewGemini(context.Background(), "", "m"); err == nil {
		t.Error("NewGemini() should require an API key")
	}
}

func TestGeminiTranscriber(t *testing.T) {
	var seen Request
	c := CompleterFunc(func(ctx context.Context, req Request) (string, error) {
		seen = req
		return ` "feeling tired but hopeful" `, nil
	})

	got, err := NewGeminiTranscriber(c).Transcribe(context.Background(), []byte{1, 2, 3}, "")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got != "feeling tired but hopeful" {
		t.Errorf("Transcribe() = %q", got)
	}
	if len(seen.Parts) != 2 || seen.Parts[1].MIMEType != "audio/wav" {
		t.Errorf("parts = %+v, want instruction + wav audio", seen.Parts)
	}
}
