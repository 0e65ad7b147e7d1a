package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// mockChatService implements ChatCompletionsService for testing
type mockChatService struct {
	content   string
	noChoices bool
	err       error
	// Track calls for verification
	callCount  int
	lastParams openai.ChatCompletionNewParams
}

func (m *mockChatService) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	m.callCount++
	m.lastParams = params
	if m.err != nil {
		return nil, m.err
	}
	if m.noChoices {
		return &openai.ChatCompletion{}, nil
	}
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: m.content}},
		},
	}, nil
}

// mockTranscriptionService implements TranscriptionsService for testing
type mockTranscriptionService struct {
	text     string
	err      error
	fileName string
	body     string
}

func (m *mockTranscriptionService) New(ctx context.Context, params openai.AudioTranscriptionNewParams, opts ...option.RequestOption) (*openai.Transcription, error) {
	if m.err != nil {
		return nil, m.err
	}
	if named, ok := params.File.Value.(interface{ Name() string }); ok {
		m.fileName = named.Name()
	}
	if r, ok := params.File.Value.(io.Reader); ok {
		b, _ := io.ReadAll(r)
		m.body = string(b)
	}
	return &openai.Transcription{Text: m.text}, nil
}

func newTestOpenAI(svc ChatCompletionsService) *OpenAI {
	return &OpenAI{completions: svc, model: openai.ChatModel("gpt-4o-mini")}
}

func TestOpenAI_Complete(t *testing.T) {
	// Given: A service that answers with text
	svc := &mockChatService{content: "calm waters"}
	o := newTestOpenAI(svc)

	// When: A text request is completed
	got, err := o.Complete(context.Background(), Request{
		System:      "you are a mood reader",
		Parts:       []Part{TextPart("rainy day")},
		Temperature: 0.3,
	})

	// Then: The reply text is returned and one call was made
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "calm waters" {
		t.Errorf("Complete() = %q", got)
	}
	if svc.callCount != 1 {
		t.Errorf("callCount = %d, want 1", svc.callCount)
	}
	if msgs := svc.lastParams.Messages.Value; len(msgs) != 2 {
		t.Errorf("messages = %d, want system + user", len(msgs))
	}
	if svc.lastParams.ResponseFormat.Present {
		t.Error("plain requests should not set a response format")
	}
}

func TestOpenAI_CompleteWithSchemaSetsResponseFormat(t *testing.T) {
	svc := &mockChatService{content: `{}`}
	o := newTestOpenAI(svc)

	_, err := o.Complete(context.Background(), Request{
		Parts:      []Part{TextPart("x")},
		Schema:     map[string]any{"type": "object"},
		SchemaName: "mood",
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if !svc.lastParams.ResponseFormat.Present {
		t.Error("schema requests should set a response format")
	}
}

func TestOpenAI_CompleteWithoutSystemMessage(t *testing.T) {
	svc := &mockChatService{content: "x"}
	if _, err := newTestOpenAI(svc).Complete(context.Background(), Request{Parts: []Part{TextPart("x")}}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if msgs := svc.lastParams.Messages.Value; len(msgs) != 1 {
		t.Errorf("messages = %d, want user only", len(msgs))
	}
}

func TestOpenAI_CompleteRejectsAudioParts(t *testing.T) {
	svc := &mockChatService{content: "x"}
	_, err := newTestOpenAI(svc).Complete(context.Background(), Request{
		Parts: []Part{BlobPart([]byte{1, 2}, "audio/wav")},
	})
	if err == nil {
		t.Fatal("inline audio should be rejected")
	}
	if svc.callCount != 0 {
		t.Error("no API call should be made for unsupported parts")
	}
}

func TestOpenAI_CompleteErrors(t *testing.T) {
	apiErr := errors.New("rate limited")
	if _, err := newTestOpenAI(&mockChatService{err: apiErr}).Complete(context.Background(), Request{}); !errors.Is(err, apiErr) {
		t.Errorf("Complete() error = %v, want wrapped API error", err)
	}
	if _, err := newTestOpenAI(&mockChatService{noChoices: true}).Complete(context.Background(), Request{}); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("Complete() error = %v, want ErrEmptyResponse", err)
	}
}

func TestOpenAI_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newTestOpenAI(&mockChatService{content: "x"}).Complete(ctx, Request{}); err == nil {
		t.Error("cancelled context should fail")
	}
}

func TestOpenAITranscriber_Transcribe(t *testing.T) {
	svc := &mockTranscriptionService{text: "  I had a long day  "}
	tr := &OpenAITranscriber{transcriptions: svc, model: openai.AudioModel("whisper-1")}

	got, err := tr.Transcribe(context.Background(), []byte("RIFFdata"), "audio/webm")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got != "I had a long day" {
		t.Errorf("Transcribe() = %q", got)
	}
	if svc.fileName != "voice.webm" {
		t.Errorf("file name = %q, want voice.webm", svc.fileName)
	}
	if !strings.HasPrefix(svc.body, "RIFF") {
		t.Errorf("uploaded body = %q", svc.body)
	}
}

func TestAudioExtension(t *testing.T) {
	tests := map[string]string{
		"audio/mpeg": ".mp3",
		"audio/ogg":  ".ogg",
		"audio/mp4":  ".m4a",
		"":           ".wav",
	}
	for mime, want := range tests {
		if got := audioExtension(mime); got != want {
			t.Errorf("audioExtension(%q) = %q, want %q", mime, got, want)
		}
	}
}
