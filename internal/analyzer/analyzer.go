// Package analyzer reads mood signals out of text, images and recorded voice.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/hyperengineering/resonance/internal/llm"
	"github.com/hyperengineering/resonance/internal/types"
	"golang.org/x/sync/errgroup"
)

// Source tags carried on every mood signal.
const (
	SourceText  = "text"
	SourceImage = "image"
	SourceVoice = "voice"
)

// NeutralMood is reported when a modality carries no usable content.
const NeutralMood = "neutral"

const analysisTemperature = 0.2

// Input is the raw multi-modal input of one session. Empty fields are skipped.
type Input struct {
	Text      string
	Image     []byte
	ImageMIME string
	Voice     []byte
	VoiceMIME string
}

// Empty reports whether no modality carries anything to analyze.
func (in Input) Empty() bool {
	return strings.TrimSpace(in.Text) == "" && len(in.Image) == 0 && len(in.Voice) == 0
}

// moodReply is the structured reply expected from the completion service.
type moodReply struct {
	Moods   []string `json:"moods" jsonschema:"description=One to three words naming the dominant moods, strongest first"`
	Energy  float64  `json:"energy" jsonschema:"description=Intensity from 0.0 (very calm) to 1.0 (very intense)"`
	Summary string   `json:"summary" jsonschema:"description=One sentence summary or caption of the input"`
}

// Analyzer turns each modality into a MoodSignal.
type Analyzer struct {
	completer   llm.Completer
	transcriber llm.Transcriber
}

// New creates an Analyzer. transcriber may be nil, in which case voice input
// is reported as neutral.
func New(completer llm.Completer, transcriber llm.Transcriber) *Analyzer {
	return &Analyzer{completer: completer, transcriber: transcriber}
}

// AnalyzeAll analyzes every present modality concurrently and returns the
// signals in text, image, voice order once all of them have finished.
func (a *Analyzer) AnalyzeAll(ctx context.Context, in Input) ([]types.MoodSignal, error) {
	type task struct {
		name string
		run  func(context.Context) (types.MoodSignal, error)
	}

	var tasks []task
	if strings.TrimSpace(in.Text) != "" {
		tasks = append(tasks, task{SourceText, func(ctx context.Context) (types.MoodSignal, error) {
			return a.AnalyzeText(ctx, in.Text)
		}})
	}
	if len(in.Image) > 0 {
		tasks = append(tasks, task{SourceImage, func(ctx context.Context) (types.MoodSignal, error) {
			return a.AnalyzeImage(ctx, in.Image, in.ImageMIME)
		}})
	}
	if len(in.Voice) > 0 {
		tasks = append(tasks, task{SourceVoice, func(ctx context.Context) (types.MoodSignal, error) {
			return a.AnalyzeVoice(ctx, in.Voice, in.VoiceMIME)
		}})
	}

	signals := make([]types.MoodSignal, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range tasks {
		g.Go(func() error {
			sig, err := t.run(gctx)
			if err != nil {
				return fmt.Errorf("analyze %s: %w", t.name, err)
			}
			signals[i] = sig
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.Debug("mood signals analyzed",
		"component", "analyzer",
		"sources", len(signals),
	)
	return signals, nil
}

// AnalyzeText reads the mood of a piece of writing.
func (a *Analyzer) AnalyzeText(ctx context.Context, text string) (types.MoodSignal, error) {
	if strings.TrimSpace(text) == "" {
		return neutral(SourceText), nil
	}
	reply, err := llm.AskJSON[moodReply](ctx, a.completer, llm.Request{
		System:      "You analyze the emotional content of user input for a music generation system.",
		Parts:       []llm.Part{llm.TextPart(fmt.Sprintf("Analyze the following text for its emotional content.\n\nText: %q", text))},
		Temperature: analysisTemperature,
		SchemaName:  "text_mood",
	})
	if err != nil {
		return types.MoodSignal{}, err
	}
	sig := reply.signal(SourceText)
	sig.Summary = strings.TrimSpace(reply.Summary)
	return sig, nil
}

// AnalyzeImage reads the mood of a picture. An empty mimeType is sniffed.
func (a *Analyzer) AnalyzeImage(ctx context.Context, image []byte, mimeType string) (types.MoodSignal, error) {
	if len(image) == 0 {
		return neutral(SourceImage), nil
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(image)
	}
	reply, err := llm.AskJSON[moodReply](ctx, a.completer, llm.Request{
		System: "You analyze the emotional content of user input for a music generation system.",
		Parts: []llm.Part{
			llm.TextPart("Analyze this image for its emotional content. Use the summary field for a one sentence caption of what you see."),
			llm.BlobPart(image, mimeType),
		},
		Temperature: analysisTemperature,
		SchemaName:  "image_mood",
	})
	if err != nil {
		return types.MoodSignal{}, err
	}
	sig := reply.signal(SourceImage)
	sig.Caption = strings.TrimSpace(reply.Summary)
	return sig, nil
}

// AnalyzeVoice transcribes recorded speech and reads the mood of the
// transcript. Silence or unintelligible audio yields a neutral signal.
func (a *Analyzer) AnalyzeVoice(ctx context.Context, audio []byte, mimeType string) (types.MoodSignal, error) {
	if len(audio) == 0 || a.transcriber == nil {
		return neutral(SourceVoice), nil
	}
	transcript, err := a.transcriber.Transcribe(ctx, audio, mimeType)
	if err != nil {
		return types.MoodSignal{}, fmt.Errorf("transcribe: %w", err)
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return neutral(SourceVoice), nil
	}

	reply, err := llm.AskJSON[moodReply](ctx, a.completer, llm.Request{
		System:      "You analyze the emotional content of user input for a music generation system.",
		Parts:       []llm.Part{llm.TextPart(fmt.Sprintf("Analyze the following spoken transcript for its emotional content.\n\nTranscript: %q", transcript))},
		Temperature: analysisTemperature,
		SchemaName:  "voice_mood",
	})
	if err != nil {
		return types.MoodSignal{}, err
	}
	sig := reply.signal(SourceVoice)
	sig.Transcript = transcript
	return sig, nil
}

func (r moodReply) signal(source string) types.MoodSignal {
	moods := make([]string, 0, len(r.Moods))
	for _, m := range r.Moods {
		if m = types.NormalizeEmotion(m); m != "" {
			moods = append(moods, m)
		}
	}
	if len(moods) == 0 {
		moods = []string{NeutralMood}
	}
	if len(moods) > 3 {
		moods = moods[:3]
	}
	return types.MoodSignal{
		Source: source,
		Moods:  moods,
		Energy: clampUnit(r.Energy),
	}
}

func neutral(source string) types.MoodSignal {
	return types.MoodSignal{Source: source, Moods: []string{NeutralMood}, Energy: 0.5}
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0.5
	}
	return math.Max(0, math.Min(1, v))
}
