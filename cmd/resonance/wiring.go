package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyperengineering/resonance/internal/analyzer"
	"github.com/hyperengineering/resonance/internal/config"
	"github.com/hyperengineering/resonance/internal/explain"
	"github.com/hyperengineering/resonance/internal/fusion"
	"github.com/hyperengineering/resonance/internal/knowledge"
	"github.com/hyperengineering/resonance/internal/llm"
	"github.com/hyperengineering/resonance/internal/orchestrator"
	"github.com/hyperengineering/resonance/internal/pipeline"
	"github.com/hyperengineering/resonance/internal/reflection"
	"github.com/hyperengineering/resonance/internal/renderer"
	"github.com/hyperengineering/resonance/internal/snapshot"
	"github.com/hyperengineering/resonance/internal/store"
)

// Completion calls retry transport failures with exponential backoff.
const (
	llmMaxRetries = 3
	llmRetryBase  = 500 * time.Millisecond
)

// Structured extraction runs cooler than free-text prompt writing.
const reflectionTemperature = 0.4

// openStorage opens the configured backend and wraps it in a knowledge base.
func openStorage(cfg *config.Config) (store.Store, *knowledge.Base, error) {
	st, err := store.Open(cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return st, knowledge.New(st), nil
}

// newLLM builds the completion service and the transcriber for the
// configured provider.
func newLLM(ctx context.Context, cfg config.LLMConfig) (llm.Completer, llm.Transcriber, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		c := llm.WithRetry(llm.NewOpenAI(cfg.APIKey, cfg.Model), llmMaxRetries, llmRetryBase)
		return c, llm.NewOpenAITranscriber(cfg.APIKey, cfg.TranscriptionModel), nil
	default:
		g, err := llm.NewGemini(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, nil, fmt.Errorf("create gemini client: %w", err)
		}
		c := llm.WithRetry(g, llmMaxRetries, llmRetryBase)

		var audio llm.Completer = c
		if cfg.TranscriptionModel != cfg.Model {
			tg, err := llm.NewGemini(ctx, cfg.APIKey, cfg.TranscriptionModel)
			if err != nil {
				return nil, nil, fmt.Errorf("create gemini transcription client: %w", err)
			}
			audio = llm.WithRetry(tg, llmMaxRetries, llmRetryBase)
		}
		return c, llm.NewGeminiTranscriber(audio), nil
	}
}

func newReflection(cfg *config.Config, completer llm.Completer, st store.SessionStore, kb *knowledge.Base, publisher snapshot.Publisher) *reflection.Engine {
	return reflection.New(completer, st, kb, reflection.Options{
		Threshold:   cfg.Reflection.Threshold,
		Temperature: reflectionTemperature,
		Publisher:   publisher,
	})
}

// newPipeline assembles the per-session flow. Without a renderer endpoint
// sessions are composed but carry no audio.
func newPipeline(cfg *config.Config, completer llm.Completer, transcriber llm.Transcriber, st store.SessionStore, kb *knowledge.Base, reflector *reflection.Engine) (*pipeline.Service, error) {
	temp := cfg.LLM.Temperature
	deps := pipeline.Deps{
		Analyzer: analyzer.New(completer, transcriber),
		Fuser:    fusion.New(completer, kb, st, temp),
		Composer: orchestrator.New(completer, kb, st, orchestrator.Options{
			ExemplarMinRating: cfg.Reflection.ExemplarMinRating,
			ExemplarLimit:     cfg.Reflection.ExemplarLimit,
			Temperature:       temp,
		}),
		Explainer: explain.New(completer, temp),
		Reflector: reflector,
		Sessions:  st,
		Knowledge: kb,
	}

	if cfg.Renderer.Endpoint != "" {
		r, err := renderer.New(renderer.Config{
			Endpoint:   cfg.Renderer.Endpoint,
			APIKey:     cfg.Renderer.APIKey,
			Timeout:    time.Duration(cfg.Renderer.Timeout),
			MaxRetries: cfg.Renderer.MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		deps.Renderer = r
	} else {
		slog.Warn("renderer endpoint not configured, sessions will carry no audio", "component", "main")
	}

	return pipeline.New(deps, pipeline.Options{
		DefaultMaxTokens: cfg.Renderer.DefaultMaxTokens,
	}), nil
}
