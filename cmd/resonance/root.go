package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hyperengineering/resonance/internal/api"
	"github.com/hyperengineering/resonance/internal/config"
	"github.com/hyperengineering/resonance/internal/snapshot"
	"github.com/hyperengineering/resonance/internal/telemetry"
	"github.com/hyperengineering/resonance/internal/worker"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:          "resonance",
	Short:        "Resonance - emotion-driven music prompts that learn from ratings",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.AddCommand(reflectCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(knowledgeCmd)
}

func run(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(cmd.Context(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("configuration loaded")

	// 3. Initialize logger
	slog.SetDefault(newLogger(os.Stdout, cfg.Log))
	slog.Info("logger initialized", "level", cfg.Log.Level)

	// 4. Initialize telemetry (no-op without an endpoint)
	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry.Endpoint, cfg.Telemetry.ServiceName, Version, cfg.Telemetry.Insecure)
	if err != nil {
		return err
	}

	// 5. Initialize store (migrations, WAL mode) and knowledge base
	st, kb, err := openStorage(cfg)
	if err != nil {
		return err
	}
	slog.Info("store initialized", "backend", cfg.Storage.Backend)

	// 6. Initialize completion service
	completer, transcriber, err := newLLM(ctx, cfg.LLM)
	if err != nil {
		st.Close()
		return err
	}
	slog.Info("completion service initialized", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)

	// 7. Initialize snapshot publisher and learning pipeline
	publisher, err := snapshot.New(cfg.Snapshot)
	if err != nil {
		st.Close()
		return err
	}
	reflector := newReflection(cfg, completer, st, kb, publisher)
	svc, err := newPipeline(cfg, completer, transcriber, st, kb, reflector)
	if err != nil {
		st.Close()
		return err
	}
	slog.Info("pipeline initialized", "reflection_threshold", reflector.Threshold())

	// 8. Initialize HTTP router
	handler := api.NewHandler(svc, kb, st, publisher, cfg.Auth.APIKey, api.Info{
		Version:  Version,
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
	})
	router := api.NewRouter(handler)
	slog.Info("router initialized")

	// 9. Configure HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	// 10. Background workers
	var wg sync.WaitGroup
	if interval := time.Duration(cfg.Reflection.Interval); interval > 0 {
		startWorker(ctx, &wg, "reflection-coordinator", worker.NewReflectionCoordinator(svc, interval).Run)
		if cfg.Snapshot.Bucket != "" {
			startWorker(ctx, &wg, "snapshot-coordinator", worker.NewSnapshotCoordinator(kb, publisher, interval).Run)
		}
	}

	// 11. Start HTTP server in goroutine
	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error when Shutdown() is called gracefully.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel() // Trigger shutdown on server failure
		}
	}()

	// 12. Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	// 13. Graceful shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	// 13a. Stop HTTP server (drains in-flight requests)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// 13b. Wait for workers to complete
	wg.Wait()

	// 13c. Flush telemetry, then close store
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Error("telemetry shutdown error", "error", err)
	}
	if err := st.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogger builds the handler selected by cfg.Format ("json" or "text").
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
