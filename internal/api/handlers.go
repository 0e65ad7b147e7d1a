package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/resonance/internal/snapshot"
	"github.com/hyperengineering/resonance/internal/types"
)

// Request body limits. Generate requests carry base64 images and audio.
const (
	maxGenerateBody = 32 << 20
	maxFeedbackBody = 64 << 10
)

// Service is the session pipeline behind the API.
type Service interface {
	Generate(ctx context.Context, req types.GenerateRequest) (*types.GenerateResponse, error)
	Rate(ctx context.Context, fb types.FeedbackRequest) (*types.FeedbackResponse, error)
	Summary(ctx context.Context) (*types.FeedbackSummary, error)
	Reflect(ctx context.Context, force bool) (*types.ReflectionReport, error)
}

// KnowledgeReader reads the knowledge snapshot.
type KnowledgeReader interface {
	Load(ctx context.Context) (*types.Knowledge, error)
	LookupEmotion(ctx context.Context, label string) (types.EmotionProfile, bool, error)
}

// SessionCounter reports how many sessions are stored.
type SessionCounter interface {
	Count(ctx context.Context) (int, error)
}

// Info describes the running service for the health endpoint.
type Info struct {
	Version  string
	Provider string
	Model    string
}

// Handler implements the API handlers
type Handler struct {
	svc       Service
	knowledge KnowledgeReader
	sessions  SessionCounter
	snapshots snapshot.Publisher
	apiKey    string
	info      Info
}

// NewHandler creates a new Handler. A nil publisher disables snapshot URLs.
func NewHandler(svc Service, k KnowledgeReader, sessions SessionCounter, snapshots snapshot.Publisher, apiKey string, info Info) *Handler {
	if snapshots == nil {
		snapshots = snapshot.NoopPublisher{}
	}
	return &Handler{
		svc:       svc,
		knowledge: k,
		sessions:  sessions,
		snapshots: snapshots,
		apiKey:    apiKey,
		info:      info,
	}
}

// SnapshotURLResponse is returned by GET /api/v1/knowledge/snapshot.
type SnapshotURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "component", "api", "error", err)
	}
}

// decodeBody decodes a JSON body of at most limit bytes and writes the
// problem response itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteProblem(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit))
			return false
		}
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return false
	}
	return true
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	count, err := h.sessions.Count(r.Context())
	if err != nil {
		slog.Error("health check failed", "component", "api", "error", err)
		WriteProblem(w, r, http.StatusServiceUnavailable, "Session store unavailable")
		return
	}
	k, err := h.knowledge.Load(r.Context())
	if err != nil {
		slog.Error("health check failed", "component", "api", "error", err)
		WriteProblem(w, r, http.StatusServiceUnavailable, "Knowledge base unavailable")
		return
	}

	writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:          "healthy",
		Version:         h.info.Version,
		Provider:        h.info.Provider,
		Model:           h.info.Model,
		SessionCount:    count,
		ReflectionCount: k.ReflectionCount,
		LastReflection:  k.LastReflection,
	})
}

// Generate handles POST /api/v1/generate
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req types.GenerateRequest
	if !decodeBody(w, r, maxGenerateBody, &req) {
		return
	}

	resp, err := h.svc.Generate(r.Context(), req)
	if err != nil {
		slog.Error("generate failed", "component", "api", "error", err)
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Feedback handles POST /api/v1/feedback
func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	var req types.FeedbackRequest
	if !decodeBody(w, r, maxFeedbackBody, &req) {
		return
	}

	resp, err := h.svc.Rate(r.Context(), req)
	if err != nil {
		slog.Warn("feedback rejected", "component", "api", "session_id", req.SessionID, "error", err)
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// FeedbackSummary handles GET /api/v1/feedback/summary
func (h *Handler) FeedbackSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Summary(r.Context())
	if err != nil {
		slog.Error("summary failed", "component", "api", "error", err)
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Knowledge handles GET /api/v1/knowledge
func (h *Handler) Knowledge(w http.ResponseWriter, r *http.Request) {
	k, err := h.knowledge.Load(r.Context())
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, k)
}

// KnowledgeEmotion handles GET /api/v1/knowledge/emotions/{emotion}
func (h *Handler) KnowledgeEmotion(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "emotion")
	profile, ok, err := h.knowledge.LookupEmotion(r.Context(), label)
	if err != nil {
		MapError(w, r, err)
		return
	}
	if !ok {
		WriteProblem(w, r, http.StatusNotFound, fmt.Sprintf("No learned profile for emotion %q", label))
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// KnowledgeSnapshot handles GET /api/v1/knowledge/snapshot
func (h *Handler) KnowledgeSnapshot(w http.ResponseWriter, r *http.Request) {
	url, expiry, err := h.snapshots.PresignedURL(r.Context())
	if err != nil {
		if !errors.Is(err, snapshot.ErrNotConfigured) {
			slog.Error("presign snapshot failed", "component", "api", "error", err)
		}
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SnapshotURLResponse{URL: url, ExpiresAt: expiry.UTC()})
}

// Reflect handles POST /api/v1/reflect[?force=true]
func (h *Handler) Reflect(w http.ResponseWriter, r *http.Request) {
	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			WriteProblem(w, r, http.StatusBadRequest, "force must be a boolean")
			return
		}
		force = b
	}

	report, err := h.svc.Reflect(r.Context(), force)
	if err != nil {
		slog.Error("reflection failed", "component", "api", "error", err)
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
