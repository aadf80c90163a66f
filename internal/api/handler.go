// Package api exposes the cortex over HTTP. All routes are JSON in, JSON
// out; degraded context bundles still return 200 with the degraded flag set.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/BangRocket/mypalclara/internal/cortex"
	"github.com/BangRocket/mypalclara/internal/dynamics"
	"github.com/BangRocket/mypalclara/internal/intention"
)

// RecordArchive reads the durable memory archive. The live endpoints serve
// the in-process tiers; archive reads are for history and audit queries.
type RecordArchive interface {
	ListRecords(ctx context.Context, userID string, activeOnly bool, limit int) ([]cortex.MemoryRecord, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	manager    *cortex.Manager
	intentions *intention.Registry
	archive    RecordArchive
	logger     *zap.Logger
}

// NewHandler creates a new API handler. The intention registry and the
// archive may be nil.
func NewHandler(manager *cortex.Manager, intentions *intention.Registry, archive RecordArchive, logger *zap.Logger) *Handler {
	return &Handler{
		manager:    manager,
		intentions: intentions,
		archive:    archive,
		logger:     logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		r.Post("/memories", h.remember)
		r.Get("/memories", h.listMemories)
		r.Post("/memories/{id}/access", h.recordAccess)

		r.Get("/context/quick", h.quickContext)
		r.Get("/context/full", h.fullContext)
		r.Post("/session", h.updateSession)

		r.Post("/intentions", h.createIntention)
		r.Get("/intentions", h.listIntentions)
		r.Post("/intentions/check", h.checkIntentions)
		r.Delete("/intentions/{id}", h.deleteIntention)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "cortex"})
}

type rememberRequest struct {
	UserID     string            `json:"user_id"`
	Content    string            `json:"content"`
	Importance float64           `json:"importance"`
	Category   string            `json:"category,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func (h *Handler) remember(w http.ResponseWriter, r *http.Request) {
	var req rememberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	result, err := h.manager.Remember(r.Context(), req.UserID, req.Content, req.Importance, req.Category, req.Metadata)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, cortex.ErrInvalidInput) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) listMemories(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}

	if q.Get("scope") == "archive" {
		if h.archive == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "archive not initialized"})
			return
		}
		limit, _ := strconv.Atoi(q.Get("limit"))
		activeOnly := q.Get("include_inactive") != "true"
		records, err := h.archive.ListRecords(r.Context(), userID, activeOnly, limit)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"user_id":  userID,
			"memories": records,
			"count":    len(records),
		})
		return
	}

	records := h.manager.ActiveMemories(userID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":  userID,
		"memories": records,
		"count":    len(records),
	})
}

type accessRequest struct {
	UserID string `json:"user_id"`
	Grade  int    `json:"grade"`
	Signal string `json:"signal"`
	Note   string `json:"note,omitempty"`
}

func (h *Handler) recordAccess(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req accessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	entry, err := h.manager.RecordAccess(r.Context(), req.UserID, id, req.Grade, dynamics.SignalType(req.Signal), req.Note)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, cortex.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, cortex.ErrInvalidInput):
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"memory_id":      entry.MemoryID,
		"grade":          entry.Grade,
		"signal":         entry.Signal,
		"retrievability": entry.RetrievabilityAtAccess,
		"accessed_at":    entry.AccessedAt.Format(time.RFC3339),
	})
}

func (h *Handler) quickContext(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	qc, err := h.manager.GetQuickContext(userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, qc)
}

func (h *Handler) fullContext(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}

	mc, err := h.manager.GetFullContext(r.Context(), userID, q.Get("query"), q.Get("project_id"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, mc)
}

type sessionRequest struct {
	UserID  string         `json:"user_id"`
	Updates map[string]any `json:"updates"`
}

func (h *Handler) updateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := h.manager.UpdateSession(r.Context(), req.UserID, req.Updates); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, cortex.ErrInvalidInput) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type intentionCreateRequest struct {
	UserID         string            `json:"user_id"`
	Content        string            `json:"content"`
	Trigger        intention.Trigger `json:"trigger"`
	Priority       int               `json:"priority"`
	FireOnce       bool              `json:"fire_once"`
	ExpiresAt      *time.Time        `json:"expires_at,omitempty"`
	SourceMemoryID string            `json:"source_memory_id,omitempty"`
}

func (h *Handler) createIntention(w http.ResponseWriter, r *http.Request) {
	if h.intentions == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "intentions not initialized"})
		return
	}
	var req intentionCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	in, err := h.intentions.Create(r.Context(), intention.CreateRequest{
		UserID:         req.UserID,
		Content:        req.Content,
		Trigger:        req.Trigger,
		Priority:       req.Priority,
		FireOnce:       req.FireOnce,
		ExpiresAt:      req.ExpiresAt,
		SourceMemoryID: req.SourceMemoryID,
	})
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, in)
}

func (h *Handler) listIntentions(w http.ResponseWriter, r *http.Request) {
	if h.intentions == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "intentions not initialized"})
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	includeFired := r.URL.Query().Get("include_fired") == "true"
	writeJSON(w, http.StatusOK, h.intentions.List(userID, includeFired))
}

type intentionCheckRequest struct {
	UserID   string            `json:"user_id"`
	Message  string            `json:"message"`
	Env      map[string]string `json:"env,omitempty"`
	Strategy string            `json:"strategy,omitempty"`
}

func (h *Handler) checkIntentions(w http.ResponseWriter, r *http.Request) {
	if h.intentions == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "intentions not initialized"})
		return
	}
	var req intentionCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	fired := h.intentions.Check(r.Context(), req.UserID, req.Message, req.Env, intention.Strategy(req.Strategy))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"fired": fired,
		"count": len(fired),
	})
}

func (h *Handler) deleteIntention(w http.ResponseWriter, r *http.Request) {
	if h.intentions == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "intentions not initialized"})
		return
	}
	id := chi.URLParam(r, "id")
	if !h.intentions.Delete(r.Context(), id, r.URL.Query().Get("user_id")) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "intention not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
