package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ignite/subscription-server/internal/domain"
	"github.com/ignite/subscription-server/internal/fulfillment"
	"github.com/ignite/subscription-server/internal/gateway"
)

// Pipeline is the slice of the orchestrator the handlers use
type Pipeline interface {
	Register(ctx context.Context, email string) (*domain.Subscriber, error)
	HandlePaymentConfirmed(ctx context.Context, event *domain.PaymentEvent) (*domain.Subscriber, error)
	Resume(ctx context.Context, id uuid.UUID, force bool) (*fulfillment.ResumeResult, error)
}

// EventGuard admits each gateway event at most once
type EventGuard interface {
	Admit(ctx context.Context, gateway, eventID string) (bool, error)
}

// SubscriberReader serves the admin read endpoints
type SubscriberReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Subscriber, error)
	ListSubscribers(ctx context.Context, limit, offset int) ([]*domain.Subscriber, int, error)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	pipeline Pipeline
	guard    EventGuard
	reader   SubscriberReader
	adapters map[string]gateway.Adapter
}

// NewHandlers creates a new Handlers instance
func NewHandlers(pipeline Pipeline, guard EventGuard, reader SubscriberReader, adapters ...gateway.Adapter) *Handlers {
	byName := make(map[string]gateway.Adapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}
	return &Handlers{
		pipeline: pipeline,
		guard:    guard,
		reader:   reader,
		adapters: byName,
	}
}

// HealthCheck returns service liveness
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleCreateSubscription registers a new subscriber from a submitted email
func (h *Handlers) HandleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		respondError(w, http.StatusBadRequest, "valid email is required")
		return
	}

	sub, err := h.pipeline.Register(r.Context(), email)
	if err != nil {
		log.Printf("[API] Failed to register %s: %v", email, err)
		respondError(w, http.StatusInternalServerError, "failed to create subscription")
		return
	}
	respondJSON(w, http.StatusCreated, sub)
}

// HandleResumeSubscriber re-enters the fulfillment pipeline for a subscriber
func (h *Handlers) HandleResumeSubscriber(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid subscriber id")
		return
	}
	force := r.URL.Query().Get("force") == "true"

	result, err := h.pipeline.Resume(r.Context(), id, force)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(w, http.StatusNotFound, "subscriber not found")
			return
		}
		log.Printf("[API] Resume failed for %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "resume failed")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// HandleGetSubscriber returns one subscriber record
func (h *Handlers) HandleGetSubscriber(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid subscriber id")
		return
	}

	sub, err := h.reader.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(w, http.StatusNotFound, "subscriber not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	respondJSON(w, http.StatusOK, sub)
}

// HandleListSubscribers returns a page of subscriber records
func (h *Handlers) HandleListSubscribers(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}
	offset := parseIntParam(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	subs, total, err := h.reader.ListSubscribers(r.Context(), limit, offset)
	if err != nil {
		log.Printf("[API] List subscribers failed: %v", err)
		respondError(w, http.StatusInternalServerError, "list failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"subscribers": subs,
		"total":       total,
		"limit":       limit,
		"offset":      offset,
	})
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
