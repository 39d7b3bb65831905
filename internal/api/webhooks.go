package api

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/ignite/subscription-server/internal/domain"
)

// maxWebhookBody bounds how much of a gateway notification we read
const maxWebhookBody = 1 << 20 // 1MB

// HandleWebhook authenticates, deduplicates and applies one gateway
// notification. Response policy: 400 only when the signature fails, 500
// only when the guard cannot durably admit the event (so the gateway
// retries), 200 for everything else - duplicates, unhandled event kinds
// and downstream failures are all acknowledged so the gateway stops
// redelivering.
func (h *Handlers) HandleWebhook(gatewayName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adapter, ok := h.adapters[gatewayName]
		if !ok {
			respondError(w, http.StatusNotFound, "unknown gateway")
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			respondError(w, http.StatusBadRequest, "failed to read body")
			return
		}

		event, err := adapter.Normalize(body, r.Header.Get(adapter.SignatureHeader()))
		if err != nil {
			if errors.Is(err, domain.ErrInvalidSignature) {
				log.Printf("[Webhook] %s signature rejected: %v", gatewayName, err)
				respondError(w, http.StatusBadRequest, "invalid signature")
				return
			}
			if errors.Is(err, domain.ErrUnhandledEvent) {
				respondJSON(w, http.StatusOK, map[string]interface{}{
					"received": true,
					"handled":  false,
				})
				return
			}
			// Authentic but unusable payload; a retry would not help
			log.Printf("[Webhook] %s payload dropped: %v", gatewayName, err)
			respondJSON(w, http.StatusOK, map[string]interface{}{
				"received": true,
				"handled":  false,
			})
			return
		}

		admitted, err := h.guard.Admit(r.Context(), event.SourceGateway, event.ExternalEventID)
		if err != nil {
			// Not durably admitted; ask the gateway to redeliver
			log.Printf("[Webhook] Guard unavailable for %s/%s: %v", event.SourceGateway, event.ExternalEventID, err)
			respondError(w, http.StatusInternalServerError, "event not admitted")
			return
		}
		if !admitted {
			respondJSON(w, http.StatusOK, map[string]interface{}{
				"received":  true,
				"duplicate": true,
			})
			return
		}

		sub, err := h.pipeline.HandlePaymentConfirmed(r.Context(), event)
		if err != nil {
			// The event is admitted; failures here are surfaced to operators
			// through logs and the admin endpoints, not to the gateway
			log.Printf("[Webhook] %s/%s not applied: %v", event.SourceGateway, event.ExternalEventID, err)
			respondJSON(w, http.StatusOK, map[string]interface{}{
				"received":  true,
				"fulfilled": false,
			})
			return
		}

		respondJSON(w, http.StatusOK, map[string]interface{}{
			"received":      true,
			"subscriber_id": sub.ID,
			"status":        sub.Status,
		})
	}
}
