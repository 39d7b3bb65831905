// Package fulfillment drives a subscriber through the payment-confirmation
// pipeline: Created -> Paid -> ArtifactGenerated -> Delivered. Each step
// persists its own completion before the next is attempted, so a crash
// mid-chain leaves the record resumable rather than restarting the chain.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/ignite/subscription-server/internal/delivery"
	"github.com/ignite/subscription-server/internal/domain"
)

// SubscriberStore is the authoritative record store. Every Apply* call is a
// single conditional update that no-ops when the record already advanced.
type SubscriberStore interface {
	Resolve(ctx context.Context, ref domain.SubscriberRef) (*domain.Subscriber, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Subscriber, error)
	CreateSubscriber(ctx context.Context, email string) (*domain.Subscriber, error)
	ApplyPaymentConfirmed(ctx context.Context, id uuid.UUID, settledReference string) (*domain.Subscriber, error)
	ApplyArtifactGenerated(ctx context.Context, id uuid.UUID, artifactLocation string) (*domain.Subscriber, error)
	ApplyDelivered(ctx context.Context, id uuid.UUID) (*domain.Subscriber, error)
}

// ArtifactGenerator produces and retrieves the deliverable blob
type ArtifactGenerator interface {
	Generate(ctx context.Context, sub *domain.Subscriber) (location string, err error)
	Fetch(ctx context.Context, location string) (data []byte, contentType string, err error)
}

// Deliverer sends the artifact to the subscriber
type Deliverer interface {
	Deliver(ctx context.Context, toEmail string, attachment delivery.Attachment) error
}

// MirrorSyncer propagates authoritative records to the secondary store
// without blocking the caller
type MirrorSyncer interface {
	Dispatch(sub *domain.Subscriber)
}

// Orchestrator is the single owner of "what happens next" for a subscriber.
// Both the webhook path and the manual resume path run the same step logic.
type Orchestrator struct {
	store     SubscriberStore
	generator ArtifactGenerator
	deliverer Deliverer
	mirror    MirrorSyncer
}

// New creates a fulfillment orchestrator
func New(store SubscriberStore, generator ArtifactGenerator, deliverer Deliverer, mirror MirrorSyncer) *Orchestrator {
	return &Orchestrator{
		store:     store,
		generator: generator,
		deliverer: deliverer,
		mirror:    mirror,
	}
}

// Register creates (or finds) the subscriber record for a submitted email
// and mirrors it. This is the only entry into the Created state.
func (o *Orchestrator) Register(ctx context.Context, email string) (*domain.Subscriber, error) {
	sub, err := o.store.CreateSubscriber(ctx, email)
	if err != nil {
		return nil, err
	}
	o.mirror.Dispatch(sub)
	return sub, nil
}

// HandlePaymentConfirmed applies an admitted canonical payment event and
// then attempts the full remaining chain. A failure past the Paid
// transition is logged and left for retry; it never bubbles to the webhook
// response. The returned error is non-nil only when the event itself cannot
// be applied (correlation failure or store outage).
func (o *Orchestrator) HandlePaymentConfirmed(ctx context.Context, event *domain.PaymentEvent) (*domain.Subscriber, error) {
	sub, err := o.store.Resolve(ctx, event.Subscriber)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("event %s/%s matches no subscriber (ref %+v): %w",
				event.SourceGateway, event.ExternalEventID, event.Subscriber, err)
		}
		return nil, err
	}

	sub, err = o.store.ApplyPaymentConfirmed(ctx, sub.ID, event.SettledReference)
	if err != nil {
		return nil, err
	}
	o.mirror.Dispatch(sub)

	log.Printf("[Fulfillment] %s paid via %s (amount %d %s, ref %s)",
		sub.Email, event.SourceGateway, event.Amount, event.Currency, event.SettledReference)

	sub, stepErr := o.runRemaining(ctx, sub)
	if stepErr != nil {
		// Retryable: the record sits at its last completed step until the
		// operator resumes it (or a later event re-triggers the chain)
		log.Printf("[Fulfillment] %s stopped at status %s: %v", sub.Email, sub.Status, stepErr)
	}
	return sub, nil
}

// ResumeResult is the operator-facing outcome of a manual resume
type ResumeResult struct {
	Subscriber       *domain.Subscriber `json:"subscriber"`
	AlreadyDelivered bool               `json:"already_delivered"`
	FailedStep       string             `json:"failed_step,omitempty"`
	Reason           string             `json:"reason,omitempty"`
}

// Resume re-enters the pipeline for a subscriber at whatever step is
// incomplete. Completed steps are never re-run; a subscriber already at
// Delivered returns immediately with no collaborator calls. force re-sends
// the delivery for an already-delivered subscriber using the existing
// artifact (it never regenerates an artifact that exists).
func (o *Orchestrator) Resume(ctx context.Context, id uuid.UUID, force bool) (*ResumeResult, error) {
	sub, err := o.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if sub.Status.AtLeast(domain.StatusDelivered) {
		if !force {
			return &ResumeResult{Subscriber: sub, AlreadyDelivered: true}, nil
		}
		if stepErr := o.deliverArtifact(ctx, sub); stepErr != nil {
			return &ResumeResult{Subscriber: sub, FailedStep: stepErr.Step, Reason: stepErr.Err.Error()}, nil
		}
		return &ResumeResult{Subscriber: sub, AlreadyDelivered: true}, nil
	}

	sub, stepErr := o.runRemaining(ctx, sub)
	if stepErr != nil {
		return &ResumeResult{Subscriber: sub, FailedStep: stepErr.Step, Reason: stepErr.Err.Error()}, nil
	}
	return &ResumeResult{Subscriber: sub}, nil
}

// runRemaining walks the chain from the subscriber's current status to
// Delivered, persisting after every step. Each iteration re-reads the state
// returned by the store, so a concurrent transition that already advanced
// the record simply moves the loop forward.
func (o *Orchestrator) runRemaining(ctx context.Context, sub *domain.Subscriber) (*domain.Subscriber, *domain.StepError) {
	for {
		switch sub.Status {
		case domain.StatusCreated:
			return sub, &domain.StepError{Step: domain.StepPayment, Err: errors.New("payment not confirmed yet")}

		case domain.StatusPaid:
			location, err := o.generator.Generate(ctx, sub)
			if err != nil {
				return sub, &domain.StepError{Step: domain.StepArtifact, Err: err}
			}
			next, err := o.store.ApplyArtifactGenerated(ctx, sub.ID, location)
			if err != nil {
				return sub, &domain.StepError{Step: domain.StepArtifact, Err: err}
			}
			o.mirror.Dispatch(next)
			log.Printf("[Fulfillment] %s artifact generated at %s", next.Email, location)
			sub = next

		case domain.StatusArtifactGenerated:
			if stepErr := o.deliverArtifact(ctx, sub); stepErr != nil {
				return sub, stepErr
			}
			next, err := o.store.ApplyDelivered(ctx, sub.ID)
			if err != nil {
				return sub, &domain.StepError{Step: domain.StepDelivery, Err: err}
			}
			o.mirror.Dispatch(next)
			log.Printf("[Fulfillment] %s delivered", next.Email)
			sub = next

		case domain.StatusDelivered:
			return sub, nil

		default:
			return sub, &domain.StepError{Step: domain.StepPayment,
				Err: fmt.Errorf("unknown status %q", sub.Status)}
		}
	}
}

// deliverArtifact fetches the stored artifact and sends it to the subscriber
func (o *Orchestrator) deliverArtifact(ctx context.Context, sub *domain.Subscriber) *domain.StepError {
	if sub.ArtifactLocation == nil {
		return &domain.StepError{Step: domain.StepDelivery, Err: errors.New("no artifact location on record")}
	}

	data, contentType, err := o.generator.Fetch(ctx, *sub.ArtifactLocation)
	if err != nil {
		return &domain.StepError{Step: domain.StepDelivery, Err: fmt.Errorf("fetching artifact: %w", err)}
	}

	attachment := delivery.Attachment{
		Filename:    attachmentFilename(sub.Email),
		ContentType: contentType,
		Data:        data,
	}
	if err := o.deliverer.Deliver(ctx, sub.Email, attachment); err != nil {
		return &domain.StepError{Step: domain.StepDelivery, Err: err}
	}
	return nil
}

func attachmentFilename(email string) string {
	sanitized := strings.NewReplacer("@", "_", ".", "_").Replace(email)
	return fmt.Sprintf("welcome_%s.html", sanitized)
}
