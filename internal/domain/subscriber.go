package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriberStatus enumerates the fulfillment states a subscriber moves
// through. Transitions are strictly forward; Delivered is terminal.
type SubscriberStatus string

const (
	StatusCreated           SubscriberStatus = "created"
	StatusPaid              SubscriberStatus = "paid"
	StatusArtifactGenerated SubscriberStatus = "artifact_generated"
	StatusDelivered         SubscriberStatus = "delivered"
)

var statusRank = map[SubscriberStatus]int{
	StatusCreated:           0,
	StatusPaid:              1,
	StatusArtifactGenerated: 2,
	StatusDelivered:         3,
}

// Rank returns the position of a status in the fulfillment order.
// Unknown statuses rank below Created.
func (s SubscriberStatus) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// AtLeast reports whether s has reached or passed other.
func (s SubscriberStatus) AtLeast(other SubscriberStatus) bool {
	return s.Rank() >= other.Rank()
}

// Subscriber is the authoritative record for a single customer. Email is the
// natural key used for cross-store correlation; ID is the opaque reference
// handed to payment gateways at checkout.
type Subscriber struct {
	ID               uuid.UUID        `json:"id" db:"id"`
	Email            string           `json:"email" db:"email"`
	Status           SubscriberStatus `json:"status" db:"status"`
	PaymentReference *string          `json:"payment_reference" db:"payment_reference"`
	ArtifactLocation *string          `json:"artifact_location" db:"artifact_location"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at" db:"updated_at"`
}

// MirrorRecord is the denormalized copy written to the secondary store.
// It is write-only from the pipeline's perspective and never consulted
// when deciding the next fulfillment step.
type MirrorRecord struct {
	Email            string `dynamodbav:"email" json:"email"`
	SubscriberID     string `dynamodbav:"subscriber_id" json:"subscriber_id"`
	Status           string `dynamodbav:"status" json:"status"`
	PaymentReference string `dynamodbav:"payment_reference,omitempty" json:"payment_reference,omitempty"`
	ArtifactLocation string `dynamodbav:"artifact_location,omitempty" json:"artifact_location,omitempty"`
	CreatedAt        string `dynamodbav:"created_at" json:"created_at"`
	LastSyncedAt     string `dynamodbav:"last_synced_at" json:"last_synced_at"`
}

// NewMirrorRecord builds a mirror record from the authoritative subscriber.
func NewMirrorRecord(sub *Subscriber, syncedAt time.Time) MirrorRecord {
	rec := MirrorRecord{
		Email:        sub.Email,
		SubscriberID: sub.ID.String(),
		Status:       string(sub.Status),
		CreatedAt:    sub.CreatedAt.UTC().Format(time.RFC3339),
		LastSyncedAt: syncedAt.UTC().Format(time.RFC3339),
	}
	if sub.PaymentReference != nil {
		rec.PaymentReference = *sub.PaymentReference
	}
	if sub.ArtifactLocation != nil {
		rec.ArtifactLocation = *sub.ArtifactLocation
	}
	return rec
}
