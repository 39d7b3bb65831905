// Package gateway normalizes payment-processor webhook notifications into
// canonical payment events. Each adapter owns its processor's signature
// scheme and payload layout; nothing downstream sees a gateway-specific type.
package gateway

import (
	"github.com/ignite/subscription-server/internal/domain"
)

// Adapter authenticates and converts one gateway's native notification into
// a canonical payment event. Normalize has no side effects; it never touches
// a store.
//
// Errors: domain.ErrInvalidSignature when the payload fails verification,
// domain.ErrUnhandledEvent when the notification is authentic but not a
// payment-settled kind (callers acknowledge and drop it).
type Adapter interface {
	Name() string
	// SignatureHeader is the HTTP header the gateway carries its signature in
	SignatureHeader() string
	Normalize(payload []byte, signatureHeader string) (*domain.PaymentEvent, error)
}
