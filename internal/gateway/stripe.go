package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/subscription-server/internal/domain"
)

// StripeAdapter verifies and normalizes Stripe webhook events.
//
// Subscriber resolution order: client_reference_id (the subscriber UUID set
// at checkout-session creation), then customer_email as fallback.
type StripeAdapter struct {
	secret    []byte
	tolerance time.Duration

	// now is swappable for signature timestamp tests
	now func() time.Time
}

// NewStripeAdapter creates a Stripe adapter. tolerance bounds how old a
// signed timestamp may be before the signature is rejected as a replay.
func NewStripeAdapter(webhookSecret string, tolerance time.Duration) *StripeAdapter {
	if tolerance == 0 {
		tolerance = 5 * time.Minute
	}
	return &StripeAdapter{
		secret:    []byte(webhookSecret),
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Name returns the gateway identifier
func (a *StripeAdapter) Name() string { return domain.GatewayStripe }

// SignatureHeader returns the header Stripe signs payloads under
func (a *StripeAdapter) SignatureHeader() string { return "Stripe-Signature" }

// stripeEvent is the subset of a Stripe event envelope we care about
type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ClientReferenceID string `json:"client_reference_id"`
			CustomerEmail     string `json:"customer_email"`
			PaymentIntent     string `json:"payment_intent"`
			AmountTotal       int64  `json:"amount_total"`
			Currency          string `json:"currency"`
		} `json:"object"`
	} `json:"data"`
}

// Normalize verifies the Stripe-Signature header and converts a
// checkout.session.completed event into a canonical payment event.
func (a *StripeAdapter) Normalize(payload []byte, signatureHeader string) (*domain.PaymentEvent, error) {
	if err := a.verifySignature(payload, signatureHeader); err != nil {
		return nil, err
	}

	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("parsing stripe event: %w", err)
	}

	// Stripe sends many event kinds per endpoint; only the checkout
	// completion settles a payment.
	if event.Type != "checkout.session.completed" {
		return nil, fmt.Errorf("stripe event %q: %w", event.Type, domain.ErrUnhandledEvent)
	}

	session := event.Data.Object
	ref := domain.SubscriberRef{
		ID:    session.ClientReferenceID,
		Email: strings.ToLower(strings.TrimSpace(session.CustomerEmail)),
	}
	if ref.ID == "" && ref.Email == "" {
		return nil, fmt.Errorf("stripe event %s carries no subscriber reference", event.ID)
	}

	return &domain.PaymentEvent{
		SourceGateway:    domain.GatewayStripe,
		ExternalEventID:  event.ID,
		Subscriber:       ref,
		Amount:           session.AmountTotal,
		Currency:         strings.ToUpper(session.Currency),
		SettledReference: session.PaymentIntent,
	}, nil
}

// verifySignature checks the Stripe-Signature header: a comma-separated list
// of t=<unix> and v1=<hex hmac-sha256 of "<t>.<payload>">. Any valid v1
// entry within the timestamp tolerance passes.
func (a *StripeAdapter) verifySignature(payload []byte, header string) error {
	if header == "" {
		return fmt.Errorf("missing Stripe-Signature header: %w", domain.ErrInvalidSignature)
	}

	var timestamp int64
	var candidates []string
	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch k {
		case "t":
			ts, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("bad signature timestamp: %w", domain.ErrInvalidSignature)
			}
			timestamp = ts
		case "v1":
			candidates = append(candidates, v)
		}
	}

	if timestamp == 0 || len(candidates) == 0 {
		return fmt.Errorf("malformed Stripe-Signature header: %w", domain.ErrInvalidSignature)
	}

	age := a.now().Sub(time.Unix(timestamp, 0))
	if age > a.tolerance || age < -a.tolerance {
		return fmt.Errorf("signature timestamp outside tolerance: %w", domain.ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, a.secret)
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, candidate := range candidates {
		if hmac.Equal([]byte(expected), []byte(candidate)) {
			return nil
		}
	}
	return fmt.Errorf("no matching v1 signature: %w", domain.ErrInvalidSignature)
}
