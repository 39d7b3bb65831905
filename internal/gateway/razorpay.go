package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ignite/subscription-server/internal/domain"
)

// RazorpayAdapter verifies and normalizes Razorpay webhook events.
//
// Subscriber resolution order: notes.subscriber_id (set at checkout), then
// the payment entity's email as fallback. The payment entity id doubles as
// the deduplication key; Razorpay redelivers the same entity id on retry.
type RazorpayAdapter struct {
	secret []byte
}

// NewRazorpayAdapter creates a Razorpay adapter
func NewRazorpayAdapter(webhookSecret string) *RazorpayAdapter {
	return &RazorpayAdapter{secret: []byte(webhookSecret)}
}

// Name returns the gateway identifier
func (a *RazorpayAdapter) Name() string { return domain.GatewayRazorpay }

// SignatureHeader returns the header Razorpay signs payloads under
func (a *RazorpayAdapter) SignatureHeader() string { return "X-Razorpay-Signature" }

// razorpayEvent is the subset of a Razorpay webhook envelope we care about
type razorpayEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID       string            `json:"id"`
				Amount   int64             `json:"amount"`
				Currency string            `json:"currency"`
				Email    string            `json:"email"`
				Notes    map[string]string `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// Normalize verifies the X-Razorpay-Signature header and converts a
// payment.captured event into a canonical payment event.
func (a *RazorpayAdapter) Normalize(payload []byte, signatureHeader string) (*domain.PaymentEvent, error) {
	if err := a.verifySignature(payload, signatureHeader); err != nil {
		return nil, err
	}

	var event razorpayEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("parsing razorpay event: %w", err)
	}

	if event.Event != "payment.captured" {
		return nil, fmt.Errorf("razorpay event %q: %w", event.Event, domain.ErrUnhandledEvent)
	}

	payment := event.Payload.Payment.Entity
	if payment.ID == "" {
		return nil, fmt.Errorf("razorpay payment.captured carries no payment entity")
	}

	ref := domain.SubscriberRef{
		ID:    payment.Notes["subscriber_id"],
		Email: strings.ToLower(strings.TrimSpace(payment.Email)),
	}
	if ref.ID == "" && ref.Email == "" {
		return nil, fmt.Errorf("razorpay payment %s carries no subscriber reference", payment.ID)
	}

	return &domain.PaymentEvent{
		SourceGateway:    domain.GatewayRazorpay,
		ExternalEventID:  payment.ID,
		Subscriber:       ref,
		Amount:           payment.Amount,
		Currency:         strings.ToUpper(payment.Currency),
		SettledReference: payment.ID,
	}, nil
}

// verifySignature checks X-Razorpay-Signature: hex hmac-sha256 of the raw
// request body.
func (a *RazorpayAdapter) verifySignature(payload []byte, header string) error {
	if header == "" {
		return fmt.Errorf("missing X-Razorpay-Signature header: %w", domain.ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, a.secret)
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(header)) {
		return fmt.Errorf("signature mismatch: %w", domain.ErrInvalidSignature)
	}
	return nil
}
