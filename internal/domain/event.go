package domain

// Gateway identifiers. External event IDs are only unique within a single
// gateway's namespace, so everything keyed by event id is scoped by these.
const (
	GatewayStripe   = "stripe"
	GatewayRazorpay = "razorpay"
)

// SubscriberRef identifies a subscriber from whatever correlation field a
// gateway offers: the opaque reference id set at checkout, or a fallback
// email address. At least one is set on a valid event.
type SubscriberRef struct {
	ID    string `json:"id,omitempty"`
	Email string `json:"email,omitempty"`
}

// PaymentEvent is the canonical, gateway-agnostic form of "a payment
// settled". ExternalEventID is stable across gateway retries of the same
// underlying event and serves as the deduplication key.
type PaymentEvent struct {
	SourceGateway    string        `json:"source_gateway"`
	ExternalEventID  string        `json:"external_event_id"`
	Subscriber       SubscriberRef `json:"subscriber"`
	Amount           int64         `json:"amount"`
	Currency         string        `json:"currency"`
	SettledReference string        `json:"settled_reference"`
}
