package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSignature means a gateway notification failed HMAC
	// verification. The event is rejected and never applied.
	ErrInvalidSignature = errors.New("invalid gateway signature")

	// ErrUnhandledEvent means the notification is authentic but not a
	// payment-settled kind. Callers acknowledge it and do nothing.
	ErrUnhandledEvent = errors.New("unhandled event kind")

	// ErrNotFound means no subscriber matches a lookup reference. For a
	// payment event this indicates a checkout/notification correlation bug
	// and is surfaced to operators.
	ErrNotFound = errors.New("subscriber not found")
)

// Fulfillment step names, used in operator-facing resume results.
const (
	StepPayment  = "payment"
	StepArtifact = "artifact"
	StepDelivery = "delivery"
)

// StepError reports which fulfillment step failed and why. The subscriber is
// left at its last completed status, so the step can be retried later.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
