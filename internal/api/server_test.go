package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/subscription-server/internal/domain"
	"github.com/ignite/subscription-server/internal/fulfillment"
	"github.com/ignite/subscription-server/internal/gateway"
)

const (
	stripeSecret   = "whsec_test"
	razorpaySecret = "rzp_test"
	adminToken     = "admin-token"
)

type fakePipeline struct {
	registered []string
	handled    []*domain.PaymentEvent
	resumed    []uuid.UUID
	sub        *domain.Subscriber
	resumeRes  *fulfillment.ResumeResult
	err        error
}

func (f *fakePipeline) Register(_ context.Context, email string) (*domain.Subscriber, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.registered = append(f.registered, email)
	return f.sub, nil
}

func (f *fakePipeline) HandlePaymentConfirmed(_ context.Context, event *domain.PaymentEvent) (*domain.Subscriber, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.handled = append(f.handled, event)
	return f.sub, nil
}

func (f *fakePipeline) Resume(_ context.Context, id uuid.UUID, _ bool) (*fulfillment.ResumeResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.resumed = append(f.resumed, id)
	return f.resumeRes, nil
}

type fakeGuard struct {
	admitted map[string]bool
	err      error
}

func newFakeGuard() *fakeGuard { return &fakeGuard{admitted: make(map[string]bool)} }

func (f *fakeGuard) Admit(_ context.Context, gw, eventID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	key := gw + ":" + eventID
	if f.admitted[key] {
		return false, nil
	}
	f.admitted[key] = true
	return true, nil
}

type fakeReader struct {
	subs []*domain.Subscriber
	err  error
}

func (f *fakeReader) GetByID(_ context.Context, id uuid.UUID) (*domain.Subscriber, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, sub := range f.subs {
		if sub.ID == id {
			return sub, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeReader) ListSubscribers(_ context.Context, limit, offset int) ([]*domain.Subscriber, int, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.subs, len(f.subs), nil
}

func newTestServer(pipeline *fakePipeline, guard *fakeGuard, reader *fakeReader) http.Handler {
	handlers := NewHandlers(pipeline, guard, reader,
		gateway.NewStripeAdapter(stripeSecret, 5*time.Minute),
		gateway.NewRazorpayAdapter(razorpaySecret),
	)
	return SetupRoutes(handlers, adminToken)
}

func signStripe(payload []byte) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(stripeSecret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func signRazorpay(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(razorpaySecret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func stripePayload(eventID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"type": "checkout.session.completed",
		"data": {"object": {
			"client_reference_id": "",
			"customer_email": "a@x.com",
			"payment_intent": "pi_1",
			"amount_total": 4900,
			"currency": "usd"
		}}
	}`, eventID))
}

func TestWebhook_StripeSuccess(t *testing.T) {
	pipeline := &fakePipeline{sub: &domain.Subscriber{ID: uuid.New(), Email: "a@x.com", Status: domain.StatusDelivered}}
	handler := newTestServer(pipeline, newFakeGuard(), &fakeReader{})

	payload := stripePayload("evt_1")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signStripe(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}
	if len(pipeline.handled) != 1 {
		t.Fatalf("handled %d events, want 1", len(pipeline.handled))
	}
	if pipeline.handled[0].ExternalEventID != "evt_1" {
		t.Errorf("event id = %q", pipeline.handled[0].ExternalEventID)
	}
}

func TestWebhook_InvalidSignatureRejected(t *testing.T) {
	pipeline := &fakePipeline{}
	handler := newTestServer(pipeline, newFakeGuard(), &fakeReader{})

	payload := stripePayload("evt_1")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if len(pipeline.handled) != 0 {
		t.Error("unauthenticated event must not reach the pipeline")
	}
}

func TestWebhook_DuplicateAcknowledged(t *testing.T) {
	pipeline := &fakePipeline{sub: &domain.Subscriber{ID: uuid.New(), Status: domain.StatusDelivered}}
	handler := newTestServer(pipeline, newFakeGuard(), &fakeReader{})

	payload := stripePayload("evt_dup")
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
		req.Header.Set("Stripe-Signature", signStripe(payload))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: status = %d", i+1, rec.Code)
		}
	}

	if len(pipeline.handled) != 1 {
		t.Errorf("handled %d events, want 1 (duplicate must be dropped)", len(pipeline.handled))
	}
}

func TestWebhook_GuardOutageAsksForRetry(t *testing.T) {
	guard := newFakeGuard()
	guard.err = errors.New("redis down")
	handler := newTestServer(&fakePipeline{}, guard, &fakeReader{})

	payload := stripePayload("evt_1")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signStripe(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 so the gateway redelivers", rec.Code)
	}
}

func TestWebhook_UnhandledKindAcknowledged(t *testing.T) {
	pipeline := &fakePipeline{}
	handler := newTestServer(pipeline, newFakeGuard(), &fakeReader{})

	payload := []byte(`{"id": "evt_1", "type": "invoice.created", "data": {"object": {}}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signStripe(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, unhandled kinds are acknowledged", rec.Code)
	}
	if len(pipeline.handled) != 0 {
		t.Error("unhandled kind must not reach the pipeline")
	}
}

func TestWebhook_CorrelationFailureAcknowledged(t *testing.T) {
	pipeline := &fakePipeline{err: fmt.Errorf("no subscriber: %w", domain.ErrNotFound)}
	handler := newTestServer(pipeline, newFakeGuard(), &fakeReader{})

	payload := stripePayload("evt_1")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signStripe(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, correlation failure is acknowledged not retried", rec.Code)
	}
}

func TestWebhook_RazorpaySuccess(t *testing.T) {
	pipeline := &fakePipeline{sub: &domain.Subscriber{ID: uuid.New(), Status: domain.StatusDelivered}}
	handler := newTestServer(pipeline, newFakeGuard(), &fakeReader{})

	payload := []byte(`{
		"event": "payment.captured",
		"payload": {"payment": {"entity": {
			"id": "pay_1", "amount": 49900, "currency": "INR",
			"email": "a@x.com", "notes": {}
		}}}
	}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/razorpay", bytes.NewReader(payload))
	req.Header.Set("X-Razorpay-Signature", signRazorpay(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}
	if len(pipeline.handled) != 1 || pipeline.handled[0].SourceGateway != domain.GatewayRazorpay {
		t.Errorf("handled = %+v", pipeline.handled)
	}
}

func TestCreateSubscription(t *testing.T) {
	sub := &domain.Subscriber{ID: uuid.New(), Email: "a@x.com", Status: domain.StatusCreated}
	pipeline := &fakePipeline{sub: sub}
	handler := newTestServer(pipeline, newFakeGuard(), &fakeReader{})

	req := httptest.NewRequest(http.MethodPost, "/api/subscriptions", bytes.NewReader([]byte(`{"email": "A@X.com "}`)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}
	if len(pipeline.registered) != 1 || pipeline.registered[0] != "a@x.com" {
		t.Errorf("registered = %v, email should be normalized", pipeline.registered)
	}
}

func TestCreateSubscription_BadEmail(t *testing.T) {
	handler := newTestServer(&fakePipeline{}, newFakeGuard(), &fakeReader{})

	req := httptest.NewRequest(http.MethodPost, "/api/subscriptions", bytes.NewReader([]byte(`{"email": "not-an-email"}`)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAdminResume_RequiresToken(t *testing.T) {
	sub := &domain.Subscriber{ID: uuid.New(), Status: domain.StatusDelivered}
	pipeline := &fakePipeline{resumeRes: &fulfillment.ResumeResult{Subscriber: sub, AlreadyDelivered: true}}
	handler := newTestServer(pipeline, newFakeGuard(), &fakeReader{})

	url := "/api/admin/subscribers/" + sub.ID.String() + "/resume"

	req := httptest.NewRequest(http.MethodPost, url, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, url, nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, url, nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("good token: status = %d, body: %s", rec.Code, rec.Body.String())
	}

	var result fulfillment.ResumeResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !result.AlreadyDelivered {
		t.Error("expected already_delivered in response")
	}
	if len(pipeline.resumed) != 1 || pipeline.resumed[0] != sub.ID {
		t.Errorf("resumed = %v", pipeline.resumed)
	}
}

func TestAdminResume_UnknownSubscriber(t *testing.T) {
	pipeline := &fakePipeline{err: domain.ErrNotFound}
	handler := newTestServer(pipeline, newFakeGuard(), &fakeReader{})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/subscribers/"+uuid.NewString()+"/resume", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestAdminListSubscribers(t *testing.T) {
	reader := &fakeReader{subs: []*domain.Subscriber{
		{ID: uuid.New(), Email: "a@x.com", Status: domain.StatusPaid},
		{ID: uuid.New(), Email: "b@x.com", Status: domain.StatusDelivered},
	}}
	handler := newTestServer(&fakePipeline{}, newFakeGuard(), reader)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/subscribers?limit=10", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Total != 2 {
		t.Errorf("total = %d, want 2", resp.Total)
	}
}

func TestHealthCheck(t *testing.T) {
	handler := newTestServer(&fakePipeline{}, newFakeGuard(), &fakeReader{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}
