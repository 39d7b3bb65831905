package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestStatusOrdering(t *testing.T) {
	ordered := []SubscriberStatus{StatusCreated, StatusPaid, StatusArtifactGenerated, StatusDelivered}
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Rank() <= ordered[i-1].Rank() {
			t.Errorf("%s should rank above %s", ordered[i], ordered[i-1])
		}
	}

	if !StatusDelivered.AtLeast(StatusPaid) {
		t.Error("delivered should be at least paid")
	}
	if StatusCreated.AtLeast(StatusPaid) {
		t.Error("created should not be at least paid")
	}
	if SubscriberStatus("bogus").AtLeast(StatusCreated) {
		t.Error("unknown statuses rank below created")
	}
}

func TestNewMirrorRecord(t *testing.T) {
	ref := "pay_123"
	loc := "certificates/abc.html"
	sub := &Subscriber{
		ID:               uuid.New(),
		Email:            "a@x.com",
		Status:           StatusArtifactGenerated,
		PaymentReference: &ref,
		ArtifactLocation: &loc,
		CreatedAt:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	syncedAt := time.Date(2026, 1, 2, 4, 0, 0, 0, time.UTC)

	rec := NewMirrorRecord(sub, syncedAt)
	if rec.Email != "a@x.com" || rec.SubscriberID != sub.ID.String() {
		t.Errorf("identity fields = %+v", rec)
	}
	if rec.Status != "artifact_generated" {
		t.Errorf("status = %q", rec.Status)
	}
	if rec.PaymentReference != "pay_123" || rec.ArtifactLocation != loc {
		t.Errorf("optional fields = %+v", rec)
	}
	if rec.LastSyncedAt != "2026-01-02T04:00:00Z" {
		t.Errorf("last_synced_at = %q", rec.LastSyncedAt)
	}
}

func TestNewMirrorRecord_NilOptionals(t *testing.T) {
	sub := &Subscriber{ID: uuid.New(), Email: "a@x.com", Status: StatusCreated, CreatedAt: time.Now()}

	rec := NewMirrorRecord(sub, time.Now())
	if rec.PaymentReference != "" || rec.ArtifactLocation != "" {
		t.Errorf("unset optionals should stay empty: %+v", rec)
	}
}
