// Package store is the authoritative record store for subscribers. All
// status transitions are committed here first; no other component writes
// status, payment_reference, or artifact_location.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/subscription-server/internal/domain"
)

const subscriberColumns = `id, email, status, payment_reference, artifact_location, created_at, updated_at`

// Store provides database operations for subscribers
type Store struct {
	db *sql.DB
}

// NewStore creates a new subscriber store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func scanSubscriber(row interface{ Scan(...any) error }) (*domain.Subscriber, error) {
	sub := &domain.Subscriber{}
	err := row.Scan(&sub.ID, &sub.Email, &sub.Status, &sub.PaymentReference,
		&sub.ArtifactLocation, &sub.CreatedAt, &sub.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// CreateSubscriber creates a subscriber in the Created state. The email is
// globally unique; a repeat submission resolves to the existing record
// instead of creating a duplicate.
func (s *Store) CreateSubscriber(ctx context.Context, email string) (*domain.Subscriber, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("empty email")
	}

	id := uuid.New()
	now := time.Now()

	query := `INSERT INTO subscribers (id, email, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO NOTHING`

	if _, err := s.db.ExecContext(ctx, query, id, email, domain.StatusCreated, now, now); err != nil {
		return nil, fmt.Errorf("creating subscriber: %w", err)
	}

	// Either our insert or the pre-existing record
	return s.GetByEmail(ctx, email)
}

// GetByID retrieves a subscriber by id
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*domain.Subscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE id = $1`
	return scanSubscriber(s.db.QueryRowContext(ctx, query, id))
}

// GetByEmail retrieves a subscriber by email
func (s *Store) GetByEmail(ctx context.Context, email string) (*domain.Subscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE email = $1`
	return scanSubscriber(s.db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(email))))
}

// Resolve looks up a subscriber from a gateway correlation reference: the
// opaque id first, email fallback second. Returns domain.ErrNotFound when
// neither matches; callers surface that as a correlation failure.
func (s *Store) Resolve(ctx context.Context, ref domain.SubscriberRef) (*domain.Subscriber, error) {
	if ref.ID != "" {
		if id, err := uuid.Parse(ref.ID); err == nil {
			sub, err := s.GetByID(ctx, id)
			if err == nil {
				return sub, nil
			}
			if err != domain.ErrNotFound {
				return nil, err
			}
		}
	}
	if ref.Email != "" {
		return s.GetByEmail(ctx, ref.Email)
	}
	return nil, domain.ErrNotFound
}

// ApplyPaymentConfirmed advances a subscriber from Created to Paid and
// records the settled payment reference. The update is a single conditional
// statement: if the subscriber already advanced past Created (an earlier
// event, another gateway, a concurrent delivery) it is a no-op that returns
// the current record with the original payment reference intact.
func (s *Store) ApplyPaymentConfirmed(ctx context.Context, id uuid.UUID, settledReference string) (*domain.Subscriber, error) {
	query := `UPDATE subscribers
		SET status = $2, payment_reference = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
		RETURNING ` + subscriberColumns

	sub, err := scanSubscriber(s.db.QueryRowContext(ctx, query, id, domain.StatusPaid, settledReference, domain.StatusCreated))
	if err == domain.ErrNotFound {
		// Lost the conditional update: either already >= Paid or truly absent
		return s.GetByID(ctx, id)
	}
	return sub, err
}

// ApplyArtifactGenerated advances a subscriber from Paid to
// ArtifactGenerated and records where the artifact blob lives. No-op if a
// concurrent transition already advanced the record.
func (s *Store) ApplyArtifactGenerated(ctx context.Context, id uuid.UUID, artifactLocation string) (*domain.Subscriber, error) {
	query := `UPDATE subscribers
		SET status = $2, artifact_location = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
		RETURNING ` + subscriberColumns

	sub, err := scanSubscriber(s.db.QueryRowContext(ctx, query, id, domain.StatusArtifactGenerated, artifactLocation, domain.StatusPaid))
	if err == domain.ErrNotFound {
		return s.GetByID(ctx, id)
	}
	return sub, err
}

// ApplyDelivered advances a subscriber from ArtifactGenerated to the
// terminal Delivered state. No-op if already delivered.
func (s *Store) ApplyDelivered(ctx context.Context, id uuid.UUID) (*domain.Subscriber, error) {
	query := `UPDATE subscribers
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
		RETURNING ` + subscriberColumns

	sub, err := scanSubscriber(s.db.QueryRowContext(ctx, query, id, domain.StatusDelivered, domain.StatusArtifactGenerated))
	if err == domain.ErrNotFound {
		return s.GetByID(ctx, id)
	}
	return sub, err
}

// ListSubscribers retrieves subscribers for the operator view, newest first
func (s *Store) ListSubscribers(ctx context.Context, limit, offset int) ([]*domain.Subscriber, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscribers`).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + subscriberColumns + ` FROM subscribers
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var subs []*domain.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, 0, err
		}
		subs = append(subs, sub)
	}
	return subs, total, rows.Err()
}
