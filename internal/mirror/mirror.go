// Package mirror keeps a secondary DynamoDB document store in sync with the
// authoritative subscriber records. The mirror is a reporting convenience:
// writes are best-effort upserts and its unavailability never blocks or
// fails fulfillment.
package mirror

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/ignite/subscription-server/internal/domain"
)

// dynamoAPI is the slice of the DynamoDB client the synchronizer uses
type dynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Synchronizer upserts subscriber mirror records keyed by email. PutItem is
// a full-item replace, so calling Sync repeatedly with the same data is
// harmless; there is no read-modify-write to race.
type Synchronizer struct {
	client  dynamoAPI
	table   string
	timeout time.Duration

	wg  sync.WaitGroup
	now func() time.Time
}

// New creates a DynamoDB-backed synchronizer
func New(ctx context.Context, table, region, profile string, timeout time.Duration) (*Synchronizer, error) {
	var cfg aws.Config
	var err error

	if profile != "" {
		cfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
			awsconfig.WithSharedConfigProfile(profile),
		)
	} else {
		cfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return newWithClient(dynamodb.NewFromConfig(cfg), table, timeout), nil
}

func newWithClient(client dynamoAPI, table string, timeout time.Duration) *Synchronizer {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Synchronizer{
		client:  client,
		table:   table,
		timeout: timeout,
		now:     time.Now,
	}
}

// Sync upserts the subscriber into the mirror store. Failures are logged and
// swallowed: the authoritative write already succeeded and the caller's step
// is complete regardless of mirror availability.
func (s *Synchronizer) Sync(ctx context.Context, sub *domain.Subscriber) {
	rec := domain.NewMirrorRecord(sub, s.now())

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		log.Printf("[Mirror] Failed to marshal record for %s: %v", sub.Email, err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		log.Printf("[Mirror] Sync failed for %s (status %s): %v", sub.Email, sub.Status, err)
		return
	}
}

// Dispatch fires a sync without waiting for it. The subscriber value is
// copied so the caller can keep mutating its own record. Drain waits for
// everything dispatched so shutdown doesn't silently drop syncs.
func (s *Synchronizer) Dispatch(sub *domain.Subscriber) {
	copied := *sub
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Sync(context.Background(), &copied)
	}()
}

// Disabled satisfies dispatch consumers when mirroring is turned off
type Disabled struct{}

// Dispatch drops the record
func (Disabled) Dispatch(*domain.Subscriber) {}

// Drain returns immediately
func (Disabled) Drain(context.Context) error { return nil }

// Drain blocks until all dispatched syncs finish or the context expires
func (s *Synchronizer) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
