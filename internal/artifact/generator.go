// Package artifact produces the deliverable for a paid subscriber (a
// welcome certificate) and stores it in a durable blob store keyed by the
// subscriber id.
package artifact

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/subscription-server/internal/domain"
	"github.com/osteele/liquid"
)

// defaultTemplate renders the certificate body. Content substitution is
// deliberately minimal; the artifact only needs to be a stable byte blob
// tied to the subscriber.
const defaultTemplate = `<!DOCTYPE html>
<html>
<head><title>Welcome Certificate</title></head>
<body>
  <h1>Welcome to Our Subscription Service!</h1>
  <p>This certifies that <strong>{{ email }}</strong> became a subscriber on {{ date }}.</p>
  <p>Reference: {{ subscriber_id }}</p>
</body>
</html>
`

const contentType = "text/html; charset=utf-8"

// BlobStore is a durable blob store keyed by an opaque location string
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, string, error)
}

// Generator renders certificates and persists them to a blob store
type Generator struct {
	engine   *liquid.Engine
	template string
	blobs    BlobStore

	now func() time.Time
}

// NewGenerator creates a certificate generator backed by the given blob store
func NewGenerator(blobs BlobStore) *Generator {
	return &Generator{
		engine:   liquid.NewEngine(),
		template: defaultTemplate,
		blobs:    blobs,
		now:      time.Now,
	}
}

// Generate renders the certificate for a subscriber, stores it, and returns
// the blob location to persist on the subscriber record.
func (g *Generator) Generate(ctx context.Context, sub *domain.Subscriber) (string, error) {
	bindings := map[string]interface{}{
		"email":         sub.Email,
		"subscriber_id": sub.ID.String(),
		"date":          g.now().Format("02-01-2006"),
	}

	out, err := g.engine.ParseAndRenderString(g.template, bindings)
	if err != nil {
		return "", fmt.Errorf("rendering certificate: %w", err)
	}

	location := fmt.Sprintf("certificates/%s.html", sub.ID)
	if err := g.blobs.Put(ctx, location, []byte(out), contentType); err != nil {
		return "", fmt.Errorf("storing certificate: %w", err)
	}

	return location, nil
}

// Fetch retrieves a previously generated certificate by its location
func (g *Generator) Fetch(ctx context.Context, location string) ([]byte, string, error) {
	return g.blobs.Get(ctx, location)
}
