package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/subscription-server/internal/api"
	"github.com/ignite/subscription-server/internal/artifact"
	"github.com/ignite/subscription-server/internal/config"
	"github.com/ignite/subscription-server/internal/delivery"
	"github.com/ignite/subscription-server/internal/fulfillment"
	"github.com/ignite/subscription-server/internal/gateway"
	"github.com/ignite/subscription-server/internal/idempotency"
	"github.com/ignite/subscription-server/internal/mirror"
	"github.com/ignite/subscription-server/internal/store"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// mirrorSink is what the orchestrator needs plus shutdown draining
type mirrorSink interface {
	fulfillment.MirrorSyncer
	Drain(ctx context.Context) error
}

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale processes occupying the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func main() {
	log.Println("╔════════════════════════════════════════════════════════════╗")
	log.Println("║  Subscription Server (cmd/server/main.go)                 ║")
	log.Println("║  Payment webhooks -> fulfillment pipeline                 ║")
	log.Println("╚════════════════════════════════════════════════════════════╝")

	// Load configuration
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	// Pre-flight check: verify the target port is available
	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}
	log.Printf("Pre-flight check passed: port %d is available", port)

	// Authoritative record store
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to PostgreSQL")
	subscribers := store.NewStore(db)

	// Idempotency guard
	guard, err := idempotency.NewGuardFromURL(cfg.Redis.URL, cfg.Redis.KeyTTL())
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer guard.Close()

	// Mirror synchronizer (best-effort, optional)
	var sink mirrorSink = mirror.Disabled{}
	if cfg.Mirror.Enabled {
		sync, err := mirror.New(context.Background(), cfg.Mirror.Table, cfg.Mirror.Region,
			cfg.Mirror.GetAWSProfile(), cfg.Mirror.Timeout())
		if err != nil {
			// Mirror is non-essential; start without it rather than refusing to boot
			log.Printf("[Mirror] Disabled, initialization failed: %v", err)
		} else {
			sink = sync
			log.Printf("[Mirror] Syncing to DynamoDB table %s", cfg.Mirror.Table)
		}
	}

	// Artifact generation backed by S3
	blobs, err := artifact.NewS3BlobStore(context.Background(), cfg.Artifact.S3Bucket, cfg.Artifact.Region)
	if err != nil {
		log.Fatalf("Failed to initialize artifact blob store: %v", err)
	}
	generator := artifact.NewGenerator(blobs)

	// Email delivery via SES
	sender, err := delivery.NewSESSender(cfg.Delivery.AccessKey, cfg.Delivery.SecretKey,
		cfg.Delivery.Region, cfg.Delivery.FromName, cfg.Delivery.FromEmail)
	if err != nil {
		log.Fatalf("Failed to initialize SES sender: %v", err)
	}

	orchestrator := fulfillment.New(subscribers, generator, sender, sink)

	// Gateway adapters
	var adapters []gateway.Adapter
	if cfg.Stripe.Enabled {
		adapters = append(adapters, gateway.NewStripeAdapter(cfg.Stripe.WebhookSecret, cfg.Stripe.Tolerance()))
		log.Println("Stripe webhook endpoint enabled")
	}
	if cfg.Razorpay.Enabled {
		adapters = append(adapters, gateway.NewRazorpayAdapter(cfg.Razorpay.WebhookSecret))
		log.Println("Razorpay webhook endpoint enabled")
	}
	if len(adapters) == 0 {
		log.Println("WARNING: no payment gateway enabled; webhook endpoints will reject all traffic")
	}
	if cfg.Admin.APIToken == "" {
		log.Println("WARNING: admin API token not set; admin endpoints disabled")
	}

	handlers := api.NewHandlers(orchestrator, guard, subscribers, adapters...)
	server := api.NewServer(cfg.Server, handlers, cfg.Admin.APIToken)

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", host, port)
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Println("All services initialized — server is ready")

	<-done
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	// Let in-flight mirror syncs finish before the process exits
	if err := sink.Drain(shutdownCtx); err != nil {
		log.Printf("Mirror drain incomplete: %v", err)
	}

	log.Println("Server stopped")
}
