package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Stripe   StripeConfig   `yaml:"stripe"`
	Razorpay RazorpayConfig `yaml:"razorpay"`
	Mirror   MirrorConfig   `yaml:"mirror"`
	Artifact ArtifactConfig `yaml:"artifact"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Admin    AdminConfig    `yaml:"admin"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the authoritative Postgres store configuration
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds the idempotency store configuration
type RedisConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	// KeyTTLDays bounds how long admitted event ids are remembered.
	// Gateway retry windows are days, not months.
	KeyTTLDays int `yaml:"key_ttl_days"`
}

// Timeout returns the configured timeout as a duration
func (c RedisConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// KeyTTL returns the event id retention period as a duration
func (c RedisConfig) KeyTTL() time.Duration {
	return time.Duration(c.KeyTTLDays) * 24 * time.Hour
}

// StripeConfig holds Stripe webhook verification settings
type StripeConfig struct {
	WebhookSecret    string `yaml:"webhook_secret"`
	ToleranceSeconds int    `yaml:"tolerance_seconds"`
	Enabled          bool   `yaml:"enabled"`
}

// Tolerance returns the signed-timestamp tolerance as a duration
func (c StripeConfig) Tolerance() time.Duration {
	return time.Duration(c.ToleranceSeconds) * time.Second
}

// RazorpayConfig holds Razorpay webhook verification settings
type RazorpayConfig struct {
	WebhookSecret string `yaml:"webhook_secret"`
	Enabled       bool   `yaml:"enabled"`
}

// MirrorConfig holds the secondary DynamoDB mirror store settings
type MirrorConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Table          string `yaml:"table"`
	Region         string `yaml:"region"`
	AWSProfile     string `yaml:"aws_profile"` // empty uses default credential chain
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c MirrorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GetAWSProfile returns the AWS profile, with environment override
func (c MirrorConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	// On ECS/Lambda, don't use a profile - use IAM role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// ArtifactConfig holds artifact generation and blob storage settings
type ArtifactConfig struct {
	S3Bucket       string `yaml:"s3_bucket"`
	Region         string `yaml:"region"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c ArtifactConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DeliveryConfig holds SES delivery settings
type DeliveryConfig struct {
	Region         string `yaml:"region"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	FromName       string `yaml:"from_name"`
	FromEmail      string `yaml:"from_email"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c DeliveryConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AdminConfig holds the operator API settings
type AdminConfig struct {
	APIToken string `yaml:"api_token"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Redis.TimeoutSeconds == 0 {
		cfg.Redis.TimeoutSeconds = 5
	}
	if cfg.Redis.KeyTTLDays == 0 {
		cfg.Redis.KeyTTLDays = 30
	}
	if cfg.Stripe.ToleranceSeconds == 0 {
		cfg.Stripe.ToleranceSeconds = 300
	}
	if cfg.Mirror.TimeoutSeconds == 0 {
		cfg.Mirror.TimeoutSeconds = 5
	}
	if cfg.Mirror.Region == "" {
		cfg.Mirror.Region = "us-west-2"
	}
	if cfg.Artifact.TimeoutSeconds == 0 {
		cfg.Artifact.TimeoutSeconds = 30
	}
	if cfg.Artifact.Region == "" {
		cfg.Artifact.Region = cfg.Mirror.Region
	}
	if cfg.Delivery.TimeoutSeconds == 0 {
		cfg.Delivery.TimeoutSeconds = 30
	}
	if cfg.Delivery.Region == "" {
		cfg.Delivery.Region = "us-east-1"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis.URL = redisURL
	}
	if secret := os.Getenv("STRIPE_WEBHOOK_SECRET"); secret != "" {
		cfg.Stripe.WebhookSecret = secret
		cfg.Stripe.Enabled = true
	}
	if secret := os.Getenv("RAZORPAY_WEBHOOK_SECRET"); secret != "" {
		cfg.Razorpay.WebhookSecret = secret
		cfg.Razorpay.Enabled = true
	}
	if table := os.Getenv("MIRROR_DYNAMODB_TABLE"); table != "" {
		cfg.Mirror.Table = table
		cfg.Mirror.Enabled = true
	}
	if region := os.Getenv("MIRROR_AWS_REGION"); region != "" {
		cfg.Mirror.Region = region
	}
	if bucket := os.Getenv("ARTIFACT_S3_BUCKET"); bucket != "" {
		cfg.Artifact.S3Bucket = bucket
	}
	if accessKey := os.Getenv("AWS_SES_ACCESS_KEY"); accessKey != "" {
		cfg.Delivery.AccessKey = accessKey
	}
	if secretKey := os.Getenv("AWS_SES_SECRET_KEY"); secretKey != "" {
		cfg.Delivery.SecretKey = secretKey
	}
	if region := os.Getenv("AWS_SES_REGION"); region != "" {
		cfg.Delivery.Region = region
	}
	if token := os.Getenv("ADMIN_API_TOKEN"); token != "" {
		cfg.Admin.APIToken = token
	}

	return cfg, nil
}
