// Package config loads process configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	StoreNeo4j  = "neo4j"
	StoreMemory = "memory"
)

// Config is the full runtime configuration. Values are read once at startup.
type Config struct {
	Env         string `env:"APP_ENV,default=development"`
	HTTPAddr    string `env:"HTTP_ADDR,default=:8080"`
	PublicURL   string `env:"PUBLIC_URL,default=http://localhost:8080"`
	FrontendURL string `env:"FRONTEND_URL,default=http://localhost:3000"`
	StoreDriver string `env:"STORE_DRIVER,default=neo4j"`

	Neo4j    Neo4j
	JWT      JWT
	Payments Payments

	RedisURL string `env:"REDIS_URL"`

	MediaDir    string `env:"MEDIA_DIR,default=./data/media"`
	MaxUploadMB int64  `env:"MAX_UPLOAD_MB,default=20"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`

	CORSOrigins    string `env:"CORS_ORIGINS,default=*"`
	RateLimitRPS   int    `env:"RATE_LIMIT_RPS,default=5"`
	RateLimitBurst int    `env:"RATE_LIMIT_BURST,default=10"`

	MailFrom    string `env:"MAIL_FROM,default=no-reply@feetflight.local"`
	AdminEmails string `env:"ADMIN_EMAILS"`

	ExpirySchedule  string        `env:"EXPIRY_SCHEDULE,default=@every 15m"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=15s"`
}

type Neo4j struct {
	URI      string `env:"NEO4J_URI,default=neo4j://localhost:7687"`
	Username string `env:"NEO4J_USERNAME,default=neo4j"`
	Password string `env:"NEO4J_PASSWORD"`
	Database string `env:"NEO4J_DATABASE,default=neo4j"`
}

type JWT struct {
	Secret string        `env:"JWT_SECRET"`
	TTL    time.Duration `env:"JWT_TTL,default=24h"`
}

type Payments struct {
	APIURL        string `env:"PAYMENTS_API_URL,default=https://api.stripe.com/v1"`
	SecretKey     string `env:"PAYMENTS_SECRET_KEY"`
	WebhookSecret string `env:"PAYMENTS_WEBHOOK_SECRET"`
	Currency      string `env:"PAYMENTS_CURRENCY,default=usd"`
}

// Load reads envFile (when present) and decodes the environment.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field requirements that struct tags cannot express.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreNeo4j, StoreMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreNeo4j, StoreMemory, c.StoreDriver)
	}
	if c.JWT.Secret == "" {
		if !c.IsDevelopment() {
			return errors.New("JWT_SECRET is required outside development")
		}
		c.JWT.Secret = "development-secret"
	}
	if c.StoreDriver == StoreNeo4j && c.Neo4j.Password == "" && !c.IsDevelopment() {
		return errors.New("NEO4J_PASSWORD is required outside development")
	}
	if c.Payments.WebhookSecret == "" {
		switch {
		case c.Payments.SecretKey != "":
			return errors.New("PAYMENTS_WEBHOOK_SECRET is required when PAYMENTS_SECRET_KEY is set")
		case !c.IsDevelopment():
			return errors.New("PAYMENTS_WEBHOOK_SECRET is required outside development")
		}
		c.Payments.WebhookSecret = "development-webhook-secret"
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", c.MaxUploadMB)
	}
	return nil
}

// IsDevelopment reports whether error causes may be exposed to clients.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, EnvDevelopment)
}

// AllowedOrigins splits CORS_ORIGINS on commas.
func (c *Config) AllowedOrigins() []string {
	return splitList(c.CORSOrigins)
}

// Admins returns the lower-cased e-mail addresses granted the admin role.
func (c *Config) Admins() []string {
	out := splitList(c.AdminEmails)
	for i := range out {
		out[i] = strings.ToLower(out[i])
	}
	return out
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
