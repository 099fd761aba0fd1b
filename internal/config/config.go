package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port          string   `mapstructure:"PORT"`
	Env           string   `mapstructure:"ENV"`
	DatabaseURL   string   `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32    `mapstructure:"DB_MIN_CONNS"`
	DefaultTenant string   `mapstructure:"DEFAULT_TENANT"`
	CORSOrigins   []string `mapstructure:"CORS_ORIGINS"`
	JWTSecret     string   `mapstructure:"JWT_SECRET"`
	AuthIssuer    string   `mapstructure:"AUTH_ISSUER"`
	AuthAudience  string   `mapstructure:"AUTH_AUDIENCE"`

	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	// Fulfillment locking
	LockTimeout              time.Duration `mapstructure:"LOCK_TIMEOUT"`
	LockRetryMaxAttempts     int           `mapstructure:"LOCK_RETRY_MAX_ATTEMPTS"`
	LockRetryInitialInterval time.Duration `mapstructure:"LOCK_RETRY_INITIAL_INTERVAL"`

	// Audit recorder
	AuditQueueSize    int      `mapstructure:"AUDIT_QUEUE_SIZE"`
	AuditWorkers      int      `mapstructure:"AUDIT_WORKERS"`
	AuditWriteRetries int      `mapstructure:"AUDIT_WRITE_RETRIES"`
	KafkaBrokers      []string `mapstructure:"KAFKA_BROKERS"`
	KafkaAuditTopic   string   `mapstructure:"KAFKA_AUDIT_TOPIC"`

	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// Inventory read filters
	LowStockThreshold int `mapstructure:"LOW_STOCK_THRESHOLD"`
	ExpiryWindowDays  int `mapstructure:"EXPIRY_WINDOW_DAYS"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"DEFAULT_TENANT", "CORS_ORIGINS", "JWT_SECRET", "AUTH_ISSUER", "AUTH_AUDIENCE",
	"REQUEST_TIMEOUT", "LOCK_TIMEOUT", "LOCK_RETRY_MAX_ATTEMPTS", "LOCK_RETRY_INITIAL_INTERVAL",
	"AUDIT_QUEUE_SIZE", "AUDIT_WORKERS", "AUDIT_WRITE_RETRIES",
	"KAFKA_BROKERS", "KAFKA_AUDIT_TOPIC", "OTEL_EXPORTER_OTLP_ENDPOINT",
	"LOW_STOCK_THRESHOLD", "EXPIRY_WINDOW_DAYS",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOCK_TIMEOUT", "2s")
	v.SetDefault("LOCK_RETRY_MAX_ATTEMPTS", 3)
	v.SetDefault("LOCK_RETRY_INITIAL_INTERVAL", "50ms")
	v.SetDefault("AUDIT_QUEUE_SIZE", 1024)
	v.SetDefault("AUDIT_WORKERS", 2)
	v.SetDefault("AUDIT_WRITE_RETRIES", 3)
	v.SetDefault("KAFKA_AUDIT_TOPIC", "clinic.audit")
	v.SetDefault("LOW_STOCK_THRESHOLD", 100)
	v.SetDefault("EXPIRY_WINDOW_DAYS", 90)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(v.GetString("KAFKA_BROKERS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: running in DEVELOPMENT mode (ENV=development); every request is treated as admin.")
	}

	return cfg, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// a JWT secret of at least 32 bytes is required.
func (c *Config) Validate() error {
	if !c.IsDev() {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when ENV=%q", c.Env)
		}
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 bytes, got %d", len(c.JWTSecret))
		}
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("LOCK_TIMEOUT must be positive, got %s", c.LockTimeout)
	}
	if c.LockRetryMaxAttempts < 1 {
		return fmt.Errorf("LOCK_RETRY_MAX_ATTEMPTS must be at least 1, got %d", c.LockRetryMaxAttempts)
	}
	if c.AuditQueueSize < 1 || c.AuditWorkers < 1 {
		return fmt.Errorf("AUDIT_QUEUE_SIZE and AUDIT_WORKERS must be at least 1")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaAuditTopic == "" {
		return fmt.Errorf("KAFKA_AUDIT_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}
