package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	BlobMemory = "memory"
	BlobS3     = "s3"

	EventsLog   = "log"
	EventsKafka = "kafka"
	EventsSQS   = "sqs"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	StoreDriver    string        `mapstructure:"STORE_DRIVER"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	SQLitePath     string        `mapstructure:"SQLITE_PATH"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir  string        `mapstructure:"MIGRATIONS_DIR"`
	JWTSecret      string        `mapstructure:"JWT_SECRET"`
	JWTTTL         time.Duration `mapstructure:"JWT_TTL"`
	BcryptCost     int           `mapstructure:"BCRYPT_COST"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	RedisURL       string        `mapstructure:"REDIS_URL"`
	BlobBackend    string        `mapstructure:"BLOB_BACKEND"`
	S3Bucket       string        `mapstructure:"S3_BUCKET"`
	S3Endpoint     string        `mapstructure:"S3_ENDPOINT"`
	S3Prefix       string        `mapstructure:"S3_PREFIX"`
	EventsBackend  string        `mapstructure:"EVENTS_BACKEND"`
	KafkaBrokers   []string      `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic     string        `mapstructure:"KAFKA_TOPIC"`
	SQSQueue       string        `mapstructure:"SQS_QUEUE"`
	OTelEnabled    bool          `mapstructure:"OTEL_ENABLED"`
	OTelEndpoint   string        `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelInsecure   bool          `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTelSampler    float64       `mapstructure:"OTEL_SAMPLER_RATIO"`
}

var keys = []string{
	"PORT", "ENV", "STORE_DRIVER", "DATABASE_URL", "SQLITE_PATH",
	"DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR",
	"JWT_SECRET", "JWT_TTL", "BCRYPT_COST",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BODY_LIMIT",
	"REDIS_URL",
	"BLOB_BACKEND", "S3_BUCKET", "S3_ENDPOINT", "S3_PREFIX",
	"EVENTS_BACKEND", "KAFKA_BROKERS", "KAFKA_TOPIC", "SQS_QUEUE",
	"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_INSECURE", "OTEL_SAMPLER_RATIO",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "4000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE_DRIVER", DriverPostgres)
	v.SetDefault("SQLITE_PATH", "medrec.db")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("JWT_TTL", "168h")
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	// 100 requests per minute per client.
	v.SetDefault("RATE_LIMIT_RPS", 100.0/60.0)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("BODY_LIMIT", "10M")
	v.SetDefault("BLOB_BACKEND", BlobMemory)
	v.SetDefault("S3_PREFIX", "attachments")
	v.SetDefault("EVENTS_BACKEND", EventsLog)
	v.SetDefault("KAFKA_BROKERS", "kafka:9092")
	v.SetDefault("KAFKA_TOPIC", "medrec-events")
	v.SetDefault("SQS_QUEUE", "medrec-events")
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SAMPLER_RATIO", 1.0)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers, v.GetString("KAFKA_BROKERS"))

	if cfg.StoreDriver == DriverPostgres && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is %q", DriverPostgres)
	}

	if cfg.IsDev() {
		log.Println("WARNING: server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: set ENV=production and a strong JWT_SECRET before deploying.")
	}

	return cfg, nil
}

// splitList normalises comma separated env values. Viper decodes a single
// env string into a one-element slice, so both forms end up here.
func splitList(current []string, raw string) []string {
	if len(current) == 1 {
		raw = current[0]
	} else if len(current) > 1 {
		return current
	}
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

// Validate checks cross-field rules that Load cannot express as defaults.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.StoreDriver)
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.IsProduction() && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes in production, got %d", len(c.JWTSecret))
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost)
	}

	switch c.BlobBackend {
	case BlobMemory:
		// Attachment rows in postgres would outlive bytes held in memory.
		if c.IsProduction() && c.StoreDriver == DriverPostgres {
			return fmt.Errorf("BLOB_BACKEND %q cannot be used with the postgres store in production", BlobMemory)
		}
	case BlobS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when BLOB_BACKEND is %q", BlobS3)
		}
	default:
		return fmt.Errorf("BLOB_BACKEND must be %q or %q, got %q", BlobMemory, BlobS3, c.BlobBackend)
	}

	switch c.EventsBackend {
	case EventsLog:
	case EventsKafka:
		if len(c.KafkaBrokers) == 0 || c.KafkaTopic == "" {
			return fmt.Errorf("KAFKA_BROKERS and KAFKA_TOPIC are required when EVENTS_BACKEND is %q", EventsKafka)
		}
	case EventsSQS:
		if c.SQSQueue == "" {
			return fmt.Errorf("SQS_QUEUE is required when EVENTS_BACKEND is %q", EventsSQS)
		}
	default:
		return fmt.Errorf("EVENTS_BACKEND must be %q, %q or %q, got %q", EventsLog, EventsKafka, EventsSQS, c.EventsBackend)
	}

	if c.OTelSampler < 0 || c.OTelSampler > 1 {
		return fmt.Errorf("OTEL_SAMPLER_RATIO must be within [0, 1], got %v", c.OTelSampler)
	}

	return nil
}
