package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"

	ProviderSimulated = "simulated"
	ProviderNetwork   = "network"

	ArchiveNone  = "none"
	ArchiveLocal = "local"
	ArchiveS3    = "s3"
)

// Config holds application configuration.
type Config struct {
	Port             string   `env:"PORT" envDefault:"8080"`
	Env              string   `env:"ENV" envDefault:"dev"`
	CORSAllowOrigins []string `env:"CORS_ALLOW_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`
	ServiceName      string   `env:"SERVICE_NAME" envDefault:"medbeauty-api"`

	StoreDriver        string `env:"STORE_DRIVER" envDefault:"memory"`
	DatabaseURL        string `env:"DATABASE_URL"`
	MongoURI           string `env:"MONGODB_URI"`
	MongoDatabase      string `env:"MONGODB_DATABASE" envDefault:"medbeauty"`
	MongoCollection    string `env:"MONGODB_COLLECTION" envDefault:"analyses"`
	RunMigrations      bool   `env:"RUN_MIGRATIONS" envDefault:"false"`
	LambdaFunctionName string `env:"AWS_LAMBDA_FUNCTION_NAME"`

	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME"`
	DBConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME"`
	DBPingTimeout     time.Duration `env:"DB_PING_TIMEOUT"`

	AIProvider                string        `env:"AI_PROVIDER" envDefault:"simulated"`
	KimiAPIKey                string        `env:"KIMI_API_KEY"`
	KimiBaseURL               string        `env:"KIMI_BASE_URL" envDefault:"https://api.moonshot.cn/v1"`
	KimiModel                 string        `env:"KIMI_MODEL" envDefault:"kimi-k2.5"`
	KimiTemperature           float32       `env:"KIMI_TEMPERATURE" envDefault:"1"`
	KimiMaxTokens             int           `env:"KIMI_MAX_TOKENS" envDefault:"1000"`
	ProviderTimeout           time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"30s"`
	ProviderFallbackSimulated bool          `env:"PROVIDER_FALLBACK_SIMULATED" envDefault:"false"`
	SimulatedSeed             uint64        `env:"SIMULATED_SEED" envDefault:"0"`
	SimulatedLatency          time.Duration `env:"SIMULATED_LATENCY" envDefault:"0s"`

	ArchiveStore    string `env:"ARCHIVE_STORE" envDefault:"none"`
	ArchiveLocalDir string `env:"ARCHIVE_LOCAL_DIR" envDefault:"./data"`
	AWSRegion       string `env:"AWS_REGION"`
	ArchiveS3Bucket string `env:"ARCHIVE_S3_BUCKET"`
	ArchiveS3Prefix string `env:"ARCHIVE_S3_PREFIX"`
	SSEKMSKeyID     string `env:"SSE_KMS_KEY_ID"`

	RateLimitAnalyzePerMin float64 `env:"RATE_LIMIT_ANALYZE_PER_MIN" envDefault:"10"`
	RateLimitAnalyzeBurst  int     `env:"RATE_LIMIT_ANALYZE_BURST" envDefault:"5"`

	OTelEnabled     bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelInsecure    bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"false"`
	OTelSampleRatio float64 `env:"OTEL_SAMPLER_RATIO" envDefault:"0.1"`
}

// Load reads configuration from environment variables with defaults.
func Load() (Config, error) {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")
	return Parse()
}

// Parse reads configuration from the current environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects combinations the process cannot start with.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case StoreMemory:
		if c.Env == "production" {
			return fmt.Errorf("STORE_DRIVER=memory is not allowed in production")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for STORE_DRIVER=postgres")
		}
	case StoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required for STORE_DRIVER=mongo")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.AIProvider {
	case ProviderSimulated, ProviderNetwork:
	default:
		return fmt.Errorf("unknown AI_PROVIDER %q", c.AIProvider)
	}

	switch c.ArchiveStore {
	case ArchiveNone, ArchiveLocal:
	case ArchiveS3:
		if c.ArchiveS3Bucket == "" {
			return fmt.Errorf("ARCHIVE_S3_BUCKET is required for ARCHIVE_STORE=s3")
		}
	default:
		return fmt.Errorf("unknown ARCHIVE_STORE %q", c.ArchiveStore)
	}
	return nil
}

// IsDevLike reports whether the environment is a developer machine.
func (c Config) IsDevLike() bool {
	return c.Env == "dev" || c.Env == "local"
}

// IsLambda reports whether the process runs inside AWS Lambda.
func (c Config) IsLambda() bool {
	return c.LambdaFunctionName != ""
}

func (c *Config) normalize() {
	c.Env = normalizeEnv(c.Env)
	c.StoreDriver = normalizeStoreDriver(c.StoreDriver)
	c.AIProvider = normalizeProvider(c.AIProvider)
	c.ArchiveStore = strings.ToLower(strings.TrimSpace(c.ArchiveStore))
	if c.ArchiveStore == "" {
		c.ArchiveStore = ArchiveNone
	}
	c.CORSAllowOrigins = trimAll(c.CORSAllowOrigins)
	c.KimiAPIKey = strings.TrimSpace(c.KimiAPIKey)
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	c.MongoURI = strings.TrimSpace(c.MongoURI)
	c.LambdaFunctionName = strings.TrimSpace(c.LambdaFunctionName)
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreDriver(raw string) string {
	switch v := strings.ToLower(strings.TrimSpace(raw)); v {
	case "", "mem", StoreMemory:
		return StoreMemory
	case "pg", "postgresql", StorePostgres:
		return StorePostgres
	case "mongodb", StoreMongo:
		return StoreMongo
	default:
		return v
	}
}

func normalizeProvider(raw string) string {
	switch v := strings.ToLower(strings.TrimSpace(raw)); v {
	case "", "mock", ProviderSimulated:
		return ProviderSimulated
	case "kimi", "moonshot", ProviderNetwork:
		return ProviderNetwork
	default:
		return v
	}
}
