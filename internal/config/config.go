package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	Postgres   PostgresConfig
	JWT        JWTConfig
	RateLimit  RateLimitConfig
	OpenAI     OpenAIConfig
	Perplexity PerplexityConfig
	NanoBanana NanoBananaConfig
	R2         R2Config
	Gateway    GatewayConfig
	Dispatch   DispatchConfig
	Stream     StreamConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	URL string
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	ExplanationPerHour int
	DocumentsPerHour   int
	ExportPerHour      int
}

type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
}

type PerplexityConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type NanoBananaConfig struct {
	APIKey  string
	BaseURL string
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type GatewayConfig struct {
	Enabled bool
}

// DispatchConfig bounds the sync/async decision.
type DispatchConfig struct {
	MaxSyncImages int
	MaxImageBytes int64
}

// StreamConfig controls the status stream poll loop.
type StreamConfig struct {
	PollInterval time.Duration
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("DATABASE_URL")
	readSecret("OPENAI_API_KEY")
	readSecret("PERPLEXITY_API_KEY")
	readSecret("NANOBANANA_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("JWT_SECRET")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("postgres.url", "DATABASE_URL")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	_ = viper.BindEnv("openai.base_url", "OPENAI_BASE_URL")
	_ = viper.BindEnv("openai.model", "OPENAI_MODEL")
	_ = viper.BindEnv("openai.embedding_model", "OPENAI_EMBEDDING_MODEL")
	_ = viper.BindEnv("perplexity.api_key", "PERPLEXITY_API_KEY")
	_ = viper.BindEnv("perplexity.base_url", "PERPLEXITY_BASE_URL")
	_ = viper.BindEnv("perplexity.model", "PERPLEXITY_MODEL")
	_ = viper.BindEnv("nanobanana.api_key", "NANOBANANA_API_KEY")
	_ = viper.BindEnv("nanobanana.base_url", "NANOBANANA_BASE_URL")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = viper.BindEnv("dispatch.max_sync_images", "DISPATCH_MAX_SYNC_IMAGES")
	_ = viper.BindEnv("dispatch.max_image_bytes", "DISPATCH_MAX_IMAGE_BYTES")
	_ = viper.BindEnv("stream.poll_interval_seconds", "STREAM_POLL_INTERVAL_SECONDS")
	_ = viper.BindEnv("ratelimit.explanation_per_hour", "RATELIMIT_EXPLANATION_PER_HOUR")
	_ = viper.BindEnv("ratelimit.documents_per_hour", "RATELIMIT_DOCUMENTS_PER_HOUR")
	_ = viper.BindEnv("ratelimit.export_per_hour", "RATELIMIT_EXPORT_PER_HOUR")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	// No postgres default: an unset DATABASE_URL selects the in-process store.
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.explanation_per_hour", 20)
	viper.SetDefault("ratelimit.documents_per_hour", 60)
	viper.SetDefault("ratelimit.export_per_hour", 20)

	// OpenAI defaults
	viper.SetDefault("openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("openai.model", "gpt-4o-mini")
	viper.SetDefault("openai.embedding_model", "text-embedding-3-large")

	// Perplexity defaults
	viper.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	viper.SetDefault("perplexity.model", "sonar")

	// NanoBanana defaults
	viper.SetDefault("nanobanana.base_url", "https://api.nanobanana.ai")

	// Gateway defaults
	viper.SetDefault("gateway.enabled", false)

	// Dispatch defaults: 4 images inline, 6 MiB per decoded image
	viper.SetDefault("dispatch.max_sync_images", 4)
	viper.SetDefault("dispatch.max_image_bytes", 6*1024*1024)

	// Stream defaults
	viper.SetDefault("stream.poll_interval_seconds", 2)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Postgres: PostgresConfig{
			URL: viper.GetString("postgres.url"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			ExplanationPerHour: viper.GetInt("ratelimit.explanation_per_hour"),
			DocumentsPerHour:   viper.GetInt("ratelimit.documents_per_hour"),
			ExportPerHour:      viper.GetInt("ratelimit.export_per_hour"),
		},
		OpenAI: OpenAIConfig{
			APIKey:         viper.GetString("openai.api_key"),
			BaseURL:        viper.GetString("openai.base_url"),
			Model:          viper.GetString("openai.model"),
			EmbeddingModel: viper.GetString("openai.embedding_model"),
		},
		Perplexity: PerplexityConfig{
			APIKey:  viper.GetString("perplexity.api_key"),
			BaseURL: viper.GetString("perplexity.base_url"),
			Model:   viper.GetString("perplexity.model"),
		},
		NanoBanana: NanoBananaConfig{
			APIKey:  viper.GetString("nanobanana.api_key"),
			BaseURL: viper.GetString("nanobanana.base_url"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
		Dispatch: DispatchConfig{
			MaxSyncImages: viper.GetInt("dispatch.max_sync_images"),
			MaxImageBytes: viper.GetInt64("dispatch.max_image_bytes"),
		},
		Stream: StreamConfig{
			PollInterval: time.Duration(viper.GetInt("stream.poll_interval_seconds")) * time.Second,
		},
	}

	return cfg, nil
}
