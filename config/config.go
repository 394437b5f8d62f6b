package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Server      ServerConfig      `json:"server"`
	Database    DatabaseConfig    `json:"database"`
	VectorStore VectorStoreConfig `json:"vector_store"`
	Redis       RedisConfig       `json:"redis"`
	Auth        AuthConfig        `json:"auth"`
	Providers   ProvidersConfig   `json:"providers"`
	Pipeline    PipelineConfig    `json:"pipeline"`
}

type ServerConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	ReadTimeout    int      `json:"read_timeout"`
	WriteTimeout   int      `json:"write_timeout"`
	IdleTimeout    int      `json:"idle_timeout"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type DatabaseConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Password     string `json:"password"`
	Name         string `json:"name"`
	SSLMode      string `json:"ssl_mode"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
	MaxLifetime  int    `json:"max_lifetime"`
}

// VectorStoreConfig selects the vector index backend. An empty DSN runs the
// in-process index, which does not survive restarts; production deployments
// point it at a pgvector-enabled Postgres.
type VectorStoreConfig struct {
	DSN string `json:"dsn"`
}

// RedisConfig holds the embedding cache connection. TTL of 0 disables the
// cache even when Redis is reachable.
type RedisConfig struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Password      string `json:"password"`
	DB            int    `json:"db"`
	EmbedCacheTTL int    `json:"embed_cache_ttl"` // seconds
}

type AuthConfig struct {
	JWTSecret     string `json:"jwt_secret"`
	JWTExpiration int    `json:"jwt_expiration"` // seconds
}

// ProviderConfig holds one upstream LLM provider's credentials. BaseURL is
// only meaningful for OpenAI-compatible providers.
type ProviderConfig struct {
	APIKey  string  `json:"api_key"`
	BaseURL string  `json:"base_url"`
	RPS     float64 `json:"rps"`
}

type ProvidersConfig struct {
	OpenAI      ProviderConfig `json:"openai"`
	Anthropic   ProviderConfig `json:"anthropic"`
	Mistral     ProviderConfig `json:"mistral"`
	Together    ProviderConfig `json:"together"`
	HuggingFace ProviderConfig `json:"huggingface"`
}

// PipelineConfig holds ingestion and evaluation execution knobs.
type PipelineConfig struct {
	UploadRoot       string `json:"upload_root"`
	WorkerPoolSize   int    `json:"worker_pool_size"`
	EmbedTimeout     int    `json:"embed_timeout"`    // seconds
	GenerateTimeout  int    `json:"generate_timeout"` // seconds
	JudgeTimeout     int    `json:"judge_timeout"`    // seconds
	PricingTablePath string `json:"pricing_table_path"`
}

func LoadConfig() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:    getEnvAsInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout:   getEnvAsInt("SERVER_WRITE_TIMEOUT", 30),
			IdleTimeout:    getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
			AllowedOrigins: getEnvAsSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "ragbench"),
			Password:     getEnv("DB_PASSWORD", ""),
			Name:         getEnv("DB_NAME", "ragbench"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
		},
		VectorStore: VectorStoreConfig{
			DSN: getEnv("VECTOR_STORE_DSN", ""),
		},
		Redis: RedisConfig{
			Host:          getEnv("REDIS_HOST", "localhost"),
			Port:          getEnvAsInt("REDIS_PORT", 6379),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvAsInt("REDIS_DB", 0),
			EmbedCacheTTL: getEnvAsInt("REDIS_EMBED_CACHE_TTL", 86400),
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			JWTExpiration: getEnvAsInt("JWT_EXPIRATION", 3600),
		},
		Providers: ProvidersConfig{
			OpenAI: ProviderConfig{
				APIKey:  getEnv("OPENAI_API_KEY", ""),
				BaseURL: getEnv("OPENAI_BASE_URL", ""),
				RPS:     getEnvAsFloat("OPENAI_RPS", 5),
			},
			Anthropic: ProviderConfig{
				APIKey: getEnv("ANTHROPIC_API_KEY", ""),
				RPS:    getEnvAsFloat("ANTHROPIC_RPS", 5),
			},
			Mistral: ProviderConfig{
				APIKey:  getEnv("MISTRAL_API_KEY", ""),
				BaseURL: getEnv("MISTRAL_BASE_URL", "https://api.mistral.ai/v1"),
				RPS:     getEnvAsFloat("MISTRAL_RPS", 5),
			},
			Together: ProviderConfig{
				APIKey:  getEnv("TOGETHER_API_KEY", ""),
				BaseURL: getEnv("TOGETHER_BASE_URL", "https://api.together.xyz/v1"),
				RPS:     getEnvAsFloat("TOGETHER_RPS", 5),
			},
			HuggingFace: ProviderConfig{
				APIKey:  getEnv("HUGGINGFACE_API_KEY", ""),
				BaseURL: getEnv("HUGGINGFACE_BASE_URL", "https://router.huggingface.co/v1"),
				RPS:     getEnvAsFloat("HUGGINGFACE_RPS", 5),
			},
		},
		Pipeline: PipelineConfig{
			UploadRoot:       getEnv("UPLOAD_ROOT", "./uploads"),
			WorkerPoolSize:   getEnvAsInt("EVAL_WORKER_POOL_SIZE", 8),
			EmbedTimeout:     getEnvAsInt("EMBED_TIMEOUT", 60),
			GenerateTimeout:  getEnvAsInt("GENERATE_TIMEOUT", 120),
			JudgeTimeout:     getEnvAsInt("JUDGE_TIMEOUT", 60),
			PricingTablePath: getEnv("PRICING_TABLE_PATH", ""),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) GetRedisAddress() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func validateConfig(config *Config) error {
	if config.Database.Password == "" {
		return fmt.Errorf("database password is required (DB_PASSWORD)")
	}

	if config.Auth.JWTSecret == "your-secret-key-change-in-production" {
		return fmt.Errorf("JWT secret must be changed from default value (JWT_SECRET)")
	}

	if config.Pipeline.WorkerPoolSize < 1 {
		return fmt.Errorf("worker pool size must be positive (EVAL_WORKER_POOL_SIZE)")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
