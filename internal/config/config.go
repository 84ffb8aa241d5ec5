package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Generation GenerationConfig
	Embedding  EmbeddingConfig
	Tracing    TracingConfig
	Client     ClientConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	// NatsURL and RedisURL are optional; empty disables the integration.
	NatsURL  string
	RedisURL string
}

type DatabaseConfig struct {
	VectorStore  string // "pgvector" or "memory"
	Connection   string
	Collection   string
	StoreTimeout time.Duration
}

type GenerationConfig struct {
	Provider       string // "groq", "openai", "huggingface" or "ollama"
	APIKey         string
	Model          string
	BaseURL        string
	OllamaBaseURL  string
	OllamaModel    string
	DisabledFlag   bool
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	LocalDelay     time.Duration
	ChunkSize      int
}

type EmbeddingConfig struct {
	Provider      string // "ollama", "huggingface" or "local"
	OllamaBaseURL string
	OllamaModel   string
	HFAPIKey      string
	HFModel       string
}

type TracingConfig struct {
	Enabled  bool
	Endpoint string
}

type ClientConfig struct {
	BackendURL string
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// Disabled reports whether every generation call should use the local
// fallback: either the flag is set or a hosted provider has no key.
func (g GenerationConfig) Disabled() bool {
	if g.DisabledFlag {
		return true
	}
	return g.Provider != "ollama" && g.APIKey == ""
}

// ActiveModel is the model name for the selected provider.
func (g GenerationConfig) ActiveModel() string {
	if g.Provider == "ollama" {
		return g.OllamaModel
	}
	return g.Model
}

// Load reads .env when present and then the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}
	return FromEnv()
}

func FromEnv() *Config {
	cfg := &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "8000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
		},
		Database: DatabaseConfig{
			VectorStore:  strings.ToLower(getEnv("VECTOR_STORE", "pgvector")),
			Connection:   getEnv("DB_CONNECTION_STRING", ""),
			Collection:   getEnv("REPORTS_COLLECTION", "reports"),
			StoreTimeout: getEnvAsDuration("STORE_TIMEOUT", 30*time.Second),
		},
		Generation: GenerationConfig{
			Provider:       strings.ToLower(getEnv("LLM_PROVIDER", "groq")),
			APIKey:         strings.TrimSpace(getEnv("GROQ_API_KEY", "")),
			Model:          strings.TrimSpace(getEnv("GROQ_MODEL", "llama-3.1-8b-instant")),
			BaseURL:        getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
			OllamaBaseURL:  getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OllamaModel:    getEnv("LLM_MODEL", "llama3"),
			DisabledFlag:   getEnvAsBool("GROQ_DISABLED", false),
			ConnectTimeout: getEnvAsDuration("GENERATION_CONNECT_TIMEOUT", 10*time.Second),
			ReadTimeout:    getEnvAsDuration("GENERATION_READ_TIMEOUT", 120*time.Second),
			LocalDelay:     getEnvAsDuration("LOCAL_STREAM_DELAY", 15*time.Millisecond),
			ChunkSize:      getEnvAsInt("STREAM_CHUNK_SIZE", 20),
		},
		Embedding: EmbeddingConfig{
			Provider:      strings.ToLower(getEnv("EMBEDDING_PROVIDER", "ollama")),
			OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OllamaModel:   getEnv("OLLAMA_EMBEDDING_MODEL", "all-minilm"),
			HFAPIKey:      getEnv("HF_API_KEY", ""),
			HFModel:       getEnv("HF_EMBEDDING_MODEL", "sentence-transformers/all-MiniLM-L6-v2"),
		},
		Tracing: TracingConfig{
			Enabled:  getEnvAsBool("OTEL_ENABLED", false),
			Endpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
		Client: ClientConfig{
			BackendURL: getEnv("BACKEND_URL", "http://localhost:8000"),
		},
	}

	// The Hugging Face router speaks the same chat completions protocol but
	// has its own key, endpoint and model names.
	if cfg.Generation.Provider == "huggingface" {
		if cfg.Generation.APIKey == "" {
			cfg.Generation.APIKey = cfg.Embedding.HFAPIKey
		}
		cfg.Generation.BaseURL = getEnv("HF_BASE_URL", "https://router.huggingface.co/v1")
		cfg.Generation.Model = getEnv("HF_CHAT_MODEL", "meta-llama/Llama-3.1-8B-Instruct")
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsBool accepts 1/true/yes (any case) as true.
func getEnvAsBool(key string, fallback bool) bool {
	strValue, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(strValue)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

// getEnvAsDuration accepts Go durations ("15ms", "2m") or plain seconds.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := strings.TrimSpace(getEnv(key, ""))
	if strValue == "" {
		return fallback
	}
	if d, err := time.ParseDuration(strValue); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(strValue, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}
