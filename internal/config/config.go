package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultCallTimeout = 2 * time.Minute

type Config struct {
	DBDriver  string
	DBDSN     string
	JWTSecret string
	HTTPAddr  string

	// empty disables the lease and the persona cache
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LogLevel  string
	LogFormat string

	ChatContextWindowSize int

	// AI provider
	AIProvider        string
	OllamaBaseURL     string
	OllamaModel       string
	OpenRouterBaseURL string
	OpenRouterAPIKey  string
	OpenRouterModel   string
	OpenRouterSiteURL string
	OpenRouterAppName string
	OpenAIBaseURL     string
	OpenAIAPIKey      string
	OpenAIModel       string

	// rabbitMQ, empty URL disables on-demand builds
	RabbitURL   string
	RabbitQueue string
	BuildOnChat bool

	// persona engine
	PersonaInterval    time.Duration
	PersonaBatchSize   int
	PersonaMinMessages int
	PersonaWorkers     int
	PersonaCallTimeout time.Duration
	PersonaLocker      string
	PersonaLeaseTTL    time.Duration
	PersonaCacheTTL    time.Duration
	WorkerConcurrency  int
}

func Load() Config {
	// DSN demo：
	// app:apppass@tcp(127.0.0.1:3306)/persona?charset=utf8mb4&parseTime=true&loc=Local
	driver := strings.ToLower(getEnv("DB_DRIVER", "mysql"))
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		if driver == "sqlite" {
			dsn = "persona.db"
		} else {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=Local",
				"app", "apppass", "127.0.0.1", "3306", "persona",
			)
		}
	}

	return Config{
		DBDriver:  driver,
		DBDSN:     dsn,
		JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-me"),
		HTTPAddr:  getEnv("HTTP_ADDR", ":8080"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		ChatContextWindowSize: getEnvInt("CHAT_CONTEXT_WINDOW_SIZE", 50),

		AIProvider:        strings.ToLower(getEnv("AI_PROVIDER", "openrouter")),
		OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:       getEnv("OLLAMA_MODEL", "llama3:latest"),
		OpenRouterBaseURL: getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterAPIKey:  os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterModel:   getEnv("OPENROUTER_MODEL", "deepseek/deepseek-chat"),
		OpenRouterSiteURL: os.Getenv("OPENROUTER_SITE_URL"),
		OpenRouterAppName: getEnv("OPENROUTER_APP_NAME", "AI Companion"),
		OpenAIBaseURL:     os.Getenv("OPENAI_BASE_URL"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		RabbitURL:   os.Getenv("RABBIT_URL"),
		RabbitQueue: getEnv("RABBIT_QUEUE", "persona_builds"),

		BuildOnChat: getEnvBool("PERSONA_BUILD_ON_CHAT", false),

		PersonaInterval:    getEnvDuration("PERSONA_INTERVAL", 6*time.Hour),
		PersonaBatchSize:   getEnvInt("PERSONA_BATCH_SIZE", 100),
		PersonaMinMessages: getEnvInt("PERSONA_MIN_MESSAGES", 5),
		PersonaWorkers:     getEnvInt("PERSONA_WORKERS", 1),
		PersonaCallTimeout: getEnvDuration("PERSONA_CALL_TIMEOUT", defaultCallTimeout),
		PersonaLocker:      strings.ToLower(getEnv("PERSONA_LOCKER", "local")),
		PersonaLeaseTTL:    getEnvDuration("PERSONA_LEASE_TTL", 10*time.Minute),
		PersonaCacheTTL:    getEnvDuration("PERSONA_CACHE_TTL", time.Hour),
		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 2),
	}
}

func (c Config) Validate() error {
	switch c.DBDriver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be mysql or sqlite, got %q", c.DBDriver)
	}
	if c.PersonaInterval <= 0 {
		return fmt.Errorf("PERSONA_INTERVAL must be positive, got %s", c.PersonaInterval)
	}
	if c.PersonaBatchSize <= 0 {
		return fmt.Errorf("PERSONA_BATCH_SIZE must be positive, got %d", c.PersonaBatchSize)
	}
	if c.PersonaMinMessages <= 0 || c.PersonaMinMessages > c.PersonaBatchSize {
		return fmt.Errorf("PERSONA_MIN_MESSAGES must be 1-%d, got %d", c.PersonaBatchSize, c.PersonaMinMessages)
	}
	if c.PersonaWorkers <= 0 || c.PersonaWorkers > 50 {
		return fmt.Errorf("PERSONA_WORKERS must be 1-50, got %d", c.PersonaWorkers)
	}
	if c.WorkerConcurrency <= 0 || c.WorkerConcurrency > 50 {
		return fmt.Errorf("WORKER_CONCURRENCY must be 1-50, got %d", c.WorkerConcurrency)
	}
	switch c.PersonaLocker {
	case "local", "redis":
	default:
		return fmt.Errorf("PERSONA_LOCKER must be local or redis, got %q", c.PersonaLocker)
	}
	if c.BuildOnChat && c.RabbitURL == "" {
		return fmt.Errorf("PERSONA_BUILD_ON_CHAT requires RABBIT_URL")
	}
	if c.PersonaLocker == "redis" {
		if c.RedisAddr == "" {
			return fmt.Errorf("PERSONA_LOCKER=redis requires REDIS_ADDR")
		}
		if c.PersonaLeaseTTL <= 0 {
			return fmt.Errorf("PERSONA_LEASE_TTL must be positive, got %s", c.PersonaLeaseTTL)
		}
		// a lease that can expire mid-call lets a second worker build the same user
		callTimeout := c.PersonaCallTimeout
		if callTimeout <= 0 {
			callTimeout = defaultCallTimeout
		}
		if c.PersonaLeaseTTL <= callTimeout {
			return fmt.Errorf("PERSONA_LEASE_TTL (%s) must exceed PERSONA_CALL_TIMEOUT (%s)", c.PersonaLeaseTTL, callTimeout)
		}
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}
