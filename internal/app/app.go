package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/suPer8Hu/persona-engine/internal/ai"
	"github.com/suPer8Hu/persona-engine/internal/chat"
	"github.com/suPer8Hu/persona-engine/internal/config"
	"github.com/suPer8Hu/persona-engine/internal/db"
	"github.com/suPer8Hu/persona-engine/internal/persona"
	"github.com/suPer8Hu/persona-engine/internal/store/redisstore"
)

// App owns the process-wide handles. Close releases them in reverse order.
type App struct {
	Cfg      config.Config
	Log      *slog.Logger
	DB       *gorm.DB
	Redis    *redisstore.Store
	Repo     *chat.Repo
	Personas *persona.Store
	Provider ai.Provider
	Engine   *persona.Engine
	Chat     *chat.Service

	closers []func() error
}

// NewRegistry registers every provider the config can select.
func NewRegistry(cfg config.Config) *ai.Registry {
	reg := ai.NewRegistry()

	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, m), nil
	})

	reg.Register("openrouter", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		if strings.TrimSpace(cfg.OpenRouterAPIKey) == "" {
			return nil, errors.New("OPENROUTER_API_KEY is required")
		}
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OpenRouterModel
		}
		return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, m, cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
	})

	reg.Register("openai", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OpenAIModel
		}
		return ai.NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, m)
	})

	return reg
}

// ModelName is the model the configured provider will be asked for.
func ModelName(cfg config.Config) string {
	switch cfg.AIProvider {
	case "ollama":
		return cfg.OllamaModel
	case "openai":
		return cfg.OpenAIModel
	default:
		return cfg.OpenRouterModel
	}
}

func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{Cfg: cfg, Log: log}

	gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	a.DB = gdb
	a.closers = append(a.closers, func() error { return db.Close(gdb) })

	if cfg.RedisAddr != "" {
		rdb := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		a.closers = append(a.closers, rdb.Close)
		a.Redis = redisstore.NewStore(rdb, cfg.PersonaLeaseTTL, cfg.PersonaCacheTTL)
		if err := a.Redis.Ping(ctx); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}

	provider, err := NewRegistry(cfg).Get(ctx, cfg.AIProvider, "")
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Provider = provider

	a.Repo = chat.NewRepo(gdb)
	a.Personas = persona.NewStore(gdb)
	a.Engine = persona.NewEngine(a.Repo, a.Personas, provider, persona.Options{
		BatchSize:   cfg.PersonaBatchSize,
		MinMessages: cfg.PersonaMinMessages,
		Workers:     cfg.PersonaWorkers,
		CallTimeout: cfg.PersonaCallTimeout,
		Model:       ModelName(cfg),
	}, log)

	var reader chat.PersonaReader = a.Personas
	if a.Redis != nil {
		a.Engine.WithCache(a.Redis)
		reader = persona.NewCachedReader(a.Personas, a.Redis, log)
	}
	if cfg.PersonaLocker == "redis" {
		a.Engine.WithLocker(a.Redis)
	}

	a.Chat = chat.NewService(a.Repo, provider, reader, cfg.ChatContextWindowSize, log)
	return a, nil
}

// AddCloser registers a handle created after New (e.g. a broker connection).
func (a *App) AddCloser(f func() error) {
	a.closers = append(a.closers, f)
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && !errors.Is(err, redis.ErrClosed) {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
