package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/suPer8Hu/persona-engine/internal/app"
	"github.com/suPer8Hu/persona-engine/internal/config"
	"github.com/suPer8Hu/persona-engine/internal/db"
	"github.com/suPer8Hu/persona-engine/internal/httpapi"
	"github.com/suPer8Hu/persona-engine/internal/httpapi/handlers"
	"github.com/suPer8Hu/persona-engine/internal/logging"
	"github.com/suPer8Hu/persona-engine/internal/persona"
	"github.com/suPer8Hu/persona-engine/internal/store/rabbitmq"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer a.Close()

	if err := db.Migrate(a.DB); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	var queue *persona.Queue
	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Fatalf("rabbit publisher: %v", err)
		}
		a.AddCloser(pub.Close)
		queue = persona.NewQueue(a.Personas, a.Engine, pub, logger)
		if cfg.BuildOnChat {
			a.Chat.WithBuildRequests(queue)
		}
	}

	h := handlers.NewHandler(a.Chat, a.Engine, a.Personas, queue)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(h, cfg.JWTSecret, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("api listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "err", err)
	}
}
