package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/suPer8Hu/persona-engine/internal/app"
	"github.com/suPer8Hu/persona-engine/internal/config"
	"github.com/suPer8Hu/persona-engine/internal/db"
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

	var wg sync.WaitGroup

	sched := persona.NewScheduler(a.Engine, cfg.PersonaInterval, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = sched.Run(ctx)
	}()

	if cfg.RabbitURL != "" {
		consumer, err := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitQueue, cfg.WorkerConcurrency, logger)
		if err != nil {
			log.Fatalf("rabbit consumer: %v", err)
		}
		a.AddCloser(consumer.Close)

		// consumer side never publishes
		queue := persona.NewQueue(a.Personas, a.Engine, nil, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx, queue.Handle); err != nil {
				logger.Error("consumer stopped", "err", err)
				stop()
			}
		}()
	} else {
		logger.Info("RABBIT_URL not set, on-demand builds disabled")
	}

	logger.Info("worker started",
		"interval", cfg.PersonaInterval, "batch_size", cfg.PersonaBatchSize,
		"min_messages", cfg.PersonaMinMessages, "locker", cfg.PersonaLocker)
	<-ctx.Done()
	logger.Info("worker shutting down")
	wg.Wait()
}
