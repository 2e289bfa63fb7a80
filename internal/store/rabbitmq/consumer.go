package rabbitmq

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// JobHandler runs one job. A returned error dead-letters the delivery.
type JobHandler func(ctx context.Context, jobID string) error

// Acknowledger is the part of amqp.Delivery the pool needs.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

type Consumer struct {
	conn        *amqp.Connection
	ch          *amqp.Channel
	queue       string
	concurrency int
	log         *slog.Logger
}

func NewConsumer(url, queue string, concurrency int, log *slog.Logger) (*Consumer, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := DeclareTopology(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	// strict concurrency control
	if err := ch.Qos(concurrency, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Consumer{conn: conn, ch: ch, queue: queue, concurrency: concurrency, log: log}, nil
}

func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Run consumes until ctx is done or the broker closes the delivery channel.
func (c *Consumer) Run(ctx context.Context, handle JobHandler) error {
	msgs, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	c.log.Info("consumer started", "queue", c.queue, "concurrency", c.concurrency)

	deliveries := make(chan delivery, c.concurrency*2)
	go func() {
		defer close(deliveries)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}
				deliveries <- delivery{body: d.Body, ack: d}
			}
		}
	}()

	serve(ctx, deliveries, c.concurrency, handle, c.log)
	if ctx.Err() != nil {
		return nil
	}
	return errors.New("rabbitmq: delivery channel closed")
}

type delivery struct {
	body []byte
	ack  Acknowledger
}

// serve runs a fixed pool of workers over in until it is closed.
func serve(ctx context.Context, in <-chan delivery, concurrency int, handle JobHandler, log *slog.Logger) {
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range in {
				process(ctx, workerID, d, handle, log)
			}
		}(i)
	}
	wg.Wait()
}

func process(ctx context.Context, workerID int, d delivery, handle JobHandler, log *slog.Logger) {
	jobID, ok := decodeJob(d.body)
	if !ok {
		log.Warn("bad message", "worker", workerID, "body", string(d.body))
		_ = d.ack.Nack(false, false)
		return
	}

	start := time.Now()
	if err := handle(ctx, jobID); err != nil {
		log.Error("job failed", "worker", workerID, "job_id", jobID, "cost", time.Since(start), "err", err)
		_ = d.ack.Nack(false, false)
		return
	}
	if err := d.ack.Ack(false); err != nil {
		log.Warn("ack failed", "worker", workerID, "job_id", jobID, "err", err)
	}
}
