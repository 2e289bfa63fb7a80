package persona

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/suPer8Hu/persona-engine/internal/ai"
	"github.com/suPer8Hu/persona-engine/internal/chat"
)

const (
	DefaultBatchSize   = 100
	DefaultMinMessages = 5
	DefaultWorkers     = 1
	DefaultCallTimeout = 2 * time.Minute
)

var (
	// ErrStore marks a failure reading or writing messages, personas or locks.
	ErrStore = errors.New("persona: store unavailable")
	// ErrProvider marks a failed, timed out or unusable completion.
	ErrProvider = errors.New("persona: completion failed")
	// ErrEmptyCompletion is wrapped under ErrProvider when the reply has no text.
	ErrEmptyCompletion = ai.ErrEmptyCompletion
	// ErrWatermarkRegression is returned instead of writing a version that would move the watermark backwards.
	ErrWatermarkRegression = errors.New("persona: watermark regression")
)

type MessageSource interface {
	ListMessagesAfter(ctx context.Context, userID, afterID uint64, limit int) ([]chat.Message, error)
	ListUserIDs(ctx context.Context) ([]uint64, error)
}

type PersonaStore interface {
	Latest(ctx context.Context, userID uint64) (*Persona, error)
	Append(ctx context.Context, p *Persona) error
}

type CacheInvalidator interface {
	InvalidatePersona(ctx context.Context, userID uint64) error
}

type Options struct {
	BatchSize   int
	MinMessages int
	Workers     int
	CallTimeout time.Duration
	Model       string
}

type Outcome string

const (
	OutcomeBuilt   Outcome = "built"
	OutcomeSkipped Outcome = "skipped"
	OutcomeBusy    Outcome = "busy"
)

type Result struct {
	UserID    uint64  `json:"user_id"`
	Outcome   Outcome `json:"outcome"`
	Version   int     `json:"version,omitempty"`
	Watermark uint64  `json:"watermark"`
	Processed int     `json:"processed"`
}

type SweepReport struct {
	RunID     string        `json:"run_id"`
	Users     int           `json:"users"`
	Built     int           `json:"built"`
	Skipped   int           `json:"skipped"`
	Busy      int           `json:"busy"`
	Failed    int           `json:"failed"`
	Cancelled int           `json:"cancelled"`
	Duration  time.Duration `json:"duration"`
}

type Engine struct {
	messages MessageSource
	store    PersonaStore
	provider ai.Provider
	locker   Locker
	cache    CacheInvalidator
	opts     Options
	log      *slog.Logger
}

func NewEngine(messages MessageSource, store PersonaStore, provider ai.Provider, opts Options, log *slog.Logger) *Engine {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MinMessages <= 0 {
		opts.MinMessages = DefaultMinMessages
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		messages: messages,
		store:    store,
		provider: provider,
		locker:   NewLocalLocker(),
		opts:     opts,
		log:      log.With("component", "persona"),
	}
}

// WithLocker replaces the in-process locker, e.g. with a shared lease for multi-instance deployments.
func (e *Engine) WithLocker(l Locker) *Engine {
	e.locker = l
	return e
}

func (e *Engine) WithCache(c CacheInvalidator) *Engine {
	e.cache = c
	return e
}

func (e *Engine) Options() Options { return e.opts }

func (e *Engine) GetLatestPersona(ctx context.Context, userID uint64) (*Persona, error) {
	return e.store.Latest(ctx, userID)
}

// GetUnprocessedMessages returns the oldest BatchSize messages with id > watermark.
func (e *Engine) GetUnprocessedMessages(ctx context.Context, userID, watermark uint64) ([]chat.Message, error) {
	return e.messages.ListMessagesAfter(ctx, userID, watermark, e.opts.BatchSize)
}

// BuildPersona folds the user's next unprocessed batch into a new persona
// version. Nothing is written unless the whole cycle succeeds, so a failed
// cycle is retried from the same watermark next time.
func (e *Engine) BuildPersona(ctx context.Context, userID uint64) (Result, error) {
	res := Result{UserID: userID}

	unlock, ok, err := e.locker.TryLock(ctx, userID)
	if err != nil {
		return res, fmt.Errorf("%w: lock user %d: %w", ErrStore, userID, err)
	}
	if !ok {
		res.Outcome = OutcomeBusy
		e.log.Info("persona build already running, skipping", "user_id", userID)
		return res, nil
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()

	latest, err := e.GetLatestPersona(ctx, userID)
	if err != nil {
		return res, fmt.Errorf("%w: latest persona: %w", ErrStore, err)
	}

	var watermark uint64
	version := 1
	previous := NoPreviousPersona
	if latest != nil {
		watermark = latest.LastProcessedMessageID
		version = latest.Version + 1
		previous = latest.PersonaText
	}
	res.Watermark = watermark

	batch, err := e.GetUnprocessedMessages(ctx, userID, watermark)
	if err != nil {
		return res, fmt.Errorf("%w: unprocessed messages: %w", ErrStore, err)
	}
	res.Processed = len(batch)

	if len(batch) < e.opts.MinMessages {
		res.Outcome = OutcomeSkipped
		e.log.Info("not enough messages to process, skipping",
			"user_id", userID, "pending", len(batch), "min", e.opts.MinMessages)
		return res, nil
	}

	reply, err := e.provider.Chat(ctx, BuildPrompt(previous, batch))
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrProvider, err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return res, fmt.Errorf("%w: %w", ErrProvider, ErrEmptyCompletion)
	}

	// cancelled while waiting on the provider: drop the reply, write nothing
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("persona: user %d cancelled before persist: %w", userID, err)
	}

	next := batch[len(batch)-1].ID
	if next <= watermark {
		return res, fmt.Errorf("%w: user %d batch ends at %d, watermark is %d", ErrWatermarkRegression, userID, next, watermark)
	}

	p := &Persona{
		UserID:                 userID,
		Version:                version,
		PersonaText:            reply,
		LastProcessedMessageID: next,
		MessagesProcessed:      len(batch),
		Model:                  e.opts.Model,
	}
	if tags := ParseTags(reply); tags != nil {
		p.Tags = tagsJSON(tags)
	}
	if err := e.store.Append(ctx, p); err != nil {
		return res, fmt.Errorf("%w: append persona: %w", ErrStore, err)
	}

	if e.cache != nil {
		if err := e.cache.InvalidatePersona(ctx, userID); err != nil {
			e.log.Warn("persona cache invalidation failed", "user_id", userID, "err", err)
		}
	}

	res.Outcome = OutcomeBuilt
	res.Version = version
	res.Watermark = next
	e.log.Info("persona built",
		"user_id", userID, "version", version, "watermark", next, "messages", len(batch))
	return res, nil
}

// BuildPersonaIsolated runs BuildPersona and turns a panic into an error so one
// user can never take down a sweep or a queue worker.
func (e *Engine) BuildPersonaIsolated(ctx context.Context, userID uint64) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{UserID: userID}
			err = fmt.Errorf("persona: panic building user %d: %v", userID, r)
		}
	}()
	return e.BuildPersona(ctx, userID)
}

// RunPersonaUpdate builds every known user. Per-user failures are logged and
// counted, never returned; the error is only for failing to list users.
func (e *Engine) RunPersonaUpdate(ctx context.Context) (SweepReport, error) {
	start := time.Now()
	report := SweepReport{RunID: ulid.Make().String()}
	log := e.log.With("run_id", report.RunID)

	ids, err := e.messages.ListUserIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("%w: list users: %w", ErrStore, err)
	}
	report.Users = len(ids)
	log.Info("persona sweep started", "users", len(ids), "workers", e.opts.Workers)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(e.opts.Workers)

	for i, userID := range ids {
		if ctx.Err() != nil {
			report.Cancelled += len(ids) - i
			break
		}
		g.Go(func() error {
			log.Debug("running persona update", "user_id", userID)
			res, err := e.BuildPersonaIsolated(ctx, userID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil && errors.Is(err, context.Canceled):
				report.Cancelled++
				log.Warn("persona update cancelled", "user_id", userID)
			case err != nil:
				report.Failed++
				log.Error("persona update failed", "user_id", userID, "err", err)
			case res.Outcome == OutcomeBuilt:
				report.Built++
			case res.Outcome == OutcomeBusy:
				report.Busy++
			default:
				report.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(start)
	log.Info("persona sweep finished",
		"users", report.Users, "built", report.Built, "skipped", report.Skipped,
		"busy", report.Busy, "failed", report.Failed, "cancelled", report.Cancelled,
		"cost", report.Duration)
	return report, nil
}
