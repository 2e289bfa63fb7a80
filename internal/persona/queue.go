package persona

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

var ErrJobNotFound = errors.New("persona: build job not found")

type Publisher interface {
	PublishJob(ctx context.Context, jobID string) error
}

type Builder interface {
	BuildPersonaIsolated(ctx context.Context, userID uint64) (Result, error)
}

// Queue turns build requests into tracked jobs on the broker and runs them on the
// consumer side.
type Queue struct {
	store     *Store
	builder   Builder
	publisher Publisher
	log       *slog.Logger
}

func NewQueue(store *Store, builder Builder, publisher Publisher, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	return &Queue{store: store, builder: builder, publisher: publisher, log: log.With("component", "persona_queue")}
}

func (q *Queue) Enqueue(ctx context.Context, userID uint64) (*BuildJob, error) {
	job := &BuildJob{
		ID:     ulid.Make().String(),
		UserID: userID,
		Status: JobQueued,
	}
	if err := q.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	if err := q.publisher.PublishJob(ctx, job.ID); err != nil {
		msg := "publish: " + err.Error()
		if markErr := q.store.MarkJobFailed(ctx, job.ID, msg); markErr != nil {
			q.log.Warn("mark unpublished job failed", "job_id", job.ID, "user_id", userID, "err", markErr)
		}
		job.Status = JobFailed
		job.Error = &msg
		return job, err
	}
	return job, nil
}

// RequestBuild satisfies chat.BuildRequester.
func (q *Queue) RequestBuild(ctx context.Context, userID uint64) error {
	_, err := q.Enqueue(ctx, userID)
	return err
}

func (q *Queue) Job(ctx context.Context, id string) (*BuildJob, error) {
	j, err := q.store.GetJobByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	return j, err
}

// Handle runs one job. The returned error is for bookkeeping failures only; a
// failed build is recorded on the job and retried by the next sweep.
func (q *Queue) Handle(ctx context.Context, jobID string) error {
	start := time.Now()

	claimed, err := q.store.UpdateJobStatusRunning(ctx, jobID)
	if err != nil {
		return err
	}

	j, err := q.Job(ctx, jobID)
	if err != nil {
		return err
	}
	// a redelivered message for a finished job must not overwrite its result;
	// an unclaimed running job belongs to a worker that died and is resumed
	if !claimed && j.Status != JobRunning {
		q.log.Info("build job already finished, skipping", "job_id", jobID, "status", j.Status)
		return nil
	}

	res, buildErr := q.builder.BuildPersonaIsolated(ctx, j.UserID)
	if buildErr != nil {
		if err := q.store.MarkJobFailed(ctx, jobID, buildErr.Error()); err != nil {
			return err
		}
		q.log.Warn("build job failed", "job_id", jobID, "user_id", j.UserID, "cost", time.Since(start), "err", buildErr)
		return nil
	}

	if err := q.store.MarkJobSucceeded(ctx, jobID, res); err != nil {
		return err
	}
	q.log.Info("build job done", "job_id", jobID, "user_id", j.UserID,
		"outcome", res.Outcome, "version", res.Version, "cost", time.Since(start))
	return nil
}
