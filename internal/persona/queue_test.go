package persona

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suPer8Hu/persona-engine/internal/ai"
	"github.com/suPer8Hu/persona-engine/internal/logging"
)

type recordingPublisher struct {
	jobs []string
	err  error
}

func (p *recordingPublisher) PublishJob(ctx context.Context, jobID string) error {
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, jobID)
	return nil
}

func TestQueue_EnqueueAndHandle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{MinMessages: 1})
	uid := f.user(t, "mia")
	f.addMessages(t, uid, 3, "mia")

	pub := &recordingPublisher{}
	q := NewQueue(f.store, f.engine, pub, logging.Discard())

	job, err := q.Enqueue(ctx, uid)
	require.NoError(t, err)
	assert.Len(t, job.ID, 26)
	assert.Equal(t, JobQueued, job.Status)
	assert.Equal(t, []string{job.ID}, pub.jobs)

	require.NoError(t, q.Handle(ctx, job.ID))
	got, err := q.Job(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobSucceeded, got.Status)
	assert.Equal(t, string(OutcomeBuilt), got.Outcome)
	require.NotNil(t, got.PersonaVersion)
	assert.Equal(t, 1, *got.PersonaVersion)
}

func TestQueue_HandleSkippedBuild(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{MinMessages: 5})
	uid := f.user(t, "noah")
	f.addMessages(t, uid, 1, "noah")
	q := NewQueue(f.store, f.engine, &recordingPublisher{}, logging.Discard())

	require.NoError(t, q.RequestBuild(ctx, uid))
	var job BuildJob
	require.NoError(t, f.db.Where("user_id = ?", uid).First(&job).Error)

	require.NoError(t, q.Handle(ctx, job.ID))
	got, err := q.Job(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobSucceeded, got.Status)
	assert.Equal(t, string(OutcomeSkipped), got.Outcome)
	assert.Nil(t, got.PersonaVersion)
}

func TestQueue_HandleFailedBuild(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{MinMessages: 1})
	uid := f.user(t, "olga")
	f.addMessages(t, uid, 2, "olga")
	f.provider.fn = func([]ai.Message) (string, error) { return "", errors.New("upstream gone") }
	q := NewQueue(f.store, f.engine, &recordingPublisher{}, logging.Discard())

	job, err := q.Enqueue(ctx, uid)
	require.NoError(t, err)
	require.NoError(t, q.Handle(ctx, job.ID))

	got, err := q.Job(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "upstream gone")
}

func TestQueue_PublishFailureMarksJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	uid := f.user(t, "pete")
	q := NewQueue(f.store, f.engine, &recordingPublisher{err: errors.New("broker down")}, logging.Discard())

	job, err := q.Enqueue(ctx, uid)
	require.Error(t, err)
	require.NotNil(t, job)

	got, err := q.Job(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, got.Status)
}

type publishFunc func(ctx context.Context, jobID string) error

func (f publishFunc) PublishJob(ctx context.Context, jobID string) error { return f(ctx, jobID) }

func TestQueue_PublishFailureLogsMarkError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	uid := f.user(t, "piper")
	var buf bytes.Buffer
	pub := publishFunc(func(ctx context.Context, jobID string) error {
		// the job row can no longer be updated
		require.NoError(t, f.db.Migrator().DropTable(&BuildJob{}))
		return errors.New("broker down")
	})
	q := NewQueue(f.store, f.engine, pub, logging.New(&buf, "debug", "json"))

	job, err := q.Enqueue(ctx, uid)
	require.EqualError(t, err, "broker down")
	require.NotNil(t, job)
	assert.Equal(t, JobFailed, job.Status)

	out := buf.String()
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, "mark unpublished job failed")
	assert.Contains(t, out, job.ID)
}

func TestQueue_UnknownJob(t *testing.T) {
	f := newFixture(t, Options{})
	q := NewQueue(f.store, f.engine, &recordingPublisher{}, logging.Discard())
	err := q.Handle(context.Background(), "01HZZZZZZZZZZZZZZZZZZZZZZZ")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestQueue_RedeliveredJobKeepsResult(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{MinMessages: 1})
	uid := f.user(t, "quinn")
	f.addMessages(t, uid, 3, "quinn")
	q := NewQueue(f.store, f.engine, &recordingPublisher{}, logging.Discard())

	job, err := q.Enqueue(ctx, uid)
	require.NoError(t, err)
	require.NoError(t, q.Handle(ctx, job.ID))

	// same message delivered again
	require.NoError(t, q.Handle(ctx, job.ID))

	got, err := q.Job(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobSucceeded, got.Status)
	assert.Equal(t, string(OutcomeBuilt), got.Outcome)
	require.NotNil(t, got.PersonaVersion)
	assert.Equal(t, 1, *got.PersonaVersion)
	assert.Equal(t, 1, f.provider.callCount())
	assert.Len(t, f.versions(t, uid), 1)
}

func TestQueue_ResumesJobLeftRunning(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{MinMessages: 1})
	uid := f.user(t, "rosa")
	f.addMessages(t, uid, 2, "rosa")
	q := NewQueue(f.store, f.engine, &recordingPublisher{}, logging.Discard())

	job, err := q.Enqueue(ctx, uid)
	require.NoError(t, err)
	// a worker claimed it and died before finishing
	claimed, err := f.store.UpdateJobStatusRunning(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, q.Handle(ctx, job.ID))
	got, err := q.Job(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobSucceeded, got.Status)
	require.NotNil(t, got.PersonaVersion)
	assert.Equal(t, 1, *got.PersonaVersion)
}

func TestStore_UpdateJobStatusRunningClaimsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	uid := f.user(t, "sam")
	job := &BuildJob{ID: "01J00000000000000000000SAM", UserID: uid, Status: JobQueued}
	require.NoError(t, f.store.CreateJob(ctx, job))

	claimed, err := f.store.UpdateJobStatusRunning(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = f.store.UpdateJobStatusRunning(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, claimed)

	claimed, err = f.store.UpdateJobStatusRunning(ctx, "01J0000000000000000MISSING")
	require.NoError(t, err)
	assert.False(t, claimed)
}
