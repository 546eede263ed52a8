package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dropcraft/backend/internal/domain/job"
	"github.com/dropcraft/backend/internal/infrastructure/queue"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeJobRepo struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]job.Job
	deleted int64
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[uuid.UUID]job.Job)}
}

func (r *fakeJobRepo) FindByID(_ context.Context, id uuid.UUID) (*job.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, job.ErrJobNotFound
	}
	copied := j
	return &copied, nil
}

func (r *fakeJobRepo) FindByIDForUser(ctx context.Context, userID, id uuid.UUID) (*job.Job, error) {
	j, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if j.UserID != userID {
		return nil, job.ErrJobNotFound
	}
	return j, nil
}

func (r *fakeJobRepo) ListByUser(_ context.Context, userID uuid.UUID, _ job.Filter) ([]job.Job, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []job.Job
	for _, j := range r.jobs {
		if j.UserID == userID {
			out = append(out, j)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeJobRepo) Upsert(_ context.Context, j *job.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[j.ID] = *j
	return nil
}

func (r *fakeJobRepo) IncrementProgress(_ context.Context, id uuid.UUID, processedDelta, failedDelta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.jobs[id]
	j.ProcessedItems += processedDelta
	j.FailedItems += failedDelta
	r.jobs[id] = j
	return nil
}

func (r *fakeJobRepo) SetMetadata(_ context.Context, id uuid.UUID, metadata map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.jobs[id]
	if j.Metadata == nil {
		j.Metadata = make(map[string]any)
	}
	for k, v := range metadata {
		j.Metadata[k] = v
	}
	r.jobs[id] = j
	return nil
}

func (r *fakeJobRepo) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, j := range r.jobs {
		if j.Status.IsTerminal() && j.CompletedAt != nil && j.CompletedAt.Before(cutoff) {
			delete(r.jobs, id)
			r.deleted++
		}
	}
	return r.deleted, nil
}

type fakeItemRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID][]job.Item
}

func newFakeItemRepo() *fakeItemRepo {
	return &fakeItemRepo{items: make(map[uuid.UUID][]job.Item)}
}

func (r *fakeItemRepo) Append(_ context.Context, item *job.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.JobID] = append(r.items[item.JobID], *item)
	return nil
}

func (r *fakeItemRepo) ListByJob(_ context.Context, jobID uuid.UUID) ([]job.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[jobID], nil
}

func (r *fakeItemRepo) ListFailedByJob(_ context.Context, jobID uuid.UUID) ([]job.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var failed []job.Item
	for _, item := range r.items[jobID] {
		if item.Status.IsFailure() {
			failed = append(failed, item)
		}
	}
	return failed, nil
}

var (
	_ job.Repository     = (*fakeJobRepo)(nil)
	_ job.ItemRepository = (*fakeItemRepo)(nil)
)

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type serviceFixture struct {
	svc    *Service
	broker *queue.InMemoryBroker
	jobs   *fakeJobRepo
	items  *fakeItemRepo
	userID uuid.UUID
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	broker := queue.NewInMemoryBroker(time.Minute)
	t.Cleanup(func() { _ = broker.Close() })
	jobs := newFakeJobRepo()
	items := newFakeItemRepo()
	return &serviceFixture{
		svc:    NewService(broker, jobs, items, zap.NewNop()),
		broker: broker,
		jobs:   jobs,
		items:  items,
		userID: uuid.New(),
	}
}

func (f *serviceFixture) dequeue(t *testing.T) *queue.Task {
	t.Helper()
	task, err := f.broker.Dequeue(context.Background(), 0)
	require.NoError(t, err)
	return task
}

func (f *serviceFixture) seedJob(t *testing.T, mutate func(j *job.Job)) *job.Job {
	t.Helper()
	j, err := job.New(uuid.New(), f.userID, job.TypeSync, "stores", map[string]any{"strategy": "manual"})
	require.NoError(t, err)
	if mutate != nil {
		mutate(j)
	}
	require.NoError(t, f.jobs.Upsert(context.Background(), j))
	return j
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestServiceEnqueue(t *testing.T) {
	f := newServiceFixture(t)

	j, err := f.svc.Enqueue(context.Background(), f.userID, "sync:stores", map[string]any{"strategy": "local_wins"})
	require.NoError(t, err)

	assert.Equal(t, job.StatusPending, j.Status)
	assert.Equal(t, job.TypeSync, j.Type)
	assert.Equal(t, "stores", j.Subtype)

	// The ledger row exists before the task is visible to a worker.
	stored, err := f.jobs.FindByID(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, stored.Status)

	task := f.dequeue(t)
	assert.Equal(t, j.ID, task.ID, "task id and job id must be the same value")
	assert.Equal(t, f.userID, task.UserID)
	assert.Equal(t, "sync:stores", task.Name)
	assert.Equal(t, "local_wins", task.Args["strategy"])
}

func TestServiceEnqueueEmptyName(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Enqueue(context.Background(), f.userID, "", nil)
	assert.ErrorIs(t, err, queue.ErrEmptyTaskName)
}

func TestServiceGetScopesToOwner(t *testing.T) {
	f := newServiceFixture(t)
	j := f.seedJob(t, nil)

	found, err := f.svc.Get(context.Background(), f.userID, j.ID)
	require.NoError(t, err)
	assert.Equal(t, j.ID, found.ID)

	_, err = f.svc.Get(context.Background(), uuid.New(), j.ID)
	assert.ErrorIs(t, err, job.ErrJobNotFound)
}

func TestServiceCancel(t *testing.T) {
	f := newServiceFixture(t)
	j := f.seedJob(t, nil)

	cancelled, err := f.svc.Cancel(context.Background(), f.userID, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCancelled, cancelled.Status)

	stored, err := f.jobs.FindByID(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCancelled, stored.Status)
}

func TestServiceCancelTerminal(t *testing.T) {
	f := newServiceFixture(t)
	j := f.seedJob(t, func(j *job.Job) {
		require.NoError(t, j.Start(1))
		require.NoError(t, j.Complete(nil))
	})

	_, err := f.svc.Cancel(context.Background(), f.userID, j.ID)
	assert.ErrorIs(t, err, job.ErrInvalidState)
}

func TestServiceRetry(t *testing.T) {
	f := newServiceFixture(t)
	j := f.seedJob(t, func(j *job.Job) {
		require.NoError(t, j.Start(3))
		require.NoError(t, j.Fail("platform unavailable"))
	})

	retry, err := f.svc.Retry(context.Background(), f.userID, j.ID)
	require.NoError(t, err)

	assert.NotEqual(t, j.ID, retry.ID)
	require.NotNil(t, retry.RetryOf)
	assert.Equal(t, j.ID, *retry.RetryOf)
	assert.Equal(t, j.InputData, retry.InputData)

	task := f.dequeue(t)
	assert.Equal(t, retry.ID, task.ID)
	assert.Equal(t, "sync:stores", task.Name)
}

func TestServiceRetryRunningJob(t *testing.T) {
	f := newServiceFixture(t)
	j := f.seedJob(t, func(j *job.Job) {
		require.NoError(t, j.Start(3))
	})

	_, err := f.svc.Retry(context.Background(), f.userID, j.ID)
	assert.ErrorIs(t, err, job.ErrNotRetryable)
}

func TestServiceResume(t *testing.T) {
	f := newServiceFixture(t)
	j := f.seedJob(t, func(j *job.Job) {
		require.NoError(t, j.Start(3))
		require.NoError(t, j.RecordProgress(3, 2))
		require.NoError(t, j.Complete(nil))
	})

	okItem, err := job.NewItem(j.ID, job.ItemStatusSuccess, "")
	require.NoError(t, err)
	require.NoError(t, f.items.Append(context.Background(), okItem))

	failedProducts := []uuid.UUID{uuid.New(), uuid.New()}
	for _, pid := range failedProducts {
		item, err := job.NewItem(j.ID, job.ItemStatusFailed, "push rejected")
		require.NoError(t, err)
		require.NoError(t, f.items.Append(context.Background(), item.WithProduct(pid)))
	}

	resume, err := f.svc.Resume(context.Background(), f.userID, j.ID)
	require.NoError(t, err)

	require.NotNil(t, resume.ResumedFrom)
	assert.Equal(t, j.ID, *resume.ResumedFrom)
	assert.Equal(t, 2, resume.Metadata["items_to_retry"])

	task := f.dequeue(t)
	assert.Equal(t, resume.ID, task.ID)
	ids, ok := task.Args["product_ids"].([]string)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{failedProducts[0].String(), failedProducts[1].String()}, ids)
}

func TestServiceResumeNothingFailed(t *testing.T) {
	f := newServiceFixture(t)
	j := f.seedJob(t, func(j *job.Job) {
		require.NoError(t, j.Start(1))
		require.NoError(t, j.Complete(nil))
	})

	_, err := f.svc.Resume(context.Background(), f.userID, j.ID)
	assert.ErrorIs(t, err, job.ErrNothingToResume)
}

func TestTaskNameRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		taskName string
		jobType  job.JobType
		subtype  string
	}{
		{name: "sync", taskName: "sync:stores", jobType: job.TypeSync, subtype: "stores"},
		{name: "import", taskName: "import:csv", jobType: job.TypeImport, subtype: "csv"},
		{name: "ai", taskName: "ai:bulk_enrichment", jobType: job.TypeAI, subtype: "bulk_enrichment"},
		{name: "maintenance", taskName: "jobs:cleanup", jobType: job.TypeMaintenance, subtype: "cleanup"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture(t)
			j, err := f.svc.Enqueue(context.Background(), f.userID, tt.taskName, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.jobType, j.Type)
			assert.Equal(t, tt.subtype, j.Subtype)
			assert.Equal(t, tt.taskName, taskNameOf(j))
		})
	}
}
