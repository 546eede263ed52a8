package job

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJob(t *testing.T) *Job {
	t.Helper()
	j, err := New(uuid.New(), uuid.New(), TypeSync, "stores", map[string]any{"store_ids": []string{"a"}})
	require.NoError(t, err)
	return j
}

func TestNew(t *testing.T) {
	t.Run("creates pending job", func(t *testing.T) {
		id := uuid.New()
		userID := uuid.New()
		j, err := New(id, userID, TypeImport, "csv", nil)
		require.NoError(t, err)
		assert.Equal(t, id, j.ID)
		assert.Equal(t, userID, j.UserID)
		assert.Equal(t, StatusPending, j.Status)
		assert.NotNil(t, j.Metadata)
		assert.Nil(t, j.StartedAt)
	})

	t.Run("rejects nil IDs", func(t *testing.T) {
		_, err := New(uuid.Nil, uuid.New(), TypeImport, "csv", nil)
		assert.Error(t, err)

		_, err = New(uuid.New(), uuid.Nil, TypeImport, "csv", nil)
		assert.ErrorIs(t, err, ErrInvalidUserID)
	})

	t.Run("rejects unknown job type", func(t *testing.T) {
		_, err := New(uuid.New(), uuid.New(), JobType("laundry"), "", nil)
		assert.ErrorIs(t, err, ErrInvalidJobType)
	})
}

func TestJobLifecycle(t *testing.T) {
	t.Run("pending to running to completed", func(t *testing.T) {
		j := newTestJob(t)

		require.NoError(t, j.Start(10))
		assert.Equal(t, StatusRunning, j.Status)
		assert.Equal(t, 10, j.TotalItems)
		require.NotNil(t, j.StartedAt)

		require.NoError(t, j.RecordProgress(8, 2))
		assert.Equal(t, 8, j.ProcessedItems)
		assert.Equal(t, 2, j.FailedItems)

		require.NoError(t, j.Complete(map[string]any{"synced": 8}))
		assert.Equal(t, StatusCompleted, j.Status)
		require.NotNil(t, j.CompletedAt)
	})

	t.Run("start is idempotent while running", func(t *testing.T) {
		j := newTestJob(t)
		require.NoError(t, j.Start(10))
		started := j.StartedAt

		require.NoError(t, j.Start(99))
		assert.Equal(t, 10, j.TotalItems)
		assert.Equal(t, started, j.StartedAt)
	})

	t.Run("terminal states reject transitions", func(t *testing.T) {
		j := newTestJob(t)
		require.NoError(t, j.Start(1))
		require.NoError(t, j.Complete(nil))

		assert.ErrorIs(t, j.Start(1), ErrInvalidState)
		assert.ErrorIs(t, j.RecordProgress(1, 0), ErrInvalidState)
		assert.ErrorIs(t, j.Fail("boom"), ErrInvalidState)
		assert.ErrorIs(t, j.Cancel(), ErrInvalidState)
	})

	t.Run("progress cannot exceed total", func(t *testing.T) {
		j := newTestJob(t)
		require.NoError(t, j.Start(5))
		require.NoError(t, j.RecordProgress(4, 0))
		assert.ErrorIs(t, j.RecordProgress(1, 1), ErrCountOverflow)
	})

	t.Run("progress rejects negative deltas", func(t *testing.T) {
		j := newTestJob(t)
		require.NoError(t, j.Start(5))
		assert.ErrorIs(t, j.RecordProgress(-1, 0), ErrNegativeCount)
	})

	t.Run("complete with failed items still completes", func(t *testing.T) {
		j := newTestJob(t)
		require.NoError(t, j.Start(3))
		require.NoError(t, j.RecordProgress(1, 2))
		require.NoError(t, j.Complete(nil))
		assert.Equal(t, StatusCompleted, j.Status)
		assert.Equal(t, 2, j.FailedItems)
	})

	t.Run("fail truncates long error messages", func(t *testing.T) {
		j := newTestJob(t)
		require.NoError(t, j.Fail(strings.Repeat("x", 5000)))
		assert.Equal(t, StatusFailed, j.Status)
		assert.Len(t, j.ErrorMessage, maxErrorMessageLen)
		assert.True(t, strings.HasSuffix(j.ErrorMessage, "..."))
	})

	t.Run("cancel from pending", func(t *testing.T) {
		j := newTestJob(t)
		require.NoError(t, j.Cancel())
		assert.Equal(t, StatusCancelled, j.Status)
		require.NotNil(t, j.CompletedAt)
	})
}

func TestDeadLetter(t *testing.T) {
	j := newTestJob(t)
	require.NoError(t, j.Start(1))

	payload := NewDeadLetterPayload("transient", errors.New("connection refused"),
		map[string]any{"store_id": "s1"}, 3)
	require.NoError(t, j.DeadLetter(payload))

	assert.Equal(t, StatusFailed, j.Status)
	assert.True(t, j.IsDeadLettered())
	assert.Equal(t, "connection refused", j.ErrorMessage)
	assert.Equal(t, "transient", j.Metadata["dead_letter_kind"])
	assert.Equal(t, 3, j.Metadata["dead_letter_attempts"])
}

func TestNewDeadLetterPayload(t *testing.T) {
	t.Run("summarizes and truncates args", func(t *testing.T) {
		big := map[string]any{"blob": strings.Repeat("a", 2000)}
		p := NewDeadLetterPayload("permanent", errors.New("bad input"), big, 1)
		assert.LessOrEqual(t, len(p.ArgsSummary), 500)
		assert.Equal(t, "bad input", p.ErrorMessage)
	})

	t.Run("tolerates nil cause", func(t *testing.T) {
		p := NewDeadLetterPayload("transient", nil, nil, 2)
		assert.Empty(t, p.ErrorMessage)
		assert.Equal(t, 2, p.Attempts)
	})
}

func TestRetryAndResume(t *testing.T) {
	t.Run("retry of failed job carries lineage", func(t *testing.T) {
		j := newTestJob(t)
		require.NoError(t, j.Fail("boom"))

		newID := uuid.New()
		retry, err := j.NewRetry(newID)
		require.NoError(t, err)
		assert.Equal(t, newID, retry.ID)
		assert.Equal(t, StatusPending, retry.Status)
		require.NotNil(t, retry.RetryOf)
		assert.Equal(t, j.ID, *retry.RetryOf)
		assert.Equal(t, j.InputData, retry.InputData)
	})

	t.Run("retry of completed job is rejected", func(t *testing.T) {
		j := newTestJob(t)
		require.NoError(t, j.Complete(nil))
		_, err := j.NewRetry(uuid.New())
		assert.ErrorIs(t, err, ErrNotRetryable)
	})

	t.Run("resume requires failed items", func(t *testing.T) {
		j := newTestJob(t)
		require.NoError(t, j.Complete(nil))
		_, err := j.NewResume(uuid.New(), 0)
		assert.ErrorIs(t, err, ErrNothingToResume)
	})

	t.Run("resume carries lineage and scope", func(t *testing.T) {
		j := newTestJob(t)
		require.NoError(t, j.Start(10))
		require.NoError(t, j.RecordProgress(7, 3))
		require.NoError(t, j.Complete(nil))

		resume, err := j.NewResume(uuid.New(), 3)
		require.NoError(t, err)
		require.NotNil(t, resume.ResumedFrom)
		assert.Equal(t, j.ID, *resume.ResumedFrom)
		assert.Equal(t, 3, resume.Metadata["items_to_retry"])
	})

	t.Run("resume of a running job is rejected", func(t *testing.T) {
		j := newTestJob(t)
		require.NoError(t, j.Start(10))
		_, err := j.NewResume(uuid.New(), 3)
		assert.ErrorIs(t, err, ErrNotRetryable)
	})
}

func TestStatus(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
	assert.False(t, Status("limbo").IsValid())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
	assert.Equal(t, "abc...", Truncate("abcdefgh", 6))
}

func TestNewItem(t *testing.T) {
	jobID := uuid.New()

	t.Run("creates item with truncated message", func(t *testing.T) {
		item, err := NewItem(jobID, ItemStatusSuccess, strings.Repeat("m", 600))
		require.NoError(t, err)
		assert.Equal(t, jobID, item.JobID)
		assert.Len(t, item.Message, maxItemMessageLen)
		assert.False(t, item.ProcessedAt.IsZero())
	})

	t.Run("builder attaches product and states", func(t *testing.T) {
		productID := uuid.New()
		item, err := NewItem(jobID, ItemStatusFailed, "price rejected")
		require.NoError(t, err)
		item.WithProduct(productID).
			WithErrorCode("validation").
			WithStates(map[string]any{"price": "20"}, nil)

		require.NotNil(t, item.ProductID)
		assert.Equal(t, productID, *item.ProductID)
		assert.Equal(t, "validation", item.ErrorCode)
		assert.Equal(t, "20", item.BeforeState["price"])
	})

	t.Run("rejects missing parent and bad status", func(t *testing.T) {
		_, err := NewItem(uuid.Nil, ItemStatusSuccess, "")
		assert.ErrorIs(t, err, ErrItemInvalidJobID)

		_, err = NewItem(jobID, ItemStatus("odd"), "")
		assert.ErrorIs(t, err, ErrItemInvalidStatus)
	})
}

func TestItemStatusIsFailure(t *testing.T) {
	assert.True(t, ItemStatusFailed.IsFailure())
	assert.True(t, ItemStatusError.IsFailure())
	assert.False(t, ItemStatusSuccess.IsFailure())
	assert.False(t, ItemStatusWarning.IsFailure())
}

func TestProgress(t *testing.T) {
	t.Run("flush cadence", func(t *testing.T) {
		p := NewProgress(25)
		for i := 0; i < 9; i++ {
			p.RecordSuccess()
		}
		assert.False(t, p.ShouldFlush(10))

		p.RecordFailure()
		assert.True(t, p.ShouldFlush(10))

		processed, failed := p.FlushDeltas()
		assert.Equal(t, 9, processed)
		assert.Equal(t, 1, failed)
		assert.False(t, p.ShouldFlush(10))
		assert.False(t, p.HasUnflushed())
	})

	t.Run("deltas are relative to last flush", func(t *testing.T) {
		p := NewProgress(30)
		for i := 0; i < 10; i++ {
			p.RecordSuccess()
		}
		p.FlushDeltas()

		for i := 0; i < 4; i++ {
			p.RecordSuccess()
		}
		p.RecordFailure()
		assert.True(t, p.HasUnflushed())

		processed, failed := p.FlushDeltas()
		assert.Equal(t, 4, processed)
		assert.Equal(t, 1, failed)
		assert.Equal(t, 14, p.Processed())
		assert.Equal(t, 1, p.Failed())
		assert.Equal(t, 15, p.Done())
	})

	t.Run("non-positive cadence always flushes", func(t *testing.T) {
		p := NewProgress(5)
		assert.True(t, p.ShouldFlush(0))
	})
}
