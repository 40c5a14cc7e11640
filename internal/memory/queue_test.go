package memory

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	db, err := openDB(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewQueue(db, nil)
}

func TestEnqueueAndFetchPending(t *testing.T) {
	q := newTestQueue(t)

	task, err := q.FetchPending()
	require.NoError(t, err)
	assert.Nil(t, task, "empty queue yields nil")

	require.NoError(t, q.Enqueue("hello", "world"))
	require.NoError(t, q.Enqueue("second", "task"))

	task, err = q.FetchPending()
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "hello", task.UserInput)
	assert.Equal(t, "world", task.AgentOutput)
	assert.Equal(t, StatusPending, task.Status)
	assert.Zero(t, task.Retries)
}

func TestClaimOrdersAndMarksProcessing(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Enqueue("first", ""))
	require.NoError(t, q.Enqueue("second", ""))

	task, err := q.Claim()
	require.NoError(t, err)
	assert.Equal(t, "first", task.UserInput)
	assert.Equal(t, StatusProcessing, task.Status)

	// The claimed task is invisible to the next claim.
	next, err := q.Claim()
	require.NoError(t, err)
	assert.Equal(t, "second", next.UserInput)

	_, err = q.Claim()
	assert.ErrorIs(t, err, ErrNoPending)
}

func TestTransitions(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Enqueue("a", "b"))

	task, err := q.Claim()
	require.NoError(t, err)
	require.NoError(t, q.MarkDone(task.ID))

	tasks, err := q.ListRecent(10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, StatusDone, tasks[0].Status)
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Enqueue("a", "b"))
	task, err := q.Claim()
	require.NoError(t, err)
	require.NoError(t, q.MarkFailed(task.ID, "boom"))

	assert.Error(t, q.MarkDone(task.ID), "failed is terminal")
	assert.Error(t, q.MarkProcessing(task.ID))

	tasks, err := q.ListRecent(10)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, tasks[0].Status)
	assert.Equal(t, "boom", tasks[0].ErrorMsg)
}

func TestMarkDoneFromPending(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Enqueue("a", "b"))
	task, err := q.FetchPending()
	require.NoError(t, err)
	require.NoError(t, q.MarkDone(task.ID), "pending may complete without a processing step")
}

func TestListRecentNewestFirst(t *testing.T) {
	q := newTestQueue(t)
	for _, in := range []string{"one", "two", "three"} {
		require.NoError(t, q.Enqueue(in, ""))
	}

	tasks, err := q.ListRecent(2)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "three", tasks[0].UserInput)
	assert.Equal(t, "two", tasks[1].UserInput)
}

func TestRequeueStale(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Enqueue("stuck", ""))
	require.NoError(t, q.Enqueue("exhausted", ""))

	first, err := q.Claim()
	require.NoError(t, err)
	second, err := q.Claim()
	require.NoError(t, err)

	// Age both processing rows past the cutoff; give the second no retries
	// left.
	old := time.Now().UTC().Add(-time.Hour).Format("2006-01-02 15:04:05")
	_, err = q.db.Exec("UPDATE task_queue SET updated_at = ? WHERE id = ?", old, first.ID)
	require.NoError(t, err)
	_, err = q.db.Exec("UPDATE task_queue SET updated_at = ?, retries = 3 WHERE id = ?", old, second.ID)
	require.NoError(t, err)

	requeued, failed, err := q.RequeueStale(10*time.Minute, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)
	assert.Equal(t, 1, failed)

	reclaimed, err := q.Claim()
	require.NoError(t, err)
	assert.Equal(t, first.ID, reclaimed.ID)
	assert.Equal(t, 1, reclaimed.Retries)

	tasks, err := q.ListRecent(10)
	require.NoError(t, err)
	for _, task := range tasks {
		if task.ID == second.ID {
			assert.Equal(t, StatusFailed, task.Status)
			assert.Equal(t, "retry limit exceeded", task.ErrorMsg)
		}
	}
}

func TestRequeueStaleIgnoresFresh(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Enqueue("active", ""))
	_, err := q.Claim()
	require.NoError(t, err)

	requeued, failed, err := q.RequeueStale(10*time.Minute, 3)
	require.NoError(t, err)
	assert.Zero(t, requeued)
	assert.Zero(t, failed)
}

func TestCountByStatus(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Enqueue("a", ""))
	require.NoError(t, q.Enqueue("b", ""))
	task, err := q.Claim()
	require.NoError(t, err)
	require.NoError(t, q.MarkDone(task.ID))

	counts, err := q.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, 1, counts[StatusPending])
	assert.Equal(t, 1, counts[StatusDone])
}

func TestQueueClear(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Enqueue("a", ""))
	require.NoError(t, q.Clear())

	task, err := q.FetchPending()
	require.NoError(t, err)
	assert.Nil(t, task)
}
