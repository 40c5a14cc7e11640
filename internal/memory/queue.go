package memory

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Task states. pending and processing are live; done and failed are
// terminal and never transition again.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// ErrNoPending is returned by Claim when the queue has no pending task.
var ErrNoPending = errors.New("memory: no pending task")

// Task is one unit of reflection work.
type Task struct {
	ID          int64
	UserInput   string
	AgentOutput string
	Status      string
	Retries     int
	ErrorMsg    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Queue is the durable task queue. It shares the store's database file so
// enqueue and memory writes live in one WAL.
type Queue struct {
	db  *sql.DB
	log *zap.Logger
}

// NewQueue builds a queue over an existing store database handle.
func NewQueue(db *sql.DB, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{db: db, log: logger}
}

// Enqueue appends a pending task snapshotting one interaction.
func (q *Queue) Enqueue(userInput, agentOutput string) error {
	_, err := q.db.Exec(
		"INSERT INTO task_queue (user_input, agent_output) VALUES (?, ?)",
		userInput, agentOutput,
	)
	if err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	return nil
}

// FetchPending returns the oldest pending task without claiming it, or nil.
func (q *Queue) FetchPending() (*Task, error) {
	row := q.db.QueryRow(
		"SELECT id, user_input, agent_output, status, retries, COALESCE(error_msg, ''), created_at, updated_at " +
			"FROM task_queue WHERE status = 'pending' ORDER BY id ASC LIMIT 1")
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// Claim atomically fetches the oldest pending task and marks it
// processing. The select and update share one transaction so competing
// workers never claim the same task.
func (q *Queue) Claim() (*Task, error) {
	tx, err := q.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row := tx.QueryRow(
		"SELECT id, user_input, agent_output, status, retries, COALESCE(error_msg, ''), created_at, updated_at " +
			"FROM task_queue WHERE status = 'pending' ORDER BY id ASC LIMIT 1")
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoPending
	}
	if err != nil {
		return nil, err
	}

	res, err := tx.Exec(
		"UPDATE task_queue SET status = 'processing', updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = 'pending'",
		task.ID,
	)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNoPending
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	task.Status = StatusProcessing
	return &task, nil
}

// MarkProcessing transitions a pending task to processing.
func (q *Queue) MarkProcessing(id int64) error {
	return q.transition(id, StatusProcessing, "", StatusPending)
}

// MarkDone transitions a live task to done.
func (q *Queue) MarkDone(id int64) error {
	return q.transition(id, StatusDone, "", StatusPending, StatusProcessing)
}

// MarkFailed transitions a live task to failed with a diagnostic message.
func (q *Queue) MarkFailed(id int64, errMsg string) error {
	return q.transition(id, StatusFailed, errMsg, StatusPending, StatusProcessing)
}

// transition performs a guarded single-statement state change. The guard on
// the current status enforces the task state machine: terminal rows are
// never modified.
func (q *Queue) transition(id int64, to, errMsg string, from ...string) error {
	query := "UPDATE task_queue SET status = ?, updated_at = CURRENT_TIMESTAMP"
	args := []interface{}{to}
	if errMsg != "" {
		query += ", error_msg = ?"
		args = append(args, errMsg)
	}
	query += " WHERE id = ? AND status IN (?" + strings.Repeat(", ?", len(from)-1) + ")"
	args = append(args, id)
	for _, f := range from {
		args = append(args, f)
	}

	res, err := q.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("mark task %d %s: %w", id, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("task %d not in %v", id, from)
	}
	return nil
}

// ListRecent returns the newest tasks for observability, newest first.
func (q *Queue) ListRecent(limit int) ([]Task, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := q.db.Query(
		"SELECT id, user_input, agent_output, status, retries, COALESCE(error_msg, ''), created_at, updated_at "+
			"FROM task_queue ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var (
			t       Task
			created string
			updated string
		)
		if err := rows.Scan(&t.ID, &t.UserInput, &t.AgentOutput, &t.Status, &t.Retries, &t.ErrorMsg, &created, &updated); err != nil {
			return nil, err
		}
		t.CreatedAt = parseTimestamp(created)
		t.UpdatedAt = parseTimestamp(updated)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// RequeueStale resets processing tasks older than maxAge back to pending,
// bumping their retry count. Tasks already at maxRetries are failed instead
// so a poisonous task cannot loop forever. The sweep is idempotent.
func (q *Queue) RequeueStale(maxAge time.Duration, maxRetries int) (requeued, failed int, err error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format("2006-01-02 15:04:05")

	res, err := q.db.Exec(
		"UPDATE task_queue SET status = 'failed', error_msg = 'retry limit exceeded', updated_at = CURRENT_TIMESTAMP "+
			"WHERE status = 'processing' AND updated_at < ? AND retries >= ?",
		cutoff, maxRetries,
	)
	if err != nil {
		return 0, 0, fmt.Errorf("fail stale tasks: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		failed = int(n)
	}

	res, err = q.db.Exec(
		"UPDATE task_queue SET status = 'pending', retries = retries + 1, updated_at = CURRENT_TIMESTAMP "+
			"WHERE status = 'processing' AND updated_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, failed, fmt.Errorf("requeue stale tasks: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		requeued = int(n)
	}

	if requeued > 0 || failed > 0 {
		q.log.Info("stale task sweep", zap.Int("requeued", requeued), zap.Int("failed", failed))
	}
	return requeued, failed, nil
}

// CountByStatus returns task counts keyed by status.
func (q *Queue) CountByStatus() (map[string]int, error) {
	rows, err := q.db.Query("SELECT status, COUNT(*) FROM task_queue GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// Clear removes all tasks.
func (q *Queue) Clear() error {
	_, err := q.db.Exec("DELETE FROM task_queue")
	return err
}

func scanTask(row *sql.Row) (Task, error) {
	var (
		t       Task
		created string
		updated string
	)
	err := row.Scan(&t.ID, &t.UserInput, &t.AgentOutput, &t.Status, &t.Retries, &t.ErrorMsg, &created, &updated)
	if err != nil {
		return Task{}, err
	}
	t.CreatedAt = parseTimestamp(created)
	t.UpdatedAt = parseTimestamp(updated)
	return t, nil
}
