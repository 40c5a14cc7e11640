package reflection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"acemem/internal/memory"
	"acemem/internal/oracle"
	"acemem/internal/prompts"
	"acemem/internal/vecindex"
)

const (
	defaultPollInterval = time.Second
	errorBackoff        = 5 * time.Second
	oracleCallTimeout   = 120 * time.Second
	stopWait            = 2 * time.Second

	// Loose similarity cutoffs for candidate gathering. Wider than the
	// recall thresholds on purpose: the oracle sees near-misses too and
	// makes the final call.
	looseThresholdL2 = 0.4
	looseThresholdIP = 0.5

	agentOutputProbeLimit = 200
)

// Worker drains the task queue in the background, consulting the oracle
// for each interaction and applying its decision to the store. Tasks are
// processed one at a time in queue order.
type Worker struct {
	store    *memory.Store
	queue    *memory.Queue
	oracle   oracle.Client
	lang     prompts.Language
	interval time.Duration
	log      *zap.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithPollInterval overrides the idle polling interval.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWorkerLogger attaches a logger.
func WithWorkerLogger(logger *zap.Logger) WorkerOption {
	return func(w *Worker) {
		if logger != nil {
			w.log = logger
		}
	}
}

// NewWorker builds a worker over an opened store and its queue.
func NewWorker(store *memory.Store, queue *memory.Queue, client oracle.Client, lang prompts.Language, opts ...WorkerOption) *Worker {
	w := &Worker{
		store:    store,
		queue:    queue,
		oracle:   client,
		lang:     lang,
		interval: defaultPollInterval,
		log:      zap.NewNop(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the background loop. Call Stop to shut it down.
func (w *Worker) Start() {
	w.log.Info("reflection worker starting", zap.Duration("interval", w.interval))
	go w.run()
}

// Stop signals the loop and waits briefly for the in-flight task to finish.
func (w *Worker) Stop() {
	close(w.stopCh)
	select {
	case <-w.doneCh:
	case <-time.After(stopWait):
		w.log.Warn("reflection worker stop timed out")
	}
}

func (w *Worker) run() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			w.log.Info("reflection worker stopped")
			return
		default:
		}

		worked, err := w.step()
		if err != nil {
			w.log.Error("reflection step failed", zap.Error(err))
			w.sleep(errorBackoff)
			continue
		}
		if !worked {
			w.sleep(w.interval)
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// step claims and processes at most one task. It reports whether a task
// was available; an oracle or parse problem marks the task done or failed
// and is not propagated, so one bad task never stalls the queue.
func (w *Worker) step() (worked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reflection panic: %v", r)
		}
	}()

	task, err := w.queue.Claim()
	if errors.Is(err, memory.ErrNoPending) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	w.log.Debug("processing task", zap.Int64("task", task.ID))
	if err := w.processTask(task); err != nil {
		w.log.Warn("task failed", zap.Int64("task", task.ID), zap.Error(err))
		if markErr := w.queue.MarkFailed(task.ID, err.Error()); markErr != nil {
			w.log.Error("mark failed", zap.Int64("task", task.ID), zap.Error(markErr))
		}
	}
	return true, nil
}

func (w *Worker) processTask(task *memory.Task) error {
	ctx, cancel := context.WithTimeout(context.Background(), oracleCallTimeout)
	defer cancel()

	probe := probeText(task.UserInput, task.AgentOutput)
	matches, err := w.store.FindSimilar(ctx, probe, w.looseThreshold())
	if err != nil {
		return fmt.Errorf("find similar: %w", err)
	}

	prompt := prompts.UnifiedAnalysis(w.lang, task.UserInput, task.AgentOutput, w.formatExisting(matches))
	reply, err := w.oracle.Invoke(ctx, prompt)
	if err != nil {
		return fmt.Errorf("unified analysis: %w", err)
	}

	decision, err := ParseDecision(reply)
	if err != nil {
		// Malformed oracle output is not worth retrying: the interaction
		// snapshot will produce the same reply. Drop the task.
		w.log.Warn("unparseable decision, dropping task",
			zap.Int64("task", task.ID), zap.Error(err))
		return w.queue.MarkDone(task.ID)
	}

	if err := w.apply(ctx, task, decision); err != nil {
		return err
	}
	return w.queue.MarkDone(task.ID)
}

func (w *Worker) apply(ctx context.Context, task *memory.Task, d Decision) error {
	if !d.Store || d.Action == ActionKept {
		w.log.Debug("nothing to store",
			zap.Int64("task", task.ID), zap.String("rationale", d.Rationale))
		return nil
	}

	content := w.structure(ctx, d.Analysis)

	switch d.Action {
	case ActionUpdate:
		if d.TargetID > 0 {
			_, err := w.store.GetDocument(d.TargetID)
			if err == nil {
				if err := w.store.UpdateDocument(ctx, d.TargetID, content, d.Entities, d.ProblemClass); err != nil {
					return fmt.Errorf("update document %d: %w", d.TargetID, err)
				}
				w.log.Info("memory updated",
					zap.Int64("task", task.ID), zap.Int64("doc", d.TargetID))
				return nil
			}
			if !errors.Is(err, memory.ErrNotFound) {
				return fmt.Errorf("lookup document %d: %w", d.TargetID, err)
			}
		}
		w.log.Warn("update target missing, storing as new",
			zap.Int64("task", task.ID), zap.Int64("target", d.TargetID))
		fallthrough
	case ActionNew:
		id, err := w.store.Add(ctx, content, d.Entities, d.ProblemClass)
		if err != nil {
			return fmt.Errorf("add document: %w", err)
		}
		w.log.Info("memory stored", zap.Int64("task", task.ID), zap.Int64("doc", id))
	}
	return nil
}

// structure runs the knowledge-model pass over the raw analysis. A failure
// here falls back to the raw text: a less distilled memory beats no memory.
func (w *Worker) structure(ctx context.Context, analysis string) string {
	prompt := prompts.KnowledgeModel(w.lang, analysis)
	reply, err := w.oracle.Invoke(ctx, prompt)
	if err != nil || strings.TrimSpace(reply) == "" {
		w.log.Debug("knowledge model pass failed, keeping raw analysis", zap.Error(err))
		return analysis
	}
	return strings.TrimSpace(reply)
}

func (w *Worker) looseThreshold() float64 {
	if w.store.Metric() == vecindex.IP {
		return looseThresholdIP
	}
	return looseThresholdL2
}

// probeText builds the similarity probe from an interaction. Agent output
// is truncated so one verbose reply does not dominate the embedding.
func probeText(userInput, agentOutput string) string {
	out := []rune(agentOutput)
	if len(out) > agentOutputProbeLimit {
		out = out[:agentOutputProbeLimit]
	}
	return userInput + "\n" + string(out)
}

// formatExisting renders candidate documents for the analysis prompt.
func (w *Worker) formatExisting(matches []memory.Match) string {
	if len(matches) == 0 {
		return "None"
	}
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		doc, err := w.store.GetDocument(m.ID)
		if err != nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("ID: %d\nContent: %s", doc.ID, doc.Content))
	}
	if len(parts) == 0 {
		return "None"
	}
	return strings.Join(parts, "\n---\n")
}
