// Package memory implements the hybrid knowledge store: a SQLite document
// table with a trigger-maintained FTS5 index, plus a flat vector index in a
// separate file. Multiple processes may hold independent Store instances
// over the same files; mutations are serialized by an advisory file lock
// and readers catch up through an mtime freshness check.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"acemem/internal/config"
	"acemem/internal/embedding"
	"acemem/internal/vecindex"
)

const (
	// rebuildBatchSize is how many documents are encoded per batch when
	// reconstructing the vector index from the document table.
	rebuildBatchSize = 32
	// rebuildConcurrency bounds parallel encode batches during a rebuild.
	rebuildConcurrency = 4
)

// Match is a similarity hit with its raw metric score.
type Match struct {
	ID    int64
	Score float64
}

// Store is the memory façade combining encoder, vector index, and document
// table. It owns all writes to the three artifacts.
type Store struct {
	cfg       config.Config
	sessionID string

	dbPath    string
	indexPath string
	metric    vecindex.Metric
	threshold float64

	enc *embedding.Encoder
	log *zap.Logger

	db   *sql.DB
	lock *vecindex.FileLock

	mu        sync.RWMutex // guards index and watermark
	index     *vecindex.Flat
	watermark time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger attaches a logger; the default is a nop logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = l }
}

// Open creates a Store over the shared files for cfg.
func Open(cfg config.Config, engine embedding.Engine, opts ...Option) (*Store, error) {
	return open(cfg, engine, "", opts...)
}

// OpenSession creates a Store over per-session files under user_data/.
func OpenSession(cfg config.Config, engine embedding.Engine, sessionID string, opts ...Option) (*Store, error) {
	return open(cfg, engine, sessionID, opts...)
}

func open(cfg config.Config, engine embedding.Engine, sessionID string, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	metric := vecindex.L2
	if cfg.Store.Metric == config.MetricCosine {
		metric = vecindex.IP
	}

	dbPath, indexPath := storePaths(cfg.Store.BasePath, sessionID)
	s := &Store{
		cfg:       cfg,
		sessionID: sessionID,
		dbPath:    dbPath,
		indexPath: indexPath,
		metric:    metric,
		threshold: cfg.Threshold(),
		enc:       embedding.NewEncoder(engine, embedding.UsesPrefixes(cfg.Embedding.Model)),
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

// storePaths derives the database and index paths. Without a session id
// both live at the configured base; with one, under user_data/.
func storePaths(base, sessionID string) (dbPath, indexPath string) {
	if sessionID == "" {
		return base + ".db", base + ".faiss"
	}
	prefix := filepath.Join("user_data", "ace_memory_"+sessionID)
	return prefix + ".db", prefix + ".faiss"
}

func (s *Store) init() error {
	db, err := openDB(s.dbPath)
	if err != nil {
		return err
	}
	s.db = db
	s.lock = vecindex.NewFileLock(s.indexPath)

	if err := s.loadOrBuildIndex(context.Background()); err != nil {
		db.Close()
		return err
	}
	return nil
}

// DBPath returns the database file path.
func (s *Store) DBPath() string { return s.dbPath }

// Metric returns the distance metric the store was opened with.
func (s *Store) Metric() vecindex.Metric { return s.metric }

// IndexPath returns the vector index file path.
func (s *Store) IndexPath() string { return s.indexPath }

// DB exposes the underlying handle so the task queue can share the store's
// database file.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle. The index file needs no teardown.
func (s *Store) Close() error {
	return s.db.Close()
}

// loadOrBuildIndex loads the persisted index under the advisory lock,
// rebuilding from the document table when the file is absent, unreadable,
// or out of step with the row count (the 1:1 invariant repair path).
func (s *Store) loadOrBuildIndex(ctx context.Context) error {
	if err := s.lock.Lock(); err != nil {
		return err
	}
	defer s.lock.Unlock()

	docs, err := countDocuments(s.db)
	if err != nil {
		return fmt.Errorf("count documents: %w", err)
	}

	idx, err := vecindex.Load(s.indexPath)
	switch {
	case err == nil && idx.Metric() == s.metric && idx.Dim() == s.enc.Dimensions() && idx.Count() == docs:
		// Healthy index.
	case err == nil:
		s.log.Warn("index out of step with document table, rebuilding",
			zap.Int("index_count", idx.Count()), zap.Int("documents", docs))
		idx, err = s.rebuildFromDB(ctx)
	case errors.Is(err, os.ErrNotExist):
		idx, err = s.rebuildFromDB(ctx)
	case errors.Is(err, vecindex.ErrCorrupt):
		s.log.Warn("index file corrupt, rebuilding", zap.Error(err))
		idx, err = s.rebuildFromDB(ctx)
	default:
		return err
	}
	if err != nil {
		return err
	}

	prev := fileMtime(s.indexPath)
	if err := idx.Save(s.indexPath); err != nil {
		return err
	}
	advanceMtime(s.indexPath, prev)

	s.mu.Lock()
	s.index = idx
	s.watermark = fileMtime(s.indexPath)
	s.mu.Unlock()
	return nil
}

// rebuildFromDB re-encodes every document. Batches are embedded with
// bounded parallelism; results keep document order so ids line up.
func (s *Store) rebuildFromDB(ctx context.Context) (*vecindex.Flat, error) {
	idx := vecindex.NewFlat(s.metric, s.enc.Dimensions())

	rows, err := s.db.Query("SELECT id, content FROM documents ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("read documents for rebuild: %w", err)
	}
	var (
		ids      []int64
		contents []string
	)
	for rows.Next() {
		var (
			id      int64
			content string
		)
		if err := rows.Scan(&id, &content); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
		contents = append(contents, content)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return idx, nil
	}

	vectors := make([][]float32, len(contents))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rebuildConcurrency)
	for start := 0; start < len(contents); start += rebuildBatchSize {
		start := start
		end := start + rebuildBatchSize
		if end > len(contents) {
			end = len(contents)
		}
		g.Go(func() error {
			vecs, err := s.enc.EncodeDocuments(gctx, contents[start:end])
			if err != nil {
				return fmt.Errorf("encode rebuild batch: %w", err)
			}
			copy(vectors[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, vec := range vectors {
		if s.metric == vecindex.IP {
			vecindex.NormalizeL2(vec)
		}
		if err := idx.Add(ids[i], vec); err != nil {
			return nil, err
		}
	}
	s.log.Info("vector index rebuilt", zap.Int("documents", len(ids)))
	return idx, nil
}

// Add inserts a document and its vector. The row is written first (it is
// the authoritative copy the index can be rebuilt from); if the index write
// fails the row is rolled back so neither becomes visible.
func (s *Store) Add(ctx context.Context, content string, entities []string, problemClass string) (int64, error) {
	id, err := insertDocument(s.db, content, entities, problemClass)
	if err != nil {
		return 0, err
	}

	vec, err := s.enc.EncodeDocument(ctx, content)
	if err != nil {
		_ = deleteDocument(s.db, id)
		return 0, fmt.Errorf("encode document: %w", err)
	}
	if s.metric == vecindex.IP {
		vecindex.NormalizeL2(vec)
	}

	if err := s.mutateIndex(ctx, func(idx *vecindex.Flat) error {
		if idx.Has(id) {
			// A repair rebuild inside this write cycle already picked the
			// row up from the table.
			return nil
		}
		return idx.Add(id, vec)
	}); err != nil {
		_ = deleteDocument(s.db, id)
		return 0, err
	}

	s.log.Debug("document added", zap.Int64("id", id), zap.String("problem_class", problemClass))
	return id, nil
}

// DocumentInput is one entry for AddBatch.
type DocumentInput struct {
	Content      string
	Entities     []string
	ProblemClass string
}

// AddBatch inserts several documents with one insert transaction, one batch
// encode, and one locked index write cycle.
func (s *Store) AddBatch(ctx context.Context, items []DocumentInput) ([]int64, error) {
	if len(items) == 0 {
		return nil, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		res, err := tx.Exec(
			"INSERT INTO documents (content, entities, problem_class) VALUES (?, ?, ?)",
			item.Content, marshalEntities(item.Entities), item.ProblemClass,
		)
		if err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("insert document batch: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	contents := make([]string, len(items))
	for i, item := range items {
		contents[i] = item.Content
	}
	vecs, err := s.enc.EncodeDocuments(ctx, contents)
	if err != nil {
		for _, id := range ids {
			_ = deleteDocument(s.db, id)
		}
		return nil, fmt.Errorf("encode document batch: %w", err)
	}

	if err := s.mutateIndex(ctx, func(idx *vecindex.Flat) error {
		for i, vec := range vecs {
			if s.metric == vecindex.IP {
				vecindex.NormalizeL2(vec)
			}
			if idx.Has(ids[i]) {
				continue
			}
			if err := idx.Add(ids[i], vec); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		for _, id := range ids {
			_ = deleteDocument(s.db, id)
		}
		return nil, err
	}
	return ids, nil
}

// UpdateDocument replaces all mutable fields and the vector under the same
// id. The index lock is held across remove and add so no searcher can
// observe the gap. On encode or index failure the row is restored to its
// previous state; a half-applied update would pass the count check and
// never be repaired by a rebuild.
func (s *Store) UpdateDocument(ctx context.Context, id int64, content string, entities []string, problemClass string) error {
	prev, err := getDocument(s.db, id)
	if err != nil {
		return err
	}
	if err := updateDocumentRow(s.db, id, content, entities, problemClass); err != nil {
		return err
	}

	vec, err := s.enc.EncodeDocument(ctx, content)
	if err != nil {
		_ = updateDocumentRow(s.db, id, prev.Content, prev.Entities, prev.ProblemClass)
		return fmt.Errorf("encode document: %w", err)
	}
	if s.metric == vecindex.IP {
		vecindex.NormalizeL2(vec)
	}

	if err := s.mutateIndex(ctx, func(idx *vecindex.Flat) error {
		idx.Remove(id)
		return idx.Add(id, vec)
	}); err != nil {
		_ = updateDocumentRow(s.db, id, prev.Content, prev.Entities, prev.ProblemClass)
		return err
	}
	return nil
}

// mutateIndex runs one write cycle: acquire the advisory lock, re-read the
// latest persisted index, apply the mutation, write the file, update the
// watermark. Encoding never happens inside this window.
func (s *Store) mutateIndex(ctx context.Context, fn func(*vecindex.Flat) error) error {
	if err := s.lock.Lock(); err != nil {
		return err
	}
	defer s.lock.Unlock()

	idx, err := vecindex.Load(s.indexPath)
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, vecindex.ErrCorrupt) {
		if errors.Is(err, vecindex.ErrCorrupt) {
			s.log.Warn("index unreadable during write, rebuilding", zap.Error(err))
		}
		idx, err = s.rebuildFromDB(ctx)
	}
	if err != nil {
		return err
	}

	if err := fn(idx); err != nil {
		return err
	}
	prev := fileMtime(s.indexPath)
	if err := idx.Save(s.indexPath); err != nil {
		return err
	}
	advanceMtime(s.indexPath, prev)

	s.mu.Lock()
	s.index = idx
	s.watermark = fileMtime(s.indexPath)
	s.mu.Unlock()
	return nil
}

// refreshIfStale reloads the in-memory index when another process has
// replaced the file since our last load. The advisory lock is only taken
// (shared) for the reload itself.
func (s *Store) refreshIfStale(ctx context.Context) error {
	mtime := fileMtime(s.indexPath)
	if mtime.IsZero() {
		return nil
	}

	s.mu.RLock()
	stale := mtime.After(s.watermark)
	s.mu.RUnlock()
	if !stale {
		return nil
	}

	if err := s.lock.RLock(); err != nil {
		return err
	}
	idx, err := vecindex.Load(s.indexPath)
	s.lock.Unlock()

	if errors.Is(err, vecindex.ErrCorrupt) {
		// Writer left a bad file; repair it the authoritative way.
		return s.loadOrBuildIndex(ctx)
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.index = idx
	s.watermark = mtime
	s.mu.Unlock()
	return nil
}

// Search performs hybrid retrieval with the store's default threshold.
func (s *Store) Search(ctx context.Context, query string, k int) ([]string, error) {
	return s.SearchThreshold(ctx, query, k, s.threshold)
}

// SearchThreshold performs hybrid retrieval: a dense phase over the vector
// index filtered by the metric-aware threshold, then a lexical FTS phase
// filling any remaining slots. Results are deduplicated by exact content
// and returned in discovery order.
func (s *Store) SearchThreshold(ctx context.Context, query string, k int, threshold float64) ([]string, error) {
	if k <= 0 {
		k = 3
	}
	if err := s.refreshIfStale(ctx); err != nil {
		return nil, err
	}

	ordered := make([]string, 0, k)
	seen := make(map[string]struct{}, k)

	s.mu.RLock()
	indexed := s.index.Count()
	s.mu.RUnlock()

	if indexed > 0 {
		vec, err := s.enc.EncodeQuery(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("encode query: %w", err)
		}
		if s.metric == vecindex.IP {
			vecindex.NormalizeL2(vec)
		}

		searchK := 3 * k
		if searchK > indexed {
			searchK = indexed
		}

		s.mu.RLock()
		hits, err := s.index.Search(vec, searchK)
		s.mu.RUnlock()
		if err != nil {
			return nil, err
		}

		ids := make([]int64, 0, k)
		for _, hit := range hits {
			if !s.withinThreshold(float64(hit.Score), threshold) {
				continue
			}
			ids = append(ids, hit.ID)
			if len(ids) == k {
				break
			}
		}

		contents, err := contentsByIDs(s.db, ids)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			content, ok := contents[id]
			if !ok {
				continue
			}
			if _, dup := seen[content]; dup {
				continue
			}
			seen[content] = struct{}{}
			ordered = append(ordered, content)
		}
	}

	if len(ordered) < k {
		// Fetch k candidates, not just the shortfall: top-ranked lexical
		// hits often duplicate the dense phase and are skipped here.
		lexical, err := lexicalSearch(s.db, query, k)
		if err != nil {
			// FTS5 syntax errors (unbalanced quotes etc.) must not fail the
			// search; the dense phase result stands alone.
			s.log.Debug("lexical phase skipped", zap.Error(err))
		} else {
			for _, content := range lexical {
				if _, dup := seen[content]; dup {
					continue
				}
				seen[content] = struct{}{}
				ordered = append(ordered, content)
				if len(ordered) == k {
					break
				}
			}
		}
	}

	return ordered, nil
}

// FindSimilar returns the ids and scores of up to three nearest documents
// that pass the given threshold. Used by the reflection worker to surface
// merge candidates with a looser cutoff than Search.
func (s *Store) FindSimilar(ctx context.Context, content string, threshold float64) ([]Match, error) {
	if err := s.refreshIfStale(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	indexed := s.index.Count()
	s.mu.RUnlock()
	if indexed == 0 {
		return nil, nil
	}

	vec, err := s.enc.EncodeQuery(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("encode probe: %w", err)
	}
	if s.metric == vecindex.IP {
		vecindex.NormalizeL2(vec)
	}

	s.mu.RLock()
	hits, err := s.index.Search(vec, 3)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	var matches []Match
	for _, hit := range hits {
		score := float64(hit.Score)
		if s.withinThreshold(score, threshold) {
			matches = append(matches, Match{ID: hit.ID, Score: score})
		}
	}
	return matches, nil
}

func (s *Store) withinThreshold(score, threshold float64) bool {
	if s.metric == vecindex.IP {
		return score > threshold
	}
	return score < threshold
}

// GetDocument fetches one document by id.
func (s *Store) GetDocument(id int64) (Document, error) {
	return getDocument(s.db, id)
}

// GetAll returns every document, newest first.
func (s *Store) GetAll() ([]Document, error) {
	return getAllDocuments(s.db)
}

// Count returns the number of documents.
func (s *Store) Count() (int, error) {
	return countDocuments(s.db)
}

// IndexCount returns the number of vectors currently in memory.
func (s *Store) IndexCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Count()
}

// Clear resets the store to empty: backing files are removed and a fresh
// schema and index are initialized.
func (s *Store) Clear() error {
	if err := s.db.Close(); err != nil {
		return err
	}
	for _, path := range []string{
		s.dbPath,
		s.dbPath + "-wal",
		s.dbPath + "-shm",
		s.indexPath,
		s.lock.Path(),
	} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	s.log.Info("store cleared", zap.String("db", s.dbPath))
	return s.init()
}

func fileMtime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// advanceMtime makes path's mtime strictly newer than prev. Filesystem
// timestamps tick at a coarse granularity, so a replacement landing in the
// same granule as a reader's watermark would otherwise never look stale.
func advanceMtime(path string, prev time.Time) {
	info, err := os.Stat(path)
	if err != nil || info.ModTime().After(prev) {
		return
	}
	t := prev.Add(time.Millisecond)
	_ = os.Chtimes(path, t, t)
}
