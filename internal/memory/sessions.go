package memory

import (
	"sync"

	"go.uber.org/zap"

	"acemem/internal/config"
	"acemem/internal/embedding"
)

// Sessions hands out stores keyed by session id with lazy construction.
// In shared mode every session maps to the one shared store; in isolated
// mode each session gets its own files under user_data/. There is no
// eviction: sessions are long-lived relative to the process.
type Sessions struct {
	cfg    config.Config
	engine embedding.Engine
	log    *zap.Logger

	mu     sync.Mutex
	shared *Store
	stores map[string]*Store
}

// NewSessions creates the registry. Stores are opened on first use.
func NewSessions(cfg config.Config, engine embedding.Engine, logger *zap.Logger) *Sessions {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sessions{
		cfg:    cfg,
		engine: engine,
		log:    logger,
		stores: make(map[string]*Store),
	}
}

// Get returns the store for a session id, opening it if needed. An empty
// id, or any id in shared mode, resolves to the shared store.
func (r *Sessions) Get(sessionID string) (*Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sessionID == "" || r.cfg.Store.Mode == config.ModeShared {
		if r.shared == nil {
			store, err := Open(r.cfg, r.engine, WithLogger(r.log))
			if err != nil {
				return nil, err
			}
			r.shared = store
		}
		return r.shared, nil
	}

	if store, ok := r.stores[sessionID]; ok {
		return store, nil
	}
	store, err := OpenSession(r.cfg, r.engine, sessionID, WithLogger(r.log))
	if err != nil {
		return nil, err
	}
	r.stores[sessionID] = store
	return store, nil
}

// Close closes every opened store.
func (r *Sessions) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	if r.shared != nil {
		if err := r.shared.Close(); err != nil {
			firstErr = err
		}
		r.shared = nil
	}
	for id, store := range r.stores {
		if err := store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.stores, id)
	}
	return firstErr
}
