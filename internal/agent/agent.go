// Package agent is the conversational surface over the memory substrate.
// It is deliberately thin: recall before answering, observe after, and let
// the background worker decide what survives.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"acemem/internal/memory"
	"acemem/internal/oracle"
	"acemem/internal/prompts"
)

// Memory gives an agent loop recall and observation over session stores.
type Memory struct {
	sessions *memory.Sessions
	oracle   oracle.Client
	lang     prompts.Language
	log      *zap.Logger
}

// New builds the agent memory surface. The oracle may be nil when query
// planning is not needed.
func New(sessions *memory.Sessions, client oracle.Client, lang prompts.Language, logger *zap.Logger) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory{sessions: sessions, oracle: client, lang: lang, log: logger}
}

// Recall returns up to k remembered documents relevant to the query.
func (m *Memory) Recall(ctx context.Context, sessionID, query string, k int) ([]string, error) {
	store, err := m.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return store.Search(ctx, query, k)
}

// RecallContext recalls and renders the results as a context block ready
// to prepend to a conversation. Empty recall yields an empty string.
func (m *Memory) RecallContext(ctx context.Context, sessionID, query string, k int) (string, error) {
	docs, err := m.Recall(ctx, sessionID, query, k)
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return "", nil
	}
	return prompts.RetrievedContext(m.lang, strings.Join(docs, "\n\n")), nil
}

// Observe records one interaction for later reflection. It never blocks on
// the oracle: the snapshot goes to the durable queue and returns.
func (m *Memory) Observe(sessionID, userInput, agentOutput string) error {
	store, err := m.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	return memory.NewQueue(store.DB(), m.log).Enqueue(userInput, agentOutput)
}

// intentPlan is the oracle's reply to the intent analysis prompt.
type intentPlan struct {
	Entities     []string `json:"entities"`
	ProblemClass string   `json:"problem_class"`
	SearchQuery  string   `json:"search_query"`
}

// PlanQuery asks the oracle to distill the user's latest request plus
// history into one search query. Falls back to the raw input when the
// oracle is unavailable or its reply is unusable.
func (m *Memory) PlanQuery(ctx context.Context, userInput string, history []string) string {
	if m.oracle == nil {
		return userInput
	}
	prompt := prompts.IntentAnalysis(m.lang, userInput, strings.Join(history, "\n"))
	reply, err := m.oracle.Invoke(ctx, prompt)
	if err != nil {
		m.log.Debug("intent analysis failed, using raw input", zap.Error(err))
		return userInput
	}
	var plan intentPlan
	if err := json.Unmarshal([]byte(stripFences(reply)), &plan); err != nil || strings.TrimSpace(plan.SearchQuery) == "" {
		m.log.Debug("unusable intent plan, using raw input", zap.Error(err))
		return userInput
	}
	return plan.SearchQuery
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Close releases every session store.
func (m *Memory) Close() error {
	if err := m.sessions.Close(); err != nil {
		return fmt.Errorf("close sessions: %w", err)
	}
	return nil
}
