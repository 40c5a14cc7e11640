package agent

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acemem/internal/config"
	"acemem/internal/memory"
	"acemem/internal/prompts"
)

type constEngine struct{}

func (constEngine) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0, 0}, nil
}

func (e constEngine) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}

func (constEngine) Dimensions() int { return 4 }
func (constEngine) Name() string    { return "const" }

type stubOracle struct {
	reply string
	err   error
}

func (o *stubOracle) Invoke(context.Context, string) (string, error) {
	return o.reply, o.err
}

func newTestMemory(t *testing.T, client *stubOracle) *Memory {
	t.Helper()
	cfg := config.Default()
	cfg.Store.BasePath = filepath.Join(t.TempDir(), "mem")

	sessions := memory.NewSessions(cfg, constEngine{}, nil)
	m := New(sessions, client, prompts.English, nil)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestObserveEnqueues(t *testing.T) {
	m := newTestMemory(t, nil)
	require.NoError(t, m.Observe("", "user said", "agent replied"))

	store, err := m.sessions.Get("")
	require.NoError(t, err)
	task, err := memory.NewQueue(store.DB(), nil).FetchPending()
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "user said", task.UserInput)
	assert.Equal(t, "agent replied", task.AgentOutput)
}

func TestRecallRoundTrip(t *testing.T) {
	m := newTestMemory(t, nil)
	store, err := m.sessions.Get("")
	require.NoError(t, err)
	_, err = store.Add(context.Background(), "a remembered fact", nil, "")
	require.NoError(t, err)

	docs, err := m.Recall(context.Background(), "", "anything", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a remembered fact"}, docs)
}

func TestRecallContext(t *testing.T) {
	m := newTestMemory(t, nil)

	block, err := m.RecallContext(context.Background(), "", "query", 3)
	require.NoError(t, err)
	assert.Empty(t, block, "empty recall yields no context block")

	store, err := m.sessions.Get("")
	require.NoError(t, err)
	_, err = store.Add(context.Background(), "known fact", nil, "")
	require.NoError(t, err)

	block, err = m.RecallContext(context.Background(), "", "query", 3)
	require.NoError(t, err)
	assert.Contains(t, block, "known fact")
	assert.Contains(t, block, "Retrieved Context")
}

func TestPlanQuery(t *testing.T) {
	m := newTestMemory(t, &stubOracle{
		reply: "```json\n{\"search_query\": \"distilled query\", \"entities\": [\"x\"]}\n```",
	})
	got := m.PlanQuery(context.Background(), "raw input", []string{"earlier turn"})
	assert.Equal(t, "distilled query", got)
}

func TestPlanQueryFallsBackToRawInput(t *testing.T) {
	cases := map[string]*stubOracle{
		"oracle error": {err: fmt.Errorf("down")},
		"bad json":     {reply: "not json"},
		"empty query":  {reply: `{"search_query": ""}`},
	}
	for name, o := range cases {
		m := newTestMemory(t, o)
		assert.Equal(t, "raw input", m.PlanQuery(context.Background(), "raw input", nil), name)
	}
}

func TestPlanQueryWithoutOracle(t *testing.T) {
	cfg := config.Default()
	cfg.Store.BasePath = filepath.Join(t.TempDir(), "mem")
	m := New(memory.NewSessions(cfg, constEngine{}, nil), nil, prompts.English, nil)
	t.Cleanup(func() { m.Close() })

	assert.Equal(t, "raw input", m.PlanQuery(context.Background(), "raw input", nil))
}
