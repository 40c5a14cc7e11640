package memory

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
)

// mockEngine returns canned vectors for known texts and a deterministic
// far-away vector for everything else, so similarity outcomes are fully
// scripted. Unknown texts land at least 100 units from the canned range.
type mockEngine struct {
	mu      sync.Mutex
	vectors map[string][]float32
	calls   []string
	failOn  string
}

func newMockEngine() *mockEngine {
	return &mockEngine{vectors: make(map[string][]float32)}
}

func (m *mockEngine) set(text string, vec []float32) {
	m.vectors[text] = vec
}

func (m *mockEngine) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, text)

	if m.failOn != "" && text == m.failOn {
		return nil, fmt.Errorf("mock embed failure for %q", text)
	}
	if vec, ok := m.vectors[text]; ok {
		out := make([]float32, len(vec))
		copy(out, vec)
		return out, nil
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	sum := h.Sum64()
	vec := make([]float32, m.dims())
	for i := range vec {
		vec[i] = 100 + float32((sum>>(8*uint(i)))&0xff)
	}
	return vec, nil
}

func (m *mockEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (m *mockEngine) dims() int {
	for _, v := range m.vectors {
		return len(v)
	}
	return 4
}

func (m *mockEngine) Dimensions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dims()
}

func (m *mockEngine) Name() string { return "mock" }
