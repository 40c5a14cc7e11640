package memory

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acemem/internal/config"
)

func TestSessionsSharedMode(t *testing.T) {
	cfg := testConfig(t)
	reg := NewSessions(cfg, newMockEngine(), nil)
	t.Cleanup(func() { reg.Close() })

	a, err := reg.Get("")
	require.NoError(t, err)
	b, err := reg.Get("alice")
	require.NoError(t, err)
	assert.Same(t, a, b, "shared mode maps every session to one store")
}

func TestSessionsIsolatedMode(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg := config.Default()
	cfg.Store.BasePath = "mem"
	cfg.Store.Mode = config.ModeIsolated

	eng := newMockEngine()
	eng.set("private note", []float32{1, 0, 0, 0})
	eng.set("probe", []float32{1, 0, 0, 0})

	reg := NewSessions(cfg, eng, nil)
	t.Cleanup(func() { reg.Close() })

	alice, err := reg.Get("alice")
	require.NoError(t, err)
	bob, err := reg.Get("bob")
	require.NoError(t, err)
	assert.NotSame(t, alice, bob)
	assert.True(t, strings.Contains(alice.DBPath(), filepath.Join("user_data", "ace_memory_alice")))

	_, err = alice.Add(context.Background(), "private note", nil, "")
	require.NoError(t, err)

	got, err := bob.Search(context.Background(), "probe", 3)
	require.NoError(t, err)
	assert.Empty(t, got, "sessions do not see each other's memories")

	again, err := reg.Get("alice")
	require.NoError(t, err)
	assert.Same(t, alice, again, "stores are cached per session")
}

func TestSessionsIsolatedModeEmptyIDUsesShared(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg := config.Default()
	cfg.Store.BasePath = "mem"
	cfg.Store.Mode = config.ModeIsolated

	reg := NewSessions(cfg, newMockEngine(), nil)
	t.Cleanup(func() { reg.Close() })

	store, err := reg.Get("")
	require.NoError(t, err)
	assert.Equal(t, "mem.db", store.DBPath())
}
