package vecindex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatAddAndSearchL2(t *testing.T) {
	idx := NewFlat(L2, 3)
	require.NoError(t, idx.Add(1, []float32{1, 0, 0}))
	require.NoError(t, idx.Add(2, []float32{0, 1, 0}))
	require.NoError(t, idx.Add(3, []float32{0.9, 0.1, 0}))

	results, err := idx.Search([]float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].ID)
	assert.Equal(t, int64(3), results[1].ID)
	assert.Less(t, results[0].Score, results[1].Score, "L2 results ascend by distance")
	assert.InDelta(t, 0.0, results[0].Score, 1e-6, "exact match has zero squared distance")
}

func TestFlatSearchIP(t *testing.T) {
	idx := NewFlat(IP, 3)
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}
	c := []float32{0.6, 0.8, 0}
	for i, v := range [][]float32{a, b, c} {
		NormalizeL2(v)
		require.NoError(t, idx.Add(int64(i+1), v))
	}

	results, err := idx.Search([]float32{0, 1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, int64(2), results[0].ID)
	assert.Equal(t, int64(3), results[1].ID)
	assert.Greater(t, results[0].Score, results[1].Score, "IP results descend by similarity")
}

func TestFlatSearchTruncatesToK(t *testing.T) {
	idx := NewFlat(L2, 2)
	for i := int64(1); i <= 10; i++ {
		require.NoError(t, idx.Add(i, []float32{float32(i), 0}))
	}
	results, err := idx.Search([]float32{0, 0}, 3)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestFlatDimensionMismatch(t *testing.T) {
	idx := NewFlat(L2, 3)
	assert.ErrorIs(t, idx.Add(1, []float32{1, 0}), ErrDimensionMismatch)

	_, err := idx.Search([]float32{1, 0}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestFlatRemove(t *testing.T) {
	idx := NewFlat(L2, 2)
	require.NoError(t, idx.Add(1, []float32{1, 0}))
	require.NoError(t, idx.Add(2, []float32{0, 1}))

	assert.True(t, idx.Remove(1))
	assert.False(t, idx.Remove(1), "second remove is a no-op")
	assert.False(t, idx.Has(1))
	assert.True(t, idx.Has(2))
	assert.Equal(t, 1, idx.Count())
}

func TestFlatAddCopiesVector(t *testing.T) {
	idx := NewFlat(L2, 2)
	vec := []float32{1, 0}
	require.NoError(t, idx.Add(1, vec))
	vec[0] = 99

	results, err := idx.Search([]float32{1, 0}, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, results[0].Score, 1e-6)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx.faiss")

	idx := NewFlat(IP, 4)
	require.NoError(t, idx.Add(7, []float32{0.1, 0.2, 0.3, 0.4}))
	require.NoError(t, idx.Add(9, []float32{0.5, 0.6, 0.7, 0.8}))
	require.NoError(t, idx.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, IP, loaded.Metric())
	assert.Equal(t, 4, loaded.Dim())
	assert.Equal(t, 2, loaded.Count())
	assert.True(t, loaded.Has(7))
	assert.True(t, loaded.Has(9))

	results, err := loaded.Search([]float32{0.5, 0.6, 0.7, 0.8}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(9), results[0].ID)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.faiss"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.faiss")

	for name, data := range map[string][]byte{
		"garbage":   []byte("not an index at all"),
		"bad magic": {0, 0, 0, 0, 1, 0},
		"truncated": {'A', 'V', 'I', 'X', 1, 0},
		// Claims four billion rows with no payload; must fail cleanly
		// instead of preallocating for the advertised count.
		"huge count": {'A', 'V', 'I', 'X', 1, 0, 4, 0, 0, 0, 0xff, 0xff, 0xff, 0xff},
	} {
		require.NoError(t, os.WriteFile(path, data, 0o644))
		_, err := Load(path)
		assert.ErrorIs(t, err, ErrCorrupt, name)
	}
}

func TestSaveOverwritesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx.faiss")

	first := NewFlat(L2, 2)
	require.NoError(t, first.Add(1, []float32{1, 0}))
	require.NoError(t, first.Save(path))

	second := NewFlat(L2, 2)
	require.NoError(t, second.Add(2, []float32{0, 1}))
	require.NoError(t, second.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Count())
	assert.True(t, loaded.Has(2))
	assert.False(t, loaded.Has(1))
}

func TestNormalizeL2(t *testing.T) {
	v := []float32{3, 4}
	NormalizeL2(v)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	NormalizeL2(zero)
	assert.Equal(t, []float32{0, 0}, zero, "zero vectors stay untouched")
}
