// Package vecindex implements the flat on-disk vector index backing the
// memory store. The whole collection lives in a single file that is only
// ever replaced atomically (write temp, fsync, rename), so concurrent
// readers either see the previous complete index or the new one.
package vecindex

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Metric selects how search scores are computed and ordered.
type Metric uint8

const (
	// L2 scores are squared euclidean distances; lower is closer.
	L2 Metric = iota
	// IP scores are inner products; on L2-normalized vectors this is cosine
	// similarity, higher is closer.
	IP
)

// ErrCorrupt is returned by Load when the index file cannot be decoded.
// Callers are expected to rebuild from the document table.
var ErrCorrupt = errors.New("vecindex: corrupt index file")

// ErrDimensionMismatch is returned when a vector's length does not match
// the index dimension.
var ErrDimensionMismatch = errors.New("vecindex: dimension mismatch")

// Result is one search hit.
type Result struct {
	ID    int64
	Score float32
}

// Flat is an exhaustive-search vector collection keyed by document id.
// It is not safe for concurrent use; the memory façade serializes access.
type Flat struct {
	metric Metric
	dim    int
	ids    []int64
	vecs   [][]float32
}

// NewFlat creates an empty index with a fixed metric and dimension.
func NewFlat(metric Metric, dim int) *Flat {
	return &Flat{metric: metric, dim: dim}
}

// Metric returns the configured metric.
func (f *Flat) Metric() Metric { return f.metric }

// Dim returns the vector dimensionality.
func (f *Flat) Dim() int { return f.dim }

// Count returns the number of stored vectors.
func (f *Flat) Count() int { return len(f.ids) }

// Add appends a vector under the given id. Uniqueness of ids is the
// caller's responsibility.
func (f *Flat) Add(id int64, vec []float32) error {
	if len(vec) != f.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), f.dim)
	}
	cp := make([]float32, len(vec))
	copy(cp, vec)
	f.ids = append(f.ids, id)
	f.vecs = append(f.vecs, cp)
	return nil
}

// Has reports whether an entry with the given id exists.
func (f *Flat) Has(id int64) bool {
	for _, existing := range f.ids {
		if existing == id {
			return true
		}
	}
	return false
}

// Remove deletes the entry with the given id. It reports whether an entry
// was removed; a missing id is a no-op.
func (f *Flat) Remove(id int64) bool {
	for i, existing := range f.ids {
		if existing == id {
			f.ids = append(f.ids[:i], f.ids[i+1:]...)
			f.vecs = append(f.vecs[:i], f.vecs[i+1:]...)
			return true
		}
	}
	return false
}

// Search returns up to k results ordered best-first: ascending score for
// L2, descending for IP.
func (f *Flat) Search(query []float32, k int) ([]Result, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), f.dim)
	}
	if k <= 0 || len(f.ids) == 0 {
		return nil, nil
	}

	results := make([]Result, len(f.ids))
	for i, vec := range f.vecs {
		var score float32
		switch f.metric {
		case IP:
			for j := range vec {
				score += query[j] * vec[j]
			}
		default:
			for j := range vec {
				d := query[j] - vec[j]
				score += d * d
			}
		}
		results[i] = Result{ID: f.ids[i], Score: score}
	}

	if f.metric == IP {
		sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	} else {
		sort.Slice(results, func(i, j int) bool { return results[i].Score < results[j].Score })
	}

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// NormalizeL2 scales v to unit length in place. Zero vectors are left
// untouched. Required before Add/Search when the metric is IP so inner
// product equals cosine similarity.
func NormalizeL2(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
