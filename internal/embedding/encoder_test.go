package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEngine struct {
	texts []string
}

func (r *recordingEngine) Embed(_ context.Context, text string) ([]float32, error) {
	r.texts = append(r.texts, text)
	return []float32{1}, nil
}

func (r *recordingEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := r.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (r *recordingEngine) Dimensions() int { return 1 }
func (r *recordingEngine) Name() string    { return "recording" }

func TestUsesPrefixes(t *testing.T) {
	assert.True(t, UsesPrefixes("ruri-v3-310m"))
	assert.True(t, UsesPrefixes("cl-nagoya/RURI-large"))
	assert.False(t, UsesPrefixes("embeddinggemma"))
	assert.False(t, UsesPrefixes(""))
}

func TestEncoderAppliesPrefixes(t *testing.T) {
	ctx := context.Background()
	rec := &recordingEngine{}
	enc := NewEncoder(rec, true)

	_, err := enc.EncodeDocument(ctx, "stored text")
	require.NoError(t, err)
	_, err = enc.EncodeQuery(ctx, "query text")
	require.NoError(t, err)
	_, err = enc.EncodeDocuments(ctx, []string{"a", "b"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"検索文書: stored text",
		"検索クエリ: query text",
		"検索文書: a",
		"検索文書: b",
	}, rec.texts)
}

func TestEncoderWithoutPrefixes(t *testing.T) {
	ctx := context.Background()
	rec := &recordingEngine{}
	enc := NewEncoder(rec, false)

	_, err := enc.EncodeDocument(ctx, "plain")
	require.NoError(t, err)
	_, err = enc.EncodeQuery(ctx, "plain query")
	require.NoError(t, err)

	assert.Equal(t, []string{"plain", "plain query"}, rec.texts)
	assert.False(t, enc.UsesPrefixes())
}
