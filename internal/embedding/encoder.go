package embedding

import (
	"context"
	"strings"
)

// Asymmetric retrieval markers used by ruri-family models. The same marker
// must be applied on the write path (documents) and the read path (queries)
// for the lifetime of a store.
const (
	documentPrefix = "検索文書: "
	queryPrefix    = "検索クエリ: "
)

// UsesPrefixes reports whether the given model id follows the asymmetric
// query/document prefix convention.
func UsesPrefixes(model string) bool {
	return strings.Contains(strings.ToLower(model), "ruri")
}

// Encoder wraps an Engine with the store's prefix convention. All encoding
// in the memory façade goes through an Encoder so documents and queries are
// marked consistently.
type Encoder struct {
	engine   Engine
	prefixes bool
}

// NewEncoder builds an Encoder. prefixes should come from UsesPrefixes on
// the configured model id when the store is created.
func NewEncoder(engine Engine, prefixes bool) *Encoder {
	return &Encoder{engine: engine, prefixes: prefixes}
}

// Dimensions returns the engine's output dimensionality.
func (e *Encoder) Dimensions() int { return e.engine.Dimensions() }

// Name returns the underlying engine identifier.
func (e *Encoder) Name() string { return e.engine.Name() }

// UsesPrefixes reports whether this encoder applies retrieval markers.
func (e *Encoder) UsesPrefixes() bool { return e.prefixes }

// EncodeDocument embeds text as stored content.
func (e *Encoder) EncodeDocument(ctx context.Context, text string) ([]float32, error) {
	if e.prefixes {
		text = documentPrefix + text
	}
	return e.engine.Embed(ctx, text)
}

// EncodeDocuments embeds a batch of stored contents.
func (e *Encoder) EncodeDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if e.prefixes {
		prefixed := make([]string, len(texts))
		for i, t := range texts {
			prefixed[i] = documentPrefix + t
		}
		texts = prefixed
	}
	return e.engine.EmbedBatch(ctx, texts)
}

// EncodeQuery embeds text as a search query.
func (e *Encoder) EncodeQuery(ctx context.Context, text string) ([]float32, error) {
	if e.prefixes {
		text = queryPrefix + text
	}
	return e.engine.Embed(ctx, text)
}
