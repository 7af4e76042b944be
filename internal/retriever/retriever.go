// Package retriever finds corpus chunks relevant to a question. The primary
// signal is a TF-IDF index built in memory from the corpus store; when chunk
// embeddings exist, vector similarity results are merged in behind the
// keyword matches.
package retriever

import (
	"context"
	"fmt"

	"tally/internal/corpus"
	"tally/internal/embedder"
)

// DefaultK is the number of chunks retrieved per question.
const DefaultK = 3

// Retriever searches the corpus for chunks relevant to a query.
type Retriever struct {
	index      *Index
	store      corpus.Store
	emb        *embedder.OllamaEmbedder
	hasVectors bool
}

// New loads all chunks from the store and builds the TF-IDF index. The
// embedder is optional; when nil (or when the store holds no embeddings),
// searches are TF-IDF only.
func New(store corpus.Store, emb *embedder.OllamaEmbedder) (*Retriever, error) {
	chunks, err := store.ListChunks()
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("corpus index is empty — run 'tally ingest' first")
	}

	hasVectors := false
	if emb != nil {
		hasVectors, err = store.HasEmbeddings()
		if err != nil {
			return nil, fmt.Errorf("check embeddings: %w", err)
		}
	}

	return &Retriever{
		index:      BuildIndex(chunks),
		store:      store,
		emb:        emb,
		hasVectors: hasVectors,
	}, nil
}

// Search returns up to k chunks relevant to the query, best first. TF-IDF
// matches come first; when embeddings are available, vector results fill the
// remainder, deduplicated by chunk ID.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]corpus.Scored, error) {
	if k <= 0 {
		k = DefaultK
	}

	merged := r.index.Search(query, k)

	if r.hasVectors {
		vec, err := r.emb.EmbedSingle(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		vecResults, err := r.store.VectorSearch(vec, k)
		if err != nil {
			return nil, fmt.Errorf("vector search: %w", err)
		}

		seen := make(map[string]bool, len(merged))
		for _, s := range merged {
			seen[s.Chunk.ChunkID] = true
		}
		for _, s := range vecResults {
			if !seen[s.Chunk.ChunkID] {
				seen[s.Chunk.ChunkID] = true
				merged = append(merged, s)
			}
		}
	}

	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}
