package retriever

import (
	"context"
	"fmt"
	"testing"

	"tally/internal/corpus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore serves a fixed chunk set with no embeddings.
type fakeStore struct {
	chunks []corpus.Chunk
}

func (f *fakeStore) ListChunks() ([]corpus.Chunk, error) { return f.chunks, nil }
func (f *fakeStore) HasEmbeddings() (bool, error)        { return false, nil }
func (f *fakeStore) GetDocHash(string) (string, error)   { return "", nil }
func (f *fakeStore) UpsertDoc(corpus.DocRecord) (int64, error) {
	return 0, fmt.Errorf("read only")
}
func (f *fakeStore) InsertChunks(int64, []corpus.Chunk) ([]int64, error) {
	return nil, fmt.Errorf("read only")
}
func (f *fakeStore) InsertEmbeddings([]int64, [][]float32) error { return fmt.Errorf("read only") }
func (f *fakeStore) GetChunk(chunkID string) (corpus.Chunk, error) {
	return corpus.Chunk{}, fmt.Errorf("not found")
}
func (f *fakeStore) VectorSearch([]float32, int) ([]corpus.Scored, error) { return nil, nil }
func (f *fakeStore) GetMeta(string) (string, error)                       { return "", nil }
func (f *fakeStore) SetMeta(string, string) error                         { return nil }
func (f *fakeStore) DeleteAll() error                                     { return nil }
func (f *fakeStore) Close() error                                         { return nil }

var _ corpus.Store = (*fakeStore)(nil)

func TestNewRejectsEmptyCorpus(t *testing.T) {
	_, err := New(&fakeStore{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tally ingest")
}

func TestSearchKeywordOnly(t *testing.T) {
	store := &fakeStore{chunks: makeChunks(
		"Returns are accepted within 30 days of delivery.",
		"Loyalty members earn two points per dollar spent.",
		"Standard shipping takes five business days.",
	)}
	r, err := New(store, nil)
	require.NoError(t, err)

	results, err := r.Search(context.Background(), "return policy days", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "doc.md::chunk0", results[0].Chunk.ChunkID)
}

func TestSearchDefaultsK(t *testing.T) {
	contents := make([]string, 6)
	for i := 0; i < 5; i++ {
		contents[i] = fmt.Sprintf("Shipping policy item %d.", i)
	}
	contents[5] = "Returns are accepted with a receipt."
	r, err := New(&fakeStore{chunks: makeChunks(contents...)}, nil)
	require.NoError(t, err)

	results, err := r.Search(context.Background(), "shipping policy", 0)
	require.NoError(t, err)
	assert.Len(t, results, DefaultK)
}
