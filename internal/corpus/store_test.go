package corpus

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "corpus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func ingestDoc(t *testing.T, s *SQLiteStore, path, hash, text string) []int64 {
	t.Helper()
	docID, err := s.UpsertDoc(DocRecord{Path: path, Hash: hash, SizeBytes: int64(len(text))})
	require.NoError(t, err)
	rowIDs, err := s.InsertChunks(docID, SplitChunks(path, text, DefaultChunkSize))
	require.NoError(t, err)
	return rowIDs
}

func TestDocHashRoundTrip(t *testing.T) {
	s := newTestStore(t)

	hash, err := s.GetDocHash("returns.md")
	require.NoError(t, err)
	assert.Empty(t, hash)

	ingestDoc(t, s, "returns.md", "abc123", "Returns are accepted within 30 days.")

	hash, err = s.GetDocHash("returns.md")
	require.NoError(t, err)
	assert.Equal(t, "abc123", hash)
}

func TestUpsertDocReplacesChunks(t *testing.T) {
	s := newTestStore(t)

	ingestDoc(t, s, "policy.md", "v1", "Old paragraph one.\n\nOld paragraph two.")
	ingestDoc(t, s, "policy.md", "v2", "New paragraph.")

	chunks, err := s.ListChunks()
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "New paragraph.", chunks[0].Content)
	assert.Equal(t, "policy.md::chunk0", chunks[0].ChunkID)

	hash, err := s.GetDocHash("policy.md")
	require.NoError(t, err)
	assert.Equal(t, "v2", hash)
}

func TestListChunksOrdersBySourceAndSeq(t *testing.T) {
	s := newTestStore(t)

	// Two paragraphs of 300 bytes each cannot share a 400-byte chunk.
	para := strings.Repeat("shipping timelines ", 15)
	ingestDoc(t, s, "b.md", "h2", "Second file content.")
	ingestDoc(t, s, "a.md", "h1", para+"\n\n"+para)

	chunks, err := s.ListChunks()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 3)
	assert.Equal(t, "a.md", chunks[0].Source)
	assert.Equal(t, 0, chunks[0].Seq)
	assert.Equal(t, "a.md", chunks[1].Source)
	assert.Equal(t, 1, chunks[1].Seq)
	assert.Equal(t, "b.md", chunks[len(chunks)-1].Source)
}

func TestGetChunk(t *testing.T) {
	s := newTestStore(t)
	ingestDoc(t, s, "loyalty.md", "h", "Members earn two points per dollar.")

	c, err := s.GetChunk("loyalty.md::chunk0")
	require.NoError(t, err)
	assert.Equal(t, "Members earn two points per dollar.", c.Content)

	_, err = s.GetChunk("missing.md::chunk0")
	assert.Error(t, err)
}

func TestMetaRoundTrip(t *testing.T) {
	s := newTestStore(t)

	v, err := s.GetMeta("embedding_model")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetMeta("embedding_model", "nomic-embed-text"))
	require.NoError(t, s.SetMeta("embedding_model", "mxbai-embed-large"))

	v, err = s.GetMeta("embedding_model")
	require.NoError(t, err)
	assert.Equal(t, "mxbai-embed-large", v)
}

func TestDeleteAll(t *testing.T) {
	s := newTestStore(t)
	ingestDoc(t, s, "a.md", "h", "Some content here.")

	require.NoError(t, s.DeleteAll())

	chunks, err := s.ListChunks()
	require.NoError(t, err)
	assert.Empty(t, chunks)

	has, err := s.HasEmbeddings()
	require.NoError(t, err)
	assert.False(t, has)
}
